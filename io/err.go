package io

import (
	"errors"

	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	// Tape errors
	ErrTapeEmpty = errors.New(f("tape input exhausted"))
)

type ErrTapeWord string

func (err ErrTapeWord) Error() string {
	return f("'%v' is not a tape word", string(err))
}
