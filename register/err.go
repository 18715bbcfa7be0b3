package register

import (
	"errors"

	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	ErrRegisterSize = errors.New(f("register size invalid"))
)

type ErrRegisterUnknown string

func (err ErrRegisterUnknown) Error() string {
	return f("register %v unknown", string(err))
}

type ErrRegisterDuplicate string

func (err ErrRegisterDuplicate) Error() string {
	return f("register %v declared twice", string(err))
}
