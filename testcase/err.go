package testcase

import (
	"errors"

	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	ErrSuiteEmpty = errors.New(f("testcase suite has no cases"))
)

type ErrCaseDuplicate string

func (err ErrCaseDuplicate) Error() string {
	return f("testcase '%v' defined more than once", string(err))
}

// ErrCase locates a machine failure in a testcase.
type ErrCase struct {
	Name string
	Err  error
}

func (err *ErrCase) Error() string {
	return f("testcase '%v': %v", err.Name, err.Err)
}

func (err *ErrCase) Unwrap() error {
	return err.Err
}
