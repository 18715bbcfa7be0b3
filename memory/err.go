package memory

import (
	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

// ErrOutOfBounds is an access that extends past the maximum address.
type ErrOutOfBounds struct {
	Address uint64
	Size    int
}

func (err *ErrOutOfBounds) Error() string {
	return f("out of bounds access of %d bytes at 0x%x", err.Size, err.Address)
}

// ErrUnaligned is a multi-byte access at an odd address.
type ErrUnaligned struct {
	Address uint64
	Size    int
}

func (err *ErrUnaligned) Error() string {
	return f("unaligned access of %d bytes at 0x%x", err.Size, err.Address)
}
