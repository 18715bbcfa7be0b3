// Package register implements a register file of named, fixed-width registers.
//
// Every declared register always holds a value. Values are truncated to the
// system word size, and narrow accesses (byte, half, word) only touch the low
// bytes of the register, leaving the remaining bits untouched.
package register

import (
	"iter"
	"maps"
	"slices"

	"github.com/ezrec/asmemu/internal"
)

// Size is an access width, in bytes.
type Size int

const (
	Byte   = Size(1) // 8 bits
	Half   = Size(2) // 16 bits
	Word   = Size(4) // 32 bits
	Double = Size(8) // 64 bits
)

// Mask returns the value mask for the size.
func (sz Size) Mask() uint64 {
	if sz >= Double {
		return ^uint64(0)
	}
	return (uint64(1) << (8 * uint(sz))) - 1
}

// Bits returns the width in bits.
func (sz Size) Bits() int {
	return int(sz) * 8
}

// Valid returns true for the four supported widths.
func (sz Size) Valid() bool {
	switch sz {
	case Byte, Half, Word, Double:
		return true
	}
	return false
}

func (sz Size) String() string {
	switch sz {
	case Byte:
		return "b"
	case Half:
		return "h"
	case Word:
		return "w"
	case Double:
		return "d"
	}
	return "?"
}

// File is the register storage for a set of names of type R.
type File[R ~string] struct {
	size   Size
	names  []R
	hidden map[R]bool
	values map[R]uint64
}

// New creates a register file of 'size' wide registers. Every name in
// 'hidden' must also be in 'names'.
func New[R ~string](size Size, names []R, hidden []R) (rf *File[R], err error) {
	if size != Word && size != Double {
		err = ErrRegisterSize
		return
	}

	rf = &File[R]{
		size:   size,
		names:  slices.Clone(names),
		hidden: make(map[R]bool, len(hidden)),
		values: make(map[R]uint64, len(names)),
	}

	for _, name := range names {
		if _, ok := rf.values[name]; ok {
			err = ErrRegisterDuplicate(name)
			return
		}
		rf.values[name] = 0
	}

	for _, name := range hidden {
		if !rf.Has(name) {
			err = ErrRegisterUnknown(name)
			return
		}
		rf.hidden[name] = true
	}

	return
}

// Size returns the system word size.
func (rf *File[R]) Size() Size {
	return rf.size
}

// Has returns true if the register is declared.
func (rf *File[R]) Has(name R) bool {
	_, ok := rf.values[name]
	return ok
}

// Hidden returns true if the register is excluded from enumeration.
func (rf *File[R]) Hidden(name R) bool {
	return rf.hidden[name]
}

// Names returns the visible registers in declaration order.
func (rf *File[R]) Names() []R {
	return slices.Collect(internal.IterSeqFilter(slices.Values(rf.names), func(name R) bool {
		return !rf.Hidden(name)
	}))
}

// All iterates over every register, hidden ones included, in declaration order.
func (rf *File[R]) All() iter.Seq2[R, uint64] {
	return func(yield func(R, uint64) bool) {
		for _, name := range rf.names {
			if !yield(name, rf.values[name]) {
				return
			}
		}
	}
}

// width resolves a requested access size; zero selects the system size.
func (rf *File[R]) width(size Size) (Size, error) {
	if size == 0 {
		return rf.size, nil
	}
	if !size.Valid() || size > rf.size {
		return 0, ErrRegisterSize
	}
	return size, nil
}

// Get returns the low 'size' bytes of a register. A size of 0 reads the
// full register.
func (rf *File[R]) Get(name R, size Size) (value uint64, err error) {
	size, err = rf.width(size)
	if err != nil {
		return
	}

	value, ok := rf.values[name]
	if !ok {
		err = ErrRegisterUnknown(name)
		return
	}

	value &= size.Mask()
	return
}

// Set replaces the low 'size' bytes of a register, preserving the rest.
// A size of 0 writes the full register, truncated to the system size.
func (rf *File[R]) Set(name R, value uint64, size Size) (err error) {
	size, err = rf.width(size)
	if err != nil {
		return
	}

	prior, ok := rf.values[name]
	if !ok {
		err = ErrRegisterUnknown(name)
		return
	}

	mask := size.Mask()
	rf.values[name] = ((prior &^ mask) | (value & mask)) & rf.size.Mask()
	return
}

// Snapshot copies every register value, hidden ones included.
func (rf *File[R]) Snapshot() map[R]uint64 {
	return maps.Collect(rf.All())
}
