package emulator

import (
	"strings"
)

// Status is the lifecycle state of an emulator.
type Status int

//go:generate go tool stringer -linecomment -type=Status
const (
	Uninitialized      = Status(0) // uninitialized
	Ready              = Status(1) // ready
	Running            = Status(2) // running
	Paused             = Status(3) // paused
	PausedAtBreakpoint = Status(4) // breakpoint
	Terminated         = Status(5) // terminated
	TerminatedByLimit  = Status(6) // limit
	Faulted            = Status(7) // faulted
	Disposed           = Status(8) // disposed
)

// Terminal returns true for states that accept no further step or run
// until re-initialized.
func (st Status) Terminal() bool {
	switch st {
	case Terminated, TerminatedByLimit, Faulted:
		return true
	}
	return false
}

// MarshalText encodes the status by name.
func (st Status) MarshalText() ([]byte, error) {
	return []byte(st.String()), nil
}

// UnmarshalText decodes a status name.
func (st *Status) UnmarshalText(text []byte) error {
	name := strings.ToLower(strings.TrimSpace(string(text)))
	for n := Uninitialized; n <= Disposed; n++ {
		if n.String() == name {
			*st = n
			return nil
		}
	}
	return ErrStatusUnknown(name)
}
