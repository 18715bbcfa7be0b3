package emulator

import (
	"errors"
	"strings"

	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	// Lifecycle errors. These are programming errors, not program faults.
	ErrNotInitialized = errors.New(f("emulator not initialized"))
	ErrDisposed       = errors.New(f("emulator disposed"))
	ErrRunning        = errors.New(f("emulator running"))
	ErrNoProgram      = errors.New(f("no program compiled"))
)

type ErrStatusUnknown string

func (err ErrStatusUnknown) Error() string {
	return f("status '%v' unknown", string(err))
}

// ErrUnimplemented is an attempt to execute an address holding no known instruction.
type ErrUnimplemented struct {
	Address uint64
}

func (err *ErrUnimplemented) Error() string {
	return f("no instruction at 0x%x", err.Address)
}

// ErrDivisionByZero is a division or remainder by zero.
type ErrDivisionByZero struct {
	Address uint64
}

func (err *ErrDivisionByZero) Error() string {
	return f("division by zero at 0x%x", err.Address)
}

// ErrExecutionLimit is reported when a run stops at its instruction limit.
type ErrExecutionLimit struct {
	Count int // Retired instructions since initialize, net of undo.
}

func (err *ErrExecutionLimit) Error() string {
	return f("execution limit of %d instructions reached", err.Count)
}

// ErrAddressingMode is an operand mode the instruction cannot use.
type ErrAddressingMode struct {
	Address uint64
	Mode    string
}

func (err *ErrAddressingMode) Error() string {
	return f("incorrect addressing mode '%v' at 0x%x", err.Mode, err.Address)
}

// ErrRaw is an opaque backend failure.
type ErrRaw struct {
	Message string
}

func (err *ErrRaw) Error() string {
	return err.Message
}

// ErrRuntime locates a fault in the program source.
type ErrRuntime struct {
	LineNo  int
	Address uint64
	Err     error
}

func (err *ErrRuntime) Error() string {
	return f("line %d (0x%x) %v", err.LineNo, err.Address, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}

// ErrCompile carries every diagnostic of a failed compilation.
type ErrCompile struct {
	Errors []Diagnostic
	Report string
}

func (err *ErrCompile) Error() string {
	lines := make([]string, 0, len(err.Errors))
	for _, diag := range err.Errors {
		lines = append(lines, diag.Message)
	}
	return f("compile failed: %v", strings.Join(lines, "; "))
}

// FaultKind classifies runtime faults across architectures.
type FaultKind int

const (
	FaultNone = FaultKind(iota)
	FaultUnimplemented
	FaultDivisionByZero
	FaultExecutionLimit
	FaultOutOfBounds
	FaultAddressingMode
	FaultAddress
	FaultRaw
	FaultUnknown
)

func (kind FaultKind) String() string {
	switch kind {
	case FaultNone:
		return f("no fault")
	case FaultUnimplemented:
		return f("unimplemented instruction")
	case FaultDivisionByZero:
		return f("division by zero")
	case FaultExecutionLimit:
		return f("execution limit reached")
	case FaultOutOfBounds:
		return f("out of bounds memory access")
	case FaultAddressingMode:
		return f("incorrect addressing mode")
	case FaultAddress:
		return f("address error")
	case FaultRaw:
		return f("internal error")
	}
	return f("unknown fault")
}

// KindOf classifies an error, looking through any wrapping.
func KindOf(err error) FaultKind {
	var (
		unimplemented *ErrUnimplemented
		divide        *ErrDivisionByZero
		limit         *ErrExecutionLimit
		bounds        *memory.ErrOutOfBounds
		mode          *ErrAddressingMode
		unaligned     *memory.ErrUnaligned
		raw           *ErrRaw
	)

	switch {
	case err == nil:
		return FaultNone
	case errors.As(err, &unimplemented):
		return FaultUnimplemented
	case errors.As(err, &divide):
		return FaultDivisionByZero
	case errors.As(err, &limit):
		return FaultExecutionLimit
	case errors.As(err, &bounds):
		return FaultOutOfBounds
	case errors.As(err, &mode):
		return FaultAddressingMode
	case errors.As(err, &unaligned):
		return FaultAddress
	case errors.As(err, &raw):
		return FaultRaw
	}
	return FaultUnknown
}

// Stringify renders a fault with its kind and source location. Errors of
// an unrecognized shape fall back to their Error() text.
func Stringify(err error) (text string) {
	if err == nil {
		return
	}

	var rt *ErrRuntime
	if errors.As(err, &rt) {
		text = f("line %d: ", rt.LineNo)
		err = rt.Err
	}

	kind := KindOf(err)
	if kind == FaultUnknown {
		text += err.Error()
		return
	}

	text += f("%v: %v", kind, err)
	return
}

type ErrInstructionSize uint64

func (err ErrInstructionSize) Error() string {
	return f("instruction at 0x%x has no size", uint64(err))
}

type ErrInstructionOverlap uint64

func (err ErrInstructionOverlap) Error() string {
	return f("instruction at 0x%x overlaps its predecessor", uint64(err))
}
