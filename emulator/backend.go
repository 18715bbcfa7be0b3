package emulator

import (
	"encoding/binary"

	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/register"
)

// Endianness of multi-byte memory accesses.
type Endianness int

const (
	LittleEndian = Endianness(0)
	BigEndian    = Endianness(1)
)

// Order returns the byte order.
func (e Endianness) Order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (e Endianness) String() string {
	if e == BigEndian {
		return "big"
	}
	return "little"
}

// Config declares the register set of an architecture.
type Config[R ~string] struct {
	SystemSize      register.Size // Register width, Word or Double.
	RegisterNames   []R           // Every addressable register.
	Endianness      Endianness    // Byte order of memory.
	HiddenRegisters []R           // Registers excluded from enumeration.
}

// Flag is a named condition flag.
type Flag struct {
	Name  string
	Value bool
}

// StackFrame is one entry of the call stack.
type StackFrame struct {
	CallSite uint64 // Address of the call instruction.
	Target   uint64 // Address called.
	Label    string // Symbol of the target, if known.
}

// Backend is the architecture-specific part of an emulator. A Machine
// drives it through the common step, run and undo protocol.
type Backend[R ~string] interface {
	// Name of the architecture.
	Name() string
	// Config declares the register file.
	Config() Config[R]
	// MemoryConfig declares the memory space. Its byte order is taken from
	// Config().Endianness.
	MemoryConfig() memory.Config
	// Pc is the program counter register.
	Pc() R
	// Sp is the stack pointer register.
	Sp() R
	// Compile assembles source into a program. A nil program, or any
	// diagnostics, is a failed compile.
	Compile(source string) (prog *Program, diags []Diagnostic, report string)
	// Reset sets the initial register values for a program. 'prog' may be nil.
	Reset(regs *register.File[R], prog *Program) error
	// Execute runs a single instruction. All state changes must go
	// through 'x'.
	Execute(x *Exec[R], ins *Instruction) (terminated bool, err error)
	// Flags decodes the condition flags from the registers.
	Flags(regs *register.File[R]) []Flag
	// StringifyError renders the backend's own faults. ok is false for
	// errors the backend does not recognize.
	StringifyError(err error) (text string, ok bool)
}
