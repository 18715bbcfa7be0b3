// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package emulator defines the contract shared by every instruction-set
// emulator, and Machine, the single implementation of that contract that
// drives any architecture Backend.
//
// A Machine owns its register file, memory space and undo history. Executed
// instructions record a reversible Step; debugger writes through
// SetRegisterValue and WriteMemoryBytes do not.
package emulator

import (
	"log"
	"slices"

	"github.com/ezrec/asmemu/history"
	"github.com/ezrec/asmemu/io"
	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/register"
)

// StepResult is the outcome of a single step.
type StepResult struct {
	// Terminated is true once no further instruction can execute.
	Terminated bool

	// Err is set on a runtime fault or a lifecycle error.
	Err error
}

// Emulator is the uniform contract over every architecture.
type Emulator[R ~string] interface {
	Initialize(undoHistorySize int) error
	Compile(source string) error
	CheckCode(source string) []Diagnostic
	Step() StepResult
	Run(limit int, breakpoints []uint64) Status
	RunBatch(batch int, breakpoints []uint64) Status
	Undo() error
	CanUndo() bool

	NextInstruction() *Instruction
	InstructionAt(address uint64) *Instruction
	Decorations() []Decoration

	Pc() uint64
	Sp() uint64
	Flags() []Flag
	CallStack() []StackFrame
	RegisterNames() []R
	RegisterValues() []uint64
	RegisterValuesRecord() map[R]uint64
	RegisterValue(name R, size register.Size) (uint64, error)
	SetRegisterValue(name R, value uint64, size register.Size) error
	ReadMemoryBytes(address uint64, length int) ([]byte, error)
	WriteMemoryBytes(address uint64, data []byte) error

	SetInput(input []uint64)
	Output() []uint64
	InstructionCount() int
	LastError() error

	HasTerminated() bool
	Status() Status
	RunTestcase(tc *Testcase[R], haltLimit int) *TestcaseResult[R]
	StringifyError(err error) string
	Dispose() error
}

// Machine implements Emulator over an architecture Backend.
type Machine[R ~string] struct {
	Verbose bool // If set, enables verbose logging.

	backend     Backend[R]
	status      Status
	historySize int

	regs    *register.File[R]
	mem     *memory.Space
	hist    *history.History[*Step[R]]
	tape    io.Tape
	frames  []StackFrame
	program *Program
	lastErr error
	count   int // Retired instructions, net of undo.

	pausedAt uint64 // Breakpoint address of the last PausedAtBreakpoint.
}

var _ Emulator[string] = (*Machine[string])(nil)

// NewMachine creates an uninitialized machine for a backend.
func NewMachine[R ~string](backend Backend[R]) (m *Machine[R]) {
	m = &Machine[R]{
		backend: backend,
		status:  Uninitialized,
	}

	return
}

// Backend returns the architecture backend.
func (m *Machine[R]) Backend() Backend[R] {
	return m.backend
}

// Program returns the loaded program, or nil.
func (m *Machine[R]) Program() *Program {
	return m.program
}

// Initialize (re)creates the register file, memory and history, loads the
// compiled program, and makes the machine Ready.
func (m *Machine[R]) Initialize(undoHistorySize int) (err error) {
	if m.status == Disposed {
		err = ErrDisposed
		return
	}

	if m.Verbose {
		log.Printf("emulator: %v: initialize, undo history %d", m.backend.Name(), undoHistorySize)
	}

	config := m.backend.Config()
	regs, err := register.New(config.SystemSize, config.RegisterNames, config.HiddenRegisters)
	if err != nil {
		return
	}

	memConfig := m.backend.MemoryConfig()
	memConfig.Order = config.Endianness.Order()
	mem := memory.New(memConfig)

	if m.program != nil {
		for _, block := range m.program.Data {
			err = mem.Write(block.Address, block.Data)
			if err != nil {
				return
			}
		}
	}

	err = m.backend.Reset(regs, m.program)
	if err != nil {
		return
	}

	m.historySize = max(undoHistorySize, 0)
	m.regs = regs
	m.mem = mem
	m.mem.Verbose = m.Verbose
	m.hist = history.New[*Step[R]](m.historySize)
	m.tape.Rewind()
	m.frames = nil
	m.lastErr = nil
	m.count = 0
	m.status = Ready

	return
}

// Compile validates and loads a program. A failed compile leaves the
// machine untouched. A successful compile re-initializes an initialized
// machine with the same history size.
func (m *Machine[R]) Compile(source string) (err error) {
	if m.status == Disposed {
		err = ErrDisposed
		return
	}

	prog, diags, report := m.backend.Compile(source)
	if len(diags) > 0 || prog == nil {
		err = &ErrCompile{Errors: diags, Report: report}
		return
	}

	m.program = prog
	if m.status != Uninitialized {
		err = m.Initialize(m.historySize)
	}

	return
}

// CheckCode returns the diagnostics of a source text without loading it.
func (m *Machine[R]) CheckCode(source string) (diags []Diagnostic) {
	defer func() {
		if r := recover(); r != nil {
			diags = append(diags, Diagnostic{Type: "raw", Message: f("unreachable: %v", r)})
		}
	}()

	_, diags, _ = m.backend.Compile(source)
	return
}

// NextInstruction is the instruction at the program counter, or nil.
func (m *Machine[R]) NextInstruction() *Instruction {
	if m.regs == nil {
		return nil
	}
	return m.program.At(m.Pc())
}

// InstructionAt is the instruction starting at an address, or nil.
func (m *Machine[R]) InstructionAt(address uint64) *Instruction {
	return m.program.At(address)
}

// Decorations maps source lines to compiled address ranges.
func (m *Machine[R]) Decorations() []Decoration {
	return m.program.Decorations()
}

func (m *Machine[R]) special(name R) (value uint64) {
	if m.regs == nil {
		return
	}
	value, _ = m.regs.Get(name, 0)
	return
}

// Pc returns the program counter.
func (m *Machine[R]) Pc() uint64 {
	return m.special(m.backend.Pc())
}

// Sp returns the stack pointer.
func (m *Machine[R]) Sp() uint64 {
	return m.special(m.backend.Sp())
}

// Flags returns the condition flags.
func (m *Machine[R]) Flags() []Flag {
	if m.regs == nil {
		return nil
	}
	return m.backend.Flags(m.regs)
}

// CallStack returns the active calls, most recent last.
func (m *Machine[R]) CallStack() []StackFrame {
	return slices.Clone(m.frames)
}

// RegisterNames returns the visible registers in declaration order.
func (m *Machine[R]) RegisterNames() []R {
	if m.regs == nil {
		return nil
	}
	return m.regs.Names()
}

// RegisterValues returns the visible register values in declaration order.
func (m *Machine[R]) RegisterValues() (values []uint64) {
	for _, name := range m.RegisterNames() {
		value, _ := m.regs.Get(name, 0)
		values = append(values, value)
	}
	return
}

// RegisterValuesRecord returns the visible register values by name.
func (m *Machine[R]) RegisterValuesRecord() (record map[R]uint64) {
	record = make(map[R]uint64)
	for _, name := range m.RegisterNames() {
		record[name], _ = m.regs.Get(name, 0)
	}
	return
}

func (m *Machine[R]) usable() error {
	switch m.status {
	case Uninitialized:
		return ErrNotInitialized
	case Disposed:
		return ErrDisposed
	}
	return nil
}

// RegisterValue reads any register, hidden ones included.
func (m *Machine[R]) RegisterValue(name R, size register.Size) (value uint64, err error) {
	err = m.usable()
	if err != nil {
		return
	}
	return m.regs.Get(name, size)
}

// SetRegisterValue overrides a register. The write is not recorded in
// the undo history.
func (m *Machine[R]) SetRegisterValue(name R, value uint64, size register.Size) (err error) {
	err = m.usable()
	if err != nil {
		return
	}
	return m.regs.Set(name, value, size)
}

// ReadMemoryBytes reads a window of memory.
func (m *Machine[R]) ReadMemoryBytes(address uint64, length int) (data []byte, err error) {
	err = m.usable()
	if err != nil {
		return
	}
	return m.mem.Read(address, length)
}

// WriteMemoryBytes overrides a window of memory. The write is not recorded
// in the undo history.
func (m *Machine[R]) WriteMemoryBytes(address uint64, data []byte) (err error) {
	err = m.usable()
	if err != nil {
		return
	}
	return m.mem.Write(address, data)
}

// MemoryPages returns the base address of every page that has been written,
// ascending.
func (m *Machine[R]) MemoryPages() []uint64 {
	if m.mem == nil {
		return nil
	}
	return m.mem.Pages()
}

// UndoDepth is the number of instructions that can be undone.
func (m *Machine[R]) UndoDepth() int {
	if !m.CanUndo() {
		return 0
	}
	return m.hist.Len()
}

// SetInput replaces the program input. It takes effect immediately, and
// survives re-initialization.
func (m *Machine[R]) SetInput(input []uint64) {
	m.tape.Input = slices.Clone(input)
	m.tape.ReadIndex = 0
}

// Output returns the program output so far.
func (m *Machine[R]) Output() []uint64 {
	return m.tape.Captured()
}

// InstructionCount is the number of retired instructions, net of undo.
func (m *Machine[R]) InstructionCount() int {
	return m.count
}

// LastError is the fault that ended execution, if any.
func (m *Machine[R]) LastError() error {
	return m.lastErr
}

// HasTerminated is true in every terminal status.
func (m *Machine[R]) HasTerminated() bool {
	return m.status.Terminal()
}

// Status returns the lifecycle state.
func (m *Machine[R]) Status() Status {
	return m.status
}

// StringifyError renders a fault, preferring the backend's own vocabulary.
func (m *Machine[R]) StringifyError(err error) string {
	if err == nil {
		return ""
	}

	text, ok := m.backend.StringifyError(err)
	if ok {
		return text
	}

	return Stringify(err)
}

// Dispose releases the machine. It is safe to call in any state, and more
// than once.
func (m *Machine[R]) Dispose() (err error) {
	if m.status == Disposed {
		return
	}

	if m.Verbose {
		log.Printf("emulator: %v: dispose", m.backend.Name())
	}

	m.regs = nil
	m.mem = nil
	m.hist = nil
	m.frames = nil
	m.program = nil
	m.lastErr = nil
	m.tape = io.Tape{}
	m.status = Disposed

	return
}

