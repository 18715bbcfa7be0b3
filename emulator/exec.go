package emulator

import (
	"github.com/ezrec/asmemu/register"
)

// RegisterChange records the prior value of a register.
type RegisterChange[R ~string] struct {
	Name  R
	Prior uint64
}

// MemoryChange records the prior contents of a memory range.
type MemoryChange struct {
	Address uint64
	Prior   []byte
}

// FrameChange records a call stack push or pop.
type FrameChange struct {
	Pushed bool
	Frame  StackFrame
}

// Step is the reversible record of one retired instruction.
type Step[R ~string] struct {
	Pc        uint64              // Program counter before execution.
	Registers []RegisterChange[R] // First prior value of each register written.
	Memory    []MemoryChange      // Prior bytes, in write order.
	Frames    []FrameChange       // Call stack operations, in order.
	Input     int                 // Tape read position before execution.
	Output    int                 // Tape output length before execution.
}

// Exec is the view of the machine handed to a backend while it executes
// one instruction. Every write made through it is recorded for undo.
type Exec[R ~string] struct {
	m       *Machine[R]
	step    *Step[R]
	written map[R]bool
}

func newExec[R ~string](m *Machine[R], pc uint64) (x *Exec[R]) {
	x = &Exec[R]{
		m:       m,
		step:    &Step[R]{Pc: pc},
		written: map[R]bool{},
	}
	x.step.Input, x.step.Output = m.tape.Position()
	return
}

// Pc is the address of the executing instruction.
func (x *Exec[R]) Pc() uint64 {
	return x.step.Pc
}

// Size is the system word size.
func (x *Exec[R]) Size() register.Size {
	return x.m.regs.Size()
}

// Program being executed.
func (x *Exec[R]) Program() *Program {
	return x.m.program
}

// Register reads the low 'size' bytes of a register; 0 reads it all.
func (x *Exec[R]) Register(name R, size register.Size) (uint64, error) {
	return x.m.regs.Get(name, size)
}

// SetRegister writes the low 'size' bytes of a register; 0 writes it all.
func (x *Exec[R]) SetRegister(name R, value uint64, size register.Size) (err error) {
	prior, err := x.m.regs.Get(name, 0)
	if err != nil {
		return
	}

	err = x.m.regs.Set(name, value, size)
	if err != nil {
		return
	}

	if !x.written[name] {
		x.written[name] = true
		x.step.Registers = append(x.step.Registers, RegisterChange[R]{Name: name, Prior: prior})
	}
	return
}

// Read loads a 'size' byte integer from memory.
func (x *Exec[R]) Read(address uint64, size register.Size) (uint64, error) {
	return x.m.mem.ReadUint(address, size)
}

// Write stores the low 'size' bytes of value to memory.
func (x *Exec[R]) Write(address uint64, value uint64, size register.Size) (err error) {
	prior, err := x.m.mem.Read(address, int(size))
	if err != nil {
		return
	}

	err = x.m.mem.WriteUint(address, value, size)
	if err != nil {
		return
	}

	x.step.Memory = append(x.step.Memory, MemoryChange{Address: address, Prior: prior})
	return
}

// Receive reads the next word of program input.
func (x *Exec[R]) Receive() (uint64, error) {
	return x.m.tape.Receive()
}

// Send writes a word of program output.
func (x *Exec[R]) Send(value uint64) {
	x.m.tape.Send(value)
}

// PushFrame records a call.
func (x *Exec[R]) PushFrame(frame StackFrame) {
	x.m.frames = append(x.m.frames, frame)
	x.step.Frames = append(x.step.Frames, FrameChange{Pushed: true, Frame: frame})
}

// PopFrame records a return. ok is false if the call stack was empty.
func (x *Exec[R]) PopFrame() (frame StackFrame, ok bool) {
	if len(x.m.frames) == 0 {
		return
	}

	last := len(x.m.frames) - 1
	frame, ok = x.m.frames[last], true
	x.m.frames = x.m.frames[:last]
	x.step.Frames = append(x.step.Frames, FrameChange{Frame: frame})
	return
}

// revert undoes everything recorded so far.
func (x *Exec[R]) revert() {
	x.m.revert(x.step)
}
