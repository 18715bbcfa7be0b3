package emulator

import (
	"log"
	"slices"
)

// execute runs the instruction at the program counter. A faulting
// instruction is rolled back, and leaves no Step behind.
func (m *Machine[R]) execute() (terminated bool, err error) {
	pc := m.Pc()

	ins := m.program.At(pc)
	if ins == nil {
		if pc == m.program.End {
			// Fell off the end of the program.
			terminated = true
			return
		}
		err = &ErrRuntime{LineNo: m.program.LineAt(pc), Address: pc, Err: &ErrUnimplemented{Address: pc}}
		return
	}

	if m.Verbose {
		log.Printf("emulator: %04x: %v", pc, ins.Text)
	}

	x := newExec(m, pc)

	defer func() {
		if r := recover(); r != nil {
			err = &ErrRaw{Message: f("unreachable: %v", r)}
		}
		if err != nil {
			x.revert()
			err = &ErrRuntime{LineNo: ins.LineNo, Address: pc, Err: err}
			return
		}
		m.hist.Push(x.step)
		m.count++
	}()

	terminated, err = m.backend.Execute(x, ins)
	return
}

// Step executes exactly one instruction.
func (m *Machine[R]) Step() (result StepResult) {
	err := m.usable()
	if err != nil {
		result.Err = err
		return
	}

	if m.status.Terminal() {
		result.Terminated = true
		result.Err = m.lastErr
		return
	}

	if m.program == nil {
		result.Err = ErrNoProgram
		return
	}

	m.status = Running
	terminated, err := m.execute()

	switch {
	case err != nil:
		m.status = Faulted
		m.lastErr = err
		result.Terminated = true
		result.Err = err
	case terminated:
		m.status = Terminated
		result.Terminated = true
	default:
		m.status = Paused
	}

	return
}

// Run steps until a breakpoint is reached, 'limit' instructions have
// retired, the program terminates, or a fault occurs. A limit of 0 is
// unlimited. Reaching the limit is terminal.
func (m *Machine[R]) Run(limit int, breakpoints []uint64) Status {
	return m.run(limit, breakpoints, TerminatedByLimit)
}

// RunBatch is Run, except that exhausting the batch leaves the machine
// Paused, so a host can run a long program in slices.
func (m *Machine[R]) RunBatch(batch int, breakpoints []uint64) Status {
	return m.run(batch, breakpoints, Paused)
}

func (m *Machine[R]) run(limit int, breakpoints []uint64, exhausted Status) Status {
	if m.usable() != nil || m.status.Terminal() || m.program == nil {
		return m.status
	}

	// Resuming from a breakpoint executes the instruction it stopped at.
	resume := m.status == PausedAtBreakpoint

	for retired := 0; ; retired++ {
		// The limit takes precedence over a breakpoint at the same boundary.
		if limit > 0 && retired >= limit {
			m.status = exhausted
			if exhausted == TerminatedByLimit {
				m.lastErr = &ErrExecutionLimit{Count: m.count}
			}
			break
		}

		// Breakpoints fire on arrival, before executing.
		pc := m.Pc()
		if !(resume && retired == 0 && pc == m.pausedAt) && slices.Contains(breakpoints, pc) {
			m.status = PausedAtBreakpoint
			m.pausedAt = pc
			break
		}

		result := m.Step()
		if result.Terminated || result.Err != nil {
			break
		}
	}

	return m.status
}

// CanUndo is true if there is an executed instruction to undo.
func (m *Machine[R]) CanUndo() bool {
	return m.usable() == nil && m.hist != nil && !m.hist.Empty()
}

// Undo reverts the most recently executed instruction, and pauses.
// Undo with nothing to undo does nothing.
func (m *Machine[R]) Undo() (err error) {
	err = m.usable()
	if err != nil {
		return
	}

	if m.status == Running {
		err = ErrRunning
		return
	}

	step, ok := m.hist.Pop()
	if !ok {
		return
	}

	m.revert(step)
	m.count--
	m.lastErr = nil
	m.status = Paused

	return
}

// revert restores the state recorded in a step.
func (m *Machine[R]) revert(step *Step[R]) {
	for n := len(step.Memory) - 1; n >= 0; n-- {
		change := step.Memory[n]
		// Prior bytes were read from the same in-range window.
		_ = m.mem.Write(change.Address, change.Prior)
	}

	for _, change := range step.Registers {
		_ = m.regs.Set(change.Name, change.Prior, 0)
	}

	for n := len(step.Frames) - 1; n >= 0; n-- {
		change := step.Frames[n]
		if change.Pushed {
			m.frames = m.frames[:len(m.frames)-1]
		} else {
			m.frames = append(m.frames, change.Frame)
		}
	}

	m.tape.Seek(step.Input, step.Output)
}
