package emulator_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezrec/asmemu/cpu"
	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/register"
)

// A program that touches registers, memory, the stack and output.
var busyProgram = strings.Join([]string{
	"start:	move 0x2000 r1",
	"	move 5 r0",
	"loop:	move r0 [r1]",
	"	add 4 r1",
	"	push r0",
	"	call work",
	"	pop r2",
	"	sub 1 r0",
	"	bne loop",
	"	halt",
	"work:	xchg r2 r3",
	"	out r0",
	"	return",
}, "\n")

func newMachine(t *testing.T, arch *cpu.Arch, source string, history int) (m *emulator.Machine[cpu.Reg]) {
	m = emulator.NewMachine[cpu.Reg](cpu.NewCpu(arch))

	require.NoError(t, m.Compile(source))
	require.NoError(t, m.Initialize(history))

	return
}

// state is everything undo must restore.
type state struct {
	Registers map[cpu.Reg]uint64
	Tmp       uint64
	Memory    map[uint64][]byte
	Output    []uint64
	Frames    []emulator.StackFrame
}

func capture(m *emulator.Machine[cpu.Reg]) (st state) {
	st.Registers = m.RegisterValuesRecord()
	st.Tmp, _ = m.RegisterValue(cpu.TMP, 0)
	st.Memory = map[uint64][]byte{}
	for _, addr := range []uint64{0x2000, 0xFFFF00} {
		st.Memory[addr], _ = m.ReadMemoryBytes(addr, 0x100)
	}
	if output := m.Output(); len(output) > 0 {
		st.Output = output
	}
	if frames := m.CallStack(); len(frames) > 0 {
		st.Frames = frames
	}
	return
}

func TestLifecycle(t *testing.T) {
	assert := assert.New(t)

	m := emulator.NewMachine[cpu.Reg](cpu.NewCpu(&cpu.Arch24))
	assert.Equal(emulator.Uninitialized, m.Status())

	result := m.Step()
	assert.ErrorIs(result.Err, emulator.ErrNotInitialized)
	assert.ErrorIs(m.Undo(), emulator.ErrNotInitialized)
	assert.False(m.CanUndo())
	assert.Equal(emulator.Uninitialized, m.Run(10, nil))
	_, err := m.RegisterValue(cpu.R0, 0)
	assert.ErrorIs(err, emulator.ErrNotInitialized)
	assert.Nil(m.NextInstruction())
	assert.Nil(m.RegisterNames())

	// No program yet: initialize works, stepping does not.
	assert.NoError(m.Initialize(8))
	assert.Equal(emulator.Ready, m.Status())
	assert.ErrorIs(m.Step().Err, emulator.ErrNoProgram)

	assert.NoError(m.Compile("move 1 r0\nhalt"))
	assert.Equal(emulator.Ready, m.Status())
	assert.False(m.Step().Terminated)
	assert.Equal(emulator.Paused, m.Status())
	assert.True(m.Step().Terminated)
	assert.Equal(emulator.Terminated, m.Status())
	assert.True(m.HasTerminated())

	// A terminal machine stays terminal.
	result = m.Step()
	assert.True(result.Terminated)
	assert.NoError(result.Err)
	assert.Equal(emulator.Terminated, m.Run(10, nil))
	assert.Equal(2, m.InstructionCount())

	// Re-initialize restarts, discarding history.
	assert.NoError(m.Initialize(8))
	assert.Equal(emulator.Ready, m.Status())
	assert.False(m.CanUndo())
	assert.Equal(0, m.InstructionCount())

	assert.NoError(m.Dispose())
	assert.Equal(emulator.Disposed, m.Status())
	assert.NoError(m.Dispose())
	assert.ErrorIs(m.Step().Err, emulator.ErrDisposed)
	assert.ErrorIs(m.Undo(), emulator.ErrDisposed)
	assert.ErrorIs(m.Initialize(8), emulator.ErrDisposed)
	assert.ErrorIs(m.Compile("halt"), emulator.ErrDisposed)
	assert.ErrorIs(m.WriteMemoryBytes(0, []byte{1}), emulator.ErrDisposed)
	assert.Equal(emulator.Disposed, m.Run(10, nil))
}

func TestCompileFailure(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "move 7 r0\nhalt", 8)
	m.Step()
	before := capture(m)

	err := m.Compile("move 1\nbogus r0\n")
	var compile *emulator.ErrCompile
	if assert.True(errors.As(err, &compile)) {
		assert.Equal(2, len(compile.Errors))
		assert.Equal("raw", compile.Errors[0].Type)
		assert.Equal(1, compile.Errors[0].LineNo)
		assert.Equal(2, compile.Errors[1].LineNo)
		assert.Contains(compile.Report, "bogus r0")
	}

	// Nothing changed.
	assert.Equal(before, capture(m))
	assert.Equal(emulator.Paused, m.Status())
	assert.True(m.CanUndo())

	// A successful compile restarts with the new program.
	assert.NoError(m.Compile("move 9 r1\nhalt"))
	assert.Equal(emulator.Ready, m.Status())
	assert.False(m.CanUndo())
	r0, _ := m.RegisterValue(cpu.R0, 0)
	assert.Equal(uint64(0), r0)
}

func TestCheckCode(t *testing.T) {
	assert := assert.New(t)

	m := emulator.NewMachine[cpu.Reg](cpu.NewCpu(&cpu.Arch32))

	diags := m.CheckCode("move 1 r0\nfoo bar\n.macro\n")
	assert.NotEmpty(diags)
	for _, diag := range diags {
		assert.Equal("raw", diag.Type)
		assert.NotEmpty(diag.Message)
	}

	assert.Empty(m.CheckCode(busyProgram))
	assert.Empty(m.CheckCode(""))

	// Linting never loads the program.
	assert.Nil(m.Program())
	assert.Equal(emulator.Uninitialized, m.Status())
}

func TestStepUndoRestores(t *testing.T) {
	assert := assert.New(t)

	for _, arch := range []*cpu.Arch{&cpu.Arch24, &cpu.Arch32} {
		m := newMachine(t, arch, busyProgram, 1000)
		m.SetInput([]uint64{1, 2})

		for n := range 40 {
			initial := capture(m)

			for range n {
				m.Step()
			}
			for range n {
				assert.NoError(m.Undo())
			}

			assert.Equal(initial, capture(m), "%v: %d steps", arch.Name, n)
			assert.False(m.CanUndo())
			assert.Equal(0, m.InstructionCount())
		}
	}
}

func TestHistoryCapacity(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "loop: add 1 r0\njump loop", 3)

	for range 10 {
		m.Step()
	}

	undone := 0
	for m.CanUndo() {
		assert.NoError(m.Undo())
		undone++
	}
	assert.Equal(3, undone)
	assert.Equal(7, m.InstructionCount())

	// The oldest steps are gone; undo is a no-op.
	r0, _ := m.RegisterValue(cpu.R0, 0)
	assert.NoError(m.Undo())
	after, _ := m.RegisterValue(cpu.R0, 0)
	assert.Equal(r0, after)

	// Capacity 0 disables history.
	m = newMachine(t, &cpu.Arch24, "loop: add 1 r0\njump loop", 0)
	m.Step()
	assert.False(m.CanUndo())
	assert.NoError(m.Undo())
	r0, _ = m.RegisterValue(cpu.R0, 0)
	assert.Equal(uint64(1), r0)
}

func TestRunLimit(t *testing.T) {
	assert := assert.New(t)

	for limit := 1; limit < 60; limit += 7 {
		ran := newMachine(t, &cpu.Arch24, busyProgram, 100)
		stepped := newMachine(t, &cpu.Arch24, busyProgram, 100)

		status := ran.Run(limit, nil)
		for range limit {
			if stepped.Step().Terminated {
				break
			}
		}

		assert.Equal(capture(stepped), capture(ran), "limit %d", limit)
		assert.Equal(stepped.InstructionCount(), ran.InstructionCount())

		if ran.InstructionCount() == limit {
			assert.Equal(emulator.TerminatedByLimit, status)
			assert.Equal(emulator.FaultExecutionLimit, emulator.KindOf(ran.LastError()))
		} else {
			assert.Equal(emulator.Terminated, status)
			assert.Less(ran.InstructionCount(), limit)
		}
	}
}

func TestRunInfiniteLoop(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "loop: add 1 r0\njump loop", 100)

	status := m.Run(5, nil)
	assert.Equal(emulator.TerminatedByLimit, status)
	assert.True(m.HasTerminated())
	assert.Equal(5, m.InstructionCount())

	var limit *emulator.ErrExecutionLimit
	if assert.True(errors.As(m.LastError(), &limit)) {
		assert.Equal(5, limit.Count)
	}
	assert.Equal("execution limit reached: execution limit of 5 instructions reached", m.StringifyError(m.LastError()))

	// Terminal: no further execution.
	assert.Equal(emulator.TerminatedByLimit, m.Run(5, nil))
	assert.True(m.Step().Terminated)
	assert.Equal(5, m.InstructionCount())

	// Each retired step is individually undoable.
	for n := 4; n >= 0; n-- {
		assert.NoError(m.Undo())
		assert.Equal(emulator.Paused, m.Status())
		assert.Equal(n, m.InstructionCount())
	}
	assert.False(m.CanUndo())
	r0, _ := m.RegisterValue(cpu.R0, 0)
	assert.Equal(uint64(0), r0)
}

func TestRunBatch(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, busyProgram, 0)

	batches := 0
	for {
		status := m.RunBatch(4, nil)
		batches++
		if status != emulator.Paused {
			assert.Equal(emulator.Terminated, status)
			break
		}
		assert.Equal(batches*4, m.InstructionCount())
	}

	whole := newMachine(t, &cpu.Arch24, busyProgram, 0)
	assert.Equal(emulator.Terminated, whole.Run(0, nil))
	assert.Equal(capture(whole), capture(m))
	assert.Equal([]uint64{5, 4, 3, 2, 1}, m.Output())
}

func TestBreakpoints(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, busyProgram, 100)
	prog := m.Program()
	loop := prog.Labels["loop"]
	work := prog.Labels["work"]

	// Fires on arrival, before executing.
	status := m.Run(0, []uint64{work})
	assert.Equal(emulator.PausedAtBreakpoint, status)
	assert.Equal(work, m.Pc())
	assert.Equal(6, m.InstructionCount())
	assert.False(m.HasTerminated())
	assert.Empty(m.Output())

	// Resuming executes the instruction at the breakpoint.
	status = m.Run(0, []uint64{work, loop})
	assert.Equal(emulator.PausedAtBreakpoint, status)
	assert.Equal(loop, m.Pc())
	assert.Equal([]uint64{5}, m.Output())

	// The limit wins at the same boundary, and counts every run.
	count := m.InstructionCount()
	status = m.Run(10, []uint64{loop})
	assert.Equal(emulator.TerminatedByLimit, status)
	assert.Equal(count+10, m.InstructionCount())
	assert.Equal(loop, m.Pc())
	var limit *emulator.ErrExecutionLimit
	if assert.ErrorAs(m.LastError(), &limit) {
		assert.Equal(count+10, limit.Count)
	}

	// A breakpoint never reached.
	m = newMachine(t, &cpu.Arch24, busyProgram, 100)
	assert.Equal(emulator.Terminated, m.Run(0, []uint64{0x10000}))

	// A breakpoint at the entry fires before the first instruction.
	m = newMachine(t, &cpu.Arch24, busyProgram, 100)
	assert.Equal(emulator.PausedAtBreakpoint, m.Run(0, []uint64{prog.Entry}))
	assert.Equal(prog.Entry, m.Pc())
	assert.Equal(0, m.InstructionCount())
	assert.Equal(emulator.Terminated, m.Run(0, []uint64{prog.Entry}))
}

func TestBreakpointsArrival(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, busyProgram, 100)
	prog := m.Program()
	loop := prog.Labels["loop"]
	work := prog.Labels["work"]

	assert.Equal(emulator.PausedAtBreakpoint, m.Run(0, []uint64{work}))
	assert.Equal(6, m.InstructionCount())

	// Undo back onto the breakpoint: arriving again fires again.
	m.Step()
	assert.NoError(m.Undo())
	assert.Equal(emulator.Paused, m.Status())
	assert.Equal(emulator.PausedAtBreakpoint, m.Run(0, []uint64{work}))
	assert.Equal(6, m.InstructionCount())

	// Resuming from that breakpoint makes progress.
	assert.Equal(emulator.PausedAtBreakpoint, m.Run(0, []uint64{work, loop}))
	assert.Equal(loop, m.Pc())
	assert.Equal(12, m.InstructionCount())

	// The debugger moved pc onto another breakpoint.
	assert.NoError(m.SetRegisterValue(cpu.PC, work, 0))
	assert.Equal(emulator.PausedAtBreakpoint, m.Run(0, []uint64{work}))
	assert.Equal(12, m.InstructionCount())
	assert.Equal(work, m.Pc())
}

func TestDebuggerWrites(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, busyProgram, 100)

	m.Step()
	assert.NoError(m.SetRegisterValue(cpu.R5, 42, 0))
	assert.NoError(m.WriteMemoryBytes(0x3000, []byte{1, 2, 3}))
	assert.NoError(m.Undo())

	r5, _ := m.RegisterValue(cpu.R5, 0)
	assert.Equal(uint64(42), r5)
	r1, _ := m.RegisterValue(cpu.R1, 0)
	assert.Equal(uint64(0), r1)
	data, _ := m.ReadMemoryBytes(0x3000, 3)
	assert.Equal([]byte{1, 2, 3}, data)
	assert.False(m.CanUndo())

	// Sized debugger writes keep the upper bits.
	assert.NoError(m.SetRegisterValue(cpu.R5, 0x1FF, register.Byte))
	r5, _ = m.RegisterValue(cpu.R5, 0)
	assert.Equal(uint64(0xFF), r5)

	// Hidden registers are addressable, not enumerated.
	assert.NoError(m.SetRegisterValue(cpu.TMP, 7, 0))
	tmp, err := m.RegisterValue(cpu.TMP, 0)
	assert.NoError(err)
	assert.Equal(uint64(7), tmp)
	assert.NotContains(m.RegisterNames(), cpu.TMP)
	_, ok := m.RegisterValuesRecord()[cpu.TMP]
	assert.False(ok)
	assert.Equal(len(m.RegisterNames()), len(m.RegisterValues()))

	_, err = m.RegisterValue(cpu.Reg("r99"), 0)
	assert.Error(err)
}

func TestMemoryPagesUndoDepth(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "move 1 [0x5000]\nmove 2 [0x2000]\nhalt", 2)
	assert.Empty(m.MemoryPages())
	assert.Equal(0, m.UndoDepth())

	assert.Equal(emulator.Terminated, m.Run(0, nil))
	assert.Equal([]uint64{0x2000, 0x5000}, m.MemoryPages())
	assert.Equal(2, m.UndoDepth())

	assert.NoError(m.Undo())
	assert.Equal(1, m.UndoDepth())

	assert.NoError(m.Dispose())
	assert.Nil(m.MemoryPages())
	assert.Equal(0, m.UndoDepth())
}

func TestOutOfBounds(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "halt", 8)

	assert.NoError(m.WriteMemoryBytes(0xFFFFFF, []byte{0x5A}))
	data, err := m.ReadMemoryBytes(0xFFFFFF, 1)
	assert.NoError(err)
	assert.Equal([]byte{0x5A}, data)

	var bounds *memory.ErrOutOfBounds
	err = m.WriteMemoryBytes(0x1000000, []byte{1})
	assert.True(errors.As(err, &bounds))
	err = m.WriteMemoryBytes(0xFFFFFF, []byte{1, 2})
	assert.True(errors.As(err, &bounds))
	_, err = m.ReadMemoryBytes(0xFFFFFE, 3)
	assert.True(errors.As(err, &bounds))
	assert.Equal(emulator.FaultOutOfBounds, emulator.KindOf(err))

	// Nothing wrapped to address 0.
	data, _ = m.ReadMemoryBytes(0, 1)
	assert.Equal([]byte{0xFF}, data)

	m = newMachine(t, &cpu.Arch32, "halt", 8)
	assert.NoError(m.WriteMemoryBytes(0xFFFFFFFF, []byte{1}))
	_, err = m.ReadMemoryBytes(0x100000000, 1)
	assert.True(errors.As(err, &bounds))
	_, err = m.ReadMemoryBytes(0xFFFFFFFF_FFFFFFFF, 2)
	assert.True(errors.As(err, &bounds))
}

func TestUndoFromFault(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "move 3 r0\nloop: sub 1 r0\ndiv r0 r1\njump loop", 100)

	status := m.Run(0, nil)
	assert.Equal(emulator.Faulted, status)
	assert.Equal(emulator.FaultDivisionByZero, emulator.KindOf(m.LastError()))

	var rt *emulator.ErrRuntime
	if assert.True(errors.As(m.LastError(), &rt)) {
		assert.Equal(3, rt.LineNo)
		assert.Equal(uint64(0x408), rt.Address)
	}
	assert.Equal("line 3: division by zero: division by zero at 0x408", m.StringifyError(m.LastError()))

	result := m.Step()
	assert.True(result.Terminated)
	assert.Equal(m.LastError(), result.Err)

	// Undo leaves the terminal state.
	assert.NoError(m.Undo())
	assert.Equal(emulator.Paused, m.Status())
	assert.NoError(m.LastError())
	assert.Equal(uint64(0x404), m.Pc())

	assert.NoError(m.SetRegisterValue(cpu.R0, 10, 0))
	result = m.Step()
	assert.False(result.Terminated)
	assert.NoError(result.Err)
}

func TestInstructions(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch24, "move 1 r0\n\n.byte 1 2 3 4\nhalt\n", 8)

	ins := m.NextInstruction()
	if assert.NotNil(ins) {
		assert.Equal(uint64(0x400), ins.Address)
		assert.Equal(1, ins.LineNo)
		assert.Equal("move 1 r0", ins.Text)
	}

	ins = m.InstructionAt(0x408)
	if assert.NotNil(ins) {
		assert.Equal(4, ins.LineNo)
	}
	assert.Nil(m.InstructionAt(0x404))
	assert.Nil(m.InstructionAt(0x402))

	assert.Equal([]emulator.Decoration{
		{LineNo: 1, Start: 0x400, End: 0x404},
		{LineNo: 4, Start: 0x408, End: 0x40C},
	}, m.Decorations())

	data, _ := m.ReadMemoryBytes(0x404, 4)
	assert.Equal([]byte{1, 2, 3, 4}, data)
}

func TestInput(t *testing.T) {
	assert := assert.New(t)

	m := newMachine(t, &cpu.Arch32, "in r0\nin r1\nout r1\nout r0", 8)

	input := []uint64{10, 20}
	m.SetInput(input)
	input[0] = 99

	assert.Equal(emulator.Terminated, m.Run(0, nil))
	assert.Equal([]uint64{20, 10}, m.Output())

	// Input survives re-initialize, output does not.
	assert.NoError(m.Initialize(8))
	assert.Empty(m.Output())
	assert.Equal(emulator.Terminated, m.Run(0, nil))
	assert.Equal([]uint64{20, 10}, m.Output())
}

func TestRunTestcase(t *testing.T) {
	assert := assert.New(t)

	// Sum the r1 words at r0 into r2, and report it.
	source := strings.Join([]string{
		"loop:	cmp 0 r1",
		"	beq done",
		"	add [r0] r2",
		"	add 4 r0",
		"	sub 1 r1",
		"	jump loop",
		"done:	out r2",
		"	move r2 [0x3000]",
	}, "\n")

	m := newMachine(t, &cpu.Arch24, source, 16)

	tc := &emulator.Testcase[cpu.Reg]{
		Name:      "sum",
		Registers: map[cpu.Reg]uint64{cpu.R0: 0x2000, cpu.R1: 2},
		Memory: []emulator.MemoryBlock{
			{Address: 0x2000, Data: []byte{0, 0, 0, 3, 0, 0, 0, 4}},
		},
		Expect: emulator.Expectation[cpu.Reg]{
			Registers: map[cpu.Reg]uint64{cpu.R2: 7, cpu.R1: 0},
			Memory:    []emulator.MemoryBlock{{Address: 0x3000, Data: []byte{0, 0, 0, 7}}},
			Output:    []uint64{7},
		},
	}

	result := m.RunTestcase(tc, 100)
	assert.True(result.Passed, result.Mismatches)
	assert.False(m.CanUndo())
	assert.Equal("sum", result.Name)
	assert.Equal(emulator.Terminated, result.Status)
	assert.Equal([]uint64{7}, result.Output)
	assert.Equal(uint64(7), result.Registers[cpu.R2])
	_, ok := result.Registers[cpu.TMP]
	assert.True(ok)
	assert.NoError(result.Err)

	// Same run rules as interactive use: the limit applies.
	result = m.RunTestcase(tc, 5)
	assert.False(result.Passed)
	assert.Equal(emulator.TerminatedByLimit, result.Status)
	assert.Equal(5, result.Instructions)
	assert.Equal(emulator.FaultExecutionLimit, emulator.KindOf(result.Err))

	// Mismatches are itemized.
	tc.Expect.Registers[cpu.R2] = 8
	tc.Expect.Output = []uint64{8}
	result = m.RunTestcase(tc, 100)
	assert.False(result.Passed)
	assert.Equal([]emulator.Mismatch{
		{Kind: emulator.MismatchRegister, Location: "r2", Expected: "0x8", Actual: "0x7"},
		{Kind: emulator.MismatchOutput, Expected: "[8]", Actual: "[7]"},
	}, result.Mismatches)

	// An expected limit is a pass.
	loop := newMachine(t, &cpu.Arch24, "loop: jump loop", 0)
	result = loop.RunTestcase(&emulator.Testcase[cpu.Reg]{
		Expect: emulator.Expectation[cpu.Reg]{Status: emulator.TerminatedByLimit},
	}, 10)
	assert.True(result.Passed)

	// Faults are reported, not returned.
	fault := newMachine(t, &cpu.Arch24, "move 0x1000000 r1\nmove [r1] r0", 0)
	result = fault.RunTestcase(&emulator.Testcase[cpu.Reg]{Name: "oob"}, 10)
	assert.False(result.Passed)
	assert.Equal(emulator.Faulted, result.Status)
	assert.Equal(emulator.FaultOutOfBounds, emulator.KindOf(result.Err))
	assert.Equal(emulator.MismatchStatus, result.Mismatches[0].Kind)
}
