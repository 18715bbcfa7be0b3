package emulator

import (
	"bytes"
	"fmt"
	"maps"
	"slices"
)

// Expectation is the required final state of a testcase.
type Expectation[R ~string] struct {
	Registers map[R]uint64  `yaml:"registers"`
	Memory    []MemoryBlock `yaml:"memory"`
	Output    []uint64      `yaml:"output"` // Checked when not nil.
	Status    Status        `yaml:"status"` // Defaults to Terminated.
}

// Testcase is a scripted scenario: preset state, input, and expectations.
type Testcase[R ~string] struct {
	Name      string         `yaml:"name"`
	Registers map[R]uint64   `yaml:"registers"`
	Memory    []MemoryBlock  `yaml:"memory"`
	Input     []uint64       `yaml:"input"`
	Expect    Expectation[R] `yaml:"expect"`
}

// MismatchKind is the part of the state that differed.
type MismatchKind string

const (
	MismatchStatus   = MismatchKind("status")
	MismatchRegister = MismatchKind("register")
	MismatchMemory   = MismatchKind("memory")
	MismatchOutput   = MismatchKind("output")
)

// Mismatch is one expected-versus-actual difference.
type Mismatch struct {
	Kind     MismatchKind
	Location string
	Expected string
	Actual   string
}

// TestcaseResult is the graded outcome of a testcase.
type TestcaseResult[R ~string] struct {
	Name         string
	Passed       bool
	Status       Status
	Instructions int
	Output       []uint64
	Registers    map[R]uint64 // Final registers, hidden ones included.
	Err          error        // Fault or lifecycle error, if any.
	Mismatches   []Mismatch
}

// RunTestcase re-initializes the machine without undo history, applies the
// testcase's preset state, runs it under the same rules as Run, and compares
// the outcome.
func (m *Machine[R]) RunTestcase(tc *Testcase[R], haltLimit int) (result *TestcaseResult[R]) {
	result = &TestcaseResult[R]{Name: tc.Name}

	if m.program == nil {
		result.Err = ErrNoProgram
		return
	}

	m.SetInput(tc.Input)

	// Testcases run without undo history.
	historySize := m.historySize
	err := m.Initialize(0)
	m.historySize = historySize
	if err != nil {
		result.Err = err
		return
	}

	for _, name := range slices.Sorted(maps.Keys(tc.Registers)) {
		err = m.SetRegisterValue(name, tc.Registers[name], 0)
		if err != nil {
			result.Err = err
			return
		}
	}

	for _, block := range tc.Memory {
		err = m.WriteMemoryBytes(block.Address, block.Data)
		if err != nil {
			result.Err = err
			return
		}
	}

	result.Status = m.Run(haltLimit, nil)
	result.Instructions = m.count
	result.Output = m.Output()
	result.Registers = m.regs.Snapshot()
	result.Err = m.lastErr

	want := tc.Expect.Status
	if want == Uninitialized {
		want = Terminated
	}
	if want != result.Status {
		result.Mismatches = append(result.Mismatches, Mismatch{
			Kind:     MismatchStatus,
			Expected: want.String(),
			Actual:   result.Status.String(),
		})
	}

	for _, name := range slices.Sorted(maps.Keys(tc.Expect.Registers)) {
		expected := tc.Expect.Registers[name]
		mismatch := Mismatch{
			Kind:     MismatchRegister,
			Location: string(name),
			Expected: fmt.Sprintf("0x%x", expected),
		}
		actual, err := m.RegisterValue(name, 0)
		switch {
		case err != nil:
			mismatch.Actual = err.Error()
		case actual != expected:
			mismatch.Actual = fmt.Sprintf("0x%x", actual)
		default:
			continue
		}
		result.Mismatches = append(result.Mismatches, mismatch)
	}

	for _, block := range tc.Expect.Memory {
		mismatch := Mismatch{
			Kind:     MismatchMemory,
			Location: fmt.Sprintf("0x%x", block.Address),
			Expected: fmt.Sprintf("% x", block.Data),
		}
		actual, err := m.ReadMemoryBytes(block.Address, len(block.Data))
		switch {
		case err != nil:
			mismatch.Actual = err.Error()
		case !bytes.Equal(actual, block.Data):
			mismatch.Actual = fmt.Sprintf("% x", actual)
		default:
			continue
		}
		result.Mismatches = append(result.Mismatches, mismatch)
	}

	if tc.Expect.Output != nil && !slices.Equal(tc.Expect.Output, result.Output) {
		result.Mismatches = append(result.Mismatches, Mismatch{
			Kind:     MismatchOutput,
			Expected: fmt.Sprint(tc.Expect.Output),
			Actual:   fmt.Sprint(result.Output),
		})
	}

	result.Passed = len(result.Mismatches) == 0
	return
}
