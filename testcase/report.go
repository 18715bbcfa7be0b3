package testcase

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/ezrec/asmemu/emulator"
)

// Report writes a summary of graded results, with expected-versus-actual
// diffs of every failed case, and returns the number of failures.
func Report[R ~string](w io.Writer, suite *Suite[R], results []*emulator.TestcaseResult[R]) (failed int, err error) {
	var text strings.Builder

	for n, result := range results {
		if result == nil {
			continue
		}

		if result.Passed {
			text.WriteString(f("PASS %v (%d instructions)\n", result.Name, result.Instructions))
			continue
		}

		failed++
		text.WriteString(f("FAIL %v: %v\n", result.Name, result.Status))
		if result.Err != nil {
			text.WriteString(f("  error: %v\n", emulator.Stringify(result.Err)))
		}

		for _, mismatch := range result.Mismatches {
			location := string(mismatch.Kind)
			if len(mismatch.Location) != 0 {
				location += " " + mismatch.Location
			}
			text.WriteString(f("  %v: expected %v, actual %v\n", location, mismatch.Expected, mismatch.Actual))
		}

		if n < len(suite.Cases) {
			text.WriteString(diff(suite.Cases[n], result))
		}
	}

	text.WriteString(f("%d of %d passed\n", len(results)-failed, len(results)))

	_, err = fmt.Fprint(w, text.String())
	return
}

// diff renders the register and output differences of a failed case.
func diff[R ~string](tc *emulator.Testcase[R], result *emulator.TestcaseResult[R]) string {
	var text strings.Builder

	if len(tc.Expect.Registers) != 0 {
		actual := map[R]uint64{}
		for name := range tc.Expect.Registers {
			value, ok := result.Registers[name]
			if ok {
				actual[name] = value
			}
		}
		if delta := cmp.Diff(tc.Expect.Registers, actual); len(delta) != 0 {
			text.WriteString(f("  registers (-expected +actual):\n"))
			text.WriteString(indent(delta))
		}
	}

	if tc.Expect.Output != nil {
		if delta := cmp.Diff(tc.Expect.Output, result.Output); len(delta) != 0 {
			text.WriteString(f("  output (-expected +actual):\n"))
			text.WriteString(indent(delta))
		}
	}

	return text.String()
}

func indent(text string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for n, line := range lines {
		lines[n] = "    " + line
	}
	return strings.Join(lines, "\n") + "\n"
}
