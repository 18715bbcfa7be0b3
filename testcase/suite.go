// Package testcase loads testcase suites and grades a program against them.
//
// A suite is a YAML document:
//
//	name: sum
//	arch: m24
//	limit: 1000
//	cases:
//	  - name: two words
//	    registers: {r0: 0x2000, r1: 2}
//	    memory:
//	      - address: 0x2000
//	        data: [0, 0, 0, 3, 0, 0, 0, 4]
//	    input: [1, 2]
//	    expect:
//	      registers: {r2: 7}
//	      output: [7]
//	      status: terminated
package testcase

import (
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ezrec/asmemu/emulator"
)

// Suite is a named set of testcases for one architecture.
type Suite[R ~string] struct {
	Name  string                  `yaml:"name"`
	Arch  string                  `yaml:"arch"`  // Empty for any architecture.
	Limit int                     `yaml:"limit"` // Halt limit; 0 uses the caller's.
	Cases []*emulator.Testcase[R] `yaml:"cases"`
}

// Load decodes a suite. Unknown keys are rejected, unnamed cases are
// named by position, and names must be unique.
func Load[R ~string](file io.Reader) (suite *Suite[R], err error) {
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)

	suite = &Suite[R]{}
	err = decoder.Decode(suite)
	if err != nil {
		suite = nil
		return
	}

	if len(suite.Cases) == 0 {
		suite = nil
		err = ErrSuiteEmpty
		return
	}

	names := map[string]bool{}
	for n, tc := range suite.Cases {
		if tc == nil {
			tc = &emulator.Testcase[R]{}
			suite.Cases[n] = tc
		}
		if len(tc.Name) == 0 {
			tc.Name = f("case %d", n+1)
		}
		if names[tc.Name] {
			suite = nil
			err = ErrCaseDuplicate(tc.Name)
			return
		}
		names[tc.Name] = true
	}

	return
}

// LoadFile decodes a suite from a file.
func LoadFile[R ~string](path string) (suite *Suite[R], err error) {
	inf, err := os.Open(path)
	if err != nil {
		return
	}
	defer inf.Close()

	return Load[R](inf)
}
