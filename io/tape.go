// Package io provides the word-oriented console tape used by programs for
// input and output.
//
// A Tape holds a scripted input sequence and captures everything written to
// it. Its read and write positions can be saved and restored, so executed
// input and output can be undone.
package io

import (
	"bufio"
	"fmt"
	"io"
	"slices"
	"strconv"
)

// Tape provides sequential word I/O.
type Tape struct {
	Input  []uint64 // Words available to read.
	Output []uint64 // Words written so far.

	ReadIndex int // Next word of Input to read.
}

// Rewind resets the read position and discards all output.
func (tc *Tape) Rewind() {
	tc.ReadIndex = 0
	tc.Output = tc.Output[:0]
}

// Receive reads the next input word.
func (tc *Tape) Receive() (value uint64, err error) {
	if tc.ReadIndex >= len(tc.Input) {
		err = ErrTapeEmpty
		return
	}

	value = tc.Input[tc.ReadIndex]
	tc.ReadIndex++
	return
}

// Send appends a word to the output.
func (tc *Tape) Send(value uint64) {
	tc.Output = append(tc.Output, value)
}

// Position returns the read index and the number of words written.
func (tc *Tape) Position() (read int, written int) {
	return tc.ReadIndex, len(tc.Output)
}

// Seek restores a position previously returned by Position.
func (tc *Tape) Seek(read int, written int) {
	tc.ReadIndex = read
	if written < len(tc.Output) {
		tc.Output = tc.Output[:written]
	}
}

// Captured returns a copy of the output.
func (tc *Tape) Captured() []uint64 {
	return slices.Clone(tc.Output)
}

// Unmarshal replaces the input with whitespace separated numbers from a
// reader. Numbers may use any Go integer prefix (0x, 0o, 0b).
func (tc *Tape) Unmarshal(file io.Reader) (err error) {
	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanWords)

	var input []uint64
	for scanner.Scan() {
		word := scanner.Text()
		var value uint64
		value, err = strconv.ParseUint(word, 0, 64)
		if err != nil {
			var signed int64
			signed, err = strconv.ParseInt(word, 0, 64)
			if err != nil {
				err = ErrTapeWord(word)
				return
			}
			value = uint64(signed)
		}
		input = append(input, value)
	}
	err = scanner.Err()
	if err != nil {
		return
	}

	tc.Input = input
	tc.ReadIndex = 0

	return
}

// Marshal writes the output, one word per line.
func (tc *Tape) Marshal(file io.Writer) (err error) {
	for _, value := range tc.Output {
		_, err = fmt.Fprintf(file, "%d\n", value)
		if err != nil {
			return
		}
	}

	return
}
