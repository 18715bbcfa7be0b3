package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/asmemu/cpu"
)

func TestLoad(t *testing.T) {
	assert := assert.New(t)

	settings, err := Load(strings.NewReader(`
arch = "r32"
undo_history = 16
breakpoints = [0x1008, 4124]
language = "de"
verbose = true
`))
	assert.NoError(err)
	assert.Equal(Settings{
		Arch:        "r32",
		UndoHistory: 16,
		Limit:       1_000_000,
		Breakpoints: []uint64{0x1008, 4124},
		Language:    "de",
		Verbose:     true,
	}, settings)

	settings, err = Load(strings.NewReader(""))
	assert.NoError(err)
	assert.Equal(Default(), settings)
}

func TestLoadInvalid(t *testing.T) {
	assert := assert.New(t)

	table := []struct {
		text string
		err  error
	}{
		{`arch = "z80"`, cpu.ErrArchUnknown("z80")},
		{`undo_history = -1`, ErrUndoHistory},
		{`limit = -5`, ErrLimit},
		{`speed = 3`, ErrKeyUnknown("speed")},
	}

	for _, entry := range table {
		_, err := Load(strings.NewReader(entry.text))
		assert.ErrorIs(err, entry.err, entry.text)
	}

	_, err := Load(strings.NewReader(`arch = `))
	assert.Error(err)
}
