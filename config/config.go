// Package config holds the command line settings, loadable from TOML.
package config

import (
	"errors"
	"io"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/ezrec/asmemu/cpu"
	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	ErrUndoHistory = errors.New(f("undo_history must not be negative"))
	ErrLimit       = errors.New(f("limit must not be negative"))
)

type ErrKeyUnknown string

func (err ErrKeyUnknown) Error() string {
	return f("configuration key '%v' unknown", string(err))
}

// Settings for an emulator session.
type Settings struct {
	Arch        string   `toml:"arch"`         // Architecture name.
	UndoHistory int      `toml:"undo_history"` // Undo capacity; 0 disables.
	Limit       int      `toml:"limit"`        // Run limit; 0 is unlimited.
	Breakpoints []uint64 `toml:"breakpoints"`
	Language    string   `toml:"language"` // Message language, ie "en-US".
	Verbose     bool     `toml:"verbose"`
}

// Default settings.
func Default() Settings {
	return Settings{
		Arch:        "m24",
		UndoHistory: 1000,
		Limit:       1_000_000,
	}
}

// Load decodes settings over the defaults.
func Load(file io.Reader) (settings Settings, err error) {
	settings = Default()

	meta, err := toml.NewDecoder(file).Decode(&settings)
	if err != nil {
		return
	}

	undecoded := meta.Undecoded()
	if len(undecoded) != 0 {
		err = ErrKeyUnknown(undecoded[0].String())
		return
	}

	err = settings.Validate()
	return
}

// LoadFile decodes settings from a file.
func LoadFile(path string) (settings Settings, err error) {
	inf, err := os.Open(path)
	if err != nil {
		return
	}
	defer inf.Close()

	return Load(inf)
}

// Validate checks every setting.
func (settings *Settings) Validate() (err error) {
	_, err = cpu.LookupArch(settings.Arch)
	if err != nil {
		return
	}

	if settings.UndoHistory < 0 {
		err = ErrUndoHistory
		return
	}

	if settings.Limit < 0 {
		err = ErrLimit
		return
	}

	return
}
