// Copyright 2025, Jason S. McMullan <jason.mcmullan@gmail.com>

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/k0kubun/pp/v3"

	"github.com/ezrec/asmemu/config"
	"github.com/ezrec/asmemu/cpu"
	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/io"
	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/testcase"
	"github.com/ezrec/asmemu/translate"
)

// session is one command line invocation.
type session struct {
	config.Settings

	Defines   map[string]string
	Check     bool
	Trace     bool
	Testcases string
	Input     string

	Source string
	Path   string

	machine *emulator.Machine[cpu.Reg]
	backend *cpu.Cpu
}

func main() {
	var configPath string
	var breakpoints string

	ses := &session{Settings: config.Default(), Defines: map[string]string{}}

	flag.StringVar(&configPath, "config", "", "TOML settings file")
	flag.StringVar(&ses.Arch, "arch", ses.Arch, f("Architecture (%v)", strings.Join(cpu.ArchNames(), ", ")))
	flag.IntVar(&ses.Limit, "limit", ses.Limit, "Instruction limit, 0 for none")
	flag.IntVar(&ses.UndoHistory, "undo", ses.UndoHistory, "Undo history size")
	flag.StringVar(&breakpoints, "break", "", "Comma separated breakpoint addresses or labels")
	flag.Func("D", "Predefine an equate, NAME=VALUE", func(text string) error {
		name, value, ok := strings.Cut(text, "=")
		if !ok || len(name) == 0 {
			return ErrDefine(text)
		}
		ses.Defines[name] = value
		return nil
	})
	flag.BoolVar(&ses.Check, "check", false, "Check the program, do not execute")
	flag.BoolVar(&ses.Trace, "trace", false, "Trace every instruction")
	flag.StringVar(&ses.Testcases, "testcases", "", ".yaml testcase suite to grade")
	flag.StringVar(&ses.Input, "i", "", "Tape input, '-' for stdin")
	flag.StringVar(&ses.Language, "lang", ses.Language, "Message language")
	flag.BoolVar(&ses.Verbose, "v", false, "Verbose mode")

	flag.Parse()

	if flag.NArg() != 1 {
		log.Fatalf("%v: expected one program, got %v", os.Args[0], flag.Args())
	}
	ses.Path = flag.Arg(0)

	if len(configPath) != 0 {
		settings, err := config.LoadFile(configPath)
		if err != nil {
			log.Fatalf("%v: %v", configPath, err)
		}
		// Flags given on the command line win.
		flag.Visit(func(fl *flag.Flag) {
			switch fl.Name {
			case "arch":
				settings.Arch = ses.Arch
			case "limit":
				settings.Limit = ses.Limit
			case "undo":
				settings.UndoHistory = ses.UndoHistory
			case "lang":
				settings.Language = ses.Language
			case "v":
				settings.Verbose = ses.Verbose
			}
		})
		ses.Settings = settings
	}

	err := ses.Validate()
	if err != nil {
		log.Fatalf("%v: %v", os.Args[0], err)
	}

	if len(ses.Language) != 0 {
		err = translate.SetLanguage(ses.Language)
		if err != nil {
			log.Fatalf("%v: %v", ses.Language, err)
		}
	}

	source, err := os.ReadFile(ses.Path)
	if err != nil {
		log.Fatalf("%v: %v", ses.Path, err)
	}
	ses.Source = string(source)

	err = ses.open()
	if err != nil {
		log.Fatalf("%v: %v", os.Args[0], err)
	}
	defer ses.machine.Dispose()

	var ok bool
	switch {
	case ses.Check:
		ok = ses.check()
	case len(ses.Testcases) != 0:
		ok, err = ses.grade()
	default:
		ok, err = ses.run(breakpoints)
	}
	if err != nil {
		log.Fatalf("%v: %v", ses.Path, err)
	}

	if !ok {
		os.Exit(1)
	}
}

func f(format string, args ...any) string {
	return translate.From(format, args...)
}

// open creates the machine for the configured architecture.
func (ses *session) open() (err error) {
	arch, err := cpu.LookupArch(ses.Arch)
	if err != nil {
		return
	}

	ses.backend = cpu.NewCpu(arch)
	ses.backend.Verbose = ses.Verbose
	for name, value := range ses.Defines {
		ses.backend.Predefine(name, value)
	}
	ses.machine = emulator.NewMachine[cpu.Reg](ses.backend)
	ses.machine.Verbose = ses.Verbose

	return
}

// check prints every diagnostic of the program.
func (ses *session) check() bool {
	diags := ses.machine.CheckCode(ses.Source)
	for _, diag := range diags {
		fmt.Println(f("%v:%d: %v", ses.Path, diag.LineNo, diag.Message))
	}

	return len(diags) == 0
}

// compile loads the program, printing the listing of a failure.
func (ses *session) compile() (ok bool, err error) {
	err = ses.machine.Compile(ses.Source)
	var compile *emulator.ErrCompile
	if errors.As(err, &compile) {
		fmt.Print(compile.Report)
		for _, diag := range compile.Errors {
			fmt.Println(f("%v:%d: %v", ses.Path, diag.LineNo, diag.Message))
		}
		err = nil
		return
	}
	if err != nil {
		return
	}

	ok = true
	return
}

// grade runs the testcase suite, and prints its report.
func (ses *session) grade() (ok bool, err error) {
	suite, err := testcase.LoadFile[cpu.Reg](ses.Testcases)
	if err != nil {
		return
	}

	if len(suite.Arch) != 0 && suite.Arch != ses.Arch {
		err = &ErrSuiteArch{Suite: suite.Arch, Arch: ses.Arch}
		return
	}

	ok, err = ses.compile()
	if !ok || err != nil {
		return
	}

	grader := &testcase.Grader[cpu.Reg]{
		Verbose: ses.Verbose,
		Limit:   ses.Limit,
		Factory: func() (*emulator.Machine[cpu.Reg], error) {
			return cpu.NewMachine(ses.Arch)
		},
	}

	results, err := grader.Grade(context.Background(), ses.Source, suite)
	if err != nil {
		return
	}

	failed, err := testcase.Report(os.Stdout, suite, results)
	ok = failed == 0
	return
}

// breakpoints resolves addresses and labels.
func (ses *session) breakpoints(list string) (addrs []uint64, err error) {
	addrs = slices.Clone(ses.Breakpoints)

	for _, word := range strings.Split(list, ",") {
		word = strings.TrimSpace(word)
		if len(word) == 0 {
			continue
		}

		addr, ok := ses.machine.Program().Labels[word]
		if !ok {
			addr, err = strconv.ParseUint(word, 0, 64)
			if err != nil {
				err = ErrBreakpoint(word)
				return
			}
		}
		addrs = append(addrs, addr)
	}

	return
}

// run executes the program to a terminal status, reporting each
// breakpoint reached along the way.
func (ses *session) run(list string) (ok bool, err error) {
	ok, err = ses.compile()
	if !ok || err != nil {
		return
	}

	err = ses.machine.Initialize(ses.UndoHistory)
	if err != nil {
		return
	}

	err = ses.input()
	if err != nil {
		return
	}

	bps, err := ses.breakpoints(list)
	if err != nil {
		return
	}

	m := ses.machine

	// Tracing stops at every instruction.
	stops := bps
	if ses.Trace {
		stops = nil
		for _, ins := range m.Program().Instructions {
			stops = append(stops, ins.Address)
		}
	}

	status := m.Status()
	for !m.HasTerminated() {
		// Every trace stop is followed by executing the instruction there.
		if ses.Trace && m.Status() == emulator.PausedAtBreakpoint {
			ins := m.NextInstruction()
			if ins != nil {
				fmt.Println(f("%08x %5d  %v", ins.Address, ins.LineNo, ins.Text))
			}
		}

		// A run that pauses at a breakpoint has not used up its limit.
		limit := 0
		if ses.Limit > 0 {
			limit = ses.Limit - m.InstructionCount()
		}
		status = m.Run(limit, stops)
		if status == emulator.PausedAtBreakpoint && slices.Contains(bps, m.Pc()) {
			fmt.Println(f("breakpoint at 0x%x", m.Pc()))
			ses.dump()
		}
	}

	tape := &io.Tape{Output: m.Output()}
	err = tape.Marshal(os.Stdout)
	if err != nil {
		return
	}

	ses.dump()
	fmt.Println(f("%v after %d instructions", status, m.InstructionCount()))
	if m.LastError() != nil {
		fmt.Println(m.StringifyError(m.LastError()))
	}

	ok = status == emulator.Terminated
	return
}

// input loads the tape input, if any.
func (ses *session) input() (err error) {
	if len(ses.Input) == 0 {
		return
	}

	tape := &io.Tape{}
	if ses.Input == "-" {
		err = tape.Unmarshal(os.Stdin)
	} else {
		var inf *os.File
		inf, err = os.Open(ses.Input)
		if err != nil {
			return
		}
		defer inf.Close()
		err = tape.Unmarshal(inf)
	}
	if err != nil {
		return
	}

	ses.machine.SetInput(tape.Input)
	return
}

// dump prints the registers and flags.
func (ses *session) dump() {
	m := ses.machine

	var line []string
	for n, name := range m.RegisterNames() {
		line = append(line, fmt.Sprintf("%v=%#x", name, m.RegisterValues()[n]))
	}
	fmt.Println(strings.Join(line, " "))

	line = nil
	for _, fl := range m.Flags() {
		if fl.Value {
			line = append(line, fl.Name)
		} else {
			line = append(line, "-")
		}
	}
	fmt.Println(strings.Join(line, ""))

	if ses.Verbose {
		pp.Println(m.CallStack())
		for _, base := range m.MemoryPages() {
			data, _ := m.ReadMemoryBytes(base, memory.PAGE_SIZE)
			for row := 0; row < len(data); row += 32 {
				fmt.Println(f("%08x % x", base+uint64(row), data[row:row+32]))
			}
		}
		fmt.Println(f("undo depth %d", m.UndoDepth()))
	}
}
