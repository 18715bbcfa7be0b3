// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package cpu

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/internal"
	"github.com/ezrec/asmemu/register"
)

const (
	MACRO_DEPTH_LIMIT     = 64      // Maximum macro nesting.
	MACRO_EXPANSION_LIMIT = 100_000 // Maximum macro expansions per Parse.
	EXPRESSION_STEP_LIMIT = 1 << 20 // Maximum starlark steps per $(...).
	SPACE_FILL_LIMIT      = 1 << 24 // Maximum bytes of a filled .space.
)

// Macro represents a macro definition in the assembly language.
type Macro struct {
	LineNo int      // Line number of the macro definition.
	Args   []string // Arguments for the macro.
	Lines  []string // Lines of macro text to expand.
}

// Predefined system equates
var sysEquate = map[string]string{
	"LINENO": "0",
}

// fixup is a data word waiting for a label address.
type fixup struct {
	LineNo int
	Block  int
	Offset int
	Size   register.Size
	Label  string
}

// Assembler is a single pass macro assembler for the instruction set family.
type Assembler struct {
	Verbose bool     // If set, verbosely logs the assembler actions.
	Arch    *Arch    // Target architecture.
	Opcode  []Opcode // List of generated opcodes.
	Errors  []error  // Every error of the last Parse.

	Data   []emulator.MemoryBlock // Initialized data.
	Label  map[string]uint64      // Map of labels to addresses.
	Equate map[string]string      // Map of equates.
	Macro  map[string](*Macro)    // Map of macros.

	predefine  map[string]string // Predefines
	ip         uint64            // Location counter.
	expansions int               // Macro expansion counter.
	depth      int               // Current macro nesting depth.
	fixups     []fixup
}

// Predefine defines a new equate or redefines an existing equate.
func (asm *Assembler) Predefine(equ string, value string) {
	if asm.predefine == nil {
		asm.predefine = map[string]string{equ: value}
	} else {
		asm.predefine[equ] = value
	}
}

var identRe = regexp.MustCompile(`^[A-Za-z_.@][A-Za-z0-9_.@]*$`)

// isLabel is true if word can name a label.
func isLabel(word string) bool {
	_, is_reg := regMap[word]
	return !is_reg && identRe.MatchString(word)
}

// valueOf returns the value of a simple word.
func (asm *Assembler) valueOf(word string) (value uint64, err error) {
	if len(word) == 0 {
		err = ErrParseNumber(word)
		return
	}
	invert := false
	if word[0] == '~' {
		invert = true
		word = word[1:]
	}
	if len(word) > 1 && word[0] == '\'' {
		// Character quotes should have been expanded into
		// values in parseLine()
		err = ErrParseCharacter(word[1 : len(word)-1])
		return
	}
	value, err = strconv.ParseUint(word, 0, 64)
	if err != nil {
		var v64 int64
		v64, err = strconv.ParseInt(word, 0, 64)
		if err != nil {
			err = ErrParseNumber(word)
			return
		}
		value = uint64(v64)
	}

	if invert {
		value = ^value
	}

	return
}

// valueOrLabel returns the value of a word, or the label it names.
func (asm *Assembler) valueOrLabel(word string) (value uint64, label string, err error) {
	value, err = asm.valueOf(word)
	if err != nil && isLabel(word) {
		label = word
		err = nil
	}
	return
}

// resolve substitutes an equate.
func (asm *Assembler) resolve(word string) string {
	equate, ok := asm.Equate[word]
	if ok {
		return equate
	}
	return word
}

// operand decodes a single operand word.
//
//	rN           register
//	VALUE        immediate, or label address
//	[rN]         indirect
//	[rN+VALUE]   indirect with offset
//	[rN-VALUE]   indirect with negative offset
//	[VALUE]      absolute
func (asm *Assembler) operand(word string) (opnd Operand, err error) {
	reg, ok := regMap[word]
	if ok {
		opnd = Operand{Mode: MODE_REGISTER, Reg: reg}
		return
	}

	if len(word) > 2 && strings.HasPrefix(word, "[") && strings.HasSuffix(word, "]") {
		inner := asm.resolve(word[1 : len(word)-1])

		reg, ok = regMap[inner]
		if ok {
			opnd = Operand{Mode: MODE_INDIRECT, Reg: reg}
			return
		}

		n := strings.LastIndexAny(inner, "+-")
		if n > 0 {
			reg, ok = regMap[asm.resolve(inner[:n])]
			if !ok {
				err = ErrParseOperand(word)
				return
			}
			var offset uint64
			offset, err = asm.valueOf(asm.resolve(inner[n+1:]))
			if err != nil {
				return
			}
			if inner[n] == '-' {
				offset = -offset
			}
			opnd = Operand{Mode: MODE_INDIRECT, Reg: reg, Value: offset}
			return
		}

		opnd.Mode = MODE_ABSOLUTE
		opnd.Value, opnd.Label, err = asm.valueOrLabel(inner)
		return
	}

	opnd.Mode = MODE_IMMEDIATE
	opnd.Value, opnd.Label, err = asm.valueOrLabel(word)
	if err != nil {
		err = ErrParseOperand(word)
	}
	return
}

// parenEval does compile-time $(...) evaluations
func (asm *Assembler) parenEval(expr string) (value uint64, err error) {
	thread := starlark.Thread{}
	thread.SetMaxExecutionSteps(EXPRESSION_STEP_LIMIT)
	opts := syntax.FileOptions{}
	pred := starlark.StringDict{}
	for key, str := range asm.Equate {
		var value64 uint64
		value64, err = asm.valueOf(str)
		if err != nil {
			// Ignore non-integer equates. They may be registers
			// or something else.
			continue
		}
		pred[key] = starlark.MakeUint64(value64)
	}
	for key, addr := range asm.Label {
		_, ok := pred[key]
		if !ok {
			pred[key] = starlark.MakeUint64(addr)
		}
	}
	err = nil
	prog := "rc=" + expr + "\n"
	dict, err := starlark.ExecFileOptions(&opts, &thread, "expr", prog, pred)
	if err != nil {
		err = ErrParseExpression(expr)
		return
	}
	st_rc, ok := dict["rc"]
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	st_int, ok := st_rc.(starlark.Int)
	if !ok {
		err = ErrParseExpression(expr)
		return
	}
	value, ok = st_int.Uint64()
	if !ok {
		var v64 int64
		v64, ok = st_int.Int64()
		if !ok {
			err = ErrParseExpression(expr)
			return
		}
		value = uint64(v64)
	}
	return
}

// parseLine parses a single line as an opcode.
func (asm *Assembler) parseLine(line string, lineno int) (words []string, err error) {
	// Set line number.
	asm.Equate["LINENO"] = fmt.Sprintf("%v", lineno)

	// Do 'x' evaluations
	re := regexp.MustCompile(`'\\?[^']'`)
	line = re.ReplaceAllStringFunc(line, func(word string) string {
		str := word[1 : len(word)-1]
		if str[0] == '\\' {
			str = str[1:]
			switch str {
			case "\\":
				str = "\\"
			case "n":
				str = "\n"
			case "r":
				str = "\r"
			case "t":
				str = "\t"
			case "0":
				str = "\000"
			case "e":
				str = "\033"
			default:
				return word
			}
		} else if len(str) != 1 {
			return word
		}
		return fmt.Sprintf("%v", str[0])
	})

	// Do $() evaluations
	re = regexp.MustCompile(`\$\([^\$]*\)`)
	line = re.ReplaceAllStringFunc(line, func(str string) string {
		value, _err := asm.parenEval(str[2 : len(str)-1])
		if _err != nil {
			err = _err
		}
		return fmt.Sprintf("%#x", value)
	})
	if err != nil {
		return
	}

	words = strings.Fields(line)

	if len(words) == 0 {
		return
	}

	// .equ CONST VALUE
	if words[0] == ".equ" {
		if len(words) != 3 {
			err = ErrEquateSyntax
			return
		}
		_, ok := asm.Equate[words[1]]
		if ok {
			err = ErrEquateDuplicate
			return
		}
		asm.Equate[words[1]] = words[2]
		words = words[:0]
		return
	}

	for n, word := range words {
		// Check for equate next
		equate, ok := asm.Equate[word]
		if ok {
			words[n] = equate
		}
	}

	for strings.HasSuffix(words[0], ":") {
		label := words[0][:len(words[0])-1]
		if !isLabel(label) {
			err = ErrLabelInvalid
			return
		}
		_, ok := asm.Label[label]
		if ok {
			err = ErrLabelDuplicate
			return
		}

		asm.Label[label] = asm.ip
		words = words[1:]
		if len(words) == 0 {
			return
		}
	}

	// .macro processing
	macro, ok := asm.Macro[words[0]]
	if ok {
		name := words[0]

		args := words[1:]
		if len(args) != len(macro.Args) {
			err = ErrMacroSyntax
			return
		}
		if asm.depth >= MACRO_DEPTH_LIMIT || asm.expansions >= MACRO_EXPANSION_LIMIT {
			err = ErrMacroRecursion(name)
			return
		}
		asm.depth++
		defer func() { asm.depth-- }()

		// Turn args into equs
		old_equate := maps.Clone(asm.Equate)
		for n, arg := range macro.Args {
			asm.Equate[arg] = args[n]
		}
		defer func() { asm.Equate = old_equate }()

		asm.expansions++
		local := fmt.Sprintf("%v_%v_", name, asm.expansions)

		for n, line := range macro.Lines {
			lineno := macro.LineNo + n

			line = strings.ReplaceAll(line, "@", local)
			words, err = asm.parseLine(line, lineno)
			if err != nil {
				err = macroError(name, lineno, err)
				return
			}

			err = asm.parseWords(words, lineno)
			if err != nil {
				err = macroError(name, lineno, err)
				return
			}
		}

		words = nil
		return
	}

	return
}

// macroError locates an error in a macro line. Runaway expansions are
// reported once, not once per level.
func macroError(name string, lineno int, err error) error {
	var recursion ErrMacroRecursion
	if errors.As(err, &recursion) {
		return err
	}
	return &ErrMacro{Macro: name, Line: lineno, Err: err}
}

// reset prepares for a new Parse.
func (asm *Assembler) reset() {
	if asm.Arch == nil {
		asm.Arch = &Arch24
	}

	asm.Opcode = nil
	asm.Errors = nil
	asm.Data = nil
	asm.fixups = nil
	asm.ip = asm.Arch.Origin
	asm.expansions = 0
	asm.depth = 0
	asm.Label = make(map[string]uint64, 16)
	asm.Macro = make(map[string](*Macro))
	asm.Equate = maps.Collect(internal.IterSeq2Concat(
		maps.All(sysEquate),
		asm.Arch.Defines(),
		maps.All(asm.predefine),
	))
}

// Parse assembles an input stream into a Program. Parsing continues past
// errors; err joins every error found, each an ErrSyntax.
func (asm *Assembler) Parse(input io.Reader) (prog *emulator.Program, err error) {
	scanner := bufio.NewScanner(input)

	var line string
	var lineno int
	var macro *Macro

	asm.reset()

	fail := func(err error) {
		asm.Errors = append(asm.Errors, ErrSyntax{LineNo: lineno, Line: line, Err: err})
	}

	for scanner.Scan() {
		text := scanner.Text()
		lineno += 1

		if asm.Verbose {
			log.Printf("%v: %v\n", lineno, text)
		}

		text_comment := strings.Split(text, ";")
		line = strings.TrimSpace(text_comment[0])
		words := strings.Fields(line)

		// .macro NAME arg...
		if len(words) > 0 && words[0] == ".macro" {
			if macro != nil {
				fail(ErrMacroNesting)
				continue
			}
			if len(words) < 2 {
				fail(ErrMacroSyntax)
				continue
			}
			_, ok := asm.Macro[words[1]]
			if ok {
				fail(ErrMacroDuplicate)
			}
			macro = &Macro{
				LineNo: lineno + 1,
			}
			if len(words) > 2 {
				macro.Args = words[2:]
			}
			asm.Macro[words[1]] = macro
			continue
		}

		if len(words) > 0 && words[0] == ".endm" {
			if macro == nil {
				fail(ErrMacroLonelyEndm)
			}
			macro = nil
			continue
		}

		if macro != nil {
			macro.Lines = append(macro.Lines, line)
			continue
		}

		words, err = asm.parseLine(line, lineno)
		if err != nil {
			fail(err)
			continue
		}

		err = asm.parseWords(words, lineno)
		if err != nil {
			fail(err)
		}
	}

	err = scanner.Err()
	if err != nil {
		fail(err)
	}

	if macro != nil {
		fail(ErrMacroLonely)
	}

	asm.link()

	err = errors.Join(asm.Errors...)
	if err != nil {
		return
	}

	prog, err = asm.program()
	if err != nil {
		asm.Errors = append(asm.Errors, ErrSyntax{Err: err})
		prog = nil
	}

	return
}

// link resolves label references.
func (asm *Assembler) link() {
	for n := range asm.Opcode {
		op := &asm.Opcode[n]

		for a := range op.Code.Args {
			arg := &op.Code.Args[a]
			if len(arg.Label) == 0 {
				continue
			}
			addr, ok := asm.Label[arg.Label]
			if !ok {
				asm.Errors = append(asm.Errors, ErrSyntax{
					LineNo: op.LineNo,
					Line:   strings.Join(op.Words, " "),
					Err:    ErrLabelMissing(arg.Label),
				})
				continue
			}
			arg.Value = addr
		}
	}

	order := asm.Arch.Endianness.Order()
	for _, fix := range asm.fixups {
		addr, ok := asm.Label[fix.Label]
		if !ok {
			asm.Errors = append(asm.Errors, ErrSyntax{LineNo: fix.LineNo, Err: ErrLabelMissing(fix.Label)})
			continue
		}
		data := asm.Data[fix.Block].Data[fix.Offset:]
		putUint(order, data, addr, fix.Size)
	}
}

// program builds the linked program.
func (asm *Assembler) program() (prog *emulator.Program, err error) {
	instructions := make([]emulator.Instruction, 0, len(asm.Opcode))
	for _, op := range asm.Opcode {
		code := op.Code
		instructions = append(instructions, emulator.Instruction{
			Address: op.Ip,
			Size:    INSTRUCTION_SIZE,
			LineNo:  op.LineNo,
			Text:    strings.Join(op.Words, " "),
			Op:      &code,
		})
	}

	entry, ok := asm.Label["start"]
	if !ok {
		entry = asm.Arch.Origin
		if len(asm.Opcode) > 0 {
			entry = asm.Opcode[0].Ip
		}
	}

	prog, err = emulator.NewProgram(entry, instructions, asm.Data)
	if err != nil {
		return
	}

	maps.Copy(prog.Labels, asm.Label)

	return
}

// putUint encodes the low 'size' bytes of value.
func putUint(order binary.ByteOrder, data []byte, value uint64, size register.Size) {
	switch size {
	case register.Byte:
		data[0] = byte(value)
	case register.Half:
		order.PutUint16(data, uint16(value))
	case register.Word:
		order.PutUint32(data, uint32(value))
	case register.Double:
		order.PutUint64(data, value)
	}
}

// advance moves the location counter past 'count' address units.
func (asm *Assembler) advance(count uint64) (err error) {
	end := asm.ip + count
	if end < asm.ip || (count > 0 && end-1 > asm.Arch.MaxAddress) {
		err = ErrAddressRange(asm.ip)
		return
	}
	asm.ip = end
	return
}

// dataSize maps data directives to their element size.
var dataSize = map[string]register.Size{
	".byte":   register.Byte,
	".half":   register.Half,
	".word":   register.Word,
	".double": register.Double,
}

// parseData handles the .org, .space and data directives.
func (asm *Assembler) parseData(words []string, lineno int) (err error) {
	switch words[0] {
	case ".org":
		if len(words) != 2 {
			err = ErrDirectiveInvalid
			return
		}
		var addr uint64
		addr, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		if addr > asm.Arch.MaxAddress {
			err = ErrAddressRange(addr)
			return
		}
		asm.ip = addr
		return
	case ".space":
		if len(words) < 2 {
			err = ErrOpcodeValueMissing
			return
		}
		if len(words) > 3 {
			err = ErrOpcodeExtraArgs
			return
		}
		var count uint64
		count, err = asm.valueOf(words[1])
		if err != nil {
			return
		}
		fill := uint64(asm.Arch.Fill)
		if len(words) == 3 {
			fill, err = asm.valueOf(words[2])
			if err != nil {
				return
			}
		}
		block := emulator.MemoryBlock{Address: asm.ip}
		err = asm.advance(count)
		if err != nil {
			return
		}
		if byte(fill) == asm.Arch.Fill {
			// Never-written memory already holds the fill.
			return
		}
		if count > SPACE_FILL_LIMIT {
			err = ErrSpaceFill(count)
			return
		}
		block.Data = slices.Repeat([]byte{byte(fill)}, int(count))
		asm.Data = append(asm.Data, block)
		return
	}

	size, ok := dataSize[words[0]]
	if !ok {
		err = ErrDirectiveInvalid
		return
	}

	values := words[1:]
	if len(values) == 0 {
		err = ErrOpcodeValueMissing
		return
	}

	block := emulator.MemoryBlock{
		Address: asm.ip,
		Data:    make([]byte, len(values)*int(size)),
	}
	err = asm.advance(uint64(len(block.Data)))
	if err != nil {
		return
	}

	// Fixups refer to the block, so are only kept once it is.
	var fixups []fixup
	order := asm.Arch.Endianness.Order()
	for n, word := range values {
		var value uint64
		var label string
		value, label, err = asm.valueOrLabel(word)
		if err != nil {
			return
		}
		if len(label) > 0 {
			fixups = append(fixups, fixup{
				LineNo: lineno,
				Block:  len(asm.Data),
				Offset: n * int(size),
				Size:   size,
				Label:  label,
			})
			continue
		}
		putUint(order, block.Data[n*int(size):], value, size)
	}

	asm.Data = append(asm.Data, block)
	asm.fixups = append(asm.fixups, fixups...)

	return
}

// parseWords evaluates the words in a line of assembly text.
func (asm *Assembler) parseWords(words []string, lineno int) (err error) {
	// no-op
	if len(words) == 0 {
		return
	}

	if strings.HasPrefix(words[0], ".") {
		return asm.parseData(words, lineno)
	}

	mnemonic, suffix, sized := strings.Cut(words[0], ".")
	op, ok := opMap[mnemonic]
	if !ok {
		err = ErrInstructionInvalid
		return
	}

	code := Code{Op: op}
	if sized {
		if !op.Sized() {
			err = ErrSizeInvalid
			return
		}
		code.Size, ok = sizeOf(suffix)
		if !ok || code.Size > asm.Arch.SystemSize {
			err = ErrSizeInvalid
			return
		}
	}

	args := words[1:]
	switch {
	case len(args) < op.Arity():
		err = ErrOpcodeMissing
		return
	case len(args) > op.Arity():
		err = ErrOpcodeExtraArgs
		return
	}

	for _, word := range args {
		var opnd Operand
		opnd, err = asm.operand(word)
		if err != nil {
			return
		}
		code.Args = append(code.Args, opnd)
	}

	opcode := Opcode{LineNo: lineno, Ip: asm.ip, Words: slices.Clone(words), Code: code}
	err = asm.advance(INSTRUCTION_SIZE)
	if err != nil {
		return
	}

	if asm.Verbose {
		log.Printf("%v: %#x: %v", lineno, opcode.Ip, code)
	}

	asm.Opcode = append(asm.Opcode, opcode)

	return
}

// sizeOf decodes a size suffix.
func sizeOf(suffix string) (size register.Size, ok bool) {
	for size, name := range sizeSuffix {
		if name == suffix {
			return size, true
		}
	}
	return
}

// Report is a listing of the last Parse: the assembled code and data,
// followed by its errors.
func (asm *Assembler) Report() string {
	type entry struct {
		addr uint64
		text string
	}

	var entries []entry
	for _, op := range asm.Opcode {
		entries = append(entries, entry{op.Ip, fmt.Sprintf("%08x %5d  %v", op.Ip, op.LineNo, op.Code)})
	}
	for _, block := range asm.Data {
		entries = append(entries, entry{block.Address, fmt.Sprintf("%08x        % x", block.Address, block.Data)})
	}
	slices.SortStableFunc(entries, func(a, b entry) int {
		return cmp.Compare(a.addr, b.addr)
	})

	var text strings.Builder
	for _, e := range entries {
		text.WriteString(e.text)
		text.WriteString("\n")
	}
	for _, err := range asm.Errors {
		text.WriteString(err.Error())
		text.WriteString("\n")
	}

	return text.String()
}
