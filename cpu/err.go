package cpu

import (
	"errors"

	"github.com/ezrec/asmemu/translate"
)

var f = translate.From

var (
	// Assembler errors
	ErrEquateSyntax       = errors.New(f(".equ syntax"))
	ErrEquateDuplicate    = errors.New(f(".equ duplicated"))
	ErrLabelDuplicate     = errors.New(f("label duplicated"))
	ErrLabelInvalid       = errors.New(f("label invalid"))
	ErrMacroSyntax        = errors.New(f(".macro syntax"))
	ErrMacroNesting       = errors.New(f(".macro in .macro prohibited"))
	ErrMacroDuplicate     = errors.New(f(".macro duplicated"))
	ErrMacroLonely        = errors.New(f(".macro without .endm"))
	ErrMacroLonelyEndm    = errors.New(f(".endm without .macro"))
	ErrDirectiveInvalid   = errors.New(f("directive invalid"))
	ErrOpcodeExtraArgs    = errors.New(f("excessive arguments"))
	ErrOpcodeMissing      = errors.New(f("opcode missing"))
	ErrOpcodeValueMissing = errors.New(f("value missing"))
	ErrSizeInvalid        = errors.New(f("size suffix invalid"))
	ErrInstructionInvalid = errors.New(f("instruction invalid"))
)

// ErrLabelMissing is a reference to an undefined label.
type ErrLabelMissing string

func (el ErrLabelMissing) Error() string {
	return f("label %v missing", string(el))
}

// ErrSyntax locates an assembler error in the source.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err ErrSyntax) Error() string {
	return f("line %d '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err ErrSyntax) Unwrap() error {
	return err.Err
}

type ErrParseNumber string

func (err ErrParseNumber) Error() string {
	return f("'%v' is not a number", string(err))
}

type ErrParseCharacter string

func (err ErrParseCharacter) Error() string {
	return f("'%v' is not a character", string(err))
}

type ErrParseOperand string

func (err ErrParseOperand) Error() string {
	return f("'%v' is not a register, value or memory reference", string(err))
}

type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

type ErrSpaceFill uint64

func (err ErrSpaceFill) Error() string {
	return f(".space of %d bytes too large to fill", uint64(err))
}

// ErrMacroRecursion is a macro that expands too deeply, or too often.
type ErrMacroRecursion string

func (err ErrMacroRecursion) Error() string {
	return f("macro %v expands without end", string(err))
}

// ErrMacro locates an error inside a macro expansion.
type ErrMacro struct {
	Macro string
	Line  int
	Err   error
}

func (err ErrMacro) Error() string {
	return f("macro %v line %v %v", err.Macro, err.Line, err.Err.Error())
}

func (err ErrMacro) Unwrap() error {
	return err.Err
}

// ErrArchUnknown is an unknown architecture name.
type ErrArchUnknown string

func (err ErrArchUnknown) Error() string {
	return f("architecture '%v' unknown", string(err))
}

// ErrAddressRange is code or data placed outside the address space.
type ErrAddressRange uint64

func (err ErrAddressRange) Error() string {
	return f("address 0x%x out of range", uint64(err))
}
