package cpu

import (
	"fmt"
	"strings"

	"github.com/ezrec/asmemu/register"
)

// CodeOp is an instruction operation.
type CodeOp int

//go:generate go tool stringer -linecomment -type=CodeOp,CodeMode
const (
	OP_NOP    = CodeOp(0)  // nop
	OP_HALT   = CodeOp(1)  // halt
	OP_MOVE   = CodeOp(2)  // move
	OP_ADD    = CodeOp(3)  // add
	OP_SUB    = CodeOp(4)  // sub
	OP_AND    = CodeOp(5)  // and
	OP_OR     = CodeOp(6)  // or
	OP_XOR    = CodeOp(7)  // xor
	OP_SHL    = CodeOp(8)  // shl
	OP_SHR    = CodeOp(9)  // shr
	OP_MUL    = CodeOp(10) // mul
	OP_DIV    = CodeOp(11) // div
	OP_REM    = CodeOp(12) // rem
	OP_CMP    = CodeOp(13) // cmp
	OP_NOT    = CodeOp(14) // not
	OP_NEG    = CodeOp(15) // neg
	OP_PUSH   = CodeOp(16) // push
	OP_POP    = CodeOp(17) // pop
	OP_XCHG   = CodeOp(18) // xchg
	OP_IN     = CodeOp(19) // in
	OP_OUT    = CodeOp(20) // out
	OP_JUMP   = CodeOp(21) // jump
	OP_CALL   = CodeOp(22) // call
	OP_RETURN = CodeOp(23) // return
	OP_BEQ    = CodeOp(24) // beq
	OP_BNE    = CodeOp(25) // bne
	OP_BLT    = CodeOp(26) // blt
	OP_BGE    = CodeOp(27) // bge
	OP_BGT    = CodeOp(28) // bgt
	OP_BLE    = CodeOp(29) // ble
	OP_BCS    = CodeOp(30) // bcs
	OP_BCC    = CodeOp(31) // bcc
	OP_BMI    = CodeOp(32) // bmi
	OP_BPL    = CodeOp(33) // bpl
	OP_BVS    = CodeOp(34) // bvs
	OP_BVC    = CodeOp(35) // bvc
)

// opMap maps mnemonics to operations.
var opMap = func() (ops map[string]CodeOp) {
	ops = make(map[string]CodeOp)
	for op := OP_NOP; op <= OP_BVC; op++ {
		ops[op.String()] = op
	}
	return
}()

// Arity is the number of operands the operation takes.
func (op CodeOp) Arity() int {
	switch {
	case op >= OP_MOVE && op <= OP_CMP, op == OP_XCHG:
		return 2
	case op == OP_NOP, op == OP_HALT, op == OP_RETURN:
		return 0
	}
	return 1
}

// Sized is true if the operation accepts a .b/.h/.w/.d suffix.
func (op CodeOp) Sized() bool {
	return op >= OP_MOVE && op <= OP_NEG
}

// Branch is true for the conditional branches.
func (op CodeOp) Branch() bool {
	return op >= OP_BEQ && op <= OP_BVC
}

// CodeMode is an operand addressing mode.
type CodeMode int

const (
	MODE_REGISTER  = CodeMode(0) // register
	MODE_IMMEDIATE = CodeMode(1) // immediate
	MODE_INDIRECT  = CodeMode(2) // indirect
	MODE_ABSOLUTE  = CodeMode(3) // absolute
)

// Memory is true for modes that reference memory.
func (mode CodeMode) Memory() bool {
	return mode == MODE_INDIRECT || mode == MODE_ABSOLUTE
}

// Operand is a decoded instruction operand.
type Operand struct {
	Mode  CodeMode
	Reg   Reg    // Base register, for register and indirect modes.
	Value uint64 // Immediate, offset or absolute address.
	Label string // Symbol the value was linked from.
}

func (opnd Operand) String() string {
	value := opnd.Label
	if len(value) == 0 {
		value = fmt.Sprintf("0x%x", opnd.Value)
	}

	switch opnd.Mode {
	case MODE_REGISTER:
		return string(opnd.Reg)
	case MODE_INDIRECT:
		offset := int64(opnd.Value)
		switch {
		case offset == 0:
			return fmt.Sprintf("[%v]", opnd.Reg)
		case offset < 0:
			return fmt.Sprintf("[%v-0x%x]", opnd.Reg, -offset)
		}
		return fmt.Sprintf("[%v+0x%x]", opnd.Reg, offset)
	case MODE_ABSOLUTE:
		return "[" + value + "]"
	}
	return value
}

// Code is a decoded instruction.
type Code struct {
	Op   CodeOp
	Size register.Size // Operand width. 0 is the system size.
	Args []Operand
}

func (code Code) String() string {
	name := code.Op.String()
	if code.Size != 0 {
		name += "." + sizeSuffix[code.Size]
	}

	words := []string{name}
	for _, arg := range code.Args {
		words = append(words, arg.String())
	}

	return strings.Join(words, " ")
}

// Operand size suffixes.
var sizeSuffix = map[register.Size]string{
	register.Byte:   "b",
	register.Half:   "h",
	register.Word:   "w",
	register.Double: "d",
}

// Opcode is an assembled line of source.
type Opcode struct {
	LineNo int      // Source line.
	Ip     uint64   // Address of the instruction.
	Words  []string // Source words, after equate substitution.
	Code   Code     // Decoded instruction.
}
