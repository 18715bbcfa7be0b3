package cpu

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/register"
)

func FuzzAlu(f *testing.F) {
	for op := OP_MOVE; op <= OP_NEG; op++ {
		f.Add(uint8(op), uint8(0), uint64(0), uint64(0))
		f.Add(uint8(op), uint8(1), uint64(0xffff_ffff_ffff_ffff), uint64(1))
		f.Add(uint8(op), uint8(2), uint64(0x8000_0000), uint64(0x7fff_ffff))
		f.Add(uint8(op), uint8(3), uint64(0x1234_5678_9abc_def0), uint64(0x21))
	}

	f.Fuzz(func(t *testing.T, op_byte uint8, size_byte uint8, a uint64, b uint64) {
		assert := assert.New(t)

		op := OP_MOVE + CodeOp(op_byte%uint8(OP_NEG-OP_MOVE+1))
		size := []register.Size{register.Byte, register.Half, register.Word, register.Double}[size_byte%4]
		mask := size.Mask()
		width := uint64(size.Bits())
		sign := uint64(1) << (width - 1)

		code_str := fmt.Sprintf("%v.%v 0x%x 0x%x", op, sizeSuffix[size], a, b)

		if b&mask == 0 && (op == OP_DIV || op == OP_REM) {
			return
		}

		result, flags, affect := alu(op, a, b, size)

		a &= mask
		b &= mask

		var expected uint64
		switch op {
		case OP_MOVE:
			expected = b
		case OP_ADD:
			expected = a + b
		case OP_SUB, OP_CMP, OP_NEG:
			expected = a - b
		case OP_AND:
			expected = a & b
		case OP_OR:
			expected = a | b
		case OP_XOR:
			expected = a ^ b
		case OP_SHL:
			expected = a << (b % width)
		case OP_SHR:
			expected = a >> (b % width)
		case OP_MUL:
			expected = a * b
		case OP_DIV:
			expected = a / b
		case OP_REM:
			expected = a % b
		case OP_NOT:
			expected = ^a
		}

		assert.Equal(expected&mask, result, code_str)
		assert.Equal(result == 0, flags&FLAG_Z != 0, code_str)
		assert.Equal(result&sign != 0, flags&FLAG_N != 0, code_str)
		assert.Equal(uint64(0), result&^mask, code_str)
		assert.NotZero(affect&FLAG_Z, code_str)

		switch op {
		case OP_ADD:
			assert.Equal(a+b < a || (size != register.Double && a+b > mask), flags&FLAG_C != 0, code_str)
			assert.NotZero(affect&FLAG_X, code_str)
		case OP_SUB, OP_NEG:
			assert.Equal(b > a, flags&FLAG_C != 0, code_str)
			assert.NotZero(affect&FLAG_X, code_str)
		case OP_CMP:
			assert.Equal(b > a, flags&FLAG_C != 0, code_str)
			assert.Zero(affect&FLAG_X, code_str)
		case OP_MOVE, OP_AND, OP_OR, OP_XOR, OP_NOT, OP_DIV, OP_REM:
			assert.Zero(flags&(FLAG_C|FLAG_V), code_str)
		}
	})
}

// FuzzUndo checks that any straight-line program undoes to its start.
func FuzzUndo(f *testing.F) {
	f.Add(uint64(1), uint64(2), uint8(3))
	f.Add(uint64(0xffff_ffff), uint64(0x8000_0000), uint8(7))
	f.Add(uint64(0), uint64(0), uint8(0))

	f.Fuzz(func(t *testing.T, a uint64, b uint64, steps uint8) {
		assert := assert.New(t)

		source := fmt.Sprintf(`
	move 0x%x r0
	move 0x%x r1
	add r0 r1
	push r1
	move r1 [0x2000]
	mul r0 r1
	xchg r0 r1
	pop r2
	out r2
	neg r2
`, a, b)

		m := emulator.NewMachine[Reg](NewCpu(&Arch32))
		if !assert.NoError(m.Compile(source)) {
			return
		}
		if !assert.NoError(m.Initialize(256)) {
			return
		}

		regs := m.RegisterValuesRecord()
		data, _ := m.ReadMemoryBytes(0x2000, 8)

		for range int(steps % 11) {
			m.Step()
		}
		for m.CanUndo() {
			assert.NoError(m.Undo())
		}

		assert.Equal(regs, m.RegisterValuesRecord())
		after, _ := m.ReadMemoryBytes(0x2000, 8)
		assert.Equal(data, after)
		assert.Empty(m.Output())
		assert.Equal(0, m.InstructionCount())
	})
}

// FuzzCheckCode checks that malformed source is diagnosed, never panics.
func FuzzCheckCode(f *testing.F) {
	for _, source := range []string{
		"halt",
		".word foo 1x\nfoo: halt\n",
		".byte 1 2 3 x y 9z\nx: y: halt\n",
		".double\n.half ~\n.word 'ab'\n",
		".org\n.org 0x1000000\n.org x\n",
		".space\n.space 1 2 3\n.space 0xffffffffffffffff 1\n.space 0x10 7\n",
		".equ A\n.equ A 1\n.equ A 2\nmove A r0\n",
		".macro\n.endm\n.endm\n",
		".macro A B\n.macro C\n.endm\n",
		".macro loop\nloop\n.endm\nloop\n",
		".macro a X\nb X\n.endm\n.macro b Y\na Y\n.endm\na 1\n",
		".macro m X\n@: move X r0\njump @\n.endm\nm 1\nm $(2)\nm\n",
		"move $(1/0) r0",
		"move $( r0",
		"move $()) r0",
		"move $([0 for x in range(100000000)][0]) r0",
		"move $(\"a\" * 1000) [r0+$(-1)]",
		"move [r0+] r1\nmove [+4] r1\nmove [r9-x] r1\nmove [] r1\n",
		"lbl:\nlbl: lbl:\n1: 2:\n",
		"jump.q x\ncall\npush.b\n'\\q'\n",
	} {
		f.Add(source)
	}

	f.Fuzz(func(t *testing.T, source string) {
		assert := assert.New(t)

		m := emulator.NewMachine[Reg](NewCpu(&Arch24))

		diags := m.CheckCode(source)
		for _, diag := range diags {
			assert.NotContains(diag.Message, "unreachable", source)
		}

		var err error
		assert.NotPanics(func() { err = m.Compile(source) }, source)
		if err != nil {
			assert.NotEmpty(diags, source)
		}
	})
}
