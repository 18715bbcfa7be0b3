package cpu

import (
	"errors"
	"log"
	"maps"
	"math/bits"
	"slices"
	"strings"

	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/io"
	"github.com/ezrec/asmemu/memory"
	"github.com/ezrec/asmemu/register"
)

// Cpu is the emulator backend for an architecture of the family.
type Cpu struct {
	Verbose bool  // Set to enable verbose logging.
	Arch    *Arch // Architecture emulated.

	predefine map[string]string
}

var _ emulator.Backend[Reg] = (*Cpu)(nil)

// NewCpu creates a backend for an architecture.
func NewCpu(arch *Arch) (cpu *Cpu) {
	cpu = &Cpu{
		Arch: arch,
	}

	return
}

// NewMachine creates an emulator for a named architecture.
func NewMachine(name string) (m *emulator.Machine[Reg], err error) {
	arch, err := LookupArch(name)
	if err != nil {
		return
	}

	m = emulator.NewMachine[Reg](NewCpu(arch))
	return
}

// Predefine sets an equate for every subsequent compile.
func (cpu *Cpu) Predefine(equ string, value string) {
	if cpu.predefine == nil {
		cpu.predefine = map[string]string{}
	}
	cpu.predefine[equ] = value
}

func (cpu *Cpu) Name() string {
	return cpu.Arch.Name
}

func (cpu *Cpu) Config() emulator.Config[Reg] {
	return emulator.Config[Reg]{
		SystemSize:      cpu.Arch.SystemSize,
		RegisterNames:   slices.Clone(registers),
		Endianness:      cpu.Arch.Endianness,
		HiddenRegisters: []Reg{TMP},
	}
}

func (cpu *Cpu) MemoryConfig() memory.Config {
	return memory.Config{
		MaxAddress: cpu.Arch.MaxAddress,
		Fill:       cpu.Arch.Fill,
		Aligned:    cpu.Arch.Aligned,
	}
}

func (cpu *Cpu) Pc() Reg {
	return PC
}

func (cpu *Cpu) Sp() Reg {
	return SP
}

// Compile assembles a source text.
func (cpu *Cpu) Compile(source string) (prog *emulator.Program, diags []emulator.Diagnostic, report string) {
	asm := &Assembler{
		Verbose: cpu.Verbose,
		Arch:    cpu.Arch,
	}
	for equ, value := range cpu.predefine {
		asm.Predefine(equ, value)
	}

	prog, _ = asm.Parse(strings.NewReader(source))

	for _, err := range asm.Errors {
		diag := emulator.Diagnostic{Type: "raw", Message: err.Error()}
		var syn ErrSyntax
		if errors.As(err, &syn) {
			diag.LineNo = syn.LineNo
			diag.Message = syn.Err.Error()
		}
		diags = append(diags, diag)
	}

	report = asm.Report()
	return
}

// Reset sets the stack pointer and the program entry.
func (cpu *Cpu) Reset(regs *register.File[Reg], prog *emulator.Program) (err error) {
	entry := cpu.Arch.Origin
	if prog != nil {
		entry = prog.Entry
	}

	if cpu.Verbose {
		log.Printf("cpu: %v: reset, entry %#x", cpu.Arch.Name, entry)
	}

	err = regs.Set(SP, cpu.Arch.StackTop, 0)
	if err != nil {
		return
	}

	err = regs.Set(PC, entry, 0)
	return
}

// Flags decodes the status register.
func (cpu *Cpu) Flags(regs *register.File[Reg]) (flags []emulator.Flag) {
	sr, _ := regs.Get(SR, 0)
	names, bits := cpu.Arch.flagBits()
	for n, name := range names {
		flags = append(flags, emulator.Flag{Name: name, Value: sr&bits[n] != 0})
	}
	return
}

// StringifyError names the faults only this backend raises.
func (cpu *Cpu) StringifyError(err error) (text string, ok bool) {
	if !errors.Is(err, io.ErrTapeEmpty) {
		return
	}

	var rt *emulator.ErrRuntime
	if errors.As(err, &rt) {
		text = f("line %d: input exhausted at 0x%x", rt.LineNo, rt.Address)
	} else {
		text = f("input exhausted")
	}
	ok = true
	return
}

// size is the operand width of a code.
func (cpu *Cpu) size(code *Code) register.Size {
	if code.Size == 0 {
		return cpu.Arch.SystemSize
	}
	return code.Size
}

// address computes the effective address of a memory operand.
func (cpu *Cpu) address(x *emulator.Exec[Reg], opnd Operand) (addr uint64, err error) {
	switch opnd.Mode {
	case MODE_ABSOLUTE:
		addr = opnd.Value
	case MODE_INDIRECT:
		addr, err = x.Register(opnd.Reg, 0)
		addr += opnd.Value
	default:
		err = &emulator.ErrAddressingMode{Address: x.Pc(), Mode: opnd.Mode.String()}
	}
	return
}

// load reads an operand.
func (cpu *Cpu) load(x *emulator.Exec[Reg], opnd Operand, size register.Size) (value uint64, err error) {
	switch opnd.Mode {
	case MODE_REGISTER:
		return x.Register(opnd.Reg, size)
	case MODE_IMMEDIATE:
		return opnd.Value & size.Mask(), nil
	}

	addr, err := cpu.address(x, opnd)
	if err != nil {
		return
	}

	return x.Read(addr, size)
}

// store writes an operand.
func (cpu *Cpu) store(x *emulator.Exec[Reg], opnd Operand, value uint64, size register.Size) (err error) {
	switch opnd.Mode {
	case MODE_IMMEDIATE:
		return &emulator.ErrAddressingMode{Address: x.Pc(), Mode: opnd.Mode.String()}
	case MODE_REGISTER:
		if opnd.Reg == PC {
			return &emulator.ErrAddressingMode{Address: x.Pc(), Mode: string(PC)}
		}
		return x.SetRegister(opnd.Reg, value, size)
	}

	addr, err := cpu.address(x, opnd)
	if err != nil {
		return
	}

	return x.Write(addr, value, size)
}

// target reads the destination of a control transfer.
func (cpu *Cpu) target(x *emulator.Exec[Reg], opnd Operand) (addr uint64, err error) {
	switch opnd.Mode {
	case MODE_REGISTER:
		return x.Register(opnd.Reg, 0)
	case MODE_IMMEDIATE:
		return opnd.Value, nil
	}

	err = &emulator.ErrAddressingMode{Address: x.Pc(), Mode: opnd.Mode.String()}
	return
}

// push a system word onto the stack.
func (cpu *Cpu) push(x *emulator.Exec[Reg], value uint64) (err error) {
	sp, err := x.Register(SP, 0)
	if err != nil {
		return
	}

	sp = (sp - uint64(cpu.Arch.SystemSize)) & cpu.Arch.SystemSize.Mask()
	err = x.Write(sp, value, cpu.Arch.SystemSize)
	if err != nil {
		return
	}

	return x.SetRegister(SP, sp, 0)
}

// pop a system word from the stack.
func (cpu *Cpu) pop(x *emulator.Exec[Reg]) (value uint64, err error) {
	sp, err := x.Register(SP, 0)
	if err != nil {
		return
	}

	value, err = x.Read(sp, cpu.Arch.SystemSize)
	if err != nil {
		return
	}

	err = x.SetRegister(SP, sp+uint64(cpu.Arch.SystemSize), 0)
	return
}

// setFlags updates the 'affect' bits of the status register.
func (cpu *Cpu) setFlags(x *emulator.Exec[Reg], flags uint64, affect uint64) (err error) {
	if !cpu.Arch.Extend {
		affect &^= FLAG_X
	}

	sr, err := x.Register(SR, 0)
	if err != nil {
		return
	}

	return x.SetRegister(SR, (sr&^affect)|(flags&affect), 0)
}

// alu computes 'a OP b' at a width, and the resulting flags. 'a' is the
// destination operand, and 'b' the source.
func alu(op CodeOp, a, b uint64, size register.Size) (result uint64, flags uint64, affect uint64) {
	mask := size.Mask()
	width := uint64(size.Bits())
	sign := uint64(1) << (width - 1)
	a &= mask
	b &= mask

	affect = FLAG_N | FLAG_Z | FLAG_V | FLAG_C

	switch op {
	case OP_MOVE:
		result = b
	case OP_AND:
		result = a & b
	case OP_OR:
		result = a | b
	case OP_XOR:
		result = a ^ b
	case OP_NOT:
		result = ^a & mask
	case OP_ADD:
		sum, carry := bits.Add64(a, b, 0)
		if size != register.Double {
			carry = sum >> width
		}
		result = sum & mask
		if carry != 0 {
			flags |= FLAG_C
		}
		if (a^result)&(b^result)&sign != 0 {
			flags |= FLAG_V
		}
		affect |= FLAG_X
	case OP_SUB, OP_CMP, OP_NEG:
		result = (a - b) & mask
		if b > a {
			flags |= FLAG_C
		}
		if (a^b)&(a^result)&sign != 0 {
			flags |= FLAG_V
		}
		if op != OP_CMP {
			affect |= FLAG_X
		}
	case OP_MUL:
		hi, lo := bits.Mul64(a, b)
		result = lo & mask
		if hi != 0 || lo&^mask != 0 {
			flags |= FLAG_C | FLAG_V
		}
	case OP_DIV:
		result = a / b
	case OP_REM:
		result = a % b
	case OP_SHL:
		count := b % width
		result = (a << count) & mask
		if count > 0 && (a>>(width-count))&1 != 0 {
			flags |= FLAG_C
		}
		affect |= FLAG_X
	case OP_SHR:
		count := b % width
		result = a >> count
		if count > 0 && (a>>(count-1))&1 != 0 {
			flags |= FLAG_C
		}
		affect |= FLAG_X
	}

	if flags&FLAG_C != 0 {
		flags |= FLAG_X
	}
	if result&sign != 0 {
		flags |= FLAG_N
	}
	if result == 0 {
		flags |= FLAG_Z
	}

	return
}

// taken evaluates a branch condition against the status register.
func taken(op CodeOp, sr uint64) bool {
	n := sr&FLAG_N != 0
	z := sr&FLAG_Z != 0
	v := sr&FLAG_V != 0
	c := sr&FLAG_C != 0

	switch op {
	case OP_BEQ:
		return z
	case OP_BNE:
		return !z
	case OP_BLT:
		return n != v
	case OP_BGE:
		return n == v
	case OP_BGT:
		return !z && n == v
	case OP_BLE:
		return z || n != v
	case OP_BCS:
		return c
	case OP_BCC:
		return !c
	case OP_BMI:
		return n
	case OP_BPL:
		return !n
	case OP_BVS:
		return v
	case OP_BVC:
		return !v
	}

	return false
}

// labelOf finds a symbol for a code address.
func labelOf(prog *emulator.Program, addr uint64) string {
	for _, name := range slices.Sorted(maps.Keys(prog.Labels)) {
		if prog.Labels[name] == addr {
			return name
		}
	}
	return ""
}

// Execute runs a single decoded instruction.
func (cpu *Cpu) Execute(x *emulator.Exec[Reg], ins *emulator.Instruction) (terminated bool, err error) {
	code, ok := ins.Op.(*Code)
	if !ok {
		err = &emulator.ErrRaw{Message: f("%v: not an instruction: %v", cpu.Arch.Name, ins.Text)}
		return
	}

	pc := x.Pc()
	next := pc + ins.Size
	size := cpu.size(code)
	args := code.Args

	switch op := code.Op; op {
	case OP_NOP:
	case OP_HALT:
		terminated = true
		return
	case OP_MOVE, OP_NOT:
		var value uint64
		value, err = cpu.load(x, args[0], size)
		if err != nil {
			return
		}
		result, flags, affect := alu(op, value, value, size)
		err = cpu.store(x, args[len(args)-1], result, size)
		if err != nil {
			return
		}
		err = cpu.setFlags(x, flags, affect)
	case OP_NEG:
		var value uint64
		value, err = cpu.load(x, args[0], size)
		if err != nil {
			return
		}
		result, flags, affect := alu(op, 0, value, size)
		err = cpu.store(x, args[0], result, size)
		if err != nil {
			return
		}
		err = cpu.setFlags(x, flags, affect)
	case OP_ADD, OP_SUB, OP_AND, OP_OR, OP_XOR, OP_SHL, OP_SHR, OP_MUL, OP_DIV, OP_REM, OP_CMP:
		var a, b uint64
		b, err = cpu.load(x, args[0], size)
		if err != nil {
			return
		}
		a, err = cpu.load(x, args[1], size)
		if err != nil {
			return
		}
		if b == 0 && (op == OP_DIV || op == OP_REM) {
			err = &emulator.ErrDivisionByZero{Address: pc}
			return
		}
		result, flags, affect := alu(op, a, b, size)
		if op != OP_CMP {
			err = cpu.store(x, args[1], result, size)
			if err != nil {
				return
			}
		}
		err = cpu.setFlags(x, flags, affect)
	case OP_PUSH:
		var value uint64
		value, err = cpu.load(x, args[0], cpu.Arch.SystemSize)
		if err != nil {
			return
		}
		err = cpu.push(x, value)
	case OP_POP:
		var value uint64
		value, err = cpu.pop(x)
		if err != nil {
			return
		}
		err = cpu.store(x, args[0], value, cpu.Arch.SystemSize)
	case OP_XCHG:
		var a, b uint64
		a, err = cpu.load(x, args[0], cpu.Arch.SystemSize)
		if err != nil {
			return
		}
		b, err = cpu.load(x, args[1], cpu.Arch.SystemSize)
		if err != nil {
			return
		}
		err = x.SetRegister(TMP, a, 0)
		if err != nil {
			return
		}
		err = cpu.store(x, args[0], b, cpu.Arch.SystemSize)
		if err != nil {
			return
		}
		a, err = x.Register(TMP, 0)
		if err != nil {
			return
		}
		err = cpu.store(x, args[1], a, cpu.Arch.SystemSize)
	case OP_IN:
		var value uint64
		value, err = x.Receive()
		if err != nil {
			return
		}
		err = cpu.store(x, args[0], value, cpu.Arch.SystemSize)
	case OP_OUT:
		var value uint64
		value, err = cpu.load(x, args[0], cpu.Arch.SystemSize)
		if err != nil {
			return
		}
		x.Send(value)
	case OP_JUMP:
		next, err = cpu.target(x, args[0])
	case OP_CALL:
		var addr uint64
		addr, err = cpu.target(x, args[0])
		if err != nil {
			return
		}
		err = cpu.push(x, next)
		if err != nil {
			return
		}
		label := args[0].Label
		if len(label) == 0 {
			label = labelOf(x.Program(), addr)
		}
		x.PushFrame(emulator.StackFrame{CallSite: pc, Target: addr, Label: label})
		next = addr
	case OP_RETURN:
		next, err = cpu.pop(x)
		if err != nil {
			return
		}
		x.PopFrame()
	default:
		if !op.Branch() {
			err = &emulator.ErrUnimplemented{Address: pc}
			return
		}
		var addr, sr uint64
		addr, err = cpu.target(x, args[0])
		if err != nil {
			return
		}
		sr, err = x.Register(SR, 0)
		if err != nil {
			return
		}
		if taken(op, sr) {
			next = addr
		}
	}

	if err != nil {
		return
	}

	err = x.SetRegister(PC, next, 0)
	return
}
