package cpu

import (
	"fmt"
	"iter"
	"maps"
	"slices"

	"github.com/ezrec/asmemu/emulator"
	"github.com/ezrec/asmemu/register"
)

// Reg is a register name.
type Reg string

const (
	R0  = Reg("r0")
	R1  = Reg("r1")
	R2  = Reg("r2")
	R3  = Reg("r3")
	R4  = Reg("r4")
	R5  = Reg("r5")
	R6  = Reg("r6")
	R7  = Reg("r7")
	SP  = Reg("sp")  // Stack pointer.
	PC  = Reg("pc")  // Program counter.
	SR  = Reg("sr")  // Status register.
	TMP = Reg("tmp") // Scratch, hidden from enumeration.
)

// registers in declaration order.
var registers = []Reg{R0, R1, R2, R3, R4, R5, R6, R7, SP, PC, SR, TMP}

// regMap maps source names to registers.
var regMap = func() (regs map[string]Reg) {
	regs = make(map[string]Reg, len(registers))
	for _, reg := range registers {
		regs[string(reg)] = reg
	}
	return
}()

// Status register flag bits.
const (
	FLAG_C = uint64(1 << 0) // Carry
	FLAG_V = uint64(1 << 1) // Overflow
	FLAG_Z = uint64(1 << 2) // Zero
	FLAG_N = uint64(1 << 3) // Negative
	FLAG_X = uint64(1 << 4) // Extend
)

// INSTRUCTION_SIZE is the number of address units an instruction occupies.
const INSTRUCTION_SIZE = 4

// Arch describes one member of the instruction set family.
type Arch struct {
	Name       string
	SystemSize register.Size       // Register width.
	Endianness emulator.Endianness // Memory byte order.
	MaxAddress uint64              // Highest valid memory address.
	Fill       byte                // Value of never-written memory.
	Aligned    bool                // Multi-byte accesses must be aligned.
	Extend     bool                // Has an X (extend) flag.
	Origin     uint64              // Default load address.
	StackTop   uint64              // Initial stack pointer.
}

// Arch24 is a big-endian 32-bit machine with a 24-bit address bus.
var Arch24 = Arch{
	Name:       "m24",
	SystemSize: register.Word,
	Endianness: emulator.BigEndian,
	MaxAddress: 0xFFFFFF,
	Fill:       0xFF,
	Aligned:    true,
	Extend:     true,
	Origin:     0x400,
	StackTop:   0x1000000,
}

// Arch32 is a little-endian 64-bit machine with a 32-bit address bus.
var Arch32 = Arch{
	Name:       "r32",
	SystemSize: register.Double,
	Endianness: emulator.LittleEndian,
	MaxAddress: 0xFFFFFFFF,
	Fill:       0x00,
	Origin:     0x1000,
	StackTop:   0x100000000,
}

var archMap = map[string]*Arch{
	Arch24.Name: &Arch24,
	Arch32.Name: &Arch32,
}

// ArchNames lists the known architectures.
func ArchNames() []string {
	return slices.Sorted(maps.Keys(archMap))
}

// LookupArch finds an architecture by name.
func LookupArch(name string) (arch *Arch, err error) {
	arch, ok := archMap[name]
	if !ok {
		err = ErrArchUnknown(name)
	}
	return
}

// flagBits lists the condition flags, most significant first.
func (arch *Arch) flagBits() (names []string, bits []uint64) {
	if arch.Extend {
		names = append(names, "X")
		bits = append(bits, FLAG_X)
	}
	names = append(names, "N", "Z", "V", "C")
	bits = append(bits, FLAG_N, FLAG_Z, FLAG_V, FLAG_C)
	return
}

// Defines are the assembler equates of the architecture.
func (arch *Arch) Defines() iter.Seq2[string, string] {
	return maps.All(map[string]string{
		"WORD_SIZE":   fmt.Sprintf("%d", int(arch.SystemSize)),
		"MAX_ADDRESS": fmt.Sprintf("%#x", arch.MaxAddress),
		"STACK_TOP":   fmt.Sprintf("%#x", arch.StackTop),
		"ORIGIN":      fmt.Sprintf("%#x", arch.Origin),
	})
}
