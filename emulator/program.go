package emulator

import (
	"cmp"
	"slices"

	"github.com/rdleal/intervalst/interval"
)

// Diagnostic is a compile-time message.
type Diagnostic struct {
	Type    string // Always "raw".
	Message string
	LineNo  int // Source line, or 0 when not tied to a line.
}

// Instruction is a decoded, compiled instruction.
type Instruction struct {
	Address uint64 // First address of the instruction.
	Size    uint64 // Address units occupied.
	LineNo  int    // Source line the instruction came from.
	Text    string // Source text.
	Op      any    // Backend-specific decoded operation.
}

// Decoration maps a source line onto the addresses compiled from it.
type Decoration struct {
	LineNo int
	Start  uint64 // First address.
	End    uint64 // One past the last address.
}

// MemoryBlock is a run of bytes at an address.
type MemoryBlock struct {
	Address uint64 `yaml:"address" toml:"address"`
	Data    []byte `yaml:"data" toml:"data"`
}

// Program is the output of a successful compile.
type Program struct {
	Entry        uint64            // Initial program counter.
	End          uint64            // One past the last instruction.
	Instructions []Instruction     // Ordered by address.
	Data         []MemoryBlock     // Loaded into memory on initialize.
	Labels       map[string]uint64 // Symbol table.

	tree *interval.SearchTree[int, uint64]
}

// NewProgram indexes compiled instructions by address range.
func NewProgram(entry uint64, instructions []Instruction, data []MemoryBlock) (prog *Program, err error) {
	prog = &Program{
		Entry:        entry,
		Instructions: slices.Clone(instructions),
		Data:         slices.Clone(data),
		Labels:       map[string]uint64{},
		tree:         interval.NewSearchTree[int, uint64](cmp.Compare[uint64]),
	}

	slices.SortStableFunc(prog.Instructions, func(a, b Instruction) int {
		return cmp.Compare(a.Address, b.Address)
	})

	for n, ins := range prog.Instructions {
		if ins.Size == 0 {
			err = ErrInstructionSize(ins.Address)
			return
		}
		if n > 0 {
			prior := prog.Instructions[n-1]
			if prior.Address+prior.Size > ins.Address {
				err = ErrInstructionOverlap(ins.Address)
				return
			}
		}
		err = prog.tree.Insert(ins.Address, ins.Address+ins.Size-1, n)
		if err != nil {
			return
		}
		prog.End = max(prog.End, ins.Address+ins.Size)
	}

	if len(prog.Instructions) == 0 {
		prog.End = entry
	}

	return
}

// Covering returns the instruction occupying an address, or nil.
func (prog *Program) Covering(address uint64) *Instruction {
	if prog == nil || prog.tree == nil {
		return nil
	}

	n, ok := prog.tree.AnyIntersection(address, address)
	if !ok {
		return nil
	}

	return &prog.Instructions[n]
}

// At returns the instruction starting at an address, or nil.
func (prog *Program) At(address uint64) *Instruction {
	ins := prog.Covering(address)
	if ins == nil || ins.Address != address {
		return nil
	}

	return ins
}

// LineAt returns the source line of the instruction covering an address,
// or 0 if there is none.
func (prog *Program) LineAt(address uint64) int {
	ins := prog.Covering(address)
	if ins == nil {
		return 0
	}

	return ins.LineNo
}

// Decorations merges the address ranges of each source line.
func (prog *Program) Decorations() (decos []Decoration) {
	if prog == nil {
		return
	}

	for _, ins := range prog.Instructions {
		last := len(decos) - 1
		if last >= 0 && decos[last].LineNo == ins.LineNo && decos[last].End == ins.Address {
			decos[last].End = ins.Address + ins.Size
			continue
		}
		decos = append(decos, Decoration{LineNo: ins.LineNo, Start: ins.Address, End: ins.Address + ins.Size})
	}

	return
}
