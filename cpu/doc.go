// Package cpu implements the reference instruction set family and its
// assembler, as backends for the emulator package.
//
// The family has two members. The m24 architecture is a big-endian machine
// with 32-bit registers, a 24-bit address bus, aligned memory accesses and an
// X (extend) flag. The r32 architecture is a little-endian machine with 64-bit
// registers, a 32-bit address bus and unaligned memory accesses.
//
// Both have eight general purpose registers (r0-r7), a stack pointer (sp), a
// program counter (pc) and a status register (sr) holding the condition
// flags. Instructions occupy four address units, and are kept in the program
// table rather than in memory.
//
// The assembler provides a two-operand 'SRC DST' syntax with optional size
// suffixes (.b .h .w .d), supporting macros, labels, equates, data
// directives and compile-time expression evaluation.
package cpu
