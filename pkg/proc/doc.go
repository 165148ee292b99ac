// Package proc reads the memory image of a stopped process.
//
// A Target pairs the memory of the process, as read from a core file,
// with the symbol table and DWARF types of its executable. Values are
// decoded from it through Variable, which knows nothing about the
// program that produced them beyond what the debug information says.
package proc
