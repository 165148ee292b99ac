package proc

import (
	"debug/dwarf"
	"errors"
	"fmt"
	"io"
)

// Target represents the image of a stopped process: its memory and the
// debug information of its executable.
type Target struct {
	mem MemoryReader
	bi  *BinaryInfo

	// Pid of the process, 0 if unknown.
	Pid int

	closers []io.Closer
}

// ErrShortRead is returned on a short read.
var ErrShortRead = errors.New("short read")

// SymbolNotFoundError is returned when a global symbol can not be found in
// the symbol table of the executable.
type SymbolNotFoundError struct {
	Name string
}

func (err *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("could not find symbol %s", err.Name)
}

// TypeNotFoundError is returned when the debug info has no type with the
// requested name.
type TypeNotFoundError struct {
	Name string
}

func (err *TypeNotFoundError) Error() string {
	return fmt.Sprintf("could not find type %s", err.Name)
}

// FieldNotFoundError is returned when a struct does not have the requested
// member.
type FieldNotFoundError struct {
	Type  string
	Field string
}

func (err *FieldNotFoundError) Error() string {
	return fmt.Sprintf("%s has no member named %s", err.Type, err.Field)
}

// NilPointerError is returned when dereferencing a NULL pointer.
type NilPointerError struct {
	Name string
}

func (err *NilPointerError) Error() string {
	if err.Name == "" {
		return "nil pointer dereference"
	}
	return fmt.Sprintf("nil pointer dereference of %s", err.Name)
}

// MemoryReadError is returned when the memory of the target can not be read.
type MemoryReadError struct {
	Addr uint64
	Len  int
	Err  error
}

func (err *MemoryReadError) Error() string {
	return fmt.Sprintf("could not read %d bytes at %#x: %v", err.Len, err.Addr, err.Err)
}

func (err *MemoryReadError) Unwrap() error {
	return err.Err
}

// NewTarget returns a target reading from mem, described by bi. Reads go
// through a page cache.
func NewTarget(mem MemoryReader, bi *BinaryInfo) *Target {
	return &Target{mem: CacheMemory(mem, DefaultCachePages), bi: bi}
}

// BinInfo returns the binary info of the target.
func (t *Target) BinInfo() *BinaryInfo {
	return t.bi
}

// Memory returns the memory of the target.
func (t *Target) Memory() MemoryReader {
	return t.mem
}

// PtrSize returns the size of a pointer on the target.
func (t *Target) PtrSize() int {
	return t.bi.PtrSize()
}

// FindType returns the type called name.
func (t *Target) FindType(name string) (dwarf.Type, error) {
	return t.bi.FindType(name)
}

// FindGlobal returns the global variable called name.
func (t *Target) FindGlobal(name string) (*Variable, error) {
	addr, typ, err := t.bi.findGlobal(name)
	if err != nil {
		return nil, err
	}
	return newVariable(name, addr, typ, t.bi, t.mem), nil
}

// NewVariable returns a variable of type typ at addr.
func (t *Target) NewVariable(name string, addr uint64, typ dwarf.Type) *Variable {
	return newVariable(name, addr, typ, t.bi, t.mem)
}

// AddCloser registers c to be closed by Close.
func (t *Target) AddCloser(c io.Closer) {
	t.closers = append(t.closers, c)
}

// Close releases the files backing the target.
func (t *Target) Close() error {
	var err error
	for _, c := range t.closers {
		if err1 := c.Close(); err == nil {
			err = err1
		}
	}
	t.closers = nil
	return err
}
