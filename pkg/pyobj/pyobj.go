// Package pyobj wraps the objects of a frozen CPython 2.7 interpreter so
// that they can be printed the way the interpreter itself would print them.
package pyobj

import (
	"debug/dwarf"
	"errors"
	"fmt"

	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/proc"
)

// Process is the access to the inspected process needed by the wrappers.
// *proc.Target implements it.
type Process interface {
	FindGlobal(name string) (*proc.Variable, error)
	FindType(name string) (dwarf.Type, error)
	NewVariable(name string, addr uint64, typ dwarf.Type) *proc.Variable
	PtrSize() int
}

// Object is a wrapped PyObject* of the inspected process.
type Object interface {
	// Addr returns the address of the object.
	Addr() uint64
	// IsNull reports whether the object is a NULL pointer.
	IsNull() bool
	// TypeName returns the tp_name of the type of the object.
	TypeName() string
	// WriteRepr writes the representation of the object to out. Objects
	// already in visited are written as a placeholder.
	WriteRepr(out *Writer, visited Visited) error
}

// maxTypeNameLen is the longest tp_name read from the target.
const maxTypeNameLen = 256

// Visited is the set of objects already written by WriteRepr, used to stop
// on self-referential objects.
type Visited map[uint64]struct{}

// Enter adds addr to the set. It returns false if addr was already in it.
func (v Visited) Enter(addr uint64) bool {
	if _, ok := v[addr]; ok {
		return false
	}
	v[addr] = struct{}{}
	return true
}

// Inspector creates wrappers for objects of a process, choosing the
// constructor for each object from a Registry.
type Inspector struct {
	proc Process
	reg  *Registry
	log  logflags.Logger
}

// NewInspector returns an Inspector for p using the rules of reg.
func NewInspector(p Process, reg *Registry) *Inspector {
	return &Inspector{proc: p, reg: reg, log: logflags.PyObjLogger()}
}

// Process returns the process inspected by in.
func (in *Inspector) Process() Process {
	return in.proc
}

// Registry returns the registry used by in.
func (in *Inspector) Registry() *Registry {
	return in.reg
}

// Struct returns the variable of C type typename at addr.
func (in *Inspector) Struct(addr uint64, typename string) (*proc.Variable, error) {
	typ, err := in.proc.FindType(typename)
	if err != nil {
		return nil, err
	}
	return in.proc.NewVariable("("+typename+")", addr, typ), nil
}

// pointerAt returns the PyObject* stored at addr.
func (in *Inspector) pointerAt(name string, addr uint64) (*proc.Variable, error) {
	typ, err := in.proc.FindType("PyObject")
	if err != nil {
		return nil, err
	}
	ptr := &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: int64(in.proc.PtrSize())}, Type: typ}
	return in.proc.NewVariable(name, addr, ptr), nil
}

// FromVariable wraps the object pointed to by v, which must be a pointer.
func (in *Inspector) FromVariable(v *proc.Variable) (Object, error) {
	addr, err := v.Pointer()
	if err != nil {
		return nil, err
	}
	return in.FromAddr(addr)
}

// FromAddr wraps the object at addr, picking the most specific wrapper for
// the type of the object. NULL and objects whose type can not be read are
// wrapped in a plain Base.
func (in *Inspector) FromAddr(addr uint64) (Object, error) {
	base := Base{insp: in, addr: addr}
	if addr == 0 {
		return &base, nil
	}
	flags, err := base.readType()
	if err != nil {
		in.log.Debugf("could not read type of object at %#x: %v", addr, err)
		return &base, nil
	}
	ctor := in.reg.lookup(base.tpName, flags)
	if ctor == nil {
		return &base, nil
	}
	return ctor(base)
}

// Base is the generic wrapper, embedded by every specific one.
type Base struct {
	insp     *Inspector
	addr     uint64
	typeAddr uint64
	tpName   string
}

func (b *Base) readType() (flags uint64, err error) {
	obj, err := b.insp.Struct(b.addr, "PyObject")
	if err != nil {
		return 0, err
	}
	obType, err := obj.Field("ob_type")
	if err != nil {
		return 0, err
	}
	if b.typeAddr, err = obType.Pointer(); err != nil {
		return 0, err
	}
	if b.typeAddr == 0 {
		return 0, &proc.NilPointerError{Name: "ob_type"}
	}
	typ, err := b.insp.Struct(b.typeAddr, "PyTypeObject")
	if err != nil {
		return 0, err
	}
	name, err := typ.Field("tp_name")
	if err != nil {
		return 0, err
	}
	if b.tpName, err = name.CString(maxTypeNameLen); err != nil {
		return 0, err
	}
	tpFlags, err := typ.Field("tp_flags")
	if err != nil {
		return 0, err
	}
	return tpFlags.Uint()
}

func (b *Base) Addr() uint64 {
	return b.addr
}

func (b *Base) IsNull() bool {
	return b.addr == 0
}

// TypeName returns the type name of the object, "unknown" if it could not
// be read.
func (b *Base) TypeName() string {
	if b.tpName == "" {
		return "unknown"
	}
	return b.tpName
}

// Inspector returns the Inspector that created b.
func (b *Base) Inspector() *Inspector {
	return b.insp
}

func (b *Base) WriteRepr(out *Writer, visited Visited) error {
	if b.IsNull() {
		out.WriteString("0x0")
		return out.Err()
	}
	out.Printf("<%s at remote %#x>", b.TypeName(), b.addr)
	return out.Err()
}

// Struct returns the object as a variable of C type typename.
func (b *Base) Struct(typename string) (*proc.Variable, error) {
	return b.insp.Struct(b.addr, typename)
}

// Field returns the member field of the object seen as a typename.
func (b *Base) Field(typename, field string) (*proc.Variable, error) {
	v, err := b.Struct(typename)
	if err != nil {
		return nil, err
	}
	return v.Field(field)
}

// Member wraps the PyObject* stored in the member field of the object seen as
// a typename.
func (b *Base) Member(typename, field string) (Object, error) {
	return b.insp.member(b.addr, typename, field)
}

func (in *Inspector) member(addr uint64, typename, field string) (Object, error) {
	v, err := in.Struct(addr, typename)
	if err != nil {
		return nil, err
	}
	f, err := v.Field(field)
	if err != nil {
		return nil, err
	}
	return in.FromVariable(f)
}

// typeField returns a member of the PyTypeObject of the object.
func (b *Base) typeField(field string) (*proc.Variable, error) {
	if b.typeAddr == 0 {
		return nil, &proc.NilPointerError{Name: "ob_type"}
	}
	typ, err := b.insp.Struct(b.typeAddr, "PyTypeObject")
	if err != nil {
		return nil, err
	}
	return typ.Field(field)
}

func fieldInt(v *proc.Variable, field string) (int64, error) {
	f, err := v.Field(field)
	if err != nil {
		return 0, err
	}
	return f.Int()
}

// StringValuer is implemented by wrappers of string objects.
type StringValuer interface {
	StringValue() (string, error)
}

// writeName writes o as a name: the raw value of a string, the repr of
// anything else.
func writeName(out *Writer, o Object, visited Visited) error {
	if sv, ok := o.(StringValuer); ok {
		s, err := sv.StringValue()
		if err != nil {
			return err
		}
		out.WriteString(s)
		return out.Err()
	}
	return o.WriteRepr(out, visited)
}

// ErrCorrupted is returned when an object has impossible contents.
var ErrCorrupted = errors.New("corrupted object")

// maxObjectLen is the largest element count or byte length accepted for a
// variable size object.
const maxObjectLen = 1 << 28

func checkLen(what string, addr uint64, n int64) error {
	if n < 0 || n > maxObjectLen {
		return fmt.Errorf("%s at %#x has length %d: %w", what, addr, n, ErrCorrupted)
	}
	return nil
}
