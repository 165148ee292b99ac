// Package fakepy builds the memory image of a stopped CPython 2.7
// interpreter, with the debug information describing it, for tests.
package fakepy

import (
	"debug/dwarf"
	"encoding/binary"
	"fmt"
	"math"
	"unicode/utf16"

	"github.com/go-delve/pyexc/pkg/proc"
	"github.com/go-delve/pyexc/pkg/pyobj"
)

// ThreadStateSymbol is the global holding the current thread state.
const ThreadStateSymbol = "_PyThreadState_Current"

const (
	ptrSize   = 8
	imageBase = 0x10000
)

// Options changes the build configuration of the interpreter.
type Options struct {
	// UCS2 stores unicode strings as UTF-16 code units instead of UCS4.
	UCS2 bool
	// Digit15 stores longs in 15 bit digits instead of 30 bit digits.
	Digit15 bool
}

// Image is the memory of an interpreter with its type information.
type Image struct {
	opts  Options
	data  []byte
	bi    *proc.BinaryInfo
	types map[string]uint64

	// None is the address of the None object.
	None uint64
	// ThreadState is the address of the current PyThreadState.
	ThreadState uint64
}

// ReadMemory implements proc.MemoryReader.
func (im *Image) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr < imageBase || addr-imageBase >= uint64(len(im.data)) {
		return 0, fmt.Errorf("unmapped address %#x", addr)
	}
	n := copy(buf, im.data[addr-imageBase:])
	if n < len(buf) {
		return n, fmt.Errorf("unmapped address %#x", addr+uint64(n))
	}
	return n, nil
}

// New returns an image containing the builtin types, None and a thread
// state with no exception.
func New(opts Options) *Image {
	im := &Image{
		opts:  opts,
		data:  make([]byte, 0x100),
		bi:    proc.NewBinaryInfo(ptrSize),
		types: make(map[string]uint64),
	}
	im.registerTypes()

	typeType := im.NewType("type", pyobj.TPFlagsTypeSubclass)
	im.Put64(typeType+8, typeType)
	for _, t := range []struct {
		name  string
		flags uint64
	}{
		{"NoneType", 0},
		{"bool", pyobj.TPFlagsIntSubclass},
		{"int", pyobj.TPFlagsIntSubclass},
		{"long", pyobj.TPFlagsLongSubclass},
		{"float", 0},
		{"str", pyobj.TPFlagsStringSubclass},
		{"unicode", pyobj.TPFlagsUnicodeSubclass},
		{"tuple", pyobj.TPFlagsTupleSubclass},
		{"list", pyobj.TPFlagsListSubclass},
		{"dict", pyobj.TPFlagsDictSubclass},
		{"set", 0},
		{"frozenset", 0},
		{"classobj", 0},
		{"instance", 0},
		{"builtin_function_or_method", 0},
		{"code", 0},
		{"frame", 0},
		{"traceback", 0},
		{"exceptions.ValueError", pyobj.TPFlagsBaseExcSubclass},
		{"exceptions.KeyError", pyobj.TPFlagsBaseExcSubclass},
		{"exceptions.RuntimeError", pyobj.TPFlagsBaseExcSubclass},
	} {
		im.NewType(t.name, t.flags)
	}

	im.None = im.object("NoneType", 16)

	im.ThreadState = im.Alloc(88)
	current := im.Alloc(ptrSize)
	im.Put64(current, im.ThreadState)
	typ, _ := im.bi.FindType("PyThreadState")
	im.bi.RegisterGlobal(ThreadStateSymbol, current, &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: ptrSize}, Type: typ})
	return im
}

// Target returns a target reading the image.
func (im *Image) Target() *proc.Target {
	return proc.NewTarget(im, im.bi)
}

// BinInfo returns the type information of the image.
func (im *Image) BinInfo() *proc.BinaryInfo {
	return im.bi
}

// Alloc returns the address of size zeroed bytes, aligned to 16 bytes.
func (im *Image) Alloc(size int) uint64 {
	for len(im.data)%16 != 0 {
		im.data = append(im.data, 0)
	}
	addr := imageBase + uint64(len(im.data))
	im.data = append(im.data, make([]byte, size)...)
	return addr
}

func (im *Image) slice(addr uint64, n int) []byte {
	off := addr - imageBase
	return im.data[off : off+uint64(n)]
}

// Put64 writes an 8 byte value at addr.
func (im *Image) Put64(addr, v uint64) {
	binary.LittleEndian.PutUint64(im.slice(addr, 8), v)
}

// Put32 writes a 4 byte value at addr.
func (im *Image) Put32(addr uint64, v uint32) {
	binary.LittleEndian.PutUint32(im.slice(addr, 4), v)
}

// Put16 writes a 2 byte value at addr.
func (im *Image) Put16(addr uint64, v uint16) {
	binary.LittleEndian.PutUint16(im.slice(addr, 2), v)
}

func (im *Image) putBytes(addr uint64, b []byte) {
	copy(im.slice(addr, len(b)), b)
}

// CString allocates a NUL terminated string.
func (im *Image) CString(s string) uint64 {
	addr := im.Alloc(len(s) + 1)
	im.putBytes(addr, []byte(s))
	return addr
}

// TypeObject returns the type object called name.
func (im *Image) TypeObject(name string) uint64 {
	addr, ok := im.types[name]
	if !ok {
		panic(fmt.Sprintf("no type %s", name))
	}
	return addr
}

// NewType allocates a type object.
func (im *Image) NewType(name string, flags uint64) uint64 {
	addr := im.Alloc(64)
	im.Put64(addr, 1)
	if tt, ok := im.types["type"]; ok {
		im.Put64(addr+8, tt)
	}
	im.Put64(addr+24, im.CString(name))
	im.Put64(addr+48, flags)
	im.types[name] = addr
	return addr
}

// NewHeapType allocates a class defined in Python whose instances are
// basicSize bytes long and keep their __dict__ at dictOffset.
func (im *Image) NewHeapType(name string, flags uint64, basicSize, itemSize, dictOffset int64) uint64 {
	addr := im.NewType(name, flags|pyobj.TPFlagsHeapType)
	im.Put64(addr+32, uint64(basicSize))
	im.Put64(addr+40, uint64(itemSize))
	im.Put64(addr+56, uint64(dictOffset))
	return addr
}

func (im *Image) object(typeName string, size int) uint64 {
	return im.objectOfType(im.TypeObject(typeName), size)
}

func (im *Image) objectOfType(typ uint64, size int) uint64 {
	addr := im.Alloc(size)
	im.Put64(addr, 1)
	im.Put64(addr+8, typ)
	return addr
}

// Int allocates an int.
func (im *Image) Int(n int64) uint64 {
	addr := im.object("int", 24)
	im.Put64(addr+16, uint64(n))
	return addr
}

// Bool allocates a bool.
func (im *Image) Bool(b bool) uint64 {
	addr := im.object("bool", 24)
	if b {
		im.Put64(addr+16, 1)
	}
	return addr
}

// Long allocates a long.
func (im *Image) Long(n int64) uint64 {
	shift, digitSize := uint(30), 4
	if im.opts.Digit15 {
		shift, digitSize = 15, 2
	}
	mag := uint64(n)
	if n < 0 {
		mag = uint64(-n)
	}
	var digits []uint64
	for mag != 0 {
		digits = append(digits, mag&(1<<shift-1))
		mag >>= shift
	}
	size := 24 + digitSize*len(digits)
	if size < 32 {
		size = 32
	}
	addr := im.object("long", size)
	obSize := int64(len(digits))
	if n < 0 {
		obSize = -obSize
	}
	im.Put64(addr+16, uint64(obSize))
	for i, d := range digits {
		if digitSize == 2 {
			im.Put16(addr+24+uint64(2*i), uint16(d))
		} else {
			im.Put32(addr+24+uint64(4*i), uint32(d))
		}
	}
	return addr
}

// Float allocates a float.
func (im *Image) Float(f float64) uint64 {
	addr := im.object("float", 24)
	im.Put64(addr+16, math.Float64bits(f))
	return addr
}

// Str allocates a str.
func (im *Image) Str(s string) uint64 {
	addr := im.object("str", 36+len(s)+1)
	im.Put64(addr+16, uint64(len(s)))
	im.Put64(addr+24, ^uint64(0))
	im.putBytes(addr+36, []byte(s))
	return addr
}

// Unicode allocates a unicode string.
func (im *Image) Unicode(s string) uint64 {
	var units []uint32
	for _, r := range s {
		if im.opts.UCS2 && r >= 0x10000 {
			r1, r2 := utf16.EncodeRune(r)
			units = append(units, uint32(r1), uint32(r2))
			continue
		}
		units = append(units, uint32(r))
	}
	unitSize := 4
	if im.opts.UCS2 {
		unitSize = 2
	}
	buf := im.Alloc(unitSize * (len(units) + 1))
	for i, u := range units {
		if unitSize == 2 {
			im.Put16(buf+uint64(2*i), uint16(u))
		} else {
			im.Put32(buf+uint64(4*i), u)
		}
	}
	addr := im.object("unicode", 48)
	im.Put64(addr+16, uint64(len(units)))
	im.Put64(addr+24, buf)
	im.Put64(addr+32, ^uint64(0))
	return addr
}

// Tuple allocates a tuple.
func (im *Image) Tuple(items ...uint64) uint64 {
	n := len(items)
	if n == 0 {
		n = 1
	}
	addr := im.object("tuple", 24+ptrSize*n)
	im.Put64(addr+16, uint64(len(items)))
	for i, item := range items {
		im.Put64(addr+24+uint64(ptrSize*i), item)
	}
	return addr
}

// List allocates a list.
func (im *Image) List(items ...uint64) uint64 {
	addr := im.object("list", 40)
	im.Put64(addr+16, uint64(len(items)))
	im.Put64(addr+32, uint64(len(items)))
	if len(items) > 0 {
		buf := im.Alloc(ptrSize * len(items))
		for i, item := range items {
			im.Put64(buf+uint64(ptrSize*i), item)
		}
		im.Put64(addr+24, buf)
	}
	return addr
}

// SetListItem replaces element i of list.
func (im *Image) SetListItem(list uint64, i int, item uint64) {
	buf := binary.LittleEndian.Uint64(im.slice(list+24, 8))
	im.Put64(buf+uint64(ptrSize*i), item)
}

func tableSize(n int) int {
	size := 8
	for size < 2*n+1 {
		size *= 2
	}
	return size
}

// Dict allocates a dict from alternating keys and values. A zero value
// leaves a deleted slot with its key.
func (im *Image) Dict(kv ...uint64) uint64 {
	if len(kv)%2 != 0 {
		panic("odd number of arguments to Dict")
	}
	n := len(kv) / 2
	size := tableSize(n)
	const entrySize = 24
	table := im.Alloc(entrySize * size)
	used := 0
	for i := 0; i < n; i++ {
		entry := table + uint64(entrySize*i)
		im.Put64(entry, uint64(i+1))
		im.Put64(entry+8, kv[2*i])
		im.Put64(entry+16, kv[2*i+1])
		if kv[2*i+1] != 0 {
			used++
		}
	}
	addr := im.object("dict", 48)
	im.Put64(addr+16, uint64(n))
	im.Put64(addr+24, uint64(used))
	im.Put64(addr+32, uint64(size-1))
	im.Put64(addr+40, table)
	return addr
}

// SetDictValue replaces the value of the i-th entry added to dict.
func (im *Image) SetDictValue(dict uint64, i int, value uint64) {
	table := binary.LittleEndian.Uint64(im.slice(dict+40, 8))
	im.Put64(table+uint64(24*i)+16, value)
}

// DummyKey allocates the key left by deletions in sets.
func (im *Image) DummyKey() uint64 {
	return im.Str("<dummy key>")
}

// Set allocates a set, or a frozenset if frozen is set.
func (im *Image) Set(frozen bool, items ...uint64) uint64 {
	size := tableSize(len(items))
	const entrySize = 16
	table := im.Alloc(entrySize * size)
	for i, item := range items {
		entry := table + uint64(entrySize*(i*2))
		im.Put64(entry, uint64(i+1))
		im.Put64(entry+8, item)
	}
	typ := "set"
	if frozen {
		typ = "frozenset"
	}
	addr := im.object(typ, 48)
	im.Put64(addr+16, uint64(len(items)))
	im.Put64(addr+24, uint64(len(items)))
	im.Put64(addr+32, uint64(size-1))
	im.Put64(addr+40, table)
	return addr
}

// Exception allocates an instance of the exception type typ.
func (im *Image) Exception(typ uint64, args ...uint64) uint64 {
	addr := im.objectOfType(typ, 40)
	im.Put64(addr+24, im.Tuple(args...))
	if len(args) == 1 {
		im.Put64(addr+32, args[0])
	}
	return addr
}

// SetExceptionArgs replaces the args of an exception.
func (im *Image) SetExceptionArgs(exc, args uint64) {
	im.Put64(exc+24, args)
}

// Class allocates an old-style class.
func (im *Image) Class(name string) uint64 {
	addr := im.object("classobj", 40)
	im.Put64(addr+16, im.Tuple())
	im.Put64(addr+24, im.Dict())
	im.Put64(addr+32, im.Str(name))
	return addr
}

// Instance allocates an instance of the old-style class with attributes in
// dict.
func (im *Image) Instance(class, dict uint64) uint64 {
	addr := im.object("instance", 32)
	im.Put64(addr+16, class)
	im.Put64(addr+24, dict)
	return addr
}

// HeapInstance allocates an instance of the heap type typ, storing dict
// at the dict offset of the type.
func (im *Image) HeapInstance(typ uint64, dict uint64) uint64 {
	basic := int64(binary.LittleEndian.Uint64(im.slice(typ+32, 8)))
	offset := int64(binary.LittleEndian.Uint64(im.slice(typ+56, 8)))
	if basic < 24 {
		basic = 24
	}
	addr := im.objectOfType(typ, int(basic))
	if offset > 0 {
		im.Put64(addr+uint64(offset), dict)
	}
	return addr
}

// CFunction allocates a builtin function, or a method bound to self if
// self is not zero.
func (im *Image) CFunction(name string, self uint64) uint64 {
	def := im.Alloc(32)
	im.Put64(def, im.CString(name))
	addr := im.object("builtin_function_or_method", 40)
	im.Put64(addr+16, def)
	im.Put64(addr+24, self)
	return addr
}

// Code allocates a code object with a local variable for each of varnames.
func (im *Image) Code(filename, name string, firstLine int, lnotab []byte, varnames ...string) uint64 {
	names := make([]uint64, len(varnames))
	for i, n := range varnames {
		names[i] = im.Str(n)
	}
	addr := im.object("code", 112)
	im.Put32(addr+20, uint32(len(varnames)))
	im.Put64(addr+56, im.Tuple(names...))
	im.Put64(addr+80, im.Str(filename))
	im.Put64(addr+88, im.Str(name))
	im.Put32(addr+96, uint32(firstLine))
	im.Put64(addr+104, im.Str(string(lnotab)))
	return addr
}

// Frame allocates a frame running code at bytecode offset lasti, called
// by back. locals are the values of the local variables of code, zero for
// unbound ones.
func (im *Image) Frame(back, code uint64, lasti int, locals ...uint64) uint64 {
	n := len(locals)
	if n == 0 {
		n = 1
	}
	addr := im.object("frame", 112+ptrSize*n)
	im.Put64(addr+16, uint64(len(locals)))
	im.Put64(addr+24, back)
	im.Put64(addr+32, code)
	im.Put32(addr+96, uint32(lasti))
	for i, l := range locals {
		im.Put64(addr+112+uint64(ptrSize*i), l)
	}
	return addr
}

// SetFrameLocal replaces local i of frame.
func (im *Image) SetFrameLocal(frame uint64, i int, value uint64) {
	im.Put64(frame+112+uint64(ptrSize*i), value)
}

// SetTrace marks frame as traced, with f_lineno set to line.
func (im *Image) SetTrace(frame uint64, line int) {
	im.Put64(frame+80, im.None)
	im.Put32(frame+100, uint32(line))
}

// Traceback allocates a traceback node for frame, followed by next.
func (im *Image) Traceback(frame, next uint64) uint64 {
	addr := im.object("traceback", 40)
	im.Put64(addr+16, next)
	im.Put64(addr+24, frame)
	return addr
}

// SetTracebackNext replaces the next node of tb.
func (im *Image) SetTracebackNext(tb, next uint64) {
	im.Put64(tb+16, next)
}

// SetExcInfo sets the exception being handled by the current thread.
func (im *Image) SetExcInfo(typ, value, tb uint64) {
	im.Put64(im.ThreadState+56, typ)
	im.Put64(im.ThreadState+64, value)
	im.Put64(im.ThreadState+72, tb)
}
