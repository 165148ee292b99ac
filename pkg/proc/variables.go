package proc

import (
	"bytes"
	"debug/dwarf"
	"fmt"
	"math"
)

// Variable is a typed location in the memory of the inspected process.
type Variable struct {
	Addr      uint64
	Name      string
	DwarfType dwarf.Type
	// RealType is DwarfType with typedefs and qualifiers removed.
	RealType dwarf.Type

	mem MemoryReader
	bi  *BinaryInfo
}

func newVariable(name string, addr uint64, dwarfType dwarf.Type, bi *BinaryInfo, mem MemoryReader) *Variable {
	return &Variable{
		Name:      name,
		Addr:      addr,
		DwarfType: dwarfType,
		RealType:  resolveTypedef(dwarfType),
		mem:       mem,
		bi:        bi,
	}
}

func (v *Variable) newVariable(name string, addr uint64, dwarfType dwarf.Type) *Variable {
	return newVariable(name, addr, dwarfType, v.bi, v.mem)
}

// resolveTypedef strips typedefs and qualifiers from typ.
func resolveTypedef(typ dwarf.Type) dwarf.Type {
	for {
		switch tt := typ.(type) {
		case *dwarf.TypedefType:
			typ = tt.Type
		case *dwarf.QualType:
			typ = tt.Type
		default:
			return typ
		}
	}
}

// Size returns the size in bytes of the variable.
func (v *Variable) Size() int64 {
	if v.RealType == nil {
		return 0
	}
	if _, isptr := v.RealType.(*dwarf.PtrType); isptr && v.RealType.Size() <= 0 {
		return int64(v.bi.PtrSize())
	}
	return v.RealType.Size()
}

// Load reads the whole variable into a private snapshot. Later reads of the
// variable and of its fields are served from the snapshot.
func (v *Variable) Load() error {
	mem, err := cacheMemory(v.mem, v.Addr, int(v.Size()))
	if err != nil {
		return fmt.Errorf("could not load %s: %w", v.describe(), err)
	}
	v.mem = mem
	return nil
}

func (v *Variable) describe() string {
	name := v.Name
	if name == "" {
		name = "<anonymous>"
	}
	tname := "<nil>"
	if v.DwarfType != nil {
		tname = v.DwarfType.String()
	}
	return fmt.Sprintf("%s (%s at %#x)", name, tname, v.Addr)
}

// Pointer returns the value of a pointer variable.
func (v *Variable) Pointer() (uint64, error) {
	if _, isptr := v.RealType.(*dwarf.PtrType); !isptr {
		return 0, fmt.Errorf("%s is not a pointer", v.describe())
	}
	return v.readUint(v.Size())
}

// Deref returns the variable pointed to by v.
func (v *Variable) Deref() (*Variable, error) {
	ptrType, isptr := v.RealType.(*dwarf.PtrType)
	if !isptr {
		return nil, fmt.Errorf("%s is not a pointer", v.describe())
	}
	addr, err := v.Pointer()
	if err != nil {
		return nil, err
	}
	if addr == 0 {
		return nil, &NilPointerError{Name: v.Name}
	}
	return v.newVariable("*"+v.Name, addr, ptrType.Type), nil
}

// Cast returns a variable of type typ at the same address as v.
func (v *Variable) Cast(typ dwarf.Type) *Variable {
	return v.newVariable(v.Name, v.Addr, typ)
}

// Field returns the struct member called name. Pointers to structs are
// dereferenced first.
func (v *Variable) Field(name string) (*Variable, error) {
	structVar := v
	if _, isptr := v.RealType.(*dwarf.PtrType); isptr {
		var err error
		structVar, err = v.Deref()
		if err != nil {
			return nil, err
		}
		structVar.Name = v.Name
	}
	st, ok := structVar.RealType.(*dwarf.StructType)
	if !ok {
		return nil, fmt.Errorf("%s is not a struct", structVar.describe())
	}
	for _, field := range st.Field {
		if field.Name == name {
			return structVar.newVariable(structVar.Name+"."+name, structVar.Addr+uint64(field.ByteOffset), field.Type), nil
		}
	}
	return nil, &FieldNotFoundError{Type: st.String(), Field: name}
}

// Index returns element i of an array, or of the memory pointed to by a
// pointer. Arrays declared with zero or one element are treated as C
// flexible array members and are not bounds checked.
func (v *Variable) Index(i int64) (*Variable, error) {
	if i < 0 {
		return nil, fmt.Errorf("index out of bounds: %d", i)
	}
	switch t := v.RealType.(type) {
	case *dwarf.ArrayType:
		if t.Count > 1 && i >= t.Count {
			return nil, fmt.Errorf("index out of bounds: %d (len %d)", i, t.Count)
		}
		stride := t.StrideBitSize / 8
		if stride <= 0 {
			stride = elemSize(t.Type, v.bi)
		}
		return v.newVariable(fmt.Sprintf("%s[%d]", v.Name, i), v.Addr+uint64(i*stride), t.Type), nil
	case *dwarf.PtrType:
		base, err := v.Pointer()
		if err != nil {
			return nil, err
		}
		if base == 0 {
			return nil, &NilPointerError{Name: v.Name}
		}
		return v.newVariable(fmt.Sprintf("%s[%d]", v.Name, i), base+uint64(i*elemSize(t.Type, v.bi)), t.Type), nil
	default:
		return nil, fmt.Errorf("%s can not be indexed", v.describe())
	}
}

func elemSize(typ dwarf.Type, bi *BinaryInfo) int64 {
	real := resolveTypedef(typ)
	if _, isptr := real.(*dwarf.PtrType); isptr && real.Size() <= 0 {
		return int64(bi.PtrSize())
	}
	return real.Size()
}

// Int returns the value of a signed or unsigned integer variable.
func (v *Variable) Int() (int64, error) {
	switch v.RealType.(type) {
	case *dwarf.IntType, *dwarf.CharType, *dwarf.EnumType:
		return v.readInt(v.Size())
	case *dwarf.UintType, *dwarf.UcharType, *dwarf.BoolType:
		n, err := v.readUint(v.Size())
		return int64(n), err
	default:
		return 0, fmt.Errorf("%s is not an integer", v.describe())
	}
}

// Uint returns the value of an integer variable as an unsigned number.
func (v *Variable) Uint() (uint64, error) {
	switch v.RealType.(type) {
	case *dwarf.IntType, *dwarf.CharType, *dwarf.EnumType, *dwarf.UintType, *dwarf.UcharType, *dwarf.BoolType:
		return v.readUint(v.Size())
	default:
		return 0, fmt.Errorf("%s is not an integer", v.describe())
	}
}

// Float returns the value of a floating point variable.
func (v *Variable) Float() (float64, error) {
	if _, ok := v.RealType.(*dwarf.FloatType); !ok {
		return 0, fmt.Errorf("%s is not a floating point number", v.describe())
	}
	switch v.Size() {
	case 4:
		n, err := v.readUint(4)
		return float64(math.Float32frombits(uint32(n))), err
	case 8:
		n, err := v.readUint(8)
		return math.Float64frombits(n), err
	default:
		return 0, fmt.Errorf("unsupported float size %d", v.Size())
	}
}

// Bytes reads n bytes starting at the address of v.
func (v *Variable) Bytes(n int64) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("invalid length %d", n)
	}
	buf := make([]byte, n)
	if err := readFull(v.mem, buf, v.Addr); err != nil {
		return nil, err
	}
	return buf, nil
}

// CString reads the NUL terminated string pointed to by v, reading at most
// max bytes.
func (v *Variable) CString(max int) (string, error) {
	addr, err := v.Pointer()
	if err != nil {
		return "", err
	}
	if addr == 0 {
		return "", &NilPointerError{Name: v.Name}
	}
	return readCString(v.mem, addr, max)
}

func readCString(mem MemoryReader, addr uint64, max int) (string, error) {
	const chunk = 64
	var out []byte
	for len(out) < max {
		sz := chunk
		if rem := max - len(out); rem < sz {
			sz = rem
		}
		buf := make([]byte, sz)
		n, err := mem.ReadMemory(buf, addr+uint64(len(out)))
		if n == 0 && err != nil {
			return "", &MemoryReadError{Addr: addr, Len: max, Err: err}
		}
		buf = buf[:n]
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return string(append(out, buf[:i]...)), nil
		}
		out = append(out, buf...)
		if err != nil {
			break
		}
	}
	return string(out), nil
}

func (v *Variable) readUint(size int64) (uint64, error) {
	buf := make([]byte, size)
	if err := readFull(v.mem, buf, v.Addr); err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return uint64(buf[0]), nil
	case 2:
		return uint64(v.bi.ByteOrder.Uint16(buf)), nil
	case 4:
		return uint64(v.bi.ByteOrder.Uint32(buf)), nil
	case 8:
		return v.bi.ByteOrder.Uint64(buf), nil
	}
	return 0, fmt.Errorf("unsupported integer size %d", size)
}

func (v *Variable) readInt(size int64) (int64, error) {
	n, err := v.readUint(size)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1:
		return int64(int8(n)), nil
	case 2:
		return int64(int16(n)), nil
	case 4:
		return int64(int32(n)), nil
	}
	return int64(n), nil
}
