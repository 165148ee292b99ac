package pyobj

import "fmt"

// Frame wraps a PyFrameObject.
type Frame struct {
	Base
}

func newFrame(base Base) (Object, error) {
	return &Frame{base}, nil
}

func (f *Frame) code() (Object, error) {
	return f.Member("PyFrameObject", "f_code")
}

func (f *Frame) codeString(field string) (string, error) {
	code, err := f.code()
	if err != nil {
		return "", err
	}
	s, err := f.insp.member(code.Addr(), "PyCodeObject", field)
	if err != nil {
		return "", err
	}
	sv, ok := s.(StringValuer)
	if !ok {
		return "", fmt.Errorf("%s of code object at %#x is a %s", field, code.Addr(), s.TypeName())
	}
	return sv.StringValue()
}

// Filename returns co_filename of the code of the frame.
func (f *Frame) Filename() (string, error) {
	return f.codeString("co_filename")
}

// FuncName returns co_name of the code of the frame.
func (f *Frame) FuncName() (string, error) {
	return f.codeString("co_name")
}

// Back returns the calling frame.
func (f *Frame) Back() (Object, error) {
	return f.Member("PyFrameObject", "f_back")
}

// Line returns the line being executed by the frame: f_lineno when the
// frame is traced, otherwise the line of f_lasti according to co_lnotab.
func (f *Frame) Line() (int, error) {
	v, err := f.Struct("PyFrameObject")
	if err != nil {
		return 0, err
	}
	trace, err := v.Field("f_trace")
	if err != nil {
		return 0, err
	}
	traced, err := trace.Pointer()
	if err != nil {
		return 0, err
	}
	if traced != 0 {
		lineno, err := fieldInt(v, "f_lineno")
		return int(lineno), err
	}
	lasti, err := fieldInt(v, "f_lasti")
	if err != nil {
		return 0, err
	}
	code, err := f.code()
	if err != nil {
		return 0, err
	}
	codeVar, err := f.insp.Struct(code.Addr(), "PyCodeObject")
	if err != nil {
		return 0, err
	}
	first, err := fieldInt(codeVar, "co_firstlineno")
	if err != nil {
		return 0, err
	}
	lnotabField, err := codeVar.Field("co_lnotab")
	if err != nil {
		return 0, err
	}
	lnotab, err := f.insp.FromVariable(lnotabField)
	if err != nil {
		return 0, err
	}
	s, ok := lnotab.(*stringObject)
	if !ok {
		return int(first), nil
	}
	table, err := s.Bytes()
	if err != nil {
		return 0, err
	}
	return addr2line(table, int(first), int(lasti)), nil
}

// addr2line maps the bytecode offset lasti to a line number using the
// (offset increment, line increment) pairs of a co_lnotab.
func addr2line(lnotab []byte, firstLine, lasti int) int {
	line := firstLine
	addr := 0
	for i := 0; i+1 < len(lnotab); i += 2 {
		addr += int(lnotab[i])
		if addr > lasti {
			return line
		}
		line += int(lnotab[i+1])
	}
	return line
}

// Local is a local variable of a frame.
type Local struct {
	Name  string
	Value Object
}

// eachLocal calls fn with the bound local variables of the frame, in
// co_varnames order. It stops at the first error returned by fn.
func (f *Frame) eachLocal(fn func(i int, local Local) error) error {
	v, err := f.Struct("PyFrameObject")
	if err != nil {
		return err
	}
	code, err := f.code()
	if err != nil {
		return err
	}
	codeVar, err := f.insp.Struct(code.Addr(), "PyCodeObject")
	if err != nil {
		return err
	}
	nlocals, err := fieldInt(codeVar, "co_nlocals")
	if err != nil {
		return err
	}
	if err := checkLen("code", code.Addr(), nlocals); err != nil {
		return err
	}
	if nlocals == 0 {
		return nil
	}
	varnamesField, err := codeVar.Field("co_varnames")
	if err != nil {
		return err
	}
	varnames, err := f.insp.FromVariable(varnamesField)
	if err != nil {
		return err
	}
	tuple, ok := varnames.(*tupleObject)
	if !ok {
		return fmt.Errorf("co_varnames of code object at %#x is a %s", code.Addr(), varnames.TypeName())
	}
	names, nnames, err := tuple.seq()
	if err != nil {
		return err
	}
	if nnames < nlocals {
		return fmt.Errorf("code object at %#x has %d locals but %d names: %w", code.Addr(), nlocals, nnames, ErrCorrupted)
	}
	localsplus, err := v.Field("f_localsplus")
	if err != nil {
		return err
	}
	n := 0
	return f.insp.eachItem(localsplus, nlocals, func(i int64, value Object) error {
		if value.IsNull() {
			return nil
		}
		nameVar, err := names.Index(i)
		if err != nil {
			return err
		}
		nameObj, err := f.insp.FromVariable(nameVar)
		if err != nil {
			return err
		}
		name, err := stringOf(nameObj)
		if err != nil {
			return err
		}
		err = fn(n, Local{name, value})
		n++
		return err
	})
}

// Locals returns the bound local variables of the frame, in co_varnames
// order.
func (f *Frame) Locals() ([]Local, error) {
	var locals []Local
	err := f.eachLocal(func(_ int, local Local) error {
		locals = append(locals, local)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return locals, nil
}

func stringOf(o Object) (string, error) {
	if sv, ok := o.(StringValuer); ok {
		return sv.StringValue()
	}
	return Repr(o)
}

// WriteRepr writes the frame summary:
//
//	Frame 0x..., for file <file>, line <n>, in <func> (name=repr, ...)
func (f *Frame) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(f.addr) {
		out.WriteString("<...>")
		return out.Err()
	}
	filename, err := f.Filename()
	if err != nil {
		return err
	}
	funcname, err := f.FuncName()
	if err != nil {
		return err
	}
	line, err := f.Line()
	if err != nil {
		return err
	}
	out.Printf("Frame %#x, for file %s, line %d, in %s (", f.addr, filename, line, funcname)
	err = f.eachLocal(func(i int, local Local) error {
		if i > 0 {
			out.WriteString(", ")
		}
		out.WriteString(local.Name)
		out.WriteString("=")
		if err := local.Value.WriteRepr(out, visited); err != nil {
			return err
		}
		return out.Err()
	})
	if err != nil {
		return err
	}
	out.WriteString(")")
	return out.Err()
}
