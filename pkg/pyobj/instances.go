package pyobj

import (
	"fmt"
	"strings"
)

type exceptionObject struct {
	Base
}

func newException(base Base) (Object, error) {
	return &exceptionObject{base}, nil
}

// ShortTypeName returns the type name of the object without its module,
// e.g. ValueError for exceptions.ValueError.
func ShortTypeName(o Object) string {
	name := o.TypeName()
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

// argsTuple returns the args tuple of the exception. CPython always stores
// a tuple there, anything else is reported as corruption.
func (o *exceptionObject) argsTuple() (*tupleObject, error) {
	args, err := o.Member("PyBaseExceptionObject", "args")
	if err != nil {
		return nil, err
	}
	tuple, ok := args.(*tupleObject)
	if !ok {
		return nil, fmt.Errorf("args of exception at %#x is a %s: %w", o.addr, args.TypeName(), ErrCorrupted)
	}
	return tuple, nil
}

// WriteRepr writes the exception the way BaseException.__repr__ does:
// ValueError('boom'), without the trailing comma of a one element tuple.
func (o *exceptionObject) WriteRepr(out *Writer, visited Visited) error {
	name := ShortTypeName(o)
	if !visited.Enter(o.addr) {
		out.Printf("%s(...)", name)
		return out.Err()
	}
	tuple, err := o.argsTuple()
	if err != nil {
		return err
	}
	items, size, err := tuple.seq()
	if err != nil {
		return err
	}
	out.Printf("%s(", name)
	if err := o.insp.writeItems(out, visited, items, size); err != nil {
		return err
	}
	out.WriteString(")")
	return out.Err()
}

// writeInstanceRepr writes <name(attr=repr, ...) at remote 0x...>. The
// attributes are omitted when attrs is not a dict.
func writeInstanceRepr(out *Writer, visited Visited, name string, attrs Object, addr uint64) error {
	out.Printf("<%s", name)
	if d, ok := attrs.(*dictObject); ok {
		out.WriteString("(")
		err := d.each(func(i int, item Item) error {
			if i > 0 {
				out.WriteString(", ")
			}
			if err := writeName(out, item.Key, visited); err != nil {
				return err
			}
			out.WriteString("=")
			if err := item.Value.WriteRepr(out, visited); err != nil {
				return err
			}
			return out.Err()
		})
		if err != nil {
			return err
		}
		out.WriteString(")")
	}
	out.Printf(" at remote %#x>", addr)
	return out.Err()
}

// instanceObject is an instance of an old-style class.
type instanceObject struct {
	Base
}

func newInstance(base Base) (Object, error) {
	return &instanceObject{base}, nil
}

func (o *instanceObject) className() (string, error) {
	class, err := o.Field("PyInstanceObject", "in_class")
	if err != nil {
		return "", err
	}
	name, err := class.Field("cl_name")
	if err != nil {
		return "", err
	}
	nameObj, err := o.insp.FromVariable(name)
	if err != nil {
		return "", err
	}
	if sv, ok := nameObj.(StringValuer); ok {
		return sv.StringValue()
	}
	return Repr(nameObj)
}

func (o *instanceObject) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(o.addr) {
		out.WriteString("<...>")
		return out.Err()
	}
	name, err := o.className()
	if err != nil {
		return err
	}
	attrs, err := o.Member("PyInstanceObject", "in_dict")
	if err != nil {
		return err
	}
	return writeInstanceRepr(out, visited, name, attrs, o.addr)
}

// heapTypeInstance is an instance of a class defined in Python.
type heapTypeInstance struct {
	Base
}

func newHeapTypeInstance(base Base) (Object, error) {
	return &heapTypeInstance{base}, nil
}

// AttrDict returns the __dict__ of the instance, nil if it has none.
func (o *heapTypeInstance) AttrDict() (Object, error) {
	dictOffset, err := o.typeField("tp_dictoffset")
	if err != nil {
		return nil, err
	}
	offset, err := dictOffset.Int()
	if err != nil {
		return nil, err
	}
	if offset == 0 {
		return nil, nil
	}
	if offset < 0 {
		// Negative offsets count from the end of a variable size object.
		size, err := o.varSize()
		if err != nil {
			return nil, err
		}
		offset += size
	}
	dictPtr, err := o.insp.pointerAt("dictptr", o.addr+uint64(offset))
	if err != nil {
		return nil, err
	}
	return o.insp.FromVariable(dictPtr)
}

// varSize returns _PyObject_VAR_SIZE for the instance.
func (o *heapTypeInstance) varSize() (int64, error) {
	obSize, err := o.Field("PyVarObject", "ob_size")
	if err != nil {
		return 0, err
	}
	n, err := obSize.Int()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = -n
	}
	basic, err := o.typeField("tp_basicsize")
	if err != nil {
		return 0, err
	}
	basicSize, err := basic.Int()
	if err != nil {
		return 0, err
	}
	item, err := o.typeField("tp_itemsize")
	if err != nil {
		return 0, err
	}
	itemSize, err := item.Int()
	if err != nil {
		return 0, err
	}
	ptrSize := int64(o.insp.proc.PtrSize())
	return (basicSize + n*itemSize + ptrSize - 1) &^ (ptrSize - 1), nil
}

func (o *heapTypeInstance) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(o.addr) {
		out.WriteString("<...>")
		return out.Err()
	}
	attrs, err := o.AttrDict()
	if err != nil {
		return err
	}
	return writeInstanceRepr(out, visited, o.TypeName(), attrs, o.addr)
}

type cfunctionObject struct {
	Base
}

func newCFunction(base Base) (Object, error) {
	return &cfunctionObject{base}, nil
}

func (o *cfunctionObject) WriteRepr(out *Writer, visited Visited) error {
	ml, err := o.Field("PyCFunctionObject", "m_ml")
	if err != nil {
		return err
	}
	mlName, err := ml.Field("ml_name")
	if err != nil {
		return err
	}
	name, err := mlName.CString(maxTypeNameLen)
	if err != nil {
		return err
	}
	self, err := o.Member("PyCFunctionObject", "m_self")
	if err != nil {
		return err
	}
	if self.IsNull() {
		out.Printf("<built-in function %s>", name)
	} else {
		out.Printf("<built-in method %s of %s object at remote %#x>", name, self.TypeName(), self.Addr())
	}
	return out.Err()
}

// typeObject is a type, new or old style.
type typeObject struct {
	Base
}

func newType(base Base) (Object, error) {
	return &typeObject{base}, nil
}

func (o *typeObject) WriteRepr(out *Writer, visited Visited) error {
	tpName, err := o.Field("PyTypeObject", "tp_name")
	if err != nil {
		return err
	}
	name, err := tpName.CString(maxTypeNameLen)
	if err != nil {
		return err
	}
	out.Printf("<type '%s'>", name)
	return out.Err()
}
