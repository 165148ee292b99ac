package pyobj

import "github.com/go-delve/pyexc/pkg/proc"

type tupleObject struct {
	Base
}

func newTuple(base Base) (Object, error) {
	return &tupleObject{base}, nil
}

// seq returns the ob_item array of the tuple and its length.
func (o *tupleObject) seq() (*proc.Variable, int64, error) {
	v, err := o.Struct("PyTupleObject")
	if err != nil {
		return nil, 0, err
	}
	size, err := fieldInt(v, "ob_size")
	if err != nil {
		return nil, 0, err
	}
	if err := checkLen("tuple", o.addr, size); err != nil {
		return nil, 0, err
	}
	items, err := v.Field("ob_item")
	if err != nil {
		return nil, 0, err
	}
	return items, size, nil
}

func (o *tupleObject) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(o.addr) {
		out.WriteString("(...)")
		return out.Err()
	}
	items, size, err := o.seq()
	if err != nil {
		return err
	}
	out.WriteString("(")
	if err := o.insp.writeItems(out, visited, items, size); err != nil {
		return err
	}
	if size == 1 {
		out.WriteString(",")
	}
	out.WriteString(")")
	return out.Err()
}

type listObject struct {
	Base
}

func newList(base Base) (Object, error) {
	return &listObject{base}, nil
}

// seq returns the ob_item pointer of the list and its length.
func (o *listObject) seq() (*proc.Variable, int64, error) {
	v, err := o.Struct("PyListObject")
	if err != nil {
		return nil, 0, err
	}
	size, err := fieldInt(v, "ob_size")
	if err != nil {
		return nil, 0, err
	}
	if err := checkLen("list", o.addr, size); err != nil {
		return nil, 0, err
	}
	if size == 0 {
		return nil, 0, nil
	}
	items, err := v.Field("ob_item")
	if err != nil {
		return nil, 0, err
	}
	return items, size, nil
}

func (o *listObject) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(o.addr) {
		out.WriteString("[...]")
		return out.Err()
	}
	items, size, err := o.seq()
	if err != nil {
		return err
	}
	out.WriteString("[")
	if err := o.insp.writeItems(out, visited, items, size); err != nil {
		return err
	}
	out.WriteString("]")
	return out.Err()
}

// eachItem calls fn with each of the n PyObject* starting at items, an
// array or a pointer. It stops at the first error returned by fn.
func (in *Inspector) eachItem(items *proc.Variable, n int64, fn func(i int64, obj Object) error) error {
	for i := int64(0); i < n; i++ {
		item, err := items.Index(i)
		if err != nil {
			return err
		}
		obj, err := in.FromVariable(item)
		if err != nil {
			return err
		}
		if err := fn(i, obj); err != nil {
			return err
		}
	}
	return nil
}

// writeItems writes the reprs of the n PyObject* starting at items,
// separated by commas. Elements are read one at a time and reading stops
// once out has failed, so a truncated Writer bounds the work done.
func (in *Inspector) writeItems(out *Writer, visited Visited, items *proc.Variable, n int64) error {
	err := in.eachItem(items, n, func(i int64, obj Object) error {
		if i > 0 {
			out.WriteString(", ")
		}
		if err := obj.WriteRepr(out, visited); err != nil {
			return err
		}
		return out.Err()
	})
	if err != nil {
		return err
	}
	return out.Err()
}

type dictObject struct {
	Base
}

func newDict(base Base) (Object, error) {
	return &dictObject{base}, nil
}

// Item is a key/value pair of a dict.
type Item struct {
	Key, Value Object
}

// each calls fn with the key/value pairs of the dict in hash table order,
// skipping empty and deleted slots. It stops at the first error returned
// by fn.
func (o *dictObject) each(fn func(i int, item Item) error) error {
	v, err := o.Struct("PyDictObject")
	if err != nil {
		return err
	}
	mask, err := fieldInt(v, "ma_mask")
	if err != nil {
		return err
	}
	if err := checkLen("dict", o.addr, mask+1); err != nil {
		return err
	}
	table, err := v.Field("ma_table")
	if err != nil {
		return err
	}
	n := 0
	for i := int64(0); i <= mask; i++ {
		entry, err := table.Index(i)
		if err != nil {
			return err
		}
		value, err := entry.Field("me_value")
		if err != nil {
			return err
		}
		valueAddr, err := value.Pointer()
		if err != nil {
			return err
		}
		if valueAddr == 0 {
			continue
		}
		key, err := entry.Field("me_key")
		if err != nil {
			return err
		}
		k, err := o.insp.FromVariable(key)
		if err != nil {
			return err
		}
		val, err := o.insp.FromAddr(valueAddr)
		if err != nil {
			return err
		}
		if err := fn(n, Item{k, val}); err != nil {
			return err
		}
		n++
	}
	return nil
}

func (o *dictObject) WriteRepr(out *Writer, visited Visited) error {
	if !visited.Enter(o.addr) {
		out.WriteString("{...}")
		return out.Err()
	}
	out.WriteString("{")
	err := o.each(func(i int, item Item) error {
		if i > 0 {
			out.WriteString(", ")
		}
		if err := item.Key.WriteRepr(out, visited); err != nil {
			return err
		}
		out.WriteString(": ")
		if err := item.Value.WriteRepr(out, visited); err != nil {
			return err
		}
		return out.Err()
	})
	if err != nil {
		return err
	}
	out.WriteString("}")
	return out.Err()
}

type setObject struct {
	Base
}

func newSet(base Base) (Object, error) {
	return &setObject{base}, nil
}

// dummyKey is the key left in the table of a set by a deletion.
const dummyKey = "<dummy key>"

// each calls fn with the elements of the set, skipping empty slots and
// dummy keys. It stops at the first error returned by fn.
func (o *setObject) each(fn func(i int, key Object) error) error {
	v, err := o.Struct("PySetObject")
	if err != nil {
		return err
	}
	mask, err := fieldInt(v, "mask")
	if err != nil {
		return err
	}
	if err := checkLen("set", o.addr, mask+1); err != nil {
		return err
	}
	table, err := v.Field("table")
	if err != nil {
		return err
	}
	n := 0
	for i := int64(0); i <= mask; i++ {
		entry, err := table.Index(i)
		if err != nil {
			return err
		}
		key, err := entry.Field("key")
		if err != nil {
			return err
		}
		k, err := o.insp.FromVariable(key)
		if err != nil {
			return err
		}
		if k.IsNull() {
			continue
		}
		if s, ok := k.(*stringObject); ok {
			if sv, err := s.StringValue(); err == nil && sv == dummyKey {
				continue
			}
		}
		if err := fn(n, k); err != nil {
			return err
		}
		n++
	}
	return nil
}

func (o *setObject) WriteRepr(out *Writer, visited Visited) error {
	name := o.TypeName()
	if !visited.Enter(o.addr) {
		out.Printf("%s(...)", name)
		return out.Err()
	}
	empty := true
	err := o.each(func(i int, key Object) error {
		if i == 0 {
			empty = false
			out.Printf("%s([", name)
		} else {
			out.WriteString(", ")
		}
		if err := key.WriteRepr(out, visited); err != nil {
			return err
		}
		return out.Err()
	})
	if err != nil {
		return err
	}
	if empty {
		out.Printf("%s()", name)
		return out.Err()
	}
	out.WriteString("])")
	return out.Err()
}
