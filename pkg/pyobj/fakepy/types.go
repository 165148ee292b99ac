package fakepy

import "debug/dwarf"

func basic(name string, size int64) dwarf.CommonType {
	return dwarf.CommonType{ByteSize: size, Name: name}
}

func ptrTo(t dwarf.Type) *dwarf.PtrType {
	return &dwarf.PtrType{CommonType: dwarf.CommonType{ByteSize: ptrSize}, Type: t}
}

func arrayOf(t dwarf.Type, count int64) *dwarf.ArrayType {
	return &dwarf.ArrayType{CommonType: dwarf.CommonType{ByteSize: count * t.Size()}, Type: t, Count: count}
}

func typedef(name string, t dwarf.Type) *dwarf.TypedefType {
	return &dwarf.TypedefType{CommonType: dwarf.CommonType{Name: name, ByteSize: t.Size()}, Type: t}
}

type field struct {
	name string
	off  int64
	typ  dwarf.Type
}

func newStruct(name string, size int64) *dwarf.StructType {
	return &dwarf.StructType{CommonType: dwarf.CommonType{ByteSize: size}, StructName: name, Kind: "struct"}
}

func setFields(st *dwarf.StructType, fields ...field) {
	for _, f := range fields {
		st.Field = append(st.Field, &dwarf.StructField{Name: f.name, Type: f.typ, ByteOffset: f.off})
	}
}

// registerTypes describes the layout of the interpreter structures on
// x86_64, keeping only the members read by the object wrappers.
func (im *Image) registerTypes() {
	long := &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: basic("long int", 8)}}
	cint := &dwarf.IntType{BasicType: dwarf.BasicType{CommonType: basic("int", 4)}}
	cuint := &dwarf.UintType{BasicType: dwarf.BasicType{CommonType: basic("unsigned int", 4)}}
	ushort := &dwarf.UintType{BasicType: dwarf.BasicType{CommonType: basic("short unsigned int", 2)}}
	char := &dwarf.CharType{BasicType: dwarf.BasicType{CommonType: basic("char", 1)}}
	double := &dwarf.FloatType{BasicType: dwarf.BasicType{CommonType: basic("double", 8)}}
	ssize := typedef("Py_ssize_t", long)

	var digit, pyUnicode dwarf.Type = typedef("digit", cuint), typedef("Py_UNICODE", cuint)
	if im.opts.Digit15 {
		digit = typedef("digit", ushort)
	}
	if im.opts.UCS2 {
		pyUnicode = typedef("Py_UNICODE", ushort)
	}

	object := newStruct("_object", 16)
	varObject := newStruct("", 24)
	typeObject := newStruct("_typeobject", 64)
	pyObject := typedef("PyObject", object)
	objPtr := ptrTo(pyObject)
	pyTypeObject := typedef("PyTypeObject", typeObject)

	setFields(object,
		field{"ob_refcnt", 0, ssize},
		field{"ob_type", 8, ptrTo(typeObject)})
	setFields(varObject,
		field{"ob_refcnt", 0, ssize},
		field{"ob_type", 8, ptrTo(typeObject)},
		field{"ob_size", 16, ssize})
	setFields(typeObject,
		field{"ob_refcnt", 0, ssize},
		field{"ob_type", 8, ptrTo(typeObject)},
		field{"ob_size", 16, ssize},
		field{"tp_name", 24, ptrTo(char)},
		field{"tp_basicsize", 32, ssize},
		field{"tp_itemsize", 40, ssize},
		field{"tp_flags", 48, long},
		field{"tp_dictoffset", 56, ssize})

	head := func(name string, size int64, fields ...field) *dwarf.TypedefType {
		st := newStruct("", size)
		setFields(st,
			field{"ob_refcnt", 0, ssize},
			field{"ob_type", 8, ptrTo(typeObject)})
		setFields(st, fields...)
		return typedef(name, st)
	}

	dictEntry := newStruct("", 24)
	setFields(dictEntry,
		field{"me_hash", 0, ssize},
		field{"me_key", 8, objPtr},
		field{"me_value", 16, objPtr})
	setEntry := newStruct("", 16)
	setFields(setEntry,
		field{"hash", 0, long},
		field{"key", 8, objPtr})
	methodDef := newStruct("PyMethodDef", 32)
	setFields(methodDef,
		field{"ml_name", 0, ptrTo(char)})
	class := head("PyClassObject", 40,
		field{"cl_bases", 16, objPtr},
		field{"cl_dict", 24, objPtr},
		field{"cl_name", 32, objPtr})
	code := head("PyCodeObject", 112,
		field{"co_argcount", 16, cint},
		field{"co_nlocals", 20, cint},
		field{"co_varnames", 56, objPtr},
		field{"co_filename", 80, objPtr},
		field{"co_name", 88, objPtr},
		field{"co_firstlineno", 96, cint},
		field{"co_lnotab", 104, objPtr})
	frameStruct := newStruct("_frame", 120)
	frame := typedef("PyFrameObject", frameStruct)
	setFields(frameStruct,
		field{"ob_refcnt", 0, ssize},
		field{"ob_type", 8, ptrTo(typeObject)},
		field{"ob_size", 16, ssize},
		field{"f_back", 24, ptrTo(frameStruct)},
		field{"f_code", 32, ptrTo(code)},
		field{"f_trace", 80, objPtr},
		field{"f_lasti", 96, cint},
		field{"f_lineno", 100, cint},
		field{"f_localsplus", 112, arrayOf(objPtr, 1)})
	tbStruct := newStruct("_traceback", 40)
	setFields(tbStruct,
		field{"ob_refcnt", 0, ssize},
		field{"ob_type", 8, ptrTo(typeObject)},
		field{"tb_next", 16, ptrTo(tbStruct)},
		field{"tb_frame", 24, ptrTo(frameStruct)},
		field{"tb_lasti", 32, cint},
		field{"tb_lineno", 36, cint})
	threadState := newStruct("_ts", 88)
	setFields(threadState,
		field{"next", 0, ptrTo(threadState)},
		field{"frame", 16, ptrTo(frameStruct)},
		field{"recursion_depth", 24, cint},
		field{"exc_type", 56, objPtr},
		field{"exc_value", 64, objPtr},
		field{"exc_traceback", 72, objPtr})

	for _, t := range []*dwarf.TypedefType{
		pyObject,
		typedef("PyVarObject", varObject),
		pyTypeObject,
		head("PyIntObject", 24, field{"ob_ival", 16, long}),
		head("PyLongObject", 32,
			field{"ob_size", 16, ssize},
			field{"ob_digit", 24, arrayOf(digit, 1)}),
		head("PyFloatObject", 24, field{"ob_fval", 16, double}),
		head("PyStringObject", 40,
			field{"ob_size", 16, ssize},
			field{"ob_shash", 24, long},
			field{"ob_sstate", 32, cint},
			field{"ob_sval", 36, arrayOf(char, 1)}),
		head("PyUnicodeObject", 48,
			field{"length", 16, ssize},
			field{"str", 24, ptrTo(pyUnicode)},
			field{"hash", 32, long},
			field{"defenc", 40, objPtr}),
		head("PyTupleObject", 32,
			field{"ob_size", 16, ssize},
			field{"ob_item", 24, arrayOf(objPtr, 1)}),
		head("PyListObject", 40,
			field{"ob_size", 16, ssize},
			field{"ob_item", 24, ptrTo(objPtr)},
			field{"allocated", 32, ssize}),
		typedef("PyDictEntry", dictEntry),
		head("PyDictObject", 48,
			field{"ma_fill", 16, ssize},
			field{"ma_used", 24, ssize},
			field{"ma_mask", 32, ssize},
			field{"ma_table", 40, ptrTo(typedef("PyDictEntry", dictEntry))}),
		typedef("setentry", setEntry),
		head("PySetObject", 48,
			field{"fill", 16, ssize},
			field{"used", 24, ssize},
			field{"mask", 32, ssize},
			field{"table", 40, ptrTo(typedef("setentry", setEntry))}),
		head("PyBaseExceptionObject", 40,
			field{"dict", 16, objPtr},
			field{"args", 24, objPtr},
			field{"message", 32, objPtr}),
		class,
		head("PyInstanceObject", 32,
			field{"in_class", 16, ptrTo(class)},
			field{"in_dict", 24, objPtr}),
		head("PyCFunctionObject", 40,
			field{"m_ml", 16, ptrTo(methodDef)},
			field{"m_self", 24, objPtr},
			field{"m_module", 32, objPtr}),
		code,
		frame,
		typedef("PyTracebackObject", tbStruct),
		typedef("PyThreadState", threadState),
	} {
		im.bi.RegisterType(t.Name, t)
	}
}
