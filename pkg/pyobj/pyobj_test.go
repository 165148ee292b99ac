package pyobj_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-delve/pyexc/pkg/pyobj"
	"github.com/go-delve/pyexc/pkg/pyobj/fakepy"
)

func wrap(t *testing.T, im *fakepy.Image, addr uint64) pyobj.Object {
	t.Helper()
	insp := pyobj.NewInspector(im.Target(), pyobj.NewRegistry())
	o, err := insp.FromAddr(addr)
	if err != nil {
		t.Fatalf("FromAddr(%#x): %v", addr, err)
	}
	return o
}

func repr(t *testing.T, im *fakepy.Image, addr uint64) string {
	t.Helper()
	s, err := pyobj.Repr(wrap(t, im, addr))
	if err != nil {
		t.Fatalf("Repr(%#x): %v", addr, err)
	}
	return s
}

func TestScalarRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	tests := []struct {
		addr uint64
		want string
	}{
		{0, "0x0"},
		{im.None, "None"},
		{im.Int(42), "42"},
		{im.Int(-7), "-7"},
		{im.Bool(true), "True"},
		{im.Bool(false), "False"},
		{im.Long(0), "0L"},
		{im.Long(-5), "-5L"},
		{im.Long(123456789012345), "123456789012345L"},
		{im.Float(1.5), "1.5"},
		{im.Float(100), "100.0"},
		{im.Float(1e22), "1e+22"},
		{im.Float(0.0001), "0.0001"},
		{im.Float(1e-05), "1e-05"},
		{im.Str("hello"), "'hello'"},
		{im.Str("it's"), `"it's"`},
		{im.Str("both ' and \""), `'both \' and "'`},
		{im.Str("a\nb\x01\xff\\"), `'a\nb\x01\xff\\'`},
		{im.Unicode("héllo"), `u'h\xe9llo'`},
		{im.Unicode("ĉ"), `u'\u0109'`},
		{im.Unicode("\U0001f600"), `u'\U0001f600'`},
		{im.TypeObject("int"), "<type 'int'>"},
	}
	for _, tc := range tests {
		if got := repr(t, im, tc.addr); got != tc.want {
			t.Errorf("repr at %#x = %s, want %s", tc.addr, got, tc.want)
		}
	}
}

func TestNarrowBuild(t *testing.T) {
	im := fakepy.New(fakepy.Options{UCS2: true, Digit15: true})
	tests := []struct {
		addr uint64
		want string
	}{
		{im.Unicode("a\U0001f600b"), `u'a\U0001f600b'`},
		{im.Long(123456789012345), "123456789012345L"},
		{im.Long(-32768), "-32768L"},
	}
	for _, tc := range tests {
		if got := repr(t, im, tc.addr); got != tc.want {
			t.Errorf("repr at %#x = %s, want %s", tc.addr, got, tc.want)
		}
	}
}

func TestContainerRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	tests := []struct {
		addr uint64
		want string
	}{
		{im.Tuple(), "()"},
		{im.Tuple(im.Int(1)), "(1,)"},
		{im.Tuple(im.Int(1), im.Str("a")), "(1, 'a')"},
		{im.List(), "[]"},
		{im.List(im.Int(1), im.None), "[1, None]"},
		{im.Dict(), "{}"},
		{im.Dict(im.Str("a"), im.Int(1), im.Str("deleted"), 0, im.Int(2), im.Tuple()), "{'a': 1, 2: ()}"},
		{im.Set(false, im.Int(1), im.DummyKey(), im.Int(2)), "set([1, 2])"},
		{im.Set(true), "frozenset()"},
	}
	for _, tc := range tests {
		if got := repr(t, im, tc.addr); got != tc.want {
			t.Errorf("repr at %#x = %s, want %s", tc.addr, got, tc.want)
		}
	}
}

func TestSelfReference(t *testing.T) {
	im := fakepy.New(fakepy.Options{})

	list := im.List(im.Int(0))
	im.SetListItem(list, 0, list)

	dict := im.Dict(im.Str("self"), im.None)
	im.SetDictValue(dict, 0, dict)

	exc := im.Exception(im.TypeObject("exceptions.ValueError"))
	im.SetExceptionArgs(exc, im.Tuple(exc))

	cls := im.Class("Node")
	attrs := im.Dict(im.Str("next"), im.None)
	node := im.Instance(cls, attrs)
	im.SetDictValue(attrs, 0, node)

	tests := []struct {
		addr uint64
		want string
	}{
		{list, "[[...]]"},
		{dict, "{'self': {...}}"},
		{exc, "ValueError(ValueError(...))"},
		{node, fmt.Sprintf("<Node(next=<...>) at remote %#x>", node)},
	}
	for _, tc := range tests {
		if got := repr(t, im, tc.addr); got != tc.want {
			t.Errorf("repr at %#x = %s, want %s", tc.addr, got, tc.want)
		}
	}
}

func TestInstanceRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})

	old := im.Instance(im.Class("Foo"), im.Dict(im.Str("x"), im.Int(1)))

	bar := im.NewHeapType("Bar", 0, 32, 0, 16)
	inst := im.HeapInstance(bar, im.Dict(im.Str("y"), im.Str("z")))
	noDict := im.HeapInstance(bar, 0)

	myErr := im.NewHeapType("MyError", pyobj.TPFlagsBaseExcSubclass, 40, 0, 16)
	userExc := im.Exception(myErr, im.Int(3), im.Str("x"))

	list := im.List()
	tests := []struct {
		addr uint64
		want string
	}{
		{old, fmt.Sprintf("<Foo(x=1) at remote %#x>", old)},
		{inst, fmt.Sprintf("<Bar(y='z') at remote %#x>", inst)},
		{noDict, fmt.Sprintf("<Bar at remote %#x>", noDict)},
		{userExc, "MyError(3, 'x')"},
		{im.Exception(im.TypeObject("exceptions.ValueError"), im.Str("boom")), "ValueError('boom')"},
		{im.Exception(im.TypeObject("exceptions.KeyError")), "KeyError()"},
		{im.CFunction("len", 0), "<built-in function len>"},
		{im.CFunction("append", list), fmt.Sprintf("<built-in method append of list object at remote %#x>", list)},
	}
	for _, tc := range tests {
		if got := repr(t, im, tc.addr); got != tc.want {
			t.Errorf("repr at %#x = %s, want %s", tc.addr, got, tc.want)
		}
	}
}

func TestFrameRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	code := im.Code("/srv/app.py", "handle", 10, []byte{0, 1, 6, 2}, "req", "unbound")
	frame := im.Frame(0, code, 7, im.Str("GET"), 0)

	want := fmt.Sprintf("Frame %#x, for file /srv/app.py, line 13, in handle (req='GET')", frame)
	if got := repr(t, im, frame); got != want {
		t.Errorf("frame repr = %s, want %s", got, want)
	}

	f, ok := wrap(t, im, frame).(*pyobj.Frame)
	if !ok {
		t.Fatalf("frame wrapped as %T", wrap(t, im, frame))
	}
	locals, err := f.Locals()
	if err != nil {
		t.Fatal(err)
	}
	if len(locals) != 1 || locals[0].Name != "req" {
		t.Errorf("locals = %v", locals)
	}

	im.SetTrace(frame, 99)
	if line, err := wrap(t, im, frame).(*pyobj.Frame).Line(); err != nil || line != 99 {
		t.Errorf("traced frame line = %d, %v", line, err)
	}
}

func TestTruncatedRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	var items []uint64
	for i := 0; i < 10; i++ {
		items = append(items, im.Int(int64(i)))
	}
	o := wrap(t, im, im.List(items...))

	full := "[0, 1, 2, 3, 4, 5, 6, 7, 8, 9]"
	for _, tc := range []struct {
		maxlen int
		want   string
	}{
		{20, "[0, 1," + pyobj.TruncationMarker},
		{len(full), full},
		{len(full) - 1, full[:len(full)-1-len(pyobj.TruncationMarker)] + pyobj.TruncationMarker},
		{1024, full},
	} {
		got, err := pyobj.TruncatedRepr(o, tc.maxlen)
		if err != nil {
			t.Fatal(err)
		}
		if got != tc.want {
			t.Errorf("TruncatedRepr(%d) = %q, want %q", tc.maxlen, got, tc.want)
		}
		if len(got) > tc.maxlen {
			t.Errorf("TruncatedRepr(%d) is %d bytes long", tc.maxlen, len(got))
		}
	}
}

func TestTruncatedReprStopsEarly(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	list := im.List(im.Int(0))
	im.SetListItem(list, 0, im.Str(strings.Repeat("x", 5000)))
	got, err := pyobj.TruncatedRepr(wrap(t, im, list), 64)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 64 || !strings.HasPrefix(got, "['xxx") || !strings.HasSuffix(got, pyobj.TruncationMarker) {
		t.Errorf("unexpected truncated repr %q", got)
	}
}

func TestTruncatedReprIgnoresUnreadElements(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	items := make([]uint64, 100)
	for i := range items {
		items[i] = im.Int(int64(i))
	}
	list := im.List(items...)
	tuple := im.Tuple(items...)
	exc := im.Exception(im.TypeObject("exceptions.ValueError"))
	im.SetExceptionArgs(exc, tuple)
	code := im.Code("a.py", "f", 1, nil, "xs")
	frame := im.Frame(0, code, 0, list)

	// Both sizes point far past the end of the image.
	im.Put64(list+16, 1<<27)
	im.Put64(tuple+16, 1<<27)

	for _, addr := range []uint64{list, tuple, exc, frame} {
		got, err := pyobj.TruncatedRepr(wrap(t, im, addr), 64)
		if err != nil {
			t.Errorf("TruncatedRepr(%#x): %v", addr, err)
			continue
		}
		if len(got) != 64 || !strings.HasSuffix(got, pyobj.TruncationMarker) {
			t.Errorf("unexpected truncated repr %q", got)
		}
	}
}

func TestHeapTypeExceptionRepr(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	myErr := im.NewHeapType("MyErr", pyobj.TPFlagsBaseExcSubclass, 40, 0, 16)
	plain := im.NewHeapType("MyObj", 0, 32, 0, 16)
	inst := im.HeapInstance(plain, 0)

	// Exception subclasses defined in Python print like built-in ones.
	if got, want := repr(t, im, im.Exception(myErr, im.Str("x"))), "MyErr('x')"; got != want {
		t.Errorf("got %s, want %s", got, want)
	}
	if got, want := repr(t, im, inst), fmt.Sprintf("<MyObj at remote %#x>", inst); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestExceptionArgsNotATuple(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	exc := im.Exception(im.TypeObject("exceptions.ValueError"))
	im.SetExceptionArgs(exc, im.Str("boom"))
	_, err := pyobj.Repr(wrap(t, im, exc))
	if !errors.Is(err, pyobj.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

func TestUnknownAndUnreadableTypes(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	code := im.Code("a.py", "f", 1, nil)
	if got, want := repr(t, im, code), fmt.Sprintf("<code at remote %#x>", code); got != want {
		t.Errorf("got %s, want %s", got, want)
	}

	broken := im.Alloc(16)
	im.Put64(broken+8, 0xdead0000)
	o := wrap(t, im, broken)
	if o.TypeName() != "unknown" {
		t.Errorf("type name of broken object: %q", o.TypeName())
	}
	if got, want := repr(t, im, broken), fmt.Sprintf("<unknown at remote %#x>", broken); got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestCorruptedString(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	s := im.Str("abc")
	im.Put64(s+16, 1<<40)
	_, err := pyobj.Repr(wrap(t, im, s))
	if !errors.Is(err, pyobj.ErrCorrupted) {
		t.Errorf("expected ErrCorrupted, got %v", err)
	}
}

type customCode struct {
	pyobj.Base
}

func (c *customCode) WriteRepr(out *pyobj.Writer, visited pyobj.Visited) error {
	out.WriteString("<code>")
	return out.Err()
}

func TestRegistryOverride(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	reg := pyobj.NewRegistry()
	reg.Register("code", func(base pyobj.Base) (pyobj.Object, error) {
		return &customCode{base}, nil
	})
	insp := pyobj.NewInspector(im.Target(), reg)
	o, err := insp.FromAddr(im.Code("a.py", "f", 1, nil))
	if err != nil {
		t.Fatal(err)
	}
	if s, err := pyobj.Repr(o); err != nil || s != "<code>" {
		t.Errorf("repr = %q, %v", s, err)
	}
	if o.TypeName() != "code" {
		t.Errorf("type name %q", o.TypeName())
	}
}
