package pyexc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/go-delve/pyexc/pkg/proc"
	"github.com/go-delve/pyexc/pkg/pyobj"
	"github.com/go-delve/pyexc/pkg/pyobj/fakepy"
)

const header = "Traceback (most recent call last):\n"

type fixture struct {
	im     *fakepy.Image
	frames []uint64
	tbs    []uint64
}

// newFixture builds a chain of n traceback nodes, node i pointing to a frame
// of function fi in /app/main.py at line 10+i.
func newFixture(n int) *fixture {
	fx := &fixture{im: fakepy.New(fakepy.Options{})}
	var back uint64
	for i := 0; i < n; i++ {
		code := fx.im.Code("/app/main.py", fmt.Sprintf("f%d", i), 10+i, nil, "x")
		frame := fx.im.Frame(back, code, 0, fx.im.Int(int64(i)))
		fx.frames = append(fx.frames, frame)
		back = frame
	}
	fx.tbs = make([]uint64, n)
	var next uint64
	for i := n - 1; i >= 0; i-- {
		fx.tbs[i] = fx.im.Traceback(fx.frames[i], next)
		next = fx.tbs[i]
	}
	return fx
}

func (fx *fixture) summary(i int) string {
	return fmt.Sprintf("Frame %#x, for file /app/main.py, line %d, in f%d (x=%d)", fx.frames[i], 10+i, i, i)
}

func (fx *fixture) head() uint64 {
	if len(fx.tbs) == 0 {
		return 0
	}
	return fx.tbs[0]
}

func (fx *fixture) print(t *testing.T, cfg Config) (string, error) {
	t.Helper()
	insp := pyobj.NewInspector(fx.im.Target(), NewRegistry())
	info, err := SysExcInfo(insp, "")
	if err != nil {
		t.Fatalf("SysExcInfo: %v", err)
	}
	var buf bytes.Buffer
	err = PrintExc(context.Background(), &buf, info, cfg)
	return buf.String(), err
}

func TestPrintExcEndToEnd(t *testing.T) {
	fx := newFixture(2)
	im := fx.im
	valueError := im.TypeObject("exceptions.ValueError")
	im.SetExcInfo(valueError, im.Exception(valueError, im.Str("boom")), fx.head())

	got, err := fx.print(t, Config{})
	if err != nil {
		t.Fatal(err)
	}
	want := header + "  " + fx.summary(0) + "\n  " + fx.summary(1) + "\nValueError('boom')\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintExcNoException(t *testing.T) {
	im := fakepy.New(fakepy.Options{})
	fx := &fixture{im: im}
	got, err := fx.print(t, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if want := header + "0x0\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	im.SetExcInfo(im.None, im.None, im.None)
	got, err = fx.print(t, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if want := header + "None\n"; got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestPrintExcChainLength(t *testing.T) {
	for _, n := range []int{1, 3, 10} {
		fx := newFixture(n)
		fx.im.SetExcInfo(0, fx.im.Int(1), fx.head())
		got, err := fx.print(t, Config{})
		if err != nil {
			t.Fatal(err)
		}
		lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
		if len(lines) != n+2 {
			t.Fatalf("chain of %d: got %d lines:\n%s", n, len(lines), got)
		}
		for i := 0; i < n; i++ {
			if lines[i+1] != "  "+fx.summary(i) {
				t.Errorf("line %d: %q", i+1, lines[i+1])
			}
		}
		if lines[n+1] != "1" {
			t.Errorf("last line %q", lines[n+1])
		}
	}
}

func TestPrintExcNoneTerminatedChain(t *testing.T) {
	fx := newFixture(2)
	fx.im.SetTracebackNext(fx.tbs[1], fx.im.None)
	fx.im.SetExcInfo(0, fx.im.None, fx.head())
	got, err := fx.print(t, Config{})
	if err != nil {
		t.Fatal(err)
	}
	want := header + "  " + fx.summary(0) + "\n  " + fx.summary(1) + "\nNone\n"
	if got != want {
		t.Errorf("got:\n%s\nwant:\n%s", got, want)
	}
}

func TestPrintExcTruncatesFrames(t *testing.T) {
	fx := newFixture(2)
	fx.im.SetExcInfo(0, fx.im.None, fx.head())
	const maxlen = 40
	got, err := fx.print(t, Config{MaxOutputLen: maxlen})
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(got, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines:\n%s", len(lines), got)
	}
	for _, line := range lines[1:3] {
		summary := strings.TrimPrefix(line, "  ")
		if len(summary) != maxlen || !strings.HasSuffix(summary, pyobj.TruncationMarker) {
			t.Errorf("frame line not truncated to %d: %q", maxlen, line)
		}
	}

	again, err := fx.print(t, Config{MaxOutputLen: maxlen})
	if err != nil || again != got {
		t.Errorf("output is not deterministic: %q, %v", again, err)
	}
}

func TestPrintExcSelfReferentialValue(t *testing.T) {
	fx := newFixture(1)
	im := fx.im
	list := im.List(im.Int(0))
	im.SetListItem(list, 0, list)
	runtimeError := im.TypeObject("exceptions.RuntimeError")
	exc := im.Exception(runtimeError, list)
	fx.im.SetExcInfo(runtimeError, exc, fx.head())

	got, err := fx.print(t, Config{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(got, "\nRuntimeError([[...]])\n") {
		t.Errorf("unexpected output:\n%s", got)
	}
}

// cancelWriter cancels a context after a number of writes.
type cancelWriter struct {
	buf    bytes.Buffer
	writes int
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	w.writes--
	if w.writes == 0 {
		w.cancel()
	}
	return w.buf.Write(p)
}

func (w *cancelWriter) String() string {
	return w.buf.String()
}

func TestPrintExcCircularChain(t *testing.T) {
	fx := newFixture(2)
	fx.im.SetTracebackNext(fx.tbs[1], fx.tbs[0])
	fx.im.SetExcInfo(0, fx.im.None, fx.head())
	insp := pyobj.NewInspector(fx.im.Target(), NewRegistry())
	info, err := SysExcInfo(insp, "")
	if err != nil {
		t.Fatal(err)
	}

	t.Run("unbounded", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		out := &cancelWriter{writes: 20, cancel: cancel}
		err := PrintExc(ctx, out, info, Config{})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected cancellation, got %v", err)
		}
		if n := strings.Count(out.String(), "\n"); n < 19 {
			t.Errorf("walk stopped after %d lines", n)
		}
	})

	t.Run("detect cycles", func(t *testing.T) {
		var buf bytes.Buffer
		if err := PrintExc(context.Background(), &buf, info, Config{DetectCycles: true}); err != nil {
			t.Fatal(err)
		}
		want := header + "  " + fx.summary(0) + "\n  " + fx.summary(1) + "\n" +
			fmt.Sprintf("  <traceback cycle at remote %#x>\n", fx.tbs[0]) + "None\n"
		if buf.String() != want {
			t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
		}
	})

	t.Run("max depth", func(t *testing.T) {
		var buf bytes.Buffer
		if err := PrintExc(context.Background(), &buf, info, Config{MaxDepth: 3}); err != nil {
			t.Fatal(err)
		}
		want := header + "  " + fx.summary(0) + "\n  " + fx.summary(1) + "\n  " + fx.summary(0) + "\n" +
			"  <traceback limited to 3 frames>\n" + "None\n"
		if buf.String() != want {
			t.Errorf("got:\n%s\nwant:\n%s", buf.String(), want)
		}
	})
}

func TestPrintExcBadNode(t *testing.T) {
	fx := newFixture(1)
	fx.im.SetTracebackNext(fx.tbs[0], fx.im.Int(5))
	fx.im.SetExcInfo(0, fx.im.None, fx.head())
	_, err := fx.print(t, Config{})
	if err == nil || !strings.Contains(err.Error(), "not a traceback") {
		t.Errorf("expected error for non traceback node, got %v", err)
	}
}

func TestSysExcInfo(t *testing.T) {
	fx := newFixture(1)
	im := fx.im
	keyError := im.TypeObject("exceptions.KeyError")
	value := im.Exception(keyError, im.Str("k"))
	im.SetExcInfo(keyError, value, fx.head())

	insp := pyobj.NewInspector(im.Target(), NewRegistry())
	info, err := SysExcInfo(insp, fakepy.ThreadStateSymbol)
	if err != nil {
		t.Fatal(err)
	}
	if info.Type.Addr() != keyError || info.Value.Addr() != value || info.Traceback.Addr() != fx.head() {
		t.Errorf("wrong exc info %#x %#x %#x", info.Type.Addr(), info.Value.Addr(), info.Traceback.Addr())
	}
	tb, ok := info.Traceback.(*Traceback)
	if !ok {
		t.Fatalf("traceback wrapped as %T", info.Traceback)
	}
	frame, err := tb.Frame()
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := frame.(*pyobj.Frame); !ok || frame.Addr() != fx.frames[0] {
		t.Errorf("frame wrapped as %T at %#x", frame, frame.Addr())
	}
	next, err := tb.Next()
	if err != nil || !IsSentinel(next) {
		t.Errorf("next = %v, %v", next, err)
	}
	if s, err := pyobj.Repr(info.Type); err != nil || s != "<type 'exceptions.KeyError'>" {
		t.Errorf("type repr %q, %v", s, err)
	}

	_, err = SysExcInfo(insp, "_PyThreadState_Missing")
	var symErr *proc.SymbolNotFoundError
	if !errors.As(err, &symErr) {
		t.Errorf("expected SymbolNotFoundError, got %v", err)
	}
}

func TestTracebackNeedsRegistry(t *testing.T) {
	fx := newFixture(1)
	insp := pyobj.NewInspector(fx.im.Target(), pyobj.NewRegistry())
	o, err := insp.FromAddr(fx.head())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := o.(*Traceback); ok {
		t.Errorf("library registry knows about tracebacks")
	}
	if o.TypeName() != TracebackTypeName {
		t.Errorf("type name %q", o.TypeName())
	}
}
