// Package pyexc rebuilds the traceback of the exception being handled by a
// stopped CPython 2.7 interpreter.
package pyexc

import (
	"fmt"

	"github.com/go-delve/pyexc/pkg/proc"
	"github.com/go-delve/pyexc/pkg/pyobj"
)

const (
	// ThreadStateSymbol is the global pointing to the PyThreadState of the
	// thread holding the GIL.
	ThreadStateSymbol = "_PyThreadState_Current"

	// TracebackTypeName is the tp_name of traceback objects.
	TracebackTypeName = "traceback"
)

// ExcInfo is the exception being handled, as returned by sys.exc_info().
type ExcInfo struct {
	Type      pyobj.Object
	Value     pyobj.Object
	Traceback pyobj.Object
}

// NewRegistry returns the object registry with the traceback wrapper added
// to the rules of pyobj.
func NewRegistry() *pyobj.Registry {
	reg := pyobj.NewRegistry()
	reg.Register(TracebackTypeName, newTraceback)
	return reg
}

// SysExcInfo reads the exception being handled from the thread state
// pointed to by the global symbol (ThreadStateSymbol if empty).
func SysExcInfo(insp *pyobj.Inspector, symbol string) (*ExcInfo, error) {
	if symbol == "" {
		symbol = ThreadStateSymbol
	}
	ts, err := insp.Process().FindGlobal(symbol)
	if err != nil {
		return nil, err
	}
	var objs [3]pyobj.Object
	for i, name := range []string{"exc_type", "exc_value", "exc_traceback"} {
		field, err := ts.Field(name)
		if err != nil {
			return nil, fmt.Errorf("reading %s->%s: %w", symbol, name, err)
		}
		if objs[i], err = insp.FromVariable(field); err != nil {
			return nil, fmt.Errorf("reading %s->%s: %w", symbol, name, err)
		}
	}
	return &ExcInfo{Type: objs[0], Value: objs[1], Traceback: objs[2]}, nil
}

// Traceback wraps a PyTracebackObject. The record is read once, when the
// wrapper is created.
type Traceback struct {
	pyobj.Base
	tb *proc.Variable
}

func newTraceback(base pyobj.Base) (pyobj.Object, error) {
	v, err := base.Struct("PyTracebackObject")
	if err != nil {
		return nil, err
	}
	if err := v.Load(); err != nil {
		return nil, err
	}
	return &Traceback{Base: base, tb: v}, nil
}

func (tb *Traceback) member(name string) (pyobj.Object, error) {
	v, err := tb.tb.Field(name)
	if err != nil {
		return nil, err
	}
	return tb.Inspector().FromVariable(v)
}

// Frame returns the frame of the node.
func (tb *Traceback) Frame() (pyobj.Object, error) {
	return tb.member("tb_frame")
}

// Next returns the next node of the chain.
func (tb *Traceback) Next() (pyobj.Object, error) {
	return tb.member("tb_next")
}

// LineNo returns the line recorded in the node.
func (tb *Traceback) LineNo() (int, error) {
	v, err := tb.tb.Field("tb_lineno")
	if err != nil {
		return 0, err
	}
	n, err := v.Int()
	return int(n), err
}

// IsSentinel reports whether o ends a traceback chain: a NULL pointer or
// None.
func IsSentinel(o pyobj.Object) bool {
	return o.IsNull() || pyobj.IsNone(o)
}
