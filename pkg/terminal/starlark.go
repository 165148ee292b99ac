package terminal

import (
	"context"

	"github.com/go-delve/pyexc/pkg/pyexc"
	"github.com/go-delve/pyexc/pkg/pyobj"
	"github.com/go-delve/pyexc/pkg/terminal/starbind"
)

type starlarkContext struct {
	term *Term
}

var _ starbind.Context = starlarkContext{}

func (ctx starlarkContext) RegisterCommand(name, helpMsg string, fn func(args string) error) {
	ctx.term.cmds.Register(name, func(t *Term, ctx callContext, args string) error {
		return fn(args)
	}, helpMsg)
}

func (ctx starlarkContext) CallCommand(cmdstr string) error {
	return ctx.term.cmds.Call(cmdstr, ctx.term)
}

// ExcInfo returns the exception being handled with the same frame
// summaries py-exc-print prints.
func (ctx starlarkContext) ExcInfo(c context.Context) (*starbind.ExcInfo, error) {
	t := ctx.term
	info, err := pyexc.SysExcInfo(t.insp, t.conf.ThreadStateSymbol)
	if err != nil {
		return nil, err
	}
	cfg := t.excConfig()
	r := &starbind.ExcInfo{}
	if r.Type, err = pyobj.TruncatedRepr(info.Type, cfg.MaxOutputLenOrDefault()); err != nil {
		return nil, err
	}
	if r.Value, err = pyobj.Repr(info.Value); err != nil {
		return nil, err
	}
	r.Note, err = pyexc.Walk(c, info.Traceback, cfg, func(frame pyobj.Object) error {
		summary, err := pyobj.TruncatedRepr(frame, cfg.MaxOutputLenOrDefault())
		if err != nil {
			return err
		}
		sf := starbind.Frame{Summary: summary}
		if f, ok := frame.(*pyobj.Frame); ok {
			if sf.File, err = f.Filename(); err != nil {
				return err
			}
			if sf.Function, err = f.FuncName(); err != nil {
				return err
			}
			if sf.Line, err = f.Line(); err != nil {
				return err
			}
		}
		r.Frames = append(r.Frames, sf)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}
