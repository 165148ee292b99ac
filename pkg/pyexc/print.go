package pyexc

import (
	"context"
	"fmt"
	"io"

	"github.com/go-delve/pyexc/pkg/logflags"
	"github.com/go-delve/pyexc/pkg/pyobj"
)

// DefaultMaxOutputLen is the default length limit of a frame line.
const DefaultMaxOutputLen = 1024

// Config controls PrintExc. The zero value walks the whole chain.
type Config struct {
	// MaxOutputLen is the length limit of each frame summary,
	// DefaultMaxOutputLen if not positive.
	MaxOutputLen int
	// MaxDepth stops the walk after that many nodes, 0 means no limit.
	MaxDepth int
	// DetectCycles stops the walk at the first node seen twice.
	DetectCycles bool
}

// MaxOutputLenOrDefault returns MaxOutputLen, or DefaultMaxOutputLen if it
// is not positive.
func (cfg Config) MaxOutputLenOrDefault() int {
	if cfg.MaxOutputLen <= 0 {
		return DefaultMaxOutputLen
	}
	return cfg.MaxOutputLen
}

// Walk calls fn with the frame of each node of the chain starting at tb,
// in chain order, stopping at the sentinel. If the walk is stopped early by
// cfg the returned note says why.
func Walk(ctx context.Context, tb pyobj.Object, cfg Config, fn func(frame pyobj.Object) error) (note string, err error) {
	log := logflags.PyExcLogger()
	seen := make(map[uint64]struct{})
	for depth := 0; !IsSentinel(tb); depth++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if cfg.MaxDepth > 0 && depth >= cfg.MaxDepth {
			return fmt.Sprintf("<traceback limited to %d frames>", cfg.MaxDepth), nil
		}
		if cfg.DetectCycles {
			if _, ok := seen[tb.Addr()]; ok {
				return fmt.Sprintf("<traceback cycle at remote %#x>", tb.Addr()), nil
			}
			seen[tb.Addr()] = struct{}{}
		}
		node, ok := tb.(*Traceback)
		if !ok {
			return "", fmt.Errorf("object at %#x is a %s, not a traceback", tb.Addr(), tb.TypeName())
		}
		log.Debugf("traceback node %d at %#x", depth, node.Addr())
		frame, err := node.Frame()
		if err != nil {
			return "", err
		}
		if err := fn(frame); err != nil {
			return "", err
		}
		if tb, err = node.Next(); err != nil {
			return "", err
		}
	}
	return "", nil
}

// PrintExc writes the traceback of info to w, in the format of
// traceback.print_exc, with each frame described by its summary.
func PrintExc(ctx context.Context, w io.Writer, info *ExcInfo, cfg Config) error {
	out := pyobj.NewWriter(w)
	out.WriteString("Traceback (most recent call last):\n")
	maxlen := cfg.MaxOutputLenOrDefault()
	note, err := Walk(ctx, info.Traceback, cfg, func(frame pyobj.Object) error {
		summary, err := pyobj.TruncatedRepr(frame, maxlen)
		if err != nil {
			return err
		}
		out.Printf("  %s\n", summary)
		return out.Err()
	})
	if err != nil {
		return err
	}
	if note != "" {
		out.Printf("  %s\n", note)
	}
	if err := info.Value.WriteRepr(out, make(pyobj.Visited)); err != nil {
		return err
	}
	out.WriteString("\n")
	return out.Err()
}
