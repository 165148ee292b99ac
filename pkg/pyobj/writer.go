package pyobj

import (
	"bytes"
	"errors"
	"fmt"
	"io"
)

// TruncationMarker ends representations cut by TruncatedRepr.
const TruncationMarker = "...(truncated)"

// errTruncated stops a representation that went past the limit of its
// Writer.
var errTruncated = errors.New("output truncated")

// Writer is the output of WriteRepr. The first write error is kept and
// every later write is dropped, so wrappers check Err only when they need to
// stop early.
type Writer struct {
	w     io.Writer
	n     int
	limit int
	err   error
}

// NewWriter returns a Writer with no length limit.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (w *Writer) WriteString(s string) {
	if w.err != nil {
		return
	}
	if w.limit > 0 && w.n+len(s) > w.limit {
		s = s[:w.limit-w.n]
		w.err = errTruncated
	}
	n, err := io.WriteString(w.w, s)
	w.n += n
	if err != nil {
		w.err = err
	}
}

func (w *Writer) Printf(format string, args ...interface{}) {
	w.WriteString(fmt.Sprintf(format, args...))
}

// Err returns the first error encountered by w.
func (w *Writer) Err() error {
	return w.err
}

// TruncatedRepr returns the representation of o. Representations longer
// than maxlen are cut and end with TruncationMarker, the result is never
// longer than maxlen.
func TruncatedRepr(o Object, maxlen int) (string, error) {
	var buf bytes.Buffer
	out := &Writer{w: &buf, limit: maxlen}
	err := o.WriteRepr(out, make(Visited))
	if err == nil {
		err = out.Err()
	}
	switch {
	case err == nil:
		return buf.String(), nil
	case errors.Is(err, errTruncated):
		keep := maxlen - len(TruncationMarker)
		if keep < 0 {
			return TruncationMarker[:maxlen], nil
		}
		return buf.String()[:keep] + TruncationMarker, nil
	default:
		return "", err
	}
}

// Repr returns the full representation of o.
func Repr(o Object) (string, error) {
	var buf bytes.Buffer
	out := NewWriter(&buf)
	if err := o.WriteRepr(out, make(Visited)); err != nil {
		return "", err
	}
	return buf.String(), out.Err()
}
