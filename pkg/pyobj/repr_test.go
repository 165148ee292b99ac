package pyobj

import (
	"bytes"
	"math"
	"testing"
)

func TestAddr2Line(t *testing.T) {
	// Line 1 covers offsets [0, 6), line 2 [6, 50), line 12 [50, ...).
	lnotab := []byte{6, 1, 44, 10}
	for _, tc := range []struct {
		lasti, want int
	}{
		{0, 1},
		{5, 1},
		{6, 2},
		{49, 2},
		{50, 12},
		{1000, 12},
	} {
		if got := addr2line(lnotab, 1, tc.lasti); got != tc.want {
			t.Errorf("addr2line(%d) = %d, want %d", tc.lasti, got, tc.want)
		}
	}
	if got := addr2line(nil, 7, 3); got != 7 {
		t.Errorf("empty lnotab: %d", got)
	}
	if got := addr2line([]byte{4}, 7, 3); got != 7 {
		t.Errorf("odd lnotab: %d", got)
	}
}

func TestFloatRepr(t *testing.T) {
	for _, tc := range []struct {
		f    float64
		want string
	}{
		{0, "0.0"},
		{-2.5, "-2.5"},
		{0.1, "0.1"},
		{1e15, "1000000000000000.0"},
		{1e16, "1e+16"},
		{1.25e-7, "1.25e-07"},
		{math.Inf(1), "inf"},
		{math.Inf(-1), "-inf"},
		{math.NaN(), "nan"},
	} {
		if got := floatRepr(tc.f); got != tc.want {
			t.Errorf("floatRepr(%v) = %s, want %s", tc.f, got, tc.want)
		}
	}
}

func TestQuote(t *testing.T) {
	if got, want := quoteBytes([]byte("say \"hi\"\t")), `'say "hi"\t'`; got != want {
		t.Errorf("quoteBytes = %s, want %s", got, want)
	}
	if got, want := quoteRunes([]rune("don't\r\x7f")), `u"don't\r\x7f"`; got != want {
		t.Errorf("quoteRunes = %s, want %s", got, want)
	}
	if got, want := quoteRunes([]rune{0xd800}), `u'\ud800'`; got != want {
		t.Errorf("lone surrogate = %s, want %s", got, want)
	}
}

func TestWriterSticky(t *testing.T) {
	var buf bytes.Buffer
	w := &Writer{w: &buf, limit: 5}
	w.WriteString("abc")
	w.Printf("%d", 12345)
	w.WriteString("z")
	if buf.String() != "abc12" {
		t.Errorf("wrote %q", buf.String())
	}
	if w.Err() != errTruncated {
		t.Errorf("Err() = %v", w.Err())
	}
}

func TestVisited(t *testing.T) {
	v := make(Visited)
	if !v.Enter(0x10) {
		t.Errorf("first Enter returned false")
	}
	if v.Enter(0x10) {
		t.Errorf("second Enter returned true")
	}
	if !v.Enter(0x20) {
		t.Errorf("Enter of a different address returned false")
	}
}
