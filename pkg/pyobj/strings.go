package pyobj

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf16"
)

type stringObject struct {
	Base
}

func newString(base Base) (Object, error) {
	return &stringObject{base}, nil
}

// Bytes returns the contents of the string.
func (o *stringObject) Bytes() ([]byte, error) {
	v, err := o.Struct("PyStringObject")
	if err != nil {
		return nil, err
	}
	size, err := fieldInt(v, "ob_size")
	if err != nil {
		return nil, err
	}
	if err := checkLen("str", o.addr, size); err != nil {
		return nil, err
	}
	sval, err := v.Field("ob_sval")
	if err != nil {
		return nil, err
	}
	return sval.Bytes(size)
}

func (o *stringObject) StringValue() (string, error) {
	b, err := o.Bytes()
	return string(b), err
}

func (o *stringObject) WriteRepr(out *Writer, visited Visited) error {
	b, err := o.Bytes()
	if err != nil {
		return err
	}
	out.WriteString(quoteBytes(b))
	return out.Err()
}

// chooseQuote returns the quote used by Python's repr for a string with or
// without single and double quotes.
func chooseQuote(hasSingle, hasDouble bool) byte {
	if hasSingle && !hasDouble {
		return '"'
	}
	return '\''
}

// quoteBytes returns the repr of a Python 2 str.
func quoteBytes(b []byte) string {
	quote := chooseQuote(strings.ContainsRune(string(b), '\''), strings.ContainsRune(string(b), '"'))
	var sb strings.Builder
	sb.WriteByte(quote)
	for _, c := range b {
		switch {
		case c == quote || c == '\\':
			sb.WriteByte('\\')
			sb.WriteByte(c)
		case c == '\t':
			sb.WriteString(`\t`)
		case c == '\n':
			sb.WriteString(`\n`)
		case c == '\r':
			sb.WriteString(`\r`)
		case c < ' ' || c >= 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, c)
		default:
			sb.WriteByte(c)
		}
	}
	sb.WriteByte(quote)
	return sb.String()
}

type unicodeObject struct {
	Base
}

func newUnicode(base Base) (Object, error) {
	return &unicodeObject{base}, nil
}

// Runes returns the code points of the string. Builds storing UTF-16 code
// units have their surrogate pairs combined.
func (o *unicodeObject) Runes() ([]rune, error) {
	v, err := o.Struct("PyUnicodeObject")
	if err != nil {
		return nil, err
	}
	length, err := fieldInt(v, "length")
	if err != nil {
		return nil, err
	}
	if err := checkLen("unicode", o.addr, length); err != nil {
		return nil, err
	}
	str, err := v.Field("str")
	if err != nil {
		return nil, err
	}
	units := make([]rune, 0, length)
	unitSize := int64(4)
	for i := int64(0); i < length; i++ {
		u, err := str.Index(i)
		if err != nil {
			return nil, err
		}
		unitSize = u.Size()
		n, err := u.Uint()
		if err != nil {
			return nil, err
		}
		units = append(units, rune(n))
	}
	if unitSize != 2 {
		return units, nil
	}
	var runes []rune
	for i := 0; i < len(units); i++ {
		if i+1 < len(units) && utf16.IsSurrogate(units[i]) {
			if r := utf16.DecodeRune(units[i], units[i+1]); r != unicode.ReplacementChar {
				runes = append(runes, r)
				i++
				continue
			}
		}
		runes = append(runes, units[i])
	}
	return runes, nil
}

func (o *unicodeObject) StringValue() (string, error) {
	runes, err := o.Runes()
	return string(runes), err
}

func (o *unicodeObject) WriteRepr(out *Writer, visited Visited) error {
	runes, err := o.Runes()
	if err != nil {
		return err
	}
	out.WriteString(quoteRunes(runes))
	return out.Err()
}

// quoteRunes returns the repr of a Python 2 unicode string.
func quoteRunes(runes []rune) string {
	var hasSingle, hasDouble bool
	for _, r := range runes {
		switch r {
		case '\'':
			hasSingle = true
		case '"':
			hasDouble = true
		}
	}
	quote := rune(chooseQuote(hasSingle, hasDouble))
	var sb strings.Builder
	sb.WriteByte('u')
	sb.WriteRune(quote)
	for _, r := range runes {
		switch {
		case r == quote || r == '\\':
			sb.WriteByte('\\')
			sb.WriteRune(r)
		case r == '\t':
			sb.WriteString(`\t`)
		case r == '\n':
			sb.WriteString(`\n`)
		case r == '\r':
			sb.WriteString(`\r`)
		case r >= 0x10000:
			fmt.Fprintf(&sb, `\U%08x`, r)
		case r >= 0x100:
			fmt.Fprintf(&sb, `\u%04x`, r)
		case r < ' ' || r >= 0x7f:
			fmt.Fprintf(&sb, `\x%02x`, r)
		default:
			sb.WriteRune(r)
		}
	}
	sb.WriteRune(quote)
	return sb.String()
}
