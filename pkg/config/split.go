package config

import (
	"bytes"
	"fmt"
	"io"
	"reflect"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode"
)

// SplitQuotedFields is like strings.Fields but ignores spaces inside areas
// surrounded by the specified quote character.
// To specify a single quote use backslash to escape it: '\''
func SplitQuotedFields(in string, quote rune) []string {
	type stateEnum int
	const (
		inSpace stateEnum = iota
		inField
		inQuote
		inQuoteEscaped
	)
	state := inSpace
	r := []string{}
	var buf bytes.Buffer

	for _, ch := range in {
		switch state {
		case inSpace:
			if ch == quote {
				state = inQuote
			} else if !unicode.IsSpace(ch) {
				buf.WriteRune(ch)
				state = inField
			}

		case inField:
			if ch == quote {
				state = inQuote
			} else if unicode.IsSpace(ch) {
				r = append(r, buf.String())
				buf.Reset()
				state = inSpace
			} else {
				buf.WriteRune(ch)
			}

		case inQuote:
			if ch == quote {
				state = inField
			} else if ch == '\\' {
				state = inQuoteEscaped
			} else {
				buf.WriteRune(ch)
			}

		case inQuoteEscaped:
			buf.WriteRune(ch)
			state = inQuote
		}
	}

	if buf.Len() != 0 {
		r = append(r, buf.String())
	}

	return r
}

// ConfigureFindFieldByName returns the field of the struct pointed to by
// sargs whose tag called cfgTag has name cfgname.
func ConfigureFindFieldByName(sargs interface{}, cfgname, cfgTag string) reflect.Value {
	it := iterateConfiguration(sargs, cfgTag)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == cfgname {
			return field
		}
	}
	return reflect.ValueOf(nil)
}

// ConfigureList writes every field of the struct pointed to by sargs that
// has a cfgTag tag.
func ConfigureList(w io.Writer, sargs interface{}, cfgTag string) error {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	it := iterateConfiguration(sargs, cfgTag)
	for it.Next() {
		fieldName, field := it.Field()
		if fieldName == "" {
			continue
		}
		writeField(tw, fieldName, field)
	}
	return tw.Flush()
}

// ConfigureListByName returns the line ConfigureList would print for the
// field named cfgname, or the empty string if there is no such field.
func ConfigureListByName(sargs interface{}, cfgname, cfgTag string) string {
	if cfgname == "" {
		return ""
	}
	field := ConfigureFindFieldByName(sargs, cfgname, cfgTag)
	if !field.IsValid() {
		return ""
	}
	var buf bytes.Buffer
	writeField(&buf, cfgname, field)
	return buf.String()
}

func writeField(w io.Writer, fieldName string, field reflect.Value) {
	if field.Kind() == reflect.Ptr {
		if !field.IsNil() {
			fmt.Fprintf(w, "%s\t%v\n", fieldName, field.Elem())
		} else {
			fmt.Fprintf(w, "%s\t<not defined>\n", fieldName)
		}
		return
	}
	fmt.Fprintf(w, "%s\t%v\n", fieldName, field)
}

// ConfigureSetSimple sets the int, bool, string or []string field named
// cfgname of the struct pointed to by sargs to the value parsed from rest.
// Elements of a []string are separated by spaces and can be quoted.
func ConfigureSetSimple(sargs interface{}, cfgname, cfgTag, rest string) error {
	field := ConfigureFindFieldByName(sargs, cfgname, cfgTag)
	if !field.IsValid() || !field.CanSet() {
		return fmt.Errorf("%q is not a configuration parameter", cfgname)
	}

	simpleArg := func(typ reflect.Type) (reflect.Value, error) {
		switch typ.Kind() {
		case reflect.Int:
			n, err := strconv.Atoi(rest)
			if err != nil {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number", cfgname)
			}
			if n < 0 {
				return reflect.ValueOf(nil), fmt.Errorf("argument to %q must be a number greater than zero", cfgname)
			}
			return reflect.ValueOf(&n), nil
		case reflect.Bool:
			v := rest == "true"
			return reflect.ValueOf(&v), nil
		case reflect.String:
			v := rest
			return reflect.ValueOf(&v), nil
		case reflect.Slice:
			if typ.Elem().Kind() != reflect.String {
				break
			}
			v := SplitQuotedFields(rest, '"')
			return reflect.ValueOf(&v), nil
		}
		return reflect.ValueOf(nil), fmt.Errorf("unsupported type for configuration key %q", cfgname)
	}

	if field.Kind() == reflect.Ptr {
		val, err := simpleArg(field.Type().Elem())
		if err != nil {
			return err
		}
		field.Set(val)
		return nil
	}
	val, err := simpleArg(field.Type())
	if err != nil {
		return err
	}
	field.Set(val.Elem())
	return nil
}

type configureIterator struct {
	cfgValue reflect.Value
	cfgType  reflect.Type
	cfgTag   string
	i        int
}

func iterateConfiguration(sargs interface{}, cfgTag string) *configureIterator {
	cfgValue := reflect.ValueOf(sargs).Elem()
	cfgType := cfgValue.Type()
	return &configureIterator{cfgValue, cfgType, cfgTag, -1}
}

func (it *configureIterator) Next() bool {
	it.i++
	return it.i < it.cfgValue.NumField()
}

func (it *configureIterator) Field() (name string, field reflect.Value) {
	name = it.cfgType.Field(it.i).Tag.Get(it.cfgTag)
	if comma := strings.Index(name, ","); comma >= 0 {
		name = name[:comma]
	}
	field = it.cfgValue.Field(it.i)
	return
}
