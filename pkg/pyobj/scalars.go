package pyobj

import (
	"math"
	"math/big"
	"strconv"
	"strings"
)

type noneObject struct {
	Base
}

func newNone(base Base) (Object, error) {
	return &noneObject{base}, nil
}

func (o *noneObject) WriteRepr(out *Writer, visited Visited) error {
	out.WriteString("None")
	return out.Err()
}

// IsNone reports whether o is the None object.
func IsNone(o Object) bool {
	_, ok := o.(*noneObject)
	return ok
}

type intObject struct {
	Base
}

func newInt(base Base) (Object, error) {
	return &intObject{base}, nil
}

// Value returns the value of the int.
func (o *intObject) Value() (int64, error) {
	v, err := o.Struct("PyIntObject")
	if err != nil {
		return 0, err
	}
	return fieldInt(v, "ob_ival")
}

func (o *intObject) WriteRepr(out *Writer, visited Visited) error {
	n, err := o.Value()
	if err != nil {
		return err
	}
	out.WriteString(strconv.FormatInt(n, 10))
	return out.Err()
}

type boolObject struct {
	intObject
}

func newBool(base Base) (Object, error) {
	return &boolObject{intObject{base}}, nil
}

func (o *boolObject) WriteRepr(out *Writer, visited Visited) error {
	n, err := o.Value()
	if err != nil {
		return err
	}
	if n != 0 {
		out.WriteString("True")
	} else {
		out.WriteString("False")
	}
	return out.Err()
}

type longObject struct {
	Base
}

func newLong(base Base) (Object, error) {
	return &longObject{base}, nil
}

// Value returns the value of the long. Digits are 15 bits wide when stored
// in 16 bit integers and 30 bits wide otherwise.
func (o *longObject) Value() (*big.Int, error) {
	v, err := o.Struct("PyLongObject")
	if err != nil {
		return nil, err
	}
	size, err := fieldInt(v, "ob_size")
	if err != nil {
		return nil, err
	}
	ndigits := size
	if ndigits < 0 {
		ndigits = -ndigits
	}
	if err := checkLen("long", o.addr, ndigits); err != nil {
		return nil, err
	}
	digits, err := v.Field("ob_digit")
	if err != nil {
		return nil, err
	}
	result := new(big.Int)
	var digit big.Int
	for i := ndigits - 1; i >= 0; i-- {
		d, err := digits.Index(i)
		if err != nil {
			return nil, err
		}
		shift := uint(30)
		if d.Size() == 2 {
			shift = 15
		}
		n, err := d.Uint()
		if err != nil {
			return nil, err
		}
		result.Lsh(result, shift)
		result.Or(result, digit.SetUint64(n))
	}
	if size < 0 {
		result.Neg(result)
	}
	return result, nil
}

func (o *longObject) WriteRepr(out *Writer, visited Visited) error {
	n, err := o.Value()
	if err != nil {
		return err
	}
	out.WriteString(n.String())
	out.WriteString("L")
	return out.Err()
}

type floatObject struct {
	Base
}

func newFloat(base Base) (Object, error) {
	return &floatObject{base}, nil
}

func (o *floatObject) WriteRepr(out *Writer, visited Visited) error {
	v, err := o.Field("PyFloatObject", "ob_fval")
	if err != nil {
		return err
	}
	f, err := v.Float()
	if err != nil {
		return err
	}
	out.WriteString(floatRepr(f))
	return out.Err()
}

// floatRepr formats f like repr() of a Python 2.7 float: the shortest
// representation that round trips, in positional notation when the decimal
// exponent is in [-4, 16).
func floatRepr(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	e := strconv.FormatFloat(f, 'e', -1, 64)
	exp, _ := strconv.Atoi(e[strings.IndexByte(e, 'e')+1:])
	if exp < -4 || exp >= 16 {
		return e
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}
