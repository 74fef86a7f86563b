package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ValueType identifies what a Value holds.
type ValueType int

const (
	TypeAbsent ValueType = iota
	TypeBool
	TypeText
	TypeNumber
)

func (t ValueType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeText:
		return "text"
	case TypeNumber:
		return "number"
	default:
		return "absent"
	}
}

// Value is a single field value of a partial record. The zero Value is absent.
type Value struct {
	typ ValueType
	b   bool
	s   string
	n   float64
}

// Absent returns the absent value.
func Absent() Value { return Value{} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{typ: TypeBool, b: b} }

// Text returns a text value. Blank text is absent.
func Text(s string) Value {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}
	}
	return Value{typ: TypeText, s: s}
}

// Number returns a numeric value. NaN and infinities are absent.
func Number(n float64) Value {
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return Value{}
	}
	return Value{typ: TypeNumber, n: n}
}

func (v Value) Type() ValueType { return v.typ }
func (v Value) IsAbsent() bool  { return v.typ == TypeAbsent }

// AsBool returns the boolean held by v.
func (v Value) AsBool() (bool, bool) { return v.b, v.typ == TypeBool }

// AsText returns the text held by v.
func (v Value) AsText() (string, bool) { return v.s, v.typ == TypeText }

// AsNumber returns the number held by v.
func (v Value) AsNumber() (float64, bool) { return v.n, v.typ == TypeNumber }

// Equal reports whether v and o hold the same type and value.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeBool:
		return v.b == o.b
	case TypeText:
		return v.s == o.s
	case TypeNumber:
		return v.n == o.n
	}
	return true
}

func (v Value) String() string {
	switch v.typ {
	case TypeBool:
		return strconv.FormatBool(v.b)
	case TypeText:
		return v.s
	case TypeNumber:
		return strconv.FormatFloat(v.n, 'f', -1, 64)
	default:
		return ""
	}
}

// Interface returns v as a plain Go value (nil, bool, string or float64).
func (v Value) Interface() any {
	switch v.typ {
	case TypeBool:
		return v.b
	case TypeText:
		return v.s
	case TypeNumber:
		return v.n
	default:
		return nil
	}
}

func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.Interface())
}

func (v *Value) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*v = Absent()
		return nil
	}
	var raw any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("decoding value: %w", err)
	}
	parsed, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// FromAny converts a decoded JSON or YAML scalar into a Value.
func FromAny(raw any) (Value, error) {
	switch x := raw.(type) {
	case nil:
		return Absent(), nil
	case Value:
		return x, nil
	case bool:
		return Bool(x), nil
	case string:
		return Text(x), nil
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return Absent(), fmt.Errorf("parsing number %q: %w", x, err)
		}
		return Number(f), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int64:
		return Number(float64(x)), nil
	default:
		return Absent(), fmt.Errorf("unsupported value type %T", raw)
	}
}
