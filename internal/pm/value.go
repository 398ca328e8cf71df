package pm

import (
	"fmt"
	"math"
)

// Value is a sealed interface representing a wire-safe attribute value.
// Only Null, String, Int, Float, and Bool implement this.
type Value interface {
	wireValue() // Sealed - only these types implement it
}

// Null represents an explicit null attribute value.
type Null struct{}

func (Null) wireValue() {}

// String represents a string attribute value.
type String string

func (String) wireValue() {}

// Int represents an integral attribute value.
type Int int64

func (Int) wireValue() {}

// Float represents a floating point attribute value.
// NaN and infinities cannot be encoded on the wire.
type Float float64

func (Float) wireValue() {}

// Bool represents a boolean attribute value.
type Bool bool

func (Bool) wireValue() {}

// OrNull returns v, or Null{} when v is a nil interface.
func OrNull(v Value) Value {
	if v == nil {
		return Null{}
	}
	return v
}

// IsNull reports whether v is null (explicit Null or nil interface).
func IsNull(v Value) bool {
	if v == nil {
		return true
	}
	_, ok := v.(Null)
	return ok
}

// Equal compares two wire values. Int and Float never compare equal to each
// other, so a type change is always observable.
func Equal(a, b Value) bool {
	a, b = OrNull(a), OrNull(b)
	switch av := a.(type) {
	case Float:
		bv, ok := b.(Float)
		if !ok {
			return false
		}
		return av == bv || (math.IsNaN(float64(av)) && math.IsNaN(float64(bv)))
	default:
		return a == b
	}
}

// ValueOf converts a plain Go scalar to a wire value.
// Accepts nil, string, bool, all integer kinds, float32 and float64.
func ValueOf(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case string:
		return String(val), nil
	case bool:
		return Bool(val), nil
	case int:
		return Int(val), nil
	case int8:
		return Int(val), nil
	case int16:
		return Int(val), nil
	case int32:
		return Int(val), nil
	case int64:
		return Int(val), nil
	case uint8:
		return Int(val), nil
	case uint16:
		return Int(val), nil
	case uint32:
		return Int(val), nil
	case float32:
		return Float(val), nil
	case float64:
		return Float(val), nil
	default:
		return nil, fmt.Errorf("unsupported wire value type: %T", v)
	}
}

// Interface returns the plain Go representation of v:
// nil, string, int64, float64, or bool.
func Interface(v Value) any {
	switch val := OrNull(v).(type) {
	case String:
		return string(val)
	case Int:
		return int64(val)
	case Float:
		return float64(val)
	case Bool:
		return bool(val)
	default:
		return nil
	}
}

// FormatValue renders v for logs and traces.
func FormatValue(v Value) string {
	switch val := OrNull(v).(type) {
	case String:
		return fmt.Sprintf("%q", string(val))
	case Int:
		return fmt.Sprintf("%d", int64(val))
	case Float:
		return fmt.Sprintf("%g", float64(val))
	case Bool:
		return fmt.Sprintf("%t", bool(val))
	default:
		return "null"
	}
}
