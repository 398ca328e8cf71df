package convert

import (
	"fmt"
	"math"
	"reflect"
	"time"

	"github.com/roach88/pmsync/internal/pm"
)

// ISO8601 is the wire layout of date and calendar values: UTC, millisecond precision.
const ISO8601 = "2006-01-02T15:04:05.000Z"

// Reference is the native form of a bean-reference value: the referenced
// bean's presentation model id. The engine maps references to instances.
type Reference string

// Identified is implemented by anything that can stand for a bean reference.
type Identified interface {
	ModelID() string
}

type stringConverter struct{}

func (stringConverter) Tag() FieldType { return TagString }

func (stringConverter) ToWire(v any) (pm.Value, error) {
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case string:
		return pm.String(val), nil
	default:
		return nil, mismatch("string", v)
	}
}

func (stringConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.String:
		return string(val), nil
	default:
		return nil, mismatch("wire string", v)
	}
}

type intConverter struct {
	tag      FieldType
	min, max int64
	want     string
}

func (c intConverter) Tag() FieldType { return c.tag }

func (c intConverter) ToWire(v any) (pm.Value, error) {
	var n int64
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case int8:
		n = int64(val)
	case int16:
		n = int64(val)
	case int32:
		n = int64(val)
	case int64:
		n = val
	case int:
		n = int64(val)
	default:
		return nil, mismatch(c.want, v)
	}
	if n < c.min || n > c.max {
		return nil, fmt.Errorf("value %d out of range for %s", n, c.want)
	}
	return pm.Int(n), nil
}

func (c intConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.Int:
		n := int64(val)
		if n < c.min || n > c.max {
			return nil, fmt.Errorf("wire value %d out of range for %s", n, c.want)
		}
		switch c.tag {
		case TagByte:
			return int8(n), nil
		case TagShort:
			return int16(n), nil
		case TagInteger:
			return int32(n), nil
		default:
			return n, nil
		}
	default:
		return nil, mismatch("wire integer", v)
	}
}

type floatConverter struct {
	tag    FieldType
	single bool
}

func (c floatConverter) Tag() FieldType { return c.tag }

func (c floatConverter) ToWire(v any) (pm.Value, error) {
	var f float64
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case float32:
		f = float64(val)
	case float64:
		f = val
		if c.single {
			f = float64(float32(val))
		}
	default:
		if c.single {
			return nil, mismatch("float32", v)
		}
		return nil, mismatch("float64", v)
	}
	// The wire carries finite numbers only.
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, mismatch("finite number", v)
	}
	return pm.Float(f), nil
}

func (c floatConverter) FromWire(v pm.Value) (any, error) {
	var f float64
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.Float:
		f = float64(val)
	case pm.Int:
		// Integral floats may arrive as Int from lenient transports.
		f = float64(val)
	default:
		return nil, mismatch("wire number", v)
	}
	if c.single {
		return float32(f), nil
	}
	return f, nil
}

type boolConverter struct{}

func (boolConverter) Tag() FieldType { return TagBoolean }

func (boolConverter) ToWire(v any) (pm.Value, error) {
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case bool:
		return pm.Bool(val), nil
	default:
		return nil, mismatch("bool", v)
	}
}

func (boolConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.Bool:
		return bool(val), nil
	default:
		return nil, mismatch("wire bool", v)
	}
}

// timeConverter encodes instants as ISO-8601 UTC strings with millisecond
// precision. Sub-millisecond precision and the original zone are dropped.
type timeConverter struct {
	tag FieldType
}

func (c timeConverter) Tag() FieldType { return c.tag }

func (c timeConverter) ToWire(v any) (pm.Value, error) {
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case time.Time:
		return pm.String(val.UTC().Format(ISO8601)), nil
	case *time.Time:
		if val == nil {
			return pm.Null{}, nil
		}
		return pm.String(val.UTC().Format(ISO8601)), nil
	default:
		return nil, mismatch("time.Time", v)
	}
}

func (c timeConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.String:
		t, err := time.Parse(ISO8601, string(val))
		if err != nil {
			return nil, fmt.Errorf("parse time %q: %w", string(val), err)
		}
		return t.UTC(), nil
	default:
		return nil, mismatch("wire time string", v)
	}
}

type enumConverter struct {
	name    string
	allowed map[string]bool
}

func (enumConverter) Tag() FieldType { return TagEnum }

func (c enumConverter) ToWire(v any) (pm.Value, error) {
	var s string
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case string:
		s = val
	case fmt.Stringer:
		s = val.String()
	default:
		return nil, mismatch("enum "+c.name, v)
	}
	if !c.allowed[s] {
		return nil, fmt.Errorf("%q is not a constant of enum %s", s, c.name)
	}
	return pm.String(s), nil
}

func (c enumConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.String:
		if !c.allowed[string(val)] {
			return nil, fmt.Errorf("%q is not a constant of enum %s", string(val), c.name)
		}
		return string(val), nil
	default:
		return nil, mismatch("wire enum name", v)
	}
}

// beanConverter carries a bean reference as the referenced model id.
type beanConverter struct{}

func (beanConverter) Tag() FieldType { return TagBean }

func (beanConverter) ToWire(v any) (pm.Value, error) {
	switch val := v.(type) {
	case nil:
		return pm.Null{}, nil
	case Reference:
		if val == "" {
			return pm.Null{}, nil
		}
		return pm.String(val), nil
	case Identified:
		// A typed nil pointer inside the interface is a null reference.
		if isNilPointer(val) {
			return pm.Null{}, nil
		}
		return pm.String(val.ModelID()), nil
	default:
		return nil, mismatch("bean reference", v)
	}
}

func (beanConverter) FromWire(v pm.Value) (any, error) {
	switch val := pm.OrNull(v).(type) {
	case pm.Null:
		return nil, nil
	case pm.String:
		return Reference(val), nil
	default:
		return nil, mismatch("wire bean id", v)
	}
}

func mismatch(want string, got any) error {
	return pm.NewTypeMismatchError("", want, got)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
