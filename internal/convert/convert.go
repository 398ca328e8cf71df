package convert

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/roach88/pmsync/internal/pm"
)

// ValueType names the declared static type of a property.
type ValueType string

// Built-in value types.
const (
	String   ValueType = "string"
	Byte     ValueType = "byte"
	Short    ValueType = "short"
	Int      ValueType = "int"
	Long     ValueType = "long"
	Float    ValueType = "float"
	Double   ValueType = "double"
	Bool     ValueType = "boolean"
	Date     ValueType = "date"
	Calendar ValueType = "calendar"
	Bean     ValueType = "bean"
)

// EnumPrefix prefixes the value type of every registered enum.
const EnumPrefix = "enum:"

// Enum returns the value type of the enum registered under name.
func Enum(name string) ValueType {
	return ValueType(EnumPrefix + name)
}

// IsEnum reports whether vt names an enum type.
func (vt ValueType) IsEnum() bool {
	return strings.HasPrefix(string(vt), EnumPrefix)
}

// FieldType is the integer tag published for a value type.
type FieldType int

// Field type tags. Values are part of the protocol and must never change.
const (
	TagUnknown  FieldType = 0
	TagEnum     FieldType = 1
	TagBean     FieldType = 2
	TagBoolean  FieldType = 3
	TagByte     FieldType = 4
	TagShort    FieldType = 5
	TagInteger  FieldType = 6
	TagLong     FieldType = 7
	TagFloat    FieldType = 8
	TagDouble   FieldType = 9
	TagString   FieldType = 10
	TagDate     FieldType = 11
	TagCalendar FieldType = 12
)

// Converter translates between native Go values and wire values.
//
// Null round-trips: ToWire(nil) is pm.Null{} and FromWire(pm.Null{}) is nil.
type Converter interface {
	Tag() FieldType
	ToWire(v any) (pm.Value, error)
	FromWire(v pm.Value) (any, error)
}

// Registry resolves value types to converters.
//
// Thread-safety: safe for concurrent use. Registration fails once frozen.
type Registry struct {
	mu         sync.RWMutex
	converters map[ValueType]Converter
	frozen     bool
}

// NewRegistry creates a registry holding all built-in converters.
func NewRegistry() *Registry {
	r := &Registry{converters: make(map[ValueType]Converter)}
	for vt, c := range builtins() {
		r.converters[vt] = c
	}
	return r
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// RegisterEnum adds an enum type whose wire form is one of names.
func (r *Registry) RegisterEnum(name string, names ...string) error {
	if name == "" {
		return fmt.Errorf("enum name must not be empty")
	}
	if len(names) == 0 {
		return fmt.Errorf("enum %q must declare at least one constant", name)
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		if n == "" {
			return fmt.Errorf("enum %q: constant names must not be empty", name)
		}
		if allowed[n] {
			return fmt.Errorf("enum %q: duplicate constant %q", name, n)
		}
		allowed[n] = true
	}
	return r.Register(Enum(name), enumConverter{name: name, allowed: allowed})
}

// Register adds a converter for vt.
func (r *Registry) Register(vt ValueType, c Converter) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return fmt.Errorf("register %q: converter registry is frozen", vt)
	}
	if _, exists := r.converters[vt]; exists {
		return fmt.Errorf("register %q: converter already registered", vt)
	}
	r.converters[vt] = c
	return nil
}

// Freeze makes the registry read-only.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Resolve returns the converter for vt or an UnsupportedTypeError.
func (r *Registry) Resolve(vt ValueType) (Converter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.converters[vt]
	if !ok {
		return nil, pm.NewUnsupportedTypeError(string(vt))
	}
	return c, nil
}

// Types returns all registered value types in sorted order.
func (r *Registry) Types() []ValueType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ValueType, 0, len(r.converters))
	for vt := range r.converters {
		out = append(out, vt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func builtins() map[ValueType]Converter {
	return map[ValueType]Converter{
		String:   stringConverter{},
		Byte:     intConverter{tag: TagByte, min: math.MinInt8, max: math.MaxInt8, want: "int8"},
		Short:    intConverter{tag: TagShort, min: math.MinInt16, max: math.MaxInt16, want: "int16"},
		Int:      intConverter{tag: TagInteger, min: math.MinInt32, max: math.MaxInt32, want: "int32"},
		Long:     intConverter{tag: TagLong, min: math.MinInt64, max: math.MaxInt64, want: "int64"},
		Float:    floatConverter{tag: TagFloat, single: true},
		Double:   floatConverter{tag: TagDouble},
		Bool:     boolConverter{},
		Date:     timeConverter{tag: TagDate},
		Calendar: timeConverter{tag: TagCalendar},
		Bean:     beanConverter{},
	}
}
