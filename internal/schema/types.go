package schema

import (
	"fmt"
	"regexp"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/pm"
)

// Kind distinguishes single-valued properties from list properties.
type Kind int

const (
	// KindValue is a single-valued property backed by one attribute.
	KindValue Kind = iota + 1
	// KindList is an ordered list synchronized through splices.
	KindList
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindList:
		return "list"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Property is one declared property of a bean type.
type Property struct {
	Name string
	Kind Kind
	Type convert.ValueType

	// Target optionally restricts a bean-reference property to one bean type.
	Target string
}

// IsReference reports whether the property (or list element) is a bean reference.
func (p Property) IsReference() bool {
	return p.Type == convert.Bean
}

// IsList reports whether the property is a list.
func (p Property) IsList() bool {
	return p.Kind == KindList
}

// BeanType is a registered bean type.
// BeanType values are immutable once built.
type BeanType struct {
	name       string
	properties []Property
	index      map[string]int
}

// Name returns the bean type name.
func (b *BeanType) Name() string { return b.name }

// Properties returns the declared properties in declaration order.
func (b *BeanType) Properties() []Property {
	out := make([]Property, len(b.properties))
	copy(out, b.properties)
	return out
}

// Property returns the named property.
func (b *BeanType) Property(name string) (Property, bool) {
	i, ok := b.index[name]
	if !ok {
		return Property{}, false
	}
	return b.properties[i], true
}

var identifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ReservedTypeName reports whether name is a model type the protocol uses
// for its own records.
func ReservedTypeName(name string) bool {
	return name == pm.TypeListSplice || name == pm.TypeClassDescriptor
}

// ValidPropertyName reports whether name can be used as a property name.
// The source-system attribute is never a valid property name.
func ValidPropertyName(name string) bool {
	return identifier.MatchString(name)
}
