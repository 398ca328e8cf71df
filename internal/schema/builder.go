package schema

import (
	"fmt"

	"github.com/roach88/pmsync/internal/convert"
	"github.com/roach88/pmsync/internal/pm"
)

// Builder declares a bean type property by property.
//
// Example:
//
//	bt, err := schema.NewBuilder("Person").
//		Value("name", convert.String).
//		Reference("partner", "Person").
//		List("tags", convert.String).
//		Build()
type Builder struct {
	name  string
	props []Property
}

// NewBuilder starts the declaration of a bean type.
func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// Value declares a single-valued property.
func (b *Builder) Value(name string, vt convert.ValueType) *Builder {
	b.props = append(b.props, Property{Name: name, Kind: KindValue, Type: vt})
	return b
}

// List declares a list property of scalar elements.
func (b *Builder) List(name string, vt convert.ValueType) *Builder {
	b.props = append(b.props, Property{Name: name, Kind: KindList, Type: vt})
	return b
}

// Reference declares a property holding a bean of the target type.
// An empty target accepts any bean type.
func (b *Builder) Reference(name, target string) *Builder {
	b.props = append(b.props, Property{Name: name, Kind: KindValue, Type: convert.Bean, Target: target})
	return b
}

// ReferenceList declares a list of beans of the target type.
func (b *Builder) ReferenceList(name, target string) *Builder {
	b.props = append(b.props, Property{Name: name, Kind: KindList, Type: convert.Bean, Target: target})
	return b
}

// Add declares a property from a fully specified Property value.
func (b *Builder) Add(p Property) *Builder {
	b.props = append(b.props, p)
	return b
}

// Build validates the declaration and returns the bean type.
// Value types are resolved later, when the type is registered.
func (b *Builder) Build() (*BeanType, error) {
	if b.name == "" {
		return nil, fmt.Errorf("bean type name must not be empty")
	}
	if ReservedTypeName(b.name) {
		return nil, pm.NewBeanDefinitionError("bean type name %q is reserved", b.name)
	}

	bt := &BeanType{
		name:       b.name,
		properties: make([]Property, 0, len(b.props)),
		index:      make(map[string]int, len(b.props)),
	}
	for _, p := range b.props {
		if !ValidPropertyName(p.Name) {
			return nil, fmt.Errorf("bean type %s: invalid property name %q", b.name, p.Name)
		}
		if _, dup := bt.index[p.Name]; dup {
			return nil, fmt.Errorf("bean type %s: duplicate property %q", b.name, p.Name)
		}
		if p.Kind != KindValue && p.Kind != KindList {
			return nil, fmt.Errorf("bean type %s: property %q has no kind", b.name, p.Name)
		}
		if p.Target != "" && p.Type != convert.Bean {
			return nil, fmt.Errorf("bean type %s: property %q has a target but is not a bean reference", b.name, p.Name)
		}
		bt.index[p.Name] = len(bt.properties)
		bt.properties = append(bt.properties, p)
	}
	return bt, nil
}

// MustBuild is like Build but panics on error. Intended for static declarations.
func (b *Builder) MustBuild() *BeanType {
	bt, err := b.Build()
	if err != nil {
		panic(err)
	}
	return bt
}
