package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/pmsync/internal/convert"
)

const personSchema = `
enums: Color: ["RED", "GREEN"]

beans: {
	Person: {
		name:    "string"
		color:   "enum:Color"
		tags:    "[]string"
		partner: {type: "bean", target: "Person"}
		friends: {type: "bean", target: "Person", list: true}
	}
	Counter: {
		value: "long"
	}
}
`

func TestLoad(t *testing.T) {
	doc, err := Load("person.cue", []byte(personSchema))
	require.NoError(t, err)

	require.Len(t, doc.Enums, 1)
	assert.Equal(t, EnumDecl{Name: "Color", Constants: []string{"RED", "GREEN"}}, doc.Enums[0])

	require.Len(t, doc.Types, 2)
	person := doc.Types[0]
	assert.Equal(t, "Person", person.Name())

	props := person.Properties()
	require.Len(t, props, 5)
	assert.Equal(t, Property{Name: "name", Kind: KindValue, Type: convert.String}, props[0])
	assert.Equal(t, Property{Name: "color", Kind: KindValue, Type: convert.Enum("Color")}, props[1])
	assert.Equal(t, Property{Name: "tags", Kind: KindList, Type: convert.String}, props[2])
	assert.Equal(t, Property{Name: "partner", Kind: KindValue, Type: convert.Bean, Target: "Person"}, props[3])
	assert.Equal(t, Property{Name: "friends", Kind: KindList, Type: convert.Bean, Target: "Person"}, props[4])
}

func TestDocument_Apply(t *testing.T) {
	doc, err := Load("person.cue", []byte(personSchema))
	require.NoError(t, err)

	r := NewRegistry(convert.NewRegistry())
	require.NoError(t, doc.Apply(r))
	require.NoError(t, r.Freeze())

	tag, ok := r.Tag("Person", "color")
	require.True(t, ok)
	assert.Equal(t, convert.TagEnum, tag)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"syntax", `beans: {`},
		{"no beans", `enums: Color: ["RED"]`},
		{"empty beans", `beans: {}`},
		{"bean not struct", `beans: Person: "string"`},
		{"property not string or struct", `beans: Person: name: 42`},
		{"missing type", `beans: Person: partner: {target: "Person"}`},
		{"empty list type", `beans: Person: tags: "[]"`},
		{"enum not list", `enums: Color: "RED"
beans: Person: name: "string"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load("bad.cue", []byte(tt.src))
			assert.Error(t, err)
		})
	}
}

func TestLoad_UnknownTypeFailsOnApply(t *testing.T) {
	doc, err := Load("x.cue", []byte(`beans: Person: name: "complex"`))
	require.NoError(t, err)

	err = doc.Apply(NewRegistry(convert.NewRegistry()))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "schema.cue")
	require.NoError(t, os.WriteFile(path, []byte(personSchema), 0o644))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, doc.Types, 2)

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.cue"))
	assert.Error(t, err)
}
