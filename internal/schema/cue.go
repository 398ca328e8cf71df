package schema

import (
	"fmt"
	"os"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/pmsync/internal/convert"
)

// Document is the result of loading a CUE schema file.
//
// The expected shape is:
//
//	enums: Color: ["RED", "GREEN"]
//
//	beans: {
//		Person: {
//			name:    "string"
//			color:   "enum:Color"
//			tags:    "[]string"
//			partner: {type: "bean", target: "Person"}
//			friends: {type: "bean", target: "Person", list: true}
//		}
//	}
//
// Property order follows declaration order in the file.
type Document struct {
	Enums []EnumDecl
	Types []*BeanType
}

// EnumDecl is one enum declared in a schema file.
type EnumDecl struct {
	Name      string
	Constants []string
}

// LoadFile reads and compiles a CUE schema file.
func LoadFile(path string) (*Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}
	return Load(path, src)
}

// Load compiles CUE source into bean type declarations.
// Uses the CUE SDK's Go API directly.
func Load(filename string, src []byte) (*Document, error) {
	ctx := cuecontext.New()
	v := ctx.CompileBytes(src, cue.Filename(filename))
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	doc := &Document{}

	enums := v.LookupPath(cue.ParsePath("enums"))
	if enums.Exists() {
		iter, err := enums.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			decl, err := compileEnum(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			doc.Enums = append(doc.Enums, decl)
		}
	}

	beans := v.LookupPath(cue.ParsePath("beans"))
	if !beans.Exists() {
		return nil, &CompileError{Field: "beans", Message: "at least one bean type is required", Pos: v.Pos()}
	}
	iter, err := beans.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		bt, err := CompileBeanType(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		doc.Types = append(doc.Types, bt)
	}
	if len(doc.Types) == 0 {
		return nil, &CompileError{Field: "beans", Message: "at least one bean type is required", Pos: beans.Pos()}
	}

	return doc, nil
}

// Apply registers the document's enums with the schema registry's converters
// and then its bean types.
func (d *Document) Apply(r *Registry) error {
	for _, e := range d.Enums {
		if err := r.Converters().RegisterEnum(e.Name, e.Constants...); err != nil {
			return err
		}
	}
	for _, bt := range d.Types {
		if err := r.Register(bt); err != nil {
			return err
		}
	}
	return nil
}

func compileEnum(name string, v cue.Value) (EnumDecl, error) {
	decl := EnumDecl{Name: name}
	list, err := v.List()
	if err != nil {
		return decl, &CompileError{Field: "enums." + name, Message: "must be a list of constant names", Pos: v.Pos()}
	}
	for list.Next() {
		s, err := list.Value().String()
		if err != nil {
			return decl, formatCUEError(err)
		}
		decl.Constants = append(decl.Constants, s)
	}
	return decl, nil
}

// CompileBeanType parses one bean type struct.
func CompileBeanType(name string, v cue.Value) (*BeanType, error) {
	if v.IncompleteKind() != cue.StructKind {
		return nil, &CompileError{Field: "beans." + name, Message: "must be a struct of properties", Pos: v.Pos()}
	}

	b := NewBuilder(name)
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		p, err := compileProperty(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		b.Add(p)
	}

	bt, err := b.Build()
	if err != nil {
		return nil, &CompileError{Field: "beans." + name, Message: err.Error(), Pos: v.Pos()}
	}
	return bt, nil
}

// compileProperty accepts either the shorthand "type" / "[]type" or a struct
// with type, target and list fields.
func compileProperty(name string, v cue.Value) (Property, error) {
	p := Property{Name: name, Kind: KindValue}

	if s, err := v.String(); err == nil {
		if elem, ok := strings.CutPrefix(s, "[]"); ok {
			p.Kind = KindList
			s = elem
		}
		if s == "" {
			return p, &CompileError{Field: name, Message: "type must not be empty", Pos: v.Pos()}
		}
		p.Type = convert.ValueType(s)
		return p, nil
	}

	if v.IncompleteKind() != cue.StructKind {
		return p, &CompileError{
			Field:   name,
			Message: fmt.Sprintf("must be a type string or struct, got %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}

	typeVal := v.LookupPath(cue.ParsePath("type"))
	if !typeVal.Exists() {
		return p, &CompileError{Field: name + ".type", Message: "type is required", Pos: v.Pos()}
	}
	typ, err := typeVal.String()
	if err != nil {
		return p, formatCUEError(err)
	}
	p.Type = convert.ValueType(typ)

	if targetVal := v.LookupPath(cue.ParsePath("target")); targetVal.Exists() {
		if p.Target, err = targetVal.String(); err != nil {
			return p, formatCUEError(err)
		}
	}
	if listVal := v.LookupPath(cue.ParsePath("list")); listVal.Exists() {
		isList, err := listVal.Bool()
		if err != nil {
			return p, formatCUEError(err)
		}
		if isList {
			p.Kind = KindList
		}
	}
	return p, nil
}

// CompileError represents a schema compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	positions := errors.Positions(first)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
