// Package smali provides the declaration model and grammar support for
// smali (Android disassembly) source files: one class declaration per
// file, with field and method members addressed by name+signature
// identifiers.
package smali

import (
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// Name is a single textual occurrence of a symbol: its literal text and
// the exact source range it occupies. The text is used to read the
// symbol, the range to rewrite that one occurrence.
type Name struct {
	Text  string
	Range protocol.Range
}

// Field is a field declaration or reference. Two fields are equal iff
// their identifiers (name:type) match.
type Field struct {
	Name Name
	Type string
}

// Identifier returns the member identifier of the field, name:type.
func (f *Field) Identifier() string {
	return f.IdentifierWithName(f.Name.Text)
}

// IdentifierWithName computes the member identifier the field would have
// under a different name, keeping its type.
func (f *Field) IdentifierWithName(name string) string {
	return name + ":" + f.Type
}

// Method is a method declaration or reference. Two methods are equal iff
// their identifiers (name(parameters)return) match; overloads differ in
// the parameter signature.
type Method struct {
	Name        Name
	Parameters  string
	ReturnType  string
	Constructor bool
}

// Identifier returns the member identifier of the method,
// name(parameters)return.
func (m *Method) Identifier() string {
	return m.IdentifierWithName(m.Name.Text)
}

// IdentifierWithName computes the member identifier the method would have
// under a different name, keeping its signature.
func (m *Method) IdentifierWithName(name string) string {
	return name + "(" + m.Parameters + ")" + m.ReturnType
}

// Class is the authoritative entity for one parsed class declaration. It
// owns its members; the entity lives as long as the owning file's current
// parse.
type Class struct {
	URI          uri.URI
	Text         string
	Name         Name
	Fields       []*Field
	Methods      []*Method
	Constructors []*Method
}

// Identifier returns the class descriptor, e.g. Lcom/example/Foo;.
func (c *Class) Identifier() string {
	return c.Name.Text
}

// FindFields returns every field declaration whose member identifier
// matches the given one.
func (c *Class) FindFields(identifier string) []*Field {
	var out []*Field
	for _, f := range c.Fields {
		if f.Identifier() == identifier {
			out = append(out, f)
		}
	}
	return out
}

// FindMethods returns every method or constructor declaration whose
// member identifier matches the given one.
func (c *Class) FindMethods(identifier string) []*Method {
	var out []*Method
	for _, m := range c.Methods {
		if m.Identifier() == identifier {
			out = append(out, m)
		}
	}
	for _, m := range c.Constructors {
		if m.Identifier() == identifier {
			out = append(out, m)
		}
	}
	return out
}
