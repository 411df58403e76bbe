package smali

import (
	"fmt"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/errors"
)

// ParseDocument parses one smali source file into its Class entity. A
// file declares exactly one class; fields, methods and constructors are
// collected in declaration order with exact token ranges. Malformed
// directives produce a *errors.ParseError pinned to the offending line.
func ParseDocument(docURI uri.URI, text string) (*Class, error) {
	class := &Class{URI: docURI, Text: text}

	for i, raw := range strings.Split(text, "\n") {
		line := stripComment(strings.TrimRight(raw, "\r"))
		trimmed := strings.TrimSpace(line)

		switch {
		case strings.HasPrefix(trimmed, ".class"):
			if class.Name.Text != "" {
				return nil, parseErr(docURI, i, line, "duplicate .class directive")
			}
			name, err := parseClassDirective(docURI, i, line)
			if err != nil {
				return nil, err
			}
			class.Name = *name

		case strings.HasPrefix(trimmed, ".field"):
			field, err := parseFieldDirective(docURI, i, line)
			if err != nil {
				return nil, err
			}
			class.Fields = append(class.Fields, field)

		case strings.HasPrefix(trimmed, ".method"):
			method, err := parseMethodDirective(docURI, i, line)
			if err != nil {
				return nil, err
			}
			if method.Constructor {
				class.Constructors = append(class.Constructors, method)
			} else {
				class.Methods = append(class.Methods, method)
			}
		}
	}

	if class.Name.Text == "" {
		return nil, errors.NewParseError(docURI, protocol.Range{}, "missing .class directive")
	}
	return class, nil
}

// parseClassDirective extracts the class descriptor, the last token of
// the .class line.
func parseClassDirective(docURI uri.URI, lineNo int, line string) (*Name, error) {
	tokens := strings.Fields(line)
	descriptor := tokens[len(tokens)-1]
	if !IsClassDescriptor(descriptor) {
		return nil, parseErr(docURI, lineNo, line,
			fmt.Sprintf("invalid class descriptor %q", descriptor))
	}
	col := strings.LastIndex(line, descriptor)
	return &Name{
		Text:  descriptor,
		Range: tokenRange(lineNo, col, len(descriptor)),
	}, nil
}

// parseFieldDirective extracts name and type from a .field line,
// ignoring any trailing initializer.
func parseFieldDirective(docURI uri.URI, lineNo int, line string) (*Field, error) {
	decl := line
	if eq := strings.Index(decl, "="); eq >= 0 {
		decl = decl[:eq]
	}
	tokens := strings.Fields(decl)
	spec := tokens[len(tokens)-1]
	colon := strings.IndexByte(spec, ':')
	if colon <= 0 || colon == len(spec)-1 {
		return nil, parseErr(docURI, lineNo, line,
			fmt.Sprintf("invalid field declaration %q", spec))
	}
	col := strings.LastIndex(decl, spec)
	return &Field{
		Name: Name{
			Text:  spec[:colon],
			Range: tokenRange(lineNo, col, colon),
		},
		Type: spec[colon+1:],
	}, nil
}

// parseMethodDirective extracts name, parameter signature and return
// type from a .method line. Constructors are recognized by the
// constructor flag or the synthetic <init>/<clinit> names.
func parseMethodDirective(docURI uri.URI, lineNo int, line string) (*Method, error) {
	tokens := strings.Fields(line)
	proto := tokens[len(tokens)-1]
	open := strings.IndexByte(proto, '(')
	end := strings.LastIndexByte(proto, ')')
	if open <= 0 || end < open || end == len(proto)-1 {
		return nil, parseErr(docURI, lineNo, line,
			fmt.Sprintf("invalid method prototype %q", proto))
	}
	name := proto[:open]
	constructor := name == "<init>" || name == "<clinit>"
	for _, flag := range tokens[1 : len(tokens)-1] {
		if flag == "constructor" {
			constructor = true
		}
	}
	col := strings.LastIndex(line, proto)
	return &Method{
		Name: Name{
			Text:  name,
			Range: tokenRange(lineNo, col, len(name)),
		},
		Parameters:  proto[open+1 : end],
		ReturnType:  proto[end+1:],
		Constructor: constructor,
	}, nil
}

// stripComment removes a trailing # comment, honoring string literals so
// a # inside a quoted initializer survives.
func stripComment(line string) string {
	inString := false
	for i := 0; i < len(line); i++ {
		switch line[i] {
		case '\\':
			if inString {
				i++
			}
		case '"':
			inString = !inString
		case '#':
			if !inString {
				return line[:i]
			}
		}
	}
	return line
}

func tokenRange(line, col, length int) protocol.Range {
	return protocol.Range{
		Start: protocol.Position{Line: uint32(line), Character: uint32(col)},
		End:   protocol.Position{Line: uint32(line), Character: uint32(col + length)},
	}
}

func parseErr(docURI uri.URI, lineNo int, line, message string) error {
	rng := protocol.Range{
		Start: protocol.Position{Line: uint32(lineNo)},
		End:   protocol.Position{Line: uint32(lineNo), Character: uint32(len(line))},
	}
	return errors.NewParseError(docURI, rng, message)
}
