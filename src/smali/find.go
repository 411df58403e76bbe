package smali

import (
	"strings"

	"go.lsp.dev/protocol"
)

// Position probes. Each takes the raw document text and a cursor
// position and returns the structural element whose name occupies the
// cursor, or nil. The rename engine tries them in a fixed order, so each
// probe claims only its own token: FindType the descriptor itself,
// FindFieldReference/FindMethodReference only the member name of a
// qualified reference.

// FindType returns the class descriptor occurrence under the cursor, in
// any of the five lexical contexts a descriptor appears in.
func FindType(text string, pos protocol.Position) *Name {
	line, _ := lineAt(text, pos)
	col := int(pos.Character)

	for i := 0; i < len(line); i++ {
		if line[i] != 'L' {
			continue
		}
		if i > 0 && isDescriptorChar(line[i-1]) {
			continue
		}
		j := i + 1
		for j < len(line) && isDescriptorChar(line[j]) {
			j++
		}
		if j == i+1 || j >= len(line) || line[j] != ';' {
			continue
		}
		if col >= i && col <= j+1 {
			return &Name{
				Text:  line[i : j+1],
				Range: tokenRange(int(pos.Line), i, j+1-i),
			}
		}
		i = j
	}
	return nil
}

// FindFieldDefinition returns the field declared on the cursor's line
// when the cursor sits on its name.
func FindFieldDefinition(text string, pos protocol.Position) *Field {
	line, _ := lineAt(text, pos)
	line = stripComment(line)
	if !strings.HasPrefix(strings.TrimSpace(line), ".field") {
		return nil
	}
	field, err := parseFieldDirective("", int(pos.Line), line)
	if err != nil || !containsPos(field.Name.Range, pos) {
		return nil
	}
	return field
}

// FindMethodDefinition returns the method (or constructor) declared on
// the cursor's line when the cursor sits on its name.
func FindMethodDefinition(text string, pos protocol.Position) *Method {
	line, _ := lineAt(text, pos)
	line = stripComment(line)
	if !strings.HasPrefix(strings.TrimSpace(line), ".method") {
		return nil
	}
	method, err := parseMethodDirective("", int(pos.Line), line)
	if err != nil || !containsPos(method.Name.Range, pos) {
		return nil
	}
	return method
}

// FindFieldReference returns the owner descriptor and field of a
// qualified reference owner->name:type when the cursor sits on the name.
func FindFieldReference(text string, pos protocol.Position) (string, *Field) {
	line, _ := lineAt(text, pos)
	col := int(pos.Character)

	for _, ref := range scanQualifiedRefs(line) {
		if ref.field == nil || col < ref.nameStart || col > ref.nameEnd {
			continue
		}
		ref.field.Name.Range = tokenRange(int(pos.Line), ref.nameStart, ref.nameEnd-ref.nameStart)
		return ref.owner, ref.field
	}
	return "", nil
}

// FindMethodReference returns the owner descriptor and method of a
// qualified reference owner->name(params)ret when the cursor sits on the
// name.
func FindMethodReference(text string, pos protocol.Position) (string, *Method) {
	line, _ := lineAt(text, pos)
	col := int(pos.Character)

	for _, ref := range scanQualifiedRefs(line) {
		if ref.method == nil || col < ref.nameStart || col > ref.nameEnd {
			continue
		}
		ref.method.Name.Range = tokenRange(int(pos.Line), ref.nameStart, ref.nameEnd-ref.nameStart)
		return ref.owner, ref.method
	}
	return "", nil
}

// qualifiedRef is one owner->member occurrence found on a line. Exactly
// one of field/method is set.
type qualifiedRef struct {
	owner     string
	nameStart int
	nameEnd   int
	field     *Field
	method    *Method
}

// scanQualifiedRefs finds every owner->member reference on a line.
func scanQualifiedRefs(line string) []qualifiedRef {
	var refs []qualifiedRef

	for idx := 0; ; {
		arrow := strings.Index(line[idx:], "->")
		if arrow < 0 {
			return refs
		}
		arrow += idx
		idx = arrow + 2

		owner, ok := ownerBefore(line, arrow)
		if !ok {
			continue
		}

		nameStart := arrow + 2
		nameEnd := nameStart
		for nameEnd < len(line) && isMemberNameChar(line[nameEnd]) {
			nameEnd++
		}
		if nameEnd == nameStart || nameEnd >= len(line) {
			continue
		}
		name := line[nameStart:nameEnd]

		switch line[nameEnd] {
		case ':':
			typ, ok := scanTypeDescriptor(line, nameEnd+1, false)
			if !ok {
				continue
			}
			refs = append(refs, qualifiedRef{
				owner:     owner,
				nameStart: nameStart,
				nameEnd:   nameEnd,
				field:     &Field{Name: Name{Text: name}, Type: typ},
			})
		case '(':
			end := strings.IndexByte(line[nameEnd:], ')')
			if end < 0 {
				continue
			}
			end += nameEnd
			ret, ok := scanTypeDescriptor(line, end+1, true)
			if !ok {
				continue
			}
			refs = append(refs, qualifiedRef{
				owner:     owner,
				nameStart: nameStart,
				nameEnd:   nameEnd,
				method: &Method{
					Name:        Name{Text: name},
					Parameters:  line[nameEnd+1 : end],
					ReturnType:  ret,
					Constructor: name == "<init>" || name == "<clinit>",
				},
			})
		}
	}
}

// ownerBefore extracts the class descriptor ending immediately before
// the -> at the given offset.
func ownerBefore(line string, arrow int) (string, bool) {
	if arrow == 0 || line[arrow-1] != ';' {
		return "", false
	}
	s := arrow - 2
	for s >= 0 && isDescriptorChar(line[s]) {
		s--
	}
	start := s + 1
	if start >= arrow-2 || line[start] != 'L' {
		return "", false
	}
	return line[start:arrow], true
}

// scanTypeDescriptor reads a single type descriptor starting at offset i:
// any array nesting, then a primitive or a class descriptor. Void is
// accepted only where allowVoid is set (method return types).
func scanTypeDescriptor(line string, i int, allowVoid bool) (string, bool) {
	j := i
	for j < len(line) && line[j] == '[' {
		j++
	}
	if j >= len(line) {
		return "", false
	}
	if line[j] == 'L' {
		j++
		for j < len(line) && isDescriptorChar(line[j]) {
			j++
		}
		if j >= len(line) || line[j] != ';' {
			return "", false
		}
		return line[i : j+1], true
	}
	primitives := "ZBSCIJFD"
	if allowVoid {
		primitives += "V"
	}
	if strings.IndexByte(primitives, line[j]) >= 0 {
		return line[i : j+1], true
	}
	return "", false
}

// containsPos reports whether a single-line range contains the cursor,
// inclusive of the end position.
func containsPos(rng protocol.Range, pos protocol.Position) bool {
	return rng.Start.Line == pos.Line &&
		pos.Character >= rng.Start.Character &&
		pos.Character <= rng.End.Character
}
