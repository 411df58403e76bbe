package smali

import (
	"path"
	"strings"
)

// FileExtension is the on-disk extension for smali class files.
const FileExtension = ".smali"

// IsClassDescriptor reports whether s has the canonical class descriptor
// shape L<path>; with a non-empty path that neither starts nor ends with
// a slash.
func IsClassDescriptor(s string) bool {
	if len(s) < 3 || s[0] != 'L' || s[len(s)-1] != ';' {
		return false
	}
	body := s[1 : len(s)-1]
	for i := 0; i < len(body); i++ {
		if !isDescriptorChar(body[i]) {
			return false
		}
	}
	return body[0] != '/' && body[len(body)-1] != '/'
}

// isDescriptorChar reports whether c may appear between the leading L and
// trailing ; of a class descriptor.
func isDescriptorChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '/' || c == '_' || c == '$' || c == '-':
		return true
	}
	return false
}

// isMemberNameChar reports whether c may appear in a field or method
// name. The angle brackets admit the synthetic <init> and <clinit>
// constructor names.
func isMemberNameChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '_' || c == '$' || c == '<' || c == '>' || c == '-':
		return true
	}
	return false
}

// IsMemberName reports whether s is usable as a field or method name.
func IsMemberName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isMemberNameChar(s[i]) {
			return false
		}
	}
	return true
}

// DescriptorToPath derives the relative file path a class descriptor maps
// to: the contents between the leading L and trailing ; plus the smali
// extension. Returns false when the descriptor is malformed.
func DescriptorToPath(descriptor string) (string, bool) {
	if !IsClassDescriptor(descriptor) {
		return "", false
	}
	return descriptor[1:len(descriptor)-1] + FileExtension, true
}

// PathToDescriptor is the inverse of DescriptorToPath: a slash-separated
// relative path with the smali extension becomes L<path>;.
func PathToDescriptor(relPath string) (string, bool) {
	relPath = path.Clean(strings.TrimPrefix(relPath, "/"))
	body, ok := strings.CutSuffix(relPath, FileExtension)
	if !ok || body == "" {
		return "", false
	}
	descriptor := "L" + body + ";"
	if !IsClassDescriptor(descriptor) {
		return "", false
	}
	return descriptor, true
}

// DescriptorToLiteral renders a class descriptor the way annotation
// values quote it: the trailing ; is dropped before quoting, so
// Lcom/example/Foo; becomes "Lcom/example/Foo". This mirrors the observed
// convention exactly and must not be generalized to other escaping.
func DescriptorToLiteral(descriptor string) string {
	return `"` + strings.TrimSuffix(descriptor, ";") + `"`
}

// QualifiedReference builds the owner-qualified member reference,
// <owner>-><member identifier>, as it appears at use sites.
func QualifiedReference(owner, member string) string {
	return owner + "->" + member
}
