package smali

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsClassDescriptor(t *testing.T) {
	tests := []struct {
		descriptor string
		valid      bool
	}{
		{"Lcom/example/Foo;", true},
		{"La;", true},
		{"Lcom/example/Foo$Inner;", true},
		{"Lcom/example/Foo", false},
		{"com/example/Foo;", false},
		{"L;", false},
		{"L/com;", false},
		{"Lcom/;", false},
		{"Lcom example;", false},
		{"", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.valid, IsClassDescriptor(tt.descriptor), tt.descriptor)
	}
}

func TestDescriptorToPath(t *testing.T) {
	path, ok := DescriptorToPath("Lcom/example/Foo;")
	assert.True(t, ok)
	assert.Equal(t, "com/example/Foo.smali", path)

	_, ok = DescriptorToPath("garbage")
	assert.False(t, ok)
}

func TestPathToDescriptor(t *testing.T) {
	descriptor, ok := PathToDescriptor("com/example/Foo.smali")
	assert.True(t, ok)
	assert.Equal(t, "Lcom/example/Foo;", descriptor)

	_, ok = PathToDescriptor("com/example/Foo.java")
	assert.False(t, ok)
}

func TestDescriptorToLiteral(t *testing.T) {
	// The trailing ; is dropped before quoting; nothing else changes.
	assert.Equal(t, `"Lcom/example/Foo"`, DescriptorToLiteral("Lcom/example/Foo;"))
	assert.Equal(t, `"Lcom/example/Foo$Inner"`, DescriptorToLiteral("Lcom/example/Foo$Inner;"))
}

func TestQualifiedReference(t *testing.T) {
	assert.Equal(t, "Lcom/a/B;->count:I", QualifiedReference("Lcom/a/B;", "count:I"))
	assert.Equal(t, "Lcom/a/B;->get()I", QualifiedReference("Lcom/a/B;", "get()I"))
}
