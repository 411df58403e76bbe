package smali

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.lsp.dev/protocol"
)

func TestOffsetPositionRoundTrip(t *testing.T) {
	text := "line zero\nline one\n\nline three"

	tests := []struct {
		offset int
		pos    protocol.Position
	}{
		{0, pos(0, 0)},
		{5, pos(0, 5)},
		{10, pos(1, 0)},
		{18, pos(1, 8)},
		{19, pos(2, 0)},
		{20, pos(3, 0)},
		{30, pos(3, 10)},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.pos, OffsetToPosition(text, tt.offset), "offset %d", tt.offset)
		assert.Equal(t, tt.offset, PositionToOffset(text, tt.pos), "pos %v", tt.pos)
	}
}

func TestPositionToOffsetClamps(t *testing.T) {
	text := "ab\ncd"
	assert.Equal(t, 2, PositionToOffset(text, pos(0, 99)))
	assert.Equal(t, 5, PositionToOffset(text, pos(9, 0)))
	assert.Equal(t, pos(1, 2), OffsetToPosition(text, 99))
}

func TestLineAt(t *testing.T) {
	text := "first\nsecond\nthird"
	line, start := lineAt(text, pos(1, 3))
	assert.Equal(t, "second", line)
	assert.Equal(t, 6, start)
}
