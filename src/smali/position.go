package smali

import (
	"strings"

	"go.lsp.dev/protocol"
)

// Smali sources are ASCII, so byte offsets and LSP character offsets
// coincide and no UTF-16 translation is needed.

// OffsetToPosition converts a byte offset in text to a line/character
// position. Offsets past the end of text map to the final position.
func OffsetToPosition(text string, offset int) protocol.Position {
	if offset > len(text) {
		offset = len(text)
	}
	line := strings.Count(text[:offset], "\n")
	lineStart := strings.LastIndexByte(text[:offset], '\n') + 1
	return protocol.Position{
		Line:      uint32(line),
		Character: uint32(offset - lineStart),
	}
}

// PositionToOffset converts a line/character position to a byte offset in
// text, clamping past-the-end positions to the end of the line or file.
func PositionToOffset(text string, pos protocol.Position) int {
	offset := 0
	for line := uint32(0); line < pos.Line; line++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
	}
	lineEnd := strings.IndexByte(text[offset:], '\n')
	if lineEnd < 0 {
		lineEnd = len(text) - offset
	}
	col := int(pos.Character)
	if col > lineEnd {
		col = lineEnd
	}
	return offset + col
}

// RangeFromOffsets builds a range from a start and end byte offset.
func RangeFromOffsets(text string, start, end int) protocol.Range {
	return protocol.Range{
		Start: OffsetToPosition(text, start),
		End:   OffsetToPosition(text, end),
	}
}

// lineAt returns the full line containing pos along with the byte offset
// of its first character.
func lineAt(text string, pos protocol.Position) (string, int) {
	start := PositionToOffset(text, protocol.Position{Line: pos.Line})
	end := strings.IndexByte(text[start:], '\n')
	if end < 0 {
		end = len(text) - start
	}
	return text[start : start+end], start
}
