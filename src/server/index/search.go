package index

import (
	"context"
	"strings"

	"go.lsp.dev/protocol"

	"smali-lsp/src/smali"
)

// Search scans every indexed class's raw text for each symbol string and
// returns one location list per symbol, in input order. Matching is
// exact literal substring search, not token-aware: callers supply symbol
// strings specific enough to avoid substring collisions (descriptors and
// qualified references carry their own delimiters). Matches never
// overlap; scanning resumes just past the previous match.
//
// Search suspends until the initial bulk load completes.
func (idx *DocumentIndex) Search(ctx context.Context, symbols []string) ([][]protocol.Location, error) {
	classes, err := idx.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]protocol.Location, len(symbols))
	for _, class := range classes {
		for i, symbol := range symbols {
			if symbol == "" {
				continue
			}
			for from := 0; ; {
				hit := strings.Index(class.Text[from:], symbol)
				if hit < 0 {
					break
				}
				hit += from
				results[i] = append(results[i], protocol.Location{
					URI:   class.URI,
					Range: smali.RangeFromOffsets(class.Text, hit, hit+len(symbol)),
				})
				from = hit + len(symbol)
			}
		}
	}
	return results, nil
}
