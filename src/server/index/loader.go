package index

import (
	"context"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"go.lsp.dev/uri"
	"golang.org/x/sync/errgroup"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/internal/errors"
)

const (
	// DefaultPattern matches every smali file in the workspace.
	DefaultPattern = "**/*.smali"
	// DefaultMaxParallel bounds concurrent in-flight parses so a large
	// workspace cannot exhaust file handles.
	DefaultMaxParallel = 50
)

// Loader performs the initial bulk scan of a workspace, feeding every
// discovered file through DocumentIndex.Open and resolving the shared
// readiness signal exactly once when done.
type Loader struct {
	index       *DocumentIndex
	pattern     string
	maxParallel int

	// readFile is swappable for tests that observe concurrency.
	readFile func(string) ([]byte, error)
}

// NewLoader creates a loader over the given index. Zero values select
// the default glob pattern and parallelism cap.
func NewLoader(idx *DocumentIndex, pattern string, maxParallel int) *Loader {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}
	return &Loader{
		index:       idx,
		pattern:     pattern,
		maxParallel: maxParallel,
		readFile:    os.ReadFile,
	}
}

// Load discovers and indexes every matching file under root. The
// readiness signal resolves even when discovery fails, so queries
// waiting on the index never hang; the failure is reported instead.
// Per-file read and parse errors are isolated and never abort the scan.
func (l *Loader) Load(ctx context.Context, root string) error {
	defer l.index.MarkReady()

	matches, err := doublestar.Glob(os.DirFS(root), l.pattern)
	if err != nil {
		loadErr := errors.NewLoadError(root, err)
		common.IndexLogger.Error("workspace discovery failed: %v", loadErr)
		return loadErr
	}
	common.IndexLogger.Info("indexing %d files under %s", len(matches), root)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.maxParallel)

	for _, rel := range matches {
		path := filepath.Join(root, filepath.FromSlash(rel))
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			data, err := l.readFile(path)
			if err != nil {
				common.IndexLogger.Warn("%v", errors.NewLoadError(path, err))
				return nil
			}
			if _, err := l.index.Open(uri.File(path), string(data)); err != nil {
				// Already surfaced as a diagnostic on the file.
				common.IndexLogger.Debug("indexing %s: %v", path, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return errors.NewLoadError(root, err)
	}

	classes, flagged := l.index.Stats()
	common.IndexLogger.Info("workspace index ready: %d classes, %d flagged files", classes, flagged)
	return nil
}
