package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/uri"
	"go.uber.org/goleak"

	"smali-lsp/src/server/index"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func classText(descriptor string) string {
	return ".class public " + descriptor + "\n.super Ljava/lang/Object;\n"
}

func startWatcher(t *testing.T, idx *index.DocumentIndex, root string) *Watcher {
	t.Helper()
	w, err := NewWatcher(idx, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), root))
	t.Cleanup(func() { require.NoError(t, w.Stop()) })
	return w
}

func lookupEventually(t *testing.T, idx *index.DocumentIndex, id string) {
	t.Helper()
	require.Eventually(t, func() bool {
		class, err := idx.Lookup(context.Background(), id)
		return err == nil && class != nil
	}, 3*time.Second, 10*time.Millisecond, "class %s never appeared in the index", id)
}

func TestWatcherIndexesCreatedFiles(t *testing.T) {
	root := t.TempDir()
	idx := index.NewDocumentIndex()
	idx.MarkReady()
	startWatcher(t, idx, root)

	path := filepath.Join(root, "A.smali")
	require.NoError(t, os.WriteFile(path, []byte(classText("Lpkg/A;")), 0o644))

	lookupEventually(t, idx, "Lpkg/A;")
}

func TestWatcherReindexesWrites(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "A.smali")
	require.NoError(t, os.WriteFile(path, []byte(classText("Lpkg/A;")), 0o644))

	idx := index.NewDocumentIndex()
	idx.MarkReady()
	_, err := idx.Open(uri.File(path), classText("Lpkg/A;"))
	require.NoError(t, err)
	startWatcher(t, idx, root)

	require.NoError(t, os.WriteFile(path, []byte(classText("Lpkg/Renamed;")), 0o644))

	lookupEventually(t, idx, "Lpkg/Renamed;")
	class, err := idx.Lookup(context.Background(), "Lpkg/A;")
	require.NoError(t, err)
	assert.Nil(t, class, "stale identifier must be evicted after the reparse")
}

func TestWatcherDropsDeletedFiles(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "A.smali")
	require.NoError(t, os.WriteFile(path, []byte(classText("Lpkg/A;")), 0o644))

	idx := index.NewDocumentIndex()
	idx.MarkReady()
	_, err := idx.Open(uri.File(path), classText("Lpkg/A;"))
	require.NoError(t, err)
	startWatcher(t, idx, root)

	require.NoError(t, os.Remove(path))

	require.Eventually(t, func() bool {
		class, err := idx.Lookup(context.Background(), "Lpkg/A;")
		return err == nil && class == nil
	}, 3*time.Second, 10*time.Millisecond)
}

func TestWatcherPicksUpNewDirectories(t *testing.T) {
	root := t.TempDir()
	idx := index.NewDocumentIndex()
	idx.MarkReady()
	startWatcher(t, idx, root)

	dir := filepath.Join(root, "com", "app")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	// Give the watcher a beat to register the new directories.
	time.Sleep(200 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "B.smali"), []byte(classText("Lcom/app/B;")), 0o644))

	lookupEventually(t, idx, "Lcom/app/B;")
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	root := t.TempDir()
	idx := index.NewDocumentIndex()
	idx.MarkReady()
	startWatcher(t, idx, root)

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	time.Sleep(200 * time.Millisecond)

	classes, flagged := idx.Stats()
	assert.Zero(t, classes)
	assert.Zero(t, flagged)
}

func TestWatcherStartTwiceFails(t *testing.T) {
	root := t.TempDir()
	idx := index.NewDocumentIndex()
	w := startWatcher(t, idx, root)

	assert.Error(t, w.Start(context.Background(), root))
}

func TestWatcherStopIsIdempotent(t *testing.T) {
	idx := index.NewDocumentIndex()
	w, err := NewWatcher(idx, 0)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background(), t.TempDir()))

	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())
}
