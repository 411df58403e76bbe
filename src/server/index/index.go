// Package index maintains the workspace symbol index for smali files:
// the file-to-identifier and identifier-to-class mappings, their
// consistency under file-system and edit events, the bulk workspace
// loader, and the literal-text reference search built on top of them.
package index

import (
	"context"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/internal/errors"
	"smali-lsp/src/smali"
)

// DiagnosticsPublisher receives the current diagnostics for a file
// whenever they change. An empty slice clears previously published ones.
type DiagnosticsPublisher func(docURI uri.URI, diagnostics []protocol.Diagnostic)

// DocumentIndex owns two invariant-bound mappings: file location to
// class identifier, and identifier to the authoritative Class entity.
// For every (file, id) pair in the first mapping the entity stored under
// id is located at file, except while a file is flagged in conflict, in
// which case the file holds no mapping at all and the first-seen owner
// stays authoritative.
//
// All mutations go through the event methods below; readers that depend
// on a complete index (Lookup, Snapshot, Search) suspend until the bulk
// loader resolves the shared readiness signal.
type DocumentIndex struct {
	mu               sync.RWMutex
	fileToIdentifier map[uri.URI]string
	classRecords     map[string]*smali.Class
	contentHashes    map[uri.URI]uint64
	flagged          map[uri.URI]protocol.Diagnostic
	publish          DiagnosticsPublisher

	ready     chan struct{}
	readyOnce sync.Once
}

// NewDocumentIndex creates an empty, not yet ready index.
func NewDocumentIndex() *DocumentIndex {
	return &DocumentIndex{
		fileToIdentifier: make(map[uri.URI]string),
		classRecords:     make(map[string]*smali.Class),
		contentHashes:    make(map[uri.URI]uint64),
		flagged:          make(map[uri.URI]protocol.Diagnostic),
		ready:            make(chan struct{}),
	}
}

// SetDiagnosticsPublisher installs the sink that surfaces parse and
// conflict diagnostics. Must be set before events flow.
func (idx *DocumentIndex) SetDiagnosticsPublisher(publish DiagnosticsPublisher) {
	idx.publish = publish
}

// Open indexes a file's current text. It is idempotent: when the file is
// already the authoritative owner of its recorded identifier and its
// content is unchanged, the cached entity is returned without reparsing.
func (idx *DocumentIndex) Open(docURI uri.URI, text string) (*smali.Class, error) {
	hash := xxhash.Sum64String(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if cached := idx.authoritativeLocked(docURI); cached != nil && idx.contentHashes[docURI] == hash {
		return cached, nil
	}
	return idx.installLocked(docURI, text, hash)
}

// OnChanged reparses a file after its text changed. When the new parse
// yields a different identifier, the old identifier's entry is removed
// (only if this file still owns it) and the new one installed.
func (idx *DocumentIndex) OnChanged(docURI uri.URI, text string) error {
	hash := xxhash.Sum64String(text)

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if cached := idx.authoritativeLocked(docURI); cached != nil && idx.contentHashes[docURI] == hash {
		return nil
	}
	_, err := idx.installLocked(docURI, text, hash)
	return err
}

// OnRenamed relocates a file's entry to its new location, updating the
// owned entity's URI in place. The Class entity survives the rename; any
// diagnostic attached to the old location moves with it.
func (idx *DocumentIndex) OnRenamed(oldURI, newURI uri.URI) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if id, ok := idx.fileToIdentifier[oldURI]; ok {
		delete(idx.fileToIdentifier, oldURI)
		idx.fileToIdentifier[newURI] = id
		if class := idx.classRecords[id]; class != nil && class.URI == oldURI {
			class.URI = newURI
		}
	}
	if hash, ok := idx.contentHashes[oldURI]; ok {
		delete(idx.contentHashes, oldURI)
		idx.contentHashes[newURI] = hash
	}
	if diag, ok := idx.flagged[oldURI]; ok {
		delete(idx.flagged, oldURI)
		idx.flagged[newURI] = diag
		idx.publishLocked(oldURI, nil)
		idx.publishLocked(newURI, []protocol.Diagnostic{diag})
	}
}

// OnDeleted removes a file's entry and the Class entity it owns.
func (idx *DocumentIndex) OnDeleted(docURI uri.URI) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.evictLocked(docURI)
	delete(idx.contentHashes, docURI)
	idx.clearFlagLocked(docURI)
}

// Lookup returns the authoritative Class for an identifier, or nil. It
// suspends until the initial bulk load completes.
func (idx *DocumentIndex) Lookup(ctx context.Context, identifier string) (*smali.Class, error) {
	if err := idx.awaitReady(ctx); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return idx.classRecords[identifier], nil
}

// Snapshot returns every indexed class, ordered by identifier for
// deterministic scans. It suspends until the initial bulk load completes.
func (idx *DocumentIndex) Snapshot(ctx context.Context) ([]*smali.Class, error) {
	if err := idx.awaitReady(ctx); err != nil {
		return nil, err
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	classes := make([]*smali.Class, 0, len(idx.classRecords))
	for _, class := range idx.classRecords {
		classes = append(classes, class)
	}
	sort.Slice(classes, func(i, j int) bool {
		return classes[i].Identifier() < classes[j].Identifier()
	})
	return classes, nil
}

// Stats returns the number of indexed classes and flagged files.
func (idx *DocumentIndex) Stats() (classes, flagged int) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.classRecords), len(idx.flagged)
}

// Flagged returns a copy of the current per-file diagnostics.
func (idx *DocumentIndex) Flagged() map[uri.URI]protocol.Diagnostic {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[uri.URI]protocol.Diagnostic, len(idx.flagged))
	for docURI, diag := range idx.flagged {
		out[docURI] = diag
	}
	return out
}

// MarkReady resolves the shared readiness signal. Safe to call more than
// once; waiters released by the first call never block again.
func (idx *DocumentIndex) MarkReady() {
	idx.readyOnce.Do(func() { close(idx.ready) })
}

// Ready exposes the readiness signal for callers that select on it.
func (idx *DocumentIndex) Ready() <-chan struct{} {
	return idx.ready
}

func (idx *DocumentIndex) awaitReady(ctx context.Context) error {
	select {
	case <-idx.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// authoritativeLocked returns the Class owned by docURI, or nil when the
// file holds no mapping or lost its identifier to another file.
func (idx *DocumentIndex) authoritativeLocked(docURI uri.URI) *smali.Class {
	id, ok := idx.fileToIdentifier[docURI]
	if !ok {
		return nil
	}
	class := idx.classRecords[id]
	if class == nil || class.URI != docURI {
		return nil
	}
	return class
}

// installLocked parses text and updates both mappings. On parse failure
// the file's prior entity becomes stale and is removed; on an identifier
// conflict the existing owner is untouched and the file is flagged.
func (idx *DocumentIndex) installLocked(docURI uri.URI, text string, hash uint64) (*smali.Class, error) {
	class, err := smali.ParseDocument(docURI, text)
	if err != nil {
		idx.evictLocked(docURI)
		delete(idx.contentHashes, docURI)
		idx.flagLocked(docURI, err)
		return nil, err
	}

	id := class.Identifier()
	if owner := idx.classRecords[id]; owner != nil && owner.URI != docURI {
		idx.evictLocked(docURI)
		delete(idx.contentHashes, docURI)
		conflict := errors.NewConflictError(docURI, id, owner.URI)
		common.IndexLogger.Warn("%s: %v", docURI, conflict)
		idx.flagLocked(docURI, conflict)
		return nil, conflict
	}

	idx.evictLocked(docURI)
	idx.fileToIdentifier[docURI] = id
	idx.classRecords[id] = class
	idx.contentHashes[docURI] = hash
	idx.clearFlagLocked(docURI)
	return class, nil
}

// evictLocked drops the file's mapping and, when the file still owns its
// recorded identifier, the identifier's entity as well.
func (idx *DocumentIndex) evictLocked(docURI uri.URI) {
	oldID, ok := idx.fileToIdentifier[docURI]
	if !ok {
		return
	}
	if owned := idx.classRecords[oldID]; owned != nil && owned.URI == docURI {
		delete(idx.classRecords, oldID)
	}
	delete(idx.fileToIdentifier, docURI)
}

func (idx *DocumentIndex) flagLocked(docURI uri.URI, err error) {
	diag := errors.Diagnostic(err)
	if diag == nil {
		return
	}
	idx.flagged[docURI] = *diag
	idx.publishLocked(docURI, []protocol.Diagnostic{*diag})
}

func (idx *DocumentIndex) clearFlagLocked(docURI uri.URI) {
	if _, ok := idx.flagged[docURI]; !ok {
		return
	}
	delete(idx.flagged, docURI)
	idx.publishLocked(docURI, nil)
}

func (idx *DocumentIndex) publishLocked(docURI uri.URI, diagnostics []protocol.Diagnostic) {
	if idx.publish != nil {
		idx.publish(docURI, diagnostics)
	}
}
