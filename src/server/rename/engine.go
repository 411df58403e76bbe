// Package rename implements the two-phase rename refactoring over the
// workspace index: classify the cursor position, offer the prepare
// range, and compute the cross-file edit batch.
package rename

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/internal/common"
	"smali-lsp/src/server/index"
	"smali-lsp/src/smali"
)

// Kind tags the lexical context of a classified cursor position.
type Kind int

const (
	KindNone Kind = iota
	KindType
	KindFieldDecl
	KindMethodDecl
	KindFieldRef
	KindMethodRef
)

// Target is the classification of one cursor position: which of the
// five renameable contexts it denotes, the occurrence under the cursor,
// and the structural element it resolves to.
type Target struct {
	Kind   Kind
	URI    uri.URI
	Name   smali.Name
	Owner  string
	Field  *smali.Field
	Method *smali.Method
}

// EditBatch is the full result of a rename: per-file text edits plus, for
// class renames, the file rename. The host applies it atomically; text
// edits and the file rename are independent of each other.
type EditBatch struct {
	Changes map[protocol.DocumentURI][]protocol.TextEdit
	Renames []protocol.RenameFile
}

// NewEditBatch creates an empty batch.
func NewEditBatch() *EditBatch {
	return &EditBatch{Changes: make(map[protocol.DocumentURI][]protocol.TextEdit)}
}

func (b *EditBatch) add(docURI uri.URI, rng protocol.Range, newText string) {
	key := protocol.DocumentURI(docURI)
	b.Changes[key] = append(b.Changes[key], protocol.TextEdit{Range: rng, NewText: newText})
}

// Empty reports whether the batch carries no edits at all.
func (b *EditBatch) Empty() bool {
	return len(b.Changes) == 0 && len(b.Renames) == 0
}

// Engine computes rename edit batches against the document index.
type Engine struct {
	index *index.DocumentIndex
}

// NewEngine creates a rename engine over the given index.
func NewEngine(idx *index.DocumentIndex) *Engine {
	return &Engine{index: idx}
}

// Classify determines what symbol, if any, the cursor denotes. The five
// detectors run in a fixed order and exactly one classification applies;
// a nil result means the position offers no rename.
func (e *Engine) Classify(docURI uri.URI, text string, pos protocol.Position) *Target {
	if name := smali.FindType(text, pos); name != nil {
		return &Target{Kind: KindType, URI: docURI, Name: *name}
	}

	if field := smali.FindFieldDefinition(text, pos); field != nil {
		if class, err := smali.ParseDocument(docURI, text); err == nil {
			return &Target{
				Kind:  KindFieldDecl,
				URI:   docURI,
				Name:  field.Name,
				Owner: class.Identifier(),
				Field: field,
			}
		}
	}

	if method := smali.FindMethodDefinition(text, pos); method != nil {
		if class, err := smali.ParseDocument(docURI, text); err == nil {
			return &Target{
				Kind:   KindMethodDecl,
				URI:    docURI,
				Name:   method.Name,
				Owner:  class.Identifier(),
				Method: method,
			}
		}
	}

	if owner, field := smali.FindFieldReference(text, pos); field != nil {
		return &Target{
			Kind:  KindFieldRef,
			URI:   docURI,
			Name:  field.Name,
			Owner: owner,
			Field: field,
		}
	}

	if owner, method := smali.FindMethodReference(text, pos); method != nil {
		return &Target{
			Kind:   KindMethodRef,
			URI:    docURI,
			Name:   method.Name,
			Owner:  owner,
			Method: method,
		}
	}

	return nil
}

// Prepare returns the exact range of the symbol occurrence under the
// cursor and its current text, seeding the caller's inline rename UI. It
// has no side effects.
func (e *Engine) Prepare(target *Target) (protocol.Range, string) {
	return target.Name.Range, target.Name.Text
}

// Apply computes the complete cross-file edit batch renaming the
// classified symbol to newName. A nil target yields an empty batch, not
// an error.
func (e *Engine) Apply(ctx context.Context, target *Target, newName string) (*EditBatch, error) {
	batch := NewEditBatch()
	if target == nil {
		return batch, nil
	}

	switch target.Kind {
	case KindType:
		return batch, e.applyType(ctx, batch, target, newName)
	case KindFieldDecl:
		return batch, e.applyFieldDecl(ctx, batch, target, newName)
	case KindMethodDecl:
		return batch, e.applyMethodDecl(ctx, batch, target, newName)
	case KindFieldRef:
		return batch, e.applyFieldRef(ctx, batch, target, newName)
	case KindMethodRef:
		return batch, e.applyMethodRef(ctx, batch, target, newName)
	default:
		return batch, nil
	}
}

// applyType rewrites every bare descriptor occurrence workspace-wide,
// every annotation-string occurrence in its quoted form, and renames the
// class file derived from the identifier.
func (e *Engine) applyType(ctx context.Context, batch *EditBatch, target *Target, newName string) error {
	if !smali.IsClassDescriptor(newName) {
		return fmt.Errorf("invalid class descriptor %q", newName)
	}
	old := target.Name.Text

	results, err := e.index.Search(ctx, []string{old, smali.DescriptorToLiteral(old)})
	if err != nil {
		return err
	}
	for _, loc := range results[0] {
		batch.add(loc.URI, loc.Range, newName)
	}
	newLiteral := smali.DescriptorToLiteral(newName)
	for _, loc := range results[1] {
		batch.add(loc.URI, loc.Range, newLiteral)
	}

	owner, err := e.index.Lookup(ctx, old)
	if err != nil {
		return err
	}
	if owner == nil {
		common.ServerLogger.Debug("class %s not indexed; skipping file rename", old)
		return nil
	}
	newPath := deriveRenamedPath(owner.URI.Filename(), old, newName)
	batch.Renames = append(batch.Renames, protocol.RenameFile{
		Kind:   "rename",
		OldURI: protocol.DocumentURI(owner.URI),
		NewURI: protocol.DocumentURI(uri.File(newPath)),
	})
	return nil
}

// applyFieldDecl rewrites the declaration name and every qualified
// reference to the field.
func (e *Engine) applyFieldDecl(ctx context.Context, batch *EditBatch, target *Target, newName string) error {
	if !smali.IsMemberName(newName) {
		return fmt.Errorf("invalid field name %q", newName)
	}
	batch.add(target.URI, target.Field.Name.Range, newName)

	oldRef := smali.QualifiedReference(target.Owner, target.Field.Identifier())
	newRef := smali.QualifiedReference(target.Owner, target.Field.IdentifierWithName(newName))
	return e.rewriteReferences(ctx, batch, oldRef, newRef)
}

// applyMethodDecl rewrites the declaration name and every qualified
// reference to the method.
func (e *Engine) applyMethodDecl(ctx context.Context, batch *EditBatch, target *Target, newName string) error {
	if !smali.IsMemberName(newName) {
		return fmt.Errorf("invalid method name %q", newName)
	}
	batch.add(target.URI, target.Method.Name.Range, newName)

	oldRef := smali.QualifiedReference(target.Owner, target.Method.Identifier())
	newRef := smali.QualifiedReference(target.Owner, target.Method.IdentifierWithName(newName))
	return e.rewriteReferences(ctx, batch, oldRef, newRef)
}

// applyFieldRef resolves the owner class and rewrites every matching
// field declaration in it, then every qualified reference workspace-wide.
// An unindexed owner skips declaration editing but references are still
// rewritten.
func (e *Engine) applyFieldRef(ctx context.Context, batch *EditBatch, target *Target, newName string) error {
	if !smali.IsMemberName(newName) {
		return fmt.Errorf("invalid field name %q", newName)
	}

	owner, err := e.index.Lookup(ctx, target.Owner)
	if err != nil {
		return err
	}
	if owner != nil {
		for _, field := range owner.FindFields(target.Field.Identifier()) {
			batch.add(owner.URI, field.Name.Range, newName)
		}
	} else {
		common.ServerLogger.Debug("owner %s not indexed; rewriting references only", target.Owner)
	}

	oldRef := smali.QualifiedReference(target.Owner, target.Field.Identifier())
	newRef := smali.QualifiedReference(target.Owner, target.Field.IdentifierWithName(newName))
	return e.rewriteReferences(ctx, batch, oldRef, newRef)
}

// applyMethodRef mirrors applyFieldRef for methods; overloads match only
// when name and signature coincide, and constructors are searched too.
func (e *Engine) applyMethodRef(ctx context.Context, batch *EditBatch, target *Target, newName string) error {
	if !smali.IsMemberName(newName) {
		return fmt.Errorf("invalid method name %q", newName)
	}

	owner, err := e.index.Lookup(ctx, target.Owner)
	if err != nil {
		return err
	}
	if owner != nil {
		for _, method := range owner.FindMethods(target.Method.Identifier()) {
			batch.add(owner.URI, method.Name.Range, newName)
		}
	} else {
		common.ServerLogger.Debug("owner %s not indexed; rewriting references only", target.Owner)
	}

	oldRef := smali.QualifiedReference(target.Owner, target.Method.Identifier())
	newRef := smali.QualifiedReference(target.Owner, target.Method.IdentifierWithName(newName))
	return e.rewriteReferences(ctx, batch, oldRef, newRef)
}

func (e *Engine) rewriteReferences(ctx context.Context, batch *EditBatch, oldRef, newRef string) error {
	results, err := e.index.Search(ctx, []string{oldRef})
	if err != nil {
		return err
	}
	for _, loc := range results[0] {
		batch.add(loc.URI, loc.Range, newRef)
	}
	return nil
}

// deriveRenamedPath computes the on-disk destination for a class rename.
// When the file sits at its identifier-derived relative path, the new
// path keeps the same root; otherwise only the leaf name moves, keeping
// the file in its current directory.
func deriveRenamedPath(oldPath, oldID, newID string) string {
	oldRel, _ := smali.DescriptorToPath(oldID)
	newRel, _ := smali.DescriptorToPath(newID)
	slashed := filepath.ToSlash(oldPath)
	if root, ok := strings.CutSuffix(slashed, "/"+oldRel); ok {
		return filepath.FromSlash(root + "/" + newRel)
	}
	return filepath.Join(filepath.Dir(oldPath), path.Base(newRel))
}
