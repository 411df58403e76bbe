// Package errors provides the unified error types for smali-lsp.
//
// Errors are scoped to a single file wherever possible: a malformed
// document or a duplicate class declaration never aborts indexing of
// the rest of the workspace.
package errors

import (
	"errors"
	"fmt"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"
)

// ParseError reports malformed smali source in a single file. It carries
// the source range of the offending token so it can be surfaced as a
// diagnostic on that file.
type ParseError struct {
	URI     uri.URI        `json:"uri"`
	Range   protocol.Range `json:"range"`
	Message string         `json:"message"`
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s at %d:%d: %s",
		e.URI, e.Range.Start.Line, e.Range.Start.Character, e.Message)
}

// ConflictError reports that two files declare the same class identifier.
// The first-seen file remains authoritative; the error is attached to the
// newer file.
type ConflictError struct {
	URI        uri.URI `json:"uri"`
	Identifier string  `json:"identifier"`
	OwnerURI   uri.URI `json:"ownerUri"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("class %s is already declared in %s", e.Identifier, e.OwnerURI)
}

// LoadError reports a discovery or read failure during the bulk workspace
// load. It never blocks index readiness; the loader resolves the ready
// signal even when discovery fails.
type LoadError struct {
	Path  string `json:"path"`
	Cause error  `json:"cause,omitempty"`
}

func (e *LoadError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("load error for %s: %v", e.Path, e.Cause)
	}
	return fmt.Sprintf("load error for %s", e.Path)
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Error constructors

// NewParseError creates a parse error pinned to a range in a file.
func NewParseError(docURI uri.URI, rng protocol.Range, message string) *ParseError {
	return &ParseError{URI: docURI, Range: rng, Message: message}
}

// NewConflictError creates a conflict error for a duplicate identifier.
func NewConflictError(docURI uri.URI, identifier string, owner uri.URI) *ConflictError {
	return &ConflictError{URI: docURI, Identifier: identifier, OwnerURI: owner}
}

// NewLoadError creates a load error for a path that failed discovery or read.
func NewLoadError(path string, cause error) *LoadError {
	return &LoadError{Path: path, Cause: cause}
}

// Error type checking utilities

// IsParseError checks if an error is a ParseError
func IsParseError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// IsConflictError checks if an error is a ConflictError
func IsConflictError(err error) bool {
	var conflictErr *ConflictError
	return errors.As(err, &conflictErr)
}

// IsLoadError checks if an error is a LoadError
func IsLoadError(err error) bool {
	var loadErr *LoadError
	return errors.As(err, &loadErr)
}

// WrapWithContext wraps an error with operation context for better messages.
func WrapWithContext(operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", operation, err)
}

// Diagnostic converts a file-scoped error into the LSP diagnostic that is
// published on the affected document. Errors without a position (for
// example a ConflictError) are pinned to the start of the file.
func Diagnostic(err error) *protocol.Diagnostic {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return &protocol.Diagnostic{
			Range:    parseErr.Range,
			Severity: protocol.DiagnosticSeverityError,
			Source:   "smali-lsp",
			Message:  parseErr.Message,
		}
	}
	var conflictErr *ConflictError
	if errors.As(err, &conflictErr) {
		return &protocol.Diagnostic{
			Severity: protocol.DiagnosticSeverityError,
			Source:   "smali-lsp",
			Message:  conflictErr.Error(),
		}
	}
	return nil
}
