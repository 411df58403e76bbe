// Package server runs the smali-lsp language server over stdio: it owns
// the JSON-RPC loop, routes document and workspace events into the
// index, and serves the rename and references requests.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	lsp "go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"smali-lsp/src/config"
	"smali-lsp/src/internal/common"
	"smali-lsp/src/internal/version"
	"smali-lsp/src/server/index"
	"smali-lsp/src/server/protocol"
	"smali-lsp/src/server/rename"
	"smali-lsp/src/server/watch"
)

// File event types from workspace/didChangeWatchedFiles.
const (
	fileCreated = 1
	fileChanged = 2
	fileDeleted = 3
)

// Server is one LSP session over a reader/writer pair.
type Server struct {
	cfg     *config.Config
	index   *index.DocumentIndex
	loader  *index.Loader
	engine  *rename.Engine
	watcher *watch.Watcher

	reader  *bufio.Reader
	writer  io.Writer
	writeMu sync.Mutex

	docMu     sync.RWMutex
	documents map[uri.URI]string

	rootPath string
	exited   bool
}

// NewServer creates a server bound to stdin/stdout.
func NewServer(cfg *config.Config) *Server {
	return NewServerWithIO(cfg, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server over an explicit transport, used by
// tests and embedding hosts.
func NewServerWithIO(cfg *config.Config, r io.Reader, w io.Writer) *Server {
	idx := index.NewDocumentIndex()
	s := &Server{
		cfg:       cfg,
		index:     idx,
		loader:    index.NewLoader(idx, cfg.Workspace.Pattern, cfg.Workspace.MaxParallelParses),
		engine:    rename.NewEngine(idx),
		reader:    bufio.NewReaderSize(r, 1<<20),
		writer:    w,
		documents: make(map[uri.URI]string),
	}
	idx.SetDiagnosticsPublisher(s.publishDiagnostics)
	return s
}

// Run processes messages until the client disconnects or sends exit.
func (s *Server) Run(ctx context.Context) error {
	common.ServerLogger.Info("smali-lsp %s listening on stdio", version.GetVersion())
	defer s.stopWatcher()

	for !s.exited {
		msg, err := protocol.ReadMessage(s.reader)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			common.ServerLogger.Error("transport error: %v", err)
			return err
		}
		s.dispatch(ctx, msg)
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, msg *protocol.Message) {
	switch msg.Method {
	case "initialize":
		s.handleInitialize(msg)
	case "initialized":
		// No-op.
	case "shutdown":
		s.respond(msg.ID, nil)
	case "exit":
		s.exited = true
	case "textDocument/didOpen":
		s.handleDidOpen(msg)
	case "textDocument/didChange":
		s.handleDidChange(msg)
	case "textDocument/didClose":
		s.handleDidClose(msg)
	case "workspace/didChangeWatchedFiles":
		s.handleWatchedFiles(msg)
	case "workspace/didRenameFiles":
		s.handleDidRenameFiles(msg)
	case "textDocument/prepareRename":
		s.handlePrepareRename(msg)
	case "textDocument/rename":
		s.handleRename(ctx, msg)
	case "textDocument/references":
		s.handleReferences(ctx, msg)
	default:
		if msg.IsRequest() {
			s.respondError(msg.ID, protocol.MethodNotFound,
				fmt.Sprintf("method not supported: %s", msg.Method))
		}
	}
}

func (s *Server) handleInitialize(msg *protocol.Message) {
	var params struct {
		RootURI  lsp.DocumentURI `json:"rootUri"`
		RootPath string          `json:"rootPath"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		s.respondError(msg.ID, protocol.InvalidParams, err.Error())
		return
	}

	switch {
	case params.RootURI != "":
		s.rootPath = uri.URI(params.RootURI).Filename()
	case params.RootPath != "":
		s.rootPath = params.RootPath
	default:
		s.rootPath, _ = os.Getwd()
	}

	// The bulk load runs in the background; queries that need a complete
	// index suspend on the readiness signal instead of observing a
	// partially populated one.
	go func() {
		if err := s.loader.Load(context.Background(), s.rootPath); err != nil {
			s.showMessage(fmt.Sprintf("smali-lsp: workspace load failed: %v", err))
		}
	}()

	if s.cfg.Workspace.Watch {
		s.startWatcher()
	}

	s.respond(msg.ID, map[string]interface{}{
		"capabilities": map[string]interface{}{
			"textDocumentSync":   1, // full content sync
			"referencesProvider": true,
			"renameProvider":     map[string]interface{}{"prepareProvider": true},
		},
		"serverInfo": map[string]interface{}{
			"name":    "smali-lsp",
			"version": version.GetVersion(),
		},
	})
}

func (s *Server) handleDidOpen(msg *protocol.Message) {
	var params lsp.DidOpenTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		common.ServerLogger.Error("didOpen: %v", err)
		return
	}
	docURI := uri.URI(params.TextDocument.URI)

	s.docMu.Lock()
	s.documents[docURI] = params.TextDocument.Text
	s.docMu.Unlock()

	if _, err := s.index.Open(docURI, params.TextDocument.Text); err != nil {
		common.ServerLogger.Debug("didOpen %s: %v", docURI, err)
	}
}

func (s *Server) handleDidChange(msg *protocol.Message) {
	var params lsp.DidChangeTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		common.ServerLogger.Error("didChange: %v", err)
		return
	}
	if len(params.ContentChanges) == 0 {
		return
	}
	// Full sync: the last change carries the whole document.
	text := params.ContentChanges[len(params.ContentChanges)-1].Text
	docURI := uri.URI(params.TextDocument.URI)

	s.docMu.Lock()
	s.documents[docURI] = text
	s.docMu.Unlock()

	if err := s.index.OnChanged(docURI, text); err != nil {
		common.ServerLogger.Debug("didChange %s: %v", docURI, err)
	}
}

func (s *Server) handleDidClose(msg *protocol.Message) {
	var params lsp.DidCloseTextDocumentParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		common.ServerLogger.Error("didClose: %v", err)
		return
	}
	s.docMu.Lock()
	delete(s.documents, uri.URI(params.TextDocument.URI))
	s.docMu.Unlock()
}

func (s *Server) handleWatchedFiles(msg *protocol.Message) {
	var params struct {
		Changes []struct {
			URI  lsp.DocumentURI `json:"uri"`
			Type int             `json:"type"`
		} `json:"changes"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		common.ServerLogger.Error("didChangeWatchedFiles: %v", err)
		return
	}

	for _, change := range params.Changes {
		docURI := uri.URI(change.URI)
		switch change.Type {
		case fileCreated, fileChanged:
			data, err := os.ReadFile(docURI.Filename())
			if err != nil {
				s.index.OnDeleted(docURI)
				continue
			}
			if change.Type == fileCreated {
				_, err = s.index.Open(docURI, string(data))
			} else {
				err = s.index.OnChanged(docURI, string(data))
			}
			if err != nil {
				common.ServerLogger.Debug("watched file %s: %v", docURI, err)
			}
		case fileDeleted:
			s.index.OnDeleted(docURI)
		}
	}
}

func (s *Server) handleDidRenameFiles(msg *protocol.Message) {
	var params struct {
		Files []struct {
			OldURI string `json:"oldUri"`
			NewURI string `json:"newUri"`
		} `json:"files"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		common.ServerLogger.Error("didRenameFiles: %v", err)
		return
	}
	for _, f := range params.Files {
		s.index.OnRenamed(uri.URI(f.OldURI), uri.URI(f.NewURI))
	}
}

func (s *Server) handlePrepareRename(msg *protocol.Message) {
	docURI, pos, _, err := s.positionParams(msg)
	if err != nil {
		s.respondError(msg.ID, protocol.InvalidParams, err.Error())
		return
	}

	text, ok := s.documentText(docURI)
	if !ok {
		s.respond(msg.ID, nil)
		return
	}
	target := s.engine.Classify(docURI, text, pos)
	if target == nil {
		// Not an error: the position offers no rename.
		s.respond(msg.ID, nil)
		return
	}

	rng, placeholder := s.engine.Prepare(target)
	s.respond(msg.ID, map[string]interface{}{
		"range":       rng,
		"placeholder": placeholder,
	})
}

func (s *Server) handleRename(ctx context.Context, msg *protocol.Message) {
	docURI, pos, newName, err := s.positionParams(msg)
	if err != nil {
		s.respondError(msg.ID, protocol.InvalidParams, err.Error())
		return
	}

	text, ok := s.documentText(docURI)
	if !ok {
		s.respond(msg.ID, nil)
		return
	}
	target := s.engine.Classify(docURI, text, pos)

	batch, err := s.engine.Apply(ctx, target, newName)
	if err != nil {
		s.respondError(msg.ID, protocol.InvalidParams, err.Error())
		return
	}
	s.respond(msg.ID, WorkspaceEdit(batch))
}

func (s *Server) handleReferences(ctx context.Context, msg *protocol.Message) {
	docURI, pos, _, err := s.positionParams(msg)
	if err != nil {
		s.respondError(msg.ID, protocol.InvalidParams, err.Error())
		return
	}

	text, ok := s.documentText(docURI)
	if !ok {
		s.respond(msg.ID, []lsp.Location{})
		return
	}
	target := s.engine.Classify(docURI, text, pos)
	if target == nil {
		s.respond(msg.ID, []lsp.Location{})
		return
	}

	symbol := referenceSymbol(target)
	results, err := s.index.Search(ctx, []string{symbol})
	if err != nil {
		s.respondError(msg.ID, protocol.InternalError, err.Error())
		return
	}
	locations := results[0]
	if locations == nil {
		locations = []lsp.Location{}
	}
	s.respond(msg.ID, locations)
}

// referenceSymbol picks the literal search string for a classification:
// the full descriptor for types, the qualified reference for members.
func referenceSymbol(target *rename.Target) string {
	switch target.Kind {
	case rename.KindType:
		return target.Name.Text
	case rename.KindFieldDecl, rename.KindFieldRef:
		return target.Owner + "->" + target.Field.Identifier()
	case rename.KindMethodDecl, rename.KindMethodRef:
		return target.Owner + "->" + target.Method.Identifier()
	}
	return ""
}

// WorkspaceEdit renders an edit batch in LSP wire form. Plain text edits
// use the changes map; a class rename switches to documentChanges so the
// file rename can ride along.
func WorkspaceEdit(batch *rename.EditBatch) interface{} {
	if batch.Empty() {
		return nil
	}
	if len(batch.Renames) == 0 {
		return map[string]interface{}{"changes": batch.Changes}
	}

	uris := make([]string, 0, len(batch.Changes))
	for docURI := range batch.Changes {
		uris = append(uris, string(docURI))
	}
	sort.Strings(uris)

	docChanges := make([]interface{}, 0, len(uris)+len(batch.Renames))
	for _, docURI := range uris {
		docChanges = append(docChanges, map[string]interface{}{
			"textDocument": map[string]interface{}{
				"uri":     docURI,
				"version": nil,
			},
			"edits": batch.Changes[lsp.DocumentURI(docURI)],
		})
	}
	for _, fileRename := range batch.Renames {
		docChanges = append(docChanges, fileRename)
	}
	return map[string]interface{}{"documentChanges": docChanges}
}

// positionParams decodes the textDocument/position pair shared by the
// rename and references requests, plus newName when present.
func (s *Server) positionParams(msg *protocol.Message) (uri.URI, lsp.Position, string, error) {
	var params struct {
		TextDocument lsp.TextDocumentIdentifier `json:"textDocument"`
		Position     lsp.Position               `json:"position"`
		NewName      string                     `json:"newName"`
	}
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return "", lsp.Position{}, "", err
	}
	return uri.URI(params.TextDocument.URI), params.Position, params.NewName, nil
}

// documentText returns the current text of a document: the open overlay
// when the client holds it, the disk content otherwise.
func (s *Server) documentText(docURI uri.URI) (string, bool) {
	s.docMu.RLock()
	text, ok := s.documents[docURI]
	s.docMu.RUnlock()
	if ok {
		return text, true
	}
	data, err := os.ReadFile(docURI.Filename())
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *Server) startWatcher() {
	watcher, err := watch.NewWatcher(s.index, time.Duration(s.cfg.Workspace.WatchDebounceMs)*time.Millisecond)
	if err != nil {
		common.ServerLogger.Error("cannot create file watcher: %v", err)
		return
	}
	if err := watcher.Start(context.Background(), s.rootPath); err != nil {
		common.ServerLogger.Error("cannot start file watcher: %v", err)
		return
	}
	s.watcher = watcher
}

func (s *Server) stopWatcher() {
	if s.watcher != nil {
		if err := s.watcher.Stop(); err != nil {
			common.ServerLogger.Error("stopping watcher: %v", err)
		}
	}
}

func (s *Server) publishDiagnostics(docURI uri.URI, diagnostics []lsp.Diagnostic) {
	if diagnostics == nil {
		diagnostics = []lsp.Diagnostic{}
	}
	s.notify("textDocument/publishDiagnostics", map[string]interface{}{
		"uri":         docURI,
		"diagnostics": diagnostics,
	})
}

func (s *Server) showMessage(message string) {
	s.notify("window/showMessage", map[string]interface{}{
		"type":    1, // error
		"message": message,
	})
}

func (s *Server) notify(method string, params interface{}) {
	msg, err := protocol.NewNotification(method, params)
	if err != nil {
		common.ServerLogger.Error("building %s notification: %v", method, err)
		return
	}
	s.send(msg)
}

func (s *Server) respond(id interface{}, result interface{}) {
	s.send(protocol.NewResponse(id, result))
}

func (s *Server) respondError(id interface{}, code int, message string) {
	s.send(protocol.NewErrorResponse(id, code, message))
}

func (s *Server) send(msg *protocol.Message) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := protocol.WriteMessage(s.writer, msg); err != nil {
		common.ServerLogger.Error("write error: %v", err)
	}
}
