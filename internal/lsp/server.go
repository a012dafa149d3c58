// Package lsp serves the engine over the Language Server Protocol.
package lsp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"

	"github.com/EmNudge/wat-lsp/internal/config"
	"github.com/EmNudge/wat-lsp/internal/docs"
	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/logger"
	"github.com/EmNudge/wat-lsp/internal/lsp/cache"
)

const (
	serverName    = "watls"
	serverVersion = "0.1.0"

	codeServerNotInitialized jsonrpc2.Code = -32002
)

// Client is the part of a connection the server talks back through.
type Client interface {
	Notify(ctx context.Context, method string, params interface{}) error
}

type Server struct {
	session *cache.Session
	client  Client

	visualizer *Visualizer

	mu          sync.Mutex
	cfg         config.Config
	configPath  string
	docs        *docs.Store
	watcher     *config.Watcher
	initialized bool
	shutdown    bool

	// ctx lives until exit; background work such as the config watcher
	// runs under it.
	ctx      context.Context
	cancel   context.CancelFunc
	exitOnce sync.Once
}

type Options struct {
	// ConfigPath pins the configuration file. When empty it is looked up
	// from the workspace root on initialize.
	ConfigPath string
	// VisualizerAddr starts the call graph visualizer on this address.
	VisualizerAddr string
}

func NewServer(client Client, opts Options) (*Server, error) {
	cfg := config.Default()
	store := docs.Default()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		session:    cache.NewSession(cfg.EngineOptions(store)),
		client:     client,
		cfg:        cfg,
		configPath: opts.ConfigPath,
		docs:       store,
		ctx:        ctx,
		cancel:     cancel,
	}
	if opts.VisualizerAddr != "" {
		s.visualizer = NewVisualizer(s.session)
		if err := s.visualizer.Start(opts.VisualizerAddr); err != nil {
			cancel()
			return nil, fmt.Errorf("visualizer: %w", err)
		}
	}
	return s, nil
}

// Done is closed once the client has sent exit.
func (s *Server) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *Server) Session() *cache.Session {
	return s.session
}

type stdrwc struct{}

func (stdrwc) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdrwc) Write(p []byte) (int, error) { return os.Stdout.Write(p) }
func (stdrwc) Close() error {
	if err := os.Stdin.Close(); err != nil {
		return err
	}
	return os.Stdout.Close()
}

// RunStdio serves a single client over stdin and stdout.
func RunStdio(ctx context.Context, opts Options) error {
	return Serve(ctx, stdrwc{}, opts)
}

// Serve runs the protocol over rwc until the client exits or the
// connection drops. Requests are handled one at a time in arrival order.
func Serve(ctx context.Context, rwc io.ReadWriteCloser, opts Options) error {
	conn := jsonrpc2.NewConn(jsonrpc2.NewStream(rwc))
	s, err := NewServer(conn, opts)
	if err != nil {
		return err
	}
	defer s.Exit()

	conn.Go(ctx, s.Handle)
	select {
	case <-ctx.Done():
	case <-s.Done():
	case <-conn.Done():
		if err := conn.Err(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
	return conn.Close()
}

func decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %s", jsonrpc2.ErrInvalidParams, err)
	}
	return nil
}

// handle decodes the params of a request, runs fn and replies with its
// result.
func handle[P any, R any](ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, fn func(context.Context, *P) (R, error)) error {
	var params P
	if err := decode(req.Params(), &params); err != nil {
		return reply(ctx, nil, err)
	}
	res, err := fn(ctx, &params)
	return reply(ctx, res, err)
}

func notify[P any](ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request, fn func(context.Context, *P) error) error {
	var params P
	if err := decode(req.Params(), &params); err != nil {
		logger.Printf("%s: %v", req.Method(), err)
		return reply(ctx, nil, nil)
	}
	if err := fn(ctx, &params); err != nil {
		logger.Printf("%s: %v", req.Method(), err)
	}
	return reply(ctx, nil, nil)
}

// Handle dispatches one message. It is the connection's jsonrpc2.Handler.
func (s *Server) Handle(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
	s.mu.Lock()
	initialized, shutdown := s.initialized, s.shutdown
	s.mu.Unlock()

	method := req.Method()
	logger.Debugf("<- %s", method)
	if shutdown && method != "exit" {
		return reply(ctx, nil, jsonrpc2.NewError(jsonrpc2.InvalidRequest, "server is shutting down"))
	}
	if !initialized {
		switch method {
		case "initialize", "initialized", "exit":
		default:
			return reply(ctx, nil, jsonrpc2.NewError(codeServerNotInitialized, "server not initialized"))
		}
	}

	switch method {
	case "initialize":
		return handle(ctx, reply, req, s.Initialize)
	case "initialized":
		return reply(ctx, nil, nil)
	case "shutdown":
		s.Shutdown()
		return reply(ctx, nil, nil)
	case "exit":
		err := reply(ctx, nil, nil)
		s.Exit()
		return err

	case "textDocument/didOpen":
		return notify(ctx, reply, req, s.DidOpen)
	case "textDocument/didChange":
		return notify(ctx, reply, req, s.DidChange)
	case "textDocument/didClose":
		return notify(ctx, reply, req, s.DidClose)
	case "textDocument/didSave":
		return notify(ctx, reply, req, s.DidSave)

	case "textDocument/hover":
		return handle(ctx, reply, req, s.Hover)
	case "textDocument/definition":
		return handle(ctx, reply, req, s.Definition)
	case "textDocument/references":
		return handle(ctx, reply, req, s.References)
	case "textDocument/documentHighlight":
		return handle(ctx, reply, req, s.DocumentHighlight)
	case "textDocument/prepareRename":
		return handle(ctx, reply, req, s.PrepareRename)
	case "textDocument/rename":
		return handle(ctx, reply, req, s.Rename)
	case "textDocument/signatureHelp":
		return handle(ctx, reply, req, s.SignatureHelp)
	case "textDocument/completion":
		return handle(ctx, reply, req, s.Completion)
	case "textDocument/formatting":
		return handle(ctx, reply, req, s.Formatting)
	case "textDocument/documentSymbol":
		return handle(ctx, reply, req, s.DocumentSymbol)
	}
	return jsonrpc2.MethodNotFoundHandler(ctx, reply, req)
}

func (s *Server) Initialize(ctx context.Context, params *protocol.InitializeParams) (*protocol.InitializeResult, error) {
	root := ""
	if len(params.WorkspaceFolders) > 0 {
		root = filename(protocol.DocumentURI(params.WorkspaceFolders[0].URI))
	} else if params.RootURI != "" {
		root = filename(params.RootURI)
	} else {
		root = params.RootPath
	}

	s.mu.Lock()
	path := s.configPath
	s.initialized = true
	s.mu.Unlock()
	if path == "" && root != "" {
		path = config.Find(root)
		if path == "" {
			path = filepath.Join(root, config.FileName)
		}
	}
	logger.Printf("initialize: root=%q config=%q", root, path)

	if path != "" {
		cfg, err := config.Load(path)
		s.applyConfig(ctx, cfg, err)
		s.watch(path)
	}

	return &protocol.InitializeResult{
		Capabilities: protocol.ServerCapabilities{
			TextDocumentSync: protocol.TextDocumentSyncOptions{
				OpenClose: true,
				Change:    protocol.TextDocumentSyncKindIncremental,
				Save:      &protocol.SaveOptions{},
			},
			HoverProvider:             true,
			DefinitionProvider:        true,
			ReferencesProvider:        true,
			DocumentHighlightProvider: true,
			DocumentSymbolProvider:    true,
			RenameProvider:            &protocol.RenameOptions{PrepareProvider: true},
			CompletionProvider: &protocol.CompletionOptions{
				TriggerCharacters: []string{".", "$", "@", "2", "4"},
			},
			SignatureHelpProvider: &protocol.SignatureHelpOptions{
				TriggerCharacters:   []string{"("},
				RetriggerCharacters: []string{" "},
			},
			DocumentFormattingProvider: true,
		},
		ServerInfo: &protocol.ServerInfo{
			Name:    serverName,
			Version: serverVersion,
		},
	}, nil
}

func (s *Server) watch(path string) {
	w, err := config.Watch(s.ctx, path, config.DefaultDebounce, func(cfg config.Config, err error) {
		s.applyConfig(s.ctx, cfg, err)
	})
	if err != nil {
		logger.Warnf("not watching %s: %v", path, err)
		return
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
}

func (s *Server) stopWatching() {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()
	if w != nil {
		w.Close()
	}
}

// applyConfig switches to cfg and republishes diagnostics of every open
// document. A config that fails to load leaves the current one in place.
func (s *Server) applyConfig(ctx context.Context, cfg config.Config, err error) {
	if err != nil {
		logger.Errorf("config: %v", err)
		return
	}
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		logger.Warnf("config: %v", err)
	}
	store, err := cfg.OpenDocs()
	if err != nil {
		logger.Errorf("docs: %v", err)
		store = docs.Default()
	}

	s.mu.Lock()
	old := s.docs
	s.cfg = cfg
	s.docs = store
	s.mu.Unlock()

	for uri, snap := range s.session.SetOptions(cfg.EngineOptions(store)) {
		s.publish(ctx, uri, snap)
	}
	// Snapshots held the old store until SetOptions replaced them.
	if old != nil && old != store {
		old.Close()
	}
	if cfg.Path != "" {
		logger.Printf("configuration loaded from %s", cfg.Path)
	}
}

func (s *Server) Config() config.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Server) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.stopWatching()
}

// Exit releases everything the server holds. It is safe to call twice.
func (s *Server) Exit() {
	s.exitOnce.Do(func() {
		s.stopWatching()
		s.mu.Lock()
		store := s.docs
		s.mu.Unlock()
		store.Close()
		if s.visualizer != nil {
			s.visualizer.Close(context.Background())
		}
		s.cancel()
	})
}

func (s *Server) publish(ctx context.Context, uri string, snap *engine.Snapshot) {
	if s.client == nil {
		return
	}
	params := &protocol.PublishDiagnosticsParams{
		URI:         protocol.DocumentURI(uri),
		Diagnostics: []protocol.Diagnostic{},
	}
	if snap != nil {
		params.Version = uint32(snap.Version)
		params.Diagnostics = fromDiagnostics(snap.Diagnostics())
	}
	if err := s.client.Notify(ctx, "textDocument/publishDiagnostics", params); err != nil {
		logger.Printf("publishDiagnostics %s: %v", uri, err)
	}
}

func (s *Server) DidOpen(ctx context.Context, params *protocol.DidOpenTextDocumentParams) error {
	doc := params.TextDocument
	snap := s.session.Open(string(doc.URI), doc.Text, doc.Version)
	s.publish(ctx, string(doc.URI), snap)
	return nil
}

// DidChangeParams mirrors protocol.DidChangeTextDocumentParams with an
// optional range, which tells incremental edits from full replacements.
type DidChangeParams struct {
	TextDocument   protocol.VersionedTextDocumentIdentifier `json:"textDocument"`
	ContentChanges []ContentChange                          `json:"contentChanges"`
}

type ContentChange struct {
	Range *protocol.Range `json:"range,omitempty"`
	Text  string          `json:"text"`
}

func (s *Server) DidChange(ctx context.Context, params *DidChangeParams) error {
	changes := make([]cache.Change, len(params.ContentChanges))
	for i, c := range params.ContentChanges {
		changes[i].Text = c.Text
		if c.Range != nil {
			r := toRange(*c.Range)
			changes[i].Range = &r
		}
	}
	uri := string(params.TextDocument.URI)
	snap, err := s.session.Update(uri, params.TextDocument.Version, changes)
	if err != nil {
		return err
	}
	s.publish(ctx, uri, snap)
	return nil
}

func (s *Server) DidClose(ctx context.Context, params *protocol.DidCloseTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	s.session.Close(uri)
	s.publish(ctx, uri, nil)
	return nil
}

func (s *Server) DidSave(ctx context.Context, params *protocol.DidSaveTextDocumentParams) error {
	uri := string(params.TextDocument.URI)
	if snap := s.session.Snapshot(uri); snap != nil {
		s.publish(ctx, uri, snap)
	}
	return nil
}
