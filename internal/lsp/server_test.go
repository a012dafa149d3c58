package lsp

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/jsonrpc2"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/EmNudge/wat-lsp/internal/config"
	"github.com/EmNudge/wat-lsp/internal/docs"
)

const testURI = protocol.DocumentURI("file:///test.wat")

const testModule = `(module
  (func $add (param $a i32) (param $b i32) (result i32)
    (i32.add (local.get $a) (local.get $b)))
  (func $main (result i32)
    (call $add (i32.const 1) (i32.const 2))))`

type recorder struct {
	mu        sync.Mutex
	published []*protocol.PublishDiagnosticsParams
}

func (r *recorder) Notify(ctx context.Context, method string, params interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if method == "textDocument/publishDiagnostics" {
		r.published = append(r.published, params.(*protocol.PublishDiagnosticsParams))
	}
	return nil
}

func (r *recorder) last() *protocol.PublishDiagnosticsParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.published) == 0 {
		return nil
	}
	return r.published[len(r.published)-1]
}

func newTestServer(t *testing.T) (*Server, *recorder) {
	t.Helper()
	rec := &recorder{}
	s, err := NewServer(rec, Options{})
	require.NoError(t, err)
	t.Cleanup(s.Exit)
	_, err = s.Initialize(context.Background(), &protocol.InitializeParams{})
	require.NoError(t, err)
	return s, rec
}

func open(t *testing.T, s *Server, text string) {
	t.Helper()
	require.NoError(t, s.DidOpen(context.Background(), &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: testURI, LanguageID: "wat", Version: 1, Text: text},
	}))
}

func pos(t *testing.T, src, marker string, offset int) protocol.Position {
	t.Helper()
	idx := strings.Index(src, marker)
	require.GreaterOrEqual(t, idx, 0, "marker %q", marker)
	idx += offset
	line := strings.Count(src[:idx], "\n")
	col := idx - (strings.LastIndex(src[:idx], "\n") + 1)
	return protocol.Position{Line: uint32(line), Character: uint32(col)}
}

func docPos(t *testing.T, src, marker string, offset int) protocol.TextDocumentPositionParams {
	return protocol.TextDocumentPositionParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Position:     pos(t, src, marker, offset),
	}
}

func TestInitializeCapabilities(t *testing.T) {
	s, err := NewServer(&recorder{}, Options{})
	require.NoError(t, err)
	defer s.Exit()

	res, err := s.Initialize(context.Background(), &protocol.InitializeParams{})
	require.NoError(t, err)
	caps := res.Capabilities
	require.NotNil(t, caps.CompletionProvider)
	assert.Equal(t, []string{".", "$", "@", "2", "4"}, caps.CompletionProvider.TriggerCharacters)
	require.NotNil(t, caps.SignatureHelpProvider)
	assert.Equal(t, []string{"("}, caps.SignatureHelpProvider.TriggerCharacters)
	assert.Equal(t, &protocol.RenameOptions{PrepareProvider: true}, caps.RenameProvider)
	assert.Equal(t, serverName, res.ServerInfo.Name)
}

func TestInitializeLoadsWorkspaceConfig(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".watls.toml"), []byte("[diagnostics]\nunresolved = false\n"), 0o644))

	rec := &recorder{}
	s, err := NewServer(rec, Options{})
	require.NoError(t, err)
	defer s.Exit()

	_, err = s.Initialize(context.Background(), &protocol.InitializeParams{
		RootURI: protocol.DocumentURI(uri.File(root)),
	})
	require.NoError(t, err)
	assert.False(t, s.Config().Diagnostics.Unresolved)

	open(t, s, `(module (func (call $nope)))`)
	require.NotNil(t, rec.last())
	assert.Empty(t, rec.last().Diagnostics)
}

func seedDocs(t *testing.T, path, description string) {
	t.Helper()
	store, err := docs.Open(path, 0)
	require.NoError(t, err)
	require.NoError(t, store.Put(docs.Entry{Mnemonic: "i32.add", Description: description}))
	require.NoError(t, store.Close())
}

func TestConfigReloadSwapsDocs(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.db")
	second := filepath.Join(dir, "second.db")
	seedDocs(t, first, "from the first database")
	seedDocs(t, second, "from the second database")

	s, _ := newTestServer(t)
	ctx := context.Background()
	hoverAdd := func() string {
		h, err := s.Hover(ctx, &protocol.HoverParams{TextDocumentPositionParams: docPos(t, testModule, "i32.add", 1)})
		require.NoError(t, err)
		require.NotNil(t, h)
		return h.Contents.Value
	}

	cfg := config.Default()
	cfg.Docs.Database = first
	s.applyConfig(ctx, cfg, nil)
	open(t, s, testModule)
	assert.Contains(t, hoverAdd(), "from the first database")

	cfg.Docs.Database = second
	s.applyConfig(ctx, cfg, nil)
	assert.Contains(t, hoverAdd(), "from the second database")

	s.mu.Lock()
	current := s.docs
	s.mu.Unlock()
	for _, u := range s.session.URIs() {
		assert.True(t, s.session.Snapshot(u).Options().Docs == docs.Lookup(current), "%s still uses the old store", u)
	}
}

func TestDiagnosticsLifecycle(t *testing.T) {
	s, rec := newTestServer(t)
	ctx := context.Background()

	src := `(module (func (call $nope)))`
	open(t, s, src)
	got := rec.last()
	require.NotNil(t, got)
	assert.Equal(t, testURI, got.URI)
	require.Len(t, got.Diagnostics, 1)
	assert.Equal(t, "Undefined function '$nope'", got.Diagnostics[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityError, got.Diagnostics[0].Severity)
	assert.Equal(t, "wat-lsp", got.Diagnostics[0].Source)

	// Declare $nope with an incremental edit.
	end := pos(t, src, "))", 2)
	require.NoError(t, s.DidChange(ctx, &DidChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: testURI},
			Version:                2,
		},
		ContentChanges: []ContentChange{{
			Range: &protocol.Range{Start: end, End: end},
			Text:  " (func $nope)",
		}},
	}))
	assert.Equal(t, `(module (func (call $nope)) (func $nope))`, s.Session().Snapshot(string(testURI)).Text())
	assert.Empty(t, rec.last().Diagnostics)
	assert.Equal(t, uint32(2), rec.last().Version)

	require.NoError(t, s.DidClose(ctx, &protocol.DidCloseTextDocumentParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
	}))
	assert.Nil(t, s.Session().Snapshot(string(testURI)))
	assert.NotNil(t, rec.last().Diagnostics)
	assert.Empty(t, rec.last().Diagnostics)
}

func TestDidChangeUnknownDocument(t *testing.T) {
	s, _ := newTestServer(t)
	err := s.DidChange(context.Background(), &DidChangeParams{
		TextDocument: protocol.VersionedTextDocumentIdentifier{
			TextDocumentIdentifier: protocol.TextDocumentIdentifier{URI: "file:///missing.wat"},
		},
	})
	assert.Error(t, err)
}

func TestQueries(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	open(t, s, testModule)

	t.Run("hover", func(t *testing.T) {
		h, err := s.Hover(ctx, &protocol.HoverParams{TextDocumentPositionParams: docPos(t, testModule, "$add (i32", 1)})
		require.NoError(t, err)
		require.NotNil(t, h)
		assert.Equal(t, protocol.Markdown, h.Contents.Kind)
		assert.Contains(t, h.Contents.Value, "(func $add (param $a i32) (param $b i32) (result i32))")
	})

	t.Run("definition", func(t *testing.T) {
		locs, err := s.Definition(ctx, &protocol.DefinitionParams{TextDocumentPositionParams: docPos(t, testModule, "$add (i32", 1)})
		require.NoError(t, err)
		require.Len(t, locs, 1)
		assert.Equal(t, testURI, locs[0].URI)
		assert.Equal(t, pos(t, testModule, "$add", 0), locs[0].Range.Start)
	})

	t.Run("references", func(t *testing.T) {
		locs, err := s.References(ctx, &protocol.ReferenceParams{
			TextDocumentPositionParams: docPos(t, testModule, "$b)", 0),
			Context:                    protocol.ReferenceContext{IncludeDeclaration: true},
		})
		require.NoError(t, err)
		assert.Len(t, locs, 2)
	})

	t.Run("highlight", func(t *testing.T) {
		hs, err := s.DocumentHighlight(ctx, &protocol.DocumentHighlightParams{TextDocumentPositionParams: docPos(t, testModule, "$a i32", 0)})
		require.NoError(t, err)
		assert.Len(t, hs, 2)
	})

	t.Run("rename", func(t *testing.T) {
		prep, err := s.PrepareRename(ctx, &protocol.PrepareRenameParams{TextDocumentPositionParams: docPos(t, testModule, "$add (i32", 1)})
		require.NoError(t, err)
		require.NotNil(t, prep)
		assert.Equal(t, "$add", prep.Placeholder)

		edit, err := s.Rename(ctx, &protocol.RenameParams{
			TextDocumentPositionParams: docPos(t, testModule, "$add (i32", 1),
			NewName:                    "sum",
		})
		require.NoError(t, err)
		require.Len(t, edit.Changes[testURI], 2)
		for _, e := range edit.Changes[testURI] {
			assert.Equal(t, "$sum", e.NewText)
		}

		_, err = s.Rename(ctx, &protocol.RenameParams{
			TextDocumentPositionParams: docPos(t, testModule, "$add (i32", 1),
			NewName:                    "main",
		})
		var rpcErr *jsonrpc2.Error
		require.ErrorAs(t, err, &rpcErr)
		assert.Equal(t, jsonrpc2.InvalidParams, rpcErr.Code)
	})

	t.Run("signature help", func(t *testing.T) {
		h, err := s.SignatureHelp(ctx, &protocol.SignatureHelpParams{TextDocumentPositionParams: docPos(t, testModule, "(i32.const 2)", 0)})
		require.NoError(t, err)
		require.NotNil(t, h)
		require.Len(t, h.Signatures, 1)
		assert.Len(t, h.Signatures[0].Parameters, 2)
		assert.Equal(t, uint32(1), h.ActiveParameter)
	})

	t.Run("completion", func(t *testing.T) {
		list, err := s.Completion(ctx, &protocol.CompletionParams{TextDocumentPositionParams: docPos(t, testModule, "i32.add", 4)})
		require.NoError(t, err)
		require.NotNil(t, list)
		var found bool
		for _, it := range list.Items {
			if it.Label == "add" {
				found = true
				assert.Equal(t, protocol.CompletionItemKindOperator, it.Kind)
			}
		}
		assert.True(t, found)
	})

	t.Run("document symbols", func(t *testing.T) {
		syms, err := s.DocumentSymbol(ctx, &protocol.DocumentSymbolParams{TextDocument: protocol.TextDocumentIdentifier{URI: testURI}})
		require.NoError(t, err)
		require.Len(t, syms, 2)
		assert.Equal(t, "$add", syms[0].Name)
		assert.Equal(t, protocol.SymbolKindFunction, syms[0].Kind)
	})

	t.Run("unknown document", func(t *testing.T) {
		h, err := s.Hover(ctx, &protocol.HoverParams{TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: "file:///other.wat"},
		}})
		assert.NoError(t, err)
		assert.Nil(t, h)
	})
}

func TestFormatting(t *testing.T) {
	s, _ := newTestServer(t)
	ctx := context.Background()
	open(t, s, "(module\n(func $f))")

	params := &protocol.DocumentFormattingParams{
		TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
		Options:      protocol.FormattingOptions{TabSize: 2, InsertSpaces: true},
	}
	edits, err := s.Formatting(ctx, params)
	require.NoError(t, err)
	require.Len(t, edits, 1)
	assert.Equal(t, "(module\n  (func $f))\n", edits[0].NewText)
	assert.Equal(t, protocol.Position{Line: 1, Character: 10}, edits[0].Range.End)

	open(t, s, "(module (func")
	edits, err = s.Formatting(ctx, params)
	require.NoError(t, err)
	assert.Nil(t, edits)
}

func TestVisualizerFollowsHover(t *testing.T) {
	rec := &recorder{}
	s, err := NewServer(rec, Options{VisualizerAddr: "127.0.0.1:0"})
	require.NoError(t, err)
	defer s.Exit()
	_, err = s.Initialize(context.Background(), &protocol.InitializeParams{})
	require.NoError(t, err)
	open(t, s, testModule)

	assert.Contains(t, s.visualizer.Graph(), "graph LR")
	_, err = s.Hover(context.Background(), &protocol.HoverParams{TextDocumentPositionParams: docPos(t, testModule, "(call", 1)})
	require.NoError(t, err)
	graph := s.visualizer.Graph()
	assert.Contains(t, graph, "f1 -->|call| f0")
	assert.Contains(t, graph, "class f1 focus")
}

func replyRecorder(got *error) jsonrpc2.Replier {
	return func(ctx context.Context, result interface{}, err error) error {
		*got = err
		return nil
	}
}

func TestHandleLifecycleErrors(t *testing.T) {
	s, err := NewServer(&recorder{}, Options{})
	require.NoError(t, err)
	defer s.Exit()
	ctx := context.Background()

	call, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(1), "textDocument/hover", &protocol.HoverParams{})
	require.NoError(t, err)
	var replyErr error
	require.NoError(t, s.Handle(ctx, replyRecorder(&replyErr), call))
	var rpcErr *jsonrpc2.Error
	require.ErrorAs(t, replyErr, &rpcErr)
	assert.Equal(t, codeServerNotInitialized, rpcErr.Code)

	init, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(2), "initialize", &protocol.InitializeParams{})
	require.NoError(t, err)
	require.NoError(t, s.Handle(ctx, replyRecorder(&replyErr), init))
	assert.NoError(t, replyErr)

	shutdown, err := jsonrpc2.NewCall(jsonrpc2.NewNumberID(3), "shutdown", nil)
	require.NoError(t, err)
	require.NoError(t, s.Handle(ctx, replyRecorder(&replyErr), shutdown))
	assert.NoError(t, replyErr)

	require.NoError(t, s.Handle(ctx, replyRecorder(&replyErr), call))
	require.ErrorAs(t, replyErr, &rpcErr)
	assert.Equal(t, jsonrpc2.InvalidRequest, rpcErr.Code)
}

func TestServeOverPipe(t *testing.T) {
	serverSide, clientSide := net.Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, serverSide, Options{}) }()

	diagnostics := make(chan protocol.PublishDiagnosticsParams, 4)
	client := jsonrpc2.NewConn(jsonrpc2.NewStream(clientSide))
	client.Go(ctx, func(ctx context.Context, reply jsonrpc2.Replier, req jsonrpc2.Request) error {
		if req.Method() == "textDocument/publishDiagnostics" {
			var p protocol.PublishDiagnosticsParams
			if err := json.Unmarshal(req.Params(), &p); err == nil {
				diagnostics <- p
			}
		}
		return reply(ctx, nil, nil)
	})
	defer client.Close()

	var init protocol.InitializeResult
	_, err := client.Call(ctx, "initialize", &protocol.InitializeParams{}, &init)
	require.NoError(t, err)
	assert.Equal(t, serverName, init.ServerInfo.Name)
	require.NoError(t, client.Notify(ctx, "initialized", &protocol.InitializedParams{}))

	require.NoError(t, client.Notify(ctx, "textDocument/didOpen", &protocol.DidOpenTextDocumentParams{
		TextDocument: protocol.TextDocumentItem{URI: testURI, Version: 1, Text: "(module (func (call $x)))"},
	}))
	select {
	case p := <-diagnostics:
		require.Len(t, p.Diagnostics, 1)
		assert.Equal(t, "Undefined function '$x'", p.Diagnostics[0].Message)
	case <-ctx.Done():
		t.Fatal("no diagnostics published")
	}

	var hover protocol.Hover
	_, err = client.Call(ctx, "textDocument/hover", &protocol.HoverParams{
		TextDocumentPositionParams: protocol.TextDocumentPositionParams{
			TextDocument: protocol.TextDocumentIdentifier{URI: testURI},
			Position:     protocol.Position{Line: 0, Character: 16},
		},
	}, &hover)
	require.NoError(t, err)
	assert.Contains(t, hover.Contents.Value, "call")

	_, err = client.Call(ctx, "textDocument/unknown", nil, nil)
	assert.Error(t, err)

	_, err = client.Call(ctx, "shutdown", nil, nil)
	require.NoError(t, err)
	require.NoError(t, client.Notify(ctx, "exit", nil))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-ctx.Done():
		t.Fatal("server did not exit")
	}
}
