// Package cache keeps the open documents of an editor session. Each
// document owns one immutable engine.Snapshot; edits build a new snapshot
// and swap it in atomically, so readers never see a half-applied change.
package cache

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

type Session struct {
	id   string
	opts atomic.Pointer[engine.Options]

	mu   sync.Mutex
	docs map[string]*Document
}

func NewSession(opts engine.Options) *Session {
	s := &Session{
		id:   uuid.NewString(),
		docs: make(map[string]*Document),
	}
	s.opts.Store(&opts)
	return s
}

func (s *Session) ID() string {
	return s.id
}

func (s *Session) Options() engine.Options {
	return *s.opts.Load()
}

// SetOptions re-parses every open document under opts and returns the new
// snapshots by URI.
func (s *Session) SetOptions(opts engine.Options) map[string]*engine.Snapshot {
	s.opts.Store(&opts)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*engine.Snapshot, len(s.docs))
	for uri, d := range s.docs {
		d.mu.Lock()
		old := d.Snapshot()
		snap := engine.Parse(old.Text(), old.Version, opts)
		d.snapshot.Store(snap)
		d.mu.Unlock()
		out[uri] = snap
	}
	return out
}

type Document struct {
	URI string

	// mu is held from reading the current text until the snapshot built
	// from it is stored. Readers only use snapshot.
	mu       sync.Mutex
	snapshot atomic.Pointer[engine.Snapshot]
}

func (d *Document) Snapshot() *engine.Snapshot {
	return d.snapshot.Load()
}

// Open starts tracking uri. Opening an already open document replaces it.
func (s *Session) Open(uri, text string, version int32) *engine.Snapshot {
	snap := engine.Parse(text, version, s.Options())
	d := &Document{URI: uri}
	d.snapshot.Store(snap)

	s.mu.Lock()
	s.docs[uri] = d
	s.mu.Unlock()
	return snap
}

func (s *Session) Close(uri string) {
	s.mu.Lock()
	delete(s.docs, uri)
	s.mu.Unlock()
}

func (s *Session) Document(uri string) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.docs[uri]
}

// Snapshot returns the current snapshot of uri, or nil when it is not open.
func (s *Session) Snapshot(uri string) *engine.Snapshot {
	if d := s.Document(uri); d != nil {
		return d.Snapshot()
	}
	return nil
}

func (s *Session) URIs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	uris := make([]string, 0, len(s.docs))
	for uri := range s.docs {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Change is one content change of a didChange notification. A nil Range
// replaces the whole document.
type Change struct {
	Range *parser.Range
	Text  string
}

// Update applies changes in order and re-parses the result.
func (s *Session) Update(uri string, version int32, changes []Change) (*engine.Snapshot, error) {
	d := s.Document(uri)
	if d == nil {
		return nil, fmt.Errorf("document %s is not open", uri)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	text := d.Snapshot().Text()
	for _, c := range changes {
		text = Apply(text, c)
	}
	snap := engine.Parse(text, version, s.Options())
	d.snapshot.Store(snap)
	return snap, nil
}

// Apply returns text with c applied. Positions past the end of a line or
// of the document are clamped.
func Apply(text string, c Change) string {
	if c.Range == nil {
		return c.Text
	}
	start := Offset(text, c.Range.Start)
	end := Offset(text, c.Range.End)
	if end < start {
		start, end = end, start
	}
	return text[:start] + c.Text + text[end:]
}

// Offset converts a position with a UTF-16 column to a byte offset.
func Offset(text string, pos parser.Position) int {
	off := 0
	for line := 0; line < pos.Line; line++ {
		i := indexNewline(text[off:])
		if i < 0 {
			return len(text)
		}
		off += i + 1
	}
	col := 0
	for off < len(text) && col < pos.Column {
		r, w := utf8.DecodeRuneInString(text[off:])
		if r == '\n' {
			break
		}
		n := utf16.RuneLen(r)
		if n < 0 {
			n = 1
		}
		col += n
		off += w
	}
	return off
}

func indexNewline(s string) int {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			return i
		}
	}
	return -1
}
