package cache

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

func rng(l1, c1, l2, c2 int) *parser.Range {
	return &parser.Range{
		Start: parser.Position{Line: l1, Column: c1},
		End:   parser.Position{Line: l2, Column: c2},
	}
}

func TestSessionID(t *testing.T) {
	s := NewSession(engine.DefaultOptions())
	_, err := uuid.Parse(s.ID())
	assert.NoError(t, err)
	assert.NotEqual(t, s.ID(), NewSession(engine.DefaultOptions()).ID())
}

func TestOpenUpdateClose(t *testing.T) {
	s := NewSession(engine.DefaultOptions())
	const uri = "file:///a.wat"

	snap := s.Open(uri, "(module (func $f))", 1)
	require.NotNil(t, snap)
	assert.Equal(t, int32(1), snap.Version)
	assert.Same(t, snap, s.Snapshot(uri))

	next, err := s.Update(uri, 2, []Change{{Range: rng(0, 15, 0, 16), Text: "g"}})
	require.NoError(t, err)
	assert.Equal(t, "(module (func $g))", next.Text())
	assert.Equal(t, int32(2), next.Version)
	assert.Equal(t, "(module (func $f))", snap.Text(), "old snapshot must not change")

	next, err = s.Update(uri, 3, []Change{{Text: "(module)"}})
	require.NoError(t, err)
	assert.Equal(t, "(module)", next.Text())

	assert.Equal(t, []string{uri}, s.URIs())
	s.Close(uri)
	assert.Nil(t, s.Snapshot(uri))
	_, err = s.Update(uri, 4, nil)
	assert.Error(t, err)
}

func TestApplySequentialChanges(t *testing.T) {
	text := "(module\n  (func $f)\n)"
	// Each range refers to the text produced by the previous change.
	changes := []Change{
		{Range: rng(1, 2, 1, 2), Text: ";; x\n  "},
		{Range: rng(2, 9, 2, 10), Text: "main"},
	}
	for _, c := range changes {
		text = Apply(text, c)
	}
	assert.Equal(t, "(module\n  ;; x\n  (func $main)\n)", text)
}

func TestOffsetUTF16(t *testing.T) {
	// U+1F600 takes two UTF-16 units and four bytes.
	text := ";; \U0001F600 x\n(module)"
	assert.Equal(t, 3, Offset(text, parser.Position{Line: 0, Column: 3}))
	assert.Equal(t, 7, Offset(text, parser.Position{Line: 0, Column: 5}))
	assert.Equal(t, 8, Offset(text, parser.Position{Line: 0, Column: 6}))
	// Past the end of the line clamps before the newline.
	assert.Equal(t, 9, Offset(text, parser.Position{Line: 0, Column: 99}))
	assert.Equal(t, 10, Offset(text, parser.Position{Line: 1, Column: 0}))
	assert.Equal(t, len(text), Offset(text, parser.Position{Line: 7, Column: 0}))
}

func TestSetOptionsReparses(t *testing.T) {
	s := NewSession(engine.DefaultOptions())
	s.Open("file:///a.wat", "(module (func (call $nope)))", 1)
	require.Len(t, s.Snapshot("file:///a.wat").Diagnostics(), 1)

	opts := engine.DefaultOptions()
	opts.Diagnostics.Unresolved = false
	snaps := s.SetOptions(opts)
	require.Contains(t, snaps, "file:///a.wat")
	assert.Empty(t, snaps["file:///a.wat"].Diagnostics())
	assert.Equal(t, int32(1), snaps["file:///a.wat"].Version)
}

func TestConcurrentReaders(t *testing.T) {
	s := NewSession(engine.DefaultOptions())
	const uri = "file:///a.wat"
	s.Open(uri, "(module (func $f))", 1)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				snap := s.Snapshot(uri)
				assert.NotNil(t, snap.Symbols)
			}
		}()
	}
	for v := int32(2); v < 20; v++ {
		_, err := s.Update(uri, v, []Change{{Text: "(module (func $f) (func $g))"}})
		require.NoError(t, err)
	}
	wg.Wait()
}

func TestSetOptionsKeepsConcurrentEdits(t *testing.T) {
	const uri = "file:///big.wat"
	var sb strings.Builder
	sb.WriteString("(module\n")
	for i := 0; i < 2000; i++ {
		fmt.Fprintf(&sb, "  (func $f%d (result i32) i32.const %d)\n", i, i)
	}
	sb.WriteString(")\n")

	for run := 0; run < 10; run++ {
		s := NewSession(engine.DefaultOptions())
		s.Open(uri, sb.String(), 1)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			opts := engine.DefaultOptions()
			opts.Snippets = false
			s.SetOptions(opts)
		}()
		go func() {
			defer wg.Done()
			time.Sleep(time.Millisecond)
			at := parser.Range{}
			_, err := s.Update(uri, 2, []Change{{Range: &at, Text: ";; edited\n"}})
			assert.NoError(t, err)
		}()
		wg.Wait()

		snap := s.Snapshot(uri)
		require.True(t, strings.HasPrefix(snap.Text(), ";; edited\n"), "run %d lost the edit", run)
		assert.Equal(t, int32(2), snap.Version)
	}
}
