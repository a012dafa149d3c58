package index

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/sync/errgroup"

	"github.com/EmNudge/wat-lsp/internal/logger"
	"github.com/EmNudge/wat-lsp/internal/parser"
)

// File is one analyzed document on disk. Files never see each other's
// symbols.
type File struct {
	Path  string
	Text  string
	Tree  *parser.Tree
	Table *Table
}

// Matcher reports whether a path is excluded by any of a set of glob
// patterns. '/' separates path segments and '**' crosses them.
type Matcher struct {
	globs []glob.Glob
}

func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, err
		}
		m.globs = append(m.globs, g)
	}
	return m, nil
}

// Match tests a file path. A leading "**/" also matches at the start of a
// relative path, so "**/vendor/**" excludes both vendor/x.wat and
// src/vendor/x.wat.
func (m *Matcher) Match(path string) bool {
	return m.match(filepath.ToSlash(filepath.Clean(path)))
}

// MatchDir tests a directory. It also tries the path with a trailing '/'
// so that "vendor/**" prunes the vendor directory itself.
func (m *Matcher) MatchDir(path string) bool {
	p := filepath.ToSlash(filepath.Clean(path))
	return m.match(p) || m.match(strings.TrimSuffix(p, "/")+"/")
}

func (m *Matcher) match(path string) bool {
	if m == nil {
		return false
	}
	candidates := []string{path}
	if !strings.HasPrefix(path, "/") {
		candidates = append(candidates, "/"+path)
	}
	for _, g := range m.globs {
		for _, c := range candidates {
			if g.Match(c) {
				return true
			}
		}
	}
	return false
}

// ScanDirectory collects every .wat file below root that exclude does not
// match.
func ScanDirectory(root string, exclude *Matcher) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && exclude.MatchDir(path) {
				return filepath.SkipDir
			}
			return nil
		}
		if exclude.Match(path) {
			return nil
		}
		if strings.HasSuffix(info.Name(), ".wat") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

// LoadFiles parses and indexes files in parallel. The result follows the
// order of paths. Reading stops at the first I/O error.
func LoadFiles(ctx context.Context, paths []string) ([]*File, error) {
	out := make([]*File, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			logger.Debugf("indexing: %s", path)
			content, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			text := string(content)
			tree := parser.Parse(text)
			out[i] = &File{Path: path, Text: text, Tree: tree, Table: Build(tree)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
