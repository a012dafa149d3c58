// Package config loads the optional .watls.toml project file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/EmNudge/wat-lsp/internal/docs"
	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/schema"
	"github.com/EmNudge/wat-lsp/internal/validator"
)

const FileName = ".watls.toml"

type Log struct {
	Level string `toml:"level"`
}

type Diagnostics struct {
	Syntax     bool `toml:"syntax"`
	Duplicates bool `toml:"duplicates"`
	Unresolved bool `toml:"unresolved"`
	Arity      bool `toml:"arity"`
	Unknown    bool `toml:"unknown_instructions"`
	Immutable  bool `toml:"immutable_globals"`
}

type Completion struct {
	Expansion bool `toml:"expansion"`
	Snippets  bool `toml:"snippets"`
}

type Docs struct {
	// Database is a SQLite file, or a YAML file when it ends in .yaml or
	// .yml. Relative paths are resolved against the config file.
	Database  string `toml:"database,omitempty"`
	CacheSize int    `toml:"cache_size"`
}

type Check struct {
	Exclude []string `toml:"exclude"`
}

type Config struct {
	Log         Log         `toml:"log"`
	Diagnostics Diagnostics `toml:"diagnostics"`
	Completion  Completion  `toml:"completion"`
	Docs        Docs        `toml:"docs"`
	Check       Check       `toml:"check"`

	// Path is the file the config was loaded from, empty for defaults.
	Path string `toml:"-"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info"},
		Diagnostics: Diagnostics{
			Syntax:     true,
			Duplicates: true,
			Unresolved: true,
			Arity:      true,
			Unknown:    true,
			Immutable:  true,
		},
		Completion: Completion{Expansion: true, Snippets: true},
		Docs:       Docs{CacheSize: docs.DefaultCacheSize},
		Check:      Check{Exclude: []string{"**/vendor/**"}},
	}
}

// Parse validates data against the configuration schema and applies it
// over the defaults. Keys left out keep their default value.
func Parse(data []byte) (Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	if err := schema.Default().Validate(raw); err != nil {
		return Config{}, err
	}
	cfg := Default()
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Load reads the config at path. A missing file yields the defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, err
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("%s: %w", path, err)
	}
	cfg.Path = path
	return cfg, nil
}

// Find looks for FileName in dir and each of its parents and returns the
// first match, or "" when there is none.
func Find(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// WriteDefault creates path with the default configuration. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	data, err := toml.Marshal(Default())
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func (c Config) ValidatorOptions() validator.Options {
	d := c.Diagnostics
	return validator.Options{
		Syntax:     d.Syntax,
		Duplicates: d.Duplicates,
		Unresolved: d.Unresolved,
		Arity:      d.Arity,
		Unknown:    d.Unknown,
		Immutable:  d.Immutable,
	}
}

func (c Config) EngineOptions(lookup docs.Lookup) engine.Options {
	return engine.Options{
		Docs:        lookup,
		Expansion:   c.Completion.Expansion,
		Snippets:    c.Completion.Snippets,
		Diagnostics: c.ValidatorOptions(),
	}
}

// DocsPath returns the documentation database path resolved against the
// directory of the config file.
func (c Config) DocsPath() string {
	p := c.Docs.Database
	if p == "" || filepath.IsAbs(p) || c.Path == "" {
		return p
	}
	return filepath.Join(filepath.Dir(c.Path), p)
}

// OpenDocs returns the documentation store the config asks for. The caller
// closes it.
func (c Config) OpenDocs() (*docs.Store, error) {
	p := c.DocsPath()
	switch {
	case p == "":
		return docs.Default(), nil
	case strings.HasSuffix(p, ".yaml"), strings.HasSuffix(p, ".yml"):
		return docs.LoadFile(p)
	}
	return docs.Open(p, c.Docs.CacheSize)
}
