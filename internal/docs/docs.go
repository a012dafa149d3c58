// Package docs serves instruction documentation for hover. The built-in
// table is embedded; a SQLite database can override or extend it.
package docs

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"
	"gopkg.in/yaml.v3"
)

//go:embed instructions.yaml
var defaultYAML []byte

const DefaultCacheSize = 256

type Entry struct {
	Mnemonic    string `yaml:"-"`
	Description string `yaml:"description"`
	Signature   string `yaml:"signature,omitempty"`
	Example     string `yaml:"example,omitempty"`
}

// Lookup is what the query providers need from a documentation source.
type Lookup interface {
	Lookup(mnemonic string) (Entry, bool)
}

type Store struct {
	entries map[string]Entry
	db      *sql.DB
	cache   *lru.Cache[string, Entry]
	mu      sync.Mutex
}

func parse(content []byte) (map[string]Entry, error) {
	var raw map[string]Entry
	if err := yaml.Unmarshal(content, &raw); err != nil {
		return nil, err
	}
	for name, e := range raw {
		e.Mnemonic = name
		raw[name] = e
	}
	return raw, nil
}

// Default returns the built-in embedded documentation.
func Default() *Store {
	entries, err := parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("failed to parse embedded instruction docs: %v", err))
	}
	return &Store{entries: entries}
}

// LoadFile reads a YAML documentation file and layers it over the
// built-in table.
func LoadFile(path string) (*Store, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	extra, err := parse(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %v", path, err)
	}
	s := Default()
	for name, e := range extra {
		s.entries[name] = e
	}
	return s, nil
}

const schemaSQL = `CREATE TABLE IF NOT EXISTS instructions (
	mnemonic    TEXT PRIMARY KEY,
	description TEXT NOT NULL,
	signature   TEXT NOT NULL DEFAULT '',
	example     TEXT NOT NULL DEFAULT ''
)`

// Open attaches a SQLite database to the built-in table. Rows in the
// database win over embedded entries. Database lookups are cached.
func Open(path string, cacheSize int) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare %s: %v", path, err)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, Entry](cacheSize)
	if err != nil {
		db.Close()
		return nil, err
	}
	s := Default()
	s.db = db
	s.cache = cache
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Lookup(mnemonic string) (Entry, bool) {
	if s.db != nil {
		if e, ok := s.cache.Get(mnemonic); ok {
			return e, e.Description != ""
		}
		e, err := s.query(mnemonic)
		if err == nil {
			s.cache.Add(mnemonic, e)
			if e.Description != "" {
				return e, true
			}
		}
	}
	e, ok := s.entries[mnemonic]
	return e, ok
}

func (s *Store) query(mnemonic string) (Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := Entry{Mnemonic: mnemonic}
	row := s.db.QueryRow(`SELECT description, signature, example FROM instructions WHERE mnemonic = ?`, mnemonic)
	err := row.Scan(&e.Description, &e.Signature, &e.Example)
	if err == sql.ErrNoRows {
		// Cached as an empty entry so misses skip the database too.
		return e, nil
	}
	return e, err
}

// Put stores an entry in the attached database.
func (s *Store) Put(e Entry) error {
	if s.db == nil {
		return fmt.Errorf("no database attached")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT INTO instructions (mnemonic, description, signature, example)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(mnemonic) DO UPDATE SET description = excluded.description,
			signature = excluded.signature, example = excluded.example`,
		e.Mnemonic, e.Description, e.Signature, e.Example)
	if err == nil {
		s.cache.Remove(e.Mnemonic)
	}
	return err
}

// Import copies every entry of the in-memory table into the attached
// database and returns how many rows were written.
func (s *Store) Import() (int, error) {
	n := 0
	for _, name := range s.Mnemonics() {
		if err := s.Put(s.entries[name]); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Mnemonics lists the embedded and file-loaded entries in lexical order.
func (s *Store) Mnemonics() []string {
	out := make([]string, 0, len(s.entries))
	for name := range s.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
