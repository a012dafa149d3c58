package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// run executes the root command with a config path inside dir, so the
// tests never pick up a configuration from the surrounding tree.
func run(t *testing.T, dir string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append(args, "--config", filepath.Join(dir, ".watls.toml")))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestCheckReportsErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.wat", "(module\n  (func $main\n    call $missing))\n")

	out, err := run(t, dir, "check", dir)
	var exit *exitError
	require.True(t, errors.As(err, &exit), "expected exitError, got %v", err)
	assert.Equal(t, 1, exit.code)
	assert.Contains(t, out, "bad.wat:3:10: ERROR:")
	assert.Contains(t, out, "$missing")
	assert.Contains(t, out, "Found 1 errors and 0 warnings in 1 files.")
}

func TestCheckClean(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "ok.wat", "(module (func $f (result i32) i32.const 1))\n")

	out, err := run(t, dir, "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found in 1 files.")
}

func TestCheckExclude(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, ".watls.toml", "[check]\nexclude = [\"**/vendor/**\"]\n")
	writeFile(t, dir, "vendor/bad.wat", "(module (func call $missing))\n")
	writeFile(t, dir, "main.wat", "(module (func $f))\n")

	out, err := run(t, dir, "check", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found in 1 files.")
}

func TestCheckDefaultSkipsVendor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "vendor/bad.wat", "(module (func call $missing))\n")
	writeFile(t, dir, "main.wat", "(module (func $f))\n")
	t.Chdir(dir)

	out, err := run(t, dir, "check")
	require.NoError(t, err)
	assert.Contains(t, out, "No issues found in 1 files.")
}

func TestCheckMissingPath(t *testing.T) {
	dir := t.TempDir()
	_, err := run(t, dir, "check", filepath.Join(dir, "nope.wat"))
	require.Error(t, err)
	var exit *exitError
	assert.False(t, errors.As(err, &exit))
}

func TestFmtWrite(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wat", "(module\n(func $f))")

	out, err := run(t, dir, "fmt", path)
	require.NoError(t, err)
	assert.Equal(t, "(module\n  (func $f))\n", out)

	_, err = run(t, dir, "fmt", "-w", path)
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "(module\n  (func $f))\n", string(content))
}

func TestFmtSyntaxError(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wat", "(module (func $f")
	_, err := run(t, dir, "fmt", path)
	assert.Error(t, err)
}

func TestSymbols(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wat", `(module
  (import "env" "log" (func $log (param i32)))
  (global $g (mut i32) (i32.const 0))
  (func $main (param $x i32) (local $y i64)))
`)
	out, err := run(t, dir, "symbols", path)
	require.NoError(t, err)
	assert.Contains(t, out, "function:\n")
	assert.Contains(t, out, `  0 (func $log (import "env" "log")`)
	assert.Contains(t, out, "  1 (func $main")
	assert.Contains(t, out, "    1 (local $y i64)")
	assert.Contains(t, out, "global:\n  0 (global $g (mut i32))")
	assert.NotContains(t, out, "memory:")
}

func TestCaptures(t *testing.T) {
	dir := t.TempDir()
	query := writeFile(t, dir, "q.scm", "; identifiers only\n(identifier \"^\\$m\") @name\n")
	path := writeFile(t, dir, "a.wat", "(module (func $main) (func $other))")

	out, err := run(t, dir, "captures", query, path)
	require.NoError(t, err)
	assert.Equal(t, "name identifier 1:15 $main\n", out)
}

func TestGraph(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wat", `(module
  (func $a)
  (func $b call $a))
`)
	out, err := run(t, dir, "graph", path)
	require.NoError(t, err)
	assert.Contains(t, out, "graph LR\n")
	assert.Contains(t, out, "f1 -->|call| f0")

	_, err = run(t, dir, "graph", "--focus", "$nope", path)
	assert.ErrorContains(t, err, "no function named $nope")
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "init", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote ")
	assert.FileExists(t, filepath.Join(dir, ".watls.toml"))

	_, err = run(t, dir, "init", dir)
	assert.Error(t, err)
}

func TestDocs(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, dir, "docs", "show", "i32.add")
	require.NoError(t, err)
	assert.Contains(t, out, "i32.add\n")

	_, err = run(t, dir, "docs", "show", "no.such")
	assert.Error(t, err)

	db := filepath.Join(dir, "docs.db")
	out, err = run(t, dir, "docs", "import", db)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported ")
	assert.FileExists(t, db)
}

func TestInvalidLogLevel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.wat", "(module)")
	_, err := run(t, dir, "symbols", path, "--log-level", "loud")
	assert.ErrorContains(t, err, "invalid log level")
}
