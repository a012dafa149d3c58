package logger

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerPrint(t *testing.T) {
	if os.Getenv("TEST_LOGGER_PRINT") == "1" {
		Printf("Test Printf %d", 123)
		Println("Test Println")
		return
	}
	cmd := exec.Command(os.Args[0], "-test.run=TestLoggerPrint")
	cmd.Env = append(os.Environ(), "TEST_LOGGER_PRINT=1")
	out, err := cmd.CombinedOutput()
	require.NoError(t, err)
	output := string(out)
	assert.Contains(t, output, "Test Printf 123")
	assert.Contains(t, output, "Test Println")
	assert.Contains(t, output, "[watls]")
}

func TestLoggerFatal(t *testing.T) {
	if os.Getenv("TEST_LOGGER_FATAL") == "1" {
		Fatal("Test Fatal")
		return
	}
	cmd := exec.Command(os.Args[0], "-test.run=TestLoggerFatal")
	cmd.Env = append(os.Environ(), "TEST_LOGGER_FATAL=1")
	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		return
	}
	t.Fatalf("process ran with err %v, want exit status 1", err)
}

func TestLoggerFatalf(t *testing.T) {
	if os.Getenv("TEST_LOGGER_FATALF") == "1" {
		Fatalf("Test Fatalf %d", 456)
		return
	}
	cmd := exec.Command(os.Args[0], "-test.run=TestLoggerFatalf")
	cmd.Env = append(os.Environ(), "TEST_LOGGER_FATALF=1")
	err := cmd.Run()
	if e, ok := err.(*exec.ExitError); ok && !e.Success() {
		return
	}
	t.Fatalf("process ran with err %v, want exit status 1", err)
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	defer SetLevel("info")

	Debugf("hidden %d", 1)
	assert.NotContains(t, buf.String(), "hidden")

	require.NoError(t, SetLevel("debug"))
	Debugf("shown %d", 2)
	assert.Contains(t, buf.String(), "shown 2")

	require.NoError(t, SetLevel("error"))
	Printf("quiet")
	Errorf("loud")
	assert.NotContains(t, buf.String(), "quiet")
	assert.True(t, strings.Contains(buf.String(), "loud"))

	assert.Error(t, SetLevel("verbose"))
}

func TestPrintlnSpacesOperands(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	Println("indexed", 3, "files")
	assert.Contains(t, buf.String(), "indexed 3 files\n")
}
