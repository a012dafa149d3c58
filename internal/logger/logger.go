package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu    sync.Mutex
	level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	// Default logger writes to stderr; stdout belongs to the protocol.
	std = build(os.Stderr)
)

func build(w io.Writer) *zap.SugaredLogger {
	cfg := zap.NewDevelopmentEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeCaller = nil
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(cfg), zapcore.AddSync(w), level)
	return zap.New(core).Named("[watls]").Sugar()
}

func SetOutput(output io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	std = build(output)
}

// SetLevel accepts debug, info, warn or error.
func SetLevel(name string) error {
	return level.UnmarshalText([]byte(name))
}

func get() *zap.SugaredLogger {
	mu.Lock()
	defer mu.Unlock()
	return std
}

func Printf(format string, v ...interface{}) {
	get().Infof(format, v...)
}

func Println(v ...interface{}) {
	get().Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func Debugf(format string, v ...interface{}) {
	get().Debugf(format, v...)
}

func Warnf(format string, v ...interface{}) {
	get().Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	get().Errorf(format, v...)
}

func Fatal(v ...interface{}) {
	get().Fatal(v...)
}

func Fatalf(format string, v ...interface{}) {
	get().Fatalf(format, v...)
}

func Sync() {
	_ = get().Sync()
}
