package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/EmNudge/wat-lsp/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	logger.Sync()
	if err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		logger.Errorf("%v", err)
		logger.Sync()
		os.Exit(1)
	}
}
