package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/config"
	"github.com/EmNudge/wat-lsp/internal/logger"
)

// exitError ends the process with code after the command has already
// reported what went wrong.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	return e.msg
}

type options struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:   "watls",
		Short: "Language tooling for the WebAssembly text format",
		Long: `watls analyzes WebAssembly text (.wat) files.

It runs as a language server for editors and offers the same analysis on
the command line: diagnostics, formatting and symbol listings.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.load()
		},
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "configuration file (default: nearest "+config.FileName+")")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newLSPCmd(opts),
		newCheckCmd(opts),
		newFmtCmd(opts),
		newSymbolsCmd(opts),
		newCapturesCmd(opts),
		newGraphCmd(opts),
		newInitCmd(opts),
		newDocsCmd(opts),
	)
	return root
}

// load reads the configuration named by --config, or the nearest one
// above the working directory.
func (o *options) load() error {
	path := o.configPath
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			path = config.Find(wd)
		}
	}
	o.cfg = config.Default()
	if path != "" {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.cfg = cfg
	}
	level := o.cfg.Log.Level
	if o.logLevel != "" {
		level = o.logLevel
	}
	if err := logger.SetLevel(level); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return nil
}
