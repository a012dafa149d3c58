package main

import (
	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/lsp"
)

func newLSPCmd(opts *options) *cobra.Command {
	var visualize string
	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Run the language server over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return lsp.RunStdio(cmd.Context(), lsp.Options{
				ConfigPath:     opts.configPath,
				VisualizerAddr: visualize,
			})
		},
	}
	cmd.Flags().StringVar(&visualize, "visualize", "", "serve a live call graph on this address, e.g. localhost:7070")
	return cmd
}
