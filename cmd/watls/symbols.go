package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/engine"
	"github.com/EmNudge/wat-lsp/internal/index"
)

func newSymbolsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "symbols <file>",
		Short: "List the index spaces of a module",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := parseFile(args[0], opts)
			if err != nil {
				return err
			}
			printSymbols(cmd.OutOrStdout(), snap.Symbols)
			return nil
		},
	}
}

func parseFile(path string, opts *options) (*engine.Snapshot, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return engine.Parse(string(content), 0, opts.cfg.EngineOptions(nil)), nil
}

func printSymbols(w io.Writer, t *index.Table) {
	for _, k := range index.ModuleKinds {
		space := t.Space(k)
		if space.Len() == 0 {
			continue
		}
		fmt.Fprintf(w, "%s:\n", k)
		for _, sym := range space.Symbols {
			fmt.Fprintf(w, "  %d %s\n", sym.Index, engine.Signature(sym))
			if k != index.KindFunction || sym.Func == nil || sym.Func.Locals == nil {
				continue
			}
			for _, local := range sym.Func.Locals.Symbols {
				fmt.Fprintf(w, "    %d %s\n", local.Index, engine.Signature(local))
			}
		}
	}
}
