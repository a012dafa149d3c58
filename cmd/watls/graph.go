package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/index"
)

func newGraphCmd(opts *options) *cobra.Command {
	var focus string
	cmd := &cobra.Command{
		Use:   "graph <file>",
		Short: "Print the call graph of a module as a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := parseFile(args[0], opts)
			if err != nil {
				return err
			}
			var sym *index.Symbol
			if focus != "" {
				sym = snap.Symbols.Lookup(index.KindFunction, focus)
				if sym == nil {
					return fmt.Errorf("no function named %s", focus)
				}
			}
			fmt.Fprint(cmd.OutOrStdout(), snap.Mermaid(sym))
			return nil
		},
	}
	cmd.Flags().StringVar(&focus, "focus", "", "only draw the callers and callees of this function, e.g. $main")
	return cmd
}
