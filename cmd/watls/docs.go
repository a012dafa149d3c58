package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/docs"
)

func newDocsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Manage instruction documentation",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "import <database>",
			Short: "Copy the built-in documentation into a SQLite database",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := docs.Open(args[0], opts.cfg.Docs.CacheSize)
				if err != nil {
					return err
				}
				defer store.Close()
				n, err := store.Import()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %d entries into %s\n", n, args[0])
				return nil
			},
		},
		&cobra.Command{
			Use:   "show <mnemonic>",
			Short: "Print the documentation of one instruction",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := opts.cfg.OpenDocs()
				if err != nil {
					return err
				}
				defer store.Close()
				e, ok := store.Lookup(args[0])
				if !ok {
					return fmt.Errorf("no documentation for %s", args[0])
				}
				w := cmd.OutOrStdout()
				fmt.Fprintln(w, e.Mnemonic)
				if e.Signature != "" {
					fmt.Fprintf(w, "  %s\n", e.Signature)
				}
				fmt.Fprintf(w, "\n%s\n", e.Description)
				if e.Example != "" {
					fmt.Fprintf(w, "\n%s\n", e.Example)
				}
				return nil
			},
		},
	)
	return cmd
}
