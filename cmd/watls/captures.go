package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/parser"
)

func newCapturesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "captures <query-file> <file>",
		Short: "Run a capture query against a .wat file",
		Long: `Captures prints every node matched by the patterns of the query file.
Each pattern line has the form

  (kind) @capture
  (kind "regexp") @capture`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			q, err := parser.NewQuery(string(src))
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			content, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}
			tree := parser.Parse(string(content))
			w := cmd.OutOrStdout()
			for _, c := range q.Captures(tree) {
				start := c.Node.Range().Start
				fmt.Fprintf(w, "%s %s %d:%d %s\n", c.Name, c.Node.Kind, start.Line+1, start.Column+1, c.Node.Text)
			}
			return nil
		},
	}
}
