package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/formatter"
	"github.com/EmNudge/wat-lsp/internal/logger"
)

func newFmtCmd(opts *options) *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "fmt <file>...",
		Short: "Format .wat files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, path := range args {
				content, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				out, err := formatter.String(string(content), formatter.DefaultOptions())
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				if !write {
					fmt.Fprint(cmd.OutOrStdout(), out)
					continue
				}
				if out == string(content) {
					continue
				}
				if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
					return err
				}
				logger.Debugf("formatted %s", path)
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write the result back to the file")
	return cmd
}
