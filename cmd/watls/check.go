package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/EmNudge/wat-lsp/internal/index"
	"github.com/EmNudge/wat-lsp/internal/validator"
)

func newCheckCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "check [paths...]",
		Short: "Report diagnostics for .wat files",
		Long: `Check parses and validates every given file, and every .wat file below
every given directory. Paths matching the exclude patterns of the
configuration are skipped. The exit code is 1 when any error is found.`,
		Example: `  watls check
  watls check src/ lib/util.wat`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"."}
			}
			errs, _, err := runCheck(cmd.Context(), cmd.OutOrStdout(), args, opts)
			if err != nil {
				return err
			}
			if errs > 0 {
				return &exitError{code: 1, msg: fmt.Sprintf("%d errors", errs)}
			}
			return nil
		},
	}
}

// collect expands directories and drops excluded paths.
func collect(paths []string, exclude *index.Matcher) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !exclude.Match(p) {
				files = append(files, p)
			}
			continue
		}
		found, err := index.ScanDirectory(p, exclude)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	return files, nil
}

type reportStyles struct {
	location lipgloss.Style
	err      lipgloss.Style
	warning  lipgloss.Style
	summary  lipgloss.Style
}

func newReportStyles(w io.Writer) reportStyles {
	r := lipgloss.NewRenderer(w)
	return reportStyles{
		location: r.NewStyle().Bold(true),
		err:      r.NewStyle().Foreground(lipgloss.Color("#FF6B6B")).Bold(true),
		warning:  r.NewStyle().Foreground(lipgloss.Color("#F8B229")).Bold(true),
		summary:  r.NewStyle().Foreground(lipgloss.Color("#666666")),
	}
}

// runCheck writes one "file:line:col: LEVEL: message" line per diagnostic
// and returns the error and warning counts.
func runCheck(ctx context.Context, w io.Writer, paths []string, opts *options) (int, int, error) {
	exclude, err := index.NewMatcher(opts.cfg.Check.Exclude)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid exclude pattern: %w", err)
	}
	files, err := collect(paths, exclude)
	if err != nil {
		return 0, 0, err
	}
	loaded, err := index.LoadFiles(ctx, files)
	if err != nil {
		return 0, 0, err
	}
	results, err := validator.ValidateFiles(ctx, loaded, opts.cfg.ValidatorOptions())
	if err != nil {
		return 0, 0, err
	}

	st := newReportStyles(w)
	errs, warnings := 0, 0
	for _, diags := range results {
		for _, d := range diags {
			level := st.err.Render(d.Level.String())
			if d.Level == validator.LevelWarning {
				level = st.warning.Render(d.Level.String())
				warnings++
			} else {
				errs++
			}
			loc := st.location.Render(fmt.Sprintf("%s:%d:%d:", d.File, d.Range.Start.Line+1, d.Range.Start.Column+1))
			fmt.Fprintf(w, "%s %s: %s\n", loc, level, d.Message)
		}
	}

	if errs+warnings > 0 {
		fmt.Fprintln(w, st.summary.Render(fmt.Sprintf("\nFound %d errors and %d warnings in %d files.", errs, warnings, len(files))))
	} else {
		fmt.Fprintln(w, st.summary.Render(fmt.Sprintf("No issues found in %d files.", len(files))))
	}
	return errs, warnings, nil
}
