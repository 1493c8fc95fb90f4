package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/sokinpui/melt.go/cli"
	"github.com/sokinpui/melt.go/internal/logging"
	"github.com/sokinpui/melt.go/internal/parser"
	"github.com/sokinpui/melt.go/internal/render"
	"github.com/sokinpui/melt.go/internal/source"
	"github.com/sokinpui/melt.go/internal/tui"
	"github.com/sokinpui/melt.go/internal/ui"
	"github.com/sokinpui/melt.go/melt"
	"github.com/sokinpui/melt.go/model"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, tui.ErrAborted) {
			ui.Error("Error: %v", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "melt",
		Short: "Apply the edits in a model response to the working tree",
		Long: "melt reads a model response from a file, piped stdin or the clipboard,\n" +
			"applies its search/replace blocks and optionally commits the result.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, nil)
		},
	}
	cli.BindFlags(root.PersistentFlags())

	root.AddCommand(
		newApplyCmd(),
		newCommitCmd(),
		newParseCmd(),
		newPreviewCmd(),
		newUndoCmd(),
		newRedoCmd(),
		newHistoryCmd(),
		newWatchCmd(),
	)
	return root
}

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply [FILE]",
		Short: "Apply a response to the working tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd, args)
		},
	}
}

func newCommitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commit [FILE]",
		Short: "Apply a response and commit the touched files",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Flags().Set("commit", "true"); err != nil {
				return err
			}
			return runApply(cmd, args)
		},
	}
}

func newParseCmd() *cobra.Command {
	var blocks bool
	cmd := &cobra.Command{
		Use:   "parse [FILE]",
		Short: "Print the narrative and the edits of a response without applying it",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, args)
			if err != nil {
				return err
			}
			cfg := app.Config()
			content, err := readSource(cfg)
			if err != nil {
				return err
			}

			result, err := app.Parse(content, cfg.Partial)
			if err != nil {
				return err
			}
			if err := app.ExportHTML(result.Fragments); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if blocks {
				codeBlocks, err := render.CodeBlocks(result.Fragments, render.ChangeLang)
				if err != nil {
					return err
				}
				for i, b := range codeBlocks {
					fmt.Fprintf(out, "--- block %d ---\n%s", i+1, b.Content)
				}
			} else {
				fmt.Fprint(out, render.Markdown(result.Fragments))
			}

			ui.Header("\n--- %d edit(s) ---", len(result.Edits))
			for i, edit := range result.Edits {
				ui.Path("%d. %s (-%d/+%d lines)", i+1, edit.FilePath, lineCount(edit.Search), lineCount(edit.Replace))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&blocks, "blocks", false, "Print the raw change blocks instead of the narrative.")
	return cmd
}

func newPreviewCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preview [FILE]",
		Short: "Print the unified diff a response would produce",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, args)
			if err != nil {
				return err
			}
			content, err := readSource(app.Config())
			if err != nil {
				return err
			}

			plan, err := app.Plan(cmd.Context(), content)
			if err != nil {
				return err
			}
			diff, err := app.Preview(cmd.Context(), content)
			if err != nil {
				return err
			}
			ui.PrintDiff(cmd.OutOrStdout(), diff)
			if plan.Result != nil {
				for _, d := range plan.Result.Diagnostics() {
					ui.PrintDiagnostic(d)
				}
			}
			return nil
		},
	}
}

func newUndoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Revert the last applied response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			summary, err := app.Undo(cmd.Context())
			if err != nil {
				return err
			}
			if len(summary.Modified) == 0 {
				ui.Info(summary.Message)
				return nil
			}
			ui.PrintRevertSummary(summary.Modified)
			return nil
		},
	}
}

func newRedoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Reapply the last undone response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			summary, err := app.Redo(cmd.Context())
			if err != nil {
				return err
			}
			if len(summary.Modified) == 0 {
				ui.Info(summary.Message)
				return nil
			}
			ui.PrintRedoSummary(summary.Modified)
			return nil
		},
	}
}

func newHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List applied responses that can be undone or redone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			entries, current, err := app.History()
			if err != nil {
				return err
			}
			if len(entries) == 0 {
				ui.Info("No history.")
				return nil
			}

			out := cmd.OutOrStdout()
			for i, e := range entries {
				marker := " "
				if i == current {
					marker = "*"
				}
				when := time.Unix(e.Timestamp, 0).Format(time.DateTime)
				fmt.Fprintf(out, "%s %s  %s  %d file(s)  %s\n", marker, e.ID[:8], when, len(e.Files), e.Message)
			}
			return nil
		},
	}
}

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch FILE",
		Short: "Follow a response file while it is being written, then apply it",
		Long: "watch re-parses FILE every time it changes and shows what has been\n" +
			"parsed so far. Press enter (or interrupt without the TUI) to apply the\n" +
			"final content.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := setup(cmd, nil)
			if err != nil {
				return err
			}
			path := args[0]

			if !app.Config().NoTUI {
				m := tui.NewWatch(cmd.Context(), app, path)
				return runProgram(m)
			}

			// Without the TUI the watch runs until interrupted.
			content, err := app.Watch(cmd.Context(), path, func(r parser.Result) {
				ui.Info("%d fragment(s), %d edit(s)", len(r.Fragments), len(r.Edits))
			})
			if err != nil {
				return err
			}
			if content == "" {
				ui.Info("Source is empty. Nothing to process.")
				return nil
			}
			return applyWithProgress(context.Background(), app, content)
		},
	}
}

// setup loads the configuration, installs the logger and creates the app.
// A positional FILE argument overrides --file.
func setup(cmd *cobra.Command, args []string) (*melt.App, error) {
	if len(args) == 1 {
		if err := cmd.Flags().Set("file", args[0]); err != nil {
			return nil, err
		}
	}
	cfg, err := cli.Load(cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.LogLevel, os.Stderr)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	app, err := melt.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	app.SetLogger(logger)
	return app, nil
}

func runApply(cmd *cobra.Command, args []string) error {
	app, err := setup(cmd, args)
	if err != nil {
		return err
	}
	cfg := app.Config()

	if !cfg.NoTUI && !cfg.DryRun {
		return runProgram(tui.New(cmd.Context(), app))
	}

	if cfg.Undo || cfg.Redo {
		summary, err := app.Execute(cmd.Context())
		if err != nil {
			return err
		}
		printSummary(summary)
		return nil
	}

	content, err := readSource(cfg)
	if err != nil {
		return err
	}
	if content == "" {
		ui.Info("Source is empty. Nothing to process.")
		return nil
	}
	if cfg.DryRun {
		diff, err := app.Preview(cmd.Context(), content)
		if err != nil {
			return err
		}
		ui.PrintDiff(cmd.OutOrStdout(), diff)
	}
	return applyWithProgress(cmd.Context(), app, content)
}

func applyWithProgress(ctx context.Context, app *melt.App, content string) error {
	var bar *ui.ProgressBar
	app.SetProgressCallback(func(current, total int) {
		if bar == nil {
			bar = ui.NewProgressBar(total, "Writing")
			bar.Start()
			return
		}
		bar.Increment()
		if current == total {
			bar.Finish()
		}
	})

	summary, err := app.ApplyContent(ctx, content)
	if err != nil {
		return err
	}
	printSummary(summary)
	return nil
}

func printSummary(s model.Summary) {
	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0 && s.Message != "" {
		ui.Info(s.Message)
		return
	}
	ui.PrintApplySummary(s)
}

func runProgram(m *tui.Model) error {
	p := tea.NewProgram(m)
	m.SetProgram(p)
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running program: %w", err)
	}
	return m.Err()
}

func readSource(cfg *cli.Config) (string, error) {
	content, _, err := source.New(false).GetContent(cfg.File)
	return content, err
}

func lineCount(s string) int {
	return strings.Count(s, "\n")
}
