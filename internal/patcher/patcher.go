package patcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/sokinpui/melt.go/model"
)

// AbsentPlaceholder is the content edits are matched against when their
// target file does not exist. An empty search block ("\n") matches its
// first line, so a new file is written as the replace text followed by a
// newline.
const AbsentPlaceholder = "\n\n"

// ErrNotCaptured is returned by Result.ReadFile for a path no edit touched.
var ErrNotCaptured = errors.New("file was not read during apply")

// Reader reads the current content of a file. exists is false when the file
// is not on disk; an existing empty file reports exists with "".
type Reader interface {
	ReadFile(path string) (contents string, exists bool, err error)
}

// Outcome is what happened to one file.
type Outcome struct {
	Original    model.FileSnapshot
	Final       string
	Applied     int
	Strategies  []string
	Diagnostics []model.Diagnostic
}

// Result holds the outcome of every touched file, in the order files first
// appeared in the edits.
type Result struct {
	Paths    []string
	Outcomes map[string]*Outcome
}

// Final returns the final content of every file that had at least one edit
// applied.
func (r *Result) Final() map[string]string {
	finals := make(map[string]string)
	for path, out := range r.Outcomes {
		if out.Applied > 0 {
			finals[path] = out.Final
		}
	}
	return finals
}

// Diagnostics returns the diagnostics of all files in path order.
func (r *Result) Diagnostics() []model.Diagnostic {
	var diags []model.Diagnostic
	for _, path := range r.Paths {
		diags = append(diags, r.Outcomes[path].Diagnostics...)
	}
	return diags
}

// ReadFile returns the snapshot captured before any edit ran.
func (r *Result) ReadFile(path string) (string, bool, error) {
	out, ok := r.Outcomes[path]
	if !ok {
		return "", false, fmt.Errorf("%w: %s", ErrNotCaptured, path)
	}
	return out.Original.Contents, out.Original.Exists, nil
}

// Applier applies edits to files through a strategy cascade.
type Applier struct {
	Strategies Cascade
	Logger     *slog.Logger
}

// NewApplier returns an Applier using the default cascade.
func NewApplier(fuzzy bool) *Applier {
	return &Applier{
		Strategies: DefaultCascade(fuzzy),
		Logger:     slog.Default(),
	}
}

// Apply groups edits by file and applies each group in its own goroutine.
// Edits within a group run in order, each seeing the previous one's output.
// An edit no strategy can place is skipped and recorded as a diagnostic.
// Only read errors and cancellation before a group starts fail the call.
func (a *Applier) Apply(ctx context.Context, edits []model.EditRequest, reader Reader) (*Result, error) {
	var order []string
	groups := make(map[string][]model.EditRequest)
	for _, edit := range edits {
		if _, ok := groups[edit.FilePath]; !ok {
			order = append(order, edit.FilePath)
		}
		groups[edit.FilePath] = append(groups[edit.FilePath], edit)
	}

	outcomes := make([]*Outcome, len(order))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range order {
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, err := a.applyGroup(path, groups[path], reader)
			if err != nil {
				return err
			}
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Paths:    order,
		Outcomes: make(map[string]*Outcome, len(order)),
	}
	for i, path := range order {
		result.Outcomes[path] = outcomes[i]
	}
	return result, nil
}

func (a *Applier) applyGroup(path string, edits []model.EditRequest, reader Reader) (*Outcome, error) {
	contents, exists, err := reader.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	out := &Outcome{
		Original: model.FileSnapshot{Path: path, Contents: contents, Exists: exists},
		Final:    contents,
	}
	if !exists {
		out.Final = AbsentPlaceholder
	}

	for i, edit := range edits {
		updated, name, ok := a.Strategies.Run(out.Final, edit)
		if !ok {
			diag := diagnose(path, i, out.Final, edit)
			out.Diagnostics = append(out.Diagnostics, diag)
			a.logger().Debug("edit not applied", "path", path, "edit", i, "matched", len(diag.Matched), "near_line", diag.NearLine)
			continue
		}
		out.Final = updated
		out.Applied++
		out.Strategies = append(out.Strategies, name)
		a.logger().Debug("edit applied", "path", path, "edit", i, "strategy", name)
	}
	return out, nil
}

func (a *Applier) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}
