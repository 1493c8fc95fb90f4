package melt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/sokinpui/melt.go/cli"
	"github.com/sokinpui/melt.go/internal/changeset"
	"github.com/sokinpui/melt.go/internal/fs"
	"github.com/sokinpui/melt.go/internal/lock"
	"github.com/sokinpui/melt.go/internal/nvim"
	"github.com/sokinpui/melt.go/internal/parser"
	"github.com/sokinpui/melt.go/internal/patcher"
	"github.com/sokinpui/melt.go/internal/render"
	"github.com/sokinpui/melt.go/internal/source"
	"github.com/sokinpui/melt.go/internal/state"
	"github.com/sokinpui/melt.go/internal/vcs"
	"github.com/sokinpui/melt.go/model"
)

// ProgressUpdate is a callback function to report progress.
type ProgressUpdate func(current, total int)

// App orchestrates parsing, patching and materializing responses.
type App struct {
	cfg              *cli.Config
	root             *fs.Root
	sourceProvider   *source.Provider
	logger           *slog.Logger
	progressCallback ProgressUpdate
}

// DetailedError enhances a standard error with a stack trace.
type DetailedError struct {
	Err   error
	Stack []byte
}

func (e *DetailedError) Error() string {
	return e.Err.Error()
}

func (e *DetailedError) Unwrap() error {
	return e.Err
}

// Plan is a response parsed and applied in memory, not yet written.
type Plan struct {
	Fragments []string
	Edits     []model.EditRequest
	Block     parser.BlockState
	Result    *patcher.Result // nil for a partial response
	ChangeSet model.ChangeSet
}

// New creates a new App. A nil cfg uses the defaults for the working
// directory.
func New(cfg *cli.Config) (*App, error) {
	if cfg == nil {
		cfg = &cli.Config{}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	root, err := fs.NewRoot(cfg.Root)
	if err != nil {
		return nil, err
	}

	return &App{
		cfg:            cfg,
		root:           root,
		sourceProvider: source.New(!cfg.NoTUI),
		logger:         slog.Default(),
	}, nil
}

// Config returns the validated configuration.
func (a *App) Config() *cli.Config {
	return a.cfg
}

// SetProgressCallback sets a function to be called as files are written.
func (a *App) SetProgressCallback(cb ProgressUpdate) {
	a.progressCallback = cb
}

// SetLogger replaces the logger, which defaults to slog.Default.
func (a *App) SetLogger(logger *slog.Logger) {
	a.logger = logger
}

// Parse splits content into narrative fragments and edit requests.
func (a *App) Parse(content string, partial bool) (parser.Result, error) {
	return parser.Parse(content, partial)
}

// Plan parses content and applies its edits in memory. A partial response
// is parsed leniently and always yields an empty change set.
func (a *App) Plan(ctx context.Context, content string) (*Plan, error) {
	parsed, err := parser.Parse(content, a.cfg.Partial)
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		Fragments: parsed.Fragments,
		Edits:     parsed.Edits,
		Block:     parsed.Block,
		ChangeSet: changeset.CreateEmpty(),
	}
	if a.cfg.Partial || len(parsed.Edits) == 0 {
		return plan, nil
	}

	applier := patcher.NewApplier(a.cfg.Fuzzy)
	applier.Logger = a.logger
	result, err := applier.Apply(ctx, parsed.Edits, a.root)
	if err != nil {
		return nil, fmt.Errorf("failed to apply edits: %w", err)
	}
	plan.Result = result

	plan.ChangeSet, err = changeset.Build(result.Final(), result)
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// Preview returns the unified diff the response would produce.
func (a *App) Preview(ctx context.Context, content string) (string, error) {
	plan, err := a.Plan(ctx, content)
	if err != nil {
		return "", err
	}
	return changeset.PreviewDiff(plan.ChangeSet), nil
}

// Apply writes a plan's change set to disk, committing it when configured,
// and records it for undo. Nothing is written in dry-run mode.
func (a *App) Apply(ctx context.Context, plan *Plan) (model.Summary, error) {
	summary := a.summarize(plan)
	if changeset.IsEmpty(plan.ChangeSet) {
		if summary.Message == "" {
			summary.Message = "No changes to apply."
		}
		return summary, nil
	}
	if a.cfg.DryRun {
		summary.Message = fmt.Sprintf("Dry run: %d file(s) would change.", plan.ChangeSet.Len())
		return summary, nil
	}

	treeLock, err := a.lockTree(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	defer treeLock.Release()

	writer, closeWriter, err := a.writer()
	if err != nil {
		return model.Summary{}, err
	}
	defer closeWriter()

	m := &changeset.Materializer{
		Root:   a.root.Dir(),
		Writer: a.withProgress(writer, plan.ChangeSet.Len()),
		Logger: a.logger,
	}

	for _, dir := range fs.MissingDirs(a.absPaths(plan.ChangeSet.Paths())) {
		a.logger.Info("creating directory", "dir", a.root.Rel(dir))
	}

	if a.cfg.Commit {
		repo, err := vcs.Open(a.root.Dir(), vcs.Author{Name: a.cfg.AuthorName, Email: a.cfg.AuthorEmail})
		if err != nil {
			return model.Summary{}, err
		}
		m.VCS = repo

		result, err := m.Commit(plan.ChangeSet, a.cfg.Message)
		if err != nil {
			return model.Summary{}, err
		}
		switch result.Status {
		case changeset.Committed:
			summary.Commit = result.Hash
		case changeset.NothingToCommit:
			summary.Message = "Files written; nothing to commit."
		case changeset.Failed:
			summary.Message = fmt.Sprintf("Files written; commit failed: %v", result.Err)
		}
	} else if err := m.ApplyToDisk(plan.ChangeSet); err != nil {
		return model.Summary{}, err
	}

	history, err := state.New(a.root.Dir())
	if err != nil {
		return summary, fmt.Errorf("files written but history not recorded: %w", err)
	}
	if _, err := history.Record(plan.ChangeSet, a.cfg.Message, summary.Commit); err != nil {
		return summary, fmt.Errorf("files written but history not recorded: %w", err)
	}
	return summary, nil
}

// Undo reverts the last applied response.
func (a *App) Undo(ctx context.Context) (model.Summary, error) {
	return a.walkHistory(ctx, (*state.Manager).Undo, state.ErrNothingToUndo, "Undid last operation.", "No operation to undo.")
}

// Redo reapplies the last undone response.
func (a *App) Redo(ctx context.Context) (model.Summary, error) {
	return a.walkHistory(ctx, (*state.Manager).Redo, state.ErrNothingToRedo, "Redid last undone operation.", "No operation to redo.")
}

func (a *App) walkHistory(
	ctx context.Context,
	step func(*state.Manager, state.Writer) (state.Entry, error),
	empty error,
	doneMsg, emptyMsg string,
) (model.Summary, error) {
	treeLock, err := a.lockTree(ctx)
	if err != nil {
		return model.Summary{}, err
	}
	defer treeLock.Release()

	history, err := state.New(a.root.Dir())
	if err != nil {
		return model.Summary{}, fmt.Errorf("failed to initialize state manager: %w", err)
	}

	writer, closeWriter, err := a.writer()
	if err != nil {
		return model.Summary{}, err
	}
	defer closeWriter()

	entry, err := step(history, writer)
	if errors.Is(err, empty) {
		return model.Summary{Message: emptyMsg}, nil
	}
	if err != nil {
		return model.Summary{}, err
	}
	return model.Summary{Modified: entry.Paths(), Message: doneMsg}, nil
}

// History returns the recorded entries, oldest first, and the index of the
// current one (-1 when everything is undone).
func (a *App) History() ([]state.Entry, int, error) {
	history, err := state.New(a.root.Dir())
	if err != nil {
		return nil, -1, fmt.Errorf("failed to initialize state manager: %w", err)
	}
	entries, current := history.Entries()
	return entries, current, nil
}

// Watch re-parses the response at path in partial mode every time it is
// written and reports each parse to onUpdate. When ctx is done it returns the
// last content seen, ready for a strict Plan.
func (a *App) Watch(ctx context.Context, path string, onUpdate func(parser.Result)) (string, error) {
	var last string
	err := source.Watch(ctx, path, func(content string) {
		last = content
		parsed, err := parser.Parse(content, true)
		if err != nil {
			a.logger.Debug("partial parse failed", "path", path, "err", err)
			return
		}
		onUpdate(parsed)
	})
	if err != nil {
		return "", fmt.Errorf("failed to watch %s: %w", path, err)
	}
	return last, nil
}

// Execute runs the configured operation: undo, redo, or reading a response
// from the configured source and applying it.
func (a *App) Execute(ctx context.Context) (summary model.Summary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &DetailedError{
				Err:   fmt.Errorf("internal panic: %v", r),
				Stack: debug.Stack(),
			}
		}
	}()

	switch {
	case a.cfg.Undo:
		return a.Undo(ctx)
	case a.cfg.Redo:
		return a.Redo(ctx)
	default:
		return a.processContent(ctx)
	}
}

func (a *App) processContent(ctx context.Context) (model.Summary, error) {
	content, _, err := a.sourceProvider.GetContent(a.cfg.File)
	if err != nil {
		return model.Summary{}, err
	}
	if content == "" {
		return model.Summary{Message: "Source is empty. Nothing to process."}, nil
	}
	return a.ApplyContent(ctx, content)
}

// ApplyContent plans content, exports its narrative when configured, and
// applies it.
func (a *App) ApplyContent(ctx context.Context, content string) (model.Summary, error) {
	plan, err := a.Plan(ctx, content)
	if err != nil {
		return model.Summary{}, err
	}
	if err := a.ExportHTML(plan.Fragments); err != nil {
		return model.Summary{}, err
	}
	return a.Apply(ctx, plan)
}

// ExportHTML writes the narrative to the configured HTML file, if any.
func (a *App) ExportHTML(fragments []string) error {
	if a.cfg.HTML == "" {
		return nil
	}
	doc, err := render.Document("melt", fragments)
	if err != nil {
		return fmt.Errorf("failed to render narrative: %w", err)
	}
	if err := os.WriteFile(a.cfg.HTML, []byte(doc), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", a.cfg.HTML, err)
	}
	return nil
}

// summarize classifies the change set and failed edits for display.
func (a *App) summarize(plan *Plan) model.Summary {
	var summary model.Summary
	for _, path := range plan.ChangeSet.Paths() {
		change, _ := plan.ChangeSet.Entry(path)
		if change.Original.Exists {
			summary.Modified = append(summary.Modified, path)
		} else {
			summary.Created = append(summary.Created, path)
		}
	}

	if plan.Result != nil {
		summary.Diagnostics = plan.Result.Diagnostics()
		seen := make(map[string]bool)
		for _, d := range summary.Diagnostics {
			if !seen[d.Path] {
				seen[d.Path] = true
				summary.Failed = append(summary.Failed, d.Path)
			}
		}
	}

	if a.cfg.Partial {
		summary.Message = fmt.Sprintf("Partial response: %d edit(s) parsed, nothing applied.", len(plan.Edits))
	}
	return summary
}

// lockTree takes the working-tree lock inside the state directory.
func (a *App) lockTree(ctx context.Context) (*lock.TreeLock, error) {
	stateDir, err := state.EnsureDir(a.root.Dir())
	if err != nil {
		return nil, err
	}
	return lock.Acquire(ctx, stateDir, a.cfg.LockTimeout)
}

// writer returns the configured filesystem writer and its cleanup.
func (a *App) writer() (state.Writer, func(), error) {
	if !a.cfg.Nvim {
		return fs.OSWriter{}, func() {}, nil
	}
	manager, err := nvim.New()
	if err != nil {
		return nil, nil, err
	}
	return manager, manager.Close, nil
}

func (a *App) withProgress(w state.Writer, total int) state.Writer {
	if a.progressCallback == nil {
		return w
	}
	a.progressCallback(0, total)
	return &progressWriter{Writer: w, total: total, cb: a.progressCallback}
}

func (a *App) absPaths(paths []string) []string {
	abs := make([]string, 0, len(paths))
	for _, p := range paths {
		if resolved, err := a.root.Resolve(p); err == nil {
			abs = append(abs, resolved)
		}
	}
	return abs
}

type progressWriter struct {
	state.Writer
	total   int
	current int
	cb      ProgressUpdate
}

func (w *progressWriter) WriteFile(path string, data []byte) error {
	err := w.Writer.WriteFile(path, data)
	w.current++
	w.cb(w.current, w.total)
	return err
}
