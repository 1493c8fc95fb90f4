package melt_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-git/go-git/v5"

	"github.com/sokinpui/melt.go/cli"
	"github.com/sokinpui/melt.go/internal/parser"
	"github.com/sokinpui/melt.go/melt"
)

const modifyResponse = `I'll rename the greeting.
<change_code file="main.go">
<<<<<<< SEARCH
	println("hello")
=======
	println("goodbye")
>>>>>>> REPLACE
</change_code>
Done.
`

const createResponse = `<change_code file="docs/notes.md">
<<<<<<< SEARCH
=======
# Notes
>>>>>>> REPLACE
</change_code>
`

const originalMain = "package main\n\nfunc main() {\n\tprintln(\"hello\")\n}\n"

func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "main.go"), []byte(originalMain), 0644); err != nil {
		t.Fatalf("Failed to write main.go: %v", err)
	}
	return root
}

func newApp(t *testing.T, cfg cli.Config) *melt.App {
	t.Helper()
	cfg.NoTUI = true
	app, err := melt.New(&cfg)
	if err != nil {
		t.Fatalf("Failed to create melt app: %v", err)
	}
	return app
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read %s: %v", path, err)
	}
	return string(data)
}

func TestApplyUndoRedo(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root})
	ctx := context.Background()

	var progress []int
	app.SetProgressCallback(func(current, total int) {
		progress = append(progress, current)
		if total != 1 {
			t.Errorf("total = %d, want 1", total)
		}
	})

	summary, err := app.ApplyContent(ctx, modifyResponse)
	if err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	if len(summary.Modified) != 1 || summary.Modified[0] != "main.go" {
		t.Fatalf("Modified = %v, want [main.go]", summary.Modified)
	}
	if len(progress) != 2 || progress[1] != 1 {
		t.Errorf("progress = %v, want [0 1]", progress)
	}

	mainPath := filepath.Join(root, "main.go")
	if got := readFile(t, mainPath); !strings.Contains(got, `println("goodbye")`) {
		t.Fatalf("main.go was not updated:\n%s", got)
	}

	if _, err := app.Undo(ctx); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if got := readFile(t, mainPath); got != originalMain {
		t.Fatalf("Undo did not restore main.go:\n%s", got)
	}

	summary, err = app.Redo(ctx)
	if err != nil {
		t.Fatalf("Redo failed: %v", err)
	}
	if len(summary.Modified) != 1 {
		t.Errorf("Redo summary = %+v", summary)
	}
	if got := readFile(t, mainPath); !strings.Contains(got, `println("goodbye")`) {
		t.Fatalf("Redo did not reapply main.go:\n%s", got)
	}

	entries, current, err := app.History()
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(entries) != 1 || current != 0 {
		t.Errorf("History = %d entries at %d, want 1 at 0", len(entries), current)
	}
}

func TestWatchReturnsLastContent(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root})
	response := filepath.Join(t.TempDir(), "response.md")
	if err := os.WriteFile(response, []byte(modifyResponse), 0644); err != nil {
		t.Fatalf("Failed to write response: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var edits int
	content, err := app.Watch(ctx, response, func(r parser.Result) {
		edits = len(r.Edits)
		cancel()
	})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}
	if content != modifyResponse {
		t.Errorf("content = %q", content)
	}
	if edits != 1 {
		t.Errorf("edits = %d, want 1", edits)
	}
}

func TestApplyCreatesFileAndUndoRemovesIt(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root})
	ctx := context.Background()

	summary, err := app.ApplyContent(ctx, createResponse)
	if err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	if len(summary.Created) != 1 || summary.Created[0] != "docs/notes.md" {
		t.Fatalf("Created = %v, want [docs/notes.md]", summary.Created)
	}

	notes := filepath.Join(root, "docs", "notes.md")
	if got := readFile(t, notes); !strings.HasPrefix(got, "# Notes\n") {
		t.Fatalf("notes.md = %q", got)
	}

	if _, err := app.Undo(ctx); err != nil {
		t.Fatalf("Undo failed: %v", err)
	}
	if _, err := os.Stat(notes); !os.IsNotExist(err) {
		t.Errorf("notes.md should be removed by undo, stat err = %v", err)
	}
}

func TestUndoWithEmptyHistory(t *testing.T) {
	app := newApp(t, cli.Config{Root: newProject(t), Undo: true})

	summary, err := app.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if summary.Message != "No operation to undo." {
		t.Errorf("Message = %q", summary.Message)
	}
}

func TestUnmatchedEditIsReported(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root})

	response := `<change_code file="main.go">
<<<<<<< SEARCH
	println("not here")
=======
	println("x")
>>>>>>> REPLACE
</change_code>
`
	summary, err := app.ApplyContent(context.Background(), response)
	if err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	if len(summary.Failed) != 1 || summary.Failed[0] != "main.go" {
		t.Fatalf("Failed = %v, want [main.go]", summary.Failed)
	}
	if len(summary.Diagnostics) != 1 {
		t.Fatalf("Diagnostics = %+v", summary.Diagnostics)
	}
	if got := readFile(t, filepath.Join(root, "main.go")); got != originalMain {
		t.Errorf("main.go should be untouched:\n%s", got)
	}
}

func TestDryRunWritesNothing(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root, DryRun: true})

	summary, err := app.ApplyContent(context.Background(), modifyResponse)
	if err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	if len(summary.Modified) != 1 {
		t.Errorf("Modified = %v", summary.Modified)
	}
	if got := readFile(t, filepath.Join(root, "main.go")); got != originalMain {
		t.Errorf("dry run modified main.go:\n%s", got)
	}
	if _, err := os.Stat(filepath.Join(root, ".melt")); !os.IsNotExist(err) {
		t.Errorf("dry run should not create state, stat err = %v", err)
	}
}

func TestPartialResponseNeverApplies(t *testing.T) {
	root := newProject(t)
	app := newApp(t, cli.Config{Root: root, Partial: true})

	truncated := modifyResponse[:strings.Index(modifyResponse, "</change_code>")]
	plan, err := app.Plan(context.Background(), truncated)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(plan.Edits) != 1 {
		t.Errorf("Edits = %d, want 1", len(plan.Edits))
	}
	if !plan.ChangeSet.IsEmpty() {
		t.Errorf("partial plan should have an empty change set")
	}

	summary, err := app.Apply(context.Background(), plan)
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if !strings.HasPrefix(summary.Message, "Partial response") {
		t.Errorf("Message = %q", summary.Message)
	}
	if got := readFile(t, filepath.Join(root, "main.go")); got != originalMain {
		t.Errorf("partial response modified main.go")
	}
}

func TestPreview(t *testing.T) {
	app := newApp(t, cli.Config{Root: newProject(t)})

	diff, err := app.Preview(context.Background(), modifyResponse+createResponse)
	if err != nil {
		t.Fatalf("Preview failed: %v", err)
	}
	for _, want := range []string{
		"--- /dev/null",
		"+++ b/docs/notes.md",
		`-	println("hello")`,
		`+	println("goodbye")`,
	} {
		if !strings.Contains(diff, want) {
			t.Errorf("preview missing %q:\n%s", want, diff)
		}
	}
}

func TestExportHTML(t *testing.T) {
	root := newProject(t)
	out := filepath.Join(t.TempDir(), "narrative.html")
	app := newApp(t, cli.Config{Root: root, HTML: out})

	if _, err := app.ApplyContent(context.Background(), modifyResponse); err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	got := readFile(t, out)
	if !strings.Contains(got, "rename the greeting") {
		t.Errorf("HTML missing narrative:\n%s", got)
	}
}

func TestCommit(t *testing.T) {
	root := newProject(t)
	if _, err := git.PlainInit(root, false); err != nil {
		t.Fatalf("Failed to init repository: %v", err)
	}
	app := newApp(t, cli.Config{
		Root:        root,
		Commit:      true,
		Message:     "rename greeting",
		AuthorName:  "Test",
		AuthorEmail: "test@example.com",
	})

	summary, err := app.ApplyContent(context.Background(), modifyResponse)
	if err != nil {
		t.Fatalf("ApplyContent failed: %v", err)
	}
	if summary.Commit == "" {
		t.Fatalf("expected a commit hash, got %+v", summary)
	}

	repo, err := git.PlainOpen(root)
	if err != nil {
		t.Fatalf("Failed to open repository: %v", err)
	}
	head, err := repo.Head()
	if err != nil {
		t.Fatalf("Failed to read HEAD: %v", err)
	}
	if head.Hash().String() != summary.Commit {
		t.Errorf("HEAD = %s, summary commit = %s", head.Hash(), summary.Commit)
	}

	worktree, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Failed to open worktree: %v", err)
	}
	status, err := worktree.Status()
	if err != nil {
		t.Fatalf("Failed to read status: %v", err)
	}
	for path := range status {
		if strings.HasPrefix(path, ".melt") {
			t.Errorf("state directory shows up in git status: %s", path)
		}
	}
}

func TestParseError(t *testing.T) {
	app := newApp(t, cli.Config{Root: newProject(t)})

	_, err := app.Plan(context.Background(), "<<<<<<< SEARCH\n")
	if err == nil {
		t.Fatal("expected a parse error for a search marker outside a block")
	}
}
