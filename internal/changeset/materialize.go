package changeset

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/sokinpui/melt.go/internal/fs"
	"github.com/sokinpui/melt.go/model"
)

// ErrNoVCS is reported when a commit is requested without a version-control
// collaborator.
var ErrNoVCS = errors.New("no version control configured")

// Writer creates directories and writes files. Paths are absolute.
type Writer interface {
	MkdirAll(dir string) error
	WriteFile(path string, data []byte) error
}

// VCS stages and commits paths relative to the project root.
type VCS interface {
	Stage(paths []string) error
	HasStagedChanges() (bool, error)
	Commit(message string) (string, error)
}

// CommitStatus is the outcome of a commit attempt.
type CommitStatus int

const (
	Committed CommitStatus = iota
	NothingToCommit
	Failed
)

func (s CommitStatus) String() string {
	switch s {
	case Committed:
		return "committed"
	case NothingToCommit:
		return "nothing to commit"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CommitResult reports what Commit did. Hash is set only when Status is
// Committed and Err only when it is Failed.
type CommitResult struct {
	Status CommitStatus
	Hash   string
	Err    error
}

// Materializer writes change sets under Root and optionally commits them.
type Materializer struct {
	Root   string
	Writer Writer
	VCS    VCS
	Logger *slog.Logger
}

// ApplyToDisk overwrites every file in set with its updated content,
// creating parent directories as needed. Every path is checked against Root
// before anything is written.
func (m *Materializer) ApplyToDisk(set model.ChangeSet) error {
	if set.IsEmpty() {
		return nil
	}

	paths := set.Paths()
	targets := make([]string, len(paths))
	for i, path := range paths {
		abs, err := fs.Resolve(m.Root, path)
		if err != nil {
			return err
		}
		targets[i] = abs
	}

	for i, path := range paths {
		change, _ := set.Entry(path)
		if err := m.Writer.MkdirAll(filepath.Dir(targets[i])); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
		if err := m.Writer.WriteFile(targets[i], []byte(change.Updated.Contents)); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		m.logger().Debug("wrote file", "path", path, "bytes", len(change.Updated.Contents))
	}
	return nil
}

// Commit writes set to disk, stages its paths and commits them with
// message. Disk errors are returned; version-control outcomes, including
// failures, are reported in the CommitResult.
func (m *Materializer) Commit(set model.ChangeSet, message string) (CommitResult, error) {
	if set.IsEmpty() {
		return CommitResult{Status: NothingToCommit}, nil
	}
	if err := m.ApplyToDisk(set); err != nil {
		return CommitResult{}, err
	}
	if m.VCS == nil {
		return CommitResult{Status: Failed, Err: ErrNoVCS}, nil
	}

	if err := m.VCS.Stage(set.Paths()); err != nil {
		return CommitResult{Status: Failed, Err: fmt.Errorf("stage: %w", err)}, nil
	}
	staged, err := m.VCS.HasStagedChanges()
	if err != nil {
		return CommitResult{Status: Failed, Err: fmt.Errorf("status: %w", err)}, nil
	}
	if !staged {
		return CommitResult{Status: NothingToCommit}, nil
	}

	hash, err := m.VCS.Commit(message)
	if err != nil {
		return CommitResult{Status: Failed, Err: fmt.Errorf("commit: %w", err)}, nil
	}
	m.logger().Info("committed change set", "hash", hash, "files", set.Len())
	return CommitResult{Status: Committed, Hash: hash}, nil
}

// PreviewDiff renders a unified diff of every entry, in path order. It is
// computed from the snapshots alone, so it may differ from what a later
// commit records if the files change in between.
func (m *Materializer) PreviewDiff(set model.ChangeSet) string {
	return PreviewDiff(set)
}

// PreviewDiff is Materializer.PreviewDiff without a Materializer.
func PreviewDiff(set model.ChangeSet) string {
	var b strings.Builder
	for _, path := range set.Paths() {
		change, _ := set.Entry(path)
		if change.Original.Exists && change.Original.Contents == change.Updated.Contents {
			continue
		}

		fromFile := "a/" + path
		if !change.Original.Exists {
			fromFile = "/dev/null"
		}
		diff := difflib.UnifiedDiff{
			A:        diffLines(change.Original.Contents),
			B:        diffLines(change.Updated.Contents),
			FromFile: fromFile,
			ToFile:   "b/" + path,
			Context:  3,
		}
		text, err := difflib.GetUnifiedDiffString(diff)
		if err != nil {
			fmt.Fprintf(&b, "# %s: %v\n", path, err)
			continue
		}
		b.WriteString(text)
	}
	return b.String()
}

// diffLines splits s into lines that all end with a newline.
func diffLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; lines[last] == "" {
		lines = lines[:last]
	} else {
		lines[last] += "\n"
	}
	return lines
}

func (m *Materializer) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.Default()
	}
	return m.Logger
}
