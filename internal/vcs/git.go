package vcs

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotRepository is returned when the project root is not inside a git
// working tree.
var ErrNotRepository = errors.New("not a git repository")

// Author identifies the commit author. A zero Author defers to the git
// configuration.
type Author struct {
	Name  string
	Email string
}

// Git stages and commits files of the repository that contains a project
// root.
type Git struct {
	repo     *git.Repository
	worktree *git.Worktree
	root     string
	author   Author
}

// Open finds the repository containing root.
func Open(root string, author Author) (*Git, error) {
	repo, err := git.PlainOpenWithOptions(root, &git.PlainOpenOptions{DetectDotGit: true})
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrNotRepository, root)
	}
	if err != nil {
		return nil, err
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Git{repo: repo, worktree: wt, root: abs, author: author}, nil
}

// Stage adds project-relative paths to the index.
func (g *Git) Stage(paths []string) error {
	for _, path := range paths {
		rel, err := g.worktreePath(path)
		if err != nil {
			return err
		}
		if _, err := g.worktree.Add(rel); err != nil {
			return fmt.Errorf("failed to stage %s: %w", path, err)
		}
	}
	return nil
}

// HasStagedChanges reports whether the index differs from HEAD.
func (g *Git) HasStagedChanges() (bool, error) {
	status, err := g.worktree.Status()
	if err != nil {
		return false, err
	}
	for _, s := range status {
		if s.Staging != git.Unmodified && s.Staging != git.Untracked {
			return true, nil
		}
	}
	return false, nil
}

// Commit records the index and returns the new commit hash.
func (g *Git) Commit(message string) (string, error) {
	opts := &git.CommitOptions{}
	if g.author.Name != "" || g.author.Email != "" {
		opts.Author = &object.Signature{
			Name:  g.author.Name,
			Email: g.author.Email,
			When:  time.Now(),
		}
	}
	hash, err := g.worktree.Commit(message, opts)
	if err != nil {
		return "", err
	}
	return hash.String(), nil
}

// worktreePath converts a project-relative path into one relative to the
// repository's working tree, which may be an ancestor of the project root.
func (g *Git) worktreePath(path string) (string, error) {
	top, err := filepath.Abs(g.worktree.Filesystem.Root())
	if err != nil {
		return "", err
	}
	rel, err := filepath.Rel(top, filepath.Join(g.root, path))
	if err != nil {
		return "", err
	}
	return filepath.ToSlash(rel), nil
}
