package fs

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned for a path that resolves outside the project root.
var ErrOutsideRoot = errors.New("path escapes project root")

// Root resolves and reads project-relative paths.
type Root struct {
	dir string
}

// NewRoot creates a Root for dir. An empty dir means the working directory.
func NewRoot(dir string) (*Root, error) {
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("could not get current working directory: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("invalid root %q: %w", dir, err)
	}
	return &Root{dir: abs}, nil
}

// Dir returns the absolute root directory.
func (r *Root) Dir() string {
	return r.dir
}

// Resolve returns the absolute path of a project-relative path.
func (r *Root) Resolve(relativePath string) (string, error) {
	return Resolve(r.dir, relativePath)
}

// Rel returns the project-relative form of an absolute path, or the path
// unchanged if it is not under the root.
func (r *Root) Rel(absPath string) string {
	rel, err := filepath.Rel(r.dir, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return absPath
	}
	return rel
}

// ReadFile reads a project-relative file. A missing file is reported with
// exists false and no error.
func (r *Root) ReadFile(relativePath string) (string, bool, error) {
	path, err := r.Resolve(relativePath)
	if err != nil {
		return "", false, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return string(data), true, nil
}

// Resolve joins relativePath onto root and rejects results outside root.
func Resolve(root, relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %s is absolute", ErrOutsideRoot, relativePath)
	}
	path := filepath.Join(root, relativePath)
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, relativePath)
	}
	if rel == "." {
		return "", fmt.Errorf("%w: %s names the root itself", ErrOutsideRoot, relativePath)
	}
	return path, nil
}

// OSWriter writes straight to the local filesystem.
type OSWriter struct{}

func (OSWriter) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

func (OSWriter) WriteFile(path string, data []byte) error {
	return os.WriteFile(path, data, 0644)
}

func (OSWriter) Remove(path string) error {
	return os.Remove(path)
}

// MissingDirs returns the parent directories of paths that do not exist yet.
func MissingDirs(paths []string) []string {
	seen := make(map[string]struct{})
	var dirs []string
	for _, path := range paths {
		dir := filepath.Dir(path)
		if dir == "." || dir == "/" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		if _, err := os.Stat(dir); errors.Is(err, iofs.ErrNotExist) {
			dirs = append(dirs, dir)
		}
	}
	return dirs
}
