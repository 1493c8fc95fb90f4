package model

import "sort"

// EditRequest is a single search/replace instruction targeting one file.
// Search and Replace always end with a newline so that a replacement only
// ever touches whole lines.
type EditRequest struct {
	FilePath string
	Search   string
	Replace  string
}

// FileSnapshot is the content of a file at one point in time.
// Exists is false when the file was not on disk, which is not the same as an
// empty file.
type FileSnapshot struct {
	Path     string
	Contents string
	Exists   bool
}

// FileChange pairs the pre-edit and post-edit snapshots of one file.
type FileChange struct {
	Original FileSnapshot
	Updated  FileSnapshot
}

// ChangeSet is the immutable set of file changes produced by one response.
type ChangeSet struct {
	files map[string]FileChange
}

// NewChangeSet copies entries into a new ChangeSet.
func NewChangeSet(entries map[string]FileChange) ChangeSet {
	files := make(map[string]FileChange, len(entries))
	for path, change := range entries {
		files[path] = change
	}
	return ChangeSet{files: files}
}

// Paths returns the changed paths in lexical order.
func (c ChangeSet) Paths() []string {
	paths := make([]string, 0, len(c.files))
	for path := range c.files {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths
}

// Entry returns the change recorded for path.
func (c ChangeSet) Entry(path string) (FileChange, bool) {
	change, ok := c.files[path]
	return change, ok
}

func (c ChangeSet) Len() int {
	return len(c.files)
}

func (c ChangeSet) IsEmpty() bool {
	return len(c.files) == 0
}

// Diagnostic describes an edit that no matching strategy could apply.
type Diagnostic struct {
	Path      string
	EditIndex int
	// Matched is the longest prefix of the search text found in the file.
	Matched string
	// Mismatch holds the first characters of the search text after Matched.
	Mismatch string
	// NearLine is the 1-based line of the closest fuzzy match, or 0.
	NearLine int
}

// Summary holds the results of an operation for display.
type Summary struct {
	Created     []string
	Modified    []string
	Failed      []string
	Diagnostics []Diagnostic
	Commit      string
	Message     string
}
