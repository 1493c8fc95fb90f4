package changeset

import (
	"fmt"

	"github.com/sokinpui/melt.go/internal/patcher"
	"github.com/sokinpui/melt.go/model"
)

// CreateEmpty returns a change set with no entries. It is how a response
// that proposes no code changes is represented.
func CreateEmpty() model.ChangeSet {
	return model.NewChangeSet(nil)
}

// IsEmpty reports whether set has no entries.
func IsEmpty(set model.ChangeSet) bool {
	return set.IsEmpty()
}

// Build pairs the final content of every touched file with its snapshot
// from before any edit ran.
func Build(finals map[string]string, originals patcher.Reader) (model.ChangeSet, error) {
	entries := make(map[string]model.FileChange, len(finals))
	for path, final := range finals {
		contents, exists, err := originals.ReadFile(path)
		if err != nil {
			return model.ChangeSet{}, fmt.Errorf("failed to read original of %s: %w", path, err)
		}
		entries[path] = model.FileChange{
			Original: model.FileSnapshot{Path: path, Contents: contents, Exists: exists},
			Updated:  model.FileSnapshot{Path: path, Contents: final, Exists: true},
		}
	}
	return model.NewChangeSet(entries), nil
}
