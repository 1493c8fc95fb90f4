package state

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sokinpui/melt.go/internal/fs"
	"github.com/sokinpui/melt.go/model"
)

const (
	// DirName is the per-project directory holding history, blobs and the lock.
	DirName = ".melt"

	historyFileName = "history.json"
	blobDirName     = "blobs"
	ignoreFileName  = ".gitignore"
)

var (
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrNothingToRedo = errors.New("nothing to redo")
)

// DriftError lists files whose content changed since the history entry was
// recorded. Nothing is written when it is returned.
type DriftError struct {
	Paths []string
}

func (e *DriftError) Error() string {
	return fmt.Sprintf("files changed since they were applied: %s", strings.Join(e.Paths, ", "))
}

// Writer is the filesystem surface undo and redo write through.
type Writer interface {
	MkdirAll(dir string) error
	WriteFile(path string, data []byte) error
	Remove(path string) error
}

// FileRecord is one file of a history entry. Hashes name blobs in the blob
// store.
type FileRecord struct {
	Path           string `json:"path"`
	OriginalExists bool   `json:"original_exists"`
	OriginalHash   string `json:"original_hash,omitempty"`
	UpdatedHash    string `json:"updated_hash"`
}

// Entry is one applied change set.
type Entry struct {
	ID        string       `json:"id"`
	Timestamp int64        `json:"timestamp"`
	Message   string       `json:"message,omitempty"`
	Commit    string       `json:"commit,omitempty"`
	Files     []FileRecord `json:"files"`
}

// Paths returns the paths touched by the entry.
func (e Entry) Paths() []string {
	paths := make([]string, len(e.Files))
	for i, f := range e.Files {
		paths[i] = f.Path
	}
	return paths
}

// State is the history file.
type State struct {
	History      []Entry `json:"history"`
	CurrentIndex int     `json:"current_index"`
}

// Manager handles the lifecycle of the history file and blob store.
type Manager struct {
	root      string
	StateDir  string
	statePath string
	state     *State
}

// EnsureDir creates the state directory under root and returns its path.
// The directory ignores itself so it never shows up in git status.
func EnsureDir(root string) (string, error) {
	stateDir := filepath.Join(root, DirName)
	if err := os.MkdirAll(filepath.Join(stateDir, blobDirName), 0755); err != nil {
		return "", fmt.Errorf("could not create state directory: %w", err)
	}
	ignorePath := filepath.Join(stateDir, ignoreFileName)
	if _, err := os.Stat(ignorePath); errors.Is(err, iofs.ErrNotExist) {
		if err := os.WriteFile(ignorePath, []byte("*\n"), 0644); err != nil {
			return "", fmt.Errorf("could not write %s: %w", ignorePath, err)
		}
	}
	return stateDir, nil
}

// New opens the history under root, creating the state directory if needed.
func New(root string) (*Manager, error) {
	stateDir, err := EnsureDir(root)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		root:      root,
		StateDir:  stateDir,
		statePath: filepath.Join(stateDir, historyFileName),
	}
	if err := m.load(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) load() error {
	data, err := os.ReadFile(m.statePath)
	if errors.Is(err, iofs.ErrNotExist) {
		m.state = &State{CurrentIndex: -1}
		return nil
	}
	if err != nil {
		return err
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("invalid state file %s: %w", m.statePath, err)
	}
	if s.CurrentIndex < -1 || s.CurrentIndex >= len(s.History) {
		return fmt.Errorf("invalid state file %s: index %d out of range", m.statePath, s.CurrentIndex)
	}
	m.state = &s
	return nil
}

func (m *Manager) save() error {
	data, err := json.MarshalIndent(m.state, "", "  ")
	if err != nil {
		return err
	}
	tmp := m.statePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	return os.Rename(tmp, m.statePath)
}

// Entries returns the recorded history and the index of the current entry.
func (m *Manager) Entries() ([]Entry, int) {
	return m.state.History, m.state.CurrentIndex
}

// Record stores the snapshots of set and appends a history entry, dropping
// any entries that could have been redone.
func (m *Manager) Record(set model.ChangeSet, message, commit string) (Entry, error) {
	entry := Entry{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC().Unix(),
		Message:   message,
		Commit:    commit,
	}

	for _, path := range set.Paths() {
		change, _ := set.Entry(path)
		rec := FileRecord{Path: path, OriginalExists: change.Original.Exists}
		var err error
		if change.Original.Exists {
			if rec.OriginalHash, err = m.putBlob(change.Original.Contents); err != nil {
				return Entry{}, err
			}
		}
		if rec.UpdatedHash, err = m.putBlob(change.Updated.Contents); err != nil {
			return Entry{}, err
		}
		entry.Files = append(entry.Files, rec)
	}

	if m.state.CurrentIndex < len(m.state.History)-1 {
		m.state.History = m.state.History[:m.state.CurrentIndex+1]
	}
	m.state.History = append(m.state.History, entry)
	m.state.CurrentIndex++
	if err := m.save(); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// Undo restores the files of the current entry to their original content.
// A file that did not exist before is removed. If any file no longer holds
// the content the entry wrote, a *DriftError is returned and nothing changes.
func (m *Manager) Undo(w Writer) (Entry, error) {
	if m.state.CurrentIndex < 0 {
		return Entry{}, ErrNothingToUndo
	}
	entry := m.state.History[m.state.CurrentIndex]

	if err := m.checkDrift(entry, func(f FileRecord) (string, bool) {
		return f.UpdatedHash, true
	}); err != nil {
		return Entry{}, err
	}

	for _, f := range entry.Files {
		path, err := fs.Resolve(m.root, f.Path)
		if err != nil {
			return Entry{}, err
		}
		if !f.OriginalExists {
			if err := w.Remove(path); err != nil && !errors.Is(err, iofs.ErrNotExist) {
				return Entry{}, fmt.Errorf("failed to remove %s: %w", f.Path, err)
			}
			continue
		}
		if err := m.restore(w, path, f.OriginalHash); err != nil {
			return Entry{}, err
		}
	}

	m.state.CurrentIndex--
	return entry, m.save()
}

// Redo reapplies the entry after the current one.
func (m *Manager) Redo(w Writer) (Entry, error) {
	next := m.state.CurrentIndex + 1
	if next >= len(m.state.History) {
		return Entry{}, ErrNothingToRedo
	}
	entry := m.state.History[next]

	if err := m.checkDrift(entry, func(f FileRecord) (string, bool) {
		return f.OriginalHash, f.OriginalExists
	}); err != nil {
		return Entry{}, err
	}

	for _, f := range entry.Files {
		path, err := fs.Resolve(m.root, f.Path)
		if err != nil {
			return Entry{}, err
		}
		if err := m.restore(w, path, f.UpdatedHash); err != nil {
			return Entry{}, err
		}
	}

	m.state.CurrentIndex = next
	return entry, m.save()
}

func (m *Manager) checkDrift(entry Entry, expected func(FileRecord) (string, bool)) error {
	var drifted []string
	for _, f := range entry.Files {
		path, err := fs.Resolve(m.root, f.Path)
		if err != nil {
			return err
		}
		hash, exists, err := fileHash(path)
		if err != nil {
			return err
		}
		wantHash, wantExists := expected(f)
		if exists != wantExists || hash != wantHash {
			drifted = append(drifted, f.Path)
		}
	}
	if len(drifted) > 0 {
		return &DriftError{Paths: drifted}
	}
	return nil
}

func (m *Manager) restore(w Writer, path, hash string) error {
	data, err := os.ReadFile(m.blobPath(hash))
	if err != nil {
		return fmt.Errorf("missing blob %s: %w", hash, err)
	}
	if err := w.MkdirAll(filepath.Dir(path)); err != nil {
		return err
	}
	return w.WriteFile(path, data)
}

func (m *Manager) putBlob(contents string) (string, error) {
	hash := hashString(contents)
	path := m.blobPath(hash)
	if _, err := os.Stat(path); err == nil {
		return hash, nil
	}
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		return "", fmt.Errorf("failed to store blob: %w", err)
	}
	return hash, nil
}

func (m *Manager) blobPath(hash string) string {
	return filepath.Join(m.StateDir, blobDirName, hash)
}

func hashString(contents string) string {
	sum := sha256.Sum256([]byte(contents))
	return hex.EncodeToString(sum[:])
}

func fileHash(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, iofs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return hashString(string(data)), true, nil
}
