package nvim

import (
	"errors"
	"fmt"
	iofs "io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/neovim/go-client/nvim"
)

const undoDir = "~/.local/state/nvim/undo/"

// Manager writes files through Neovim buffers so that every change lands in
// the editor's undo history. It connects to the instance in
// NVIM_LISTEN_ADDRESS or starts a headless one.
type Manager struct {
	nvim          *nvim.Nvim
	isSelfStarted bool
	cmd           *exec.Cmd
	socketPath    string
}

// New creates a new Neovim manager.
func New() (*Manager, error) {
	if addr := os.Getenv("NVIM_LISTEN_ADDRESS"); addr != "" {
		v, err := nvim.Dial(addr)
		if err == nil {
			return &Manager{nvim: v}, nil
		}
		slog.Debug("could not dial running nvim, starting headless", "addr", addr, "err", err)
	}

	tmpDir, err := os.MkdirTemp("", "melt-nvim-")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for nvim: %w", err)
	}
	socketPath := filepath.Join(tmpDir, "nvim.sock")

	cmd := exec.Command("nvim", "--headless", "--clean", "--listen", socketPath)
	if err := cmd.Start(); err != nil {
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to start headless nvim: %w. Is 'nvim' in your PATH?", err)
	}

	for i := 0; i < 20; i++ {
		if _, err := os.Stat(socketPath); err == nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	v, err := nvim.Dial(socketPath)
	if err != nil {
		cmd.Process.Kill()
		os.RemoveAll(tmpDir)
		return nil, fmt.Errorf("failed to connect to headless nvim: %w", err)
	}

	m := &Manager{
		nvim:          v,
		isSelfStarted: true,
		cmd:           cmd,
		socketPath:    socketPath,
	}
	m.configureTempInstance()
	return m, nil
}

// configureTempInstance turns on persistent undo so the edits can be undone
// from a later editor session.
func (m *Manager) configureTempInstance() {
	home, _ := os.UserHomeDir()
	expandedUndoDir := strings.Replace(undoDir, "~", home, 1)
	os.MkdirAll(expandedUndoDir, 0755)

	b := m.nvim.NewBatch()
	b.Command("set undofile")
	b.Command(fmt.Sprintf("set undodir=%s", escapePath(expandedUndoDir)))
	b.Command("set noswapfile")
	if err := b.Execute(); err != nil {
		slog.Debug("failed to configure headless nvim", "err", err)
	}
}

// Close disconnects from Neovim and stops it if it was self-started.
func (m *Manager) Close() {
	if m.nvim != nil {
		m.nvim.Close()
	}
	if m.isSelfStarted && m.cmd != nil && m.cmd.Process != nil {
		if err := m.cmd.Process.Kill(); err == nil {
			m.cmd.Wait()
			os.RemoveAll(filepath.Dir(m.socketPath))
		}
	}
}

func (m *Manager) MkdirAll(dir string) error {
	return os.MkdirAll(dir, 0755)
}

// WriteFile replaces the buffer of path with data and writes it.
func (m *Manager) WriteFile(path string, data []byte) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}

	b := m.nvim.NewBatch()
	b.Command("edit! " + escapePath(absPath))
	b.SetBufferLines(0, 0, -1, true, bufferLines(data))
	b.Command("write!")
	if err := b.Execute(); err != nil {
		return fmt.Errorf("nvim failed to write %s: %w", path, err)
	}
	return nil
}

// Remove wipes the buffer of path, if any, and deletes the file.
func (m *Manager) Remove(path string) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if err := m.nvim.Command("silent! bwipeout! " + escapePath(absPath)); err != nil {
		slog.Debug("failed to wipe nvim buffer", "path", absPath, "err", err)
	}
	if err := os.Remove(absPath); err != nil && !errors.Is(err, iofs.ErrNotExist) {
		return err
	}
	return nil
}

// bufferLines splits data into buffer lines. The final newline is implied by
// the buffer's eol option.
func bufferLines(data []byte) [][]byte {
	text := strings.TrimSuffix(string(data), "\n")
	lines := strings.Split(text, "\n")
	out := make([][]byte, len(lines))
	for i, line := range lines {
		out[i] = []byte(line)
	}
	return out
}

func escapePath(path string) string {
	r := strings.NewReplacer(`\`, `\\`, " ", `\ `, "%", `\%`, "#", `\#`, "|", `\|`)
	return r.Replace(path)
}
