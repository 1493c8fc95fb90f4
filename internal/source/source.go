package source

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/sokinpui/melt.go/internal/ui"
)

// Origin names where content was read from.
type Origin string

const (
	Stdin     Origin = "stdin"
	Clipboard Origin = "clipboard"
	File      Origin = "file"
)

// Provider determines and retrieves the response text.
type Provider struct {
	stdin   *os.File
	quiet   bool
	readClp func() (string, error)
}

// New creates a Provider reading from the process's stdin and the system
// clipboard. A quiet Provider prints no headers.
func New(quiet bool) *Provider {
	return &Provider{
		stdin:   os.Stdin,
		quiet:   quiet,
		readClp: clipboard.ReadAll,
	}
}

// GetContent reads from path when given ("-" means stdin), otherwise from
// stdin if it is piped, otherwise from the clipboard.
func (p *Provider) GetContent(path string) (string, Origin, error) {
	switch {
	case path == "-":
		return p.readStdin()
	case path != "":
		p.header("--- Reading from %s ---", path)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", File, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return string(data), File, nil
	case p.stdinPiped():
		return p.readStdin()
	}

	p.header("--- Reading from clipboard ---")
	content, err := p.readClp()
	if err != nil {
		return "", Clipboard, fmt.Errorf("failed to read from clipboard: %w", err)
	}
	if strings.TrimSpace(content) == "" {
		if !p.quiet {
			ui.Warning("Clipboard is empty. Nothing to process.")
		}
		return "", Clipboard, nil
	}
	return content, Clipboard, nil
}

func (p *Provider) readStdin() (string, Origin, error) {
	p.header("--- Reading from stdin ---")
	content, err := io.ReadAll(p.stdin)
	if err != nil {
		return "", Stdin, fmt.Errorf("failed to read from stdin: %w", err)
	}
	return string(content), Stdin, nil
}

func (p *Provider) stdinPiped() bool {
	stat, err := p.stdin.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice == 0
}

func (p *Provider) header(format string, a ...interface{}) {
	if !p.quiet {
		ui.Header(format, a...)
	}
}
