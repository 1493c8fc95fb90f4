package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/sokinpui/melt.go/internal/parser"
	"github.com/sokinpui/melt.go/melt"
	"github.com/sokinpui/melt.go/model"
)

// --- Styles ---
var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63")) // Mauve
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("78"))            // Green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("197"))           // Red
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))           // Orange
	pathStyle    = lipgloss.NewStyle()
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// ErrAborted is reported by Err when the user quits a watch without applying.
var ErrAborted = errors.New("aborted")

// --- Messages ---
type summaryMsg struct {
	model.Summary
}

type errorMsg struct{ err error }

func (e errorMsg) Error() string { return e.err.Error() }

type progressMsg struct {
	current, total int
}

type parsedMsg struct {
	parser.Result
}

type watchDoneMsg struct {
	content string
}

// --- Model ---
type Model struct {
	app     *melt.App
	ctx     context.Context
	spinner spinner.Model
	state   state
	summary summaryMsg
	err     error
	current int
	total   int

	watchPath   string
	stopWatch   context.CancelFunc
	updates     chan parser.Result
	watchDone   chan watchDoneMsg
	live        parser.Result
	updateCount int
}

type state int

const (
	stateProcessing state = iota
	stateWatching
	stateApplying
	stateSummary
	stateError
	stateAborted
)

// New returns a model that runs app.Execute behind a spinner and shows the
// summary.
func New(ctx context.Context, app *melt.App) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	return &Model{
		app:     app,
		ctx:     ctx,
		spinner: s,
		state:   stateProcessing,
	}
}

// NewWatch returns a model that follows the response at path as it grows,
// showing what has been parsed so far. Enter applies the final response;
// q aborts.
func NewWatch(ctx context.Context, app *melt.App, path string) *Model {
	m := New(ctx, app)
	m.state = stateWatching
	m.watchPath = path
	m.updates = make(chan parser.Result, 16)
	m.watchDone = make(chan watchDoneMsg, 1)
	return m
}

// SetProgram connects the model to its program so that write progress can
// be reported while the app runs.
func (m *Model) SetProgram(p *tea.Program) {
	m.app.SetProgressCallback(func(current, total int) {
		p.Send(progressMsg{current: current, total: total})
	})
}

// Err returns the error the model finished with, if any.
func (m *Model) Err() error {
	switch m.state {
	case stateError:
		return m.err
	case stateAborted:
		return ErrAborted
	}
	return nil
}

func (m *Model) Init() tea.Cmd {
	if m.state == stateWatching {
		return tea.Batch(m.spinner.Tick, m.startWatch(), m.waitForUpdate)
	}
	return tea.Batch(m.spinner.Tick, m.runApp)
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.state == stateWatching {
				m.state = stateAborted
				m.stopWatch()
			}
			return m, tea.Quit
		case "enter":
			if m.state == stateWatching {
				m.state = stateApplying
				m.stopWatch()
				return m, m.waitForWatchDone
			}
		}

	case parsedMsg:
		m.live = msg.Result
		m.updateCount++
		return m, m.waitForUpdate

	case watchDoneMsg:
		return m, m.applyContent(msg.content)

	case progressMsg:
		m.current, m.total = msg.current, msg.total
		return m, nil

	case summaryMsg:
		m.state = stateSummary
		m.summary = msg
		return m, tea.Quit

	case errorMsg:
		m.state = stateError
		m.err = msg.err
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		if m.state == stateProcessing || m.state == stateWatching || m.state == stateApplying {
			m.spinner, cmd = m.spinner.Update(msg)
		}
		return m, cmd
	}
	return m, nil
}

func (m *Model) View() string {
	switch m.state {
	case stateProcessing, stateApplying:
		if m.total > 0 {
			return fmt.Sprintf("%s Writing files [%d/%d]...", m.spinner.View(), m.current, m.total)
		}
		return fmt.Sprintf("%s Processing...", m.spinner.View())
	case stateWatching:
		return m.renderLive()
	case stateError:
		return errorStyle.Render("Error: ", m.err.Error()) + "\n"
	case stateAborted:
		return faintStyle.Render("Aborted. Nothing was applied.") + "\n"
	case stateSummary:
		return m.renderSummary()
	default:
		return ""
	}
}

func (m *Model) renderLive() string {
	var b strings.Builder

	b.WriteString(fmt.Sprintf("%s Watching %s\n\n", m.spinner.View(), headerStyle.Render(m.watchPath)))
	b.WriteString(fmt.Sprintf("  updates:   %d\n", m.updateCount))
	b.WriteString(fmt.Sprintf("  fragments: %d\n", len(m.live.Fragments)))
	b.WriteString(fmt.Sprintf("  edits:     %d\n", len(m.live.Edits)))

	switch m.live.Block.Kind {
	case parser.KnownFile:
		b.WriteString("  block:     ")
		b.WriteString(successStyle.Render(m.live.Block.Path))
		b.WriteString("\n")
	case parser.UnknownFile:
		b.WriteString("  block:     ")
		b.WriteString(warnStyle.Render("unknown file"))
		b.WriteString("\n")
	}

	if n := len(m.live.Edits); n > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("  last edit: %s", m.live.Edits[n-1].FilePath)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(faintStyle.Render("enter: apply • q: abort"))
	return b.String()
}

func (m *Model) renderSummary() string {
	var b strings.Builder

	if m.summary.Message != "" {
		b.WriteString(headerStyle.Render(m.summary.Message))
		b.WriteString("\n\n")
	}

	hasContent := false
	if len(m.summary.Created) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Created:"))
		b.WriteString("\n")
		for _, f := range m.summary.Created {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Modified) > 0 {
		hasContent = true
		b.WriteString(successStyle.Render("Modified:"))
		b.WriteString("\n")
		for _, f := range m.summary.Modified {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
	}
	if len(m.summary.Failed) > 0 {
		hasContent = true
		b.WriteString(errorStyle.Render("Failed:"))
		b.WriteString("\n")
		for _, f := range m.summary.Failed {
			b.WriteString(fmt.Sprintf("  %s\n", pathStyle.Render(f)))
		}
		for _, d := range m.summary.Diagnostics {
			line := fmt.Sprintf("  %s #%d: expected %q", d.Path, d.EditIndex+1, d.Mismatch)
			if d.NearLine > 0 {
				line += fmt.Sprintf(" near line %d", d.NearLine)
			}
			b.WriteString(faintStyle.Render(line))
			b.WriteString("\n")
		}
	}
	if m.summary.Commit != "" {
		hasContent = true
		b.WriteString(successStyle.Render("Committed: "))
		b.WriteString(m.summary.Commit)
		b.WriteString("\n")
	}

	if !hasContent && m.summary.Message == "" {
		b.WriteString(faintStyle.Render("Nothing to do."))
		b.WriteString("\n")
	}

	return b.String()
}

func (m *Model) runApp() tea.Msg {
	summary, err := m.app.Execute(m.ctx)
	if err != nil {
		return m.failure(err)
	}
	return summaryMsg{
		Summary: summary,
	}
}

func (m *Model) startWatch() tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.stopWatch = cancel
	return func() tea.Msg {
		content, err := m.app.Watch(ctx, m.watchPath, func(r parser.Result) {
			select {
			case m.updates <- r:
			case <-ctx.Done():
			}
		})
		if err != nil {
			return errorMsg{err}
		}
		m.watchDone <- watchDoneMsg{content: content}
		return nil
	}
}

func (m *Model) waitForUpdate() tea.Msg {
	return parsedMsg{<-m.updates}
}

func (m *Model) waitForWatchDone() tea.Msg {
	return <-m.watchDone
}

func (m *Model) applyContent(content string) tea.Cmd {
	return func() tea.Msg {
		if content == "" {
			return summaryMsg{Summary: model.Summary{Message: "Source is empty. Nothing to process."}}
		}
		summary, err := m.app.ApplyContent(m.ctx, content)
		if err != nil {
			return m.failure(err)
		}
		return summaryMsg{Summary: summary}
	}
}

func (m *Model) failure(err error) tea.Msg {
	var detailed *melt.DetailedError
	if errors.As(err, &detailed) {
		// The TUI will exit, so we can print to stderr here for the stack trace.
		fmt.Fprintf(os.Stderr, "\n--- Stack Trace ---\n%s\n", detailed.Stack)
	}
	return errorMsg{err}
}
