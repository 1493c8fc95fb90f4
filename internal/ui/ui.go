package ui

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/sokinpui/melt.go/model"
)

var (
	HeaderColor  = color.New(color.FgBlue, color.Bold)
	InfoColor    = color.New(color.FgCyan)
	SuccessColor = color.New(color.FgGreen)
	WarningColor = color.New(color.FgYellow)
	ErrorColor   = color.New(color.FgRed)
	PathColor    = color.New(color.FgYellow)
	FaintColor   = color.New(color.Faint)
)

// Output is where status lines go. Stdout is left for command results.
var Output io.Writer = os.Stderr

func Header(format string, a ...interface{}) {
	HeaderColor.Fprintf(Output, format+"\n", a...)
}

func Info(format string, a ...interface{}) {
	InfoColor.Fprintf(Output, format+"\n", a...)
}

func Success(format string, a ...interface{}) {
	SuccessColor.Fprintf(Output, format+"\n", a...)
}

func Warning(format string, a ...interface{}) {
	WarningColor.Fprintf(Output, format+"\n", a...)
}

func Error(format string, a ...interface{}) {
	ErrorColor.Fprintf(Output, format+"\n", a...)
}

func Path(format string, a ...interface{}) {
	PathColor.Fprintf(Output, "  "+format+"\n", a...)
}

// --- Summaries ---

func printList(w io.Writer, files []string) {
	for _, f := range files {
		fmt.Fprintf(w, "  - %s\n", f)
	}
}

// PrintApplySummary reports the result of applying a response.
func PrintApplySummary(s model.Summary) {
	Header("\n--- Update Summary ---")

	if len(s.Created) == 0 && len(s.Modified) == 0 && len(s.Failed) == 0 {
		Info("No files were updated.")
	}
	if len(s.Modified) > 0 {
		Success("Modified %d file(s):", len(s.Modified))
		printList(Output, s.Modified)
	}
	if len(s.Created) > 0 {
		Success("Created %d new file(s):", len(s.Created))
		printList(Output, s.Created)
	}
	if len(s.Failed) > 0 {
		Error("Failed to apply edits to %d file(s):", len(s.Failed))
		printList(Output, s.Failed)
	}
	for _, d := range s.Diagnostics {
		PrintDiagnostic(d)
	}
	if s.Commit != "" {
		Success("Committed %s", s.Commit)
	}
	if s.Message != "" {
		Info(s.Message)
	}
}

// PrintDiagnostic explains an edit that could not be placed.
func PrintDiagnostic(d model.Diagnostic) {
	Warning("  %s: edit #%d did not match", d.Path, d.EditIndex+1)
	FaintColor.Fprintf(Output, "    matched up to: %q\n", tail(d.Matched, 40))
	FaintColor.Fprintf(Output, "    then expected: %q\n", d.Mismatch)
	if d.NearLine > 0 {
		FaintColor.Fprintf(Output, "    closest text near line %d\n", d.NearLine)
	}
}

func PrintRevertSummary(reverted []string) {
	Header("\n--- Revert Summary ---")
	Success("Successfully reverted %d file(s):", len(reverted))
	printList(Output, reverted)
}

func PrintRedoSummary(redone []string) {
	Header("\n--- Redo Summary ---")
	Success("Successfully redid %d file(s):", len(redone))
	printList(Output, redone)
}

// PrintDiff writes a unified diff to w with added and removed lines colored.
func PrintDiff(w io.Writer, diff string) {
	for _, line := range strings.SplitAfter(diff, "\n") {
		switch {
		case line == "":
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			HeaderColor.Fprint(w, line)
		case strings.HasPrefix(line, "@@"):
			InfoColor.Fprint(w, line)
		case strings.HasPrefix(line, "+"):
			SuccessColor.Fprint(w, line)
		case strings.HasPrefix(line, "-"):
			ErrorColor.Fprint(w, line)
		default:
			fmt.Fprint(w, line)
		}
	}
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "..." + string(r[len(r)-n:])
}

// --- Progress Bar ---

type ProgressBar struct {
	total   int
	prefix  string
	current int
}

func NewProgressBar(total int, prefix string) *ProgressBar {
	return &ProgressBar{total: total, prefix: prefix}
}

func (p *ProgressBar) Start() {
	p.draw()
}

func (p *ProgressBar) Increment() {
	p.current++
	p.draw()
}

func (p *ProgressBar) Finish() {
	if p.total > 0 {
		fmt.Fprintln(Output)
	}
}

func (p *ProgressBar) draw() {
	if p.total == 0 {
		return
	}
	const barLength = 40
	percent := float64(p.current) / float64(p.total)
	filledLength := int(percent * barLength)
	bar := strings.Repeat("█", filledLength) + strings.Repeat("-", barLength-filledLength)

	fmt.Fprintf(Output, "\r%s |%s| [%d/%d] %.1f%%", p.prefix, bar, p.current, p.total, percent*100)
}
