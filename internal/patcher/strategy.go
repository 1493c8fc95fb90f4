package patcher

import (
	"strings"

	"github.com/sokinpui/melt.go/model"
)

// Strategy tries to apply one edit to content. It reports false when the
// search text could not be located, in which case content is left alone.
type Strategy func(content string, edit model.EditRequest) (string, bool)

// NamedStrategy is a Strategy with a name for logs and summaries.
type NamedStrategy struct {
	Name  string
	Apply Strategy
}

// Cascade is an ordered list of strategies. The first one that succeeds wins.
type Cascade []NamedStrategy

// DefaultCascade returns exact matching followed by reindented matching.
// With fuzzy set, whitespace-normalized block matching is tried last.
func DefaultCascade(fuzzy bool) Cascade {
	c := Cascade{
		{Name: "exact", Apply: ExactMatch},
		{Name: "reindent", Apply: Reindent},
	}
	if fuzzy {
		c = append(c, NamedStrategy{Name: "normalized", Apply: NormalizedBlock})
	}
	return c
}

// Run tries each strategy in order and returns the name of the one that
// applied the edit.
func (c Cascade) Run(content string, edit model.EditRequest) (string, string, bool) {
	for _, s := range c {
		if updated, ok := s.Apply(content, edit); ok {
			return updated, s.Name, true
		}
	}
	return content, "", false
}

// ExactMatch replaces the first literal occurrence of the search text that
// starts at the beginning of a line.
func ExactMatch(content string, edit model.EditRequest) (string, bool) {
	return replaceAtLineStart(content, edit.Search, edit.Replace)
}

// replaceAtLineStart replaces the first occurrence of search that begins a
// line, so that only whole lines are ever rewritten.
func replaceAtLineStart(content, search, replace string) (string, bool) {
	i := indexAtLineStart(content, search)
	if i < 0 {
		return content, false
	}
	return content[:i] + replace + content[i+len(search):], true
}

func indexAtLineStart(content, search string) int {
	for offset := 0; offset <= len(content); {
		i := strings.Index(content[offset:], search)
		if i < 0 {
			return -1
		}
		i += offset
		if i == 0 || content[i-1] == '\n' {
			return i
		}
		offset = i + 1
	}
	return -1
}

// Reindent handles search text written at a different nesting depth than
// the file. Every content line containing the trimmed first search line
// proposes an indent; search and replace are shifted by it and matched
// exactly. Blank lines are tried both indented and left empty.
func Reindent(content string, edit model.EditRequest) (string, bool) {
	searchLines := splitLines(edit.Search)
	replaceLines := splitLines(edit.Replace)
	if len(searchLines) == 0 {
		return content, false
	}

	first := strings.TrimSpace(searchLines[0])
	searchIndent := leadingWhitespace(searchLines[0])

	tried := map[string]bool{"": true}
	for _, line := range strings.Split(content, "\n") {
		if !strings.Contains(strings.TrimSpace(line), first) {
			continue
		}

		indent := leadingWhitespace(line)
		if strings.HasSuffix(indent, searchIndent) {
			indent = indent[:len(indent)-len(searchIndent)]
		}
		if tried[indent] {
			continue
		}
		tried[indent] = true

		for _, indentBlank := range []bool{true, false} {
			search := indentLines(searchLines, indent, indentBlank)
			replace := indentLines(replaceLines, indent, indentBlank)
			if updated, ok := replaceAtLineStart(content, search, replace); ok {
				return updated, true
			}
		}
	}
	return content, false
}

// NormalizedBlock matches the non-blank search lines against the file with
// all runs of whitespace collapsed, so that differences in spacing and blank
// lines do not prevent a match. The matched line range is replaced by the
// replace text, shifted to the indentation found in the file.
func NormalizedBlock(content string, edit model.EditRequest) (string, bool) {
	var block []string
	for _, line := range splitLines(edit.Search) {
		if strings.TrimSpace(line) != "" {
			block = append(block, line)
		}
	}

	source := strings.Split(content, "\n")
	start, end, ok := matchBlock(source, block)
	if !ok {
		return content, false
	}

	indent := leadingWhitespace(source[start])
	if searchIndent := leadingWhitespace(block[0]); strings.HasSuffix(indent, searchIndent) {
		indent = indent[:len(indent)-len(searchIndent)]
	}

	var replacement []string
	if edit.Replace != "\n" {
		for _, line := range splitLines(edit.Replace) {
			if strings.TrimSpace(line) == "" {
				replacement = append(replacement, line)
				continue
			}
			replacement = append(replacement, indent+line)
		}
	}

	updated := make([]string, 0, len(source)-(end-start)+len(replacement))
	updated = append(updated, source[:start]...)
	updated = append(updated, replacement...)
	updated = append(updated, source[end:]...)
	return strings.Join(updated, "\n"), true
}

// matchBlock finds block in source ignoring blank lines and whitespace
// differences. It returns the half-open range of source lines covered by the
// match.
func matchBlock(source, block []string) (int, int, bool) {
	if len(block) == 0 {
		return 0, 0, false
	}

	normalizedBlock := make([]string, len(block))
	for i, line := range block {
		normalizedBlock[i] = normalizeLineForMatching(line)
	}

	var filtered []string
	var lineNumbers []int
	for i, line := range source {
		if normalized := normalizeLineForMatching(line); normalized != "" {
			filtered = append(filtered, normalized)
			lineNumbers = append(lineNumbers, i)
		}
	}

	for i := 0; i <= len(filtered)-len(normalizedBlock); i++ {
		match := true
		for j := range normalizedBlock {
			if filtered[i+j] != normalizedBlock[j] {
				match = false
				break
			}
		}
		if match {
			return lineNumbers[i], lineNumbers[i+len(normalizedBlock)-1] + 1, true
		}
	}
	return 0, 0, false
}

// normalizeLineForMatching trims a line and collapses internal whitespace
// to single spaces.
func normalizeLineForMatching(line string) string {
	return strings.Join(strings.Fields(line), " ")
}

// splitLines splits text into lines without the trailing separator.
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func indentLines(lines []string, indent string, indentBlank bool) string {
	var b strings.Builder
	for _, line := range lines {
		if line != "" || indentBlank {
			b.WriteString(indent)
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

func leadingWhitespace(line string) string {
	return line[:len(line)-len(strings.TrimLeft(line, " \t"))]
}
