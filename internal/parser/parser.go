package parser

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/sokinpui/melt.go/model"
)

// BlockKind tells whether the parser is inside an edit block and whether
// that block's file path is known.
type BlockKind int

const (
	// NoBlock means no edit block is open.
	NoBlock BlockKind = iota
	// UnknownFile means a block is open but its file path could not be read.
	// Only reachable in partial mode.
	UnknownFile
	// KnownFile means a block is open for Path.
	KnownFile
)

// BlockState is the edit block the parser is in.
type BlockState struct {
	Kind BlockKind
	Path string
}

// Result is the outcome of parsing one response.
type Result struct {
	// Fragments is the narrative meant for progressive display. Each edit
	// block gets a fragment of its own holding the raw block in a fence.
	Fragments []string
	Edits     []model.EditRequest
	// Block is the block state at the end of the input.
	Block BlockState
}

// ParseError is a grammar violation found in complete mode.
type ParseError struct {
	LineNumber int
	Line       string
	Content    string
	Err        error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.LineNumber, e.Err, strings.TrimSpace(e.Line))
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var filePathRegex = regexp.MustCompile(`file="([^"]*)"`)

type parser struct {
	content string
	partial bool
	logger  *slog.Logger

	section   section
	block     BlockState
	search    []string
	replace   []string
	fragments []string
	edits     []model.EditRequest
}

// Parse splits a model response into narrative fragments and edit requests.
//
// In partial mode the response may be cut off anywhere, so grammar
// violations never fail the parse: offending markers are treated as text and
// a block whose file path cannot be read is tracked as UnknownFile. Edits
// from such a block are not emitted.
func Parse(content string, partial bool) (Result, error) {
	p := &parser{
		content:   content,
		partial:   partial,
		logger:    slog.Default(),
		fragments: []string{""},
	}

	lines := strings.Split(content, "\n")
	if len(lines) > 1 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}

	for i, line := range lines {
		if err := p.consume(i+1, line); err != nil {
			p.logger.Debug("parse failed", "line", i+1, "err", err, "content", content)
			return Result{}, err
		}
	}

	if !partial && p.section != sectionTopLevel {
		last := ""
		if len(lines) > 0 {
			last = lines[len(lines)-1]
		}
		err := p.fail(len(lines), last, fmt.Errorf("%w: input ends in %s", ErrUnexpectedTransition, p.section))
		p.logger.Debug("parse failed", "line", len(lines), "err", err, "content", content)
		return Result{}, err
	}

	return Result{
		Fragments: p.fragments,
		Edits:     p.edits,
		Block:     p.block,
	}, nil
}

func (p *parser) consume(lineNumber int, line string) error {
	token, err := Classify(line)
	if err != nil {
		if !p.partial {
			return p.fail(lineNumber, line, err)
		}
		token = TokenText
	}

	if token == TokenText {
		p.text(line)
		p.display(line)
		return nil
	}

	next := targets[token]
	if !allowed(p.section, next) {
		if !p.partial {
			return p.fail(lineNumber, line, fmt.Errorf("%w: %s from %s", ErrUnexpectedTransition, next, p.section))
		}
		p.display(line)
		return nil
	}

	switch token {
	case TokenBlockOpen:
		p.fragments = append(p.fragments, codeChangeFence)
		path, err := extractFilePath(line)
		if err != nil {
			if !p.partial {
				return p.fail(lineNumber, line, fmt.Errorf("%w: %v", ErrMissingFilePath, err))
			}
			p.block = BlockState{Kind: UnknownFile}
		} else {
			p.block = BlockState{Kind: KnownFile, Path: path}
		}
	case TokenReplaceClose:
		if p.block.Kind == KnownFile {
			p.edits = append(p.edits, model.EditRequest{
				FilePath: p.block.Path,
				Search:   strings.Join(p.search, "\n") + "\n",
				Replace:  strings.Join(p.replace, "\n") + "\n",
			})
		}
		p.search = nil
		p.replace = nil
	case TokenBlockClose:
		p.block = BlockState{}
	}

	p.section = next
	if token == TokenAsideClose {
		return nil
	}
	p.display(line)

	if token == TokenBlockClose {
		p.fragments[len(p.fragments)-1] += codeChangeFenceEnd
		p.fragments = append(p.fragments, "")
	}
	return nil
}

func (p *parser) text(line string) {
	switch p.section {
	case sectionSearch:
		p.search = append(p.search, line)
	case sectionReplace:
		p.replace = append(p.replace, line)
	case sectionCodeChange:
		if !p.partial && strings.TrimSpace(line) != "" {
			p.logger.Debug("ignoring stray line in change block", "line", line)
		}
	}
}

// display appends a line to the current fragment unless it is part of an
// aside span.
func (p *parser) display(line string) {
	if p.section == sectionAside {
		return
	}
	p.fragments[len(p.fragments)-1] += line + "\n"
}

func (p *parser) fail(lineNumber int, line string, err error) error {
	return &ParseError{
		LineNumber: lineNumber,
		Line:       line,
		Content:    p.content,
		Err:        err,
	}
}

func extractFilePath(line string) (string, error) {
	match := filePathRegex.FindStringSubmatch(line)
	if len(match) != 2 {
		return "", fmt.Errorf("no file attribute in %q", strings.TrimSpace(line))
	}
	return cleanFilePath(match[1])
}

// cleanFilePath strips the decorations models tend to put around a path.
func cleanFilePath(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "..." || strings.HasPrefix(name, BlockOpenMarker) {
		return "", fmt.Errorf("unusable file name %q", name)
	}

	name = strings.TrimSuffix(name, ":")
	name = strings.TrimPrefix(name, "#")
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "`")
	name = strings.TrimSuffix(name, "`")
	name = strings.TrimPrefix(name, "*")
	name = strings.TrimSuffix(name, "*")
	name = strings.ReplaceAll(name, `\_`, "_")

	if name == "" {
		return "", fmt.Errorf("empty file name")
	}
	return name, nil
}
