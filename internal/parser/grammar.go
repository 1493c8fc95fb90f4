package parser

import (
	"errors"
	"strings"
)

// Markers recognized in a model response. Each must be the first
// non-whitespace text on its line.
const (
	BlockOpenMarker  = "<change_code"
	BlockCloseMarker = "</change_code>"
	SearchMarker     = "<<<<<<< SEARCH"
	DividerMarker    = "======="
	ReplaceMarker    = ">>>>>>> REPLACE"
	AsideOpenMarker  = "<melthinking>"
	AsideCloseMarker = "</melthinking>"
)

const (
	codeChangeFence    = "```codechange\n"
	codeChangeFenceEnd = "```\n"
)

var (
	ErrMultipleMarkers      = errors.New("line has multiple markers")
	ErrMarkerNotLeading     = errors.New("line does not start with its marker")
	ErrUnexpectedTransition = errors.New("unexpected marker")
	ErrMissingFilePath      = errors.New("unable to get file path")
)

// Token is the category of a single response line.
type Token int

const (
	TokenText Token = iota
	TokenBlockOpen
	TokenBlockClose
	TokenSearchOpen
	TokenDivider
	TokenReplaceClose
	TokenAsideOpen
	TokenAsideClose
)

var markerTokens = []struct {
	marker string
	token  Token
}{
	{SearchMarker, TokenSearchOpen},
	{DividerMarker, TokenDivider},
	{ReplaceMarker, TokenReplaceClose},
	{BlockOpenMarker, TokenBlockOpen},
	{BlockCloseMarker, TokenBlockClose},
	{AsideOpenMarker, TokenAsideOpen},
	{AsideCloseMarker, TokenAsideClose},
}

func (t Token) String() string {
	switch t {
	case TokenText:
		return "text"
	case TokenBlockOpen:
		return "block open"
	case TokenBlockClose:
		return "block close"
	case TokenSearchOpen:
		return "search open"
	case TokenDivider:
		return "divider"
	case TokenReplaceClose:
		return "replace close"
	case TokenAsideOpen:
		return "aside open"
	case TokenAsideClose:
		return "aside close"
	default:
		return "unknown"
	}
}

// Classify maps a line to its token. A line carrying more than one marker,
// or a marker that is not the first thing on the line, is an error. The
// divider only counts when it is the whole line.
func Classify(line string) (Token, error) {
	trimmed := strings.TrimSpace(line)

	var found []int
	for i, m := range markerTokens {
		if m.token == TokenDivider {
			// A longer run of '=' is a setext heading underline, not a divider.
			if trimmed == m.marker {
				found = append(found, i)
			}
			continue
		}
		if strings.Contains(trimmed, m.marker) {
			found = append(found, i)
		}
	}

	switch {
	case len(found) == 0:
		return TokenText, nil
	case len(found) > 1:
		return TokenText, ErrMultipleMarkers
	}

	m := markerTokens[found[0]]
	if !strings.HasPrefix(trimmed, m.marker) {
		return TokenText, ErrMarkerNotLeading
	}
	return m.token, nil
}

// section is a state of the response grammar.
type section int

const (
	sectionTopLevel section = iota
	sectionAside
	sectionCodeChange
	sectionSearch
	sectionReplace
)

func (s section) String() string {
	switch s {
	case sectionTopLevel:
		return "topLevel"
	case sectionAside:
		return "aside"
	case sectionCodeChange:
		return "codeChange"
	case sectionSearch:
		return "search"
	case sectionReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// transitions lists the sections reachable from each section.
var transitions = map[section][]section{
	sectionTopLevel:   {sectionAside, sectionCodeChange},
	sectionAside:      {sectionTopLevel},
	sectionCodeChange: {sectionTopLevel, sectionSearch},
	sectionSearch:     {sectionReplace},
	sectionReplace:    {sectionCodeChange},
}

// targets maps each marker token to the section it enters.
var targets = map[Token]section{
	TokenBlockOpen:    sectionCodeChange,
	TokenBlockClose:   sectionTopLevel,
	TokenSearchOpen:   sectionSearch,
	TokenDivider:      sectionReplace,
	TokenReplaceClose: sectionCodeChange,
	TokenAsideOpen:    sectionAside,
	TokenAsideClose:   sectionTopLevel,
}

func allowed(from, to section) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}
