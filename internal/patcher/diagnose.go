package patcher

import (
	"strings"
	"unicode/utf8"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/sokinpui/melt.go/model"
)

const (
	mismatchWindow = 10

	// maxPatternBytes is the bitap limit of diffmatchpatch.
	maxPatternBytes = 32

	// matchDistanceBase keeps distance from the file start from dominating
	// the bitap score.
	matchDistanceBase = 1000
)

// diagnose explains why edit could not be applied to content.
func diagnose(path string, index int, content string, edit model.EditRequest) model.Diagnostic {
	matched, mismatch := longestPrefixMatch(content, edit.Search, mismatchWindow)
	return model.Diagnostic{
		Path:      path,
		EditIndex: index,
		Matched:   matched,
		Mismatch:  mismatch,
		NearLine:  nearestLine(content, edit.Search),
	}
}

// longestPrefixMatch returns the longest prefix of search that occurs in
// text, and up to window runes of search that follow it.
func longestPrefixMatch(text, search string, window int) (string, string) {
	runes := []rune(search)

	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if strings.Contains(text, string(runes[:mid])) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}

	end := lo + window
	if end > len(runes) {
		end = len(runes)
	}
	return string(runes[:lo]), string(runes[lo:end])
}

// nearestLine uses a bitap search for the first non-blank search line and
// returns the 1-based line where the closest match starts, or 0.
func nearestLine(content, search string) int {
	var pattern string
	for _, line := range splitLines(search) {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			pattern = trimmed
			break
		}
	}
	if pattern == "" || content == "" {
		return 0
	}
	pattern = truncateBytes(pattern, maxPatternBytes)

	dmp := diffmatchpatch.New()
	dmp.MatchDistance = matchDistanceBase + 4*len(content)
	loc := dmp.MatchMain(content, pattern, 0)
	if loc < 0 || loc > len(content) {
		return 0
	}
	return strings.Count(content[:loc], "\n") + 1
}

func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
