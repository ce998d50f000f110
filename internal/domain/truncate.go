package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// DefaultMaxLines is the number of leading lines kept when no override is set.
	DefaultMaxLines = 7
	// DefaultMaxChars is the character budget used when no override is set.
	DefaultMaxChars = 400
	// Ellipsis marks a truncated preview.
	Ellipsis = "..."

	// softCutWindow is how far back from the budget a word break may be searched.
	softCutWindow = 30
)

// Truncator bounds preview text to a number of lines and characters.
//
// Lengths are counted in Unicode code points, never in bytes, so a cut
// never splits a multi-byte character.
type Truncator struct {
	MaxLines int
	MaxChars int

	// MarkupAware switches content that looks like HTML to a flat character cut,
	// so that no line or word logic runs over tags.
	MarkupAware bool
}

// NewTruncator returns a truncator; values <= 0 fall back to the defaults.
func NewTruncator(maxLines, maxChars int, markupAware bool) Truncator {
	t := Truncator{MaxLines: maxLines, MaxChars: maxChars, MarkupAware: markupAware}
	t.MaxLines, t.MaxChars = t.limits()
	return t
}

func (t Truncator) limits() (int, int) {
	lines, chars := t.MaxLines, t.MaxChars
	if lines <= 0 {
		lines = DefaultMaxLines
	}
	if chars <= 0 {
		chars = DefaultMaxChars
	}
	return lines, chars
}

// Truncate returns the trimmed preview of text.
//
// Examples (2 lines, 400 chars):
//   - "line1\nline2\nline3" -> "line1\nline2..."
//   - "  short  "           -> "short"
//   - "   "                 -> ""
func (t Truncator) Truncate(text string) string {
	maxLines, maxChars := t.limits()

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ""
	}

	// markup is cut as received, surrounding whitespace included
	if t.MarkupAware && LooksLikeMarkup(text) {
		return flatCut(text, maxChars)
	}

	lines := splitLines(text)
	kept := lines
	if len(kept) > maxLines {
		kept = kept[:maxLines]
	}
	for i := range kept {
		kept[i] = chomp(kept[i])
	}
	preview := strings.TrimSpace(strings.Join(kept, "\n"))

	exceeds := utf8.RuneCountInString(text) > maxChars || len(lines) > maxLines

	if utf8.RuneCountInString(preview) > maxChars {
		preview = softCut(preview, maxChars)
	}

	if exceeds &&
		utf8.RuneCountInString(preview) < utf8.RuneCountInString(trimmed) &&
		!strings.HasSuffix(preview, Ellipsis) {
		preview += Ellipsis
	}

	return preview
}

// LooksLikeMarkup reports whether s probably holds HTML.
func LooksLikeMarkup(s string) bool {
	return strings.Contains(s, "<") && strings.Contains(s, ">")
}

// flatCut keeps the first maxChars characters and always marks a cut.
func flatCut(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars]) + Ellipsis
}

// softCut prefers the last whitespace at or before maxChars, if it is close
// enough to the boundary; otherwise it cuts hard at maxChars.
func softCut(s string, maxChars int) string {
	runes := []rune(s)
	start := maxChars
	if start >= len(runes) {
		start = len(runes) - 1
	}
	floor := max(maxChars-softCutWindow, 1)
	for i := start; i >= floor; i-- {
		if unicode.IsSpace(runes[i]) {
			return strings.TrimRightFunc(string(runes[:i]), unicode.IsSpace)
		}
	}
	return string(runes[:maxChars])
}

// splitLines splits after each newline, keeping the terminators.
// A trailing newline does not open an extra empty line.
func splitLines(s string) []string {
	lines := strings.SplitAfter(s, "\n")
	if last := len(lines) - 1; last >= 0 && lines[last] == "" {
		lines = lines[:last]
	}
	return lines
}

func chomp(line string) string {
	line = strings.TrimSuffix(line, "\n")
	return strings.TrimSuffix(line, "\r")
}
