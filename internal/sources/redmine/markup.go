package redmine

import (
	"fmt"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
)

// **_text_** (GFM bold italic) -> *_text_*
var boldItalicRe = regexp.MustCompile(`(?s)\*\*_(.+?)_\*\*`)

// markupConverter turns issue descriptions (HTML) into Slack mrkdwn.
type markupConverter struct {
	converter *md.Converter
}

func newMarkupConverter() *markupConverter {
	converter := md.NewConverter("", true, &md.Options{
		EmDelimiter:     "_",
		StrongDelimiter: "**",
	})
	converter.Use(plugin.GitHubFlavored())

	return &markupConverter{converter: converter}
}

// Convert returns the mrkdwn rendering of an HTML description.
func (c *markupConverter) Convert(html string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("html conversion panicked: %v", r)
		}
	}()

	gfm, err := c.converter.ConvertString(html)
	if err != nil {
		return "", fmt.Errorf("failed to convert html to markdown: %w", err)
	}
	return gfmToMrkdwn(gfm), nil
}

// gfmToMrkdwn rewrites GitHub bold markers into Slack's single-asterisk form.
func gfmToMrkdwn(s string) string {
	return convertBold(boldItalicRe.ReplaceAllString(s, "*_${1}_*"))
}

// convertBold turns **text** into *text* when the run holds no asterisk and
// its markers touch no other asterisk. RE2 has no lookaround, so the string
// is scanned: a rejected opening marker moves the scan one byte forward and
// the next position is tried, as a lookbehind regexp would.
func convertBold(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	last := 0
	for i := 0; i+1 < len(s); {
		end, ok := boldRunAt(s, i)
		if !ok {
			i++
			continue
		}
		b.WriteString(s[last:i])
		b.WriteByte('*')
		b.WriteString(s[i+2 : end-2])
		b.WriteByte('*')
		last, i = end, end
	}
	b.WriteString(s[last:])
	return b.String()
}

// boldRunAt reports whether a bold run opens at i and returns its end.
func boldRunAt(s string, i int) (int, bool) {
	if s[i] != '*' || s[i+1] != '*' || (i > 0 && s[i-1] == '*') {
		return 0, false
	}
	closing := strings.IndexByte(s[i+2:], '*')
	if closing <= 0 {
		return 0, false
	}
	closing += i + 2
	end := closing + 2
	if end > len(s) || s[closing+1] != '*' || (end < len(s) && s[end] == '*') {
		return 0, false
	}
	return end, true
}
