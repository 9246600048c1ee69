package driver

import (
	"regexp"
	"strings"
)

var hasTextPattern = regexp.MustCompile(`^(.*?):has-text\((?:'([^']*)'|"([^"]*)")\)\s*$`)

// Selector is a parsed selector: a CSS part and an optional text filter
type Selector struct {
	CSS  string
	Text string
}

// ParseSelector splits a trailing :has-text('...') filter off a CSS selector
func ParseSelector(s string) Selector {
	m := hasTextPattern.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Selector{CSS: strings.TrimSpace(s)}
	}
	css := strings.TrimSpace(m[1])
	if css == "" {
		css = "*"
	}
	text := m[2]
	if text == "" {
		text = m[3]
	}
	return Selector{CSS: css, Text: text}
}

// HasTextFilter reports whether the selector carries a text filter
func (s Selector) HasTextFilter() bool {
	return s.Text != ""
}

// MatchText reports whether rendered text satisfies the filter. Matching is
// case-insensitive and whitespace-normalized.
func (s Selector) MatchText(text string) bool {
	if s.Text == "" {
		return true
	}
	return strings.Contains(normalizeText(text), normalizeText(s.Text))
}

func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
