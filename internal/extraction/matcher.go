package extraction

import (
	"regexp"
	"strings"
)

var paragraphSeparator = regexp.MustCompile(`\n\s*\n`)

// Match applies the matcher to normalized text and returns the first value
// in document order. Line and paragraph boundaries return the whole unit
// containing the keyword regardless of direction.
func (m *Matcher) Match(text string) (string, bool) {
	switch m.boundary {
	case Word:
		sub := m.capture.FindStringSubmatch(text)
		if len(sub) < 2 {
			return "", false
		}
		return strings.TrimSpace(sub[1]), true
	case Line:
		return m.firstUnit(strings.Split(text, "\n"))
	case Paragraph:
		return m.firstUnit(paragraphSeparator.Split(text, -1))
	}
	panic("extraction: matcher compiled with unknown boundary " + string(m.boundary))
}

func (m *Matcher) firstUnit(units []string) (string, bool) {
	for _, unit := range units {
		if m.keyword.MatchString(unit) {
			return strings.TrimSpace(unit), true
		}
	}
	return "", false
}
