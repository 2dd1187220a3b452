package extraction

import (
	"fmt"
	"regexp"
	"strings"
)

// Matcher is a compiled extraction rule. It is immutable and safe to reuse
// across messages and goroutines.
type Matcher struct {
	rule      ExtractionRule
	direction Direction
	boundary  Boundary
	// keyword matches the escaped keyword alone; used for line and paragraph containment.
	keyword *regexp.Regexp
	// capture holds the word pattern; nil for line and paragraph boundaries.
	capture *regexp.Regexp
}

// Compile turns a rule into a Matcher. Keyword text is matched literally:
// metacharacters are escaped and whitespace runs match any whitespace.
func Compile(rule ExtractionRule) (*Matcher, error) {
	pattern := keywordPattern(rule.Keyword)
	if pattern == "" {
		return nil, ErrEmptyKeyword
	}
	if err := rule.Validate(); err != nil {
		return nil, err
	}

	m := &Matcher{
		rule:      rule,
		direction: rule.direction(),
		boundary:  rule.boundary(),
	}

	var err error
	if m.keyword, err = regexp.Compile(`(?i)` + pattern); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}

	if m.boundary == Word {
		var expr string
		if m.direction == Before {
			expr = `(?i)(\S+)\s*` + pattern
		} else {
			expr = `(?i)` + pattern + `\s*[:#-]?\s*(\S+)`
		}
		if m.capture, err = regexp.Compile(expr); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRule, err)
		}
	}

	return m, nil
}

// Rule returns the rule the matcher was compiled from.
func (m *Matcher) Rule() ExtractionRule {
	return m.rule
}

// String returns the compiled pattern, for debugging.
func (m *Matcher) String() string {
	if m.capture != nil {
		return m.capture.String()
	}
	return fmt.Sprintf("%s[%s]", m.boundary, m.keyword.String())
}

func keywordPattern(keyword string) string {
	parts := strings.Fields(keyword)
	for i, p := range parts {
		parts[i] = regexp.QuoteMeta(p)
	}
	return strings.Join(parts, `\s+`)
}
