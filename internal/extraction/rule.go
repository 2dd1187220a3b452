package extraction

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Direction selects which side of the keyword holds the value.
type Direction string

const (
	After  Direction = "after"
	Before Direction = "before"
)

// Boundary selects how far the captured span extends from the keyword.
type Boundary string

const (
	Word      Boundary = "word"
	Line      Boundary = "line"
	Paragraph Boundary = "paragraph"
)

var (
	// ErrInvalidRule is returned for rules the compiler cannot turn into a matcher.
	ErrInvalidRule = errors.New("invalid extraction rule")
	// ErrEmptyKeyword is returned when a rule keyword is empty after trimming.
	ErrEmptyKeyword = fmt.Errorf("%w: keyword is empty", ErrInvalidRule)
)

// ParseDirection parses a direction name, ignoring case and surrounding space.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case After:
		return After, nil
	case Before:
		return Before, nil
	}
	return "", fmt.Errorf("%w: unknown direction %q", ErrInvalidRule, s)
}

// ParseBoundary parses a boundary name, ignoring case and surrounding space.
func ParseBoundary(s string) (Boundary, error) {
	switch Boundary(strings.ToLower(strings.TrimSpace(s))) {
	case Word:
		return Word, nil
	case Line:
		return Line, nil
	case Paragraph:
		return Paragraph, nil
	}
	return "", fmt.Errorf("%w: unknown boundary %q", ErrInvalidRule, s)
}

// ExtractionRule describes one field to pull out of a message body.
type ExtractionRule struct {
	FieldName string    `json:"fieldName,omitempty"`
	Keyword   string    `json:"keyword"`
	Direction Direction `json:"direction"`
	Boundary  Boundary  `json:"boundary"`
}

// UnmarshalJSON accepts the canonical keys as well as the rule editor payload
// ({type, keyword, boundary}) and its form names ({extractType, searchText, endType}).
func (r *ExtractionRule) UnmarshalJSON(data []byte) error {
	var raw struct {
		FieldName   string `json:"fieldName"`
		Name        string `json:"name"`
		Keyword     string `json:"keyword"`
		SearchText  string `json:"searchText"`
		Direction   string `json:"direction"`
		Type        string `json:"type"`
		ExtractType string `json:"extractType"`
		Boundary    string `json:"boundary"`
		EndType     string `json:"endType"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*r = ExtractionRule{
		FieldName: firstNonEmpty(raw.FieldName, raw.Name),
		Keyword:   firstNonEmpty(raw.Keyword, raw.SearchText),
	}

	if d := firstNonEmpty(raw.Direction, raw.Type, raw.ExtractType); d != "" {
		dir, err := ParseDirection(d)
		if err != nil {
			return err
		}
		r.Direction = dir
	}
	if b := firstNonEmpty(raw.Boundary, raw.EndType); b != "" {
		boundary, err := ParseBoundary(b)
		if err != nil {
			return err
		}
		r.Boundary = boundary
	}
	return nil
}

// Validate checks the rule shape. An empty keyword is reported as ErrEmptyKeyword.
func (r ExtractionRule) Validate() error {
	if strings.TrimSpace(r.Keyword) == "" {
		return ErrEmptyKeyword
	}
	if r.Direction != "" {
		if _, err := ParseDirection(string(r.Direction)); err != nil {
			return err
		}
	}
	if r.Boundary != "" {
		if _, err := ParseBoundary(string(r.Boundary)); err != nil {
			return err
		}
	}
	return nil
}

// String renders the rule in the compact CLI form direction:boundary:keyword[=name].
// An '=' inside the keyword or name is written as \=.
func (r ExtractionRule) String() string {
	s := fmt.Sprintf("%s:%s:%s", r.direction(), r.boundary(), escapeEquals(r.Keyword))
	if r.FieldName != "" {
		s += "=" + escapeEquals(r.FieldName)
	}
	return s
}

// ParseRuleSpec parses the compact form produced by String. The field name
// is optional and follows the last unescaped '='; direction and boundary are
// required. Write \= for a literal '=' in the keyword.
func ParseRuleSpec(spec string) (ExtractionRule, error) {
	parts := strings.SplitN(spec, ":", 3)
	if len(parts) != 3 {
		return ExtractionRule{}, fmt.Errorf("%w: expected direction:boundary:keyword, got %q", ErrInvalidRule, spec)
	}

	dir, err := ParseDirection(parts[0])
	if err != nil {
		return ExtractionRule{}, err
	}
	boundary, err := ParseBoundary(parts[1])
	if err != nil {
		return ExtractionRule{}, err
	}

	keyword, name := splitFieldName(parts[2])
	rule := ExtractionRule{Keyword: keyword, FieldName: strings.TrimSpace(name), Direction: dir, Boundary: boundary}
	if strings.TrimSpace(rule.Keyword) == "" {
		return ExtractionRule{}, ErrEmptyKeyword
	}
	return rule, nil
}

var unescapeEquals = strings.NewReplacer(`\=`, "=")

func escapeEquals(s string) string {
	return strings.ReplaceAll(s, "=", `\=`)
}

// splitFieldName cuts s at its last unescaped '='.
func splitFieldName(s string) (keyword, name string) {
	cut := -1
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '=':
			i++
		case s[i] == '=':
			cut = i
		}
	}
	if cut < 0 {
		return unescapeEquals.Replace(s), ""
	}
	return unescapeEquals.Replace(s[:cut]), unescapeEquals.Replace(s[cut+1:])
}

// direction returns the effective direction, After when unset.
func (r ExtractionRule) direction() Direction {
	if r.Direction == "" {
		return After
	}
	return r.Direction
}

// boundary returns the effective boundary, Word when unset.
func (r ExtractionRule) boundary() Boundary {
	if r.Boundary == "" {
		return Word
	}
	return r.Boundary
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
