package extraction

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const (
	// NotFound is the value emitted when a rule does not match a message.
	NotFound = "Not Found"
	// NoKeyword is the value emitted for a rule whose keyword is empty.
	NoKeyword = "No Keyword Provided"
)

// Message is the read-only input the extractor works on.
type Message struct {
	Subject    string
	Sender     string
	ReceivedAt time.Time
	BodyHTML   string
}

// Record is the extraction result for one message.
type Record struct {
	Subject       string    `json:"subject"`
	Sender        string    `json:"sender"`
	Date          time.Time `json:"date"`
	ExtractedData Fields    `json:"extractedData"`
}

// RuleSet is a batch of rules compiled once and applied to many bodies.
type RuleSet struct {
	keys     []string
	matchers []*Matcher
	// errs holds the compile error for rules that have no matcher.
	errs []error
}

// NewRuleSet compiles every rule and assigns output keys. Invalid rules are
// kept so that every rule still yields a field.
func NewRuleSet(rules []ExtractionRule) *RuleSet {
	rs := &RuleSet{
		keys:     FieldKeys(rules),
		matchers: make([]*Matcher, len(rules)),
		errs:     make([]error, len(rules)),
	}
	for i, rule := range rules {
		rs.matchers[i], rs.errs[i] = Compile(rule)
	}
	return rs
}

// Keys returns the output keys in rule order.
func (rs *RuleSet) Keys() []string {
	return append([]string(nil), rs.keys...)
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.keys)
}

// Errors returns the compile error of each invalid rule keyed by output key.
func (rs *RuleSet) Errors() map[string]error {
	out := make(map[string]error)
	for i, err := range rs.errs {
		if err != nil {
			out[rs.keys[i]] = err
		}
	}
	return out
}

// Apply runs every rule against already normalized text.
func (rs *RuleSet) Apply(text string) Fields {
	fields := make(Fields, len(rs.keys))
	for i, key := range rs.keys {
		fields[i] = Field{Key: key, Value: rs.value(i, text)}
	}
	return fields
}

func (rs *RuleSet) value(i int, text string) string {
	m := rs.matchers[i]
	if m == nil {
		if errors.Is(rs.errs[i], ErrEmptyKeyword) {
			return NoKeyword
		}
		return NotFound
	}
	if v, ok := m.Match(text); ok {
		return v
	}
	return NotFound
}

// Extract produces one record per message, in message order, with one field
// per rule. Rules are compiled once for the whole batch.
func Extract(messages []Message, rules []ExtractionRule) []Record {
	return NewRuleSet(rules).ExtractAll(messages)
}

// ExtractAll applies the rule set to a batch of messages.
func (rs *RuleSet) ExtractAll(messages []Message) []Record {
	records := make([]Record, len(messages))
	for i, msg := range messages {
		records[i] = Record{
			Subject:       msg.Subject,
			Sender:        msg.Sender,
			Date:          msg.ReceivedAt,
			ExtractedData: rs.Apply(Normalize(msg.BodyHTML)),
		}
	}
	return records
}

// FieldKeys assigns an output key to each rule. A trimmed field name that is
// unique within the set is used as is. Missing and duplicated names fall back
// to field_<n> with n the 1-based rule index; when that key is already taken
// by an explicit name it gets a _2, _3, ... suffix.
func FieldKeys(rules []ExtractionRule) []string {
	counts := make(map[string]int, len(rules))
	for _, rule := range rules {
		if name := strings.TrimSpace(rule.FieldName); name != "" {
			counts[name]++
		}
	}

	taken := make(map[string]bool, len(rules))
	for name, n := range counts {
		if n == 1 {
			taken[name] = true
		}
	}

	keys := make([]string, len(rules))
	for i, rule := range rules {
		name := strings.TrimSpace(rule.FieldName)
		if name != "" && counts[name] == 1 {
			keys[i] = name
			continue
		}

		base := fmt.Sprintf("field_%d", i+1)
		key := base
		for n := 2; taken[key]; n++ {
			key = fmt.Sprintf("%s_%d", base, n)
		}
		taken[key] = true
		keys[i] = key
	}
	return keys
}

// FieldSummary counts how often a field matched across a batch.
type FieldSummary struct {
	Key      string `json:"key"`
	Matched  int    `json:"matched"`
	NotFound int    `json:"notFound"`
}

// Summarize counts matched and unmatched values per field key.
func Summarize(records []Record) []FieldSummary {
	var summaries []FieldSummary
	index := make(map[string]int)
	for _, rec := range records {
		for _, field := range rec.ExtractedData {
			i, ok := index[field.Key]
			if !ok {
				i = len(summaries)
				index[field.Key] = i
				summaries = append(summaries, FieldSummary{Key: field.Key})
			}
			if field.Value == NotFound || field.Value == NoKeyword {
				summaries[i].NotFound++
			} else {
				summaries[i].Matched++
			}
		}
	}
	return summaries
}

// Extractor wraps Extract with logging.
type Extractor struct {
	logger *slog.Logger
}

// NewExtractor creates an extractor. A nil logger uses slog.Default.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger}
}

// Extract runs the batch and logs a per-field summary at debug level.
func (e *Extractor) Extract(messages []Message, rules []ExtractionRule) []Record {
	start := time.Now()
	rs := NewRuleSet(rules)
	for key, err := range rs.Errors() {
		e.logger.Warn("Skipping invalid extraction rule", "field", key, "error", err)
	}

	records := rs.ExtractAll(messages)

	e.logger.Debug("Extraction completed",
		"messages", len(messages),
		"rules", rs.Len(),
		"duration", time.Since(start))
	for _, s := range Summarize(records) {
		e.logger.Debug("Field summary", "field", s.Key, "matched", s.Matched, "not_found", s.NotFound)
	}
	return records
}
