package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"github.com/spf13/viper"

	"inbox2excel/internal/extraction"
)

// collectRules merges --rule specs and the rules file, specs first
func collectRules(specs []string, file string) ([]extraction.ExtractionRule, error) {
	var rules []extraction.ExtractionRule
	for _, spec := range specs {
		rule, err := extraction.ParseRuleSpec(spec)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	if file != "" {
		fromFile, err := loadRulesFile(file)
		if err != nil {
			return nil, err
		}
		rules = append(rules, fromFile...)
	}

	if len(rules) == 0 {
		return nil, fmt.Errorf("no extraction rules given (use --rule or --rules-file)")
	}

	invalid := lo.Filter(rules, func(r extraction.ExtractionRule, _ int) bool {
		return r.Validate() != nil
	})
	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid rule %q: %w", invalid[0].String(), invalid[0].Validate())
	}
	return rules, nil
}

// loadRulesFile reads the "rules" list of a JSON, YAML or TOML file. The
// list goes through the JSON decoder so the API field aliases apply.
func loadRulesFile(path string) ([]extraction.ExtractionRule, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	raw := v.Get("rules")
	if raw == nil {
		return nil, fmt.Errorf("rules file %s has no \"rules\" list", path)
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	var rules []extraction.ExtractionRule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("invalid rules in %s: %w", path, err)
	}
	return rules, nil
}
