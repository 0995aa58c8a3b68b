package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Veraticus/the-alarm-must-ring/internal/common"
	"github.com/Veraticus/the-alarm-must-ring/internal/model"
	"github.com/Veraticus/the-alarm-must-ring/internal/pattern"
	"gopkg.in/yaml.v3"
)

// RuleFile is the YAML layout accepted by rule import and export.
type RuleFile struct {
	Rules []RuleEntry `yaml:"rules"`
}

// RuleEntry is one rule in a rule file. Enabled defaults to true.
type RuleEntry struct {
	Enabled             *bool    `yaml:"enabled,omitempty"`
	Name                string   `yaml:"name"`
	Pattern             string   `yaml:"pattern"`
	Calendars           []string `yaml:"calendars,omitempty"`
	LeadTimeMinutes     int      `yaml:"lead_time_minutes"`
	FirstEventOfDayOnly bool     `yaml:"first_event_of_day_only,omitempty"`
}

// LoadRulesFile reads and validates the rules in a YAML file.
func LoadRulesFile(path string) ([]model.Rule, error) {
	data, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes YAML rule entries into validated rules. Unknown keys are
// rejected so typos do not silently drop settings.
func ParseRules(data []byte) ([]model.Rule, error) {
	var file RuleFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}

	validator := pattern.NewValidator()
	rules := make([]model.Rule, 0, len(file.Rules))
	for i, entry := range file.Rules {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			name = entry.Pattern
		}
		rule := pattern.NewRule(name, entry.Pattern, entry.LeadTimeMinutes, entry.Calendars, entry.FirstEventOfDayOnly)
		if entry.Enabled != nil {
			rule.Enabled = *entry.Enabled
		}
		if err := validator.ValidateRule(rule); err != nil {
			return nil, fmt.Errorf("rule %d (%s): %w", i+1, name, err)
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// MarshalRules renders rules in the rule file layout.
func MarshalRules(rules []model.Rule) ([]byte, error) {
	file := RuleFile{Rules: make([]RuleEntry, 0, len(rules))}
	for _, rule := range rules {
		enabled := rule.Enabled
		file.Rules = append(file.Rules, RuleEntry{
			Name:                rule.Name,
			Pattern:             rule.KeywordPattern,
			Calendars:           rule.CalendarIDs,
			LeadTimeMinutes:     rule.LeadTimeMinutes,
			FirstEventOfDayOnly: rule.FirstEventOfDayOnly,
			Enabled:             &enabled,
		})
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(file); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode rules: %w", err)
	}
	return buf.Bytes(), nil
}
