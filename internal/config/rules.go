package config

import (
	"fmt"
	"os"
	"sort"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// RulesFile is the on-disk form of the classification table.
//
// EXAMPLE:
//
//	prefix_length: 2
//	categories:
//	  A: {name: "Innere Verwaltung", color: "#1f77b4", rank: 1}
//	prefixes:
//	  "11": A
type RulesFile struct {
	// PrefixLength is the fixed width of every prefix.
	// Default: 2
	PrefixLength int `yaml:"prefix_length"`

	Categories map[string]CategoryDef `yaml:"categories"`

	// Prefixes maps a code prefix to a key of Categories.
	Prefixes map[string]string `yaml:"prefixes"`
}

// CategoryDef describes one top-level category.
type CategoryDef struct {
	Name  string `yaml:"name"`
	Color string `yaml:"color"`
	Rank  int    `yaml:"rank"`
}

// LoadRules reads and checks a rules file.
func LoadRules(path string) (*RulesFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a rules document.
func ParseRules(data []byte) (*RulesFile, error) {
	var rf RulesFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	if rf.PrefixLength == 0 {
		rf.PrefixLength = 2
	}
	if _, err := rf.Rules(); err != nil {
		return nil, err
	}
	return &rf, nil
}

// Rules flattens the file into one rule per prefix, sorted by prefix.
func (rf *RulesFile) Rules() ([]types.ClassificationRule, error) {
	if len(rf.Prefixes) == 0 {
		return nil, fmt.Errorf("rules file defines no prefixes")
	}

	rules := make([]types.ClassificationRule, 0, len(rf.Prefixes))
	for prefix, category := range rf.Prefixes {
		if utf8.RuneCountInString(prefix) != rf.PrefixLength {
			return nil, fmt.Errorf("prefix %q does not have length %d", prefix, rf.PrefixLength)
		}
		if !safeSegment(category) {
			return nil, fmt.Errorf("category %q is not a valid file name", category)
		}
		def, ok := rf.Categories[category]
		if !ok {
			return nil, fmt.Errorf("prefix %q refers to undefined category %q", prefix, category)
		}
		name := def.Name
		if name == "" {
			name = category
		}
		rules = append(rules, types.ClassificationRule{
			Prefix:   prefix,
			Category: category,
			Name:     name,
			Color:    def.Color,
			Rank:     def.Rank,
		})
	}

	sort.Slice(rules, func(i, j int) bool { return rules[i].Prefix < rules[j].Prefix })
	return rules, nil
}
