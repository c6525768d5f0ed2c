package classifier

import (
	"fmt"
	"sort"
	"unicode/utf8"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Table is the immutable prefix -> rule lookup built once per run.
// It is safe for concurrent use.
type Table struct {
	prefixLen int
	rules     map[string]types.ClassificationRule
	ordered   []types.ClassificationRule
}

// NewTable builds a table from rules that all share prefixLen.
func NewTable(prefixLen int, rules []types.ClassificationRule) (*Table, error) {
	if prefixLen < 1 {
		return nil, fmt.Errorf("prefix length must be positive, got %d", prefixLen)
	}
	t := &Table{
		prefixLen: prefixLen,
		rules:     make(map[string]types.ClassificationRule, len(rules)),
	}
	for _, r := range rules {
		if utf8.RuneCountInString(r.Prefix) != prefixLen {
			return nil, fmt.Errorf("prefix %q does not have length %d", r.Prefix, prefixLen)
		}
		if _, dup := t.rules[r.Prefix]; dup {
			return nil, fmt.Errorf("duplicate rule for prefix %q", r.Prefix)
		}
		t.rules[r.Prefix] = r
		t.ordered = append(t.ordered, r)
	}
	sort.Slice(t.ordered, func(i, j int) bool { return t.ordered[i].Prefix < t.ordered[j].Prefix })
	return t, nil
}

// LoadTable reads a rules file into a table.
func LoadTable(path string) (*Table, error) {
	rf, err := config.LoadRules(path)
	if err != nil {
		return nil, err
	}
	return FromRulesFile(rf)
}

// FromRulesFile converts a parsed rules file.
func FromRulesFile(rf *config.RulesFile) (*Table, error) {
	rules, err := rf.Rules()
	if err != nil {
		return nil, err
	}
	return NewTable(rf.PrefixLength, rules)
}

// PrefixLength is the fixed prefix width.
func (t *Table) PrefixLength() int { return t.prefixLen }

// Lookup returns the rule for an exact prefix.
func (t *Table) Lookup(prefix string) (types.ClassificationRule, bool) {
	r, ok := t.rules[prefix]
	return r, ok
}

// Rules returns a copy of all rules ordered by prefix.
func (t *Table) Rules() []types.ClassificationRule {
	out := make([]types.ClassificationRule, len(t.ordered))
	copy(out, t.ordered)
	return out
}
