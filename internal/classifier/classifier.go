// =============================================================================
// Haushaltsdaten - Classifier Module
// =============================================================================
//
// The classifier decides which loaded rows take part in aggregation and
// where in the category hierarchy they belong.
//
// CLASSIFICATION PIPELINE (per row, fixed order):
//   1. Admission: cost category predicate   -> SkipCostCategory
//   2. Admission: record level predicate    -> SkipRecordLevel
//   3. Primary code shorter than the prefix -> SkipMissingCode
//   4. Prefix lookup in the rule table      -> SkipUnmapped (prefix recorded)
//   5. Project secondary/tertiary keys with the active Mode
//
// Admission runs before classification so every skip counter is
// attributable to exactly one cause.
//
// =============================================================================

package classifier

import (
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

// =============================================================================
// CLASSIFICATION MODE
// =============================================================================

// Mode is the classification column set selected once per run, e.g.
// "functional" (Hauptfunktion, Oberfunktion, Funktion) or "organizational"
// (Einzelplan, Kapitel, Titel). Every mode exposes the same key projection,
// so later stages never branch on the mode.
type Mode struct {
	Name string
	cols config.ModeColumns
}

// NewMode binds a mode name to its columns.
func NewMode(name string, cols config.ModeColumns) Mode {
	return Mode{Name: name, cols: cols}
}

// Keys is the uniform projection of a row under a Mode.
type Keys struct {
	Primary       string
	Secondary     string
	SecondaryName string
	Tertiary      string
}

// Project extracts the classification keys of a row.
func (m Mode) Project(row types.LedgerRow) Keys {
	k := Keys{
		Primary:       row.Field(m.cols.Primary),
		Secondary:     row.Field(m.cols.Secondary),
		SecondaryName: row.Field(m.cols.SecondaryLabel),
		Tertiary:      row.Field(m.cols.Tertiary),
	}
	if k.Secondary == "" {
		k.Secondary = k.Primary
	}
	if k.SecondaryName == "" {
		k.SecondaryName = k.Secondary
	}
	if k.Tertiary == "" {
		k.Tertiary = row.ID
	}
	return k
}

// =============================================================================
// CLASSIFIER
// =============================================================================

// Result is the classifier output.
type Result struct {
	// Admitted are the rows that passed admission and classification,
	// in input order.
	Admitted []types.ClassifiedRow

	// Audit holds Admitted and the per-cause skip counters.
	Audit *types.Audit

	// Unmapped lists one error per row excluded for an unknown prefix.
	Unmapped []*types.UnmappedClassificationError
}

// Classifier applies admission and classification to rows.
type Classifier struct {
	table     *Table
	mode      Mode
	admission config.AdmissionConfig
	logger    *zap.Logger
}

// New creates a Classifier. table and mode are only read.
func New(table *Table, mode Mode, admission config.AdmissionConfig, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{table: table, mode: mode, admission: admission, logger: logger.Named("classifier")}
}

// Classify runs every row through the admission filter and the rule table.
//
// PARAMETERS:
//   - rows: The loaded rows. They are not modified.
//
// RETURNS:
//   - The admitted rows with their category path and the audit counters.
//     Unknown prefixes are recovered here and never returned as an error.
func (c *Classifier) Classify(rows []types.LedgerRow) *Result {
	res := &Result{Audit: types.NewAudit()}

	for _, row := range rows {
		if cause, skipped := c.admit(row); skipped {
			res.Audit.Skip(cause)
			continue
		}

		keys := c.mode.Project(row)
		prefix, ok := c.prefix(keys.Primary)
		if !ok {
			res.Audit.Skip(types.SkipMissingCode)
			continue
		}

		rule, found := c.table.Lookup(prefix)
		if !found {
			res.Audit.RecordUnmapped(prefix)
			res.Unmapped = append(res.Unmapped, &types.UnmappedClassificationError{
				RowID: row.ID, Code: keys.Primary, Prefix: prefix,
			})
			continue
		}

		res.Admitted = append(res.Admitted, types.ClassifiedRow{
			Row: row,
			Path: types.CategoryPath{
				Category:      rule.Category,
				CategoryName:  rule.Name,
				Color:         rule.Color,
				Rank:          rule.Rank,
				Secondary:     keys.Secondary,
				SecondaryName: keys.SecondaryName,
				Tertiary:      keys.Tertiary,
			},
		})
	}
	res.Audit.Admitted = len(res.Admitted)

	if prefixes := res.Audit.UnmappedPrefixes(); len(prefixes) > 0 {
		c.logger.Warn("unmapped classification prefixes", zap.Strings("prefixes", prefixes))
	}
	c.logger.Info("classified rows",
		zap.String("mode", c.mode.Name),
		zap.Int("admitted", res.Audit.Admitted),
		zap.Int("skipped", res.Audit.SkippedTotal()),
	)
	return res
}

// admit applies the two exclusion predicates in fixed order.
func (c *Classifier) admit(row types.LedgerRow) (types.SkipCause, bool) {
	if p := c.admission.CostCategory; p.Enabled() && !p.Matches(row.Field(p.Column)) {
		return types.SkipCostCategory, true
	}
	if p := c.admission.RecordLevel; p.Enabled() && !p.Matches(row.Field(p.Column)) {
		return types.SkipRecordLevel, true
	}
	return "", false
}

// prefix cuts the fixed-width prefix of a code. Width is counted in runes.
func (c *Classifier) prefix(code string) (string, bool) {
	n := c.table.PrefixLength()
	if utf8.RuneCountInString(code) < n {
		return "", false
	}
	end := 0
	for i := 0; i < n; i++ {
		_, size := utf8.DecodeRuneInString(code[end:])
		end += size
	}
	return code[:end], true
}
