package types

import "sort"

// SkipCause names why a row did not make it into the aggregation.
type SkipCause string

const (
	SkipMalformed    SkipCause = "malformed"
	SkipCostCategory SkipCause = "not_cost_category"
	SkipRecordLevel  SkipCause = "not_record_level"
	SkipMissingCode  SkipCause = "missing_code"
	SkipUnmapped     SkipCause = "unmapped"
)

// SkipCauses lists the causes in the order they are evaluated.
var SkipCauses = []SkipCause{
	SkipMalformed,
	SkipCostCategory,
	SkipRecordLevel,
	SkipMissingCode,
	SkipUnmapped,
}

// Audit collects the row counters reported after every run, failed or not.
type Audit struct {
	// Total is the number of non-empty data rows read from the source.
	Total int `json:"total"`

	// Admitted is the number of rows that passed admission and classification.
	Admitted int `json:"admitted"`

	// Skipped counts rows per cause.
	Skipped map[SkipCause]int `json:"skipped"`

	// Unmapped counts rows per unmapped code prefix.
	Unmapped map[string]int `json:"unmapped"`
}

// NewAudit returns an empty audit.
func NewAudit() *Audit {
	return &Audit{
		Skipped:  make(map[SkipCause]int),
		Unmapped: make(map[string]int),
	}
}

// Skip counts one row for cause.
func (a *Audit) Skip(cause SkipCause) {
	a.Skipped[cause]++
}

// RecordUnmapped counts one unmapped row and remembers its prefix.
func (a *Audit) RecordUnmapped(prefix string) {
	a.Skipped[SkipUnmapped]++
	a.Unmapped[prefix]++
}

// SkippedTotal is the sum over all causes.
func (a *Audit) SkippedTotal() int {
	n := 0
	for _, c := range a.Skipped {
		n += c
	}
	return n
}

// UnmappedPrefixes returns the distinct unmapped prefixes, sorted.
func (a *Audit) UnmappedPrefixes() []string {
	out := make([]string, 0, len(a.Unmapped))
	for p := range a.Unmapped {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Merge adds the counters of other into a.
func (a *Audit) Merge(other *Audit) {
	if other == nil {
		return
	}
	a.Total += other.Total
	a.Admitted += other.Admitted
	for c, n := range other.Skipped {
		a.Skipped[c] += n
	}
	for p, n := range other.Unmapped {
		a.Unmapped[p] += n
	}
}
