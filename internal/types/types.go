// =============================================================================
// Haushaltsdaten - Shared Types
// =============================================================================
//
// This package contains the data model shared by every pipeline stage. Types
// live here to avoid import cycles between:
//   - loader
//   - classifier
//   - aggregator, hierarchy, flatlist
//   - search, validation, writer
//
// All values in this package are treated as immutable once the stage that
// produced them has returned.
//
// =============================================================================

package types

// =============================================================================
// LEDGER ROWS
// =============================================================================

// RecordKind is the accounting side of a ledger row.
type RecordKind string

const (
	// KindExpense marks spending lines (Ausgaben, Aufwendungen).
	KindExpense RecordKind = "expense"

	// KindRevenue marks income lines (Einnahmen, Ertraege).
	KindRevenue RecordKind = "revenue"
)

// Valid reports whether k is one of the known kinds.
func (k RecordKind) Valid() bool {
	return k == KindExpense || k == KindRevenue
}

// LedgerRow is one raw budget line as produced by the loader.
type LedgerRow struct {
	// ID is the unique, stable row identifier.
	// If the source has no ID column it is the zero-padded row number.
	ID string

	// RowNumber is the 1-indexed data row number in the source.
	// Useful for error reporting.
	RowNumber int

	// Year is the fiscal year of the row.
	// 0 means the row carries amounts for several years in separate columns.
	Year int

	// RecordType is the raw record type label (e.g. "Ausgabetitel").
	// It is also the record-type segment of the output path.
	RecordType string

	// Kind is the accounting side the record type maps to.
	Kind RecordKind

	// Amounts holds the monetary value per fiscal year.
	Amounts map[int]Amount

	// Fields contains every raw column of the row, keyed by header name.
	Fields map[string]string
}

// Amount returns the value booked for the given fiscal year, or zero.
func (r LedgerRow) Amount(year int) Amount {
	return r.Amounts[year]
}

// HasYear reports whether the row carries a value for year.
func (r LedgerRow) HasYear(year int) bool {
	_, ok := r.Amounts[year]
	return ok
}

// Field returns the raw value of a column, or "" when absent.
func (r LedgerRow) Field(name string) string {
	if name == "" {
		return ""
	}
	return r.Fields[name]
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ClassificationRule maps a fixed-length code prefix to a top-level category.
type ClassificationRule struct {
	// Prefix is the fixed-width code prefix, e.g. "11".
	Prefix string `json:"prefix" yaml:"prefix"`

	// Category is the category identifier, e.g. "A".
	Category string `json:"category" yaml:"category"`

	// Name is the display label of the category.
	Name string `json:"name" yaml:"name"`

	// Color is the display color used by the treemap.
	Color string `json:"color,omitempty" yaml:"color"`

	// Rank is the sort key used by consumers that order by importance.
	Rank int `json:"rank" yaml:"rank"`
}

// CategoryPath is the resolved hierarchical position of a row.
type CategoryPath struct {
	Category     string
	CategoryName string
	Color        string
	Rank         int

	// Secondary is the next-finer grouping key (product or account code).
	Secondary string

	// SecondaryName is the display label of the secondary group.
	SecondaryName string

	// Tertiary is the finest key, typically the line item title.
	Tertiary string
}

// ClassifiedRow is an admitted row together with its category path.
type ClassifiedRow struct {
	Row  LedgerRow
	Path CategoryPath
}

// ID is a shortcut for the underlying row identifier.
func (c ClassifiedRow) ID() string {
	return c.Row.ID
}
