// =============================================================================
// Haushaltsdaten - Aggregator Module
// =============================================================================
//
// The aggregator groups classified rows into categories and, within each
// category, into groups keyed by the secondary classification key (product
// or account code). It sums amounts per fiscal year in one pass.
//
// GROUPING:
//   Category (rule category, e.g. "A")
//   └── Group (secondary key, e.g. product "1.100.11")
//       └── Rows (line items)
//
// Sums use exact decimals; no float ever enters a total. Categories and
// groups are ordered by identifier string so output is deterministic.
//
// =============================================================================

package aggregator

import (
	"sort"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Aggregation is the grouped view of a row set.
type Aggregation struct {
	// Years are the fiscal years that were summed.
	Years []int

	// RowCount is the number of rows aggregated.
	RowCount int

	categories map[string]*Category
}

// Category is a top-level aggregate node.
type Category struct {
	ID    string
	Name  string
	Color string
	Rank  int

	// Totals holds the summed value per fiscal year.
	Totals map[int]types.Amount

	// ItemCount is the number of rows in the category.
	ItemCount int

	groups map[string]*Group
}

// Group is a secondary aggregate node inside a category.
type Group struct {
	ID   string
	Name string

	Totals map[int]types.Amount

	// Rows are the constituent line items in input order.
	Rows []types.ClassifiedRow
}

// Aggregate sums rows for the requested years.
//
// PARAMETERS:
//   - rows: Classified rows. They are not modified.
//   - years: Fiscal years to sum. Amounts for other years are ignored.
//
// RETURNS:
//   - The aggregation. Every row lands in exactly one group.
func Aggregate(rows []types.ClassifiedRow, years []int) *Aggregation {
	agg := &Aggregation{
		Years:      append([]int(nil), years...),
		RowCount:   len(rows),
		categories: make(map[string]*Category),
	}

	for _, r := range rows {
		p := r.Path

		cat, ok := agg.categories[p.Category]
		if !ok {
			cat = &Category{
				ID:     p.Category,
				Name:   p.CategoryName,
				Color:  p.Color,
				Rank:   p.Rank,
				Totals: make(map[int]types.Amount, len(years)),
				groups: make(map[string]*Group),
			}
			agg.categories[p.Category] = cat
		}

		grp, ok := cat.groups[p.Secondary]
		if !ok {
			grp = &Group{
				ID:     p.Secondary,
				Name:   p.SecondaryName,
				Totals: make(map[int]types.Amount, len(years)),
			}
			cat.groups[p.Secondary] = grp
		}

		for _, y := range years {
			v := r.Row.Amount(y)
			cat.Totals[y] = cat.Totals[y].Add(v)
			grp.Totals[y] = grp.Totals[y].Add(v)
		}
		cat.ItemCount++
		grp.Rows = append(grp.Rows, r)
	}

	return agg
}

// Categories returns the categories ordered by ID.
func (a *Aggregation) Categories() []*Category {
	out := make([]*Category, 0, len(a.categories))
	for _, c := range a.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Category returns one category by ID.
func (a *Aggregation) Category(id string) (*Category, bool) {
	c, ok := a.categories[id]
	return c, ok
}

// Total is the sum of the top-level category totals for year.
func (a *Aggregation) Total(year int) types.Amount {
	var total types.Amount
	for _, c := range a.categories {
		total = total.Add(c.Totals[year])
	}
	return total
}

// Groups returns the groups of a category ordered by ID.
func (c *Category) Groups() []*Group {
	out := make([]*Group, 0, len(c.groups))
	for _, g := range c.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// =============================================================================
// SLICING
// =============================================================================

// SliceKey identifies one published output slice.
type SliceKey struct {
	Year       int
	RecordType string
	Scope      string
}

// Filter selects the rows of one slice. An empty scopeValue keeps all
// scopes.
func Filter(rows []types.ClassifiedRow, year int, recordType, scopeColumn, scopeValue string) []types.ClassifiedRow {
	var out []types.ClassifiedRow
	for _, r := range rows {
		if !r.Row.HasYear(year) || r.Row.RecordType != recordType {
			continue
		}
		if scopeValue != "" && r.Row.Field(scopeColumn) != scopeValue {
			continue
		}
		out = append(out, r)
	}
	return out
}

// YearsOf returns the sorted union of fiscal years booked in rows.
func YearsOf(rows []types.ClassifiedRow) []int {
	seen := map[int]bool{}
	var years []int
	for _, r := range rows {
		for y := range r.Row.Amounts {
			if !seen[y] {
				seen[y] = true
				years = append(years, y)
			}
		}
	}
	sort.Ints(years)
	return years
}

// RecordTypesOf returns the sorted distinct record type labels in rows.
func RecordTypesOf(rows []types.ClassifiedRow) []string {
	seen := map[string]bool{}
	var out []string
	for _, r := range rows {
		if !seen[r.Row.RecordType] {
			seen[r.Row.RecordType] = true
			out = append(out, r.Row.RecordType)
		}
	}
	sort.Strings(out)
	return out
}
