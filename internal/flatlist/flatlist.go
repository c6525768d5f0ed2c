// Package flatlist projects classified rows into the value-sorted listing.
package flatlist

import (
	"sort"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Item is one display record of the flat list.
type Item struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Amount      types.Amount `json:"amount"`
	Group       string       `json:"group"`
	GroupID     string       `json:"groupId"`
	District    string       `json:"district"`
	ProductCode string       `json:"productCode"`
	CostType    string       `json:"costType"`
}

// Columns names the row fields that fill the display-only attributes.
type Columns struct {
	Title    string
	Office   string
	CostType string
}

// Build returns one item per row for the given fiscal year, sorted by
// amount descending and then by ID ascending.
func Build(rows []types.ClassifiedRow, year int, cols Columns) []Item {
	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		title := r.Row.Field(cols.Title)
		if title == "" {
			title = r.Path.Tertiary
		}
		items = append(items, Item{
			ID:          r.Row.ID,
			Title:       title,
			Amount:      r.Row.Amount(year),
			Group:       r.Path.CategoryName,
			GroupID:     r.Path.Category,
			District:    r.Row.Field(cols.Office),
			ProductCode: r.Path.Secondary,
			CostType:    r.Row.Field(cols.CostType),
		})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if c := items[i].Amount.Cmp(items[j].Amount); c != 0 {
			return c > 0
		}
		return items[i].ID < items[j].ID
	})
	return items
}
