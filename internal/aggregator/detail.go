package aggregator

import (
	"sort"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// DetailColumns names the row fields copied into category detail products.
type DetailColumns struct {
	Title    string
	Office   string
	CostType string
}

// CategoryDetail is the drill-down document of one category in one slice.
type CategoryDetail struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     string       `json:"color,omitempty"`
	Value     types.Amount `json:"value"`
	ItemCount int          `json:"itemCount"`
	Products  []Product    `json:"products"`
}

// Product is one line item of a CategoryDetail.
type Product struct {
	ID          string       `json:"id"`
	ProductCode string       `json:"productCode"`
	Group       string       `json:"group"`
	Description string       `json:"description"`
	Office      string       `json:"amt"`
	Value       types.Amount `json:"value"`
	CostType    string       `json:"costType"`
}

// Details returns one detail document per category, ordered by category ID.
// Products follow the group order of the category, rows within a group by ID.
func Details(agg *Aggregation, year int, cols DetailColumns) []CategoryDetail {
	cats := agg.Categories()
	out := make([]CategoryDetail, 0, len(cats))
	for _, c := range cats {
		d := CategoryDetail{
			ID:        c.ID,
			Name:      c.Name,
			Color:     c.Color,
			Value:     c.Totals[year],
			ItemCount: c.ItemCount,
			Products:  make([]Product, 0, c.ItemCount),
		}
		for _, g := range c.Groups() {
			rows := append([]types.ClassifiedRow(nil), g.Rows...)
			sort.SliceStable(rows, func(i, j int) bool { return rows[i].ID() < rows[j].ID() })
			for _, r := range rows {
				desc := r.Row.Field(cols.Title)
				if desc == "" {
					desc = r.Path.Tertiary
				}
				d.Products = append(d.Products, Product{
					ID:          r.Row.ID,
					ProductCode: g.ID,
					Group:       g.Name,
					Description: desc,
					Office:      r.Row.Field(cols.Office),
					Value:       r.Row.Amount(year),
					CostType:    r.Row.Field(cols.CostType),
				})
			}
		}
		out = append(out, d)
	}
	return out
}
