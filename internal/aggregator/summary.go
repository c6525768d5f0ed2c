package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Summary is the compact per-slice overview published next to the tree.
type Summary struct {
	Year          int               `json:"year"`
	RecordType    string            `json:"recordType"`
	Scope         string            `json:"scope"`
	Total         types.Amount      `json:"total"`
	ItemCount     int               `json:"itemCount"`
	CategoryCount int               `json:"categoryCount"`
	Categories    []CategorySummary `json:"categories"`
}

// CategorySummary is one category line of a Summary.
type CategorySummary struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Color     string       `json:"color,omitempty"`
	Rank      int          `json:"rank"`
	Value     types.Amount `json:"value"`
	Share     float64      `json:"share"`
	ItemCount int          `json:"itemCount"`
}

var hundred = decimal.NewFromInt(100)

// Summarize condenses an aggregation for one slice. Share is the category's
// percentage of the slice total, rounded to two places, or 0 when the total
// is zero.
func Summarize(agg *Aggregation, key SliceKey) Summary {
	total := agg.Total(key.Year)
	cats := agg.Categories()

	s := Summary{
		Year:          key.Year,
		RecordType:    key.RecordType,
		Scope:         key.Scope,
		Total:         total,
		ItemCount:     agg.RowCount,
		CategoryCount: len(cats),
		Categories:    make([]CategorySummary, 0, len(cats)),
	}
	for _, c := range cats {
		value := c.Totals[key.Year]
		share := 0.0
		if !total.IsZero() {
			share = value.Decimal().Div(total.Decimal()).Mul(hundred).Round(2).InexactFloat64()
		}
		s.Categories = append(s.Categories, CategorySummary{
			ID:        c.ID,
			Name:      c.Name,
			Color:     c.Color,
			Rank:      c.Rank,
			Value:     value,
			Share:     share,
			ItemCount: c.ItemCount,
		})
	}
	return s
}
