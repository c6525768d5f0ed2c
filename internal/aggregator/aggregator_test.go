package aggregator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

func classified(id, cat, group string, amounts map[int]int64, fields map[string]string) types.ClassifiedRow {
	am := make(map[int]types.Amount, len(amounts))
	for y, c := range amounts {
		am[y] = types.AmountFromCents(c)
	}
	return types.ClassifiedRow{
		Row:  types.LedgerRow{ID: id, RecordType: "Ausgaben", Amounts: am, Fields: fields},
		Path: types.CategoryPath{Category: cat, CategoryName: "Cat " + cat, Secondary: group, SecondaryName: "Grp " + group},
	}
}

func TestAggregateSumsPerCategoryAndGroup(t *testing.T) {
	rows := []types.ClassifiedRow{
		classified("3", "B", "21.1", map[int]int64{2025: 20000, 2026: 100}, nil),
		classified("1", "A", "11.2", map[int]int64{2025: 10000}, nil),
		classified("2", "A", "11.1", map[int]int64{2025: 5000, 2026: 1}, nil),
		classified("4", "A", "11.2", map[int]int64{2025: 1}, nil),
	}

	agg := Aggregate(rows, []int{2025, 2026})
	cats := agg.Categories()
	require.Len(t, cats, 2)
	assert.Equal(t, "A", cats[0].ID)
	assert.Equal(t, "B", cats[1].ID)

	a := cats[0]
	assert.Equal(t, 3, a.ItemCount)
	assert.Equal(t, "150.01", a.Totals[2025].String())
	assert.Equal(t, "0.01", a.Totals[2026].String())

	groups := a.Groups()
	require.Len(t, groups, 2)
	assert.Equal(t, "11.1", groups[0].ID)
	assert.Equal(t, "11.2", groups[1].ID)
	assert.Len(t, groups[1].Rows, 2)
	assert.Equal(t, "100.01", groups[1].Totals[2025].String())

	assert.Equal(t, "350.01", agg.Total(2025).String())
	assert.Equal(t, "1.01", agg.Total(2026).String())
	assert.Equal(t, 4, agg.RowCount)
}

func TestAggregateIgnoresUnrequestedYears(t *testing.T) {
	rows := []types.ClassifiedRow{classified("1", "A", "g", map[int]int64{2024: 500, 2025: 700}, nil)}
	agg := Aggregate(rows, []int{2025})
	c, ok := agg.Category("A")
	require.True(t, ok)
	assert.Equal(t, "7.00", c.Totals[2025].String())
	_, has := c.Totals[2024]
	assert.False(t, has)
}

func TestFilterAndYears(t *testing.T) {
	mitte := map[string]string{"Bezirk": "Mitte"}
	pankow := map[string]string{"Bezirk": "Pankow"}
	rows := []types.ClassifiedRow{
		classified("1", "A", "g", map[int]int64{2024: 1}, mitte),
		classified("2", "A", "g", map[int]int64{2025: 1}, pankow),
		classified("3", "A", "g", map[int]int64{2025: 1}, mitte),
	}
	rows[2].Row.RecordType = "Einnahmen"

	assert.Equal(t, []int{2024, 2025}, YearsOf(rows))
	assert.Equal(t, []string{"Ausgaben", "Einnahmen"}, RecordTypesOf(rows))

	assert.Len(t, Filter(rows, 2025, "Ausgaben", "Bezirk", ""), 1)
	assert.Len(t, Filter(rows, 2024, "Ausgaben", "Bezirk", "Mitte"), 1)
	assert.Empty(t, Filter(rows, 2024, "Ausgaben", "Bezirk", "Pankow"))
	assert.Len(t, Filter(rows, 2025, "Einnahmen", "Bezirk", "Mitte"), 1)
}

func TestSummarize(t *testing.T) {
	rows := []types.ClassifiedRow{
		classified("1", "A", "g", map[int]int64{2025: 10000}, nil),
		classified("2", "A", "h", map[int]int64{2025: 5000}, nil),
		classified("3", "B", "g", map[int]int64{2025: 5000}, nil),
	}
	key := SliceKey{Year: 2025, RecordType: "Ausgaben", Scope: "01"}
	s := Summarize(Aggregate(rows, []int{2025}), key)

	assert.Equal(t, "200.00", s.Total.String())
	assert.Equal(t, 3, s.ItemCount)
	assert.Equal(t, 2, s.CategoryCount)
	require.Len(t, s.Categories, 2)
	assert.Equal(t, 75.0, s.Categories[0].Share)
	assert.Equal(t, 25.0, s.Categories[1].Share)
	assert.Equal(t, 2, s.Categories[0].ItemCount)

	empty := Summarize(Aggregate(nil, []int{2025}), key)
	assert.True(t, empty.Total.IsZero())
	assert.Empty(t, empty.Categories)
}

func TestDetails(t *testing.T) {
	rows := []types.ClassifiedRow{
		classified("3", "B", "21.1", map[int]int64{2025: 20000}, map[string]string{"Titel": "Schule", "Amt": "40"}),
		classified("2", "A", "11.2", map[int]int64{2025: 5000}, map[string]string{"Titel": "Kita Süd", "Amt": "51"}),
		classified("1", "A", "11.2", map[int]int64{2025: 10000}, map[string]string{"Titel": "Kita Nord", "Amt": "51"}),
		classified("4", "A", "11.1", map[int]int64{2025: 1}, nil),
	}

	details := Details(Aggregate(rows, []int{2025}), 2025, DetailColumns{Title: "Titel", Office: "Amt"})
	require.Len(t, details, 2)

	a := details[0]
	assert.Equal(t, "A", a.ID)
	assert.Equal(t, "Cat A", a.Name)
	assert.Equal(t, "150.01", a.Value.String())
	assert.Equal(t, 3, a.ItemCount)
	require.Len(t, a.Products, 3)
	assert.Equal(t, []string{"4", "1", "2"}, []string{a.Products[0].ID, a.Products[1].ID, a.Products[2].ID})
	assert.Equal(t, "11.2", a.Products[1].ProductCode)
	assert.Equal(t, "Grp 11.2", a.Products[1].Group)
	assert.Equal(t, "Kita Nord", a.Products[1].Description)
	assert.Equal(t, "51", a.Products[1].Office)
	assert.Equal(t, "100.00", a.Products[1].Value.String())

	assert.Equal(t, "200.00", details[1].Value.String())
	assert.Empty(t, Details(Aggregate(nil, []int{2025}), 2025, DetailColumns{}))
}
