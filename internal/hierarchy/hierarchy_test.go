package hierarchy

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tifa365/haushaltsdaten/internal/aggregator"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

func item(id, cat, group string, amount int64) types.ClassifiedRow {
	return types.ClassifiedRow{
		Row: types.LedgerRow{
			ID:      id,
			Amounts: map[int]types.Amount{2025: types.AmountFromInt(amount)},
		},
		Path: types.CategoryPath{Category: cat, CategoryName: cat, Secondary: group, SecondaryName: group, Tertiary: "item " + id},
	}
}

func TestBuildThreeRowScenario(t *testing.T) {
	rows := []types.ClassifiedRow{
		item("r1", "A", "11", 100),
		item("r2", "A", "11", 50),
		item("r3", "B", "21", 200),
	}
	root, err := Build(aggregator.Aggregate(rows, []int{2025}), 2025, "Haushalt")
	require.NoError(t, err)

	assert.Equal(t, "root", root.ID)
	assert.Equal(t, "350.00", root.Value.String())
	require.Len(t, root.Children, 2)
	assert.Equal(t, "A", root.Children[0].ID)
	assert.Equal(t, "150.00", root.Children[0].Value.String())
	assert.Equal(t, "B", root.Children[1].ID)
	assert.Equal(t, "200.00", root.Children[1].Value.String())

	// Group "11" holds two items, so they become grandchildren.
	g11 := root.Children[0].Children[0]
	require.Len(t, g11.Children, 2)
	assert.Equal(t, "r1", g11.Children[0].ID)
	assert.Equal(t, "item r1", g11.Children[0].Name)

	// Group "21" has a single item and stays a leaf.
	assert.True(t, root.Children[1].Children[0].IsLeaf())
}

func TestEveryRowInExactlyOneLeaf(t *testing.T) {
	rows := []types.ClassifiedRow{
		item("1", "A", "a1", 1), item("2", "A", "a1", 2), item("3", "A", "a2", 3),
		item("4", "B", "b1", 4), item("5", "C", "c1", 5), item("6", "C", "c1", 6),
	}
	root, err := Build(aggregator.Aggregate(rows, []int{2025}), 2025, "x")
	require.NoError(t, err)

	count := 0
	for _, leaf := range Leaves(root) {
		count += leaf.ItemCount
		assert.Equal(t, 1, leaf.ItemCount)
	}
	assert.Equal(t, len(rows), count)
	assert.Equal(t, len(rows), root.ItemCount)
}

func TestCheckDetectsMismatch(t *testing.T) {
	tree := &PolicyNode{
		ID: "root", Value: types.AmountFromInt(10),
		Children: []*PolicyNode{
			{ID: "A", Value: types.AmountFromCents(499), Children: []*PolicyNode{}},
			{ID: "B", Value: types.AmountFromCents(499), Children: []*PolicyNode{}},
		},
	}
	err := Check(tree)
	var ce *types.ConsistencyError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "root", ce.NodeID)
	assert.Equal(t, "9.98", ce.ChildSum.String())

	// One cent off is tolerated.
	tree.Children[1].Value = types.AmountFromCents(500)
	assert.NoError(t, Check(tree))
}

func TestJSONShape(t *testing.T) {
	root, err := Build(aggregator.Aggregate([]types.ClassifiedRow{item("r", "A", "g", 7)}, []int{2025}), 2025, "H")
	require.NoError(t, err)

	b, err := json.Marshal(root)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"id":"root","name":"H","value":7,"itemCount":1,
		"children":[{"id":"A","name":"A","value":7,"itemCount":1,
			"children":[{"id":"g","name":"g","value":7,"itemCount":1,"children":[]}]}]
	}`, string(b))
}

func TestEmptyAggregation(t *testing.T) {
	root, err := Build(aggregator.Aggregate(nil, []int{2025}), 2025, "H")
	require.NoError(t, err)
	assert.True(t, root.Value.IsZero())
	assert.Empty(t, root.Children)
}
