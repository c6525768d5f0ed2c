// =============================================================================
// Haushaltsdaten - Hierarchy Builder
// =============================================================================
//
// Converts an Aggregation into the weighted tree consumed by the treemap.
//
// TREE STRUCTURE:
//   root
//   └── category        (value = aggregated category total)
//       └── group       (value = aggregated group total)
//           └── item    (only when the group has more than one line item)
//
// Every non-leaf value must equal the sum of its children within
// types.Epsilon. A violation is returned as *types.ConsistencyError and is
// never corrected.
//
// =============================================================================

package hierarchy

import (
	"sort"

	"github.com/tifa365/haushaltsdaten/internal/aggregator"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

// RootID is the identifier of every tree root.
const RootID = "root"

// PolicyNode is one node of the weighted tree.
type PolicyNode struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Value     types.Amount `json:"value"`
	ItemCount int          `json:"itemCount"`
	Color     string       `json:"color,omitempty"`

	// Children are ordered by ID. Leaves carry an empty list.
	Children []*PolicyNode `json:"children"`
}

// IsLeaf reports whether the node has no children.
func (n *PolicyNode) IsLeaf() bool { return len(n.Children) == 0 }

// Build creates the tree for one fiscal year.
//
// PARAMETERS:
//   - agg: The aggregation of the slice.
//   - year: The fiscal year whose values are used.
//   - rootName: Display name of the root.
//
// RETURNS:
//   - The root node.
//   - A *types.ConsistencyError if any parent differs from its children.
func Build(agg *aggregator.Aggregation, year int, rootName string) (*PolicyNode, error) {
	root := &PolicyNode{
		ID:        RootID,
		Name:      rootName,
		Value:     agg.Total(year),
		ItemCount: agg.RowCount,
		Children:  []*PolicyNode{},
	}

	for _, cat := range agg.Categories() {
		catNode := &PolicyNode{
			ID:        cat.ID,
			Name:      cat.Name,
			Value:     cat.Totals[year],
			ItemCount: cat.ItemCount,
			Color:     cat.Color,
			Children:  []*PolicyNode{},
		}
		for _, grp := range cat.Groups() {
			catNode.Children = append(catNode.Children, groupNode(grp, year, cat.Color))
		}
		root.Children = append(root.Children, catNode)
	}

	if err := Check(root); err != nil {
		return nil, err
	}
	return root, nil
}

// groupNode builds a group and, for multi-item groups, its items.
func groupNode(grp *aggregator.Group, year int, color string) *PolicyNode {
	node := &PolicyNode{
		ID:        grp.ID,
		Name:      grp.Name,
		Value:     grp.Totals[year],
		ItemCount: len(grp.Rows),
		Color:     color,
		Children:  []*PolicyNode{},
	}
	if len(grp.Rows) < 2 {
		return node
	}

	for _, r := range grp.Rows {
		node.Children = append(node.Children, &PolicyNode{
			ID:        r.Row.ID,
			Name:      r.Path.Tertiary,
			Value:     r.Row.Amount(year),
			ItemCount: 1,
			Color:     color,
			Children:  []*PolicyNode{},
		})
	}
	sort.Slice(node.Children, func(i, j int) bool { return node.Children[i].ID < node.Children[j].ID })
	return node
}

// Check verifies the sum invariant on every non-leaf node, depth first.
func Check(node *PolicyNode) error {
	if node.IsLeaf() {
		return nil
	}
	var sum types.Amount
	for _, child := range node.Children {
		if err := Check(child); err != nil {
			return err
		}
		sum = sum.Add(child.Value)
	}
	if !node.Value.Within(sum, types.Epsilon) {
		return &types.ConsistencyError{NodeID: node.ID, Value: node.Value, ChildSum: sum}
	}
	return nil
}

// Leaves returns the leaf nodes in depth-first order.
func Leaves(node *PolicyNode) []*PolicyNode {
	if node.IsLeaf() {
		return []*PolicyNode{node}
	}
	var out []*PolicyNode
	for _, child := range node.Children {
		out = append(out, Leaves(child)...)
	}
	return out
}
