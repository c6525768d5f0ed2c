// =============================================================================
// Haushaltsdaten - Validation Engine
// =============================================================================
//
// This module gates publication. Nothing is written unless every check here
// passes for every slice.
//
// VALIDATION LEVELS:
//   1. Schema: every required column is present in the source header.
//   2. Totals: the grand total recomputed from the admitted rows matches the
//      sum of the top-level aggregate nodes, per fiscal year.
//   3. Tree: the same comparison against a built hierarchy root, followed by
//      the parent/children sum check on every node.
//
// ERROR HANDLING:
//   - Checks are collected into a Result so a failing run can report every
//     mismatch, not only the first one.
//   - Result.Err returns the first fatal error (a *types.ValidationError or
//     *types.ConsistencyError) for callers that only need a gate.
//
// =============================================================================

package validation

import (
	"fmt"
	"strings"

	"github.com/tifa365/haushaltsdaten/internal/aggregator"
	"github.com/tifa365/haushaltsdaten/internal/hierarchy"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

// GlobalScope names the check over the unsliced row set.
const GlobalScope = "global"

// =============================================================================
// VALIDATION RESULT
// =============================================================================

// Check is the outcome of one total comparison.
type Check struct {
	Scope    string
	Year     int
	Expected types.Amount
	Actual   types.Amount
	Passed   bool
}

// Result contains the outcome of a validation run.
type Result struct {
	// IsValid is true if every check passed.
	IsValid bool

	// Checks holds every comparison in the order it was made.
	Checks []Check

	// Errors contains one error per failed check.
	Errors []error
}

func newResult() *Result {
	return &Result{IsValid: true}
}

func (r *Result) add(c Check, err error) {
	r.Checks = append(r.Checks, c)
	if err != nil {
		r.IsValid = false
		r.Errors = append(r.Errors, err)
	}
}

// Merge appends the checks and errors of other.
func (r *Result) Merge(other *Result) {
	if other == nil {
		return
	}
	r.Checks = append(r.Checks, other.Checks...)
	r.Errors = append(r.Errors, other.Errors...)
	r.IsValid = r.IsValid && other.IsValid
}

// Err returns the first error, or nil if the result is valid.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// =============================================================================
// CHECKS
// =============================================================================

// CheckSchema verifies that every required column appears in header.
//
// RETURNS:
//   - A *types.SchemaError listing the missing columns in required order,
//     or nil.
func CheckSchema(source string, header, required []string) error {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, col := range required {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return &types.SchemaError{Source: source, Missing: missing}
	}
	return nil
}

// ValidateTotals compares the row total with the aggregate total per year.
//
// PARAMETERS:
//   - scope: Label used in errors, e.g. "2025/Ausgaben/01".
//   - rows: The rows that were aggregated.
//   - agg: Their aggregation.
//   - years: The fiscal years to check.
//
// RETURNS:
//   - A Result with one check per year. Failed checks carry a
//     *types.ValidationError.
func ValidateTotals(scope string, rows []types.ClassifiedRow, agg *aggregator.Aggregation, years []int) *Result {
	res := newResult()
	for _, year := range years {
		expected := rowTotal(rows, year)

		var actual types.Amount
		for _, cat := range agg.Categories() {
			actual = actual.Add(cat.Totals[year])
		}
		res.add(compare(scope, year, expected, actual))
	}
	return res
}

// ValidateTree compares the row total with the top-level nodes of a built
// tree, then re-checks the sum invariant on every node.
func ValidateTree(scope string, rows []types.ClassifiedRow, year int, root *hierarchy.PolicyNode) *Result {
	res := newResult()

	var actual types.Amount
	for _, child := range root.Children {
		actual = actual.Add(child.Value)
	}
	res.add(compare(scope, year, rowTotal(rows, year), actual))

	if err := hierarchy.Check(root); err != nil {
		res.IsValid = false
		res.Errors = append(res.Errors, err)
	}
	return res
}

func rowTotal(rows []types.ClassifiedRow, year int) types.Amount {
	var total types.Amount
	for _, r := range rows {
		total = total.Add(r.Row.Amount(year))
	}
	return total
}

func compare(scope string, year int, expected, actual types.Amount) (Check, error) {
	c := Check{Scope: scope, Year: year, Expected: expected, Actual: actual}
	if expected.Within(actual, types.Epsilon) {
		c.Passed = true
		return c, nil
	}
	return c, &types.ValidationError{Scope: scope, Year: year, Expected: expected, Actual: actual}
}

// =============================================================================
// ERROR FORMATTING
// =============================================================================

// FormatErrors formats validation errors for display or logging.
func FormatErrors(errs []error) string {
	if len(errs) == 0 {
		return "No validation errors."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d validation error(s):\n\n", len(errs)))
	for i, err := range errs {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}
