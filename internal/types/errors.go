// =============================================================================
// Haushaltsdaten - Error Taxonomy
// =============================================================================
//
// Every stage returns one of the typed errors below instead of panicking.
// The pipeline driver decides per error class whether a defect is recovered
// locally (row skipped and counted) or aborts the run before publish.
//
//   | Error                        | Fatal | Raised by          |
//   |------------------------------|-------|--------------------|
//   | SchemaError                  | yes   | loader             |
//   | RowFormatError               | no    | loader             |
//   | UnmappedClassificationError  | no    | classifier         |
//   | ConsistencyError             | yes   | hierarchy          |
//   | ValidationError              | yes   | validation         |
//   | WriteError                   | yes   | writer             |
//
// =============================================================================

package types

import (
	"errors"
	"fmt"
	"strings"
)

// SchemaError reports required columns missing from the source.
type SchemaError struct {
	// Source is the path or table the columns were expected in.
	Source string

	// Missing lists the absent column names in configuration order.
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error: %s is missing required column(s): %s",
		e.Source, strings.Join(e.Missing, ", "))
}

// RowFormatError describes a malformed individual row.
type RowFormatError struct {
	// RowNumber is the 1-indexed data row number.
	RowNumber int

	// Field is the offending column, empty for structural defects.
	Field string

	// Value is the offending raw value.
	Value string

	// Reason is a human-readable description.
	Reason string

	Err error
}

func (e *RowFormatError) Error() string {
	msg := fmt.Sprintf("row %d: %s", e.RowNumber, e.Reason)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field '%s', value '%s')", e.Field, e.Value)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RowFormatError) Unwrap() error { return e.Err }

// UnmappedClassificationError is raised for a row whose code prefix has no rule.
type UnmappedClassificationError struct {
	RowID  string
	Code   string
	Prefix string
}

func (e *UnmappedClassificationError) Error() string {
	return fmt.Sprintf("row %s: no classification rule for prefix %q (code %q)", e.RowID, e.Prefix, e.Code)
}

// ConsistencyError reports a hierarchy node whose value differs from the
// sum of its children.
type ConsistencyError struct {
	NodeID   string
	Value    Amount
	ChildSum Amount
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error: node %q has value %s but children sum to %s",
		e.NodeID, e.Value, e.ChildSum)
}

// ValidationError reports a grand total mismatch between the rows and the
// top-level aggregate nodes.
type ValidationError struct {
	// Scope names the slice that was checked, "global" for the full set.
	Scope string

	Year int

	// Expected is the total recomputed from admitted rows.
	Expected Amount

	// Actual is the sum of the top-level node values.
	Actual Amount
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s %d: rows total %s, categories total %s (diff %s)",
		e.Scope, e.Year, e.Expected, e.Actual, e.Expected.Sub(e.Actual).Abs())
}

// WriteError wraps an I/O failure while publishing an artifact.
type WriteError struct {
	Path string

	// Op is the failing step: "mkdir", "write", "sync", "rename".
	Op string

	Err error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// IsRecoverable reports whether err only affects a single row.
func IsRecoverable(err error) bool {
	var rowErr *RowFormatError
	var unmapped *UnmappedClassificationError
	return errors.As(err, &rowErr) || errors.As(err, &unmapped)
}

// IsFatal reports whether err must abort the run before publish.
// Unknown errors are fatal.
func IsFatal(err error) bool {
	return err != nil && !IsRecoverable(err)
}
