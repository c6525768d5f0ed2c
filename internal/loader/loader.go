// =============================================================================
// Haushaltsdaten - Ledger Loader
// =============================================================================
//
// The loader turns raw source records into immutable LedgerRow values.
//
// LOADING PROCESS:
//   1. Read the header and check every required column is present
//      (SchemaError, fatal)
//   2. For each record: check the field count, resolve the ID, fiscal year,
//      record type and amounts (RowFormatError, row skipped and counted)
//   3. Reject duplicate IDs (RowFormatError)
//
// The loader has no side effects beyond read access to the source.
//
// =============================================================================

package loader

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/types"
	"github.com/tifa365/haushaltsdaten/internal/validation"
)

// Spec is the part of the configuration the loader needs.
type Spec struct {
	Required         []string
	IDColumn         string
	YearColumn       string
	RecordTypeColumn string
	Amounts          []config.AmountColumn
	RecordTypes      config.RecordTypeConfig
	DecimalComma     bool
}

// SpecFromConfig derives the loader spec.
func SpecFromConfig(cfg *config.Config) Spec {
	return Spec{
		Required:         cfg.RequiredColumns(),
		IDColumn:         cfg.Columns.ID,
		YearColumn:       cfg.Columns.Year,
		RecordTypeColumn: cfg.Columns.RecordType,
		Amounts:          cfg.Columns.Amounts,
		RecordTypes:      cfg.RecordTypes,
		DecimalComma:     cfg.Source.Kind == config.SourceCSV && cfg.Source.CSV.DecimalComma,
	}
}

// Result is the output of one Load call.
type Result struct {
	// Header is the source header row.
	Header []string

	// Rows are the well-formed rows in source order.
	Rows []types.LedgerRow

	// Audit has Total and the malformed counter filled in.
	Audit *types.Audit

	// Issues lists every skipped row.
	Issues []*types.RowFormatError
}

// Loader reads ledger rows from a Source.
type Loader struct {
	spec   Spec
	logger *zap.Logger
}

// New creates a Loader. A nil logger discards output.
func New(spec Spec, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{spec: spec, logger: logger.Named("loader")}
}

// Load reads every record of src.
//
// PARAMETERS:
//   - ctx: Cancels the read between records.
//   - src: An opened Source. Load does not close it.
//
// RETURNS:
//   - The loaded rows with their audit counters.
//   - A *types.SchemaError if a required column is absent, or the source's
//     read error. Malformed rows never produce an error.
func (l *Loader) Load(ctx context.Context, src Source) (*Result, error) {
	header, err := src.Columns(ctx)
	if err != nil {
		return nil, err
	}

	if err := validation.CheckSchema(src.Name(), header, l.spec.Required); err != nil {
		return nil, err
	}

	res := &Result{Header: header, Audit: types.NewAudit()}
	seen := make(map[string]int)

	skip := func(e *types.RowFormatError) {
		res.Audit.Skip(types.SkipMalformed)
		res.Issues = append(res.Issues, e)
		l.logger.Debug("skipping malformed row", zap.Int("row", e.RowNumber), zap.String("reason", e.Reason))
	}

	err = src.Each(ctx, func(rowNumber int, record []string, decodeErr error) error {
		res.Audit.Total++

		if decodeErr != nil {
			skip(&types.RowFormatError{RowNumber: rowNumber, Reason: "undecodable record", Err: decodeErr})
			return nil
		}
		if len(record) != len(header) {
			skip(&types.RowFormatError{
				RowNumber: rowNumber,
				Reason:    fmt.Sprintf("expected %d fields, got %d", len(header), len(record)),
			})
			return nil
		}

		row, rowErr := l.buildRow(rowNumber, header, record)
		if rowErr != nil {
			skip(rowErr)
			return nil
		}
		if first, dup := seen[row.ID]; dup {
			skip(&types.RowFormatError{
				RowNumber: rowNumber,
				Field:     l.spec.IDColumn,
				Value:     row.ID,
				Reason:    fmt.Sprintf("duplicate id, first seen in row %d", first),
			})
			return nil
		}
		seen[row.ID] = rowNumber
		res.Rows = append(res.Rows, row)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", src.Name(), err)
	}

	l.logger.Info("loaded ledger",
		zap.String("source", src.Name()),
		zap.Int("rows", res.Audit.Total),
		zap.Int("malformed", res.Audit.Skipped[types.SkipMalformed]),
	)
	return res, nil
}

// buildRow converts one record into a LedgerRow.
func (l *Loader) buildRow(rowNumber int, header, record []string) (types.LedgerRow, *types.RowFormatError) {
	fields := make(map[string]string, len(header))
	for i, h := range header {
		if _, dup := fields[h]; !dup {
			fields[h] = strings.TrimSpace(record[i])
		}
	}

	row := types.LedgerRow{
		RowNumber: rowNumber,
		Fields:    fields,
		Amounts:   make(map[int]types.Amount, len(l.spec.Amounts)),
	}
	fail := func(field, reason string, err error) *types.RowFormatError {
		return &types.RowFormatError{RowNumber: rowNumber, Field: field, Value: fields[field], Reason: reason, Err: err}
	}

	if l.spec.IDColumn != "" {
		row.ID = fields[l.spec.IDColumn]
		if row.ID == "" {
			return row, fail(l.spec.IDColumn, "empty id", nil)
		}
	} else {
		row.ID = fmt.Sprintf("%06d", rowNumber)
	}

	if l.spec.YearColumn != "" {
		year, err := strconv.Atoi(fields[l.spec.YearColumn])
		if err != nil {
			return row, fail(l.spec.YearColumn, "invalid fiscal year", err)
		}
		row.Year = year
	}

	row.RecordType = l.spec.RecordTypes.Default
	if l.spec.RecordTypeColumn != "" {
		row.RecordType = fields[l.spec.RecordTypeColumn]
	}
	kind, ok := l.spec.RecordTypes.Labels[row.RecordType]
	if !ok {
		return row, fail(l.spec.RecordTypeColumn, "unknown record type", nil)
	}
	row.Kind = types.RecordKind(kind)

	for _, col := range l.spec.Amounts {
		year := col.Year
		if year == 0 {
			year = row.Year
		}
		if year == 0 {
			return row, fail(col.Column, "amount has no fiscal year", nil)
		}
		amount, err := types.ParseAmount(fields[col.Column], l.spec.DecimalComma)
		if err != nil {
			return row, fail(col.Column, "invalid amount", err)
		}
		row.Amounts[year] = row.Amounts[year].Add(amount)
	}

	return row, nil
}
