// =============================================================================
// Haushaltsdaten - Ledger Source Module
// =============================================================================
//
// A Source is the explicit handle on the tabular input of one pipeline run.
// It is opened by the driver, passed to the Loader, and closed on every exit
// path with `defer src.Close()`.
//
// IMPLEMENTATIONS:
//   - CSVSource    : delimited text (csv.go)
//   - XLSXSource   : Excel workbook sheet (xlsx.go)
//   - store.Table  : SQLite table (internal/store)
//
// =============================================================================

package loader

import (
	"context"
	"fmt"
	"strings"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/store"
)

// Source yields raw records from a tabular input.
type Source interface {
	// Name identifies the source in errors and logs.
	Name() string

	// Columns returns the header row.
	Columns(ctx context.Context) ([]string, error)

	// Each calls fn for every data record after the header.
	// rowNumber is 1-indexed over data records. A non-nil error returned by
	// fn stops the iteration and is returned. A record that cannot be
	// decoded is reported through fn with a nil record and a non-nil
	// decodeErr so the caller can count it.
	Each(ctx context.Context, fn func(rowNumber int, record []string, decodeErr error) error) error

	Close() error
}

// Open returns the Source described by the configuration.
//
// PARAMETERS:
//   - src: The source section of the pipeline configuration.
//
// RETURNS:
//   - An opened Source. The caller must Close it.
//   - An error if the file cannot be opened.
func Open(src config.SourceConfig) (Source, error) {
	switch src.Kind {
	case config.SourceCSV:
		return OpenCSV(src.Path, src.CSV)
	case config.SourceXLSX:
		return OpenXLSX(src.Path, src.Sheet)
	case config.SourceSQLite:
		db, err := store.Open(src.Path, true)
		if err != nil {
			return nil, err
		}
		return db.Table(src.Table, true), nil
	default:
		return nil, fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

// isRowEmpty checks if a record contains only empty values.
func isRowEmpty(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// cleanHeaders trims header names and names empty ones by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}
