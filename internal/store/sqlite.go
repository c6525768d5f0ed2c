// =============================================================================
// Haushaltsdaten - SQLite Store
// =============================================================================
//
// The store wraps a SQLite database file used as a ledger row source, and as
// the import target of `haushalt import`.
//
//   - Table   : reads one table as a loader source
//   - Import  : creates a table from a header and streams records into it
//
// All columns are TEXT; numeric parsing happens in the loader so every
// source kind goes through the same amount rules.
//
// =============================================================================

package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store is an open SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens the database at path. readOnly fails if the file is missing.
func Open(path string, readOnly bool) (*Store, error) {
	dsn := path
	if readOnly {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", path, err)
		}
		dsn = "file:" + path + "?mode=ro"
	} else if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// quoteIdent quotes a table or column name.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// =============================================================================
// TABLE SOURCE
// =============================================================================

// Table reads one table row by row.
type Table struct {
	store     *Store
	name      string
	ownsStore bool
	headers   []string
}

// Table returns a reader for the named table. With ownsStore set, closing
// the table closes the database too.
func (s *Store) Table(name string, ownsStore bool) *Table {
	return &Table{store: s, name: name, ownsStore: ownsStore}
}

// Name returns "path:table".
func (t *Table) Name() string { return t.store.path + ":" + t.name }

// Columns returns the table columns in declaration order.
func (t *Table) Columns(ctx context.Context) ([]string, error) {
	if t.headers != nil {
		return t.headers, nil
	}

	rows, err := t.store.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?) ORDER BY cid", t.name)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read columns: %w", t.Name(), err)
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		cols = append(cols, name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("%s: table does not exist or has no columns", t.Name())
	}
	t.headers = cols
	return cols, nil
}

// Each streams the table in rowid order.
func (t *Table) Each(ctx context.Context, fn func(int, []string, error) error) error {
	cols, err := t.Columns(ctx)
	if err != nil {
		return err
	}

	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY rowid", strings.Join(quoted, ", "), quoteIdent(t.name))

	rows, err := t.store.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("%s: query failed: %w", t.Name(), err)
	}
	defer rows.Close()

	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}

	rowNumber := 0
	for rows.Next() {
		rowNumber++
		if err := rows.Scan(dest...); err != nil {
			if err := fn(rowNumber, nil, err); err != nil {
				return err
			}
			continue
		}
		record := make([]string, len(cols))
		empty := true
		for i, v := range values {
			record[i] = v.String
			if strings.TrimSpace(v.String) != "" {
				empty = false
			}
		}
		if empty {
			continue
		}
		if err := fn(rowNumber, record, nil); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close closes the database when the table owns it.
func (t *Table) Close() error {
	if t.ownsStore {
		return t.store.Close()
	}
	return nil
}

// =============================================================================
// IMPORT
// =============================================================================

// ImportStats reports the outcome of an import.
type ImportStats struct {
	Inserted int
	Skipped  int
}

// Import replaces table with the given header and records.
//
// PARAMETERS:
//   - table: The target table. An existing table of that name is dropped.
//   - header: The column names.
//   - indexed: Columns that get an index after loading.
//   - each: Produces records; records whose length differs from the header
//     are skipped and counted.
//
// The table is created and filled in one transaction.
func (s *Store) Import(ctx context.Context, table string, header, indexed []string, each func(yield func([]string) error) error) (ImportStats, error) {
	var stats ImportStats

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	colDefs := make([]string, len(header))
	marks := make([]string, len(header))
	for i, h := range header {
		colDefs[i] = quoteIdent(h) + " TEXT"
		marks[i] = "?"
	}

	stmts := []string{
		"DROP TABLE IF EXISTS " + quoteIdent(table),
		fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(colDefs, ", ")),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return stats, fmt.Errorf("create table %s: %w", table, err)
		}
	}

	insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", ")))
	if err != nil {
		return stats, fmt.Errorf("prepare insert: %w", err)
	}
	defer insert.Close()

	args := make([]any, len(header))
	err = each(func(record []string) error {
		if len(record) != len(header) {
			stats.Skipped++
			return nil
		}
		for i, v := range record {
			args[i] = v
		}
		if _, err := insert.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("insert row %d: %w", stats.Inserted+stats.Skipped+1, err)
		}
		stats.Inserted++
		return nil
	})
	if err != nil {
		return stats, err
	}

	for _, col := range indexed {
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			quoteIdent("idx_"+table+"_"+col), quoteIdent(table), quoteIdent(col))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return stats, fmt.Errorf("create index on %s: %w", col, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}
	return stats, nil
}
