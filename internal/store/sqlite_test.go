package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImportThenReadTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "haushalt.db")

	db, err := Open(path, false)
	require.NoError(t, err)

	records := [][]string{
		{"1", "Kita Sonnenschein", "100"},
		{"2", "short"},
		{"3", `Schule "Nord"`, "50"},
	}
	stats, err := db.Import(ctx, "haushalt", []string{"id", "titel", "betrag"}, []string{"titel"},
		func(yield func([]string) error) error {
			for _, r := range records {
				if err := yield(r); err != nil {
					return err
				}
			}
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, ImportStats{Inserted: 2, Skipped: 1}, stats)
	require.NoError(t, db.Close())

	ro, err := Open(path, true)
	require.NoError(t, err)
	table := ro.Table("haushalt", true)
	defer table.Close()

	cols, err := table.Columns(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "titel", "betrag"}, cols)

	var got [][]string
	require.NoError(t, table.Each(ctx, func(n int, rec []string, err error) error {
		require.NoError(t, err)
		got = append(got, rec)
		return nil
	}))
	assert.Equal(t, [][]string{
		{"1", "Kita Sonnenschein", "100"},
		{"3", `Schule "Nord"`, "50"},
	}, got)
}

func TestMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.db")
	db, err := Open(path, false)
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Table("nope", false).Columns(context.Background())
	assert.ErrorContains(t, err, "does not exist")
}

func TestOpenReadOnlyMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.db"), true)
	assert.Error(t, err)
}
