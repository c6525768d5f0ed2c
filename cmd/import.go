// =============================================================================
// Haushaltsdaten - Import Command
// =============================================================================
//
// This file defines the 'import' command. It loads a CSV export into a
// SQLite table so later builds can use `source.kind: sqlite`.
//
// COMMAND USAGE:
//   haushalt import <csv> <db> [flags]
//
// FLAGS:
//   --table      : Target table (replaced if it exists)
//   --delimiter  : CSV delimiter
//   --encoding   : CSV encoding
//   --index      : Columns to index after loading (repeatable)
//
// Values are stored as text; the loader parses them when the table is read.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/loader"
	"github.com/tifa365/haushaltsdaten/internal/store"
)

var (
	importTable     string
	importDelimiter string
	importEncoding  string
	importIndexed   []string
)

var importCmd = &cobra.Command{
	Use:   "import <csv> <db>",
	Short: "Load a CSV export into a SQLite table",
	Args:  cobra.ExactArgs(2),

	RunE: func(cmd *cobra.Command, args []string) error {
		return runImport(cmd.Context(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(importCmd)

	flags := importCmd.Flags()
	flags.StringVar(&importTable, "table", "haushalt", "Target table")
	flags.StringVar(&importDelimiter, "delimiter", ";", "CSV delimiter")
	flags.StringVar(&importEncoding, "encoding", "UTF-8", "CSV encoding")
	flags.StringSliceVar(&importIndexed, "index", nil, "Columns to index after loading")
}

func runImport(ctx context.Context, csvPath, dbPath string) error {
	src, err := loader.OpenCSV(csvPath, config.CSVSettings{
		Delimiter: importDelimiter,
		Encoding:  importEncoding,
	})
	if err != nil {
		return err
	}
	defer src.Close()

	header, err := src.Columns(ctx)
	if err != nil {
		return fmt.Errorf("failed to read header of %s: %w", csvPath, err)
	}
	for _, col := range importIndexed {
		if !contains(header, col) {
			return fmt.Errorf("index column %q is not in the header of %s", col, csvPath)
		}
	}

	db, err := store.Open(dbPath, false)
	if err != nil {
		return err
	}
	defer db.Close()

	undecodable := 0
	stats, err := db.Import(ctx, importTable, header, importIndexed, func(yield func([]string) error) error {
		return src.Each(ctx, func(rowNumber int, record []string, decodeErr error) error {
			if decodeErr != nil {
				undecodable++
				logger.Warn("skipping undecodable row", zap.Int("row", rowNumber), zap.Error(decodeErr))
				return nil
			}
			return yield(record)
		})
	})
	if err != nil {
		fmt.Println(failStyle.Render("FAILED: ") + err.Error())
		return err
	}

	fmt.Println(okStyle.Render(fmt.Sprintf("imported %d row(s) into %s:%s", stats.Inserted, dbPath, importTable)))
	if skipped := stats.Skipped + undecodable; skipped > 0 {
		fmt.Println(dimStyle.Render(fmt.Sprintf("skipped %d row(s) with a wrong field count or encoding", skipped)))
	}
	logger.Info("import finished",
		zap.String("table", importTable),
		zap.Int("inserted", stats.Inserted),
		zap.Int("skipped", stats.Skipped+undecodable),
	)
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
