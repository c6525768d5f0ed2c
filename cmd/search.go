// =============================================================================
// Haushaltsdaten - Search Command
// =============================================================================
//
// This file defines the 'search' command. It queries the search index of
// the currently published version, the same files a browser client loads.
//
// COMMAND USAGE:
//   haushalt search <query...> [flags]
//
// FLAGS:
//   --dir    : Artifact root (default: output.dir of the configuration)
//   --limit  : Maximum number of hits to print
//   --fts    : Print the SQLite FTS5 MATCH expression instead of searching
//
// =============================================================================

package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tifa365/haushaltsdaten/internal/search"
	"github.com/tifa365/haushaltsdaten/internal/writer"
)

const defaultOutputDir = "./public/data"

var (
	searchDir   string
	searchLimit int
	searchFTS   bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query...>",
	Short: "Query the search index of the published version",
	Long: `The search command resolves the published version through version.json
and runs the query against its search index. Every term must match a token
prefix; hits are ranked by tf-idf score.`,
	Args: cobra.MinimumNArgs(1),

	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		if searchFTS {
			fmt.Println(search.MatchExpression(query))
			return nil
		}
		return runSearch(resolveSearchDir(), query)
	},
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&searchDir, "dir", "", "Artifact root directory")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 20, "Maximum number of hits")
	searchCmd.Flags().BoolVar(&searchFTS, "fts", false, "Print the FTS5 MATCH expression for the query")
}

// resolveSearchDir picks the artifact root: the flag, then the configured
// output directory, then the default.
func resolveSearchDir() string {
	if searchDir != "" {
		return searchDir
	}
	cfg, err := loadConfig()
	if err != nil {
		logger.Debug("no usable configuration, using default output dir", zap.Error(err))
		return defaultOutputDir
	}
	return cfg.Output.Dir
}

func runSearch(root, query string) error {
	tag, dir, err := writer.ResolveVersion(root)
	if err != nil {
		if errors.Is(err, writer.ErrNotReady) {
			fmt.Println(failStyle.Render("no published version under " + root))
		}
		return err
	}

	idx, err := search.LoadIndex(filepath.Join(dir, writer.SearchIndexFile))
	if err != nil {
		return err
	}
	docs, err := search.LoadDocuments(filepath.Join(dir, writer.SearchDocumentsFile))
	if err != nil {
		return err
	}

	hits := idx.Search(query)
	logger.Debug("search",
		zap.String("version", tag),
		zap.Strings("terms", search.QueryTerms(query)),
		zap.Int("hits", len(hits)),
	)

	fmt.Println(dimStyle.Render(fmt.Sprintf("version %s, %d hit(s)", tag, len(hits))))
	if len(hits) == 0 {
		return nil
	}
	if searchLimit > 0 && len(hits) > searchLimit {
		hits = hits[:searchLimit]
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s\t%s\t", headerStyle.Render("Score"), headerStyle.Render("ID"))
	for _, col := range docs.Cols {
		if col != search.FieldID {
			fmt.Fprintf(w, "%s\t", headerStyle.Render(col))
		}
	}
	fmt.Fprintln(w)

	for _, h := range hits {
		fmt.Fprintf(w, "%.4f\t%s\t", h.Score, h.ID)
		rec, ok := docs.Lookup(h.ID)
		if !ok {
			logger.Warn("hit has no stored document", zap.String("id", h.ID))
		}
		for _, col := range docs.Cols {
			if col != search.FieldID {
				fmt.Fprintf(w, "%s\t", rec[col])
			}
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}
