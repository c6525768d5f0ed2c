// =============================================================================
// Haushaltsdaten - Build Command
// =============================================================================
//
// This file defines the 'build' command, the main command of the tool. It
// runs the whole pipeline for one configuration and publishes a version.
//
// COMMAND USAGE:
//   haushalt build [flags]
//
// FLAGS:
//   --dry-run      : Build and validate everything, publish nothing
//   --mode         : Classification mode (a key of classification.modes)
//   --source       : Override the source file
//   --output-dir   : Override the artifact root
//   --version-tag  : Publish under this tag instead of the content hash
//   --report-dir   : Write a run summary log to this directory
//
// The audit block is printed for failed runs too.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/tifa365/haushaltsdaten/internal/pipeline"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("4"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("1"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

// =============================================================================
// BUILD COMMAND DEFINITION
// =============================================================================

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build, validate and publish a version of the data set",
	Long: `The build command loads the ledger, admits and classifies its rows,
aggregates every year x record type x scope slice, validates all totals and
publishes the resulting JSON files under a new version tag.

On success:
  - <output>/<tag>/ holds every slice, the search index and meta.json
  - <output>/version.json names the new tag

On error:
  - Nothing new becomes visible; version.json keeps naming the old tag
  - The audit counters are printed anyway`,

	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuild(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(buildCmd)

	flags := buildCmd.Flags()
	flags.Bool("dry-run", false, "Build and validate without publishing")
	flags.String("mode", "", "Classification mode")
	flags.String("source", "", "Source file (csv, xlsx or sqlite)")
	flags.String("output-dir", "", "Artifact root directory")
	flags.String("version-tag", "", "Publish under this tag instead of the content hash")
	flags.String("report-dir", "", "Directory for the run summary log")

	_ = viper.BindPFlag("output.dry_run", flags.Lookup("dry-run"))
	_ = viper.BindPFlag("classification.mode", flags.Lookup("mode"))
	_ = viper.BindPFlag("source.path", flags.Lookup("source"))
	_ = viper.BindPFlag("output.dir", flags.Lookup("output-dir"))
	_ = viper.BindPFlag("output.version", flags.Lookup("version-tag"))
	_ = viper.BindPFlag("output.report_dir", flags.Lookup("report-dir"))
}

// =============================================================================
// BUILD LOGIC
// =============================================================================

func runBuild(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Println(titleStyle.Render("Haushaltsdaten build"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("source %s, mode %s", cfg.Source.Path, cfg.Classification.Mode)))
	fmt.Println()

	var bar *progressbar.ProgressBar
	if !cfg.Output.DryRun {
		bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetDescription("publishing"),
			progressbar.OptionShowCount(),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)
	}

	p := pipeline.New(cfg, pipeline.Options{
		OnFile: func(path string, n int) {
			if bar != nil {
				_ = bar.Add(n)
			}
		},
	}, logger)

	res, runErr := p.Run(ctx)
	if bar != nil {
		_ = bar.Finish()
	}

	printAudit(res.Audit)
	if res.Artifact != nil {
		printSlices(res, cfg.Output.Currency)
	}

	if runErr != nil {
		fmt.Println(failStyle.Render("FAILED: ") + runErr.Error())
		if res.SummaryPath != "" {
			fmt.Println(dimStyle.Render("summary: " + res.SummaryPath))
		}
		return runErr
	}

	switch {
	case res.Published():
		fmt.Println(okStyle.Render(fmt.Sprintf("published %s (%d files) in %s",
			res.Version, len(res.Report.Files), res.Duration.Round(time.Millisecond))))
	default:
		fmt.Println(okStyle.Render(fmt.Sprintf("dry run ok, version would be %s", res.Version)))
	}
	if res.SummaryPath != "" {
		fmt.Println(dimStyle.Render("summary: " + res.SummaryPath))
	}

	logger.Info("build finished",
		zap.String("version", res.Version),
		zap.Bool("published", res.Published()),
		zap.Int("issues", len(res.Issues)),
	)
	return nil
}

// printAudit prints the row counters.
func printAudit(a *types.Audit) {
	if a == nil {
		return
	}
	fmt.Println(headerStyle.Render("Audit"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  rows read\t%d\n", a.Total)
	fmt.Fprintf(w, "  admitted\t%d\n", a.Admitted)
	for _, cause := range types.SkipCauses {
		if n := a.Skipped[cause]; n > 0 {
			fmt.Fprintf(w, "  skipped: %s\t%d\n", cause, n)
		}
	}
	if prefixes := a.UnmappedPrefixes(); len(prefixes) > 0 {
		fmt.Fprintf(w, "  unmapped prefixes\t%s\n", strings.Join(prefixes, ", "))
	}
	w.Flush()
	fmt.Println()
}

// printSlices prints one line per slice, in build order.
func printSlices(res *pipeline.Result, currency string) {
	fmt.Println(headerStyle.Render("Slices"))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t\n",
		headerStyle.Render("Year"),
		headerStyle.Render("Type"),
		headerStyle.Render("Scope"),
		headerStyle.Render("Total"),
		headerStyle.Render("Items"),
		headerStyle.Render("Categories"))
	for _, s := range res.Artifact.Slices {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t\n",
			s.Key.Year, s.Key.RecordType, s.Key.Scope,
			s.Summary.Total.Display(currency),
			s.Summary.ItemCount, s.Summary.CategoryCount)
	}
	w.Flush()
	fmt.Println()
}
