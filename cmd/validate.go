// =============================================================================
// Haushaltsdaten - Validate Command
// =============================================================================
//
// This file defines the 'validate' command. It checks the configuration, the
// classification rules and the source header without reading any rows or
// writing any files.
//
// COMMAND USAGE:
//   haushalt validate [--config haushalt.yaml]
//
// =============================================================================

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tifa365/haushaltsdaten/internal/pipeline"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration, rules and source header",
	Long: `The validate command loads the configuration and the classification
rules and reads the header of the source. It fails if a configured column is
missing from the source or the rules table is inconsistent.`,

	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		rep, err := pipeline.New(cfg, pipeline.Options{}, logger).Check(cmd.Context())
		if err != nil {
			fmt.Println(failStyle.Render("INVALID: ") + err.Error())
			return err
		}

		fmt.Println(titleStyle.Render("Haushaltsdaten validate"))
		fmt.Printf("  source   %s\n", rep.Source)
		fmt.Printf("  mode     %s\n", rep.Mode)
		fmt.Printf("  rules    %d prefixes\n", rep.Rules)
		fmt.Printf("  columns  %s\n", dimStyle.Render(strings.Join(rep.Columns, ", ")))
		for _, note := range rep.Warnings {
			fmt.Println(dimStyle.Render("  warning: " + note))
		}
		fmt.Println(okStyle.Render("configuration ok"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
