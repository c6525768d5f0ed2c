// =============================================================================
// Haushaltsdaten - Root Command
// =============================================================================
//
// This file defines the root command for the Cobra CLI. Every other command
// is attached to it.
//
// COBRA CLI STRUCTURE:
//   rootCmd (haushalt)
//   ├── buildCmd    (haushalt build)
//   ├── validateCmd (haushalt validate)
//   ├── searchCmd   (haushalt search <query>)
//   ├── importCmd   (haushalt import <csv> <db>)
//   └── versionCmd  (haushalt version)
//
// CONFIGURATION:
//   The pipeline configuration is a YAML file (--config). Selected keys can
//   be overridden by flags or HAUSHALT_* environment variables, e.g.
//   HAUSHALT_OUTPUT_DIR=/srv/data or HAUSHALT_CLASSIFICATION_MODE=economic.
//   Flags win over environment variables, which win over the file.
//
// =============================================================================

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tifa365/haushaltsdaten/internal/config"
)

// =============================================================================
// GLOBAL VARIABLES
// =============================================================================

// cfgFile holds the path to the pipeline configuration file.
var cfgFile string

// verbose enables debug logging when set to true.
var verbose bool

// logger is built before every command runs.
var logger = zap.NewNop()

// logLevel is adjusted after the configuration file is read.
var logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)

// overrideKeys are the configuration keys that flags and environment
// variables may override.
var overrideKeys = []string{
	"source.path",
	"classification.mode",
	"output.dir",
	"output.version",
	"output.dry_run",
	"output.report_dir",
	"log_level",
}

// =============================================================================
// ROOT COMMAND DEFINITION
// =============================================================================

var rootCmd = &cobra.Command{
	Use:   "haushalt",
	Short: "Haushaltsdaten - publish municipal budget ledgers as static JSON",
	Long: `haushalt turns a municipal budget ledger (CSV, XLSX or SQLite) into a
versioned set of static JSON files: a weighted category tree and a
value-sorted line item list per fiscal year, record type and scope, plus a
search index.

Every run validates its totals before anything is written, and a new
version only becomes visible once all of its files are in place.

Example Usage:
  haushalt build --config haushalt.yaml     # Build and publish a version
  haushalt build --dry-run                  # Build and validate only
  haushalt validate                         # Check config, rules and header
  haushalt search "kita"                    # Query the published version
  haushalt import data.csv haushalt.db      # Load a CSV into SQLite`,

	SilenceUsage: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		zcfg.Level = logLevel
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		} else if lvl := viper.GetString("log_level"); lvl != "" {
			if err := setLogLevel(lvl); err != nil {
				return err
			}
		}

		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command. It is called by main.main().
// SIGINT and SIGTERM cancel the running command.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// =============================================================================
// INITIALIZATION
// =============================================================================

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&cfgFile,
		"config",
		"haushalt.yaml",
		"Path to the pipeline configuration file",
	)
	rootCmd.PersistentFlags().BoolVarP(
		&verbose,
		"verbose",
		"v",
		false,
		"Enable debug logging",
	)
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	_ = viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
}

// initConfig wires HAUSHALT_* environment variables into viper.
func initConfig() {
	viper.SetEnvPrefix("HAUSHALT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range overrideKeys {
		_ = viper.BindEnv(key)
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// loadConfig reads the configuration file and applies flag and environment
// overrides on top of it.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	applyOverrides(cfg)

	if !verbose && !viper.IsSet("log_level") && cfg.LogLevel != "" {
		if err := setLogLevel(cfg.LogLevel); err != nil {
			return nil, err
		}
	}
	logger.Debug("configuration loaded", zap.String("path", cfgFile))
	return cfg, nil
}

func applyOverrides(cfg *config.Config) {
	if viper.IsSet("source.path") {
		cfg.Source.Path = viper.GetString("source.path")
		cfg.Source.Kind = config.KindFromPath(cfg.Source.Path)
	}
	if viper.IsSet("classification.mode") {
		cfg.Classification.Mode = viper.GetString("classification.mode")
	}
	if viper.IsSet("output.dir") {
		cfg.Output.Dir = viper.GetString("output.dir")
	}
	if viper.IsSet("output.version") {
		cfg.Output.Version = viper.GetString("output.version")
	}
	if viper.IsSet("output.dry_run") {
		cfg.Output.DryRun = viper.GetBool("output.dry_run")
	}
	if viper.IsSet("output.report_dir") {
		cfg.Output.ReportDir = viper.GetString("output.report_dir")
	}
}

func setLogLevel(name string) error {
	lvl, err := zapcore.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	logLevel.SetLevel(lvl)
	return nil
}
