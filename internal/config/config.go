// =============================================================================
// Haushaltsdaten - Configuration Module
// =============================================================================
//
// This module is responsible for loading and validating the pipeline
// configuration. A run is described by two files:
//
//   1. Pipeline Config (haushalt.yaml): source, columns, admission policy,
//      classification mode, search fields, slices, output settings
//   2. Classification Rules (rules.yaml): prefix -> category table,
//      see rules.go
//
// Command line flags and HAUSHALT_* environment variables are applied on top
// of the file by the cmd package before Validate is called.
//
// =============================================================================

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// =============================================================================
// MAIN CONFIGURATION STRUCTURE
// =============================================================================

// Config holds the settings for one pipeline run.
type Config struct {
	Source         SourceConfig         `yaml:"source"`
	Columns        ColumnConfig         `yaml:"columns"`
	RecordTypes    RecordTypeConfig     `yaml:"record_types"`
	Admission      AdmissionConfig      `yaml:"admission"`
	Classification ClassificationConfig `yaml:"classification"`
	Search         SearchConfig         `yaml:"search"`
	Slices         SliceConfig          `yaml:"slices"`
	Output         OutputConfig         `yaml:"output"`

	// LogLevel controls the verbosity of logging.
	// Valid values: "debug", "info", "warn", "error"
	// Default: "info"
	LogLevel string `yaml:"log_level"`
}

// =============================================================================
// SOURCE SETTINGS
// =============================================================================

// Source kinds.
const (
	SourceCSV    = "csv"
	SourceXLSX   = "xlsx"
	SourceSQLite = "sqlite"
)

// SourceConfig describes where ledger rows are read from.
type SourceConfig struct {
	// Kind selects the reader: "csv", "xlsx" or "sqlite".
	// Default: derived from the file extension of Path.
	Kind string `yaml:"kind"`

	// Path is the source file.
	Path string `yaml:"path"`

	// Sheet is the worksheet to read for xlsx sources.
	// Default: the first sheet of the workbook
	Sheet string `yaml:"sheet"`

	// Table is the table to read for sqlite sources.
	// Default: "haushalt"
	Table string `yaml:"table"`

	// CSV contains the delimited text settings.
	CSV CSVSettings `yaml:"csv"`
}

// CSVSettings contains settings for parsing delimited text sources.
type CSVSettings struct {
	// Delimiter is the character used to separate fields.
	// Common values: "," (comma), ";" (semicolon), "\t" (tab)
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// Encoding is the character encoding of the file.
	// Supported: "UTF-8", "ISO-8859-1", "ISO-8859-15", "Windows-1252"
	// Default: "UTF-8"
	Encoding string `yaml:"encoding"`

	// DecimalComma reads "1.234,56" as 1234.56.
	DecimalComma bool `yaml:"decimal_comma"`
}

// =============================================================================
// COLUMN MAPPING
// =============================================================================

// ColumnConfig maps ledger concepts to source column names.
// Empty names mean the concept is absent from the source.
type ColumnConfig struct {
	// ID is the unique row identifier column.
	// If empty, rows are identified by their zero-padded row number.
	ID string `yaml:"id"`

	// Year holds the fiscal year of a row (long format sources).
	Year string `yaml:"year"`

	// RecordType holds the record type label (e.g. "Ausgabetitel").
	RecordType string `yaml:"record_type"`

	// Amounts lists the monetary columns.
	Amounts []AmountColumn `yaml:"amounts"`

	// Title is the line item description.
	Title string `yaml:"title"`

	// Office is the originating office or district label.
	Office string `yaml:"office"`

	// CostType is the cost type label shown in the flat list.
	CostType string `yaml:"cost_type"`
}

// AmountColumn binds a monetary column to a fiscal year.
type AmountColumn struct {
	Column string `yaml:"column"`

	// Year is the fiscal year of the column.
	// 0 means "the year of the row", read from Columns.Year.
	Year int `yaml:"year"`
}

// RecordTypeConfig maps record type labels to the accounting side.
type RecordTypeConfig struct {
	// Labels maps a raw label to "expense" or "revenue".
	Labels map[string]string `yaml:"labels"`

	// Default is the label used when the source has no record type column.
	// Default: "Ausgaben"
	Default string `yaml:"default"`
}

// =============================================================================
// ADMISSION POLICY
// =============================================================================

// Predicate matches one column against a value.
type Predicate struct {
	Column string `yaml:"column"`
	Value  string `yaml:"value"`

	// Match is "equals" or "contains".
	Match string `yaml:"match"`
}

// Enabled reports whether the predicate is configured.
func (p Predicate) Enabled() bool {
	return p.Column != ""
}

// Matches evaluates the predicate against a raw value.
func (p Predicate) Matches(value string) bool {
	value = strings.TrimSpace(value)
	if p.Match == "contains" {
		return strings.Contains(value, p.Value)
	}
	return value == p.Value
}

// AdmissionConfig holds the two independent exclusion predicates.
// They are applied in field order: cost category first, record level second.
type AdmissionConfig struct {
	// CostCategory admits only rows of the configured expense category level,
	// e.g. Kostenart contains "2 ordentliche Aufwendungen".
	// Default match: "contains"
	CostCategory Predicate `yaml:"cost_category"`

	// RecordLevel admits only rows of the finest granularity,
	// e.g. Objektart equals "PR".
	// Default match: "equals"
	RecordLevel Predicate `yaml:"record_level"`
}

// =============================================================================
// CLASSIFICATION
// =============================================================================

// ClassificationConfig selects the rules table and the active mode.
type ClassificationConfig struct {
	// RulesFile is the path to the prefix rules YAML, relative to the config file.
	// Default: "rules.yaml"
	RulesFile string `yaml:"rules_file"`

	// Mode is the active classification mode, a key of Modes.
	// Default: "functional"
	Mode string `yaml:"mode"`

	// Modes maps mode names to the columns they project.
	Modes map[string]ModeColumns `yaml:"modes"`
}

// ModeColumns is the column set of one classification mode.
type ModeColumns struct {
	// Primary holds the code whose prefix selects the category.
	Primary string `yaml:"primary"`

	// Secondary holds the next-finer grouping key.
	// Default: Primary
	Secondary string `yaml:"secondary"`

	// SecondaryLabel holds the display name of the secondary group.
	SecondaryLabel string `yaml:"secondary_label"`

	// Tertiary holds the finest key.
	// Default: Columns.Title
	Tertiary string `yaml:"tertiary"`
}

// ActiveMode returns the column set of the configured mode.
func (c *Config) ActiveMode() ModeColumns {
	return c.Classification.Modes[c.Classification.Mode]
}

// =============================================================================
// SEARCH, SLICES, OUTPUT
// =============================================================================

// SearchConfig lists the fields of the search artifacts.
type SearchConfig struct {
	// IndexedFields are tokenized and searchable.
	IndexedFields []string `yaml:"indexed_fields"`

	// StoredFields are returned with results in column order.
	StoredFields []string `yaml:"stored_fields"`
}

// SliceConfig controls the per year x record type x scope outputs.
type SliceConfig struct {
	// Years restricts the fiscal years to publish.
	// Default: every year present in the admitted rows
	Years []int `yaml:"years"`

	// ScopeColumn is the column that scope values are matched against.
	// Default: Columns.Office
	ScopeColumn string `yaml:"scope_column"`

	// Scopes maps scope keys (file names) to column values.
	// An empty value selects all rows.
	// Default: {"01": ""}
	Scopes map[string]string `yaml:"scopes"`
}

// ScopeKeys returns the configured scope keys, sorted.
func (s SliceConfig) ScopeKeys() []string {
	keys := make([]string, 0, len(s.Scopes))
	for k := range s.Scopes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// OutputConfig controls publishing.
type OutputConfig struct {
	// Dir is the artifact root; versions are written below it.
	// Default: "./public/data"
	Dir string `yaml:"dir"`

	// Version overrides the computed content hash tag.
	Version string `yaml:"version"`

	// RootName is the display name of the hierarchy root.
	// Default: "Haushalt"
	RootName string `yaml:"root_name"`

	// Currency is the ISO code used in console summaries.
	// Default: "EUR"
	Currency string `yaml:"currency"`

	// MaxConcurrency bounds the number of slices built in parallel.
	// Default: 4
	MaxConcurrency int `yaml:"max_concurrency"`

	// DryRun builds and validates everything but publishes nothing.
	DryRun bool `yaml:"dry_run"`

	// ReportDir receives the run summary log. Empty disables it.
	ReportDir string `yaml:"report_dir"`
}

// =============================================================================
// CONFIGURATION LOADING FUNCTIONS
// =============================================================================

// Load reads the pipeline configuration from a YAML file.
//
// PARAMETERS:
//   - configPath: The path to the configuration file.
//
// RETURNS:
//   - A pointer to the Config struct, with defaults applied.
//   - An error if the file cannot be read or parsed.
//
// Validate is not called here so flag overrides can be applied first.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}

	// Paths in the file are relative to the file.
	base := filepath.Dir(configPath)
	cfg.Source.Path = resolve(base, cfg.Source.Path)
	cfg.Classification.RulesFile = resolve(base, cfg.Classification.RulesFile)

	return cfg, nil
}

// Parse decodes a configuration document and applies defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

func resolve(base, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(base, p)
}

// ApplyDefaults sets default values for any unset configuration options.
func ApplyDefaults(cfg *Config) {
	if cfg.Source.Kind == "" {
		cfg.Source.Kind = KindFromPath(cfg.Source.Path)
	}
	if cfg.Source.Table == "" {
		cfg.Source.Table = "haushalt"
	}
	if cfg.Source.CSV.Delimiter == "" {
		cfg.Source.CSV.Delimiter = ","
	}
	if cfg.Source.CSV.Encoding == "" {
		cfg.Source.CSV.Encoding = "UTF-8"
	}

	if cfg.RecordTypes.Default == "" {
		cfg.RecordTypes.Default = "Ausgaben"
	}
	if cfg.RecordTypes.Labels == nil {
		cfg.RecordTypes.Labels = map[string]string{}
	}
	if _, ok := cfg.RecordTypes.Labels[cfg.RecordTypes.Default]; !ok {
		cfg.RecordTypes.Labels[cfg.RecordTypes.Default] = string(types.KindExpense)
	}

	if cfg.Admission.CostCategory.Match == "" {
		cfg.Admission.CostCategory.Match = "contains"
	}
	if cfg.Admission.RecordLevel.Match == "" {
		cfg.Admission.RecordLevel.Match = "equals"
	}

	if cfg.Classification.RulesFile == "" {
		cfg.Classification.RulesFile = "rules.yaml"
	}
	if cfg.Classification.Mode == "" {
		cfg.Classification.Mode = "functional"
	}
	for name, m := range cfg.Classification.Modes {
		if m.Secondary == "" {
			m.Secondary = m.Primary
		}
		if m.Tertiary == "" {
			m.Tertiary = cfg.Columns.Title
		}
		cfg.Classification.Modes[name] = m
	}

	if len(cfg.Search.IndexedFields) == 0 && cfg.Columns.Title != "" {
		cfg.Search.IndexedFields = []string{cfg.Columns.Title}
	}
	if len(cfg.Search.StoredFields) == 0 {
		cfg.Search.StoredFields = []string{"id"}
		if cfg.Columns.Title != "" {
			cfg.Search.StoredFields = append(cfg.Search.StoredFields, cfg.Columns.Title)
		}
	}

	if cfg.Slices.ScopeColumn == "" {
		cfg.Slices.ScopeColumn = cfg.Columns.Office
	}
	if len(cfg.Slices.Scopes) == 0 {
		cfg.Slices.Scopes = map[string]string{"01": ""}
	}

	if cfg.Output.Dir == "" {
		cfg.Output.Dir = "./public/data"
	}
	if cfg.Output.RootName == "" {
		cfg.Output.RootName = "Haushalt"
	}
	if cfg.Output.Currency == "" {
		cfg.Output.Currency = "EUR"
	}
	if cfg.Output.MaxConcurrency == 0 {
		cfg.Output.MaxConcurrency = 4
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

// KindFromPath guesses the source kind from a file extension.
func KindFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return SourceXLSX
	case ".db", ".sqlite", ".sqlite3":
		return SourceSQLite
	default:
		return SourceCSV
	}
}

// Validate checks the configuration for errors a run cannot recover from.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.Source.Path == "" {
		add("source.path is required")
	}
	switch c.Source.Kind {
	case SourceCSV, SourceXLSX, SourceSQLite:
	default:
		add("source.kind %q is not one of csv, xlsx, sqlite", c.Source.Kind)
	}

	if len(c.Columns.Amounts) == 0 {
		add("columns.amounts needs at least one column")
	}
	for i, a := range c.Columns.Amounts {
		if a.Column == "" {
			add("columns.amounts[%d].column is required", i)
		}
		if a.Year == 0 && c.Columns.Year == "" {
			add("columns.amounts[%d] has no year and columns.year is not set", i)
		}
	}

	for label, kind := range c.RecordTypes.Labels {
		if !types.RecordKind(kind).Valid() {
			add("record_types.labels[%s]: %q is not expense or revenue", label, kind)
		}
		if !safeSegment(label) {
			add("record_types.labels[%s]: label is not a valid path segment", label)
		}
	}

	for name, p := range map[string]Predicate{
		"cost_category": c.Admission.CostCategory,
		"record_level":  c.Admission.RecordLevel,
	} {
		if p.Match != "equals" && p.Match != "contains" {
			add("admission.%s.match %q is not equals or contains", name, p.Match)
		}
	}

	mode, ok := c.Classification.Modes[c.Classification.Mode]
	if !ok {
		add("classification.mode %q is not defined in classification.modes", c.Classification.Mode)
	} else if mode.Primary == "" {
		add("classification.modes[%s].primary is required", c.Classification.Mode)
	}

	if len(c.Search.IndexedFields) == 0 {
		add("search.indexed_fields must not be empty")
	}
	if len(c.Search.StoredFields) == 0 {
		add("search.stored_fields must not be empty")
	}

	for key, value := range c.Slices.Scopes {
		if !safeSegment(key) {
			add("slices.scopes: key %q is not a valid file name", key)
		}
		if value != "" && c.Slices.ScopeColumn == "" {
			add("slices.scopes[%s] filters on %q but no scope column is set", key, value)
		}
	}

	if c.Output.MaxConcurrency < 1 {
		add("output.max_concurrency must be at least 1")
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Warnings lists settings that are accepted but have no effect for the
// configured source kind.
func (c *Config) Warnings() []string {
	var notes []string
	if c.Source.Kind != SourceCSV {
		if c.Source.CSV.DecimalComma {
			notes = append(notes, fmt.Sprintf("source.csv.decimal_comma is ignored for %s sources", c.Source.Kind))
		}
		if d := c.Source.CSV.Delimiter; d != "" && d != "," {
			notes = append(notes, fmt.Sprintf("source.csv.delimiter is ignored for %s sources", c.Source.Kind))
		}
		if e := c.Source.CSV.Encoding; e != "" && !strings.EqualFold(e, "UTF-8") {
			notes = append(notes, fmt.Sprintf("source.csv.encoding is ignored for %s sources", c.Source.Kind))
		}
	}
	if c.Source.Kind != SourceXLSX && c.Source.Sheet != "" {
		notes = append(notes, fmt.Sprintf("source.sheet is ignored for %s sources", c.Source.Kind))
	}
	return notes
}

func safeSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}

// RequiredColumns lists every source column the run reads.
// Virtual search fields are not included.
func (c *Config) RequiredColumns() []string {
	seen := map[string]bool{}
	var cols []string
	add := func(name string) {
		if name != "" && !seen[name] {
			seen[name] = true
			cols = append(cols, name)
		}
	}

	add(c.Columns.ID)
	add(c.Columns.Year)
	add(c.Columns.RecordType)
	for _, a := range c.Columns.Amounts {
		add(a.Column)
	}
	add(c.Columns.Title)
	add(c.Columns.Office)
	add(c.Columns.CostType)
	add(c.Admission.CostCategory.Column)
	add(c.Admission.RecordLevel.Column)

	mode := c.ActiveMode()
	add(mode.Primary)
	add(mode.Secondary)
	add(mode.SecondaryLabel)
	add(mode.Tertiary)

	add(c.Slices.ScopeColumn)
	for _, f := range c.Search.IndexedFields {
		if !IsVirtualField(f) {
			add(f)
		}
	}
	for _, f := range c.Search.StoredFields {
		if !IsVirtualField(f) {
			add(f)
		}
	}
	return cols
}

// Virtual search fields are derived from the row instead of read from a column.
var virtualFields = map[string]bool{
	"id":           true,
	"year":         true,
	"recordType":   true,
	"category":     true,
	"categoryName": true,
	"group":        true,
	"groupName":    true,
}

// IsVirtualField reports whether name is a derived search field.
func IsVirtualField(name string) bool {
	return virtualFields[name]
}
