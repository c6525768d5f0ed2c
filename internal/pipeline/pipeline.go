// =============================================================================
// Haushaltsdaten - Pipeline Module
// =============================================================================
//
// This module orchestrates one run, from the raw ledger to a published
// version of the static data set.
//
// PIPELINE:
//   1. Validate the configuration and load the classification rules
//   2. Load ledger rows from the source
//   3. Admit and classify rows
//   4. Aggregate the full row set and check the grand totals
//   5. Build every year x record type x scope slice in parallel:
//      filter, aggregate, tree, validate, flat list, summary, details
//   6. Build the search index and document store
//   7. Compute the version tag
//   8. Publish (skipped on dry runs)
//
// Stages run in order; only step 5 fans out. Nothing is written unless every
// check passed. The audit is returned for failed runs too.
//
// =============================================================================

package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tifa365/haushaltsdaten/internal/aggregator"
	"github.com/tifa365/haushaltsdaten/internal/classifier"
	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/flatlist"
	"github.com/tifa365/haushaltsdaten/internal/hierarchy"
	"github.com/tifa365/haushaltsdaten/internal/loader"
	"github.com/tifa365/haushaltsdaten/internal/search"
	"github.com/tifa365/haushaltsdaten/internal/types"
	"github.com/tifa365/haushaltsdaten/internal/validation"
	"github.com/tifa365/haushaltsdaten/internal/writer"
	"github.com/tifa365/haushaltsdaten/pkg/utils"
)

// hashLength is the number of hex digits in a content hash tag.
const hashLength = 12

// =============================================================================
// RESULT STRUCTURE
// =============================================================================

// Result represents the outcome of a run. It is returned even when the run
// fails; fields past the failing stage are zero.
type Result struct {
	RunID   string
	Version string

	// Audit holds the row counters of loading and classification.
	Audit *types.Audit

	// Issues are the malformed rows that were skipped.
	Issues []*types.RowFormatError

	// Unmapped are the rows excluded for an unknown code prefix.
	Unmapped []*types.UnmappedClassificationError

	// Validation holds every total check of the run.
	Validation *validation.Result

	Artifact *writer.Artifact

	// Report is nil for dry runs.
	Report *writer.Report

	// SummaryPath is the run summary log, if one was written.
	SummaryPath string

	Duration time.Duration
}

// Published reports whether the run switched the manifest.
func (r *Result) Published() bool {
	return r.Report != nil
}

// =============================================================================
// PIPELINE STRUCTURE
// =============================================================================

// Options adjusts a run beyond the configuration.
type Options struct {
	// OnFile is forwarded to the writer for progress reporting.
	OnFile func(path string, bytes int)

	// Now replaces time.Now, for tests.
	Now func() time.Time
}

// Pipeline runs the stages for one configuration.
type Pipeline struct {
	cfg    *config.Config
	opts   Options
	logger *zap.Logger
}

// New creates a Pipeline. cfg is only read.
func New(cfg *config.Config, opts Options, logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{cfg: cfg, opts: opts, logger: logger}
}

// =============================================================================
// MAIN PROCESSING FUNCTION
// =============================================================================

// Run executes the pipeline.
//
// RETURNS:
//   - The Result. Never nil.
//   - The first fatal error, or nil.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	start := p.opts.Now()
	res := &Result{
		RunID:      uuid.NewString(),
		Audit:      types.NewAudit(),
		Validation: &validation.Result{IsValid: true},
	}
	logger := p.logger.With(zap.String("run", res.RunID))

	err := p.run(ctx, res, logger)
	res.Duration = p.opts.Now().Sub(start)

	if dir := p.cfg.Output.ReportDir; dir != "" {
		summary := utils.RunSummary{
			RunID:     res.RunID,
			StartTime: start,
			EndTime:   start.Add(res.Duration),
			Source:    p.cfg.Source.Path,
			Version:   res.Version,
			DryRun:    p.cfg.Output.DryRun,
			Audit:     res.Audit,
		}
		if res.Artifact != nil {
			summary.Slices = len(res.Artifact.Slices)
		}
		if res.Report != nil {
			summary.Files = len(res.Report.Files)
		}
		if err != nil {
			summary.Errors = []string{err.Error()}
		}
		path, werr := utils.WriteSummaryLog(summary, dir)
		if werr != nil {
			logger.Warn("failed to write run summary", zap.Error(werr))
		} else {
			res.SummaryPath = path
		}
	}

	if err != nil {
		logger.Error("run failed", zap.Error(err), zap.Bool("fatal", types.IsFatal(err)))
	}
	return res, err
}

func (p *Pipeline) run(ctx context.Context, res *Result, logger *zap.Logger) error {
	cfg := p.cfg

	// =========================================================================
	// STEP 1: CONFIGURATION AND RULES
	// =========================================================================

	if err := cfg.Validate(); err != nil {
		return err
	}
	for _, note := range cfg.Warnings() {
		logger.Warn("configuration", zap.String("note", note))
	}
	rules, err := config.LoadRules(cfg.Classification.RulesFile)
	if err != nil {
		return err
	}
	table, err := classifier.FromRulesFile(rules)
	if err != nil {
		return err
	}

	// =========================================================================
	// STEP 2: LOAD
	// =========================================================================

	src, err := loader.Open(cfg.Source)
	if err != nil {
		return err
	}
	defer src.Close()

	loaded, err := loader.New(loader.SpecFromConfig(cfg), logger).Load(ctx, src)
	if err != nil {
		return err
	}
	res.Audit.Merge(loaded.Audit)
	res.Issues = loaded.Issues

	// =========================================================================
	// STEP 3: ADMIT AND CLASSIFY
	// =========================================================================

	mode := classifier.NewMode(cfg.Classification.Mode, cfg.ActiveMode())
	classified := classifier.New(table, mode, cfg.Admission, logger).Classify(loaded.Rows)
	res.Audit.Merge(classified.Audit)
	res.Unmapped = classified.Unmapped
	rows := classified.Admitted

	// =========================================================================
	// STEP 4: GLOBAL AGGREGATE
	// =========================================================================

	years := cfg.Slices.Years
	if len(years) == 0 {
		years = aggregator.YearsOf(rows)
	}
	recordTypes := aggregator.RecordTypesOf(rows)

	global := validation.ValidateTotals(validation.GlobalScope,
		rows, aggregator.Aggregate(rows, years), years)
	res.Validation.Merge(global)
	if !global.IsValid {
		return global.Err()
	}

	// =========================================================================
	// STEP 5: SLICES
	// =========================================================================

	if err := ctx.Err(); err != nil {
		return err
	}
	slices, checks, err := p.buildSlices(ctx, rows, years, recordTypes)
	res.Validation.Merge(checks)
	if err != nil {
		return err
	}
	if !checks.IsValid {
		return checks.Err()
	}
	logger.Info("slices built", zap.Int("slices", len(slices)))

	// =========================================================================
	// STEP 6: SEARCH
	// =========================================================================

	index, docs, err := search.Build(rows, cfg.Search.IndexedFields, cfg.Search.StoredFields)
	if err != nil {
		return err
	}
	logger.Info("search index built",
		zap.Int("documents", index.DocCount),
		zap.Int("tokens", len(index.Tokens)),
	)

	// =========================================================================
	// STEP 7: VERSION TAG
	// =========================================================================

	res.Version, err = p.versionTag(table)
	if err != nil {
		return err
	}

	res.Artifact = &writer.Artifact{
		Tag:       res.Version,
		Slices:    slices,
		Index:     index,
		Documents: docs,
		Meta: writer.Meta{
			Version:     res.Version,
			GeneratedAt: p.opts.Now().UTC(),
			Source:      filepath.Base(cfg.Source.Path),
			Mode:        cfg.Classification.Mode,
			Years:       years,
			RecordTypes: recordTypes,
			Scopes:      cfg.Slices.Scopes,
			Totals:      totals(rows, years, recordTypes),
			ItemCount:   len(rows),
			Audit:       res.Audit,
		},
	}

	// =========================================================================
	// STEP 8: PUBLISH
	// =========================================================================

	if cfg.Output.DryRun {
		logger.Info("dry run, nothing published", zap.String("version", res.Version))
		return nil
	}

	w := writer.New(cfg.Output.Dir, writer.Options{
		Concurrency: cfg.Output.MaxConcurrency,
		OnFile:      p.opts.OnFile,
	}, logger)
	res.Report, err = w.Publish(ctx, res.Artifact)
	return err
}

// buildSlices builds every slice in parallel. Validation failures are
// collected; structural errors abort the group.
func (p *Pipeline) buildSlices(ctx context.Context, rows []types.ClassifiedRow, years []int, recordTypes []string) ([]writer.Slice, *validation.Result, error) {
	cfg := p.cfg
	cols := flatlist.Columns{Title: cfg.Columns.Title, Office: cfg.Columns.Office, CostType: cfg.Columns.CostType}
	detailCols := aggregator.DetailColumns(cols)

	var keys []aggregator.SliceKey
	for _, year := range years {
		for _, rt := range recordTypes {
			for _, scope := range cfg.Slices.ScopeKeys() {
				keys = append(keys, aggregator.SliceKey{Year: year, RecordType: rt, Scope: scope})
			}
		}
	}

	slices := make([]writer.Slice, len(keys))
	results := make([]*validation.Result, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Output.MaxConcurrency)
	for i, key := range keys {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			label := fmt.Sprintf("%d/%s/%s", key.Year, key.RecordType, key.Scope)
			subset := aggregator.Filter(rows, key.Year, key.RecordType, cfg.Slices.ScopeColumn, cfg.Slices.Scopes[key.Scope])
			agg := aggregator.Aggregate(subset, []int{key.Year})

			check := validation.ValidateTotals(label, subset, agg, []int{key.Year})
			tree, err := hierarchy.Build(agg, key.Year, cfg.Output.RootName)
			if err != nil {
				return fmt.Errorf("slice %s: %w", label, err)
			}
			check.Merge(validation.ValidateTree(label, subset, key.Year, tree))

			results[i] = check
			slices[i] = writer.Slice{
				Key:     key,
				Items:   flatlist.Build(subset, key.Year, cols),
				Tree:    tree,
				Summary: aggregator.Summarize(agg, key),
				Details: aggregator.Details(agg, key.Year, detailCols),
			}
			return nil
		})
	}

	err := g.Wait()
	merged := &validation.Result{IsValid: true}
	for _, r := range results {
		merged.Merge(r)
	}
	if err != nil {
		return nil, merged, err
	}
	return slices, merged, nil
}

// versionTag returns the configured version, or a short hash over the source
// snapshot, the rules table and every configuration setting that shapes the
// published files. A UUIDv7 is used if hashing fails.
func (p *Pipeline) versionTag(table *classifier.Table) (string, error) {
	if v := p.cfg.Output.Version; v != "" {
		return v, nil
	}

	rules, err := json.Marshal(struct {
		PrefixLength int                        `json:"prefixLength"`
		Rules        []types.ClassificationRule `json:"rules"`
	}{table.PrefixLength(), table.Rules()})
	if err != nil {
		return "", fmt.Errorf("failed to encode rules for hashing: %w", err)
	}
	settings, err := json.Marshal(contentSettings(p.cfg))
	if err != nil {
		return "", fmt.Errorf("failed to encode configuration for hashing: %w", err)
	}

	tag, err := utils.ContentHash(hashLength, []string{p.cfg.Source.Path}, rules, settings)
	if err == nil {
		return tag, nil
	}

	p.logger.Warn("content hash unavailable, using time-ordered id", zap.Error(err))
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate version id: %w", err)
	}
	return id.String(), nil
}

// contentSettings is the configuration with everything removed that does
// not change the published bytes: file locations, the requested tag,
// dry run, concurrency, console currency and log level.
func contentSettings(cfg *config.Config) config.Config {
	c := *cfg
	c.Source.Path = filepath.Base(cfg.Source.Path)
	c.Classification.RulesFile = ""
	c.Output = config.OutputConfig{RootName: cfg.Output.RootName}
	c.LogLevel = ""
	return c
}

// totals sums rows per "<year>/<recordType>".
func totals(rows []types.ClassifiedRow, years []int, recordTypes []string) map[string]types.Amount {
	out := make(map[string]types.Amount, len(years)*len(recordTypes))
	for _, year := range years {
		for _, rt := range recordTypes {
			var sum types.Amount
			for _, r := range aggregator.Filter(rows, year, rt, "", "") {
				sum = sum.Add(r.Row.Amount(year))
			}
			out[fmt.Sprintf("%d/%s", year, rt)] = sum
		}
	}
	return out
}

// CheckReport describes a successful preflight check.
type CheckReport struct {
	Source  string
	Columns []string
	Rules   int
	Mode    string

	// Warnings are settings without effect for the source kind.
	Warnings []string
}

// Check validates the configuration and the rules table and verifies that
// the source header carries every required column. No rows are read.
func (p *Pipeline) Check(ctx context.Context) (*CheckReport, error) {
	if err := p.cfg.Validate(); err != nil {
		return nil, err
	}
	rules, err := config.LoadRules(p.cfg.Classification.RulesFile)
	if err != nil {
		return nil, err
	}
	table, err := classifier.FromRulesFile(rules)
	if err != nil {
		return nil, err
	}

	src, err := loader.Open(p.cfg.Source)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	header, err := src.Columns(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %s: %w", src.Name(), err)
	}
	if err := validation.CheckSchema(src.Name(), header, p.cfg.RequiredColumns()); err != nil {
		return nil, err
	}

	return &CheckReport{
		Source:   src.Name(),
		Columns:  header,
		Rules:    len(table.Rules()),
		Mode:     p.cfg.Classification.Mode,
		Warnings: p.cfg.Warnings(),
	}, nil
}
