package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/search"
	"github.com/tifa365/haushaltsdaten/internal/types"
	"github.com/tifa365/haushaltsdaten/internal/writer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const ledgerCSV = `id;Jahr;Produkt;Titel;Bezirk;Betrag
r1;2025;11.100;Kita Nord;Mitte;100,00
r2;2025;11.100;Kita Süd;Mitte;50,00
r3;2025;21.200;Schule;Pankow;200,00
r4;2025;99.000;Unbekannt;Mitte;5,00
r5;abc;11.100;Kaputt;Mitte;1,00
`

const rulesYAML = `
prefix_length: 2
categories:
  A: {name: "Soziales", color: "#1f77b4", rank: 1}
  B: {name: "Schule", color: "#ff7f0e", rank: 2}
prefixes:
  "11": A
  "21": B
`

const pipelineConfig = `
source:
  path: haushalt.csv
  csv: {delimiter: ";", decimal_comma: true}
columns:
  id: id
  year: Jahr
  amounts: [{column: Betrag}]
  title: Titel
  office: Bezirk
classification:
  modes:
    functional: {primary: Produkt}
search:
  indexed_fields: [Titel]
  stored_fields: [id, Titel, categoryName]
slices:
  scopes: {"01": "", "02": "Mitte"}
`

var fixedNow = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

func setup(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	for name, content := range map[string]string{
		"haushalt.csv":  ledgerCSV,
		"rules.yaml":    rulesYAML,
		"haushalt.yaml": pipelineConfig,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	cfg, err := config.Load(filepath.Join(dir, "haushalt.yaml"))
	require.NoError(t, err)
	cfg.Output.Dir = filepath.Join(dir, "out")
	return cfg
}

func TestRunPublishesVersion(t *testing.T) {
	cfg := setup(t)
	cfg.Output.ReportDir = filepath.Join(filepath.Dir(cfg.Output.Dir), "reports")

	var files atomic.Int32
	p := New(cfg, Options{Now: fixedNow, OnFile: func(string, int) { files.Add(1) }}, zaptest.NewLogger(t))
	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.True(t, res.Published())
	assert.Len(t, res.Version, 12)
	assert.EqualValues(t, 13, files.Load())
	assert.FileExists(t, res.SummaryPath)

	// Audit
	assert.Equal(t, 5, res.Audit.Total)
	assert.Equal(t, 3, res.Audit.Admitted)
	assert.Equal(t, 1, res.Audit.Skipped[types.SkipMalformed])
	assert.Equal(t, 1, res.Audit.Skipped[types.SkipUnmapped])
	assert.Equal(t, []string{"99"}, res.Audit.UnmappedPrefixes())
	require.Len(t, res.Issues, 1)
	assert.Equal(t, 5, res.Issues[0].RowNumber)

	// Slices
	require.Len(t, res.Artifact.Slices, 2)
	all := res.Artifact.Slices[0]
	assert.Equal(t, "01", all.Key.Scope)
	assert.Equal(t, "350.00", all.Tree.Value.String())
	require.Len(t, all.Tree.Children, 2)
	assert.Equal(t, "150.00", all.Tree.Children[0].Value.String())
	assert.Len(t, all.Tree.Children[0].Children[0].Children, 2)
	assert.Equal(t, []string{"r3", "r1", "r2"}, []string{all.Items[0].ID, all.Items[1].ID, all.Items[2].ID})

	mitte := res.Artifact.Slices[1]
	assert.Equal(t, "02", mitte.Key.Scope)
	assert.Equal(t, "150.00", mitte.Tree.Value.String())
	assert.Equal(t, 1, mitte.Summary.CategoryCount)

	assert.Equal(t, "350.00", res.Artifact.Meta.Totals["2025/Ausgaben"].String())
	assert.True(t, res.Validation.IsValid)

	// Published files
	tag, dir, err := writer.ResolveVersion(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, res.Version, tag)
	assert.FileExists(t, filepath.Join(dir, "2025", "Ausgaben", "02.hierarchy.json"))
	assert.FileExists(t, filepath.Join(dir, "2025", "Ausgaben", "01", "blocks", "B.json"))
	assert.FileExists(t, filepath.Join(dir, "2025", "Ausgaben", "02", "blocks", "A.json"))
	assert.NoFileExists(t, filepath.Join(dir, "2025", "Ausgaben", "02", "blocks", "B.json"))

	idx, err := search.LoadIndex(filepath.Join(dir, writer.SearchIndexFile))
	require.NoError(t, err)
	hits := idx.Search("kita")
	require.Len(t, hits, 2)

	docs, err := search.LoadDocuments(filepath.Join(dir, writer.SearchDocumentsFile))
	require.NoError(t, err)
	rec, ok := docs.Lookup(hits[0].ID)
	require.True(t, ok)
	assert.Equal(t, "Soziales", rec["categoryName"])
}

func TestRunIsDeterministic(t *testing.T) {
	cfg := setup(t)

	first, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	path := filepath.Join(cfg.Output.Dir, first.Version, "2025", "Ausgaben", "01.hierarchy.json")
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	second, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))
}

func TestRunVersionFollowsRules(t *testing.T) {
	cfg := setup(t)
	first, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)

	cfg.Output.DryRun = true
	require.NoError(t, os.WriteFile(cfg.Classification.RulesFile, []byte(rulesYAML+`  "99": B
`), 0o644))
	second, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)
	assert.Equal(t, 4, second.Audit.Admitted)
}

func TestRunVersionFollowsConfig(t *testing.T) {
	cfg := setup(t)
	first, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	listPath := filepath.Join(cfg.Output.Dir, first.Version, "2025", "Ausgaben", "01.json")
	before, err := os.ReadFile(listPath)
	require.NoError(t, err)

	// Settings that do not shape the output keep the tag.
	cfg.Output.MaxConcurrency = 1
	cfg.Output.ReportDir = filepath.Join(t.TempDir(), "reports")
	cfg.LogLevel = "debug"
	same, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first.Version, same.Version)

	cfg.Admission.RecordLevel = config.Predicate{Column: "Bezirk", Value: "Pankow", Match: "equals"}
	second, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Version, second.Version)
	assert.Equal(t, 1, second.Audit.Admitted)

	after, err := os.ReadFile(listPath)
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	tag, _, err := writer.ResolveVersion(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, second.Version, tag)

	cfg.Slices.Scopes["03"] = "Pankow"
	third, err := New(cfg, Options{Now: fixedNow}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, second.Version, third.Version)
}

func TestDryRunPublishesNothing(t *testing.T) {
	cfg := setup(t)
	cfg.Output.DryRun = true

	res, err := New(cfg, Options{}, zaptest.NewLogger(t)).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Published())
	assert.NotNil(t, res.Artifact)

	_, _, err = writer.ResolveVersion(cfg.Output.Dir)
	assert.ErrorIs(t, err, writer.ErrNotReady)
}

func TestExplicitVersionTag(t *testing.T) {
	cfg := setup(t)
	cfg.Output.Version = "2025-haushalt"

	res, err := New(cfg, Options{}, nil).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2025-haushalt", res.Version)
}

func TestSchemaErrorStillReturnsAudit(t *testing.T) {
	cfg := setup(t)
	cfg.Columns.CostType = "Kostenart"

	res, err := New(cfg, Options{}, zaptest.NewLogger(t)).Run(context.Background())
	var se *types.SchemaError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, []string{"Kostenart"}, se.Missing)
	assert.True(t, types.IsFatal(err))
	require.NotNil(t, res)
	require.NotNil(t, res.Audit)
	assert.Equal(t, 0, res.Audit.Total)
}

func TestFailedRunKeepsPreviousVersion(t *testing.T) {
	cfg := setup(t)
	first, err := New(cfg, Options{}, nil).Run(context.Background())
	require.NoError(t, err)

	cfg.Output.Version = "next"
	cfg.Slices.Scopes["../x"] = ""
	_, err = New(cfg, Options{}, nil).Run(context.Background())
	require.Error(t, err)

	tag, _, err := writer.ResolveVersion(cfg.Output.Dir)
	require.NoError(t, err)
	assert.Equal(t, first.Version, tag)
}

func TestCancelledRun(t *testing.T) {
	cfg := setup(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := New(cfg, Options{}, nil).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, res.Published())
}

func TestCheck(t *testing.T) {
	cfg := setup(t)
	rep, err := New(cfg, Options{}, nil).Check(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Rules)
	assert.Equal(t, "functional", rep.Mode)
	assert.Contains(t, rep.Columns, "Betrag")
	assert.Empty(t, rep.Warnings)

	cfg.Columns.Title = "Bezeichnung"
	_, err = New(cfg, Options{}, nil).Check(context.Background())
	var se *types.SchemaError
	assert.True(t, errors.As(err, &se))
}
