package loader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap/zaptest"
	"golang.org/x/text/encoding/charmap"

	"github.com/tifa365/haushaltsdaten/internal/config"
	"github.com/tifa365/haushaltsdaten/internal/store"
	"github.com/tifa365/haushaltsdaten/internal/types"
)

func berlinSpec() Spec {
	return Spec{
		Required:         []string{"id", "jahr", "typ", "titel", "betrag"},
		IDColumn:         "id",
		YearColumn:       "jahr",
		RecordTypeColumn: "typ",
		Amounts:          []config.AmountColumn{{Column: "betrag"}},
		RecordTypes: config.RecordTypeConfig{
			Labels: map[string]string{"Ausgabetitel": "expense", "Einnahmetitel": "revenue"},
		},
		DecimalComma: true,
	}
}

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ledger.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func load(t *testing.T, spec Spec, src Source) *Result {
	t.Helper()
	res, err := New(spec, zaptest.NewLogger(t)).Load(context.Background(), src)
	require.NoError(t, err)
	return res
}

func TestLoadCSVQuotingAndMalformedRows(t *testing.T) {
	path := writeCSV(t, strings.Join([]string{
		"id;jahr;typ;titel;betrag",
		`1;2025;Ausgabetitel;"Kita; Hort";"1.234,50"`,
		`2;2025;Einnahmetitel;"Gebühren ""Parken""";200`,
		`3;2025;Ausgabetitel;zu wenig`,
		``,
		`4;2025;Ausgabetitel;Schule;abc`,
		`5;2025;Sonstiges;Schule;1`,
		`1;2026;Ausgabetitel;Duplikat;1`,
	}, "\n"))

	src, err := OpenCSV(path, config.CSVSettings{Delimiter: ";"})
	require.NoError(t, err)
	defer src.Close()

	res := load(t, berlinSpec(), src)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "Kita; Hort", res.Rows[0].Field("titel"))
	assert.Equal(t, "1234.50", res.Rows[0].Amount(2025).String())
	assert.Equal(t, types.KindExpense, res.Rows[0].Kind)
	assert.Equal(t, `Gebühren "Parken"`, res.Rows[1].Field("titel"))
	assert.Equal(t, types.KindRevenue, res.Rows[1].Kind)
	assert.Equal(t, 2025, res.Rows[1].Year)

	assert.Equal(t, 6, res.Audit.Total)
	assert.Equal(t, 4, res.Audit.Skipped[types.SkipMalformed])
	require.Len(t, res.Issues, 4)
	assert.Contains(t, res.Issues[0].Reason, "expected 5 fields, got 4")
	assert.Equal(t, "betrag", res.Issues[1].Field)
	assert.Equal(t, "unknown record type", res.Issues[2].Reason)
	assert.Contains(t, res.Issues[3].Reason, "duplicate id")
}

func TestLoadSchemaError(t *testing.T) {
	path := writeCSV(t, "id,jahr,titel\n1,2025,x\n")
	src, err := OpenCSV(path, config.CSVSettings{})
	require.NoError(t, err)
	defer src.Close()

	_, err = New(berlinSpec(), nil).Load(context.Background(), src)
	var schemaErr *types.SchemaError
	require.True(t, errors.As(err, &schemaErr))
	assert.Equal(t, []string{"typ", "betrag"}, schemaErr.Missing)
}

func TestLoadLatin1AndSyntheticIDs(t *testing.T) {
	text := "Produkt,Titel,Ansatz 2025,Ansatz 2026\n11.1,Straßenbau,100,110\n21.1,Brücken,50,55\n"
	encoded, err := charmap.ISO8859_1.NewEncoder().String(text)
	require.NoError(t, err)
	path := writeCSV(t, encoded)

	src, err := OpenCSV(path, config.CSVSettings{Encoding: "ISO-8859-1"})
	require.NoError(t, err)
	defer src.Close()

	spec := Spec{
		Required: []string{"Produkt", "Titel"},
		Amounts: []config.AmountColumn{
			{Column: "Ansatz 2025", Year: 2025},
			{Column: "Ansatz 2026", Year: 2026},
		},
		RecordTypes: config.RecordTypeConfig{Default: "Ausgaben", Labels: map[string]string{"Ausgaben": "expense"}},
	}
	res := load(t, spec, src)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "000001", res.Rows[0].ID)
	assert.Equal(t, "Straßenbau", res.Rows[0].Field("Titel"))
	assert.Equal(t, "Brücken", res.Rows[1].Field("Titel"))
	assert.Equal(t, 0, res.Rows[0].Year)
	assert.Equal(t, "110.00", res.Rows[0].Amount(2026).String())
	assert.Equal(t, "Ausgaben", res.Rows[1].RecordType)
}

func TestLoadUnsupportedEncoding(t *testing.T) {
	_, err := OpenCSV(writeCSV(t, "a\n"), config.CSVSettings{Encoding: "EBCDIC"})
	assert.ErrorContains(t, err, "unsupported encoding")
}

func TestLoadXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "leipzig.xlsx")
	f := excelize.NewFile()
	_, err := f.NewSheet("Grunddaten")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Grunddaten", "A1", &[]any{"Produkt", "Titel", "Ansatz 2025"}))
	require.NoError(t, f.SetSheetRow("Grunddaten", "A2", &[]any{"1.100.11", "Gemeindeorgane", 1250000.5}))
	require.NoError(t, f.SetSheetRow("Grunddaten", "A3", &[]any{"2.110.01", "Feuerwehr"}))
	require.NoError(t, f.SaveAs(path))
	require.NoError(t, f.Close())

	src, err := Open(config.SourceConfig{Kind: config.SourceXLSX, Path: path, Sheet: "Grunddaten"})
	require.NoError(t, err)
	defer src.Close()

	spec := Spec{
		Required:    []string{"Produkt", "Titel", "Ansatz 2025"},
		Amounts:     []config.AmountColumn{{Column: "Ansatz 2025", Year: 2025}},
		RecordTypes: config.RecordTypeConfig{Default: "Ausgaben", Labels: map[string]string{"Ausgaben": "expense"}},
	}
	res := load(t, spec, src)

	require.Len(t, res.Rows, 2)
	assert.Equal(t, "1250000.50", res.Rows[0].Amount(2025).String())
	assert.True(t, res.Rows[1].Amount(2025).IsZero())
	assert.Equal(t, "Feuerwehr", res.Rows[1].Field("Titel"))
}

func TestLoadSQLite(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "berlin.db")
	db, err := store.Open(path, false)
	require.NoError(t, err)
	_, err = db.Import(ctx, "haushalt", []string{"id", "jahr", "typ", "titel", "betrag"}, nil,
		func(yield func([]string) error) error {
			return yield([]string{"a1", "2024", "Ausgabetitel", "Kita", "12,5"})
		})
	require.NoError(t, err)
	require.NoError(t, db.Close())

	src, err := Open(config.SourceConfig{Kind: config.SourceSQLite, Path: path, Table: "haushalt"})
	require.NoError(t, err)
	defer src.Close()

	res := load(t, berlinSpec(), src)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "a1", res.Rows[0].ID)
	assert.Equal(t, "12.50", res.Rows[0].Amount(2024).String())
}

func TestLoadHonoursCancellation(t *testing.T) {
	src := NewCSVReader(strings.NewReader("id,jahr,typ,titel,betrag\n1,2025,Ausgabetitel,x,1\n"), ",")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(berlinSpec(), nil).Load(ctx, src)
	assert.ErrorIs(t, err, context.Canceled)
}
