package search

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

func doc(id, title string) types.ClassifiedRow {
	return types.ClassifiedRow{
		Row: types.LedgerRow{
			ID:         id,
			Year:       2025,
			RecordType: "Ausgaben",
			Fields:     map[string]string{"Titel": title, "Bezirk": "Mitte"},
		},
		Path: types.CategoryPath{Category: "A", CategoryName: "Verwaltung", Secondary: "11.100"},
	}
}

func corpus(t *testing.T) (*Index, *Columnar) {
	t.Helper()
	rows := []types.ClassifiedRow{
		doc("r3", "Zuschuss Kita Sonnenschein"),
		doc("r1", "Kita-Betrieb (freie Träger)"),
		doc("r2", "Schulsanierung Grundschule"),
	}
	idx, docs, err := Build(rows, []string{"Titel"}, []string{FieldID, "Titel", FieldCategory})
	require.NoError(t, err)
	return idx, docs
}

func TestTokenize(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"Kita-Betrieb (freie Träger)", []string{"kita", "betrieb", "freie", "träger"}},
		{"  11.100/200; a:b,c ", []string{"11", "100", "200", "a", "b", "c"}},
		{"", nil},
		{" -- ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Tokenize(tt.in))
		})
	}
}

func TestBuildOrdersPostingsByID(t *testing.T) {
	idx, docs := corpus(t)

	assert.Equal(t, 3, idx.DocCount)
	assert.Equal(t, []Posting{{ID: "r1", TF: 1}, {ID: "r3", TF: 1}}, idx.Tokens["kita"])
	assert.Equal(t, 4, idx.DocLengths["r1"])

	require.Len(t, docs.Rows, 3)
	assert.Equal(t, []string{"r1", "Kita-Betrieb (freie Träger)", "A"}, docs.Rows[0])
	assert.Equal(t, "r3", docs.Rows[2][0])
}

func TestBuildRequiresFields(t *testing.T) {
	_, _, err := Build(nil, nil, []string{"id"})
	assert.Error(t, err)
	_, _, err = Build(nil, []string{"Titel"}, nil)
	assert.Error(t, err)
}

func TestSearchPrefixMatch(t *testing.T) {
	idx, _ := corpus(t)

	hits := idx.Search("Kit")
	require.Len(t, hits, 2)
	assert.ElementsMatch(t, []string{"r1", "r3"}, []string{hits[0].ID, hits[1].ID})

	// r3 has fewer tokens, so its normalised frequency is higher.
	assert.Equal(t, "r3", hits[0].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchAndSemantics(t *testing.T) {
	idx, _ := corpus(t)

	hits := idx.Search("kita sonnen")
	require.Len(t, hits, 1)
	assert.Equal(t, "r3", hits[0].ID)

	assert.Empty(t, idx.Search("kita hallenbad"))
	assert.Empty(t, idx.Search("xyz"))
	assert.Empty(t, idx.Search("   "))
}

func TestSearchStripsQuotes(t *testing.T) {
	idx, _ := corpus(t)

	hits := idx.Search(`"schul`)
	require.Len(t, hits, 1)
	assert.Equal(t, "r2", hits[0].ID)
}

func TestSearchTiesByID(t *testing.T) {
	rows := []types.ClassifiedRow{doc("b", "Kita"), doc("a", "Kita")}
	idx, _, err := Build(rows, []string{"Titel"}, []string{"id"})
	require.NoError(t, err)

	hits := idx.Search("kita")
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, "b", hits[1].ID)
}

func TestMatchExpression(t *testing.T) {
	assert.Equal(t, `"kita"* "alt"*`, MatchExpression("  kita   alt "))
	assert.Equal(t, `"say""hi"*`, MatchExpression(`say"hi`))
	assert.Equal(t, "", MatchExpression(""))
}

func TestIndexRoundTrip(t *testing.T) {
	idx, _ := corpus(t)

	data, err := json.Marshal(idx)
	require.NoError(t, err)

	loaded, err := ReadIndex(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, idx.Search("kita"), loaded.Search("kita"))
}

func TestColumnarRecords(t *testing.T) {
	_, docs := corpus(t)

	records := docs.Records()
	back := FromRecords(docs.Cols, records)
	if diff := cmp.Diff(docs, back, cmpopts.IgnoreUnexported(Columnar{})); diff != "" {
		t.Errorf("columnar round trip mismatch (-want +got):\n%s", diff)
	}

	rec, ok := docs.Lookup("r2")
	require.True(t, ok)
	assert.Equal(t, "Schulsanierung Grundschule", rec["Titel"])

	_, ok = docs.Lookup("missing")
	assert.False(t, ok)
}

func TestBuildAlwaysStoresID(t *testing.T) {
	rows := []types.ClassifiedRow{doc("r2", "Kita Nord"), doc("r1", "Kita Süd")}

	idx, docs, err := Build(rows, []string{"Titel"}, []string{"Titel", FieldCategoryName})
	require.NoError(t, err)
	assert.Equal(t, []string{FieldID, "Titel", FieldCategoryName}, docs.Cols)

	for _, h := range idx.Search("kita") {
		rec, ok := docs.Lookup(h.ID)
		require.True(t, ok, h.ID)
		assert.Equal(t, h.ID, rec[FieldID])
	}

	_, docs, err = Build(rows, []string{"Titel"}, []string{"Titel", FieldID})
	require.NoError(t, err)
	assert.Equal(t, []string{FieldID, "Titel"}, docs.Cols)
}

func TestLookupAfterLoad(t *testing.T) {
	_, docs := corpus(t)
	data, err := json.Marshal(docs)
	require.NoError(t, err)

	var loaded Columnar
	require.NoError(t, json.Unmarshal(data, &loaded))
	assert.Equal(t, []string{FieldID, "Titel", FieldCategory}, loaded.Cols)

	for _, id := range []string{"r1", "r2", "r3"} {
		rec, ok := loaded.Lookup(id)
		require.True(t, ok, id)
		assert.Equal(t, id, rec[FieldID])
	}
	_, ok := loaded.Lookup("r4")
	assert.False(t, ok)
}

func TestFieldValueVirtualFields(t *testing.T) {
	r := doc("x", "t")
	r.Path.SecondaryName = "Produkt"
	assert.Equal(t, "2025", FieldValue(r, FieldYear))
	assert.Equal(t, "Ausgaben", FieldValue(r, FieldRecordType))
	assert.Equal(t, "11.100", FieldValue(r, FieldGroup))
	assert.Equal(t, "Produkt", FieldValue(r, FieldGroupName))
	assert.Equal(t, "Mitte", FieldValue(r, "Bezirk"))

	r.Row.Year = 0
	assert.Equal(t, "", FieldValue(r, FieldYear))
}
