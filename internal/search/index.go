// =============================================================================
// Haushaltsdaten - Search Indexer
// =============================================================================
//
// Builds an inverted index over the configured indexed fields and a columnar
// projection of the configured stored fields. Both are derived from the same
// admitted row set and are ordered by row ID, so two runs over the same input
// produce byte-identical artifacts.
//
// INDEX LAYOUT (search-index.json):
//   {
//     "docCount": 3,
//     "fields": ["Produktbezeichnung"],
//     "docLengths": {"r1": 2, ...},
//     "tokens": {"kita": [{"id": "r1", "tf": 1}], ...}
//   }
//
// QUERY SEMANTICS:
//   - The query is split on whitespace; quote characters are stripped.
//   - Every term must prefix-match at least one indexed token (AND).
//   - Score is the sum of tf/len * ln(1 + N/df) over matched tokens.
//   - Ties are broken by ID ascending.
//
// =============================================================================

package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// Posting is one occurrence of a token in one document.
type Posting struct {
	ID string `json:"id"`
	TF int    `json:"tf"`
}

// Hit is a scored search result.
type Hit struct {
	ID    string  `json:"id"`
	Score float64 `json:"score"`
}

// Index maps tokens to postings ordered by document ID.
type Index struct {
	DocCount   int                  `json:"docCount"`
	Fields     []string             `json:"fields"`
	DocLengths map[string]int       `json:"docLengths"`
	Tokens     map[string][]Posting `json:"tokens"`

	once   sync.Once
	sorted []string
}

// Build creates the index and the document store for the given rows.
//
// PARAMETERS:
//   - rows: Admitted rows. They are not modified.
//   - indexed: Fields whose tokens are searchable.
//   - stored: Fields projected into the document store. The "id" column is
//     always stored first; it joins hits to their records.
//
// RETURNS:
//   - The inverted index.
//   - The columnar document store, one row per document.
//   - An error if either field list is empty.
func Build(rows []types.ClassifiedRow, indexed, stored []string) (*Index, *Columnar, error) {
	if len(indexed) == 0 {
		return nil, nil, errors.New("search: no indexed fields configured")
	}
	if len(stored) == 0 {
		return nil, nil, errors.New("search: no stored fields configured")
	}

	ordered := append([]types.ClassifiedRow(nil), rows...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].ID() < ordered[j].ID() })

	idx := &Index{
		DocCount:   len(ordered),
		Fields:     append([]string(nil), indexed...),
		DocLengths: make(map[string]int, len(ordered)),
		Tokens:     make(map[string][]Posting),
	}
	stored = withID(stored)
	docs := &Columnar{
		Cols: stored,
		Rows: make([][]string, 0, len(ordered)),
	}

	for _, r := range ordered {
		counts := make(map[string]int)
		length := 0
		for _, field := range indexed {
			for _, tok := range Tokenize(FieldValue(r, field)) {
				counts[tok]++
				length++
			}
		}
		idx.DocLengths[r.ID()] = length

		// Rows are visited in ID order, so appending keeps postings sorted.
		for tok, tf := range counts {
			idx.Tokens[tok] = append(idx.Tokens[tok], Posting{ID: r.ID(), TF: tf})
		}

		record := make([]string, len(stored))
		for i, field := range stored {
			record[i] = FieldValue(r, field)
		}
		docs.Rows = append(docs.Rows, record)
	}

	return idx, docs, nil
}

// withID returns the stored columns with FieldID moved to the front.
func withID(stored []string) []string {
	cols := make([]string, 0, len(stored)+1)
	cols = append(cols, FieldID)
	for _, f := range stored {
		if f != FieldID {
			cols = append(cols, f)
		}
	}
	return cols
}

// Search evaluates a query against the index.
// An empty query, or one with any unmatched term, returns no hits.
func (idx *Index) Search(query string) []Hit {
	terms := QueryTerms(query)
	if len(terms) == 0 {
		return []Hit{}
	}

	var acc map[string]float64
	for i, term := range terms {
		scores := make(map[string]float64)
		for _, tok := range idx.withPrefix(term) {
			postings := idx.Tokens[tok]
			idf := math.Log(1 + float64(idx.DocCount)/float64(len(postings)))
			for _, p := range postings {
				scores[p.ID] += idx.termFrequency(p) * idf
			}
		}

		if i == 0 {
			acc = scores
		} else {
			for id := range acc {
				s, ok := scores[id]
				if !ok {
					delete(acc, id)
					continue
				}
				acc[id] += s
			}
		}
		if len(acc) == 0 {
			return []Hit{}
		}
	}

	hits := make([]Hit, 0, len(acc))
	for id, score := range acc {
		hits = append(hits, Hit{ID: id, Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	return hits
}

func (idx *Index) termFrequency(p Posting) float64 {
	n := idx.DocLengths[p.ID]
	if n <= 0 {
		return float64(p.TF)
	}
	return float64(p.TF) / float64(n)
}

// withPrefix returns every indexed token starting with prefix.
func (idx *Index) withPrefix(prefix string) []string {
	idx.once.Do(func() {
		idx.sorted = make([]string, 0, len(idx.Tokens))
		for tok := range idx.Tokens {
			idx.sorted = append(idx.sorted, tok)
		}
		sort.Strings(idx.sorted)
	})

	var out []string
	for i := sort.SearchStrings(idx.sorted, prefix); i < len(idx.sorted); i++ {
		if !strings.HasPrefix(idx.sorted[i], prefix) {
			break
		}
		out = append(out, idx.sorted[i])
	}
	return out
}

// QueryTerms turns a user query into distinct search tokens.
func QueryTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, raw := range strings.Fields(query) {
		for _, tok := range Tokenize(strings.ReplaceAll(raw, `"`, "")) {
			if !seen[tok] {
				seen[tok] = true
				terms = append(terms, tok)
			}
		}
	}
	return terms
}

// MatchExpression renders a query as an FTS5 MATCH expression in which each
// whitespace term is quoted and prefix-matched: kita "alt" -> "kita"* """alt"""*
func MatchExpression(query string) string {
	fields := strings.Fields(query)
	parts := make([]string, 0, len(fields))
	for _, term := range fields {
		parts = append(parts, `"`+strings.ReplaceAll(term, `"`, `""`)+`"*`)
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// ReadIndex decodes an index from r.
func ReadIndex(r io.Reader) (*Index, error) {
	var idx Index
	if err := json.NewDecoder(r).Decode(&idx); err != nil {
		return nil, fmt.Errorf("failed to decode search index: %w", err)
	}
	if idx.Tokens == nil {
		idx.Tokens = make(map[string][]Posting)
	}
	return &idx, nil
}

// LoadIndex reads a published search-index.json.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open search index: %w", err)
	}
	defer f.Close()
	return ReadIndex(f)
}
