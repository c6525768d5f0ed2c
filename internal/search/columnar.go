package search

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// Columnar is the document store: column names once, then one positional
// row per document.
type Columnar struct {
	Cols []string   `json:"cols"`
	Rows [][]string `json:"rows"`

	once sync.Once
	byID map[string]int
}

// FromRecords packs records into columnar form. Missing keys become "".
func FromRecords(cols []string, records []map[string]string) *Columnar {
	c := &Columnar{
		Cols: append([]string(nil), cols...),
		Rows: make([][]string, 0, len(records)),
	}
	for _, rec := range records {
		row := make([]string, len(cols))
		for i, col := range cols {
			row[i] = rec[col]
		}
		c.Rows = append(c.Rows, row)
	}
	return c
}

// Records expands the store back into one map per document.
func (c *Columnar) Records() []map[string]string {
	out := make([]map[string]string, 0, len(c.Rows))
	for _, row := range c.Rows {
		rec := make(map[string]string, len(c.Cols))
		for i, col := range c.Cols {
			if i < len(row) {
				rec[col] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// Lookup returns the record whose "id" column equals id. The id -> row
// map is built on the first call; Rows must not change afterwards.
func (c *Columnar) Lookup(id string) (map[string]string, bool) {
	c.once.Do(c.indexRows)
	i, ok := c.byID[id]
	if !ok {
		return nil, false
	}
	row := c.Rows[i]
	rec := make(map[string]string, len(c.Cols))
	for j, name := range c.Cols {
		if j < len(row) {
			rec[name] = row[j]
		}
	}
	return rec, true
}

func (c *Columnar) indexRows() {
	c.byID = make(map[string]int, len(c.Rows))
	col := -1
	for i, name := range c.Cols {
		if name == FieldID {
			col = i
			break
		}
	}
	if col < 0 {
		return
	}
	for i, row := range c.Rows {
		if col < len(row) {
			if _, dup := c.byID[row[col]]; !dup {
				c.byID[row[col]] = i
			}
		}
	}
}

// LoadDocuments reads a published search-documents.json.
func LoadDocuments(path string) (*Columnar, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read search documents: %w", err)
	}
	var c Columnar
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to decode search documents: %w", err)
	}
	if c.Rows == nil {
		c.Rows = [][]string{}
	}
	return &c, nil
}
