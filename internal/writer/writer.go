// =============================================================================
// Haushaltsdaten - Artifact Writer
// =============================================================================
//
// The writer is the only stage with side effects. It publishes one version
// of the static data set under the output root.
//
// OUTPUT LAYOUT:
//   <root>/
//     version.json                          <- {"hash": "<tag>"}, written last
//     <tag>/
//       meta.json
//       search-index.json
//       search-documents.json
//       <year>/<recordType>/<scope>.json            (flat list)
//       <year>/<recordType>/<scope>.hierarchy.json  (tree)
//       <year>/<recordType>/<scope>.summary.json    (summary)
//       <year>/<recordType>/<scope>/blocks/<category>.json  (category detail)
//
// PUBLISH ORDER:
//   1. Slice files, in parallel (every slice writes disjoint paths)
//   2. Search index and documents
//   3. meta.json
//   4. version.json
//
// Every file goes through utils.AtomicWriteFile. A reader that resolves the
// manifest therefore always finds a complete version: the old one until the
// manifest is renamed, the new one afterwards.
//
// =============================================================================

package writer

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tifa365/haushaltsdaten/internal/aggregator"
	"github.com/tifa365/haushaltsdaten/internal/flatlist"
	"github.com/tifa365/haushaltsdaten/internal/hierarchy"
	"github.com/tifa365/haushaltsdaten/internal/search"
	"github.com/tifa365/haushaltsdaten/internal/types"
	"github.com/tifa365/haushaltsdaten/pkg/utils"
)

// File names inside a version directory.
const (
	ManifestFile        = "version.json"
	MetaFile            = "meta.json"
	SearchIndexFile     = "search-index.json"
	SearchDocumentsFile = "search-documents.json"
)

// =============================================================================
// ARTIFACT
// =============================================================================

// Slice is the output of one year x record type x scope combination.
type Slice struct {
	Key     aggregator.SliceKey
	Items   []flatlist.Item
	Tree    *hierarchy.PolicyNode
	Summary aggregator.Summary

	// Details holds one drill-down document per category.
	Details []aggregator.CategoryDetail
}

// Meta describes a published version.
type Meta struct {
	Version     string                  `json:"version"`
	GeneratedAt time.Time               `json:"generatedAt"`
	Source      string                  `json:"source"`
	Mode        string                  `json:"mode"`
	Years       []int                   `json:"years"`
	RecordTypes []string                `json:"recordTypes"`
	Scopes      map[string]string       `json:"scopes"`
	Totals      map[string]types.Amount `json:"totals"`
	ItemCount   int                     `json:"itemCount"`
	Audit       *types.Audit            `json:"audit"`
}

// Artifact is everything one run publishes.
type Artifact struct {
	Tag       string
	Slices    []Slice
	Index     *search.Index
	Documents *search.Columnar
	Meta      Meta
}

// Manifest is the content of version.json.
type Manifest struct {
	Hash string `json:"hash"`
}

// =============================================================================
// WRITER
// =============================================================================

// Options controls publishing.
type Options struct {
	// Indent is used for JSON output. Empty means compact.
	Indent string

	// Concurrency bounds parallel slice writes. Values below 1 mean 1.
	Concurrency int

	// OnFile is called after each published file. It must be safe for
	// concurrent use.
	OnFile func(path string, bytes int)
}

// Report lists what a publish wrote.
type Report struct {
	Tag   string
	Files []string
	Bytes int64
}

// Writer publishes artifacts below a root directory.
type Writer struct {
	root   string
	opts   Options
	logger *zap.Logger
}

// New creates a Writer for root.
func New(root string, opts Options, logger *zap.Logger) *Writer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{root: root, opts: opts, logger: logger.Named("writer")}
}

// Root returns the output root directory.
func (w *Writer) Root() string { return w.root }

// FileCount is the number of files Publish writes for a.
func FileCount(a *Artifact) int {
	n := 4
	for _, s := range a.Slices {
		n += 3 + len(s.Details)
	}
	return n
}

// Publish writes the artifact and then switches the manifest to its tag.
//
// PARAMETERS:
//   - ctx: Cancellation is checked before every file.
//   - a: The artifact. Its Tag must be a single path segment.
//
// RETURNS:
//   - A Report of the written files.
//   - A *types.WriteError on I/O failure or the context error. In both cases
//     the manifest still names the previous version.
func (w *Writer) Publish(ctx context.Context, a *Artifact) (*Report, error) {
	if !validSegment(a.Tag) {
		return nil, fmt.Errorf("invalid version tag %q", a.Tag)
	}
	versionDir := filepath.Join(w.root, a.Tag)
	rep := &Report{Tag: a.Tag}
	var mu sync.Mutex

	write := func(ctx context.Context, path string, v any) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := utils.AtomicWriteJSON(path, v, w.opts.Indent)
		if err != nil {
			return err
		}
		mu.Lock()
		rep.Files = append(rep.Files, path)
		rep.Bytes += int64(n)
		mu.Unlock()
		if w.opts.OnFile != nil {
			w.opts.OnFile(path, n)
		}
		return nil
	}

	bases := make([]string, len(a.Slices))
	for i, s := range a.Slices {
		base, err := SliceBase(versionDir, s.Key)
		if err != nil {
			return nil, err
		}
		for _, d := range s.Details {
			if !validSegment(d.ID) {
				return nil, fmt.Errorf("invalid category id %q in slice %s", d.ID, base)
			}
		}
		bases[i] = base
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for i, s := range a.Slices {
		base := bases[i]
		g.Go(func() error {
			if err := write(gctx, base+".json", s.Items); err != nil {
				return err
			}
			if err := write(gctx, base+".hierarchy.json", s.Tree); err != nil {
				return err
			}
			if err := write(gctx, base+".summary.json", s.Summary); err != nil {
				return err
			}
			for _, d := range s.Details {
				if err := write(gctx, filepath.Join(base, "blocks", d.ID+".json"), d); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	w.logger.Debug("slice files written", zap.Int("slices", len(a.Slices)))

	if err := write(ctx, filepath.Join(versionDir, SearchIndexFile), a.Index); err != nil {
		return nil, err
	}
	if err := write(ctx, filepath.Join(versionDir, SearchDocumentsFile), a.Documents); err != nil {
		return nil, err
	}
	if err := write(ctx, filepath.Join(versionDir, MetaFile), a.Meta); err != nil {
		return nil, err
	}
	if err := write(ctx, filepath.Join(w.root, ManifestFile), Manifest{Hash: a.Tag}); err != nil {
		return nil, err
	}

	sort.Strings(rep.Files)
	w.logger.Info("version published",
		zap.String("tag", a.Tag),
		zap.Int("files", len(rep.Files)),
		zap.Int64("bytes", rep.Bytes),
	)
	return rep, nil
}

// SliceBase returns the slice path without its suffix,
// e.g. <dir>/2025/Ausgaben/01.
func SliceBase(versionDir string, key aggregator.SliceKey) (string, error) {
	if !validSegment(key.RecordType) || !validSegment(key.Scope) {
		return "", fmt.Errorf("invalid slice key %d/%q/%q", key.Year, key.RecordType, key.Scope)
	}
	return filepath.Join(versionDir, strconv.Itoa(key.Year), key.RecordType, key.Scope), nil
}

func validSegment(s string) bool {
	return s != "" && s != "." && s != ".." && !strings.ContainsAny(s, `/\`)
}
