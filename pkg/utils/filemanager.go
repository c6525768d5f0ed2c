// =============================================================================
// Haushaltsdaten - File Manager Utility
// =============================================================================
//
// This module provides file utilities for the publishing pipeline:
//   - Atomic file writes (temp file in the target directory, fsync, rename)
//   - Content hashing of input files for version tags
//   - Run summary log generation
//
// ATOMICITY:
//   A reader never sees a partially written file. The temp file lives in the
//   same directory as the target so the final rename stays on one file
//   system. On any failure the temp file is removed and a *types.WriteError
//   is returned.
//
// =============================================================================

package utils

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tifa365/haushaltsdaten/internal/types"
)

// TempPrefix marks in-flight files. Readers must ignore names with it.
const TempPrefix = ".tmp-"

// =============================================================================
// ATOMIC WRITES
// =============================================================================

// AtomicWriteFile writes data to path so that the file either has its old
// content or the complete new content.
//
// PARAMETERS:
//   - path: The target file. Parent directories are created as needed.
//   - data: The complete file content.
//   - perm: The permission bits of the published file.
//
// RETURNS:
//   - A *types.WriteError naming the failed step, or nil.
func AtomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &types.WriteError{Path: dir, Op: "mkdir", Err: err}
	}

	tmp, err := os.CreateTemp(dir, TempPrefix+filepath.Base(path)+"-*")
	if err != nil {
		return &types.WriteError{Path: path, Op: "create", Err: err}
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return &types.WriteError{Path: path, Op: "write", Err: err}
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return &types.WriteError{Path: path, Op: "sync", Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &types.WriteError{Path: path, Op: "close", Err: err}
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		return &types.WriteError{Path: path, Op: "chmod", Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		return &types.WriteError{Path: path, Op: "rename", Err: err}
	}

	committed = true
	return nil
}

// AtomicWriteJSON marshals v and writes it atomically.
// An empty indent produces compact output.
func AtomicWriteJSON(path string, v any, indent string) (int, error) {
	var (
		data []byte
		err  error
	)
	if indent == "" {
		data, err = json.Marshal(v)
	} else {
		data, err = json.MarshalIndent(v, "", indent)
	}
	if err != nil {
		return 0, &types.WriteError{Path: path, Op: "encode", Err: err}
	}
	data = append(data, '\n')

	if err := AtomicWriteFile(path, data, 0644); err != nil {
		return 0, err
	}
	return len(data), nil
}

// IsTempFile reports whether name is an in-flight atomic write.
func IsTempFile(name string) bool {
	return strings.HasPrefix(filepath.Base(name), TempPrefix)
}

// =============================================================================
// CONTENT HASHING
// =============================================================================

// ContentHash returns the first n hex digits of the SHA-256 over the given
// files followed by the extra byte slices.
//
// RETURNS:
//   - The short hash.
//   - An error if a file cannot be read.
func ContentHash(n int, paths []string, extra ...[]byte) (string, error) {
	h := sha256.New()
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return "", fmt.Errorf("failed to open %s for hashing: %w", p, err)
		}
		_, err = io.Copy(h, f)
		f.Close()
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", p, err)
		}
	}
	for _, b := range extra {
		h.Write(b)
	}

	sum := hex.EncodeToString(h.Sum(nil))
	if n > 0 && n < len(sum) {
		sum = sum[:n]
	}
	return sum, nil
}

// FileExists checks if a file exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// =============================================================================
// RUN SUMMARY
// =============================================================================

// RunSummary contains summary information about a pipeline run.
type RunSummary struct {
	RunID     string
	StartTime time.Time
	EndTime   time.Time
	Source    string
	Version   string
	DryRun    bool
	Slices    int
	Files     int
	Audit     *types.Audit

	// Errors lists fatal errors. A run with errors published nothing new.
	Errors []string
}

// WriteSummaryLog writes a run summary to a text file in outputDir.
//
// RETURNS:
//   - The path to the summary file.
//   - An error if writing fails.
func WriteSummaryLog(summary RunSummary, outputDir string) (string, error) {
	timestamp := summary.StartTime.Format("20060102_150405")
	summaryPath := filepath.Join(outputDir, fmt.Sprintf("run_summary_%s.txt", timestamp))

	var buf bytes.Buffer
	writer := bufio.NewWriter(&buf)

	status := "published"
	switch {
	case len(summary.Errors) > 0:
		status = "failed"
	case summary.DryRun:
		status = "dry run"
	}

	fmt.Fprintf(writer, "Haushaltsdaten - Run Summary\n"+
		"================================================================================\n\n"+
		"Run Information:\n"+
		"  Run ID:         %s\n"+
		"  Start Time:     %s\n"+
		"  End Time:       %s\n"+
		"  Duration:       %s\n"+
		"  Source:         %s\n"+
		"  Version:        %s\n"+
		"  Status:         %s\n\n"+
		"Statistics:\n"+
		"  Slices:         %d\n"+
		"  Files Written:  %d\n\n",
		summary.RunID,
		summary.StartTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Format("2006-01-02 15:04:05"),
		summary.EndTime.Sub(summary.StartTime).Round(time.Millisecond),
		summary.Source,
		summary.Version,
		status,
		summary.Slices,
		summary.Files)

	if a := summary.Audit; a != nil {
		writer.WriteString("Audit:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		fmt.Fprintf(writer, "  Total Rows:     %d\n", a.Total)
		fmt.Fprintf(writer, "  Admitted:       %d\n", a.Admitted)
		for _, cause := range types.SkipCauses {
			if n := a.Skipped[cause]; n > 0 {
				fmt.Fprintf(writer, "  Skipped (%s): %d\n", cause, n)
			}
		}
		if prefixes := a.UnmappedPrefixes(); len(prefixes) > 0 {
			fmt.Fprintf(writer, "  Unmapped:       %s\n", strings.Join(prefixes, ", "))
		}
		writer.WriteString("\n")
	}

	if len(summary.Errors) > 0 {
		writer.WriteString("Errors:\n")
		writer.WriteString("--------------------------------------------------------------------------------\n")
		for i, e := range summary.Errors {
			fmt.Fprintf(writer, "  %d. %s\n", i+1, e)
		}
		writer.WriteString("\n")
	}

	writer.WriteString("================================================================================\n" +
		"End of Summary\n")

	if err := writer.Flush(); err != nil {
		return "", fmt.Errorf("failed to flush summary: %w", err)
	}
	if err := AtomicWriteFile(summaryPath, buf.Bytes(), 0644); err != nil {
		return "", err
	}
	return summaryPath, nil
}
