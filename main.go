// =============================================================================
// Haushaltsdaten - Main Entry Point
// =============================================================================
//
// This is the entry point of the haushalt CLI. It delegates to the cmd
// package.
//
// USAGE:
//   haushalt build      - Build, validate and publish a data set version
//   haushalt validate   - Check configuration, rules and source header
//   haushalt search     - Query the published search index
//   haushalt import     - Load a CSV export into SQLite
//   haushalt version    - Display the application version
//
// ARCHITECTURE:
//   - cmd/                  : CLI command definitions (Cobra)
//   - internal/config       : YAML configuration and classification rules
//   - internal/loader       : CSV, XLSX and SQLite row sources
//   - internal/classifier   : Admission filters and category resolution
//   - internal/aggregator   : Per-year sums and slice summaries
//   - internal/hierarchy    : Weighted category tree
//   - internal/flatlist     : Value-sorted line item list
//   - internal/search       : Inverted index and document store
//   - internal/validation   : Schema and total checks
//   - internal/writer       : Versioned atomic publishing
//   - internal/pipeline     : Runs the stages in order
//   - pkg/utils             : Atomic file writes and run summaries
//
// =============================================================================

package main

import (
	"github.com/tifa365/haushaltsdaten/cmd"
)

func main() {
	cmd.Execute()
}
