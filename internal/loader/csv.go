package loader

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/tifa365/haushaltsdaten/internal/config"
)

// =============================================================================
// CSV SOURCE
// =============================================================================

// CSVSource streams records from a delimited text file.
//
// Quoted fields may contain the delimiter and line breaks; a literal quote
// inside a quoted field is written as two quotes.
//
// USAGE:
//
//	src, err := OpenCSV(path, settings)
//	if err != nil {
//	    return err
//	}
//	defer src.Close()
type CSVSource struct {
	path    string
	file    *os.File
	reader  *csv.Reader
	headers []string
}

// OpenCSV opens a delimited text file for streaming.
//
// PARAMETERS:
//   - path: The path to the file.
//   - settings: Delimiter and encoding settings.
//
// RETURNS:
//   - A CSVSource positioned before the header row.
//   - An error if the file cannot be opened or the encoding is unknown.
func OpenCSV(path string, settings config.CSVSettings) (*CSVSource, error) {
	dec, err := decoderFor(settings.Encoding)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return &CSVSource{
		path:   path,
		file:   file,
		reader: newReader(transform.NewReader(bufio.NewReader(file), dec), settings.Delimiter),
	}, nil
}

// NewCSVReader wraps an already decoded stream, used by the import command
// and tests.
func NewCSVReader(r io.Reader, delimiter string) *CSVSource {
	return &CSVSource{path: "<stream>", reader: newReader(r, delimiter)}
}

// decoderFor maps an encoding name to a decoder. UTF-8 input may start
// with a byte order mark, which is dropped.
func decoderFor(name string) (*encoding.Decoder, error) {
	switch strings.ToUpper(strings.ReplaceAll(name, "_", "-")) {
	case "", "UTF-8", "UTF8":
		return unicode.UTF8BOM.NewDecoder(), nil
	case "ISO-8859-1", "LATIN1", "LATIN-1":
		return charmap.ISO8859_1.NewDecoder(), nil
	case "ISO-8859-15", "LATIN9":
		return charmap.ISO8859_15.NewDecoder(), nil
	case "WINDOWS-1252", "CP1252":
		return charmap.Windows1252.NewDecoder(), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", name)
	}
}

// newReader configures a csv.Reader for the given delimiter.
func newReader(r io.Reader, delimiter string) *csv.Reader {
	reader := csv.NewReader(r)

	switch delimiter {
	case "\\t", "\t", "tab", "TAB":
		reader.Comma = '\t'
	case "|", "pipe", "PIPE":
		reader.Comma = '|'
	case ";", "semicolon":
		reader.Comma = ';'
	default:
		if len(delimiter) > 0 {
			reader.Comma = rune(delimiter[0])
		} else {
			reader.Comma = ','
		}
	}

	// Field count is checked by the loader so mismatching rows can be
	// skipped and counted instead of aborting the read.
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = false

	return reader
}

// Name returns the file path.
func (s *CSVSource) Name() string { return s.path }

// Columns reads the header row on first call.
func (s *CSVSource) Columns(ctx context.Context) ([]string, error) {
	if s.headers != nil {
		return s.headers, nil
	}
	row, err := s.reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%s: file is empty", s.path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: error reading header row: %w", s.path, err)
	}
	s.headers = cleanHeaders(row)
	return s.headers, nil
}

// Each streams the data records.
func (s *CSVSource) Each(ctx context.Context, fn func(int, []string, error) error) error {
	if _, err := s.Columns(ctx); err != nil {
		return err
	}

	rowNumber := 0
	for {
		if rowNumber%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		record, err := s.reader.Read()
		if err == io.EOF {
			return nil
		}
		rowNumber++

		if err != nil {
			var parseErr *csv.ParseError
			if !errors.As(err, &parseErr) {
				return fmt.Errorf("%s: error reading row %d: %w", s.path, rowNumber, err)
			}
			if err := fn(rowNumber, nil, err); err != nil {
				return err
			}
			continue
		}

		if isRowEmpty(record) {
			continue
		}
		if err := fn(rowNumber, record, nil); err != nil {
			return err
		}
	}
}

// Close closes the underlying file.
func (s *CSVSource) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}
