package loader

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// =============================================================================
// XLSX SOURCE
// =============================================================================

// XLSXSource streams the rows of one worksheet.
//
// SHEET LAYOUT:
//   The first row holds the column headers, every following row is a record.
//
//   | Produkt  | Produktbezeichnung | Kostenart                   | Objektart | Ansatz 2025 |
//   |----------|--------------------|-----------------------------|-----------|-------------|
//   | 1.100.11 | Gemeindeorgane     | 2 ordentliche Aufwendungen  | PR        | 1250000     |
//
// Cell values are read raw so numbers keep full precision and never pass
// through the cell number format.
type XLSXSource struct {
	path    string
	sheet   string
	file    *excelize.File
	rows    *excelize.Rows
	headers []string
}

// OpenXLSX opens a workbook and selects a sheet.
//
// PARAMETERS:
//   - path: The path to the workbook.
//   - sheet: The sheet name. If empty, the first sheet is used.
//
// RETURNS:
//   - An XLSXSource positioned before the header row.
//   - An error if the workbook or sheet cannot be opened.
func OpenXLSX(path, sheet string) (*XLSXSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}

	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			f.Close()
			return nil, fmt.Errorf("workbook %s has no sheets", path)
		}
		sheet = sheets[0]
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	return &XLSXSource{path: path, sheet: sheet, file: f, rows: rows}, nil
}

// Name returns "path#sheet".
func (s *XLSXSource) Name() string { return s.path + "#" + s.sheet }

// Columns reads the header row on first call.
func (s *XLSXSource) Columns(ctx context.Context) ([]string, error) {
	if s.headers != nil {
		return s.headers, nil
	}
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("%s: error reading header row: %w", s.Name(), err)
		}
		return nil, fmt.Errorf("%s: sheet is empty", s.Name())
	}
	row, err := s.rows.Columns(excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%s: error reading header row: %w", s.Name(), err)
	}
	s.headers = cleanHeaders(row)
	return s.headers, nil
}

// Each streams the data rows. Rows shorter than the header are padded,
// since excelize omits trailing empty cells.
func (s *XLSXSource) Each(ctx context.Context, fn func(int, []string, error) error) error {
	if _, err := s.Columns(ctx); err != nil {
		return err
	}

	rowNumber := 0
	for s.rows.Next() {
		rowNumber++
		if rowNumber%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		record, err := s.rows.Columns(excelize.Options{RawCellValue: true})
		if err != nil {
			if err := fn(rowNumber, nil, err); err != nil {
				return err
			}
			continue
		}
		if isRowEmpty(record) {
			continue
		}
		record = fitRow(record, len(s.headers))
		if err := fn(rowNumber, record, nil); err != nil {
			return err
		}
	}
	return s.rows.Error()
}

// fitRow pads short rows and drops trailing empty cells past width.
// Non-empty cells past width are kept so the loader can flag the row.
func fitRow(record []string, width int) []string {
	for len(record) > width && record[len(record)-1] == "" {
		record = record[:len(record)-1]
	}
	for len(record) < width {
		record = append(record, "")
	}
	return record
}

// Close releases the row iterator and the workbook.
func (s *XLSXSource) Close() error {
	if s.rows != nil {
		s.rows.Close()
	}
	return s.file.Close()
}
