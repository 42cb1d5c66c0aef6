package fetcher

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// XLSXOptions configures the XLSX reader.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
	AllSheets  bool   // concatenate every sheet in workbook order
	SkipRows   int    // rows to skip at the top of each sheet
}

// ReadXLSX reads an XLSX file from disk and returns its rows as strings.
func ReadXLSX(path string, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open file")
	}
	return readWorkbook(f, opts)
}

// ReadXLSXBytes reads an in-memory XLSX workbook.
func ReadXLSXBytes(data []byte, opts XLSXOptions) ([][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	return readWorkbook(f, opts)
}

// ReadXLSXSheets reads every sheet of an in-memory workbook as its own table.
func ReadXLSXSheets(data []byte) ([][][]string, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open workbook")
	}
	tables := make([][][]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row != nil {
				rows = append(rows, rowToStrings(row))
			}
		}
		tables = append(tables, rows)
	}
	return tables, nil
}

func readWorkbook(f *xlsx.File, opts XLSXOptions) ([][]string, error) {
	sheets := f.Sheets
	if !opts.AllSheets {
		sheet, err := getSheet(f, opts)
		if err != nil {
			return nil, err
		}
		sheets = []*xlsx.Sheet{sheet}
	}

	var rows [][]string
	for _, sheet := range sheets {
		for i, row := range sheet.Rows {
			if i < opts.SkipRows || row == nil {
				continue
			}
			rows = append(rows, rowToStrings(row))
		}
	}
	return rows, nil
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("xlsx: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("xlsx: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
