package fetcher

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"
)

type sheetData struct {
	name string
	rows [][]string
}

func buildWorkbook(t *testing.T, sheets ...sheetData) *xlsx.File {
	t.Helper()
	f := xlsx.NewFile()
	for _, s := range sheets {
		sheet, err := f.AddSheet(s.name)
		require.NoError(t, err)
		for _, rowData := range s.rows {
			row := sheet.AddRow()
			for _, v := range rowData {
				row.AddCell().SetString(v)
			}
		}
	}
	return f
}

func TestReadXLSX_File(t *testing.T) {
	f := buildWorkbook(t, sheetData{"Holdings", [][]string{
		{"Name", "ISIN", "Weight"},
		{"Apple", "US0378331005", "6.5"},
	}})
	path := filepath.Join(t.TempDir(), "holdings.xlsx")
	require.NoError(t, f.Save(path))

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Apple", "US0378331005", "6.5"}}, rows)
}

func TestReadXLSXBytes_AllSheets(t *testing.T) {
	f := buildWorkbook(t,
		sheetData{"Equities", [][]string{{"Apple", "1"}}},
		sheetData{"Bonds", [][]string{{"UST 2030", "2"}}},
	)
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	rows, err := ReadXLSXBytes(buf.Bytes(), XLSXOptions{AllSheets: true})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Apple", "1"}, {"UST 2030", "2"}}, rows)

	rows, err = ReadXLSXBytes(buf.Bytes(), XLSXOptions{SheetName: "Bonds"})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"UST 2030", "2"}}, rows)
}

func TestReadXLSXBytes_Errors(t *testing.T) {
	_, err := ReadXLSXBytes([]byte("not a zip"), XLSXOptions{})
	assert.Error(t, err)

	f := buildWorkbook(t, sheetData{"Only", [][]string{{"a"}}})
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	_, err = ReadXLSXBytes(buf.Bytes(), XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
	_, err = ReadXLSXBytes(buf.Bytes(), XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
}

func TestReadXLSXSheets(t *testing.T) {
	f := buildWorkbook(t,
		sheetData{"Equities", [][]string{{"Name", "Weight"}, {"Apple", "1"}}},
		sheetData{"Bonds", [][]string{{"UST 2030", "2"}}},
	)
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	tables, err := ReadXLSXSheets(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, tables, 2)
	assert.Equal(t, [][]string{{"Name", "Weight"}, {"Apple", "1"}}, tables[0])
	assert.Equal(t, [][]string{{"UST 2030", "2"}}, tables[1])

	_, err = ReadXLSXSheets([]byte("not a workbook"))
	assert.Error(t, err)
}
