package importer

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSVHandlesQuotedDelimiters(t *testing.T) {
	data := []byte("Name,Phone,Notes\n\"Smith, John\",555-123-4567,\"said \"\"hi\"\"\"\n")

	file, err := Parse("customers.csv", data)
	require.NoError(t, err)

	assert.Equal(t, FileKindDelimited, file.Kind)
	assert.Equal(t, []string{"Name", "Phone", "Notes"}, file.Headers)
	require.Len(t, file.Rows, 1)
	assert.Equal(t, []string{"Smith, John", "555-123-4567", `said "hi"`}, file.Rows[0])
	assert.Equal(t, 1, file.RowCount)
}

func TestParseCSVDropsBlankRowsAndPadsShortRows(t *testing.T) {
	data := []byte("  First Name ,Last Name,Phone\nJohn,Doe\n , ,  \n\nJane,Roe,5551234567,extra\n")

	file, err := Parse("customers.csv", data)
	require.NoError(t, err)

	assert.Equal(t, []string{"First Name", "Last Name", "Phone"}, file.Headers)
	require.Len(t, file.Rows, 2)
	assert.Equal(t, []string{"John", "Doe", ""}, file.Rows[0])
	assert.Equal(t, []string{"Jane", "Roe", "5551234567"}, file.Rows[1])
	for _, row := range file.Rows {
		assert.Len(t, row, len(file.Headers))
	}
}

func TestParseCSVDecodesBOMAndLegacyEncodings(t *testing.T) {
	t.Run("utf-8 bom", func(t *testing.T) {
		data := append([]byte{0xEF, 0xBB, 0xBF}, []byte("Phone,Name\n5551234567,Ann\n")...)
		file, err := Parse("bom.csv", data)
		require.NoError(t, err)
		assert.Equal(t, "Phone", file.Headers[0])
	})

	t.Run("utf-16 little endian", func(t *testing.T) {
		text := "Phone,Name\n5551234567,Zoë\n"
		data := []byte{0xFF, 0xFE}
		for _, r := range text {
			data = append(data, byte(r), byte(r>>8))
		}
		file, err := Parse("export.csv", data)
		require.NoError(t, err)
		assert.Equal(t, []string{"Phone", "Name"}, file.Headers)
		assert.Equal(t, "Zoë", file.Rows[0][1])
	})

	t.Run("windows-1252", func(t *testing.T) {
		data := []byte("Phone,Name\n5551234567,Ren\xe9\n")
		file, err := Parse("quickbooks.csv", data)
		require.NoError(t, err)
		assert.Equal(t, "René", file.Rows[0][1])
	})
}

func TestParseSniffsSemicolonDelimiter(t *testing.T) {
	data := []byte("Name;Phone\n\"Doe, Jane\";5551234567\n")

	file, err := Parse("export.csv", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Name", "Phone"}, file.Headers)
	assert.Equal(t, []string{"Doe, Jane", "5551234567"}, file.Rows[0])
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		file string
		data []byte
		want error
	}{
		{name: "empty", file: "a.csv", data: nil, want: ErrEmptyFile},
		{name: "whitespace only", file: "a.csv", data: []byte(" \n\t\n"), want: ErrEmptyFile},
		{name: "header only", file: "a.csv", data: []byte("Name,Phone\n"), want: ErrNoDataRows},
		{name: "header and blank rows", file: "a.csv", data: []byte("Name,Phone\n,\n , \n"), want: ErrNoDataRows},
		{name: "corrupt spreadsheet", file: "a.xlsx", data: []byte("not a workbook"), want: ErrUnreadableSpreadsheet},
		{name: "truncated xls", file: "a.xls", data: []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}, want: ErrUnreadableSpreadsheet},
		{name: "xls that is not a workbook", file: "a.xls", data: []byte("Name,Phone\nAnn,5125550100\n"), want: ErrUnreadableSpreadsheet},
		{name: "unsupported", file: "a.pdf", data: []byte("%PDF-1.4"), want: ErrUnsupportedFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.file, tt.data)
			require.Error(t, err)

			var parseErr *ParseError
			require.True(t, errors.As(err, &parseErr), "expected *ParseError, got %T", err)
			assert.Equal(t, tt.file, parseErr.FileName)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestParseSpreadsheetReadsFirstSheetRawValues(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{" Customer ", "Phone", "Last Service", "Mileage"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"Doe, Jane", 5551234567, 45000, 52000}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{"Roe, Ann"}))
	_, err := f.NewSheet("Other")
	require.NoError(t, err)
	require.NoError(t, f.SetSheetRow("Other", "A1", &[]any{"Ignored"}))

	var buf bytes.Buffer
	_, err = f.WriteTo(&buf)
	require.NoError(t, err)

	file, err := Parse("export.xlsx", buf.Bytes())
	require.NoError(t, err)

	assert.Equal(t, FileKindSpreadsheet, file.Kind)
	assert.Equal(t, []string{"Customer", "Phone", "Last Service", "Mileage"}, file.Headers)
	require.Len(t, file.Rows, 2)
	assert.Equal(t, []string{"Doe, Jane", "5551234567", "45000", "52000"}, file.Rows[0])
	assert.Equal(t, []string{"Roe, Ann", "", "", ""}, file.Rows[1])
}

func TestParseSpreadsheetDetectedBySignature(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &[]any{"Phone"}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{"5551234567"}))

	var buf bytes.Buffer
	_, err := f.WriteTo(&buf)
	require.NoError(t, err)

	file, err := Parse("upload", buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, FileKindSpreadsheet, file.Kind)
}

func TestParseLegacyWorkbookReadsFirstSheet(t *testing.T) {
	data, err := os.ReadFile("testdata/legacy.xls")
	require.NoError(t, err)

	file, err := Parse("legacy.xls", data)
	require.NoError(t, err)

	assert.Equal(t, FileKindSpreadsheet, file.Kind)
	assert.Equal(t, []string{"Code", "Name", "Description"}, file.Headers)
	require.Equal(t, 11, file.RowCount)
	assert.Equal(t, []string{"code1", "name1", "description1"}, file.Rows[0])
	assert.Equal(t, []string{"code11", "name11", "description11"}, file.Rows[10])

	mappings := DetectMappings(file.Headers, file.Rows)
	assert.Equal(t, FieldFullName, mappings[1].Field)
}

func TestParseDetectsLegacyWorkbookBySignature(t *testing.T) {
	data, err := os.ReadFile("testdata/legacy.xls")
	require.NoError(t, err)

	file, err := Parse("export", data)
	require.NoError(t, err)
	assert.Equal(t, []string{"Code", "Name", "Description"}, file.Headers)
}
