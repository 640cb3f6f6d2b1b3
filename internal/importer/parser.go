package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var zipSignature = []byte("PK\x03\x04")

// Parse turns an uploaded file into headers and index-aligned rows.
// Spreadsheets are read from their first sheet only. Blank rows are dropped.
func Parse(name string, data []byte) (*ParsedFile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, parseErr(name, ErrEmptyFile)
	}

	var (
		records [][]string
		kind    FileKind
		err     error
	)
	switch ext := strings.ToLower(filepath.Ext(name)); {
	case bytes.HasPrefix(data, zipSignature) || ext == ".xlsx" || ext == ".xlsm":
		kind = FileKindSpreadsheet
		records, err = readSpreadsheet(data)
	case bytes.HasPrefix(data, oleSignature) || ext == ".xls":
		kind = FileKindSpreadsheet
		records, err = readLegacyWorkbook(data)
	case ext == ".csv" || ext == ".txt" || ext == ".tsv" || ext == "":
		kind = FileKindDelimited
		records, err = readDelimited(data)
	default:
		return nil, parseErr(name, fmt.Errorf("%w: %s", ErrUnsupportedFile, ext))
	}
	if err != nil {
		return nil, parseErr(name, err)
	}

	records = dropBlankRows(records)
	if len(records) == 0 {
		return nil, parseErr(name, ErrEmptyFile)
	}
	if len(records) < 2 {
		return nil, parseErr(name, ErrNoDataRows)
	}

	headers := normalizeHeaderRow(records[0])
	rows := make([][]string, 0, len(records)-1)
	for _, record := range records[1:] {
		row := alignRow(record, len(headers))
		if isBlankRow(row) {
			continue
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, parseErr(name, ErrNoDataRows)
	}

	return &ParsedFile{
		FileName: name,
		Kind:     kind,
		Headers:  headers,
		Rows:     rows,
		RowCount: len(rows),
	}, nil
}

func readDelimited(data []byte) ([][]string, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, fmt.Errorf("decode text: %w", err)
	}

	reader := csv.NewReader(bytes.NewReader(text))
	reader.Comma = sniffDelimiter(text)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read delimited text: %w", err)
	}
	return records, nil
}

// decodeText converts the payload to UTF-8. A BOM selects UTF-8 or UTF-16;
// otherwise invalid UTF-8 is assumed to be a Windows-1252 export.
func decodeText(data []byte) ([]byte, error) {
	utf16BOM := bytes.HasPrefix(data, []byte{0xFF, 0xFE}) || bytes.HasPrefix(data, []byte{0xFE, 0xFF})
	if !utf16BOM && !utf8.Valid(data) {
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		return out, err
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(unicode.UTF8.NewDecoder()), data)
	return out, err
}

// sniffDelimiter picks comma, semicolon or tab by counting unquoted
// occurrences on the header line. Comma wins ties.
func sniffDelimiter(text []byte) rune {
	line := text
	if i := bytes.IndexByte(text, '\n'); i >= 0 {
		line = text[:i]
	}

	counts := map[rune]int{}
	inQuotes := false
	for _, r := range string(line) {
		switch {
		case r == '"':
			inQuotes = !inQuotes
		case inQuotes:
		case r == ',' || r == ';' || r == '\t':
			counts[r]++
		}
	}

	best := ','
	for _, candidate := range []rune{';', '\t'} {
		if counts[candidate] > counts[best] {
			best = candidate
		}
	}
	return best
}

func readSpreadsheet(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}

	// Raw values keep dates as serial numbers; cleaning converts them.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	return rows, nil
}

func normalizeHeaderRow(row []string) []string {
	out := make([]string, len(row))
	for i, value := range row {
		trimmed := strings.TrimSpace(value)
		out[i] = strings.TrimSpace(strings.TrimPrefix(trimmed, "\ufeff"))
	}
	// Trailing unnamed columns carry no data worth mapping.
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return out
}

func alignRow(record []string, width int) []string {
	row := make([]string, width)
	copy(row, record)
	return row
}

func dropBlankRows(records [][]string) [][]string {
	out := records[:0]
	for _, record := range records {
		if !isBlankRow(record) {
			out = append(out, record)
		}
	}
	return out
}

func isBlankRow(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
