package importer

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
)

var oleSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// BIFF8 sheets are at most 256 columns wide.
const maxLegacyColumns = 256

// readLegacyWorkbook reads the first sheet of a BIFF (.xls) workbook as
// display strings. The reader panics on some malformed streams, so any
// panic is reported as an unreadable spreadsheet.
func readLegacyWorkbook(data []byte) (records [][]string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			records, err = nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, rec)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableSpreadsheet, err)
	}
	if wb == nil {
		return nil, fmt.Errorf("%w: no workbook stream", ErrUnreadableSpreadsheet)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheets
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoSheets
	}

	records = make([][]string, 0, int(sheet.MaxRow)+1)
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := legacyRow(sheet, i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		width := row.LastCol()
		if width <= 0 || width > maxLegacyColumns {
			width = maxLegacyColumns
		}
		cells := make([]string, width)
		for c := 0; c < width; c++ {
			cells[c] = row.Col(c)
		}
		records = append(records, trimTrailingEmpty(cells))
	}
	return records, nil
}

// legacyRow returns nil for rows the sheet has no record of.
func legacyRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func trimTrailingEmpty(cells []string) []string {
	for len(cells) > 0 && cells[len(cells)-1] == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}
