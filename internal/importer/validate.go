package importer

import (
	"fmt"
	"sort"
)

// ProcessRows cleans every mapped cell of every row and rolls the outcome up
// into a summary. Every row carries a cell for each output field.
func ProcessRows(headers []string, rows [][]string, mappings []FieldMapping) ([]CleanedRow, ValidationSummary) {
	type column struct {
		index int
		field Field
	}
	active := make([]column, 0, len(mappings))
	for i, m := range mappings {
		if i >= len(headers) || m.Field == FieldSkip || m.Field == "" {
			continue
		}
		active = append(active, column{index: i, field: m.Field})
	}
	// Composite fan-out first so a dedicated first/last/year column wins.
	sort.SliceStable(active, func(a, b int) bool {
		return active[a].field.IsComposite() && !active[b].field.IsComposite()
	})

	hasPhone := HasField(mappings, FieldPhone)
	hasFirstName := HasField(mappings, FieldFirstName) || HasField(mappings, FieldFullName)

	out := make([]CleanedRow, len(rows))
	for i, row := range rows {
		cells := make(map[Field]CleanedCell, len(outputFields))
		for _, col := range active {
			raw := ""
			if col.index < len(row) {
				raw = row[col.index]
			}
			for _, c := range Clean(col.field, raw) {
				cells[c.Field] = c
			}
		}
		if !hasPhone {
			cells[FieldPhone] = unmappedCell(FieldPhone)
		}
		if !hasFirstName {
			cells[FieldFirstName] = unmappedCell(FieldFirstName)
		}
		out[i] = newCleanedRow(i, cells)
	}
	return out, Summarize(out)
}

// CleanRecord builds a cleaned row from field-keyed values, as received by
// the stateless commit endpoint. Composite fields are expanded.
func CleanRecord(index int, values map[Field]string) CleanedRow {
	cells := make(map[Field]CleanedCell, len(outputFields))
	for _, f := range []Field{FieldFullName, FieldYearMakeModel} {
		if raw, ok := values[f]; ok {
			for _, c := range Clean(f, raw) {
				cells[c.Field] = c
			}
		}
	}
	for _, f := range outputFields {
		if raw, ok := values[f]; ok {
			cells[f] = cleanScalar(f, raw)
		}
	}
	if _, ok := cells[FieldPhone]; !ok {
		cells[FieldPhone] = cleanScalar(FieldPhone, "")
	}
	if _, ok := cells[FieldFirstName]; !ok {
		cells[FieldFirstName] = cleanScalar(FieldFirstName, "")
	}
	return newCleanedRow(index, cells)
}

func newCleanedRow(index int, cells map[Field]CleanedCell) CleanedRow {
	for _, f := range outputFields {
		if _, ok := cells[f]; !ok {
			cells[f] = CleanedCell{Field: f, Source: f, Status: StatusClean}
		}
	}
	row := CleanedRow{Index: index, Cells: cells}
	row.refreshFlags()
	return row
}

func unmappedCell(field Field) CleanedCell {
	return CleanedCell{
		Field:   field,
		Source:  field,
		Status:  StatusError,
		Message: fmt.Sprintf("No column is mapped to %s", field.Label()),
	}
}

func (r *CleanedRow) refreshFlags() {
	r.HasError, r.HasWarning = false, false
	warned := false
	for _, c := range r.Cells {
		switch c.Status {
		case StatusError:
			r.HasError = true
		case StatusWarning:
			warned = true
		}
	}
	r.HasWarning = warned && !r.HasError
}

// RecleanCell re-runs field's cleaner on a user-edited value and replaces
// the cell in place. Only this row's flags are recomputed.
func RecleanCell(row *CleanedRow, field Field, value string) error {
	if !isOutputField(field) {
		return fmt.Errorf("%w: %s", ErrFieldNotEditable, field)
	}
	if row.Cells == nil {
		row.Cells = map[Field]CleanedCell{}
	}
	row.Cells[field] = cleanScalar(field, value)
	row.refreshFlags()
	return nil
}

func isOutputField(field Field) bool {
	for _, f := range outputFields {
		if f == field {
			return true
		}
	}
	return false
}

// Summarize recounts the whole row list. Error rows are never also counted
// as warning rows.
func Summarize(rows []CleanedRow) ValidationSummary {
	s := ValidationSummary{TotalRows: len(rows)}
	for _, row := range rows {
		switch {
		case row.HasError:
			s.ErrorRows++
		case row.HasWarning:
			s.WarningRows++
		default:
			s.CleanRows++
		}
		for _, c := range row.Cells {
			if c.Status != StatusFixed {
				continue
			}
			s.FixedCells++
			switch {
			case c.Field == FieldPhone:
				s.PhonesCleaned++
			case c.Field == FieldFirstName && c.Source == FieldFullName:
				s.NamesSplit++
			case c.Field == FieldServiceDate:
				s.DatesNormalized++
			}
		}
	}
	return s
}

// AcceptedRows returns the rows without blocking errors, in file order.
func AcceptedRows(rows []CleanedRow) []CleanedRow {
	out := make([]CleanedRow, 0, len(rows))
	for _, row := range rows {
		if !row.HasError {
			out = append(out, row)
		}
	}
	return out
}
