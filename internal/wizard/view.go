package wizard

import (
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/google/uuid"
)

type FileSummary struct {
	FileName string            `json:"fileName"`
	Kind     importer.FileKind `json:"kind"`
	Format   string            `json:"format"`
	Headers  []string          `json:"headers"`
	RowCount int               `json:"rowCount"`
}

// ReviewCounts are the per-disposition totals shown before commit.
type ReviewCounts struct {
	Ready      int `json:"ready"`
	Errors     int `json:"errors"`
	Duplicates int `json:"duplicates"`
	Clean      int `json:"clean"`
}

// View is a point-in-time copy of a session, safe to serialize after the
// session lock is released.
type View struct {
	ID           uuid.UUID                   `json:"id"`
	Stage        Stage                       `json:"stage"`
	File         *FileSummary                `json:"file,omitempty"`
	Mappings     []importer.FieldMapping     `json:"mappings,omitempty"`
	MappingStats *importer.MappingStats      `json:"mappingStats,omitempty"`
	// MappingOptions holds, per column, the fields it may be mapped to.
	// Only populated at the mapping stage.
	MappingOptions [][]importer.TargetOption `json:"mappingOptions,omitempty"`
	Rows         []importer.CleanedRow       `json:"rows,omitempty"`
	Summary      *importer.ValidationSummary `json:"summary,omitempty"`
	Duplicates   *Duplicates                 `json:"duplicates,omitempty"`
	Review       *ReviewCounts               `json:"review,omitempty"`
	SMSConsent   bool                        `json:"smsConsent"`
	Importing    bool                        `json:"importing"`
	Result       *importer.ImportResult      `json:"result,omitempty"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:         s.ID,
		Stage:      s.stage,
		SMSConsent: s.smsConsent,
		Importing:  s.importing,
	}
	if s.file != nil {
		v.File = &FileSummary{
			FileName: s.file.FileName,
			Kind:     s.file.Kind,
			Format:   s.format,
			Headers:  append([]string(nil), s.file.Headers...),
			RowCount: s.file.RowCount,
		}
	}
	if s.mappings != nil {
		v.Mappings = append([]importer.FieldMapping(nil), s.mappings...)
		stats := importer.SummarizeMappings(s.mappings)
		v.MappingStats = &stats
		if s.stage == StageMapping {
			v.MappingOptions = make([][]importer.TargetOption, len(s.mappings))
			for i := range s.mappings {
				v.MappingOptions[i] = importer.TargetOptions(s.mappings, i)
			}
		}
	}
	if s.rows != nil {
		v.Rows = make([]importer.CleanedRow, len(s.rows))
		for i, row := range s.rows {
			v.Rows[i] = copyRow(row)
		}
		summary := s.summary
		v.Summary = &summary
	}
	if s.duplicates != nil {
		v.Duplicates = &Duplicates{
			Internal: append([]importer.DuplicateInfo(nil), s.duplicates.Internal...),
			Existing: append([]importer.DuplicateInfo(nil), s.duplicates.Existing...),
		}
		counts := reviewCounts(s.summary, s.duplicates)
		v.Review = &counts
	}
	if s.result != nil {
		res := *s.result
		res.Details = append([]string(nil), res.Details...)
		v.Result = &res
	}
	return v
}

func reviewCounts(summary importer.ValidationSummary, dups *Duplicates) ReviewCounts {
	rows := map[int]bool{}
	for _, d := range dups.Internal {
		rows[d.RowIndex] = true
	}
	for _, d := range dups.Existing {
		rows[d.RowIndex] = true
	}
	return ReviewCounts{
		Ready:      summary.TotalRows - summary.ErrorRows,
		Errors:     summary.ErrorRows,
		Duplicates: len(rows),
		Clean:      summary.CleanRows,
	}
}

// Issue is one warning or error cell, as listed in the issues export.
type Issue struct {
	Row      int                 `json:"row"`
	Field    importer.Field      `json:"field"`
	Original string              `json:"original"`
	Cleaned  string              `json:"cleaned"`
	Status   importer.CellStatus `json:"status"`
	Message  string              `json:"message"`
}

// Issues lists every warning and error cell in row order, then field order.
// Row numbers are 1-based.
func (s *Session) Issues() []Issue {
	s.mu.Lock()
	defer s.mu.Unlock()

	var issues []Issue
	for _, row := range s.rows {
		for _, f := range importer.OutputFields() {
			cell, ok := row.Cells[f]
			if !ok || (cell.Status != importer.StatusWarning && cell.Status != importer.StatusError) {
				continue
			}
			issues = append(issues, Issue{
				Row:      row.Index + 1,
				Field:    f,
				Original: cell.Original,
				Cleaned:  cell.Value,
				Status:   cell.Status,
				Message:  cell.Message,
			})
		}
	}
	return issues
}
