package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/httpx"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) GetImportTemplateCsv(w http.ResponseWriter, r *http.Request) {
	s.writeTemplate(w, r, "text/csv", "customers-template.csv", importer.WriteTemplateCSV)
}

func (s *Server) GetImportTemplateXlsx(w http.ResponseWriter, r *http.Request) {
	s.writeTemplate(w, r, xlsxContentType, "customers-template.xlsx", importer.WriteTemplateXLSX)
}

func (s *Server) writeTemplate(w http.ResponseWriter, r *http.Request, contentType, filename string, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Failed to build template", nil)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+filename+"\"")
	_, _ = w.Write(buf.Bytes())
}
