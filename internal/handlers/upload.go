package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
)

const multipartMemory = 32 << 20

func parseImportUpload(r *http.Request, maxRows int) (*importer.ParsedFile, *appError) {
	if !strings.HasPrefix(strings.ToLower(r.Header.Get("Content-Type")), "multipart/form-data") {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_content_type",
			Message: "Content-Type must be multipart/form-data",
		}
	}

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isBodyTooLarge(err) {
			return nil, fileTooLarge()
		}
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to parse multipart form",
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "missing_file",
			Message: "file is required",
		}
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		if isBodyTooLarge(err) {
			return nil, fileTooLarge()
		}
		return nil, &appError{
			Status:  http.StatusBadRequest,
			Code:    "invalid_multipart",
			Message: "Failed to read uploaded file",
		}
	}

	parsed, err := importer.Parse(header.Filename, data)
	if err != nil {
		var parseErr *importer.ParseError
		if errors.As(err, &parseErr) {
			return nil, &appError{
				Status:  http.StatusUnprocessableEntity,
				Code:    "parse_error",
				Message: parseErr.Err.Error(),
				Details: map[string]string{"fileName": header.Filename},
			}
		}
		return nil, &appError{
			Status:  http.StatusInternalServerError,
			Code:    "internal_error",
			Message: "Failed to read file",
		}
	}

	if maxRows > 0 && parsed.RowCount > maxRows {
		return nil, &appError{
			Status:  http.StatusRequestEntityTooLarge,
			Code:    "too_many_rows",
			Message: fmt.Sprintf("File has %d rows; the limit is %d", parsed.RowCount, maxRows),
			Details: map[string]int{"rows": parsed.RowCount, "maxRows": maxRows},
		}
	}
	return parsed, nil
}

func fileTooLarge() *appError {
	return &appError{
		Status:  http.StatusRequestEntityTooLarge,
		Code:    "file_too_large",
		Message: "Uploaded file exceeds the size limit",
	}
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}
