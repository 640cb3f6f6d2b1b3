package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/audit"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/httpx"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/middleware"
	"go.uber.org/zap"
)

type checkDuplicatesRequest struct {
	Phones []string `json:"phones"`
}

type checkDuplicatesResponse struct {
	ExistingPhones []string `json:"existingPhones"`
}

type commitRequest struct {
	Rows       []map[string]string `json:"rows"`
	SMSConsent bool                `json:"smsConsent"`
}

// PostImportsDuplicatesCheck reports which of the given phones already
// belong to customers of the caller's tenant. Phones are normalized first.
func (s *Server) PostImportsDuplicatesCheck(w http.ResponseWriter, r *http.Request) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	var req checkDuplicatesRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}

	seen := map[string]bool{}
	phones := make([]string, 0, len(req.Phones))
	for _, raw := range req.Phones {
		cell := importer.CleanPhone(raw)
		if cell.Status == importer.StatusError || seen[cell.Value] {
			continue
		}
		seen[cell.Value] = true
		phones = append(phones, cell.Value)
	}

	existing := []string{}
	if len(phones) > 0 && s.Phones != nil {
		found, err := s.Phones.ExistingPhones(r.Context(), tenantID, phones)
		if err != nil {
			s.Logger.Warn("duplicate check failed",
				zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
				zap.Error(err),
			)
			httpx.WriteError(w, r, http.StatusServiceUnavailable, "duplicate_check_failed", "Could not check for existing customers. Try again.", nil)
			return
		}
		existing = append(existing, found...)
	}

	s.audit(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     audit.ActionImportCheckDuplicates,
		EntityType: "customer",
		Metadata: map[string]any{
			"phones":   len(phones),
			"existing": len(existing),
		},
	})
	httpx.WriteJSON(w, http.StatusOK, checkDuplicatesResponse{ExistingPhones: existing})
}

// PostImportsCommit commits rows prepared by a client. Each row is cleaned
// and validated again before anything is written.
func (s *Server) PostImportsCommit(w http.ResponseWriter, r *http.Request) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	var req commitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		if isBodyTooLarge(err) {
			fileTooLarge().write(w, r)
			return
		}
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if len(req.Rows) == 0 {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "rows must not be empty", nil)
		return
	}
	if maxRows := s.Config.ImportMaxRows; maxRows > 0 && len(req.Rows) > maxRows {
		httpx.WriteError(w, r, http.StatusRequestEntityTooLarge, "too_many_rows",
			fmt.Sprintf("Request has %d rows; the limit is %d", len(req.Rows), maxRows),
			map[string]int{"rows": len(req.Rows), "maxRows": maxRows})
		return
	}

	records := make([]map[importer.Field]string, len(req.Rows))
	for i, row := range req.Rows {
		record := make(map[importer.Field]string, len(row))
		for name, value := range row {
			field, ok := importer.ParseField(name)
			if !ok || field == importer.FieldSkip {
				httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "Unknown field",
					map[string]any{"row": i + 1, "field": name})
				return
			}
			record[field] = value
		}
		records[i] = record
	}

	if s.Committer == nil {
		httpx.WriteJSON(w, http.StatusOK, importer.FailedResult())
		return
	}
	result := s.Committer.CommitRecords(context.WithoutCancel(r.Context()), tenantID, records, importer.CommitOptions{
		SMSConsent:     req.SMSConsent,
		DetectedFormat: "API",
	})

	s.audit(r.Context(), audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     audit.ActionImportCommit,
		EntityType: "customer",
		Metadata:   resultMetadata(result),
	})
	httpx.WriteJSON(w, http.StatusOK, result)
}
