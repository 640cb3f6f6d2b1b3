package handlers

import (
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/audit"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/httpx"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/wizard"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type setMappingRequest struct {
	Field string `json:"field"`
}

type editCellRequest struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

type editCellResponse struct {
	Row     importer.CleanedRow        `json:"row"`
	Summary importer.ValidationSummary `json:"summary"`
}

type consentRequest struct {
	SMSConsent bool `json:"smsConsent"`
}

func (s *Server) PostImports(w http.ResponseWriter, r *http.Request) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxRows)
	if appErr != nil {
		appErr.write(w, r)
		return
	}

	session := wizard.NewSession(tenantID, s.sessionDeps())
	if err := session.Upload(parsed); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	s.Sessions.Create(session)
	s.auditUpload(r.Context(), tenantID, userID, session, parsed)

	httpx.WriteJSON(w, http.StatusCreated, session.View())
}

func (s *Server) GetImportSession(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) PutImportFile(w http.ResponseWriter, r *http.Request) {
	session, userID, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	parsed, appErr := parseImportUpload(r, s.Config.ImportMaxRows)
	if appErr != nil {
		appErr.write(w, r)
		return
	}
	if err := session.Upload(parsed); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	s.auditUpload(r.Context(), session.TenantID, userID, session, parsed)

	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) PostImportNext(w http.ResponseWriter, r *http.Request) {
	session, userID, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	before := session.Stage()
	if err := session.Next(r.Context()); err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	view := session.View()
	if before == wizard.StageCleaning && view.Stage == wizard.StageReview && view.Review != nil {
		s.audit(r.Context(), audit.Entry{
			TenantID:   session.TenantID,
			UserID:     &userID,
			Action:     audit.ActionImportCheckDuplicates,
			EntityType: "import_session",
			EntityID:   ptr(session.ID),
			Metadata: map[string]any{
				"rows":       len(view.Rows),
				"duplicates": view.Review.Duplicates,
			},
		})
	}
	httpx.WriteJSON(w, http.StatusOK, view)
}

func (s *Server) PostImportBack(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if err := session.Back(); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) PutImportMapping(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	column, err := strconv.Atoi(chi.URLParam(r, "column"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "column must be an integer", nil)
		return
	}
	var req setMappingRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	field, ok := importer.ParseField(req.Field)
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "Unknown field", map[string]string{"field": req.Field})
		return
	}

	if err := session.SetMapping(column, field); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) PatchImportRow(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	rowIndex, err := strconv.Atoi(chi.URLParam(r, "rowIndex"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "rowIndex must be an integer", nil)
		return
	}
	var req editCellRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	field, ok := importer.ParseField(req.Field)
	if !ok {
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", "Unknown field", map[string]string{"field": req.Field})
		return
	}

	row, summary, err := session.EditCell(rowIndex, field, req.Value)
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, editCellResponse{Row: row, Summary: summary})
}

func (s *Server) PutImportConsent(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	var req consentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "invalid_body", "Malformed JSON body", nil)
		return
	}
	if err := session.SetConsent(req.SMSConsent); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) PostImportCommit(w http.ResponseWriter, r *http.Request) {
	session, userID, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	// A dropped client connection does not abort the import; the cancel
	// endpoint does.
	result, err := session.Commit(context.WithoutCancel(r.Context()))
	if err != nil {
		s.writeSessionError(w, r, err)
		return
	}

	s.audit(r.Context(), audit.Entry{
		TenantID:   session.TenantID,
		UserID:     &userID,
		Action:     audit.ActionImportCommit,
		EntityType: "import_session",
		EntityID:   ptr(session.ID),
		Metadata:   resultMetadata(result),
	})
	httpx.WriteJSON(w, http.StatusOK, result)
}

func (s *Server) PostImportCancel(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]bool{"cancelled": session.Cancel()})
}

func (s *Server) PostImportReset(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	if err := session.Reset(); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, session.View())
}

func (s *Server) DeleteImportSession(w http.ResponseWriter, r *http.Request) {
	_, tenantID, _, ok := requireActorIDs(w, r)
	if !ok {
		return
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeSessionError(w, r, wizard.ErrSessionNotFound)
		return
	}
	if err := s.Sessions.Delete(tenantID, sessionID); err != nil {
		s.writeSessionError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) GetImportIssuesCsv(w http.ResponseWriter, r *http.Request) {
	session, _, ok := s.loadSession(w, r)
	if !ok {
		return
	}

	issues := session.Issues()
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"import-%s-issues.csv\"", session.ID))
	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"row", "field", "original", "cleaned", "status", "message"})
	for _, issue := range issues {
		_ = writer.Write([]string{
			strconv.Itoa(issue.Row),
			issue.Field.Label(),
			issue.Original,
			issue.Cleaned,
			string(issue.Status),
			issue.Message,
		})
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		s.Logger.Warn("issues export interrupted", zap.String("session_id", session.ID.String()), zap.Error(err))
	}
}

// loadSession resolves the {sessionId} URL parameter for the caller's tenant.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*wizard.Session, uuid.UUID, bool) {
	_, tenantID, userID, ok := requireActorIDs(w, r)
	if !ok {
		return nil, uuid.Nil, false
	}
	sessionID, err := uuid.Parse(chi.URLParam(r, "sessionId"))
	if err != nil {
		s.writeSessionError(w, r, wizard.ErrSessionNotFound)
		return nil, uuid.Nil, false
	}
	session, err := s.Sessions.Get(tenantID, sessionID)
	if err != nil {
		s.writeSessionError(w, r, err)
		return nil, uuid.Nil, false
	}
	return session, userID, true
}

func (s *Server) auditUpload(ctx context.Context, tenantID, userID uuid.UUID, session *wizard.Session, parsed *importer.ParsedFile) {
	s.audit(ctx, audit.Entry{
		TenantID:   tenantID,
		UserID:     &userID,
		Action:     audit.ActionImportUpload,
		EntityType: "import_session",
		EntityID:   ptr(session.ID),
		Metadata: map[string]any{
			"fileName": parsed.FileName,
			"rows":     parsed.RowCount,
			"format":   importer.DetectFormat(parsed),
		},
	})
}

func resultMetadata(res importer.ImportResult) map[string]any {
	return map[string]any{
		"success":               res.Success,
		"duplicates":            res.Duplicates,
		"errors":                res.Errors,
		"updated":               res.Updated,
		"vehiclesCreated":       res.VehiclesCreated,
		"serviceRecordsCreated": res.ServiceRecordsCreated,
		"cancelled":             res.Cancelled,
	}
}
