package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/audit"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/config"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/httpx"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/middleware"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/wizard"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Server struct {
	Config    config.Config
	Sessions  wizard.Store
	Phones    importer.PhoneLookup
	Committer *importer.Committer
	Audit     *audit.Logger
	Logger    *zap.Logger
}

func NewServer(cfg config.Config, sessions wizard.Store, phones importer.PhoneLookup, committer *importer.Committer, auditLogger *audit.Logger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		Config:    cfg,
		Sessions:  sessions,
		Phones:    phones,
		Committer: committer,
		Audit:     auditLogger,
		Logger:    logger,
	}
}

func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) sessionDeps() wizard.Deps {
	return wizard.Deps{
		Phones:    s.Phones,
		Committer: s.Committer,
		Logger:    s.Logger,
	}
}

func (s *Server) audit(ctx context.Context, entry audit.Entry) {
	if s.Audit == nil {
		return
	}
	entry.RequestID = middleware.RequestIDFromContext(ctx)
	_ = s.Audit.Log(ctx, entry)
}

type appError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *appError) write(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, r, e.Status, e.Code, e.Message, e.Details)
}

// writeSessionError maps wizard and importer errors onto the error envelope.
func (s *Server) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	var gate *wizard.GateError
	switch {
	case errors.As(err, &gate):
		httpx.WriteError(w, r, http.StatusConflict, "gate_blocked", gate.Reason, map[string]any{"stage": gate.Stage})
	case errors.Is(err, wizard.ErrSessionNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "session_not_found", "Import session not found", nil)
	case errors.Is(err, wizard.ErrImporting):
		httpx.WriteError(w, r, http.StatusConflict, "import_in_progress", "An import is already running for this session", nil)
	case errors.Is(err, importer.ErrFieldInUse):
		httpx.WriteError(w, r, http.StatusConflict, "field_in_use", err.Error(), nil)
	case errors.Is(err, wizard.ErrInvalidTransition):
		httpx.WriteError(w, r, http.StatusConflict, "wrong_stage", err.Error(), nil)
	case errors.Is(err, wizard.ErrRowNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "row_not_found", err.Error(), nil)
	case errors.Is(err, wizard.ErrDuplicateCheck):
		s.Logger.Warn("duplicate check failed", zap.Error(err))
		httpx.WriteError(w, r, http.StatusServiceUnavailable, "duplicate_check_failed", "Could not check for existing customers. Try again.", nil)
	case errors.Is(err, importer.ErrColumnOutOfRange), errors.Is(err, importer.ErrFieldNotEditable):
		httpx.WriteError(w, r, http.StatusBadRequest, "validation_error", err.Error(), nil)
	default:
		s.Logger.Error("import step failed",
			zap.String("request_id", middleware.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "internal_error", "Import step failed", nil)
	}
}

func requireActorIDs(w http.ResponseWriter, r *http.Request) (middleware.Actor, uuid.UUID, uuid.UUID, bool) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
		return middleware.Actor{}, uuid.Nil, uuid.Nil, false
	}
	tenantID, err := uuid.Parse(actor.TenantID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid tenant", nil)
		return middleware.Actor{}, uuid.Nil, uuid.Nil, false
	}
	userID, err := uuid.Parse(actor.UserID)
	if err != nil {
		httpx.WriteError(w, r, http.StatusUnauthorized, "unauthorized", "Invalid user", nil)
		return middleware.Actor{}, uuid.Nil, uuid.Nil, false
	}
	return actor, tenantID, userID, true
}

func ptr[T any](v T) *T {
	return &v
}
