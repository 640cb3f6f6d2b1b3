package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	ActionImportUpload          = "imports.upload"
	ActionImportCommit          = "imports.commit"
	ActionImportCheckDuplicates = "imports.check_duplicates"
)

type Writer interface {
	InsertAuditLog(ctx context.Context, arg store.InsertAuditLogParams) error
}

// Logger records audit entries. Write failures are logged and never fail
// the request that produced the entry.
type Logger struct {
	w      Writer
	logger *zap.Logger
}

func NewLogger(w Writer, logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{w: w, logger: logger}
}

type Entry struct {
	TenantID   uuid.UUID
	UserID     *uuid.UUID
	Action     string
	EntityType string
	EntityID   *uuid.UUID
	RequestID  string
	Metadata   map[string]any
}

func (l *Logger) Log(ctx context.Context, entry Entry) error {
	metadata := []byte("{}")
	if len(entry.Metadata) > 0 {
		encoded, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = encoded
	}

	params := store.InsertAuditLogParams{
		TenantID:   entry.TenantID,
		UserID:     entry.UserID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		Metadata:   metadata,
	}
	if entry.RequestID != "" {
		params.RequestID = &entry.RequestID
	}

	if err := l.w.InsertAuditLog(ctx, params); err != nil {
		l.logger.Warn("audit log write failed",
			zap.String("action", entry.Action),
			zap.String("request_id", entry.RequestID),
			zap.Error(err),
		)
		return fmt.Errorf("insert audit log: %w", err)
	}
	return nil
}
