package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/auth"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

type TokenStore interface {
	GetPrincipalByTokenHash(ctx context.Context, tokenHash string) (store.Principal, error)
	TouchAPIToken(ctx context.Context, id uuid.UUID) error
}

type AuthMiddleware struct {
	Tokens TokenStore
	Logger *zap.Logger
}

func (m AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, r, http.StatusUnauthorized, "unauthorized", "Authentication required", nil)
			return
		}

		principal, err := m.Tokens.GetPrincipalByTokenHash(r.Context(), auth.HashToken(token))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "Token is invalid", nil)
				return
			}
			if m.Logger != nil {
				m.Logger.Error("token lookup failed",
					zap.String("request_id", RequestIDFromContext(r.Context())),
					zap.Error(err),
				)
			}
			writeError(w, r, http.StatusInternalServerError, "internal_error", "Failed to load token", nil)
			return
		}

		_ = m.Tokens.TouchAPIToken(r.Context(), principal.TokenID)

		ctx := WithActor(r.Context(), Actor{
			TokenID:     principal.TokenID.String(),
			UserID:      principal.UserID.String(),
			TenantID:    principal.TenantID.String(),
			Email:       principal.Email,
			Permissions: principal.Permissions,
		})

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
