package store

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Principal struct {
	TokenID     uuid.UUID
	TenantID    uuid.UUID
	UserID      uuid.UUID
	Email       string
	Permissions []string
}

const getPrincipalByTokenHash = `
SELECT t.id, t.tenant_id, t.user_id, u.email,
       COALESCE(array_agg(DISTINCT p.name) FILTER (WHERE p.name IS NOT NULL), '{}')::text[]
FROM api_tokens t
JOIN users u ON u.id = t.user_id AND u.tenant_id = t.tenant_id
LEFT JOIN user_roles ur ON ur.user_id = u.id AND ur.tenant_id = t.tenant_id
LEFT JOIN role_permissions rp ON rp.role_id = ur.role_id
LEFT JOIN permissions p ON p.id = rp.permission_id
WHERE t.token_hash = $1
  AND t.revoked_at IS NULL
  AND (t.expires_at IS NULL OR t.expires_at > now())
  AND u.is_active
GROUP BY t.id, t.tenant_id, t.user_id, u.email
`

// GetPrincipalByTokenHash resolves a live API token. It returns
// pgx.ErrNoRows for unknown, revoked or expired tokens.
func (q *Queries) GetPrincipalByTokenHash(ctx context.Context, tokenHash string) (Principal, error) {
	var p Principal
	err := q.db.QueryRow(ctx, getPrincipalByTokenHash, tokenHash).Scan(
		&p.TokenID, &p.TenantID, &p.UserID, &p.Email, &p.Permissions,
	)
	return p, err
}

const touchAPIToken = `UPDATE api_tokens SET last_used_at = now() WHERE id = $1`

func (q *Queries) TouchAPIToken(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.Exec(ctx, touchAPIToken, id)
	return err
}

type CreateAPITokenParams struct {
	TenantID  uuid.UUID
	UserID    uuid.UUID
	TokenHash string
	Name      string
	ExpiresAt *time.Time
}

const createAPIToken = `
INSERT INTO api_tokens (tenant_id, user_id, token_hash, name, expires_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id
`

func (q *Queries) CreateAPIToken(ctx context.Context, arg CreateAPITokenParams) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, createAPIToken, arg.TenantID, arg.UserID, arg.TokenHash, arg.Name, arg.ExpiresAt).Scan(&id)
	return id, err
}

const upsertTenant = `
INSERT INTO tenants (slug, name)
VALUES ($1, $2)
ON CONFLICT (slug) DO UPDATE SET name = EXCLUDED.name
RETURNING id
`

func (q *Queries) UpsertTenant(ctx context.Context, slug, name string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, upsertTenant, slug, name).Scan(&id)
	return id, err
}

const upsertUser = `
INSERT INTO users (tenant_id, email, full_name, is_active)
VALUES ($1, $2, $3, TRUE)
ON CONFLICT (tenant_id, email) DO UPDATE SET full_name = EXCLUDED.full_name, is_active = TRUE
RETURNING id
`

func (q *Queries) UpsertUser(ctx context.Context, tenantID uuid.UUID, email, fullName string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, upsertUser, tenantID, email, fullName).Scan(&id)
	return id, err
}

const upsertRole = `
INSERT INTO roles (tenant_id, name, description)
VALUES ($1, $2, $3)
ON CONFLICT (tenant_id, name) DO UPDATE SET description = EXCLUDED.description
RETURNING id
`

func (q *Queries) UpsertRole(ctx context.Context, tenantID uuid.UUID, name, description string) (uuid.UUID, error) {
	var id uuid.UUID
	err := q.db.QueryRow(ctx, upsertRole, tenantID, name, description).Scan(&id)
	return id, err
}

const grantPermission = `
WITH perm AS (
    INSERT INTO permissions (name, description)
    VALUES ($2, $3)
    ON CONFLICT (name) DO UPDATE SET description = EXCLUDED.description
    RETURNING id
)
INSERT INTO role_permissions (role_id, permission_id)
SELECT $1, id FROM perm
ON CONFLICT DO NOTHING
`

func (q *Queries) GrantPermission(ctx context.Context, roleID uuid.UUID, permission, description string) error {
	_, err := q.db.Exec(ctx, grantPermission, roleID, permission, description)
	return err
}

const assignRole = `
INSERT INTO user_roles (user_id, role_id, tenant_id)
VALUES ($1, $2, $3)
ON CONFLICT DO NOTHING
`

func (q *Queries) AssignRole(ctx context.Context, userID, roleID, tenantID uuid.UUID) error {
	_, err := q.db.Exec(ctx, assignRole, userID, roleID, tenantID)
	return err
}
