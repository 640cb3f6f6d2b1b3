// Package testhelpers starts the throwaway Postgres used by integration
// tests.
package testhelpers

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/auth"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const postgresImage = "postgres:16-alpine"

type TestDB struct {
	Container testcontainers.Container
	Pool      *pgxpool.Pool
	ConnStr   string
}

var (
	sharedTestDB     *TestDB
	sharedTestDBOnce sync.Once
	sharedTestDBErr  error
)

// GetTestDB returns a migrated database shared by every test in the run.
// TEST_DATABASE_URL points the tests at an existing server instead of
// starting a container.
func GetTestDB(t *testing.T) *TestDB {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping integration test in short mode (requires Docker)")
	}

	sharedTestDBOnce.Do(func() {
		sharedTestDB, sharedTestDBErr = setupTestDB()
	})
	if sharedTestDBErr != nil {
		t.Fatalf("Failed to setup test database: %v", sharedTestDBErr)
	}
	return sharedTestDB
}

func setupTestDB() (*TestDB, error) {
	ctx := context.Background()
	testDB := &TestDB{ConnStr: os.Getenv("TEST_DATABASE_URL")}

	if testDB.ConnStr == "" {
		container, connStr, err := startContainer(ctx)
		if err != nil {
			return nil, err
		}
		testDB.Container = container
		testDB.ConnStr = connStr
	}

	sqlDB, err := sql.Open("pgx", testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("open sql connection: %w", err)
	}
	defer sqlDB.Close()
	if _, err := sqlDB.ExecContext(ctx, `DROP SCHEMA public CASCADE; CREATE SCHEMA public;`); err != nil {
		return nil, fmt.Errorf("reset schema: %w", err)
	}
	if err := store.Migrate(sqlDB, "up"); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	pool, err := pgxpool.New(ctx, testDB.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	testDB.Pool = pool
	return testDB, nil
}

func startContainer(ctx context.Context) (testcontainers.Container, string, error) {
	req := testcontainers.ContainerRequest{
		Image:        postgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "crm_test",
			"POSTGRES_USER":     "crm",
			"POSTGRES_PASSWORD": "test_password",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, "", fmt.Errorf("start test container: %w", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("get container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		return nil, "", fmt.Errorf("get container port: %w", err)
	}

	connStr := fmt.Sprintf("postgres://crm:test_password@%s:%s/crm_test?sslmode=disable", host, port.Port())
	return container, connStr, nil
}

// SeedTenant creates a tenant with one user holding permissions and returns
// the tenant, the user and a bearer token for that user.
func SeedTenant(t *testing.T, db *TestDB, slug string, permissions ...string) (tenantID, userID uuid.UUID, token string) {
	t.Helper()
	ctx := context.Background()
	q := store.New(db.Pool)

	tenantID, err := q.UpsertTenant(ctx, slug, slug)
	if err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	userID, err = q.UpsertUser(ctx, tenantID, slug+"@example.com", slug)
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	roleID, err := q.UpsertRole(ctx, tenantID, "role_"+userID.String()[:8], "test role")
	if err != nil {
		t.Fatalf("seed role: %v", err)
	}
	if err := q.AssignRole(ctx, userID, roleID, tenantID); err != nil {
		t.Fatalf("seed user role: %v", err)
	}
	for _, perm := range permissions {
		if err := q.GrantPermission(ctx, roleID, perm, "test"); err != nil {
			t.Fatalf("seed permission: %v", err)
		}
	}

	token, err = auth.GenerateToken()
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	if _, err := q.CreateAPIToken(ctx, store.CreateAPITokenParams{
		TenantID:  tenantID,
		UserID:    userID,
		TokenHash: auth.HashToken(token),
		Name:      "test",
	}); err != nil {
		t.Fatalf("seed token: %v", err)
	}
	return tenantID, userID, token
}
