package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/JB-Assistant/oilchange-crm-sub000/internal/auth"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/importer"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/middleware"
	"github.com/JB-Assistant/oilchange-crm-sub000/internal/store"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		log.Fatal("DATABASE_URL is required")
	}

	email := envOrDefault("SEED_ADMIN_EMAIL", "admin@local.shop")
	fullName := envOrDefault("SEED_ADMIN_NAME", "Local Admin")
	tenantSlug := envOrDefault("SEED_TENANT_SLUG", "local-dev")
	tenantName := envOrDefault("SEED_TENANT_NAME", "Local Dev Shop")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		log.Fatalf("connect db: %v", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback(ctx)

	q := store.New(tx)

	tenantID, err := q.UpsertTenant(ctx, tenantSlug, tenantName)
	if err != nil {
		log.Fatalf("upsert tenant: %v", err)
	}
	userID, err := q.UpsertUser(ctx, tenantID, email, fullName)
	if err != nil {
		log.Fatalf("upsert user: %v", err)
	}

	roles := map[string]struct {
		description string
		permissions []string
	}{
		"admin": {
			description: "Shop administrator",
			permissions: []string{middleware.PermImportsRead, middleware.PermImportsWrite, middleware.PermAuditRead},
		},
		"advisor": {
			description: "Service advisor",
			permissions: []string{middleware.PermImportsRead},
		},
	}
	permissionDescriptions := map[string]string{
		middleware.PermImportsRead:  "View import sessions and check duplicates",
		middleware.PermImportsWrite: "Upload and commit customer imports",
		middleware.PermAuditRead:    "Read the audit log",
	}

	roleIDs := make(map[string]string, len(roles))
	for roleName, role := range roles {
		roleID, err := q.UpsertRole(ctx, tenantID, roleName, role.description)
		if err != nil {
			log.Fatalf("upsert role %s: %v", roleName, err)
		}
		roleIDs[roleName] = roleID.String()
		for _, perm := range role.permissions {
			if err := q.GrantPermission(ctx, roleID, perm, permissionDescriptions[perm]); err != nil {
				log.Fatalf("grant %s to %s: %v", perm, roleName, err)
			}
		}
		if roleName == "admin" {
			if err := q.AssignRole(ctx, userID, roleID, tenantID); err != nil {
				log.Fatalf("assign admin role: %v", err)
			}
		}
	}

	oil := importer.DefaultSchedule().Default
	days := envIntOrDefault("SERVICE_INTERVAL_DAYS", oil.Days)
	miles := envIntOrDefault("SERVICE_INTERVAL_MILES", oil.Miles)
	if err := q.UpsertServiceInterval(ctx, tenantID, string(importer.ServiceOilChange), days, miles); err != nil {
		log.Fatalf("upsert service interval: %v", err)
	}

	token, err := auth.GenerateToken()
	if err != nil {
		log.Fatalf("generate token: %v", err)
	}
	if _, err := q.CreateAPIToken(ctx, store.CreateAPITokenParams{
		TenantID:  tenantID,
		UserID:    userID,
		TokenHash: auth.HashToken(token),
		Name:      "seed",
	}); err != nil {
		log.Fatalf("create api token: %v", err)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatalf("commit: %v", err)
	}

	fmt.Printf("seeded tenant=%s user=%s roles=%v\n", tenantSlug, email, roleIDs)
	fmt.Printf("api token (shown once): %s\n", token)
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func envIntOrDefault(key string, fallback int) int {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Fatalf("%s must be a positive integer", key)
	}
	return n
}
