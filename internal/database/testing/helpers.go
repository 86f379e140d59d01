// Package testing provides test helpers for database tests.
package testing

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SetupTestDB creates an in-memory SQLite database for testing
// and runs all migrations.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	// A single connection keeps every query on the same in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("failed to enable foreign keys: %v", err)
	}

	migrator := database.NewMigrator(db, database.DialectSQLite)
	if err := migrator.MigrateUp(); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return db
}

// TeardownTestDB closes the test database connection.
func TeardownTestDB(t *testing.T, db *sql.DB) {
	t.Helper()

	if err := db.Close(); err != nil {
		t.Errorf("failed to close test database: %v", err)
	}
}

// TestData holds seeded test data for use in tests.
type TestData struct {
	Tenant   *models.Tenant
	Template *models.Template
	Version  *models.TemplateVersion
	Assets   []*models.Asset
}

// SeedOptions controls the fixture shape.
type SeedOptions struct {
	PurchasedCredits int64
	MonthlyCredits   int64
	CreditsPerRun    int64
	AssetCount       int
	Definition       json.RawMessage
}

// DefaultDefinition is a published workflow definition with one subject
// input and one context text input, fanning out one job per file.
var DefaultDefinition = json.RawMessage(`{
	"modelId": "gpt-test",
	"processingMode": "parallel",
	"inputs": [
		{"name": "documents", "role": "subject", "required": true, "sources": ["upload"]},
		{"name": "instructions", "role": "context", "required": false, "sources": ["text"]}
	]
}`)

// SeedTestData inserts a tenant, a published template with a current
// version, and a handful of vault assets.
func SeedTestData(t *testing.T, db *sql.DB, opts SeedOptions) *TestData {
	t.Helper()

	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	if opts.Definition == nil {
		opts.Definition = DefaultDefinition
	}
	if opts.CreditsPerRun == 0 {
		opts.CreditsPerRun = 1
	}

	tenant := models.NewTenant("test-tenant")
	tenant.PurchasedCredits = opts.PurchasedCredits
	tenant.MonthlyCredits = opts.MonthlyCredits
	if err := repos.Tenants.Create(ctx, tenant); err != nil {
		t.Fatalf("failed to seed tenant: %v", err)
	}

	template := &models.Template{
		TenantID:      tenant.ID,
		Name:          "test-template",
		CreditsPerRun: opts.CreditsPerRun,
		Status:        models.TemplateStatusPublished,
	}
	if err := repos.Templates.Create(ctx, template); err != nil {
		t.Fatalf("failed to seed template: %v", err)
	}

	version := &models.TemplateVersion{
		TemplateID:    template.ID,
		VersionNumber: 1,
		Definition:    opts.Definition,
		IsCurrent:     true,
	}
	if err := repos.Templates.CreateVersion(ctx, version); err != nil {
		t.Fatalf("failed to seed template version: %v", err)
	}

	data := &TestData{Tenant: tenant, Template: template, Version: version}
	for i := 0; i < opts.AssetCount; i++ {
		asset := &models.Asset{
			TenantID:  tenant.ID,
			FileName:  "document-" + string(rune('a'+i)) + ".pdf",
			SizeBytes: 1024,
		}
		if err := repos.Assets.Create(ctx, asset); err != nil {
			t.Fatalf("failed to seed asset: %v", err)
		}
		data.Assets = append(data.Assets, asset)
	}

	return data
}

// AssetIDs returns the seeded asset IDs in order.
func (d *TestData) AssetIDs() []string {
	ids := make([]string, len(d.Assets))
	for i, a := range d.Assets {
		ids[i] = a.ID
	}
	return ids
}

// GenerateUUID returns a new UUID string for testing.
func GenerateUUID() string {
	return uuid.New().String()
}

// BackdateRun rewrites a run's created_at, used to test period boundaries.
func BackdateRun(t *testing.T, db *sql.DB, runID string, createdAt time.Time) {
	t.Helper()

	if _, err := db.Exec("UPDATE workflow_runs SET created_at = ? WHERE id = ?", createdAt, runID); err != nil {
		t.Fatalf("failed to backdate run: %v", err)
	}
}
