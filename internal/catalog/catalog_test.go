package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/runforge/internal/catalog"
	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	dbtest "github.com/bargom/runforge/internal/database/testing"
)

func TestCatalog_FindPublishedVersion(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{})
	repos := repository.New(db, database.DialectSQLite)
	c := catalog.New(repos.Templates)
	ctx := context.Background()

	t.Run("published template with current version", func(t *testing.T) {
		template, version, err := c.FindPublishedVersion(ctx, data.Template.ID, data.Tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, data.Template.ID, template.ID)
		assert.Equal(t, data.Version.ID, version.ID)
		assert.True(t, version.IsCurrent)
	})

	t.Run("missing template", func(t *testing.T) {
		_, _, err := c.FindPublishedVersion(ctx, dbtest.GenerateUUID(), data.Tenant.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("draft template", func(t *testing.T) {
		draft := &models.Template{
			TenantID: data.Tenant.ID, Name: "draft", CreditsPerRun: 1,
			Status: models.TemplateStatusDraft,
		}
		require.NoError(t, repos.Templates.Create(ctx, draft))

		_, _, err := c.FindPublishedVersion(ctx, draft.ID, data.Tenant.ID)
		assert.ErrorIs(t, err, catalog.ErrNotPublished)
	})

	t.Run("published template without a current version", func(t *testing.T) {
		bare := &models.Template{
			TenantID: data.Tenant.ID, Name: "bare", CreditsPerRun: 1,
			Status: models.TemplateStatusPublished,
		}
		require.NoError(t, repos.Templates.Create(ctx, bare))

		_, _, err := c.FindPublishedVersion(ctx, bare.ID, data.Tenant.ID)
		assert.ErrorIs(t, err, catalog.ErrNotPublished)
	})

	t.Run("soft-deleted template is invisible", func(t *testing.T) {
		require.NoError(t, repos.Templates.SoftDelete(ctx, data.Template.ID, data.Tenant.ID))
		defer func() {
			_, err := db.Exec("UPDATE templates SET deleted_at = NULL WHERE id = ?", data.Template.ID)
			require.NoError(t, err)
		}()

		_, _, err := c.FindPublishedVersion(ctx, data.Template.ID, data.Tenant.ID)
		assert.Error(t, err)
	})

	t.Run("scoped to the owning tenant", func(t *testing.T) {
		_, _, err := c.FindPublishedVersion(ctx, data.Template.ID, dbtest.GenerateUUID())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestCatalog_PriceForVersion(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{CreditsPerRun: 4})
	repos := repository.New(db, database.DialectSQLite)
	c := catalog.New(repos.Templates)
	ctx := context.Background()

	price, err := c.PriceForVersion(ctx, data.Version.ID, data.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), price)

	t.Run("soft-deleted template still prices", func(t *testing.T) {
		require.NoError(t, repos.Templates.SoftDelete(ctx, data.Template.ID, data.Tenant.ID))

		price, err := c.PriceForVersion(ctx, data.Version.ID, data.Tenant.ID)
		require.NoError(t, err)
		assert.Equal(t, int64(4), price)
	})

	t.Run("unknown version", func(t *testing.T) {
		_, err := c.PriceForVersion(ctx, dbtest.GenerateUUID(), data.Tenant.ID)
		assert.Error(t, err)
	})
}
