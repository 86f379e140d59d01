package repository_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/models"
	"github.com/bargom/runforge/internal/database/repository"
	dbtest "github.com/bargom/runforge/internal/database/testing"
)

func newRun(data *dbtest.TestData) *models.WorkflowRun {
	run := models.NewWorkflowRun(data.Tenant.ID, data.Version.ID, "user-1", time.Now())
	run.InputSnapshot = json.RawMessage(`{}`)
	run.Topology = "fan-out"
	for i, asset := range data.Assets {
		run.Files = append(run.Files, models.PerFileResult{
			Index:    i,
			FileName: asset.FileName,
			AssetID:  asset.ID,
			Status:   models.FileStatusPending,
		})
	}
	run.TotalJobs = len(run.Files)
	return run
}

func TestRunRepository_CreateAndGet(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{AssetCount: 2})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	run := newRun(data)
	run.CreditsConsumed = 2
	run.CreditsFromMonthly = 1
	run.CreditsFromPurchased = 1
	require.NoError(t, repos.Runs.Create(ctx, run))
	require.NotEmpty(t, run.ID)

	got, err := repos.Runs.GetByID(ctx, run.ID, data.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)
	assert.Equal(t, models.RunStatusQueued, got.Status)
	assert.Equal(t, "user-1", got.StartedBy)
	assert.Equal(t, int64(2), got.CreditsConsumed)
	assert.Equal(t, int64(1), got.CreditsFromMonthly)
	assert.Equal(t, "fan-out", got.Topology)
	assert.Equal(t, 3, got.MaxRetryCount)
	assert.JSONEq(t, `{}`, string(got.InputSnapshot))

	require.Len(t, got.Files, 2)
	for i, f := range got.Files {
		assert.Equal(t, i, f.Index)
		assert.Equal(t, data.Assets[i].ID, f.AssetID)
		assert.Equal(t, models.FileStatusPending, f.Status)
	}

	t.Run("scoped to the owning tenant", func(t *testing.T) {
		_, err := repos.Runs.GetByID(ctx, run.ID, dbtest.GenerateUUID())
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := repos.Runs.GetByID(ctx, dbtest.GenerateUUID(), data.Tenant.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestRunRepository_ListAndCount(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	base := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	statuses := []models.RunStatus{
		models.RunStatusQueued, models.RunStatusFailed, models.RunStatusCompleted,
	}
	for i, status := range statuses {
		run := newRun(data)
		run.Status = status
		run.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		run.UpdatedAt = run.CreatedAt
		require.NoError(t, repos.Runs.Create(ctx, run))
	}

	all, err := repos.Runs.List(ctx, data.Tenant.ID, "", 10, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	// Newest first.
	assert.Equal(t, models.RunStatusCompleted, all[0].Status)
	assert.Equal(t, models.RunStatusQueued, all[2].Status)

	failed, err := repos.Runs.List(ctx, data.Tenant.ID, models.RunStatusFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, models.RunStatusFailed, failed[0].Status)

	page, err := repos.Runs.List(ctx, data.Tenant.ID, "", 2, 2)
	require.NoError(t, err)
	assert.Len(t, page, 1)

	total, err := repos.Runs.Count(ctx, data.Tenant.ID, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)

	failedTotal, err := repos.Runs.Count(ctx, data.Tenant.ID, models.RunStatusFailed)
	require.NoError(t, err)
	assert.Equal(t, 1, failedTotal)

	other, err := repos.Runs.Count(ctx, dbtest.GenerateUUID(), "")
	require.NoError(t, err)
	assert.Zero(t, other)
}

func TestRunRepository_Update(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{AssetCount: 1})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	run := newRun(data)
	require.NoError(t, repos.Runs.Create(ctx, run))

	run.Status = models.RunStatusFailed
	run.FailedJobs = 1
	run.ErrorMessage = sql.NullString{String: "model timeout", Valid: true}
	run.LastRetriedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	require.NoError(t, repos.Runs.Update(ctx, run))

	got, err := repos.Runs.GetByID(ctx, run.ID, data.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RunStatusFailed, got.Status)
	assert.Equal(t, 1, got.FailedJobs)
	assert.Equal(t, "model timeout", got.ErrorMessage.String)
	assert.True(t, got.LastRetriedAt.Valid)

	t.Run("missing run", func(t *testing.T) {
		ghost := newRun(data)
		ghost.ID = dbtest.GenerateUUID()
		ghost.Files = nil
		err := repos.Runs.Update(ctx, ghost)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestRunRepository_Files(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{AssetCount: 2})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	run := newRun(data)
	require.NoError(t, repos.Runs.Create(ctx, run))

	file, err := repos.Runs.GetFile(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, file.Index)
	assert.Equal(t, models.FileStatusPending, file.Status)

	file.Status = models.FileStatusFailed
	file.RetryAttempt = 1
	file.ErrorMessage = sql.NullString{String: "model timeout", Valid: true}
	require.NoError(t, repos.Runs.UpdateFile(ctx, file))

	got, err := repos.Runs.GetFile(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusFailed, got.Status)
	assert.Equal(t, 1, got.RetryAttempt)
	assert.Equal(t, "model timeout", got.ErrorMessage.String)

	// The sibling file is untouched.
	other, err := repos.Runs.GetFile(ctx, run.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, models.FileStatusPending, other.Status)

	t.Run("unknown index", func(t *testing.T) {
		_, err := repos.Runs.GetFile(ctx, run.ID, 9)
		assert.ErrorIs(t, err, repository.ErrNotFound)
	})
}

func TestRunRepository_SumMonthlyCreditsSince(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	create := func(fromMonthly int64, isTest bool, createdAt time.Time) {
		run := newRun(data)
		run.CreditsFromMonthly = fromMonthly
		run.CreditsConsumed = fromMonthly
		run.IsTestRun = isTest
		require.NoError(t, repos.Runs.Create(ctx, run))
		dbtest.BackdateRun(t, db, run.ID, createdAt)
	}

	create(3, false, since.Add(time.Hour))
	create(2, false, since.Add(48*time.Hour))
	// Test runs and prior-period runs never count.
	create(5, true, since.Add(time.Hour))
	create(4, false, since.Add(-time.Second))

	sum, err := repos.Runs.SumMonthlyCreditsSince(ctx, data.Tenant.ID, since)
	require.NoError(t, err)
	assert.Equal(t, int64(5), sum)
}

func TestTenantRepository_AdjustPurchasedCredits(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{PurchasedCredits: 10})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	require.NoError(t, repos.Tenants.AdjustPurchasedCredits(ctx, data.Tenant.ID, -4))
	require.NoError(t, repos.Tenants.AdjustPurchasedCredits(ctx, data.Tenant.ID, 1))

	tenant, err := repos.Tenants.GetByID(ctx, data.Tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), tenant.PurchasedCredits)

	err = repos.Tenants.AdjustPurchasedCredits(ctx, dbtest.GenerateUUID(), 1)
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestAssetRepository_BulkGet(t *testing.T) {
	db := dbtest.SetupTestDB(t)
	defer dbtest.TeardownTestDB(t, db)
	data := dbtest.SeedTestData(t, db, dbtest.SeedOptions{AssetCount: 3})
	repos := repository.New(db, database.DialectSQLite)
	ctx := context.Background()

	assets, err := repos.Assets.BulkGet(ctx, data.AssetIDs(), data.Tenant.ID)
	require.NoError(t, err)
	assert.Len(t, assets, 3)

	// Unknown ids are simply absent from the result.
	partial, err := repos.Assets.BulkGet(ctx, append(data.AssetIDs()[:1], dbtest.GenerateUUID()), data.Tenant.ID)
	require.NoError(t, err)
	assert.Len(t, partial, 1)

	empty, err := repos.Assets.BulkGet(ctx, nil, data.Tenant.ID)
	require.NoError(t, err)
	assert.Empty(t, empty)
}
