package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bargom/runforge/internal/api"
	"github.com/bargom/runforge/internal/api/handlers"
	"github.com/bargom/runforge/internal/api/types"
	"github.com/bargom/runforge/internal/auth"
	"github.com/bargom/runforge/internal/database"
	"github.com/bargom/runforge/internal/database/repository"
	dbtest "github.com/bargom/runforge/internal/database/testing"
	"github.com/bargom/runforge/internal/queue"
	"github.com/bargom/runforge/internal/run"
	"github.com/bargom/runforge/pkg/logging"
)

// acceptAllQueue accepts every job without touching Redis.
type acceptAllQueue struct {
	jobs []*queue.Job
	err  error
}

func (q *acceptAllQueue) Enqueue(ctx context.Context, job *queue.Job) (bool, error) {
	if q.err != nil {
		return false, q.err
	}
	q.jobs = append(q.jobs, job)
	return true, nil
}

type apiFixture struct {
	router http.Handler
	data   *dbtest.TestData
	queue  *acceptAllQueue
	actor  auth.Actor
}

// newAPIFixture wires the router over a SQLite-backed service. Requests
// carry the actor injected ahead of the router, standing in for the JWT
// middleware.
func newAPIFixture(t *testing.T, opts dbtest.SeedOptions) *apiFixture {
	t.Helper()

	db := dbtest.SetupTestDB(t)
	t.Cleanup(func() { dbtest.TeardownTestDB(t, db) })

	data := dbtest.SeedTestData(t, db, opts)
	q := &acceptAllQueue{}
	logger := logging.NewWithWriter(logging.DefaultConfig(), io.Discard)

	svc := run.NewService(run.ServiceConfig{
		DB:     db,
		Repos:  repository.New(db, database.DialectSQLite),
		Queue:  q,
		Logger: logger,
	})
	h := handlers.NewHandler(svc, logger)
	router := api.NewRouter(h, api.RouterConfig{})

	return &apiFixture{
		router: router,
		data:   data,
		queue:  q,
		actor:  auth.Actor{TenantID: data.Tenant.ID, UserID: "user-1", Role: auth.RoleMember},
	}
}

func (fx *apiFixture) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req = req.WithContext(auth.ContextWithActor(req.Context(), fx.actor))

	rec := httptest.NewRecorder()
	fx.router.ServeHTTP(rec, req)
	return rec
}

func (fx *apiFixture) initiateBody() types.InitiateRunRequest {
	return types.InitiateRunRequest{
		TemplateID: fx.data.Template.ID,
		Inputs: map[string]types.RunInputPayload{
			"documents":    {Type: "asset", AssetIDs: fx.data.AssetIDs()},
			"instructions": {Type: "text", Text: "summarize"},
		},
	}
}

func (fx *apiFixture) initiateRun(t *testing.T) *run.View {
	t.Helper()
	rec := fx.do(t, http.MethodPost, "/runs", fx.initiateBody())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var view run.View
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &view))
	return &view
}

func TestAPI_InitiateRun(t *testing.T) {
	t.Run("created", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, CreditsPerRun: 1, AssetCount: 2})

		view := fx.initiateRun(t)
		assert.NotEmpty(t, view.ID)
		assert.Equal(t, "QUEUED", view.Status)
		assert.Equal(t, 2, view.TotalJobs)
		assert.Len(t, fx.queue.jobs, 2)
	})

	t.Run("request validation failure", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, AssetCount: 1})

		rec := fx.do(t, http.MethodPost, "/runs", map[string]any{"templateId": "not-a-uuid"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "validation failed", resp.Error)
		assert.Contains(t, resp.Details, "TemplateID")
	})

	t.Run("input validation failure", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, AssetCount: 1})

		body := fx.initiateBody()
		delete(body.Inputs, "documents")
		rec := fx.do(t, http.MethodPost, "/runs", body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "documents")
	})

	t.Run("insufficient credits", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 1, CreditsPerRun: 1, AssetCount: 3})

		rec := fx.do(t, http.MethodPost, "/runs", fx.initiateBody())
		assert.Equal(t, http.StatusPaymentRequired, rec.Code)

		var resp types.ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "insufficient credits", resp.Error)
		assert.Equal(t, "3", resp.Details["required"])
		assert.Equal(t, "1", resp.Details["available"])
	})

	t.Run("dispatch failure", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, CreditsPerRun: 1, AssetCount: 1})
		fx.queue.err = errors.New("queue unavailable")

		rec := fx.do(t, http.MethodPost, "/runs", fx.initiateBody())
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), "run could not be dispatched")
	})

	t.Run("without an actor", func(t *testing.T) {
		fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, AssetCount: 1})

		req := httptest.NewRequest(http.MethodPost, "/runs", bytes.NewBufferString("{}"))
		rec := httptest.NewRecorder()
		fx.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAPI_GetAndListRuns(t *testing.T) {
	fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, CreditsPerRun: 1, AssetCount: 1})
	view := fx.initiateRun(t)

	t.Run("get run", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/runs/"+view.ID, nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var got run.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, view.ID, got.ID)
	})

	t.Run("get unknown run", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/runs/"+dbtest.GenerateUUID(), nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("list runs", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/runs?page=1&limit=5", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ListRunsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Total)
		assert.Equal(t, 5, resp.Limit)
		require.Len(t, resp.Runs, 1)
		assert.Equal(t, view.ID, resp.Runs[0].ID)
	})

	t.Run("list filtered by status", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/runs?status=FAILED", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.ListRunsResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Zero(t, resp.Total)
	})
}

func TestAPI_WorkerCallbacks(t *testing.T) {
	fx := newAPIFixture(t, dbtest.SeedOptions{PurchasedCredits: 10, CreditsPerRun: 1, AssetCount: 2})
	view := fx.initiateRun(t)

	t.Run("output before completion conflicts", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, fmt.Sprintf("/runs/%s/files/0/output", view.ID), nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("record file failure", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, fmt.Sprintf("/runs/%s/files/0/result", view.ID),
			types.FileResultRequest{Completed: false, ErrorMessage: "model timeout"})
		require.Equal(t, http.StatusOK, rec.Code)

		var got run.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "RUNNING", got.Status)
		assert.Equal(t, 1, got.FailedJobs)
	})

	t.Run("record file completion finishes the run", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, fmt.Sprintf("/runs/%s/files/1/result", view.ID),
			types.FileResultRequest{Completed: true})
		require.Equal(t, http.StatusOK, rec.Code)

		var got run.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "FAILED", got.Status)
	})

	t.Run("bad file index", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, fmt.Sprintf("/runs/%s/files/x/result", view.ID),
			types.FileResultRequest{Completed: true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("retry reopens failed files", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/runs/"+view.ID+"/retry", nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got run.View
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "RUNNING", got.Status)
	})

	t.Run("retry while running conflicts", func(t *testing.T) {
		rec := fx.do(t, http.MethodPost, "/runs/"+view.ID+"/retry", nil)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAPI_Health(t *testing.T) {
	fx := newAPIFixture(t, dbtest.SeedOptions{})

	t.Run("healthy without probes", func(t *testing.T) {
		rec := fx.do(t, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp types.HealthResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "healthy", resp.Status)
	})
}
