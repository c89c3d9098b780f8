package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirzemehdi/ArchGee-All/internal/api"
	"github.com/mirzemehdi/ArchGee-All/internal/domain"
	"github.com/mirzemehdi/ArchGee-All/internal/service"
)

const testToken = "ingest-capability-token"

type mockIngestService struct {
	ingestOneFunc   func(source string, raw *domain.RawRecord) (*service.SingleResult, error)
	ingestBatchFunc func(source string, records []domain.RawRecord) (service.BatchCounts, error)
	retractFunc     func(id uuid.UUID) error
}

func (m *mockIngestService) IngestOne(_ context.Context, source string, raw *domain.RawRecord) (*service.SingleResult, error) {
	if m.ingestOneFunc != nil {
		return m.ingestOneFunc(source, raw)
	}
	return &service.SingleResult{ID: uuid.New(), Status: domain.StatusPending}, nil
}

func (m *mockIngestService) IngestBatch(_ context.Context, source string, records []domain.RawRecord) (service.BatchCounts, error) {
	if m.ingestBatchFunc != nil {
		return m.ingestBatchFunc(source, records)
	}
	return service.BatchCounts{Accepted: len(records)}, nil
}

func (m *mockIngestService) Retract(_ context.Context, id uuid.UUID) error {
	if m.retractFunc != nil {
		return m.retractFunc(id)
	}
	return nil
}

type mockJobReader struct {
	job *domain.JobRecord
}

func (m *mockJobReader) GetByID(_ context.Context, id uuid.UUID) (*domain.JobRecord, error) {
	if m.job == nil || m.job.ID != id {
		return nil, domain.ErrNotFound
	}
	return m.job, nil
}

type mockAttemptReader struct {
	attempts []domain.EnrichmentAttempt
	err      error
}

func (m *mockAttemptReader) ListByJob(_ context.Context, _ uuid.UUID) ([]domain.EnrichmentAttempt, error) {
	return m.attempts, m.err
}

func setupTestRouter(t *testing.T, svc *mockIngestService, jobs *mockJobReader) *gin.Engine {
	return setupTestRouterWithAttempts(t, svc, jobs, &mockAttemptReader{})
}

func setupTestRouterWithAttempts(t *testing.T, svc *mockIngestService, jobs *mockJobReader, attempts *mockAttemptReader) *gin.Engine {
	t.Helper()

	gin.SetMode(gin.TestMode)

	router := gin.New()
	handler := api.NewIngestHandler(svc, jobs, attempts, 100)

	v1 := router.Group("/api/v1")
	ingest := v1.Group("/ingest", api.IngestAuth(testToken))
	ingest.POST("/job", handler.IngestJob)
	ingest.POST("/jobs", handler.IngestJobs)
	ingest.DELETE("/jobs/:id", handler.RetractJob)
	v1.GET("/jobs/:id", handler.GetJob)
	v1.GET("/jobs/:id/attempts", handler.GetJobAttempts)

	return router
}

func postJSON(t *testing.T, router *gin.Engine, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func singleBody() map[string]any {
	return map[string]any{
		"source": "listing_api",
		"record": map[string]any{
			"title":       "Urban Designer",
			"description": "Masterplanning work.",
			"company":     "Form & Field",
			"location":    "London, UK",
		},
	}
}

func TestIngestJob_Created(t *testing.T) {
	router := setupTestRouter(t, &mockIngestService{}, &mockJobReader{})

	w := postJSON(t, router, "/api/v1/ingest/job", testToken, singleBody())

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var result service.SingleResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, domain.StatusPending, result.Status)
	assert.False(t, result.Duplicate)
}

func TestIngestJob_DuplicateReturns200(t *testing.T) {
	existingID := uuid.New()
	svc := &mockIngestService{
		ingestOneFunc: func(_ string, _ *domain.RawRecord) (*service.SingleResult, error) {
			return &service.SingleResult{ID: existingID, Status: domain.StatusPending, Duplicate: true}, nil
		},
	}
	router := setupTestRouter(t, svc, &mockJobReader{})

	w := postJSON(t, router, "/api/v1/ingest/job", testToken, singleBody())

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIngestJob_ValidationErrorReturns422(t *testing.T) {
	svc := &mockIngestService{
		ingestOneFunc: func(_ string, _ *domain.RawRecord) (*service.SingleResult, error) {
			return nil, &domain.ValidationError{Field: "title", Message: "must not be empty"}
		},
	}
	router := setupTestRouter(t, svc, &mockJobReader{})

	w := postJSON(t, router, "/api/v1/ingest/job", testToken, singleBody())

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIngestAuth_Unauthorized(t *testing.T) {
	router := setupTestRouter(t, &mockIngestService{}, &mockJobReader{})

	testCases := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "wrong token", token: "not-the-token"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := postJSON(t, router, "/api/v1/ingest/job", tc.token, singleBody())
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestIngestAuth_UnconfiguredTokenFailsClosed(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/guarded", api.IngestAuth(""), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	req.Header.Set("Authorization", "Bearer ")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestAuth_MalformedHeader(t *testing.T) {
	router := setupTestRouter(t, &mockIngestService{}, &mockJobReader{})

	payload, err := json.Marshal(singleBody())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest/job", bytes.NewReader(payload))
	req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIngestJobs_ReturnsCounts(t *testing.T) {
	svc := &mockIngestService{
		ingestBatchFunc: func(_ string, _ []domain.RawRecord) (service.BatchCounts, error) {
			return service.BatchCounts{Accepted: 7, Duplicates: 1, Errors: 2}, nil
		},
	}
	router := setupTestRouter(t, svc, &mockJobReader{})

	records := make([]map[string]any, 10)
	for i := range records {
		records[i] = map[string]any{"title": "t", "description": "d", "company": "c"}
	}
	body := map[string]any{"source": "listing_api", "records": records}

	w := postJSON(t, router, "/api/v1/ingest/jobs", testToken, body)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var counts service.BatchCounts
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &counts))
	assert.Equal(t, 7, counts.Accepted)
	assert.Equal(t, 1, counts.Duplicates)
	assert.Equal(t, 2, counts.Errors)
}

func TestIngestJobs_BatchLimitEnforced(t *testing.T) {
	router := setupTestRouter(t, &mockIngestService{}, &mockJobReader{})

	records := make([]map[string]any, 101)
	for i := range records {
		records[i] = map[string]any{"title": "t"}
	}
	body := map[string]any{"source": "listing_api", "records": records}

	w := postJSON(t, router, "/api/v1/ingest/jobs", testToken, body)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestRetractJob(t *testing.T) {
	retracted := uuid.New()
	svc := &mockIngestService{
		retractFunc: func(id uuid.UUID) error {
			if id != retracted {
				return domain.ErrNotFound
			}
			return nil
		},
	}
	router := setupTestRouter(t, svc, &mockJobReader{})

	doDelete := func(id string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/ingest/jobs/"+id, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusNoContent, doDelete(retracted.String()).Code)
	assert.Equal(t, http.StatusNotFound, doDelete(uuid.NewString()).Code)
	assert.Equal(t, http.StatusBadRequest, doDelete("not-a-uuid").Code)
}

func TestGetJob(t *testing.T) {
	job := &domain.JobRecord{ID: uuid.New(), Title: "Urban Designer", Status: domain.StatusApproved}
	router := setupTestRouter(t, &mockIngestService{}, &mockJobReader{job: job})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String(), nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString(), nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetJobAttempts(t *testing.T) {
	job := &domain.JobRecord{ID: uuid.New(), Title: "Urban Designer", Status: domain.StatusNeedsReview}
	attempts := &mockAttemptReader{
		attempts: []domain.EnrichmentAttempt{
			{ID: 1, JobID: job.ID, Stage: domain.StageRelevance, Attempt: 1, Provider: "anthropic"},
			{ID: 2, JobID: job.ID, Stage: domain.StageSalary, Attempt: 1, Provider: "anthropic", LastError: "timeout"},
		},
	}
	router := setupTestRouterWithAttempts(t, &mockIngestService{}, &mockJobReader{job: job}, attempts)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID.String()+"/attempts", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp struct {
		Attempts []domain.EnrichmentAttempt `json:"attempts"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Attempts, 2)
	assert.Equal(t, domain.StageSalary, resp.Attempts[1].Stage)
	assert.Equal(t, "timeout", resp.Attempts[1].LastError)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+uuid.NewString()+"/attempts", nil)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}
