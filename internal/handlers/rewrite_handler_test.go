package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/veridoc/rescribo/internal/common"
	"github.com/veridoc/rescribo/internal/interfaces"
	"github.com/veridoc/rescribo/internal/queue"
	"github.com/veridoc/rescribo/internal/rewrite"
	"github.com/veridoc/rescribo/internal/services/jobs"
	badgerstorage "github.com/veridoc/rescribo/internal/storage/badger"
)

// echoLLM answers every completion with a fixed text, or fails when broken
type echoLLM struct {
	text   string
	broken bool
}

func (e *echoLLM) Complete(ctx context.Context, req *interfaces.CompletionRequest) (*interfaces.CompletionResponse, error) {
	if e.broken {
		return nil, errors.New("model overloaded")
	}
	return &interfaces.CompletionResponse{Text: e.text, Model: req.Model, Provider: "echo"}, nil
}

func (e *echoLLM) Close() error { return nil }

type handlerHarness struct {
	handler *RewriteHandler
	jobs    *jobs.Service
	storage *badgerstorage.Manager
	llm     *echoLLM
}

func newHandlerHarness(t *testing.T) *handlerHarness {
	t.Helper()

	logger := arbor.NewLogger()
	cfg := common.NewDefaultConfig()
	cfg.Storage.Badger.Path = t.TempDir()

	storage, err := badgerstorage.NewManager(logger, &cfg.Storage.Badger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	queueMgr, err := queue.NewManager(storage.DB().Store().Badger(), "test-handlers", time.Minute, 3)
	require.NoError(t, err)

	llm := &echoLLM{text: "The hearing took place."}
	engine := rewrite.NewEngine(llm, &cfg.Rewrite, logger)
	jobService := jobs.NewService(cfg, storage, queueMgr, engine,
		rewrite.NewValidator(rewrite.NewAnalyzer()), logger)

	return &handlerHarness{
		handler: NewRewriteHandler(jobService, logger),
		jobs:    jobService,
		storage: storage,
		llm:     llm,
	}
}

func (h *handlerHarness) submit(t *testing.T, body string) map[string]interface{} {
	t.Helper()

	req := httptest.NewRequest("POST", "/api/rewrite", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.handler.SubmitHandler(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSubmitHandler_AcceptsInlineText(t *testing.T) {
	h := newHandlerHarness(t)

	resp := h.submit(t, `{"text": "The hearing took place.", "sessionId": "session-1"}`)

	assert.NotEmpty(t, resp["jobId"])
	assert.Equal(t, "PROCESSING", resp["status"])
}

func TestSubmitHandler_RejectsInvalidJSON(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("POST", "/api/rewrite", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitHandler_RejectsEmptyRequest(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("POST", "/api/rewrite", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "text or storageRef")
}

func TestSubmitHandler_RejectsWrongMethod(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("GET", "/api/rewrite", nil)
	rec := httptest.NewRecorder()
	h.handler.SubmitHandler(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestStatusHandler_UnknownJob(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("GET", "/api/rewrite/job_missing", nil)
	rec := httptest.NewRecorder()
	h.handler.StatusHandler(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp["status"])
	assert.Equal(t, "job_missing", resp["jobId"])
}

func TestStatusHandler_RejectsMissingJobID(t *testing.T) {
	h := newHandlerHarness(t)

	req := httptest.NewRequest("GET", "/api/rewrite/", nil)
	rec := httptest.NewRecorder()
	h.handler.StatusHandler(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusHandler_LifecycleStates(t *testing.T) {
	h := newHandlerHarness(t)

	submitted := h.submit(t, `{"text": "The hearing took place."}`)
	jobID := submitted["jobId"].(string)

	// before execution: PROCESSING, no result fields
	req := httptest.NewRequest("GET", "/api/rewrite/"+jobID, nil)
	rec := httptest.NewRecorder()
	h.handler.StatusHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "PROCESSING", resp["status"])
	assert.NotContains(t, resp, "rewrittenText")

	require.NoError(t, h.jobs.Execute(context.Background(), jobID))

	// after execution: COMPLETED with the rewritten text inlined
	rec = httptest.NewRecorder()
	h.handler.StatusHandler(rec, httptest.NewRequest("GET", "/api/rewrite/"+jobID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp = map[string]interface{}{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "COMPLETED", resp["status"])
	assert.Equal(t, "The hearing took place.", resp["rewrittenText"])
	assert.Equal(t, true, resp["validationPassed"])
}

func TestStatusHandler_CompletedJobMissingResultIsInternalError(t *testing.T) {
	h := newHandlerHarness(t)
	ctx := context.Background()

	resp := h.submit(t, `{"text": "The hearing took place."}`)
	jobID := resp["jobId"].(string)
	require.NoError(t, h.jobs.Execute(ctx, jobID))

	result, err := h.jobs.Status(ctx, jobID)
	require.NoError(t, err)
	require.NoError(t, h.storage.ObjectStorage().Delete(ctx, result.Job.ResultRef))

	req := httptest.NewRequest("GET", "/api/rewrite/"+jobID, nil)
	rec := httptest.NewRecorder()
	h.handler.StatusHandler(rec, req)

	// A COMPLETED record without its blob is an internal inconsistency,
	// never "not found" and never "still processing".
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "result is missing")
	assert.NotContains(t, rec.Body.String(), "PROCESSING")
}

func TestStatusHandler_FailedJobCarriesError(t *testing.T) {
	h := newHandlerHarness(t)
	h.llm.broken = true

	submitted := h.submit(t, `{"text": "The hearing took place."}`)
	jobID := submitted["jobId"].(string)

	require.NoError(t, h.jobs.Execute(context.Background(), jobID))

	rec := httptest.NewRecorder()
	h.handler.StatusHandler(rec, httptest.NewRequest("GET", "/api/rewrite/"+jobID, nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "FAILED", resp["status"])
	assert.Equal(t, "inference", resp["errorType"])
	assert.NotEmpty(t, resp["error"])
	assert.NotContains(t, resp, "rewrittenText")
}

func TestListHandler(t *testing.T) {
	h := newHandlerHarness(t)

	h.submit(t, `{"text": "First report."}`)
	h.submit(t, `{"text": "Second report."}`)

	req := httptest.NewRequest("GET", "/api/jobs?limit=10", nil)
	rec := httptest.NewRecorder()
	h.handler.ListHandler(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Jobs  []map[string]interface{} `json:"jobs"`
		Count int                      `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	require.Len(t, resp.Jobs, 2)
	assert.NotEmpty(t, resp.Jobs[0]["jobId"])
	assert.Equal(t, "PROCESSING", resp.Jobs[0]["status"])
}
