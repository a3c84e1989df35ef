package web_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/admission"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/orchestrator"
	"github.com/flowmill/flowmill/pkg/persistence/file"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/flowmill/flowmill/pkg/web"
)

type prefixDecryptor struct{}

func (prefixDecryptor) Decrypt(_ context.Context, ciphertext string) (string, error) {
	return strings.TrimPrefix(ciphertext, "enc:"), nil
}

func setupTestApp(t *testing.T) (*fiber.App, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(t.TempDir())

	gate := admission.NewGate(
		admission.NewMemoryRegistry(),
		services.NewUsage(store.StatsRepository()),
	)

	orch := orchestrator.NewOrchestrator(
		store,
		gate,
		prefixDecryptor{},
		engine.NewGraphSerializer(),
		engine.NewSequentialEngine(slog.Default()),
		nil,
		slog.Default(),
	)

	handlers := web.NewAPIHandlers(
		services.NewWorkflow(store),
		orch,
		validator.New(validator.WithRequiredStructEnabled()),
	)

	app := fiber.New()

	w := app.Group("/workflows")
	w.Get("/", handlers.GetWorkflows)
	w.Post("/", handlers.CreateWorkflow)
	w.Get("/:id", handlers.GetWorkflow)
	w.Get("/:id/execute", handlers.ExecuteWorkflow)
	w.Post("/:id/execute", handlers.ExecuteWorkflow)

	return app, store
}

func saveWorkflow(t *testing.T, store *file.Persistence, workflow *models.Workflow) {
	t.Helper()
	require.NoError(t, store.WorkflowRepository().Save(t.Context(), workflow))
}

func saveEnvironment(t *testing.T, store *file.Persistence, ownerID string, variables map[string]string) {
	t.Helper()
	require.NoError(t, store.EnvironmentRepository().Save(t.Context(), &models.EnvironmentRecord{
		OwnerID:   ownerID,
		Variables: variables,
		UpdatedAt: time.Now().UTC(),
	}))
}

func executableWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:      "wf-1",
		Name:    "Greeter",
		Status:  models.WorkflowStatusPublished,
		OwnerID: "owner-1",
		Blocks: []*models.BlockState{
			{ID: "start", Name: "Start", Type: "starter", Config: map[string]any{}},
			{ID: "call", Name: "Call", Type: "http_request", Config: map[string]any{
				"url": "https://{{HOST}}/greet",
			}},
		},
		Edges: []*models.Edge{{Source: "start", Target: "call"}},
	}
}

func decodeErrorEnvelope(t *testing.T, resp *http.Response) web.ExecutionErrorResponse {
	t.Helper()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var envelope web.ExecutionErrorResponse

	require.NoError(t, json.Unmarshal(body, &envelope))

	return envelope
}

func TestExecuteWorkflow_GetSuccess(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())
	saveEnvironment(t, store, "owner-1", map[string]string{"HOST": "enc:api.internal"})

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/execute", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var result models.EnrichedResult

	require.NoError(t, json.Unmarshal(body, &result))
	assert.True(t, result.Success)
	assert.Len(t, result.TraceSpans, 2)
}

func TestExecuteWorkflow_PostWithInput(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())
	saveEnvironment(t, store, "owner-1", map[string]string{"HOST": "enc:api.internal"})

	payload := bytes.NewBufferString(`{"user":"ada"}`)
	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", payload)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(web.RequestIDHeader, "req-42")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestExecuteWorkflow_InvalidJSON(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())

	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", bytes.NewBufferString("{oops"))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	envelope := decodeErrorEnvelope(t, resp)
	assert.Equal(t, "INVALID_JSON", envelope.Code)
}

func TestExecuteWorkflow_NotFound(t *testing.T) {
	app, _ := setupTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/workflows/missing/execute", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	envelope := decodeErrorEnvelope(t, resp)
	assert.Equal(t, "WORKFLOW_NOT_FOUND", envelope.Code)
}

func TestExecuteWorkflow_InputSchemaViolation(t *testing.T) {
	app, store := setupTestApp(t)

	workflow := executableWorkflow()
	workflow.InputSchema = map[string]any{
		"type":     "object",
		"required": []any{"user"},
		"properties": map[string]any{
			"user": map[string]any{"type": "string"},
		},
	}
	saveWorkflow(t, store, workflow)

	payload := bytes.NewBufferString(`{"user":123}`)
	req := httptest.NewRequest(http.MethodPost, "/workflows/wf-1/execute", payload)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	envelope := decodeErrorEnvelope(t, resp)
	assert.Equal(t, "INVALID_INPUT", envelope.Code)
	assert.Contains(t, envelope.Message, "user")
}

func TestExecuteWorkflow_UsageLimitExceeded(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())

	stats := store.StatsRepository()
	require.NoError(t, stats.SetLimit(t.Context(), "owner-1", 1))
	require.NoError(t, stats.RecordAPICall(t.Context(), "owner-1", time.Now().UTC()))

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/execute", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	envelope := decodeErrorEnvelope(t, resp)
	assert.Equal(t, "USAGE_LIMIT_EXCEEDED", envelope.Code)
}

func TestExecuteWorkflow_ResponseBlockShapesHTTPResponse(t *testing.T) {
	app, store := setupTestApp(t)

	workflow := executableWorkflow()
	workflow.Blocks = append(workflow.Blocks, &models.BlockState{
		ID: "reply", Name: "Reply", Type: "response",
		Config: map[string]any{
			"status":  201,
			"headers": map[string]any{"X-Flow": "greeter"},
			"data":    "hello {{HOST}}",
		},
	})
	workflow.Edges = append(workflow.Edges, &models.Edge{Source: "call", Target: "reply"})
	saveWorkflow(t, store, workflow)
	saveEnvironment(t, store, "owner-1", map[string]string{"HOST": "enc:api.internal"})

	req := httptest.NewRequest(http.MethodGet, "/workflows/wf-1/execute", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "greeter", resp.Header.Get("X-Flow"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var data string

	require.NoError(t, json.Unmarshal(body, &data))
	assert.Equal(t, "hello api.internal", data)
}

func TestCreateWorkflow(t *testing.T) {
	app, _ := setupTestApp(t)

	payload, err := json.Marshal(web.CreateWorkflowRequest{
		Name:    "New Workflow",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/workflows/", bytes.NewBuffer(payload))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var created models.Workflow

	require.NoError(t, json.Unmarshal(body, &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.WorkflowStatusDraft, created.Status)
	assert.Equal(t, "owner-1", created.OwnerID)
}

func TestCreateWorkflow_ValidationError(t *testing.T) {
	app, _ := setupTestApp(t)

	// Name too short, owner missing.
	req := httptest.NewRequest(http.MethodPost, "/workflows/", bytes.NewBufferString(`{"name":"ab"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetWorkflow(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/wf-1", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/workflows/absent", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestGetWorkflows(t *testing.T) {
	app, store := setupTestApp(t)
	saveWorkflow(t, store, executableWorkflow())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/workflows/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var listing struct {
		Workflows  []*models.Workflow `json:"workflows"`
		TotalCount int                `json:"total_count"`
	}

	require.NoError(t, json.Unmarshal(body, &listing))
	assert.Equal(t, 1, listing.TotalCount)
}
