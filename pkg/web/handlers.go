package web

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/orchestrator"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/services"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"
)

// RequestIDHeader lets callers supply the request identifier that participates
// in duplicate-execution detection. Absent the header, each call gets a fresh ID
// and is never deduplicated against other calls.
const RequestIDHeader = "X-Request-ID"

type APIHandlers struct {
	workflowService *services.Workflow
	orchestrator    *orchestrator.Orchestrator
	validator       *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	orchestrator *orchestrator.Orchestrator,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService: workflowService,
		orchestrator:    orchestrator,
		validator:       validator,
	}
}

// ExecuteWorkflow runs a workflow. GET carries no input; POST may carry a JSON
// object body that becomes the execution input verbatim.
func (h *APIHandlers) ExecuteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return executionFailure(c, http.StatusNotFound, CodeNotFound, "workflow ID is required")
	}

	input, err := parseExecutionInput(c)
	if err != nil {
		return executionFailure(c, http.StatusBadRequest, CodeInvalidJSON, "invalid JSON in request body")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return executionFailure(c, http.StatusNotFound, CodeNotFound, "workflow not found")
		}

		return handleExecuteError(c, err)
	}

	if err := validateInputSchema(workflow, input); err != nil {
		return executionFailure(c, http.StatusBadRequest, CodeInvalidInput, err.Error())
	}

	requestID := c.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	result, err := h.orchestrator.Execute(c.Context(), id, requestID, input)
	if err != nil {
		return handleExecuteError(c, err)
	}

	return respondWithResult(c, result)
}

// parseExecutionInput extracts the execution input from a POST body. GET requests
// and empty bodies yield absent input.
func parseExecutionInput(c fiber.Ctx) (map[string]any, error) {
	if c.Method() != fiber.MethodPost {
		return nil, nil
	}

	body := bytes.TrimSpace(c.Body())
	if len(body) == 0 {
		return nil, nil
	}

	input := map[string]any{}
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, err
	}

	return input, nil
}

// validateInputSchema checks the input payload against the workflow's declared
// input schema, when one exists.
func validateInputSchema(workflow *models.Workflow, input map[string]any) error {
	if len(workflow.InputSchema) == 0 || input == nil {
		return nil
	}

	schemaLoader := gojsonschema.NewGoLoader(workflow.InputSchema)
	dataLoader := gojsonschema.NewGoLoader(input)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var details []string
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("input validation failed: %s", strings.Join(details, "; "))
	}

	return nil
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"workflows":   workflows,
		"total_count": len(workflows),
	})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsWorkflowNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     req.OwnerID,
		Variables:   req.Variables,
		InputSchema: req.InputSchema,
		Blocks:      req.Blocks,
		Edges:       req.Edges,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return internalError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Flowmill API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Flowmill API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
