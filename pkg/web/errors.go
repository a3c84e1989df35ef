package web

import (
	"errors"
	"net/http"

	"github.com/flowmill/flowmill/pkg/admission"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

// Execute-path error codes.
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidInput   = "INVALID_INPUT"
	CodeAlreadyRunning = "ALREADY_RUNNING"
	CodeNotFound       = "WORKFLOW_NOT_FOUND"
	CodeExecutionError = "EXECUTION_ERROR"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// executionFailure writes the {message, code} envelope of the execute endpoints.
func executionFailure(c fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(ExecutionErrorResponse{
		Message: message,
		Code:    code,
	})
}

// handleExecuteError maps orchestration errors onto the execute-path envelope.
// Distinguished errors keep their own status and code; everything else is a
// generic execution error.
func handleExecuteError(c fiber.Ctx, err error) error {
	var usageErr *admission.UsageLimitError

	switch {
	case errors.As(err, &usageErr):
		return executionFailure(c, usageErr.Status, usageErr.Code, usageErr.Message)

	case errors.Is(err, admission.ErrAlreadyRunning):
		return executionFailure(c, fiber.StatusConflict, CodeAlreadyRunning, err.Error())

	case persistence.IsWorkflowNotFound(err):
		return executionFailure(c, http.StatusNotFound, CodeNotFound, "workflow not found")

	default:
		return executionFailure(c, http.StatusInternalServerError, CodeExecutionError, err.Error())
	}
}
