// Package web provides HTTP request and response types for the execution API.
package web

import "github.com/flowmill/flowmill/pkg/models"

// ExecutionErrorResponse is the error envelope of the execute endpoints.
type ExecutionErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string               `json:"name"         validate:"required,min=3"`
	Description string               `json:"description"`
	OwnerID     string               `json:"owner_id"     validate:"required"`
	Variables   any                  `json:"variables,omitempty"`
	InputSchema map[string]any       `json:"input_schema,omitempty"`
	Blocks      []*models.BlockState `json:"blocks"`
	Edges       []*models.Edge       `json:"edges"`
}
