// Package models defines the core domain models for workflow execution orchestration.
package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft     WorkflowStatus = "draft"     // Editable, not executable
	WorkflowStatusPublished WorkflowStatus = "published" // Active, executable
)

// Workflow represents an executable workflow definition. Block and edge data is
// stored normalized; LegacyState carries a serialized snapshot for workflows that
// predate the normalized tables.
type Workflow struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"                   validate:"required,min=3"`
	Description string           `json:"description"`
	Status      WorkflowStatus   `json:"status"`
	OwnerID     string           `json:"owner_id"               validate:"required"`
	Variables   any              `json:"variables,omitempty"` // May arrive as a JSON-encoded string
	InputSchema map[string]any   `json:"input_schema,omitempty"`
	Blocks      []*BlockState    `json:"blocks"`
	Edges       []*Edge          `json:"edges"`
	LegacyState *SerializedGraph `json:"legacy_state,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
}

// BlockState is the per-block configuration of a workflow graph. Config values of
// string type may reference encrypted environment variables via {{name}}
// placeholders.
type BlockState struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

// Edge connects two blocks in the workflow graph.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
}

// SerializedGraph is a self-contained snapshot of a workflow graph.
type SerializedGraph struct {
	Blocks []*BlockState `json:"blocks"`
	Edges  []*Edge       `json:"edges"`
}

// Graph returns the executable graph for the workflow, preferring normalized block
// and edge data over the legacy snapshot. The second return is false when neither
// form is present.
func (w *Workflow) Graph() (*SerializedGraph, bool) {
	if len(w.Blocks) > 0 {
		return &SerializedGraph{Blocks: w.Blocks, Edges: w.Edges}, true
	}

	if w.LegacyState != nil && len(w.LegacyState.Blocks) > 0 {
		return w.LegacyState, true
	}

	return nil, false
}
