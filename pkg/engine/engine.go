// Package engine defines the call contract between the orchestrator and the
// workflow graph execution engine, plus a minimal sequential implementation used
// for local wiring and tests.
package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowmill/flowmill/pkg/models"
)

// ErrNoDefinition indicates a workflow has neither normalized graph data nor a
// legacy snapshot to execute.
var ErrNoDefinition = errors.New("workflow has no executable definition")

// EngineError wraps any fault raised by the execution engine.
type EngineError struct {
	WorkflowID string
	Err        error
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("engine execution failed for workflow %s: %v", e.WorkflowID, e.Err)
}

func (e *EngineError) Unwrap() error {
	return e.Err
}

// CompiledWorkflow is the engine-ready representation of a workflow graph.
type CompiledWorkflow struct {
	WorkflowID string
	Graph      *models.SerializedGraph
}

// ExecuteInput carries everything the engine needs for one run: the compiled
// graph, per-block resolved configuration, decrypted environment variables, the
// caller's input payload and normalized workflow variables.
type ExecuteInput struct {
	Workflow          *CompiledWorkflow
	BlockStates       map[string]*models.BlockState
	Environment       map[string]string
	Input             map[string]any
	WorkflowVariables map[string]any
}

// StreamingExecution is the composite result shape some engines return: a stream
// of incremental output plus the final result. Orchestration consumes only the
// result portion.
type StreamingExecution struct {
	Stream <-chan []byte
	Result *models.ExecutionResult
}

// Serializer compiles a workflow definition into the engine's input form.
type Serializer interface {
	Compile(workflow *models.Workflow) (*CompiledWorkflow, error)
}

// Executor runs a compiled workflow. The return value is either a
// *models.ExecutionResult or a *StreamingExecution.
type Executor interface {
	Execute(ctx context.Context, in *ExecuteInput) (any, error)
}

// GraphSerializer is the default Serializer: it prefers normalized block and edge
// data and falls back to the legacy snapshot.
type GraphSerializer struct{}

func NewGraphSerializer() *GraphSerializer {
	return &GraphSerializer{}
}

func (s *GraphSerializer) Compile(workflow *models.Workflow) (*CompiledWorkflow, error) {
	graph, ok := workflow.Graph()
	if !ok {
		return nil, fmt.Errorf("workflow %s: %w", workflow.ID, ErrNoDefinition)
	}

	return &CompiledWorkflow{
		WorkflowID: workflow.ID,
		Graph:      graph,
	}, nil
}
