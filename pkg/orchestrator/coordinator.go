package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/models"
)

// Coordinator invokes the execution engine and normalizes its possibly-streaming
// result shape into a single ExecutionResult. One attempt per request; the
// coordinator never retries.
type Coordinator struct {
	executor engine.Executor
}

func NewCoordinator(executor engine.Executor) *Coordinator {
	return &Coordinator{executor: executor}
}

func (c *Coordinator) Run(ctx context.Context, in *engine.ExecuteInput) (*models.ExecutionResult, error) {
	out, err := c.executor.Execute(ctx, in)
	if err != nil {
		return nil, &engine.EngineError{WorkflowID: in.Workflow.WorkflowID, Err: err}
	}

	switch result := out.(type) {
	case *models.ExecutionResult:
		return result, nil
	case *engine.StreamingExecution:
		// The streaming channel belongs to the caller that requested it; this
		// orchestration path consumes only the result portion.
		if result.Result == nil {
			return nil, &engine.EngineError{
				WorkflowID: in.Workflow.WorkflowID,
				Err:        errors.New("streaming execution carried no result"),
			}
		}

		return result.Result, nil
	default:
		return nil, &engine.EngineError{
			WorkflowID: in.Workflow.WorkflowID,
			Err:        fmt.Errorf("unexpected engine result shape %T", out),
		}
	}
}
