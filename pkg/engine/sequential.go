package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
)

// maxSteps bounds graph walks so a malformed edge list cannot loop forever.
const maxSteps = 1000

// SequentialEngine walks a workflow graph one block at a time following outgoing
// edges from the start block. It executes each block by materializing its resolved
// configuration as the block output, which is enough for local wiring and tests;
// production deployments plug in a full graph engine behind the Executor
// interface.
type SequentialEngine struct {
	logger    *slog.Logger
	streaming bool
}

func NewSequentialEngine(logger *slog.Logger) *SequentialEngine {
	return &SequentialEngine{logger: logger}
}

// NewStreamingSequentialEngine returns an engine that wraps its result in the
// composite streaming shape.
func NewStreamingSequentialEngine(logger *slog.Logger) *SequentialEngine {
	return &SequentialEngine{logger: logger, streaming: true}
}

func (e *SequentialEngine) Execute(ctx context.Context, in *ExecuteInput) (any, error) {
	result, err := e.run(ctx, in)
	if err != nil {
		return nil, err
	}

	if !e.streaming {
		return result, nil
	}

	stream := make(chan []byte, len(result.Logs))

	for _, blockLog := range result.Logs {
		if payload, err := json.Marshal(blockLog); err == nil {
			stream <- payload
		}
	}

	close(stream)

	return &StreamingExecution{Stream: stream, Result: result}, nil
}

func (e *SequentialEngine) run(ctx context.Context, in *ExecuteInput) (*models.ExecutionResult, error) {
	logger := e.logger.With(
		"workflow_id", in.Workflow.WorkflowID,
		"block_count", len(in.Workflow.Graph.Blocks),
	)

	logger.Debug("Starting graph walk")

	startedAt := time.Now().UTC()
	output := make(map[string]any)
	logs := make([]models.BlockLog, 0, len(in.Workflow.Graph.Blocks))

	currentID := startBlockID(in.Workflow.Graph)

	for steps := 0; currentID != ""; steps++ {
		if steps >= maxSteps {
			return nil, fmt.Errorf("workflow %s exceeded %d steps", in.Workflow.WorkflowID, maxSteps)
		}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		block, found := findBlock(in.Workflow.Graph, currentID)
		if !found {
			return nil, fmt.Errorf("block %s not found in workflow %s", currentID, in.Workflow.WorkflowID)
		}

		blockStart := time.Now().UTC()
		blockOutput := e.executeBlock(block, in)
		blockEnd := time.Now().UTC()

		output[block.ID] = blockOutput
		logs = append(logs, models.BlockLog{
			BlockID:    block.ID,
			BlockName:  block.Name,
			BlockType:  block.Type,
			Success:    true,
			Output:     blockOutput,
			StartedAt:  blockStart,
			EndedAt:    blockEnd,
			DurationMS: blockEnd.Sub(blockStart).Milliseconds(),
		})

		currentID = nextBlockID(in.Workflow.Graph, currentID)
	}

	endedAt := time.Now().UTC()

	logger.Debug("Completed graph walk", "blocks_executed", len(logs))

	return &models.ExecutionResult{
		Success: true,
		Output:  output,
		Logs:    logs,
		Metadata: models.ResultMetadata{
			StartedAt:  startedAt,
			EndedAt:    endedAt,
			DurationMS: endedAt.Sub(startedAt).Milliseconds(),
		},
	}, nil
}

// executeBlock materializes a block's output. Starter blocks pass the caller's
// input through; every other block echoes its resolved configuration, merged with
// the workflow variables the block can see.
func (e *SequentialEngine) executeBlock(block *models.BlockState, in *ExecuteInput) map[string]any {
	if block.Type == "starter" {
		return map[string]any{"input": in.Input}
	}

	blockOutput := make(map[string]any)

	if resolved, ok := in.BlockStates[block.ID]; ok {
		for field, value := range resolved.Config {
			blockOutput[field] = value
		}
	}

	return blockOutput
}

// startBlockID picks the entry block: the first block with no incoming edge,
// falling back to the first block in the graph.
func startBlockID(graph *models.SerializedGraph) string {
	if len(graph.Blocks) == 0 {
		return ""
	}

	incoming := make(map[string]bool, len(graph.Edges))
	for _, edge := range graph.Edges {
		incoming[edge.Target] = true
	}

	for _, block := range graph.Blocks {
		if !incoming[block.ID] {
			return block.ID
		}
	}

	return graph.Blocks[0].ID
}

func findBlock(graph *models.SerializedGraph, id string) (*models.BlockState, bool) {
	for _, block := range graph.Blocks {
		if block.ID == id {
			return block, true
		}
	}

	return nil, false
}

func nextBlockID(graph *models.SerializedGraph, id string) string {
	for _, edge := range graph.Edges {
		if edge.Source == id {
			return edge.Target
		}
	}

	return ""
}
