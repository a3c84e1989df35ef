package engine

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmill/flowmill/pkg/models"
)

func linearWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:      "wf-1",
		Name:    "Linear",
		OwnerID: "owner-1",
		Blocks: []*models.BlockState{
			{ID: "start", Name: "Start", Type: "starter", Config: map[string]any{}},
			{ID: "fetch", Name: "Fetch", Type: "http_request", Config: map[string]any{"url": "https://example.com"}},
			{ID: "reply", Name: "Reply", Type: "response", Config: map[string]any{"status": 200}},
		},
		Edges: []*models.Edge{
			{Source: "start", Target: "fetch"},
			{Source: "fetch", Target: "reply"},
		},
	}
}

func TestGraphSerializer_PrefersNormalizedGraph(t *testing.T) {
	workflow := linearWorkflow()
	workflow.LegacyState = &models.SerializedGraph{
		Blocks: []*models.BlockState{{ID: "old", Type: "starter"}},
	}

	compiled, err := NewGraphSerializer().Compile(workflow)
	require.NoError(t, err)
	assert.Equal(t, "wf-1", compiled.WorkflowID)
	require.Len(t, compiled.Graph.Blocks, 3)
	assert.Equal(t, "start", compiled.Graph.Blocks[0].ID)
}

func TestGraphSerializer_FallsBackToLegacyState(t *testing.T) {
	workflow := &models.Workflow{
		ID: "wf-legacy",
		LegacyState: &models.SerializedGraph{
			Blocks: []*models.BlockState{{ID: "only", Type: "starter", Config: map[string]any{}}},
		},
	}

	compiled, err := NewGraphSerializer().Compile(workflow)
	require.NoError(t, err)
	require.Len(t, compiled.Graph.Blocks, 1)
	assert.Equal(t, "only", compiled.Graph.Blocks[0].ID)
}

func TestGraphSerializer_NoDefinition(t *testing.T) {
	_, err := NewGraphSerializer().Compile(&models.Workflow{ID: "wf-empty"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoDefinition)
}

func executeInput(workflow *models.Workflow) *ExecuteInput {
	compiled, _ := NewGraphSerializer().Compile(workflow)

	states := make(map[string]*models.BlockState, len(workflow.Blocks))
	for _, block := range workflow.Blocks {
		states[block.ID] = block
	}

	return &ExecuteInput{
		Workflow:    compiled,
		BlockStates: states,
		Input:       map[string]any{"query": "hello"},
	}
}

func TestSequentialEngine_WalksGraphInEdgeOrder(t *testing.T) {
	eng := NewSequentialEngine(slog.Default())

	raw, err := eng.Execute(t.Context(), executeInput(linearWorkflow()))
	require.NoError(t, err)

	result, ok := raw.(*models.ExecutionResult)
	require.True(t, ok)
	assert.True(t, result.Success)
	require.Len(t, result.Logs, 3)
	assert.Equal(t, "start", result.Logs[0].BlockID)
	assert.Equal(t, "fetch", result.Logs[1].BlockID)
	assert.Equal(t, "reply", result.Logs[2].BlockID)

	// Starter blocks pass the caller's input through.
	assert.Equal(t, map[string]any{"input": map[string]any{"query": "hello"}}, result.Logs[0].Output)

	// Other blocks echo their resolved configuration.
	assert.Equal(t, map[string]any{"url": "https://example.com"}, result.Logs[1].Output)
}

func TestSequentialEngine_CycleIsBounded(t *testing.T) {
	workflow := linearWorkflow()
	workflow.Edges = append(workflow.Edges, &models.Edge{Source: "reply", Target: "fetch"})

	eng := NewSequentialEngine(slog.Default())

	_, err := eng.Execute(t.Context(), executeInput(workflow))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeded")
}

func TestSequentialEngine_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	eng := NewSequentialEngine(slog.Default())

	_, err := eng.Execute(ctx, executeInput(linearWorkflow()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStreamingSequentialEngine_ReturnsCompositeShape(t *testing.T) {
	eng := NewStreamingSequentialEngine(slog.Default())

	raw, err := eng.Execute(t.Context(), executeInput(linearWorkflow()))
	require.NoError(t, err)

	streaming, ok := raw.(*StreamingExecution)
	require.True(t, ok)
	require.NotNil(t, streaming.Result)
	assert.True(t, streaming.Result.Success)

	var chunks int
	for range streaming.Stream {
		chunks++
	}

	assert.Equal(t, len(streaming.Result.Logs), chunks)
}
