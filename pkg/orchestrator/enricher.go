package orchestrator

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
)

// Bookkeeper records the side-effect counters of a successful execution.
// Satisfied by persistence.StatsRepository.
type Bookkeeper interface {
	IncrementRunCount(ctx context.Context, workflowID string) error
	RecordAPICall(ctx context.Context, ownerID string, at time.Time) error
}

// Enricher derives trace spans and total duration from a completed result and
// triggers success bookkeeping.
type Enricher struct {
	stats  Bookkeeper
	logger *slog.Logger
}

func NewEnricher(stats Bookkeeper, logger *slog.Logger) *Enricher {
	return &Enricher{
		stats:  stats,
		logger: logger,
	}
}

// Enrich is a pure transformation: the input result is not modified, and the same
// result always enriches to the same spans and total duration.
func (e *Enricher) Enrich(result *models.ExecutionResult) *models.EnrichedResult {
	spans := buildTraceSpans(result.Logs)

	total := result.Metadata.DurationMS
	if total == 0 {
		for _, span := range spans {
			total += span.DurationMS
		}
	}

	return &models.EnrichedResult{
		ExecutionResult: *result,
		TraceSpans:      spans,
		TotalDurationMS: total,
	}
}

// RecordSuccess increments the workflow run counter and the owner's API-call
// counter, once per successful execution. Bookkeeping failures are logged, not
// propagated; the execution itself already succeeded.
func (e *Enricher) RecordSuccess(ctx context.Context, workflowID, ownerID string) {
	if err := e.stats.IncrementRunCount(ctx, workflowID); err != nil {
		e.logger.Error("Failed to increment workflow run count",
			"workflow_id", workflowID, "error", err)
	}

	if err := e.stats.RecordAPICall(ctx, ownerID, time.Now().UTC()); err != nil {
		e.logger.Error("Failed to record API call",
			"owner_id", ownerID, "error", err)
	}
}

// buildTraceSpans flattens block logs into spans ordered by start time, then
// block ID, so the derivation is deterministic.
func buildTraceSpans(logs []models.BlockLog) []models.TraceSpan {
	spans := make([]models.TraceSpan, 0, len(logs))

	for _, blockLog := range logs {
		status := "success"
		if !blockLog.Success {
			status = "error"
		}

		name := blockLog.BlockName
		if name == "" {
			name = blockLog.BlockID
		}

		spans = append(spans, models.TraceSpan{
			Name:       name,
			BlockID:    blockLog.BlockID,
			Type:       blockLog.BlockType,
			Status:     status,
			StartedAt:  blockLog.StartedAt,
			EndedAt:    blockLog.EndedAt,
			DurationMS: blockLog.DurationMS,
		})
	}

	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].StartedAt.Equal(spans[j].StartedAt) {
			return spans[i].BlockID < spans[j].BlockID
		}

		return spans[i].StartedAt.Before(spans[j].StartedAt)
	})

	return spans
}
