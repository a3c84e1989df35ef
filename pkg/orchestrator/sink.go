package orchestrator

import (
	"context"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// Sink durably records execution outcomes.
type Sink interface {
	LogSuccess(ctx context.Context, req *models.ExecutionRequest, result *models.EnrichedResult) error
	LogFailure(ctx context.Context, req *models.ExecutionRequest, execErr error) error
}

// persistenceSink writes execution logs through the persistence layer.
type persistenceSink struct {
	logs persistence.ExecutionLogRepository
}

func NewPersistenceSink(logs persistence.ExecutionLogRepository) Sink {
	return &persistenceSink{logs: logs}
}

func (s *persistenceSink) LogSuccess(ctx context.Context, req *models.ExecutionRequest, result *models.EnrichedResult) error {
	return s.logs.Save(ctx, &models.ExecutionLog{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		RequestID:   req.RequestID,
		Success:     result.Success,
		Error:       result.Error,
		Result:      result,
		CreatedAt:   time.Now().UTC(),
	})
}

func (s *persistenceSink) LogFailure(ctx context.Context, req *models.ExecutionRequest, execErr error) error {
	return s.logs.Save(ctx, &models.ExecutionLog{
		ExecutionID: req.ExecutionID,
		WorkflowID:  req.WorkflowID,
		RequestID:   req.RequestID,
		Success:     false,
		Error:       execErr.Error(),
		CreatedAt:   time.Now().UTC(),
	})
}
