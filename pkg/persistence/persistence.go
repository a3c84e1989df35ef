// Package persistence provides the data storage abstraction for workflows,
// environment variables, execution logs and usage statistics.
package persistence

import (
	"context"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
)

// WorkflowRepository stores workflow definitions.
type WorkflowRepository interface {
	ByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*models.Workflow, error)
}

// EnvironmentRepository stores encrypted environment variable records, at most one
// per owner.
type EnvironmentRepository interface {
	ByOwner(ctx context.Context, ownerID string) (*models.EnvironmentRecord, error)
	Save(ctx context.Context, record *models.EnvironmentRecord) error
}

// ExecutionLogRepository durably records execution outcomes.
type ExecutionLogRepository interface {
	Save(ctx context.Context, entry *models.ExecutionLog) error
	ByExecutionID(ctx context.Context, executionID string) (*models.ExecutionLog, error)
}

// StatsRepository tracks run counters and per-owner usage.
type StatsRepository interface {
	IncrementRunCount(ctx context.Context, workflowID string) error
	RunCount(ctx context.Context, workflowID string) (int64, error)
	RecordAPICall(ctx context.Context, ownerID string, at time.Time) error
	Usage(ctx context.Context, ownerID string) (*models.UsageStatus, error)
	SetLimit(ctx context.Context, ownerID string, limit float64) error
}

// Persistence aggregates the repositories of one storage backend.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	EnvironmentRepository() EnvironmentRepository
	ExecutionLogRepository() ExecutionLogRepository
	StatsRepository() StatsRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
