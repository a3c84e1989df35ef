package file

import (
	"context"
	"path/filepath"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// ExecutionLogRepository records execution outcomes, one document per execution.
type ExecutionLogRepository struct {
	root string
}

func NewExecutionLogRepository(root string) *ExecutionLogRepository {
	return &ExecutionLogRepository{root: root}
}

func (lr *ExecutionLogRepository) path(executionID string) string {
	return filepath.Join(lr.root, "executions", executionID+".json")
}

func (lr *ExecutionLogRepository) Save(_ context.Context, entry *models.ExecutionLog) error {
	return writeDocument(lr.path(entry.ExecutionID), entry)
}

func (lr *ExecutionLogRepository) ByExecutionID(_ context.Context, executionID string) (*models.ExecutionLog, error) {
	entry := &models.ExecutionLog{}

	err := readDocument(lr.path(executionID), entry, persistence.ErrExecutionLogNotFound)
	if err != nil {
		return nil, err
	}

	return entry, nil
}
