package file

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/flowmill/flowmill/pkg/models"
)

var errStatsNotFound = errors.New("stats record not found")

type ownerStats struct {
	OwnerID    string     `json:"owner_id"`
	APICalls   float64    `json:"api_calls"`
	Limit      float64    `json:"limit"`
	LastCallAt *time.Time `json:"last_call_at,omitempty"`
}

type workflowStats struct {
	WorkflowID string `json:"workflow_id"`
	RunCount   int64  `json:"run_count"`
}

// StatsRepository tracks workflow run counters and per-owner usage. File documents
// are read-modify-write, so all mutations hold the repository mutex.
type StatsRepository struct {
	root string
	mu   sync.Mutex
}

func NewStatsRepository(root string) *StatsRepository {
	return &StatsRepository{root: root}
}

func (sr *StatsRepository) ownerPath(ownerID string) string {
	return filepath.Join(sr.root, "stats", "owners", ownerID+".json")
}

func (sr *StatsRepository) workflowPath(workflowID string) string {
	return filepath.Join(sr.root, "stats", "workflows", workflowID+".json")
}

func (sr *StatsRepository) IncrementRunCount(_ context.Context, workflowID string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats := &workflowStats{WorkflowID: workflowID}

	err := readDocument(sr.workflowPath(workflowID), stats, errStatsNotFound)
	if err != nil && !errors.Is(err, errStatsNotFound) {
		return err
	}

	stats.RunCount++

	return writeDocument(sr.workflowPath(workflowID), stats)
}

func (sr *StatsRepository) RunCount(_ context.Context, workflowID string) (int64, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats := &workflowStats{}

	err := readDocument(sr.workflowPath(workflowID), stats, errStatsNotFound)
	if err != nil {
		if errors.Is(err, errStatsNotFound) {
			return 0, nil
		}

		return 0, err
	}

	return stats.RunCount, nil
}

func (sr *StatsRepository) RecordAPICall(_ context.Context, ownerID string, at time.Time) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats, err := sr.loadOwner(ownerID)
	if err != nil {
		return err
	}

	stats.APICalls++
	stats.LastCallAt = &at

	return writeDocument(sr.ownerPath(ownerID), stats)
}

// Usage returns the owner's quota snapshot. A limit of zero means unlimited.
func (sr *StatsRepository) Usage(_ context.Context, ownerID string) (*models.UsageStatus, error) {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats, err := sr.loadOwner(ownerID)
	if err != nil {
		return nil, err
	}

	status := &models.UsageStatus{
		CurrentUsage: stats.APICalls,
		Limit:        stats.Limit,
	}

	if stats.Limit > 0 && stats.APICalls >= stats.Limit {
		status.Exceeded = true
		status.Message = "usage limit exceeded"
	}

	return status, nil
}

func (sr *StatsRepository) SetLimit(_ context.Context, ownerID string, limit float64) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	stats, err := sr.loadOwner(ownerID)
	if err != nil {
		return err
	}

	stats.Limit = limit

	return writeDocument(sr.ownerPath(ownerID), stats)
}

func (sr *StatsRepository) loadOwner(ownerID string) (*ownerStats, error) {
	stats := &ownerStats{OwnerID: ownerID}

	err := readDocument(sr.ownerPath(ownerID), stats, errStatsNotFound)
	if err != nil && !errors.Is(err, errStatsNotFound) {
		return nil, err
	}

	return stats, nil
}
