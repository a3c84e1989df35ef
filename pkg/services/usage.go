// Package services provides the application service layer between the HTTP
// boundary and persistence.
package services

import (
	"context"
	"fmt"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/persistence"
)

// Usage exposes per-owner quota snapshots. It satisfies admission.UsageChecker.
type Usage struct {
	stats persistence.StatsRepository
}

func NewUsage(stats persistence.StatsRepository) *Usage {
	return &Usage{stats: stats}
}

func (u *Usage) Check(ctx context.Context, ownerID string) (*models.UsageStatus, error) {
	if ownerID == "" {
		return nil, fmt.Errorf("owner ID cannot be empty")
	}

	return u.stats.Usage(ctx, ownerID)
}
