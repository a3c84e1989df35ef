package admission

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/flowmill/flowmill/pkg/models"
)

// ErrAlreadyRunning indicates an execution with the same workflow and request
// identifiers is already in flight.
var ErrAlreadyRunning = errors.New("execution already in progress for this workflow and request")

// UsageLimitError carries the fixed status and code that distinguish quota
// rejections from generic execution failures.
type UsageLimitError struct {
	Status  int
	Code    string
	Message string
}

func (e *UsageLimitError) Error() string {
	return e.Message
}

// NewUsageLimitError builds the canonical 402 usage-limit error.
func NewUsageLimitError(message string) *UsageLimitError {
	if message == "" {
		message = "usage limit exceeded"
	}

	return &UsageLimitError{
		Status:  http.StatusPaymentRequired,
		Code:    "USAGE_LIMIT_EXCEEDED",
		Message: message,
	}
}

// IsUsageLimit reports whether err is a usage-limit rejection.
func IsUsageLimit(err error) bool {
	var limitErr *UsageLimitError

	return errors.As(err, &limitErr)
}

// UsageChecker is the external usage collaborator.
type UsageChecker interface {
	Check(ctx context.Context, ownerID string) (*models.UsageStatus, error)
}

// Key computes the admission key for a workflow/request pair.
func Key(workflowID, requestID string) string {
	return workflowID + ":" + requestID
}

// Reservation is the capability returned by a successful admission. Release is
// idempotent and must be invoked on every exit path.
type Reservation struct {
	key      string
	registry Registry
	once     sync.Once
}

// Release removes the admission key from the registry. Safe to call more than
// once; only the first call takes effect.
func (r *Reservation) Release(ctx context.Context) error {
	var err error

	r.once.Do(func() {
		err = r.registry.Release(ctx, r.key)
	})

	return err
}

// Key returns the admission key held by this reservation.
func (r *Reservation) Key() string {
	return r.key
}

// Gate admits execution requests: it rejects duplicates of in-flight executions
// and owners over their usage quota.
type Gate struct {
	registry Registry
	usage    UsageChecker
}

func NewGate(registry Registry, usage UsageChecker) *Gate {
	return &Gate{
		registry: registry,
		usage:    usage,
	}
}

// CheckAndReserve admits one execution for the (workflowID, requestID) pair. The
// key is reserved atomically before the usage lookup so two duplicates can never
// both pass; a reservation taken for an over-quota owner is released before the
// error returns.
func (g *Gate) CheckAndReserve(ctx context.Context, workflowID, requestID, ownerID string) (*Reservation, error) {
	key := Key(workflowID, requestID)

	reserved, err := g.registry.Reserve(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("admission registry unavailable: %w", err)
	}

	if !reserved {
		return nil, ErrAlreadyRunning
	}

	reservation := &Reservation{key: key, registry: g.registry}

	status, err := g.usage.Check(ctx, ownerID)
	if err != nil {
		_ = reservation.Release(ctx)

		return nil, fmt.Errorf("failed to check usage for owner %s: %w", ownerID, err)
	}

	if status.Exceeded {
		_ = reservation.Release(ctx)

		return nil, NewUsageLimitError(status.Message)
	}

	return reservation, nil
}
