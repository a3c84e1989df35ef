package admission

import (
	"context"
	"sync"
	"testing"

	"github.com/flowmill/flowmill/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUsage struct {
	status *models.UsageStatus
	err    error
	calls  int
}

func (s *stubUsage) Check(_ context.Context, _ string) (*models.UsageStatus, error) {
	s.calls++

	if s.err != nil {
		return nil, s.err
	}

	return s.status, nil
}

func okUsage() *stubUsage {
	return &stubUsage{status: &models.UsageStatus{Exceeded: false}}
}

func TestMemoryRegistry_ReserveRelease(t *testing.T) {
	registry := NewMemoryRegistry()

	reserved, err := registry.Reserve(t.Context(), "wf:req")
	require.NoError(t, err)
	assert.True(t, reserved)

	reserved, err = registry.Reserve(t.Context(), "wf:req")
	require.NoError(t, err)
	assert.False(t, reserved)

	require.NoError(t, registry.Release(t.Context(), "wf:req"))

	// Releasing an absent key is not an error.
	require.NoError(t, registry.Release(t.Context(), "wf:req"))

	reserved, err = registry.Reserve(t.Context(), "wf:req")
	require.NoError(t, err)
	assert.True(t, reserved)
}

func TestGate_CheckAndReserve(t *testing.T) {
	gate := NewGate(NewMemoryRegistry(), okUsage())

	reservation, err := gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	require.NoError(t, err)
	require.NotNil(t, reservation)
	assert.Equal(t, "wf-1:req-1", reservation.Key())

	_, err = gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	require.NoError(t, reservation.Release(t.Context()))

	// The identical request is admitted again once released.
	reservation, err = gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	require.NoError(t, err)
	require.NoError(t, reservation.Release(t.Context()))
}

func TestGate_DistinctKeysProceedConcurrently(t *testing.T) {
	gate := NewGate(NewMemoryRegistry(), okUsage())

	keys := []struct{ workflowID, requestID string }{
		{"wf-1", "req-1"},
		{"wf-1", "req-2"},
		{"wf-2", "req-1"},
	}

	var wg sync.WaitGroup

	errs := make([]error, len(keys))

	for i, key := range keys {
		wg.Add(1)

		go func() {
			defer wg.Done()

			reservation, err := gate.CheckAndReserve(context.Background(), key.workflowID, key.requestID, "owner-1")
			errs[i] = err

			if err == nil {
				_ = reservation.Release(context.Background())
			}
		}()
	}

	wg.Wait()

	for i, err := range errs {
		assert.NoError(t, err, "key %d should have been admitted", i)
	}
}

func TestGate_DuplicateConcurrentRequests(t *testing.T) {
	gate := NewGate(NewMemoryRegistry(), okUsage())

	const attempts = 32

	var wg sync.WaitGroup

	admitted := make([]*Reservation, attempts)
	errs := make([]error, attempts)

	for i := range attempts {
		wg.Add(1)

		go func() {
			defer wg.Done()

			admitted[i], errs[i] = gate.CheckAndReserve(context.Background(), "wf-1", "req-1", "owner-1")
		}()
	}

	wg.Wait()

	var winners, rejected int

	for i := range attempts {
		if errs[i] == nil {
			winners++

			require.NoError(t, admitted[i].Release(context.Background()))
		} else {
			rejected++

			assert.ErrorIs(t, errs[i], ErrAlreadyRunning)
		}
	}

	assert.Equal(t, 1, winners)
	assert.Equal(t, attempts-1, rejected)
}

func TestGate_UsageLimitExceeded(t *testing.T) {
	registry := NewMemoryRegistry()
	usage := &stubUsage{status: &models.UsageStatus{
		Exceeded:     true,
		CurrentUsage: 100,
		Limit:        100,
		Message:      "monthly quota reached",
	}}

	gate := NewGate(registry, usage)

	_, err := gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	require.Error(t, err)

	var limitErr *UsageLimitError

	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 402, limitErr.Status)
	assert.Equal(t, "USAGE_LIMIT_EXCEEDED", limitErr.Code)
	assert.Equal(t, "monthly quota reached", limitErr.Message)
	assert.True(t, IsUsageLimit(err))

	// The reservation taken before the usage lookup must not leak.
	assert.False(t, registry.Contains("wf-1:req-1"))
}

func TestReservation_ReleaseIsIdempotent(t *testing.T) {
	registry := NewMemoryRegistry()
	gate := NewGate(registry, okUsage())

	reservation, err := gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	require.NoError(t, err)

	require.NoError(t, reservation.Release(t.Context()))

	// A racing re-reservation must survive a second Release of the old capability.
	second, err := gate.CheckAndReserve(t.Context(), "wf-1", "req-1", "owner-1")
	require.NoError(t, err)

	require.NoError(t, reservation.Release(t.Context()))
	assert.True(t, registry.Contains("wf-1:req-1"))

	require.NoError(t, second.Release(t.Context()))
}
