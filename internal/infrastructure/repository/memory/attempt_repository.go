package memory

import (
	"context"
	"sync"
)

// AttemptRepository counts attempts in process memory. Counters are lost on
// restart, so it suits single-instance and test deployments only.
type AttemptRepository struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewAttemptRepository() *AttemptRepository {
	return &AttemptRepository{counts: make(map[string]int)}
}

func (r *AttemptRepository) IncrementAttempt(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[eventID]++
	return r.counts[eventID], nil
}

func (r *AttemptRepository) AttemptCount(_ context.Context, eventID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.counts[eventID], nil
}
