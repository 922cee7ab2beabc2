package triage

import (
	"context"
	"sync"
	"time"
)

type memoryRepo struct {
	mu    sync.RWMutex
	cases map[string]*Case
}

// NewMemoryRepository keeps cases in process memory. Used when no database
// is configured and in tests.
func NewMemoryRepository() Repository {
	return &memoryRepo{cases: make(map[string]*Case)}
}

func (r *memoryRepo) Get(_ context.Context, id string) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return c.Clone(), nil
}

func (r *memoryRepo) Save(ctx context.Context, c *Case) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.cases[c.ID]
	if ok && stored.Version != c.Version {
		return ErrStaleCase
	}
	if !ok && c.Version != 0 {
		return ErrStaleCase
	}

	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Version++
	r.cases[c.ID] = c.Clone()
	return nil
}
