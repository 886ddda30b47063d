package cases

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/salulink/salulink/internal/domain/conditions"
)

// MemoryRepo keeps cases in process memory. It is used when no database is
// configured; cases do not survive a restart.
type MemoryRepo struct {
	mu    sync.RWMutex
	cases map[uuid.UUID]*Case
	order []uuid.UUID // newest first
	now   func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		cases: make(map[uuid.UUID]*Case),
		now:   time.Now,
	}
}

func (r *MemoryRepo) Create(_ context.Context, c *Case) error {
	c.ID = uuid.New()
	c.CreatedAt = r.now().UTC()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cases[c.ID] = copyCase(c)
	r.order = append([]uuid.UUID{c.ID}, r.order...)
	return nil
}

func (r *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cases[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyCase(c), nil
}

func (r *MemoryRepo) List(_ context.Context, limit, offset int) ([]*Case, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := len(r.order)
	out := []*Case{}
	if offset >= total {
		return out, total, nil
	}
	end := total
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	for _, id := range r.order[offset:end] {
		out = append(out, copyCase(r.cases[id]))
	}
	return out, total, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cases[id]; !ok {
		return ErrNotFound
	}
	delete(r.cases, id)
	for i, v := range r.order {
		if v == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func copyCase(c *Case) *Case {
	out := *c
	out.DetectedConditions = append([]string(nil), c.DetectedConditions...)
	out.ICDCodes = append([]conditions.ICDCode(nil), c.ICDCodes...)
	return &out
}
