package cases

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a case does not exist.
var ErrNotFound = errors.New("case not found")

// Repository persists saved cases. Create assigns ID and CreatedAt.
type Repository interface {
	Create(ctx context.Context, c *Case) error
	GetByID(ctx context.Context, id uuid.UUID) (*Case, error)
	List(ctx context.Context, limit, offset int) ([]*Case, int, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
