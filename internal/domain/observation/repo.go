package observation

import (
	"context"

	"github.com/google/uuid"
)

// Repository is the Record Store contract. Query results are ordered by
// date, then creation time.
type Repository interface {
	Create(ctx context.Context, o *Observation) error
	GetByID(ctx context.Context, id uuid.UUID) (*Observation, error)
	Query(ctx context.Context, f Filter) ([]*Observation, error)
	BulkInsert(ctx context.Context, obs []*Observation) error
	DeleteAll(ctx context.Context) (int64, error)
	// Replace deletes every row and inserts obs in one transaction.
	Replace(ctx context.Context, obs []*Observation) (int64, error)
	Ping(ctx context.Context) error
}
