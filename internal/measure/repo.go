package measure

import (
	"context"

	"github.com/google/uuid"
)

// MeasureRepository stores measure definitions. Lookups of missing measures
// return ErrNotFound.
type MeasureRepository interface {
	Create(ctx context.Context, m *Measure) error
	GetByID(ctx context.Context, id uuid.UUID) (*Measure, error)
	GetByName(ctx context.Context, name string) (*Measure, error)
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, limit, offset int) ([]*Measure, int, error)
}
