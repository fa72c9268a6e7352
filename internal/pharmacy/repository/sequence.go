package repository

import (
	"context"
	"time"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// SequenceRepository hands out per-prefix, per-day counters from a table.
// The counter row stays locked until the surrounding transaction ends, so
// numbers are gap-free and a rolled back caller releases its value.
type SequenceRepository struct {
	db *database.DB
}

// NewSequenceRepository creates a new sequence repository
func NewSequenceRepository(db *database.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next returns the next value for prefix on day, starting at 1.
func (r *SequenceRepository) Next(ctx context.Context, prefix string, day time.Time) (int64, error) {
	var next int64
	query := `
		INSERT INTO sequence_counters (prefix, day, last_value)
		VALUES ($1, $2, 1)
		ON CONFLICT (prefix, day) DO UPDATE
		SET last_value = sequence_counters.last_value + 1
		RETURNING last_value
	`
	if err := r.db.Q(ctx).GetContext(ctx, &next, query, prefix, domain.DateOf(day)); err != nil {
		return 0, err
	}
	return next, nil
}
