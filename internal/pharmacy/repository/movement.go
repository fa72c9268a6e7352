package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// MovementRepository appends to the stock ledger. Entries are never
// updated or deleted.
type MovementRepository struct {
	db *database.DB
}

// NewMovementRepository creates a new movement repository
func NewMovementRepository(db *database.DB) *MovementRepository {
	return &MovementRepository{db: db}
}

// Create inserts m. The number must already be assigned.
func (r *MovementRepository) Create(ctx context.Context, m *domain.Movement) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}

	query := `
		INSERT INTO movements (
			id, number, movement_type, direction, product_id, lot_id, quantity,
			source_location_id, destination_location_id, service_id, order_id,
			supplier_id, reason, performed_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING created_at
	`
	err := r.db.Q(ctx).QueryRowxContext(ctx, query,
		m.ID, m.Number, m.Type, m.Direction, m.ProductID, m.LotID, m.Quantity,
		m.SourceLocationID, m.DestinationLocationID, m.ServiceID, m.OrderID,
		m.SupplierID, m.Reason, m.PerformedBy,
	).Scan(&m.CreatedAt)
	return mapErr(err)
}

// ListByLot returns a lot's ledger, oldest first.
func (r *MovementRepository) ListByLot(ctx context.Context, lotID string) ([]domain.Movement, error) {
	movements := []domain.Movement{}
	query := `SELECT * FROM movements WHERE lot_id = $1 ORDER BY created_at, number`
	if err := r.db.Q(ctx).SelectContext(ctx, &movements, query, lotID); err != nil {
		return nil, err
	}
	return movements, nil
}

// ListByOrder returns the issues made against an order, oldest first.
func (r *MovementRepository) ListByOrder(ctx context.Context, orderID string) ([]domain.Movement, error) {
	movements := []domain.Movement{}
	query := `SELECT * FROM movements WHERE order_id = $1 ORDER BY created_at, number`
	if err := r.db.Q(ctx).SelectContext(ctx, &movements, query, orderID); err != nil {
		return nil, err
	}
	return movements, nil
}
