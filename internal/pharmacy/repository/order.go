package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// OrderRepository handles order persistence
type OrderRepository struct {
	db *database.DB
}

// NewOrderRepository creates a new order repository
func NewOrderRepository(db *database.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// Create inserts the order and its lines. Lines keep their slice order as
// position.
func (r *OrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}

	q := r.db.Q(ctx)
	query := `
		INSERT INTO orders (id, number, service_id, status, priority, notes, requested_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING requested_at, updated_at
	`
	if err := q.QueryRowxContext(ctx, query,
		o.ID, o.Number, o.ServiceID, o.Status, o.Priority, o.Notes, o.RequestedBy,
	).Scan(&o.RequestedAt, &o.UpdatedAt); err != nil {
		return mapErr(err)
	}

	lineQuery := `
		INSERT INTO order_lines (id, order_id, product_id, requested_quantity, delivered_quantity, status, position)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range o.Lines {
		line := &o.Lines[i]
		if line.ID == "" {
			line.ID = uuid.New().String()
		}
		line.OrderID = o.ID
		line.Position = i + 1
		if _, err := q.ExecContext(ctx, lineQuery,
			line.ID, line.OrderID, line.ProductID, line.RequestedQuantity,
			line.DeliveredQuantity, line.Status, line.Position,
		); err != nil {
			return mapErr(err)
		}
	}
	return nil
}

// Get returns an order with its lines
func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, false)
}

// GetForUpdate returns an order with its lines and locks the order row
// and its line rows until the transaction ends.
func (r *OrderRepository) GetForUpdate(ctx context.Context, id string) (*domain.Order, error) {
	return r.get(ctx, id, true)
}

func (r *OrderRepository) get(ctx context.Context, id string, lock bool) (*domain.Order, error) {
	orderQuery := `SELECT * FROM orders WHERE id = $1`
	lineQuery := `SELECT * FROM order_lines WHERE order_id = $1 ORDER BY position`
	if lock {
		orderQuery += ` FOR UPDATE`
		lineQuery += ` FOR UPDATE`
	}

	var o domain.Order
	if err := r.db.Q(ctx).GetContext(ctx, &o, orderQuery, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("order")
		}
		return nil, err
	}

	o.Lines = []domain.OrderLine{}
	if err := r.db.Q(ctx).SelectContext(ctx, &o.Lines, lineQuery, id); err != nil {
		return nil, err
	}
	return &o, nil
}

// UpdateStatus sets the order status
func (r *OrderRepository) UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error {
	res, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE orders SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("order")
	}
	return nil
}

// UpdateLine stores a line's delivered quantity and status
func (r *OrderRepository) UpdateLine(ctx context.Context, line *domain.OrderLine) error {
	res, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE order_lines SET delivered_quantity = $2, status = $3 WHERE id = $1`,
		line.ID, line.DeliveredQuantity, line.Status)
	if err != nil {
		return mapErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.NotFound("order line")
	}
	return nil
}
