package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// LotRepository handles lot persistence and the stock primitives that
// change lot quantities.
type LotRepository struct {
	db *database.DB
}

// NewLotRepository creates a new lot repository
func NewLotRepository(db *database.DB) *LotRepository {
	return &LotRepository{db: db}
}

// Get returns a lot by id
func (r *LotRepository) Get(ctx context.Context, id string) (*domain.Lot, error) {
	var lot domain.Lot
	if err := r.db.Q(ctx).GetContext(ctx, &lot, `SELECT * FROM lots WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// GetForUpdate returns a lot and holds its row lock until the transaction
// ends.
func (r *LotRepository) GetForUpdate(ctx context.Context, id string) (*domain.Lot, error) {
	var lot domain.Lot
	if err := r.db.Q(ctx).GetContext(ctx, &lot, `SELECT * FROM lots WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// stockLockKey names the transaction-scoped advisory lock that guards lot
// quantities and the movement counter.
const stockLockKey int64 = 0x50484152 // "PHAR"

// LockStock takes the stock advisory lock for the rest of the transaction.
// Every transaction that locks lots or appends movements takes it first,
// so lot row locks and the per-day movement counter are never acquired in
// conflicting orders.
func (r *LotRepository) LockStock(ctx context.Context) error {
	if !database.InTransaction(ctx) {
		return errors.Internal("stock lock requires a transaction")
	}
	_, err := r.db.Q(ctx).ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, stockLockKey)
	return err
}

// ListAllocatable locks and returns the product's available lots, earliest
// expiry first. Callers hold the stock lock.
func (r *LotRepository) ListAllocatable(ctx context.Context, productID string) ([]domain.Lot, error) {
	var lots []domain.Lot
	query := `
		SELECT * FROM lots
		WHERE product_id = $1 AND status = 'AVAILABLE' AND current_quantity > 0
		ORDER BY expiry_date, id
		FOR UPDATE
	`
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, productID); err != nil {
		return nil, err
	}
	return lots, nil
}

// ListByProduct returns every lot of a product, earliest expiry first.
func (r *LotRepository) ListByProduct(ctx context.Context, productID string) ([]domain.Lot, error) {
	lots := []domain.Lot{}
	query := `SELECT * FROM lots WHERE product_id = $1 ORDER BY expiry_date, id`
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, productID); err != nil {
		return nil, err
	}
	return lots, nil
}

// Deduct removes qty from the lot's on-hand quantity. It fails with
// InsufficientStock when fewer than qty units are available and leaves the
// lot untouched. An available lot that reaches zero becomes EXHAUSTED.
func (r *LotRepository) Deduct(ctx context.Context, lotID string, qty int) (*domain.Lot, error) {
	if qty <= 0 {
		return nil, errors.InvalidInput("deduction quantity must be positive")
	}

	var lot domain.Lot
	query := `
		UPDATE lots
		SET current_quantity = current_quantity - $2,
			status = CASE
				WHEN current_quantity - $2 = 0 AND status = 'AVAILABLE' THEN 'EXHAUSTED'
				ELSE status
			END,
			updated_at = NOW()
		WHERE id = $1 AND current_quantity - reserved_quantity >= $2
		RETURNING *
	`
	err := r.db.Q(ctx).GetContext(ctx, &lot, query, lotID, qty)
	if err == nil {
		return &lot, nil
	}
	if err != sql.ErrNoRows {
		return nil, mapErr(err)
	}

	current, getErr := r.Get(ctx, lotID)
	if getErr != nil {
		return nil, getErr
	}
	return nil, errors.InsufficientStock(lotID, qty, current.Available())
}

// Replenish adds qty to both the initial and on-hand quantities. An
// exhausted lot becomes available again.
func (r *LotRepository) Replenish(ctx context.Context, lotID string, qty int) (*domain.Lot, error) {
	if qty <= 0 {
		return nil, errors.InvalidInput("replenish quantity must be positive")
	}

	var lot domain.Lot
	query := `
		UPDATE lots
		SET initial_quantity = initial_quantity + $2,
			current_quantity = current_quantity + $2,
			status = CASE WHEN status = 'EXHAUSTED' THEN 'AVAILABLE' ELSE status END,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`
	if err := r.db.Q(ctx).GetContext(ctx, &lot, query, lotID, qty); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, mapErr(err)
	}
	return &lot, nil
}

type receivedLot struct {
	domain.Lot
	Inserted bool `db:"inserted"`
}

// Receive creates the lot identified by (product, lot number) or tops up
// the existing one. Quantities only grow; the first known dates are kept
// and a newly supplied unit price replaces the old one. Reports whether the
// lot was created.
func (r *LotRepository) Receive(ctx context.Context, in domain.LotReceipt) (*domain.Lot, bool, error) {
	if in.Quantity <= 0 {
		return nil, false, errors.InvalidInput("received quantity must be positive")
	}

	var out receivedLot
	query := `
		INSERT INTO lots (
			id, product_id, lot_number, manufacture_date, expiry_date, reception_date,
			initial_quantity, current_quantity, reserved_quantity, unit_price, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7, 0, $8, 'AVAILABLE')
		ON CONFLICT (product_id, lot_number) DO UPDATE SET
			initial_quantity = lots.initial_quantity + EXCLUDED.initial_quantity,
			current_quantity = lots.current_quantity + EXCLUDED.current_quantity,
			unit_price = COALESCE(EXCLUDED.unit_price, lots.unit_price),
			status = CASE WHEN lots.status = 'EXHAUSTED' THEN 'AVAILABLE' ELSE lots.status END,
			updated_at = NOW()
		RETURNING *, (xmax = 0) AS inserted
	`
	err := r.db.Q(ctx).GetContext(ctx, &out, query,
		uuid.New().String(), in.ProductID, in.LotNumber, in.ManufactureDate,
		domain.DateOf(in.ExpiryDate), domain.DateOf(in.ReceptionDate), in.Quantity, in.UnitPrice,
	)
	if err != nil {
		return nil, false, mapErr(err)
	}
	return &out.Lot, out.Inserted, nil
}

// MarkExpired flags every available lot whose expiry date is before day
// and returns them.
func (r *LotRepository) MarkExpired(ctx context.Context, day time.Time) ([]domain.Lot, error) {
	var lots []domain.Lot
	query := `
		UPDATE lots
		SET status = 'EXPIRED', updated_at = NOW()
		WHERE expiry_date < $1 AND status = 'AVAILABLE'
		RETURNING *
	`
	if err := r.db.Q(ctx).SelectContext(ctx, &lots, query, domain.DateOf(day)); err != nil {
		return nil, err
	}
	return lots, nil
}

// Expire flags a single lot as expired whatever its quantity.
func (r *LotRepository) Expire(ctx context.Context, lotID string) (*domain.Lot, error) {
	var lot domain.Lot
	query := `UPDATE lots SET status = 'EXPIRED', updated_at = NOW() WHERE id = $1 RETURNING *`
	if err := r.db.Q(ctx).GetContext(ctx, &lot, query, lotID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("lot")
		}
		return nil, err
	}
	return &lot, nil
}

// StockLevel sums the available quantity of a product's available lots.
func (r *LotRepository) StockLevel(ctx context.Context, productID string) (*domain.StockLevel, error) {
	var level domain.StockLevel
	query := `
		SELECT p.id AS product_id, p.name AS product_name, p.alert_stock, p.safety_stock,
			COALESCE(SUM(l.current_quantity - l.reserved_quantity)
				FILTER (WHERE l.status = 'AVAILABLE'), 0) AS available
		FROM products p
		LEFT JOIN lots l ON l.product_id = p.id
		WHERE p.id = $1
		GROUP BY p.id, p.name, p.alert_stock, p.safety_stock
	`
	if err := r.db.Q(ctx).GetContext(ctx, &level, query, productID); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("product")
		}
		return nil, err
	}
	return &level, nil
}
