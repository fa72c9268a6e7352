package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// StockService corrects, moves and writes off individual lots
type StockService struct {
	tx        Transactor
	lots      LotStore
	catalog   CatalogStore
	ledger    *Ledger
	auth      *Authorizer
	audit     *AuditRecorder
	lowStock  *LowStockMonitor
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
}

// NewStockService creates a new stock service
func NewStockService(
	tx Transactor,
	lots LotStore,
	catalog CatalogStore,
	ledger *Ledger,
	auth *Authorizer,
	audit *AuditRecorder,
	lowStock *LowStockMonitor,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *StockService {
	return &StockService{
		tx:        tx,
		lots:      lots,
		catalog:   catalog,
		ledger:    ledger,
		auth:      auth,
		audit:     audit,
		lowStock:  lowStock,
		publisher: publisher,
		logger:    log,
	}
}

// StockChange is a lot after a stock operation and the movement that
// recorded it.
type StockChange struct {
	Lot      *domain.Lot      `json:"lot"`
	Movement *domain.Movement `json:"movement"`
}

// TransferRequest moves part of a lot between storage locations
type TransferRequest struct {
	SourceLocationID      string `json:"source_location_id" validate:"required,uuid"`
	DestinationLocationID string `json:"destination_location_id" validate:"required,uuid,nefield=SourceLocationID"`
	Quantity              int    `json:"quantity" validate:"gt=0"`
	Reason                string `json:"reason"`
}

// ListLots returns a product's allocatable lots in the order delivery
// would draw from them.
func (s *StockService) ListLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	if _, err := s.auth.Require(ctx, permissions.Lots, permissions.View); err != nil {
		return nil, err
	}
	if _, err := s.catalog.GetProduct(ctx, productID); err != nil {
		return nil, err
	}

	lots, err := s.lots.ListByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	cursor := domain.NewLotCursor(lots)
	out := make([]domain.Lot, 0, cursor.Len())
	for l, ok := cursor.Next(); ok; l, ok = cursor.Next() {
		out = append(out, *l)
	}
	return out, nil
}

// Adjust corrects a lot's on-hand quantity by delta and records an
// ADJUSTMENT. A negative delta cannot take more than is available.
func (s *StockService) Adjust(ctx context.Context, lotID string, delta int, reason string) (*StockChange, error) {
	principal, err := s.auth.Require(ctx, permissions.Lots, permissions.Change)
	if err != nil {
		return nil, err
	}
	if delta == 0 {
		return nil, errors.InvalidInput("adjustment must not be zero")
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, errors.InvalidInput("adjustment reason is required")
	}

	var change StockChange
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}
		if _, err := s.lots.GetForUpdate(ctx, lotID); err != nil {
			return err
		}

		var lot *domain.Lot
		var err error
		direction := domain.DirectionIn
		qty := delta
		if delta > 0 {
			lot, err = s.lots.Replenish(ctx, lotID, delta)
		} else {
			direction = domain.DirectionOut
			qty = -delta
			lot, err = s.lots.Deduct(ctx, lotID, qty)
		}
		if err != nil {
			return err
		}

		mv, err := s.ledger.Append(ctx, domain.NewMovement{
			Type:        domain.MovementAdjustment,
			Direction:   direction,
			ProductID:   lot.ProductID,
			LotID:       &lot.ID,
			Quantity:    qty,
			Reason:      &reason,
			PerformedBy: &principal.ID,
		})
		if err != nil {
			return err
		}
		change = StockChange{Lot: lot, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithSpan(ctx).Info().
		Str("lot_id", lotID).
		Int("delta", delta).
		Str("movement", change.Movement.Number).
		Msg("lot adjusted")

	s.audit.Record(ctx, auditEntry(
		domain.AuditCategoryStock, domain.AuditAdjust, &principal.ID,
		"lot", change.Lot.ID, change.Lot.LotNumber,
		fmt.Sprintf("Lot %s adjusted by %+d", change.Lot.LotNumber, delta),
		map[string]interface{}{
			"delta":           delta,
			"new_quantity":    change.Lot.CurrentQuantity,
			"reason":          reason,
			"movement_number": change.Movement.Number,
		},
	))
	s.publisher.PublishStockAdjusted(ctx, change.Lot, change.Movement, delta)
	if delta < 0 {
		s.lowStock.Check(ctx, change.Lot.ProductID)
	}

	return &change, nil
}

// Transfer records that quantity units of a lot moved between two
// locations. Lot quantities do not change.
func (s *StockService) Transfer(ctx context.Context, lotID string, req TransferRequest) (*StockChange, error) {
	principal, err := s.auth.Require(ctx, permissions.Movements, permissions.Add)
	if err != nil {
		return nil, err
	}
	if req.Quantity <= 0 {
		return nil, errors.InvalidInput("transfer quantity must be positive")
	}
	if req.SourceLocationID == "" || req.DestinationLocationID == "" {
		return nil, errors.InvalidInput("source and destination locations are required")
	}
	if req.SourceLocationID == req.DestinationLocationID {
		return nil, errors.InvalidInput("source and destination locations must differ")
	}

	var change StockChange
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}
		lot, err := s.lots.GetForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Status != domain.LotAvailable {
			return errors.InvalidInput(fmt.Sprintf("lot %s is %s", lot.LotNumber, lot.Status))
		}
		if req.Quantity > lot.Available() {
			return errors.InsufficientStock(lot.ID, req.Quantity, lot.Available())
		}
		for _, id := range []string{req.SourceLocationID, req.DestinationLocationID} {
			if _, err := s.catalog.GetLocation(ctx, id); err != nil {
				return err
			}
		}

		mv, err := s.ledger.Append(ctx, domain.NewMovement{
			Type:                  domain.MovementTransfer,
			ProductID:             lot.ProductID,
			LotID:                 &lot.ID,
			Quantity:              req.Quantity,
			SourceLocationID:      &req.SourceLocationID,
			DestinationLocationID: &req.DestinationLocationID,
			Reason:                strPtr(strings.TrimSpace(req.Reason)),
			PerformedBy:           &principal.ID,
		})
		if err != nil {
			return err
		}
		change = StockChange{Lot: lot, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.audit.Record(ctx, auditEntry(
		domain.AuditCategoryStock, domain.AuditTransfer, &principal.ID,
		"lot", change.Lot.ID, change.Lot.LotNumber,
		fmt.Sprintf("Transfer of %d units of lot %s", req.Quantity, change.Lot.LotNumber),
		map[string]interface{}{
			"quantity":                req.Quantity,
			"source_location_id":      req.SourceLocationID,
			"destination_location_id": req.DestinationLocationID,
			"movement_number":         change.Movement.Number,
		},
	))
	s.publisher.PublishStockAdjusted(ctx, change.Lot, change.Movement, 0)

	return &change, nil
}

// WriteOff removes the remaining available quantity of an expired lot.
// A lot past its expiry date that the sweep has not reached yet is
// flagged expired first.
func (s *StockService) WriteOff(ctx context.Context, lotID, reason string) (*StockChange, error) {
	principal, err := s.auth.Require(ctx, permissions.Lots, permissions.Change)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)

	var change StockChange
	var qty int
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}
		lot, err := s.lots.GetForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Status != domain.LotExpired {
			if !lot.ExpiredOn(s.ledger.Now()) {
				return errors.InvalidInput(fmt.Sprintf("lot %s has not expired", lot.LotNumber))
			}
			if lot, err = s.lots.Expire(ctx, lot.ID); err != nil {
				return err
			}
		}

		qty = lot.Available()
		if qty <= 0 {
			return errors.InvalidInput(fmt.Sprintf("lot %s has nothing left to write off", lot.LotNumber))
		}
		if lot, err = s.lots.Deduct(ctx, lot.ID, qty); err != nil {
			return err
		}

		mv, err := s.ledger.Append(ctx, domain.NewMovement{
			Type:        domain.MovementExpiryWriteOff,
			ProductID:   lot.ProductID,
			LotID:       &lot.ID,
			Quantity:    qty,
			Reason:      strPtr(reason),
			PerformedBy: &principal.ID,
		})
		if err != nil {
			return err
		}
		change = StockChange{Lot: lot, Movement: mv}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithSpan(ctx).Info().
		Str("lot_id", lotID).
		Int("quantity", qty).
		Msg("expired lot written off")

	s.audit.Record(ctx, auditEntry(
		domain.AuditCategoryStock, domain.AuditWriteOff, &principal.ID,
		"lot", change.Lot.ID, change.Lot.LotNumber,
		fmt.Sprintf("Write-off of %d expired units of lot %s", qty, change.Lot.LotNumber),
		map[string]interface{}{
			"quantity":        qty,
			"reason":          reason,
			"movement_number": change.Movement.Number,
		},
	))
	s.publisher.PublishStockAdjusted(ctx, change.Lot, change.Movement, -qty)

	return &change, nil
}
