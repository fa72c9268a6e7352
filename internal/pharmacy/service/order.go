package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// OrderService handles service orders from creation to delivery
type OrderService struct {
	tx        Transactor
	orders    OrderStore
	lots      LotStore
	catalog   CatalogStore
	ledger    *Ledger
	auth      *Authorizer
	audit     *AuditRecorder
	lowStock  *LowStockMonitor
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
}

// NewOrderService creates a new order service
func NewOrderService(
	tx Transactor,
	orders OrderStore,
	lots LotStore,
	catalog CatalogStore,
	ledger *Ledger,
	auth *Authorizer,
	audit *AuditRecorder,
	lowStock *LowStockMonitor,
	publisher *events.PharmacyEventPublisher,
	log *logger.Logger,
) *OrderService {
	return &OrderService{
		tx:        tx,
		orders:    orders,
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

// Create submits an order, or saves it as a draft. Every product must
// exist and be active.
func (s *OrderService) Create(ctx context.Context, in domain.NewOrder) (*domain.Order, error) {
	principal, err := s.auth.Require(ctx, permissions.Orders, permissions.Add)
	if err != nil {
		return nil, err
	}

	if len(in.Lines) == 0 {
		return nil, errors.InvalidInput("order must contain at least one line")
	}
	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityNormal
	}
	if !priority.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown priority %q", in.Priority))
	}
	productIDs := make([]string, 0, len(in.Lines))
	for i, l := range in.Lines {
		if l.Quantity <= 0 {
			return nil, errors.InvalidInput(fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		productIDs = append(productIDs, l.ProductID)
	}

	status := domain.OrderPending
	if in.Draft {
		status = domain.OrderDraft
	}

	order := &domain.Order{
		ServiceID:   in.ServiceID,
		Status:      status,
		Priority:    priority,
		Notes:       in.Notes,
		RequestedBy: &principal.ID,
		Lines:       make([]domain.OrderLine, len(in.Lines)),
	}
	for i, l := range in.Lines {
		order.Lines[i] = domain.OrderLine{
			ProductID:         l.ProductID,
			RequestedQuantity: l.Quantity,
			Status:            domain.LinePending,
		}
	}

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		svc, err := s.catalog.GetService(ctx, in.ServiceID)
		if err != nil {
			return err
		}
		if !svc.IsActive {
			return errors.InvalidInput(fmt.Sprintf("service %s is inactive", svc.Code))
		}

		products, err := s.catalog.GetProducts(ctx, productIDs)
		if err != nil {
			return err
		}
		for _, id := range productIDs {
			p, ok := products[id]
			if !ok {
				return errors.NotFound("product")
			}
			if !p.IsActive {
				return errors.InvalidInput(fmt.Sprintf("product %s is inactive", p.Name))
			}
		}

		number, err := s.ledger.NextOrderNumber(ctx)
		if err != nil {
			return err
		}
		order.Number = number
		return s.orders.Create(ctx, order)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithSpan(ctx).Info().
		Str("order_id", order.ID).
		Str("number", order.Number).
		Str("status", string(order.Status)).
		Msg("order created")

	s.audit.Record(ctx, auditEntry(
		domain.AuditCategoryOrder, domain.AuditCreate, &principal.ID,
		"order", order.ID, order.Number,
		fmt.Sprintf("Order %s created", order.Number),
		map[string]interface{}{
			"service_id": order.ServiceID,
			"priority":   order.Priority,
			"status":     order.Status,
			"lines":      len(order.Lines),
		},
	))
	s.publisher.PublishOrderCreated(ctx, order)

	return order, nil
}

// Get returns an order with its lines
func (s *OrderService) Get(ctx context.Context, id string) (*domain.Order, error) {
	if _, err := s.auth.Require(ctx, permissions.Orders, permissions.View); err != nil {
		return nil, err
	}
	return s.orders.Get(ctx, id)
}

// ChangeStatus applies an explicit status change. IN_PROGRESS and
// DELIVERED are reached only through Deliver.
func (s *OrderService) ChangeStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error) {
	principal, err := s.auth.Require(ctx, permissions.Orders, permissions.Change)
	if err != nil {
		return nil, err
	}
	if !next.Valid() {
		return nil, errors.InvalidInput(fmt.Sprintf("unknown order status %q", next))
	}

	var order *domain.Order
	var previous domain.OrderStatus
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		o, err := s.orders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !o.Status.CanTransitionTo(next) {
			return errors.InvalidOrderState(o.Number, string(o.Status), "moved to "+string(next))
		}
		if err := s.orders.UpdateStatus(ctx, o.ID, next); err != nil {
			return err
		}
		previous = o.Status
		o.Status = next
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithSpan(ctx).Info().
		Str("order_id", order.ID).
		Str("from", string(previous)).
		Str("to", string(next)).
		Msg("order status changed")

	entry := auditEntry(
		domain.AuditCategoryOrder, next.AuditAction(), &principal.ID,
		"order", order.ID, order.Number,
		fmt.Sprintf("Order %s moved from %s to %s", order.Number, previous, next),
		nil,
	)
	entry.OldStatus = statusPtr(previous)
	entry.NewStatus = statusPtr(next)
	s.audit.Record(ctx, entry)
	s.publisher.PublishOrderStatusChanged(ctx, order, previous)

	return order, nil
}

// Deliver allocates stock to every outstanding line, earliest expiry
// first. Shortages leave lines partially delivered rather than failing.
// The order row stays locked for the whole pass so concurrent deliveries
// of the same order run one after the other.
func (s *OrderService) Deliver(ctx context.Context, orderID string) (*domain.DeliveryResult, error) {
	ctx, span := tracer.Start(ctx, "OrderService.Deliver", trace.WithAttributes(
		attribute.String("order.id", orderID),
	))
	defer span.End()

	principal, err := s.auth.Require(ctx, permissions.Orders, permissions.Change)
	if err != nil {
		return nil, err
	}

	var result *domain.DeliveryResult
	var touched []string
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		order, err := s.orders.GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !order.Status.Deliverable() {
			return errors.InvalidOrderState(order.Number, string(order.Status), "delivered")
		}
		// The order row is locked before the stock lock. Nothing that holds
		// the stock lock ever waits on an order row.
		if err := s.lots.LockStock(ctx); err != nil {
			return err
		}

		result = &domain.DeliveryResult{
			Order:          order,
			PreviousStatus: order.Status,
			Allocations:    []domain.Allocation{},
		}
		touched = touched[:0]

		for i := range order.Lines {
			line := &order.Lines[i]
			allocations, err := s.allocateLine(ctx, order, line, principal.ID)
			if err != nil {
				return err
			}
			if len(allocations) == 0 {
				continue
			}
			delivered := 0
			for _, a := range allocations {
				delivered += a.Quantity
			}
			line.Record(delivered)
			if err := s.orders.UpdateLine(ctx, line); err != nil {
				return err
			}
			result.Allocations = append(result.Allocations, allocations...)
			touched = append(touched, line.ProductID)
		}

		next := order.StatusAfterDelivery()
		if next != order.Status {
			if err := s.orders.UpdateStatus(ctx, order.ID, next); err != nil {
				return err
			}
			order.Status = next
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	order := result.Order
	span.SetAttributes(
		attribute.String("order.number", order.Number),
		attribute.String("order.status", string(order.Status)),
		attribute.Int("delivery.lots", len(result.Allocations)),
		attribute.Int("delivery.quantity", result.DeliveredQuantity()),
	)
	s.logger.WithSpan(ctx).Info().
		Str("order_id", order.ID).
		Str("number", order.Number).
		Str("status", string(order.Status)).
		Int("allocations", len(result.Allocations)).
		Int("quantity", result.DeliveredQuantity()).
		Msg("order delivered")

	allocations := make([]map[string]interface{}, len(result.Allocations))
	for i, a := range result.Allocations {
		allocations[i] = map[string]interface{}{
			"line_id":         a.LineID,
			"product_id":      a.ProductID,
			"lot_id":          a.LotID,
			"lot_number":      a.LotNumber,
			"quantity":        a.Quantity,
			"movement_number": a.MovementNumber,
		}
	}
	entry := auditEntry(
		domain.AuditCategoryOrder, domain.AuditDeliver, &principal.ID,
		"order", order.ID, order.Number,
		fmt.Sprintf("Order %s delivered: %d units from %d lots", order.Number, result.DeliveredQuantity(), len(result.Allocations)),
		map[string]interface{}{"allocations": allocations},
	)
	entry.OldStatus = statusPtr(result.PreviousStatus)
	entry.NewStatus = statusPtr(order.Status)
	s.audit.Record(ctx, entry)
	s.publisher.PublishOrderDelivered(ctx, result)
	s.lowStock.Check(ctx, touched...)

	return result, nil
}

// allocateLine draws the line's outstanding quantity from locked lots in
// expiry order. A lot that can no longer cover its share is passed over.
func (s *OrderService) allocateLine(ctx context.Context, order *domain.Order, line *domain.OrderLine, performedBy string) ([]domain.Allocation, error) {
	remaining := line.Outstanding()
	if remaining == 0 {
		return nil, nil
	}

	lots, err := s.lots.ListAllocatable(ctx, line.ProductID)
	if err != nil {
		return nil, err
	}

	var allocations []domain.Allocation
	cursor := domain.NewLotCursor(lots)
	for lot, ok := cursor.Next(); ok && remaining > 0; lot, ok = cursor.Next() {
		qty := domain.Take(lot, remaining)
		if qty == 0 {
			continue
		}

		if _, err := s.lots.Deduct(ctx, lot.ID, qty); err != nil {
			if errors.Is(err, errors.ErrInsufficientStock) {
				continue
			}
			return nil, err
		}

		lotID := lot.ID
		mv, err := s.ledger.Append(ctx, domain.NewMovement{
			Type:        domain.MovementServiceIssue,
			ProductID:   line.ProductID,
			LotID:       &lotID,
			Quantity:    qty,
			ServiceID:   &order.ServiceID,
			OrderID:     &order.ID,
			PerformedBy: &performedBy,
		})
		if err != nil {
			return nil, err
		}

		allocations = append(allocations, domain.Allocation{
			LineID:         line.ID,
			ProductID:      line.ProductID,
			LotID:          lot.ID,
			LotNumber:      lot.LotNumber,
			ExpiryDate:     lot.ExpiryDate,
			Quantity:       qty,
			MovementNumber: mv.Number,
		})
		remaining -= qty
	}
	return allocations, nil
}
