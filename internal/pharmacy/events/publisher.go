package events

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// Publisher sends one event. *messaging.Publisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data interface{}) error
}

// PharmacyEventPublisher publishes order and stock events. A nil
// publisher drops everything, which is what tests and brokerless runs get.
type PharmacyEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewPharmacyEventPublisher creates a new pharmacy event publisher
func NewPharmacyEventPublisher(publisher Publisher, log *logger.Logger) *PharmacyEventPublisher {
	return &PharmacyEventPublisher{
		publisher: publisher,
		logger:    log,
	}
}

// NewRabbitPharmacyEventPublisher declares the pharmacy exchange and
// publishes onto it.
func NewRabbitPharmacyEventPublisher(rmq *messaging.RabbitMQ, source string, log *logger.Logger) (*PharmacyEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangePharmacyEvents, source, log)
	if err != nil {
		return nil, err
	}
	return NewPharmacyEventPublisher(publisher, log), nil
}

func performer(ctx context.Context) string {
	if id := actor.FromContext(ctx).IDPtr(); id != nil {
		return *id
	}
	return ""
}

func (p *PharmacyEventPublisher) publish(ctx context.Context, eventType, key, value string, data interface{}) {
	if err := p.publisher.Publish(ctx, eventType, data); err != nil {
		p.logger.Error().Err(err).Str("event_type", eventType).Str(key, value).Msg("failed to publish event")
	}
}

// PublishOrderCreated publishes an order created event
func (p *PharmacyEventPublisher) PublishOrderCreated(ctx context.Context, order *domain.Order) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventOrderCreated, "order_id", order.ID, messaging.OrderCreatedEvent{
		OrderID:     order.ID,
		Number:      order.Number,
		ServiceID:   order.ServiceID,
		Status:      string(order.Status),
		Priority:    string(order.Priority),
		LineCount:   len(order.Lines),
		RequestedBy: performer(ctx),
	})
}

// PublishOrderStatusChanged publishes an explicit status change
func (p *PharmacyEventPublisher) PublishOrderStatusChanged(ctx context.Context, order *domain.Order, old domain.OrderStatus) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventOrderStatusChanged, "order_id", order.ID, messaging.OrderStatusChangedEvent{
		OrderID:   order.ID,
		Number:    order.Number,
		OldStatus: string(old),
		NewStatus: string(order.Status),
		ChangedBy: performer(ctx),
	})
}

// PublishOrderDelivered publishes the outcome of a delivery pass
func (p *PharmacyEventPublisher) PublishOrderDelivered(ctx context.Context, result *domain.DeliveryResult) {
	if p == nil {
		return
	}
	allocations := make([]messaging.AllocatedLot, len(result.Allocations))
	for i, a := range result.Allocations {
		allocations[i] = messaging.AllocatedLot{
			LineID:         a.LineID,
			ProductID:      a.ProductID,
			LotID:          a.LotID,
			LotNumber:      a.LotNumber,
			Quantity:       a.Quantity,
			MovementNumber: a.MovementNumber,
		}
	}
	order := result.Order
	p.publish(ctx, messaging.EventOrderDelivered, "order_id", order.ID, messaging.OrderDeliveredEvent{
		OrderID:     order.ID,
		Number:      order.Number,
		ServiceID:   order.ServiceID,
		OldStatus:   string(result.PreviousStatus),
		NewStatus:   string(order.Status),
		Allocations: allocations,
		DeliveredBy: performer(ctx),
	})
}

// PublishStockReceived publishes a supplier reception
func (p *PharmacyEventPublisher) PublishStockReceived(ctx context.Context, result *domain.ReceptionResult) {
	if p == nil {
		return
	}
	lots := make([]messaging.ReceivedLot, 0, result.Accepted)
	for _, line := range result.Lines {
		if line.Outcome != domain.ReceptionAccepted || line.Lot == nil {
			continue
		}
		lots = append(lots, messaging.ReceivedLot{
			LotID:          line.Lot.ID,
			ProductID:      line.ProductID,
			LotNumber:      line.LotNumber,
			Quantity:       line.Quantity,
			MovementNumber: line.MovementNumber,
		})
	}
	p.publish(ctx, messaging.EventStockReceived, "supplier_id", result.SupplierID, messaging.StockReceivedEvent{
		SupplierID: result.SupplierID,
		Accepted:   result.Accepted,
		Skipped:    result.Skipped,
		Lots:       lots,
		ReceivedBy: performer(ctx),
	})
}

// PublishStockAdjusted publishes an adjustment, transfer or write-off.
// delta is the signed change to the lot's on-hand quantity.
func (p *PharmacyEventPublisher) PublishStockAdjusted(ctx context.Context, lot *domain.Lot, mv *domain.Movement, delta int) {
	if p == nil {
		return
	}
	reason := ""
	if mv.Reason != nil {
		reason = *mv.Reason
	}
	p.publish(ctx, messaging.EventStockAdjusted, "lot_id", lot.ID, messaging.StockAdjustedEvent{
		LotID:          lot.ID,
		ProductID:      lot.ProductID,
		MovementNumber: mv.Number,
		MovementType:   string(mv.Type),
		Delta:          delta,
		NewQuantity:    lot.CurrentQuantity,
		Reason:         reason,
		PerformedBy:    performer(ctx),
	})
}

// PublishStockLow publishes a low stock warning
func (p *PharmacyEventPublisher) PublishStockLow(ctx context.Context, level *domain.StockLevel) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventStockLow, "product_id", level.ProductID, messaging.StockLowEvent{
		ProductID:   level.ProductID,
		ProductName: level.ProductName,
		Available:   level.Available,
		AlertStock:  level.AlertStock,
		SafetyStock: level.SafetyStock,
	})
}

// PublishLotExpired publishes a lot flagged by the expiry sweep
func (p *PharmacyEventPublisher) PublishLotExpired(ctx context.Context, lot *domain.Lot) {
	if p == nil {
		return
	}
	p.publish(ctx, messaging.EventLotExpired, "lot_id", lot.ID, messaging.LotExpiredEvent{
		LotID:      lot.ID,
		ProductID:  lot.ProductID,
		LotNumber:  lot.LotNumber,
		ExpiryDate: lot.ExpiryDate,
		Quantity:   lot.CurrentQuantity,
	})
}
