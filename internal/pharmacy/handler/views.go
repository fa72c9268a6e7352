package handler

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/i18n"
)

// Responses carry internal enum values plus a label in the caller's locale.

type orderLineView struct {
	domain.OrderLine
	StatusLabel string `json:"status_label"`
}

type orderView struct {
	*domain.Order
	StatusLabel   string          `json:"status_label"`
	PriorityLabel string          `json:"priority_label"`
	Lines         []orderLineView `json:"lines"`
}

func newOrderView(ctx context.Context, o *domain.Order) orderView {
	l := i18n.LocalizerFromContext(ctx)
	v := orderView{
		Order:         o,
		StatusLabel:   l.Label("order_status", string(o.Status)),
		PriorityLabel: l.Label("priority", string(o.Priority)),
		Lines:         make([]orderLineView, len(o.Lines)),
	}
	for i, line := range o.Lines {
		v.Lines[i] = orderLineView{OrderLine: line, StatusLabel: l.Label("line_status", string(line.Status))}
	}
	return v
}

type deliveryView struct {
	Order             orderView           `json:"order"`
	PreviousStatus    domain.OrderStatus  `json:"previous_status"`
	Allocations       []domain.Allocation `json:"allocations"`
	DeliveredQuantity int                 `json:"delivered_quantity"`
}

func newDeliveryView(ctx context.Context, r *domain.DeliveryResult) deliveryView {
	return deliveryView{
		Order:             newOrderView(ctx, r.Order),
		PreviousStatus:    r.PreviousStatus,
		Allocations:       r.Allocations,
		DeliveredQuantity: r.DeliveredQuantity(),
	}
}

type lotView struct {
	domain.Lot
	Available   int    `json:"available"`
	StatusLabel string `json:"status_label"`
}

func newLotView(l *i18n.Localizer, lot domain.Lot) lotView {
	return lotView{Lot: lot, Available: lot.Available(), StatusLabel: l.Label("lot_status", string(lot.Status))}
}

type receptionLineView struct {
	domain.ReceptionLineResult
	OutcomeLabel string `json:"outcome_label"`
}

type receptionView struct {
	SupplierID string              `json:"supplier_id"`
	Accepted   int                 `json:"accepted"`
	Skipped    int                 `json:"skipped"`
	Lines      []receptionLineView `json:"lines"`
}

func newReceptionView(ctx context.Context, r *domain.ReceptionResult) receptionView {
	l := i18n.LocalizerFromContext(ctx)
	v := receptionView{
		SupplierID: r.SupplierID,
		Accepted:   r.Accepted,
		Skipped:    r.Skipped,
		Lines:      make([]receptionLineView, len(r.Lines)),
	}
	for i, line := range r.Lines {
		v.Lines[i] = receptionLineView{ReceptionLineResult: line, OutcomeLabel: l.Label("reception_outcome", string(line.Outcome))}
	}
	return v
}

type movementView struct {
	domain.Movement
	TypeLabel string `json:"type_label"`
}

type stockChangeView struct {
	Lot      lotView      `json:"lot"`
	Movement movementView `json:"movement"`
}

func newStockChangeView(ctx context.Context, c *service.StockChange) stockChangeView {
	l := i18n.LocalizerFromContext(ctx)
	return stockChangeView{
		Lot:      newLotView(l, *c.Lot),
		Movement: movementView{Movement: *c.Movement, TypeLabel: l.Label("movement_type", string(c.Movement.Type))},
	}
}
