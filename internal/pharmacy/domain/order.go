package domain

import "time"

// OrderStatus is the lifecycle state of a service order.
type OrderStatus string

const (
	OrderDraft      OrderStatus = "DRAFT"
	OrderPending    OrderStatus = "PENDING"
	OrderValidated  OrderStatus = "VALIDATED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCancelled  OrderStatus = "CANCELLED"
)

// LineStatus tracks delivery progress of a single order line.
type LineStatus string

const (
	LinePending            LineStatus = "PENDING"
	LinePartiallyDelivered LineStatus = "PARTIALLY_DELIVERED"
	LineDelivered          LineStatus = "DELIVERED"
)

// Priority of an order.
type Priority string

const (
	PriorityNormal Priority = "NORMAL"
	PriorityUrgent Priority = "URGENT"
	PriorityVital  Priority = "VITAL"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityNormal, PriorityUrgent, PriorityVital:
		return true
	}
	return false
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderDraft, OrderPending, OrderValidated, OrderInProgress, OrderDelivered, OrderCancelled:
		return true
	}
	return false
}

// Deliverable reports whether stock may be allocated to an order in s.
func (s OrderStatus) Deliverable() bool {
	return s == OrderValidated || s == OrderInProgress
}

// Terminal reports whether s admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return s == OrderDelivered || s == OrderCancelled
}

var manualTransitions = map[OrderStatus][]OrderStatus{
	OrderDraft:     {OrderPending},
	OrderPending:   {OrderValidated, OrderCancelled},
	OrderValidated: {OrderCancelled},
}

// CanTransitionTo reports whether an explicit status change from s to next
// is allowed. Moves into IN_PROGRESS and DELIVERED happen only through
// delivery.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range manualTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AuditAction is the journal action recorded when an order enters s.
func (s OrderStatus) AuditAction() AuditAction {
	switch s {
	case OrderValidated:
		return AuditValidate
	case OrderCancelled:
		return AuditCancel
	case OrderDelivered, OrderInProgress:
		return AuditDeliver
	default:
		return AuditUpdate
	}
}

// Order is a request from a service for quantities of products.
type Order struct {
	ID          string      `db:"id" json:"id"`
	Number      string      `db:"number" json:"number"`
	ServiceID   string      `db:"service_id" json:"service_id"`
	Status      OrderStatus `db:"status" json:"status"`
	Priority    Priority    `db:"priority" json:"priority"`
	Notes       *string     `db:"notes" json:"notes,omitempty"`
	RequestedBy *string     `db:"requested_by" json:"requested_by,omitempty"`
	RequestedAt time.Time   `db:"requested_at" json:"requested_at"`
	UpdatedAt   time.Time   `db:"updated_at" json:"updated_at"`
	Lines       []OrderLine `db:"-" json:"lines"`
}

// OrderLine is a requested product and quantity within an order.
type OrderLine struct {
	ID                string     `db:"id" json:"id"`
	OrderID           string     `db:"order_id" json:"order_id"`
	ProductID         string     `db:"product_id" json:"product_id"`
	RequestedQuantity int        `db:"requested_quantity" json:"requested_quantity"`
	DeliveredQuantity int        `db:"delivered_quantity" json:"delivered_quantity"`
	Status            LineStatus `db:"status" json:"status"`
	Position          int        `db:"position" json:"position"`
}

// Outstanding is what is still owed on the line.
func (l *OrderLine) Outstanding() int {
	if l.DeliveredQuantity >= l.RequestedQuantity {
		return 0
	}
	return l.RequestedQuantity - l.DeliveredQuantity
}

// Record adds qty to the delivered quantity, never beyond the requested
// amount, and refreshes the line status.
func (l *OrderLine) Record(qty int) {
	if qty <= 0 {
		return
	}
	if qty > l.Outstanding() {
		qty = l.Outstanding()
	}
	l.DeliveredQuantity += qty
	l.Status = DeriveLineStatus(l.RequestedQuantity, l.DeliveredQuantity)
}

// DeriveLineStatus maps quantities to a line status.
func DeriveLineStatus(requested, delivered int) LineStatus {
	switch {
	case delivered <= 0:
		return LinePending
	case delivered >= requested:
		return LineDelivered
	default:
		return LinePartiallyDelivered
	}
}

// FullyDelivered reports whether every line has been delivered.
func (o *Order) FullyDelivered() bool {
	for i := range o.Lines {
		if o.Lines[i].Status != LineDelivered {
			return false
		}
	}
	return true
}

// StatusAfterDelivery is the status an order takes at the end of a
// delivery pass. It stays put until some quantity has been delivered.
func (o *Order) StatusAfterDelivery() OrderStatus {
	if o.FullyDelivered() {
		return OrderDelivered
	}
	for i := range o.Lines {
		if o.Lines[i].DeliveredQuantity > 0 {
			return OrderInProgress
		}
	}
	return o.Status
}

// NewOrderLine is one requested line when creating an order.
type NewOrderLine struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

// NewOrder is the input for creating an order.
type NewOrder struct {
	ServiceID string         `json:"service_id" validate:"required,uuid"`
	Priority  Priority       `json:"priority" validate:"omitempty,oneof=NORMAL URGENT VITAL"`
	Notes     *string        `json:"notes,omitempty"`
	Draft     bool           `json:"draft"`
	Lines     []NewOrderLine `json:"lines" validate:"required,min=1,dive"`
}
