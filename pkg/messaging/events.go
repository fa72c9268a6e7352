package messaging

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types
const (
	// User events, consumed to keep principals in sync
	EventUserCreated            = "user.created"
	EventUserUpdated            = "user.updated"
	EventUserDeleted            = "user.deleted"
	EventRolePermissionsChanged = "user.role.permissions_changed"

	// Order events
	EventOrderCreated       = "pharmacy.order.created"
	EventOrderStatusChanged = "pharmacy.order.status_changed"
	EventOrderDelivered     = "pharmacy.order.delivered"

	// Stock events
	EventStockReceived = "pharmacy.stock.received"
	EventStockAdjusted = "pharmacy.stock.adjusted"
	EventStockLow      = "pharmacy.stock.low"
	EventLotExpired    = "pharmacy.lot.expired"

	// Audit events
	EventAuditLogCreated = "audit.log.created"
)

// Exchange names
const (
	ExchangeUserEvents     = "user.events"
	ExchangePharmacyEvents = "pharmacy.events"
	ExchangeAuditEvents    = "audit.events"
)

// Event is the base event structure
type Event struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	Source        string          `json:"source"`
	Timestamp     time.Time       `json:"timestamp"`
	CorrelationID string          `json:"correlation_id"`
	Data          json.RawMessage `json:"data"`
}

// NewEvent creates a new event with the given type and data
func NewEvent(eventType, source, correlationID string, data interface{}) (*Event, error) {
	dataBytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:            GenerateEventID(),
		Type:          eventType,
		Source:        source,
		Timestamp:     time.Now().UTC(),
		CorrelationID: correlationID,
		Data:          dataBytes,
	}, nil
}

// UnmarshalData unmarshals the event data into the provided struct
func (e *Event) UnmarshalData(v interface{}) error {
	return json.Unmarshal(e.Data, v)
}

// User Events

// UserEvent carries the authorization-relevant snapshot of a user. It is
// the payload of both user.created and user.updated.
type UserEvent struct {
	UserID      string  `json:"user_id"`
	Username    string  `json:"username"`
	RoleID      *string `json:"role_id,omitempty"`
	IsSuperuser bool    `json:"is_superuser"`
	IsActive    bool    `json:"is_active"`
	ServiceID   *string `json:"service_id,omitempty"`
}

// UserDeletedEvent is published when a user is deleted
type UserDeletedEvent struct {
	UserID string `json:"user_id"`
}

// RolePermissionsChangedEvent carries the full grant list of a role.
// Grants may use "resource.*" and "*".
type RolePermissionsChangedEvent struct {
	RoleID      string   `json:"role_id"`
	RoleName    string   `json:"role_name"`
	Permissions []string `json:"permissions"`
}

// Order Events

// OrderCreatedEvent is published when a service submits an order
type OrderCreatedEvent struct {
	OrderID     string `json:"order_id"`
	Number      string `json:"number"`
	ServiceID   string `json:"service_id"`
	Status      string `json:"status"`
	Priority    string `json:"priority"`
	LineCount   int    `json:"line_count"`
	RequestedBy string `json:"requested_by,omitempty"`
}

// OrderStatusChangedEvent is published on explicit status changes
type OrderStatusChangedEvent struct {
	OrderID   string `json:"order_id"`
	Number    string `json:"number"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
	ChangedBy string `json:"changed_by,omitempty"`
}

// AllocatedLot is one lot drawn for an order line
type AllocatedLot struct {
	LineID         string `json:"line_id"`
	ProductID      string `json:"product_id"`
	LotID          string `json:"lot_id"`
	LotNumber      string `json:"lot_number"`
	Quantity       int    `json:"quantity"`
	MovementNumber string `json:"movement_number"`
}

// OrderDeliveredEvent is published after every delivery pass
type OrderDeliveredEvent struct {
	OrderID     string         `json:"order_id"`
	Number      string         `json:"number"`
	ServiceID   string         `json:"service_id"`
	OldStatus   string         `json:"old_status"`
	NewStatus   string         `json:"new_status"`
	Allocations []AllocatedLot `json:"allocations"`
	DeliveredBy string         `json:"delivered_by,omitempty"`
}

// Stock Events

// ReceivedLot is one accepted reception line
type ReceivedLot struct {
	LotID          string `json:"lot_id"`
	ProductID      string `json:"product_id"`
	LotNumber      string `json:"lot_number"`
	Quantity       int    `json:"quantity"`
	MovementNumber string `json:"movement_number"`
}

// StockReceivedEvent is published after a supplier reception
type StockReceivedEvent struct {
	SupplierID string        `json:"supplier_id"`
	Accepted   int           `json:"accepted"`
	Skipped    int           `json:"skipped"`
	Lots       []ReceivedLot `json:"lots"`
	ReceivedBy string        `json:"received_by,omitempty"`
}

// StockAdjustedEvent is published for adjustments, transfers and write-offs
type StockAdjustedEvent struct {
	LotID          string `json:"lot_id"`
	ProductID      string `json:"product_id"`
	MovementNumber string `json:"movement_number"`
	MovementType   string `json:"movement_type"`
	Delta          int    `json:"delta"`
	NewQuantity    int    `json:"new_quantity"`
	Reason         string `json:"reason,omitempty"`
	PerformedBy    string `json:"performed_by,omitempty"`
}

// StockLowEvent is published when available stock falls to the alert level
type StockLowEvent struct {
	ProductID   string `json:"product_id"`
	ProductName string `json:"product_name"`
	Available   int    `json:"available"`
	AlertStock  int    `json:"alert_stock"`
	SafetyStock int    `json:"safety_stock"`
}

// LotExpiredEvent is published when the sweep marks a lot expired
type LotExpiredEvent struct {
	LotID      string    `json:"lot_id"`
	ProductID  string    `json:"product_id"`
	LotNumber  string    `json:"lot_number"`
	ExpiryDate time.Time `json:"expiry_date"`
	Quantity   int       `json:"quantity"`
}

// Audit Events

// AuditLogCreatedEvent is published when a journal entry is written
type AuditLogCreatedEvent struct {
	LogID      string         `json:"log_id"`
	UserID     string         `json:"user_id"`
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	ResourceID string         `json:"resource_id"`
	Changes    map[string]any `json:"changes,omitempty"`
}

// GenerateEventID generates a unique event ID
func GenerateEventID() string {
	return uuid.New().String()
}
