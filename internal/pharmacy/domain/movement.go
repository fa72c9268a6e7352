package domain

import (
	"fmt"
	"time"
)

// MovementType classifies a stock ledger entry.
type MovementType string

const (
	MovementPurchaseReceipt MovementType = "PURCHASE_RECEIPT"
	MovementServiceIssue    MovementType = "SERVICE_ISSUE"
	MovementTransfer        MovementType = "TRANSFER"
	MovementExpiryWriteOff  MovementType = "EXPIRY_WRITEOFF"
	MovementAdjustment      MovementType = "ADJUSTMENT"
)

// Direction tells whether a movement added to, removed from or left
// untouched the lot's on-hand quantity.
type Direction string

const (
	DirectionIn      Direction = "IN"
	DirectionOut     Direction = "OUT"
	DirectionNeutral Direction = "NEUTRAL"
)

// Number prefixes
const (
	MovementPrefix = "MVT"
	OrderPrefix    = "CMD"
)

var sequenceWidths = map[string]int{
	MovementPrefix: 5,
	OrderPrefix:    4,
}

// FormatNumber renders PREFIX-YYYYMMDD-NNNNN. Values wider than the padding
// are printed in full.
func FormatNumber(prefix string, day time.Time, seq int64) string {
	width, ok := sequenceWidths[prefix]
	if !ok {
		width = 5
	}
	return fmt.Sprintf("%s-%s-%0*d", prefix, day.Format("20060102"), width, seq)
}

// Movement is an immutable ledger entry recording one stock change.
type Movement struct {
	ID                    string       `db:"id" json:"id"`
	Number                string       `db:"number" json:"number"`
	Type                  MovementType `db:"movement_type" json:"movement_type"`
	Direction             Direction    `db:"direction" json:"direction"`
	ProductID             string       `db:"product_id" json:"product_id"`
	LotID                 *string      `db:"lot_id" json:"lot_id,omitempty"`
	Quantity              int          `db:"quantity" json:"quantity"`
	SourceLocationID      *string      `db:"source_location_id" json:"source_location_id,omitempty"`
	DestinationLocationID *string      `db:"destination_location_id" json:"destination_location_id,omitempty"`
	ServiceID             *string      `db:"service_id" json:"service_id,omitempty"`
	OrderID               *string      `db:"order_id" json:"order_id,omitempty"`
	SupplierID            *string      `db:"supplier_id" json:"supplier_id,omitempty"`
	Reason                *string      `db:"reason" json:"reason,omitempty"`
	PerformedBy           *string      `db:"performed_by" json:"performed_by,omitempty"`
	CreatedAt             time.Time    `db:"created_at" json:"created_at"`
}

// NewMovement is the input for recording a movement. The number is assigned
// by the ledger.
type NewMovement struct {
	Type                  MovementType
	Direction             Direction
	ProductID             string
	LotID                 *string
	Quantity              int
	SourceLocationID      *string
	DestinationLocationID *string
	ServiceID             *string
	OrderID               *string
	SupplierID            *string
	Reason                *string
	PerformedBy           *string
}

// DefaultDirection is the direction implied by a movement type. Adjustments
// have none and must be given one explicitly.
func (t MovementType) DefaultDirection() Direction {
	switch t {
	case MovementPurchaseReceipt:
		return DirectionIn
	case MovementServiceIssue, MovementExpiryWriteOff:
		return DirectionOut
	case MovementTransfer:
		return DirectionNeutral
	default:
		return ""
	}
}

// Valid reports whether t is a known movement type.
func (t MovementType) Valid() bool {
	switch t {
	case MovementPurchaseReceipt, MovementServiceIssue, MovementTransfer,
		MovementExpiryWriteOff, MovementAdjustment:
		return true
	}
	return false
}
