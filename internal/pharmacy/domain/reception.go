package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// ReceptionLine is one received lot of a supplier delivery.
// A product id that names no product is reported as a skipped line, so
// product_id is only required here.
type ReceptionLine struct {
	ProductID       string              `json:"product_id" validate:"required"`
	LotNumber       string              `json:"lot_number" validate:"required,max=50"`
	Quantity        int                 `json:"quantity" validate:"gt=0"`
	ManufactureDate *time.Time          `json:"manufacture_date,omitempty"`
	ExpiryDate      *time.Time          `json:"expiry_date" validate:"required"`
	UnitPrice       decimal.NullDecimal `json:"unit_price"`
}

// Reception is a supplier delivery made of several lots.
type Reception struct {
	SupplierID    string          `json:"supplier_id" validate:"required,uuid"`
	DeliveryNote  *string         `json:"delivery_note,omitempty"`
	ReceptionDate *time.Time      `json:"reception_date,omitempty"`
	LocationID    *string         `json:"location_id,omitempty" validate:"omitempty,uuid"`
	Lines         []ReceptionLine `json:"lines" validate:"required,min=1,dive"`
}

// Validate checks the structure of the reception before any stock is
// touched. Unknown products are not a structural error.
func (r *Reception) Validate() error {
	if strings.TrimSpace(r.SupplierID) == "" {
		return errors.InvalidInput("supplier_id is required")
	}
	if len(r.Lines) == 0 {
		return errors.InvalidInput("reception must contain at least one line")
	}
	for i, l := range r.Lines {
		if strings.TrimSpace(l.ProductID) == "" {
			return errors.InvalidInput(fmt.Sprintf("line %d: product_id is required", i+1))
		}
		if strings.TrimSpace(l.LotNumber) == "" {
			return errors.InvalidInput(fmt.Sprintf("line %d: lot_number is required", i+1))
		}
		if l.Quantity <= 0 {
			return errors.InvalidInput(fmt.Sprintf("line %d: quantity must be positive", i+1))
		}
		if l.ExpiryDate == nil || l.ExpiryDate.IsZero() {
			return errors.InvalidInput(fmt.Sprintf("line %d: expiry_date is required", i+1))
		}
		if l.ManufactureDate != nil && l.ManufactureDate.After(*l.ExpiryDate) {
			return errors.InvalidInput(fmt.Sprintf("line %d: manufacture_date after expiry_date", i+1))
		}
		if l.UnitPrice.Valid && l.UnitPrice.Decimal.IsNegative() {
			return errors.InvalidInput(fmt.Sprintf("line %d: unit_price must not be negative", i+1))
		}
	}
	return nil
}

// ReceptionOutcome says what happened to a reception line.
type ReceptionOutcome string

const (
	ReceptionAccepted ReceptionOutcome = "ACCEPTED"
	ReceptionSkipped  ReceptionOutcome = "SKIPPED"
)

// Skip reasons
const (
	SkipUnknownProduct  = "unknown_product"
	SkipInactiveProduct = "inactive_product"
)

// ReceptionLineResult reports the fate of one line.
type ReceptionLineResult struct {
	Index          int              `json:"index"`
	ProductID      string           `json:"product_id"`
	LotNumber      string           `json:"lot_number"`
	Quantity       int              `json:"quantity"`
	Outcome        ReceptionOutcome `json:"outcome"`
	Reason         string           `json:"reason,omitempty"`
	Lot            *Lot             `json:"lot,omitempty"`
	MovementNumber string           `json:"movement_number,omitempty"`
}

// ReceptionResult summarises a reception.
type ReceptionResult struct {
	SupplierID string                `json:"supplier_id"`
	Lines      []ReceptionLineResult `json:"lines"`
	Accepted   int                   `json:"accepted"`
	Skipped    int                   `json:"skipped"`
}
