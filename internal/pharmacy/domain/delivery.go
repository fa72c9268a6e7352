package domain

import "time"

// Allocation is the quantity drawn from one lot for one order line.
type Allocation struct {
	LineID         string    `json:"line_id"`
	ProductID      string    `json:"product_id"`
	LotID          string    `json:"lot_id"`
	LotNumber      string    `json:"lot_number"`
	ExpiryDate     time.Time `json:"expiry_date"`
	Quantity       int       `json:"quantity"`
	MovementNumber string    `json:"movement_number"`
}

// DeliveryResult is what one delivery pass produced.
type DeliveryResult struct {
	Order          *Order       `json:"order"`
	PreviousStatus OrderStatus  `json:"previous_status"`
	Allocations    []Allocation `json:"allocations"`
}

// DeliveredQuantity sums the allocations of this pass.
func (r *DeliveryResult) DeliveredQuantity() int {
	total := 0
	for _, a := range r.Allocations {
		total += a.Quantity
	}
	return total
}

// Take is how much of a lot goes to a line still owed remaining units.
func Take(lot *Lot, remaining int) int {
	avail := lot.Available()
	if avail <= 0 || remaining <= 0 {
		return 0
	}
	if avail < remaining {
		return avail
	}
	return remaining
}
