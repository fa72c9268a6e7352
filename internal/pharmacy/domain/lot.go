package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// LotStatus is the internal lifecycle state of a lot.
type LotStatus string

const (
	LotAvailable LotStatus = "AVAILABLE"
	LotExhausted LotStatus = "EXHAUSTED"
	LotExpired   LotStatus = "EXPIRED"
)

// Lot is a quantity of one product sharing a manufacturer lot number and an
// expiry date. Quantities satisfy 0 <= reserved <= current <= initial.
type Lot struct {
	ID               string              `db:"id" json:"id"`
	ProductID        string              `db:"product_id" json:"product_id"`
	LotNumber        string              `db:"lot_number" json:"lot_number"`
	ManufactureDate  *time.Time          `db:"manufacture_date" json:"manufacture_date,omitempty"`
	ExpiryDate       time.Time           `db:"expiry_date" json:"expiry_date"`
	ReceptionDate    time.Time           `db:"reception_date" json:"reception_date"`
	InitialQuantity  int                 `db:"initial_quantity" json:"initial_quantity"`
	CurrentQuantity  int                 `db:"current_quantity" json:"current_quantity"`
	ReservedQuantity int                 `db:"reserved_quantity" json:"reserved_quantity"`
	UnitPrice        decimal.NullDecimal `db:"unit_price" json:"unit_price"`
	Status           LotStatus           `db:"status" json:"status"`
	CreatedAt        time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time           `db:"updated_at" json:"updated_at"`
}

// Available is the quantity on hand that is not reserved.
func (l *Lot) Available() int {
	return l.CurrentQuantity - l.ReservedQuantity
}

// Allocatable reports whether the lot may be drawn from by an allocation.
func (l *Lot) Allocatable() bool {
	return l.Status == LotAvailable && l.CurrentQuantity > 0
}

// ExpiredOn reports whether the expiry date lies strictly before day.
func (l *Lot) ExpiredOn(day time.Time) bool {
	return DateOf(l.ExpiryDate).Before(DateOf(day))
}

// Valid reports whether the quantity invariant holds.
func (l *Lot) Valid() bool {
	return l.ReservedQuantity >= 0 &&
		l.ReservedQuantity <= l.CurrentQuantity &&
		l.CurrentQuantity <= l.InitialQuantity
}

// StatusAfterDeduction returns the status a lot takes once its on-hand
// quantity becomes current. Expired lots stay expired.
func StatusAfterDeduction(status LotStatus, current int) LotStatus {
	if current == 0 && status == LotAvailable {
		return LotExhausted
	}
	return status
}

// SortForAllocation orders lots earliest expiry first, breaking ties on id
// so the order is deterministic.
func SortForAllocation(lots []Lot) {
	sort.SliceStable(lots, func(i, j int) bool {
		ei, ej := DateOf(lots[i].ExpiryDate), DateOf(lots[j].ExpiryDate)
		if !ei.Equal(ej) {
			return ei.Before(ej)
		}
		return lots[i].ID < lots[j].ID
	})
}

// LotCursor walks candidate lots in allocation order. It can be reset and
// walked again.
type LotCursor struct {
	lots []Lot
	pos  int
}

// NewLotCursor copies lots, drops anything not allocatable and sorts the
// rest for allocation.
func NewLotCursor(lots []Lot) *LotCursor {
	candidates := make([]Lot, 0, len(lots))
	for _, l := range lots {
		if l.Allocatable() {
			candidates = append(candidates, l)
		}
	}
	SortForAllocation(candidates)
	return &LotCursor{lots: candidates}
}

// Next returns the next lot, or false once exhausted.
func (c *LotCursor) Next() (*Lot, bool) {
	if c.pos >= len(c.lots) {
		return nil, false
	}
	l := &c.lots[c.pos]
	c.pos++
	return l, true
}

// Reset rewinds the cursor to the first lot.
func (c *LotCursor) Reset() {
	c.pos = 0
}

// Len is the number of candidate lots.
func (c *LotCursor) Len() int {
	return len(c.lots)
}

// LotReceipt is one lot's worth of incoming stock.
type LotReceipt struct {
	ProductID       string
	LotNumber       string
	Quantity        int
	ManufactureDate *time.Time
	ExpiryDate      time.Time
	ReceptionDate   time.Time
	UnitPrice       decimal.NullDecimal
}

// DateOf truncates t to midnight UTC of its calendar day.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
