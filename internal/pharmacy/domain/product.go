package domain

import "time"

// SurveillanceCategory classifies products that need tighter dispensing
// control.
type SurveillanceCategory string

const (
	SurveillanceNormal       SurveillanceCategory = "NORMAL"
	SurveillancePsychotropic SurveillanceCategory = "PSYCHOTROPIC"
	SurveillanceNarcotic     SurveillanceCategory = "NARCOTIC"
	SurveillanceBloodProduct SurveillanceCategory = "BLOOD_PRODUCT"
	SurveillanceOncology     SurveillanceCategory = "ONCOLOGY"
)

// Product is a catalogued pharmaceutical item. Stock is held in lots.
type Product struct {
	ID                   string               `db:"id" json:"id"`
	NationalCode         string               `db:"national_code" json:"national_code"`
	InternalCode         *string              `db:"internal_code" json:"internal_code,omitempty"`
	Name                 string               `db:"name" json:"name"`
	TradeName            *string              `db:"trade_name" json:"trade_name,omitempty"`
	PharmaceuticalForm   string               `db:"pharmaceutical_form" json:"pharmaceutical_form"`
	Dosage               string               `db:"dosage" json:"dosage"`
	ActiveIngredient     *string              `db:"active_ingredient" json:"active_ingredient,omitempty"`
	Unit                 string               `db:"unit" json:"unit"`
	SurveillanceCategory SurveillanceCategory `db:"surveillance_category" json:"surveillance_category"`
	RequiresColdChain    bool                 `db:"requires_cold_chain" json:"requires_cold_chain"`
	SafetyStock          int                  `db:"safety_stock" json:"safety_stock"`
	AlertStock           int                  `db:"alert_stock" json:"alert_stock"`
	IsActive             bool                 `db:"is_active" json:"is_active"`
	CreatedAt            time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time            `db:"updated_at" json:"updated_at"`
}

// StockLevel summarises on-hand stock of a product against its thresholds.
type StockLevel struct {
	ProductID   string `db:"product_id" json:"product_id"`
	ProductName string `db:"product_name" json:"product_name"`
	Available   int    `db:"available" json:"available"`
	AlertStock  int    `db:"alert_stock" json:"alert_stock"`
	SafetyStock int    `db:"safety_stock" json:"safety_stock"`
}

// BelowAlert reports whether the product should raise a low-stock alert.
// A zero threshold disables the alert.
func (s StockLevel) BelowAlert() bool {
	return s.AlertStock > 0 && s.Available <= s.AlertStock
}

// Supplier delivers stock through receptions.
type Supplier struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	CompanyName  string    `db:"company_name" json:"company_name"`
	SupplierType string    `db:"supplier_type" json:"supplier_type"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// Service is a requesting hospital ward.
type Service struct {
	ID        string    `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// StorageLocation is a physical store (main pharmacy, emergency, cold room).
type StorageLocation struct {
	ID           string    `db:"id" json:"id"`
	Code         string    `db:"code" json:"code"`
	Name         string    `db:"name" json:"name"`
	LocationType string    `db:"location_type" json:"location_type"`
	IsActive     bool      `db:"is_active" json:"is_active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}
