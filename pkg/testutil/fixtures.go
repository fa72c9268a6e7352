package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ProductFixture represents test product data
type ProductFixture struct {
	ID           string
	NationalCode string
	Name         string
	Form         string
	Dosage       string
	AlertStock   int
	SafetyStock  int
	IsActive     bool
}

// SupplierFixture represents test supplier data
type SupplierFixture struct {
	ID          string
	Code        string
	CompanyName string
	IsActive    bool
}

// ServiceFixture represents a requesting ward
type ServiceFixture struct {
	ID       string
	Code     string
	Name     string
	IsActive bool
}

// LocationFixture represents a storage location
type LocationFixture struct {
	ID           string
	Code         string
	Name         string
	LocationType string
}

// LotFixture represents a lot already in stock
type LotFixture struct {
	ID         string
	ProductID  string
	LotNumber  string
	ExpiryDate time.Time
	Quantity   int
	Reserved   int
	Status     string
}

// RoleFixture represents a role and its granted permissions, written as
// "resource.action".
type RoleFixture struct {
	ID          string
	Name        string
	Permissions []string
}

// PrincipalFixture represents a synced user
type PrincipalFixture struct {
	ID          string
	Username    string
	RoleID      *string
	IsSuperuser bool
	IsActive    bool
	ServiceID   *string
}

// FixtureFactory creates test fixtures with sensible defaults. Insert
// methods require a database; the builders do not.
type FixtureFactory struct {
	db       *sqlx.DB
	mu       sync.Mutex
	sequence int
}

// NewFixtureFactory creates a new fixture factory. db may be nil.
func NewFixtureFactory(db *sqlx.DB) *FixtureFactory {
	return &FixtureFactory{db: db}
}

// nextSeq returns the next sequence number for unique values
func (f *FixtureFactory) nextSeq() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sequence++
	return f.sequence
}

// Product creates a product fixture with defaults
func (f *FixtureFactory) Product(opts ...func(*ProductFixture)) ProductFixture {
	seq := f.nextSeq()
	p := ProductFixture{
		ID:           uuid.New().String(),
		NationalCode: fmt.Sprintf("NC-%06d", seq),
		Name:         fmt.Sprintf("Paracetamol %d", seq),
		Form:         "tablet",
		Dosage:       "500mg",
		IsActive:     true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// WithAlertStock sets the low-stock threshold
func WithAlertStock(n int) func(*ProductFixture) {
	return func(p *ProductFixture) {
		p.AlertStock = n
	}
}

// Supplier creates a supplier fixture with defaults
func (f *FixtureFactory) Supplier() SupplierFixture {
	seq := f.nextSeq()
	return SupplierFixture{
		ID:          uuid.New().String(),
		Code:        fmt.Sprintf("SUP-%04d", seq),
		CompanyName: fmt.Sprintf("Supplier %d", seq),
		IsActive:    true,
	}
}

// Service creates a ward fixture with defaults
func (f *FixtureFactory) Service() ServiceFixture {
	seq := f.nextSeq()
	return ServiceFixture{
		ID:       uuid.New().String(),
		Code:     fmt.Sprintf("SVC-%04d", seq),
		Name:     fmt.Sprintf("Ward %d", seq),
		IsActive: true,
	}
}

// Location creates a storage location fixture
func (f *FixtureFactory) Location(locationType string) LocationFixture {
	seq := f.nextSeq()
	return LocationFixture{
		ID:           uuid.New().String(),
		Code:         fmt.Sprintf("LOC-%04d", seq),
		Name:         fmt.Sprintf("Store %d", seq),
		LocationType: locationType,
	}
}

// Lot creates an available lot fixture for productID
func (f *FixtureFactory) Lot(productID string, qty int, expiry time.Time) LotFixture {
	seq := f.nextSeq()
	return LotFixture{
		ID:         uuid.New().String(),
		ProductID:  productID,
		LotNumber:  fmt.Sprintf("LOT-%05d", seq),
		ExpiryDate: expiry,
		Quantity:   qty,
		Status:     "AVAILABLE",
	}
}

// Role creates a role fixture granting perms
func (f *FixtureFactory) Role(perms ...string) RoleFixture {
	seq := f.nextSeq()
	return RoleFixture{
		ID:          uuid.New().String(),
		Name:        fmt.Sprintf("role_%d", seq),
		Permissions: perms,
	}
}

// PharmacistRole grants everything a pharmacist needs day to day.
func (f *FixtureFactory) PharmacistRole() RoleFixture {
	r := f.Role(
		"orders.view", "orders.add", "orders.change",
		"lots.view", "lots.add", "lots.change",
		"movements.view", "movements.add",
		"products.view", "journal.view",
	)
	r.Name = "pharmacist"
	return r
}

// Principal creates an active principal holding role
func (f *FixtureFactory) Principal(role *RoleFixture) PrincipalFixture {
	seq := f.nextSeq()
	p := PrincipalFixture{
		ID:       uuid.New().String(),
		Username: fmt.Sprintf("user%d", seq),
		IsActive: true,
	}
	if role != nil {
		p.RoleID = &role.ID
	}
	return p
}

// InsertProduct writes p
func (f *FixtureFactory) InsertProduct(ctx context.Context, p ProductFixture) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO products (id, national_code, name, pharmaceutical_form, dosage, alert_stock, safety_stock, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.NationalCode, p.Name, p.Form, p.Dosage, p.AlertStock, p.SafetyStock, p.IsActive)
	return err
}

// InsertSupplier writes s
func (f *FixtureFactory) InsertSupplier(ctx context.Context, s SupplierFixture) error {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO suppliers (id, code, company_name, is_active) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Code, s.CompanyName, s.IsActive)
	return err
}

// InsertService writes s
func (f *FixtureFactory) InsertService(ctx context.Context, s ServiceFixture) error {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO services (id, code, name, is_active) VALUES ($1, $2, $3, $4)`,
		s.ID, s.Code, s.Name, s.IsActive)
	return err
}

// InsertLocation writes l
func (f *FixtureFactory) InsertLocation(ctx context.Context, l LocationFixture) error {
	_, err := f.db.ExecContext(ctx,
		`INSERT INTO storage_locations (id, code, name, location_type) VALUES ($1, $2, $3, $4)`,
		l.ID, l.Code, l.Name, l.LocationType)
	return err
}

// InsertLot writes l with initial and current quantity equal
func (f *FixtureFactory) InsertLot(ctx context.Context, l LotFixture) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO lots (id, product_id, lot_number, expiry_date, reception_date,
			initial_quantity, current_quantity, reserved_quantity, status)
		VALUES ($1, $2, $3, $4, CURRENT_DATE, $5, $5, $6, $7)`,
		l.ID, l.ProductID, l.LotNumber, l.ExpiryDate, l.Quantity, l.Reserved, l.Status)
	return err
}

// InsertRole writes the role and its permissions
func (f *FixtureFactory) InsertRole(ctx context.Context, r RoleFixture) error {
	if _, err := f.db.ExecContext(ctx, `INSERT INTO roles (id, name) VALUES ($1, $2)`, r.ID, r.Name); err != nil {
		return err
	}
	for _, perm := range r.Permissions {
		resource, action, ok := strings.Cut(perm, ".")
		if !ok {
			return fmt.Errorf("malformed permission %q", perm)
		}
		if _, err := f.db.ExecContext(ctx,
			`INSERT INTO role_permissions (role_id, resource, action) VALUES ($1, $2, $3)`,
			r.ID, resource, action); err != nil {
			return err
		}
	}
	return nil
}

// InsertPrincipal writes p
func (f *FixtureFactory) InsertPrincipal(ctx context.Context, p PrincipalFixture) error {
	_, err := f.db.ExecContext(ctx, `
		INSERT INTO principals (id, username, role_id, is_superuser, is_active, service_id)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Username, p.RoleID, p.IsSuperuser, p.IsActive, p.ServiceID)
	return err
}
