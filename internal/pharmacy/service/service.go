// Package service holds the pharmacy business operations: order
// fulfilment, supplier receptions, stock corrections and the expiry sweep.
// Every mutating operation runs in one transaction and records its audit
// entries and events only after that transaction has committed.
package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

var tracer = otel.Tracer("github.com/medflow/pharmacy-backend/internal/pharmacy/service")

// Transactor runs fn in a transaction carried by the ctx it passes on.
// *database.DB satisfies it.
type Transactor interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// LotStore is the lot ledger. LockStock must open every transaction that
// locks lots or appends movements.
type LotStore interface {
	LockStock(ctx context.Context) error
	Get(ctx context.Context, id string) (*domain.Lot, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Lot, error)
	ListAllocatable(ctx context.Context, productID string) ([]domain.Lot, error)
	ListByProduct(ctx context.Context, productID string) ([]domain.Lot, error)
	Deduct(ctx context.Context, lotID string, qty int) (*domain.Lot, error)
	Replenish(ctx context.Context, lotID string, qty int) (*domain.Lot, error)
	Receive(ctx context.Context, in domain.LotReceipt) (*domain.Lot, bool, error)
	MarkExpired(ctx context.Context, day time.Time) ([]domain.Lot, error)
	Expire(ctx context.Context, lotID string) (*domain.Lot, error)
	StockLevel(ctx context.Context, productID string) (*domain.StockLevel, error)
}

// MovementStore appends ledger entries
type MovementStore interface {
	Create(ctx context.Context, m *domain.Movement) error
}

// OrderStore persists orders and their lines
type OrderStore interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetForUpdate(ctx context.Context, id string) (*domain.Order, error)
	UpdateStatus(ctx context.Context, id string, status domain.OrderStatus) error
	UpdateLine(ctx context.Context, line *domain.OrderLine) error
}

// CatalogStore reads reference data
type CatalogStore interface {
	GetProduct(ctx context.Context, id string) (*domain.Product, error)
	GetProducts(ctx context.Context, ids []string) (map[string]*domain.Product, error)
	GetSupplier(ctx context.Context, id string) (*domain.Supplier, error)
	GetService(ctx context.Context, id string) (*domain.Service, error)
	GetLocation(ctx context.Context, id string) (*domain.StorageLocation, error)
}

// PrincipalStore loads principals with their permissions
type PrincipalStore interface {
	Get(ctx context.Context, id string) (*permissions.Principal, error)
}

// AuditStore is the append-only journal
type AuditStore interface {
	Create(ctx context.Context, e *domain.AuditEntry) error
	List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error)
}

// Sequence hands out per-prefix, per-day counters
type Sequence interface {
	Next(ctx context.Context, prefix string, day time.Time) (int64, error)
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
