// Package handler exposes the pharmacy services over HTTP.
package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/errors"
)

// OrderManager is the order side of the service layer
type OrderManager interface {
	Create(ctx context.Context, in domain.NewOrder) (*domain.Order, error)
	Get(ctx context.Context, id string) (*domain.Order, error)
	ChangeStatus(ctx context.Context, id string, next domain.OrderStatus) (*domain.Order, error)
	Deliver(ctx context.Context, orderID string) (*domain.DeliveryResult, error)
}

// Receiver books supplier receptions
type Receiver interface {
	Receive(ctx context.Context, in domain.Reception) (*domain.ReceptionResult, error)
}

// StockManager covers lot listings and manual stock corrections
type StockManager interface {
	ListLots(ctx context.Context, productID string) ([]domain.Lot, error)
	Adjust(ctx context.Context, lotID string, delta int, reason string) (*service.StockChange, error)
	Transfer(ctx context.Context, lotID string, req service.TransferRequest) (*service.StockChange, error)
	WriteOff(ctx context.Context, lotID, reason string) (*service.StockChange, error)
}

// JournalReader lists audit entries
type JournalReader interface {
	List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error)
}

// PermissionReader renders the caller's permission flags
type PermissionReader interface {
	PermissionMap(ctx context.Context) (map[string]bool, error)
}

// Handlers groups every pharmacy handler for mounting.
type Handlers struct {
	Orders  *OrderHandler
	Stock   *StockHandler
	Journal *JournalHandler
	Health  *HealthHandler
}

// Mount registers the API on r. Everything under /api/v1/pharmacy goes
// through authenticate; /health does not.
func (h *Handlers) Mount(r chi.Router, authenticate func(http.Handler) http.Handler) {
	r.Get("/health", h.Health.Check)

	r.Route("/api/v1/pharmacy", func(r chi.Router) {
		r.Use(authenticate)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.Orders.Create)
			r.Post("/deliver", h.Orders.Deliver)
			r.Get("/{id}", h.Orders.Get)
			r.Patch("/{id}", h.Orders.ChangeStatus)
		})

		r.Route("/stock", func(r chi.Router) {
			r.Post("/reception", h.Stock.Receive)
			r.Post("/lots/{id}/adjust", h.Stock.Adjust)
			r.Post("/lots/{id}/transfer", h.Stock.Transfer)
			r.Post("/lots/{id}/write-off", h.Stock.WriteOff)
		})

		r.Get("/products/{id}/lots", h.Stock.ListLots)
		r.Get("/journal", h.Journal.List)
		r.Get("/me/permissions", h.Journal.Permissions)
	})
}

// idParam returns the {id} path parameter once it parses as a UUID.
func idParam(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		return "", errors.InvalidInput("id must be a valid UUID")
	}
	return id, nil
}
