package handler

import (
	"net/http"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// OrderHandler handles order endpoints
type OrderHandler struct {
	service OrderManager
	logger  *logger.Logger
}

// NewOrderHandler creates a new order handler
func NewOrderHandler(svc OrderManager, log *logger.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  log,
	}
}

type deliverRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid"`
}

type changeStatusRequest struct {
	Status domain.OrderStatus `json:"status" validate:"required,oneof=DRAFT PENDING VALIDATED IN_PROGRESS DELIVERED CANCELLED"`
}

// Create creates an order
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.NewOrder
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	order, err := h.service.Create(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, newOrderView(r.Context(), order))
}

// Get gets an order by ID
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	order, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newOrderView(r.Context(), order))
}

// ChangeStatus applies an explicit status change
func (h *OrderHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req changeStatusRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	order, err := h.service.ChangeStatus(r.Context(), id, req.Status)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newOrderView(r.Context(), order))
}

// Deliver runs one delivery pass over an order
func (h *OrderHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	var req deliverRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.service.Deliver(r.Context(), req.OrderID)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	h.logger.Debug().
		Str("order_id", req.OrderID).
		Int("allocations", len(result.Allocations)).
		Msg("delivery pass served")

	httputil.JSON(w, http.StatusOK, newDeliveryView(r.Context(), result))
}
