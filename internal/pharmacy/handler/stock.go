package handler

import (
	"net/http"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/service"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/i18n"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// StockHandler handles reception, lot and stock correction endpoints
type StockHandler struct {
	receptions Receiver
	stock      StockManager
	logger     *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(receptions Receiver, stock StockManager, log *logger.Logger) *StockHandler {
	return &StockHandler{
		receptions: receptions,
		stock:      stock,
		logger:     log,
	}
}

type adjustRequest struct {
	Delta  int    `json:"delta" validate:"ne=0"`
	Reason string `json:"reason" validate:"required"`
}

type writeOffRequest struct {
	Reason string `json:"reason"`
}

// Receive books a supplier reception. Lines for unknown or inactive
// products come back as skipped.
func (h *StockHandler) Receive(w http.ResponseWriter, r *http.Request) {
	var req domain.Reception
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	result, err := h.receptions.Receive(r.Context(), req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.Created(w, newReceptionView(r.Context(), result))
}

// ListLots lists a product's lots in allocation order
func (h *StockHandler) ListLots(w http.ResponseWriter, r *http.Request) {
	productID, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	lots, err := h.stock.ListLots(r.Context(), productID)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	l := i18n.LocalizerFromContext(r.Context())
	out := make([]lotView, len(lots))
	for i, lot := range lots {
		out[i] = newLotView(l, lot)
	}
	httputil.JSON(w, http.StatusOK, out)
}

// Adjust corrects a lot quantity
func (h *StockHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	lotID, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req adjustRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	change, err := h.stock.Adjust(r.Context(), lotID, req.Delta, req.Reason)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newStockChangeView(r.Context(), change))
}

// Transfer records a transfer between storage locations
func (h *StockHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	lotID, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req service.TransferRequest
	if err := httputil.Bind(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	change, err := h.stock.Transfer(r.Context(), lotID, req)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newStockChangeView(r.Context(), change))
}

// WriteOff writes off what is left of an expired lot. The body is optional.
func (h *StockHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	lotID, err := idParam(r)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	var req writeOffRequest
	if err := httputil.BindOptional(r, &req); err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	change, err := h.stock.WriteOff(r.Context(), lotID, req.Reason)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, newStockChangeView(r.Context(), change))
}
