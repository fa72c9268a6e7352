package service

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// LowStockMonitor announces products whose available stock has fallen to
// their alert threshold.
type LowStockMonitor struct {
	lots      LotStore
	publisher *events.PharmacyEventPublisher
	logger    *logger.Logger
}

// NewLowStockMonitor creates a new low stock monitor
func NewLowStockMonitor(lots LotStore, publisher *events.PharmacyEventPublisher, log *logger.Logger) *LowStockMonitor {
	return &LowStockMonitor{lots: lots, publisher: publisher, logger: log}
}

// Check looks at each product once. Errors are logged and skipped.
func (m *LowStockMonitor) Check(ctx context.Context, productIDs ...string) {
	if m == nil {
		return
	}
	seen := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		level, err := m.lots.StockLevel(ctx, id)
		if err != nil {
			m.logger.Error().Err(err).Str("product_id", id).Msg("failed to read stock level")
			continue
		}
		if level.BelowAlert() {
			m.logger.Warn().
				Str("product_id", id).
				Int("available", level.Available).
				Int("alert_stock", level.AlertStock).
				Msg("stock below alert threshold")
			m.publisher.PublishStockLow(ctx, level)
		}
	}
}
