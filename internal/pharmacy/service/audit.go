package service

import (
	"context"
	"encoding/json"

	"github.com/jmoiron/sqlx/types"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/internal/pharmacy/events"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

// AuditRecorder writes journal entries once the operation that produced
// them has committed. A failure is logged and never undoes the operation.
type AuditRecorder struct {
	store     AuditStore
	publisher *events.AuditEventPublisher
	logger    *logger.Logger
}

// NewAuditRecorder creates a new audit recorder
func NewAuditRecorder(store AuditStore, publisher *events.AuditEventPublisher, log *logger.Logger) *AuditRecorder {
	return &AuditRecorder{
		store:     store,
		publisher: publisher,
		logger:    log,
	}
}

// Record persists and announces each entry.
func (r *AuditRecorder) Record(ctx context.Context, entries ...*domain.AuditEntry) {
	for _, e := range entries {
		if err := r.store.Create(ctx, e); err != nil {
			r.logger.WithSpan(ctx).Error().Err(err).
				Str("category", string(e.Category)).
				Str("action", string(e.Action)).
				Str("entity_id", e.EntityID).
				Msg("failed to record audit entry")
			continue
		}
		r.publisher.PublishAuditLogCreated(ctx, e)
	}
}

// auditEntry builds an entry. details is marshalled to JSON when set.
func auditEntry(
	category domain.AuditCategory,
	action domain.AuditAction,
	principalID *string,
	entityType, entityID, entityDescription, description string,
	details map[string]interface{},
) *domain.AuditEntry {
	e := &domain.AuditEntry{
		Category:          category,
		Action:            action,
		Description:       description,
		PrincipalID:       principalID,
		EntityType:        entityType,
		EntityID:          entityID,
		EntityDescription: entityDescription,
	}
	if len(details) > 0 {
		if raw, err := json.Marshal(details); err == nil {
			e.Details = types.JSONText(raw)
		}
	}
	return e
}

func statusPtr(s domain.OrderStatus) *string {
	v := string(s)
	return &v
}
