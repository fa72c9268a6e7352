package events

import (
	"context"
	"encoding/json"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
)

// AuditEventPublisher forwards journal entries to the audit exchange
type AuditEventPublisher struct {
	publisher Publisher
	logger    *logger.Logger
}

// NewAuditEventPublisher creates a new audit event publisher
func NewAuditEventPublisher(publisher Publisher, log *logger.Logger) *AuditEventPublisher {
	return &AuditEventPublisher{publisher: publisher, logger: log}
}

// NewRabbitAuditEventPublisher declares the audit exchange and publishes
// onto it.
func NewRabbitAuditEventPublisher(rmq *messaging.RabbitMQ, source string, log *logger.Logger) (*AuditEventPublisher, error) {
	publisher, err := messaging.NewPublisher(rmq, messaging.ExchangeAuditEvents, source, log)
	if err != nil {
		return nil, err
	}
	return NewAuditEventPublisher(publisher, log), nil
}

// PublishAuditLogCreated publishes a written journal entry
func (p *AuditEventPublisher) PublishAuditLogCreated(ctx context.Context, entry *domain.AuditEntry) {
	if p == nil {
		return
	}

	userID := ""
	if entry.PrincipalID != nil {
		userID = *entry.PrincipalID
	}

	var changes map[string]any
	if len(entry.Details) > 0 {
		if err := json.Unmarshal(entry.Details, &changes); err != nil {
			p.logger.Warn().Err(err).Str("log_id", entry.ID).Msg("audit details are not an object")
		}
	}
	if entry.OldStatus != nil || entry.NewStatus != nil {
		if changes == nil {
			changes = map[string]any{}
		}
		if entry.OldStatus != nil {
			changes["old_status"] = *entry.OldStatus
		}
		if entry.NewStatus != nil {
			changes["new_status"] = *entry.NewStatus
		}
	}

	data := messaging.AuditLogCreatedEvent{
		LogID:      entry.ID,
		UserID:     userID,
		Action:     string(entry.Action),
		Resource:   entry.EntityType,
		ResourceID: entry.EntityID,
		Changes:    changes,
	}
	if err := p.publisher.Publish(ctx, messaging.EventAuditLogCreated, data); err != nil {
		p.logger.Error().Err(err).Str("log_id", entry.ID).Msg("failed to publish audit log event")
	}
}
