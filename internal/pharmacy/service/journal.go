package service

import (
	"context"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// JournalService reads the audit journal
type JournalService struct {
	store AuditStore
	auth  *Authorizer
}

// NewJournalService creates a new journal service
func NewJournalService(store AuditStore, auth *Authorizer) *JournalService {
	return &JournalService{store: store, auth: auth}
}

// List returns matching entries newest first with the total count.
func (s *JournalService) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	if _, err := s.auth.Require(ctx, permissions.Journal, permissions.View); err != nil {
		return nil, 0, err
	}
	return s.store.List(ctx, f)
}
