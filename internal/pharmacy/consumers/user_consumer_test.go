package consumers_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/consumers"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

type fakePrincipals struct {
	upserted    []*permissions.Principal
	deactivated []string
	roles       map[string]permissions.Set
	err         error
}

func (f *fakePrincipals) Upsert(ctx context.Context, p *permissions.Principal) error {
	f.upserted = append(f.upserted, p)
	return f.err
}

func (f *fakePrincipals) Deactivate(ctx context.Context, id string) error {
	f.deactivated = append(f.deactivated, id)
	return f.err
}

func (f *fakePrincipals) ReplaceRolePermissions(ctx context.Context, roleID, name string, grants permissions.Set) error {
	if f.roles == nil {
		f.roles = map[string]permissions.Set{}
	}
	f.roles[roleID] = grants
	return f.err
}

func event(t *testing.T, eventType string, data interface{}) *messaging.Event {
	t.Helper()
	e, err := messaging.NewEvent(eventType, "identity-service", "corr-1", data)
	require.NoError(t, err)
	return e
}

func TestHandleUserChanged(t *testing.T) {
	store := &fakePrincipals{}
	h := consumers.NewUserEventHandler(store, logger.Nop())
	role := "role-1"

	err := h.HandleUserChanged(context.Background(), event(t, messaging.EventUserCreated, messaging.UserEvent{
		UserID: "u-1", Username: "jdoe", RoleID: &role, IsActive: true,
	}))
	require.NoError(t, err)

	require.Len(t, store.upserted, 1)
	p := store.upserted[0]
	assert.Equal(t, "u-1", p.ID)
	assert.Equal(t, "jdoe", p.Username)
	assert.Equal(t, "role-1", *p.RoleID)
	assert.True(t, p.IsActive)
	assert.False(t, p.IsSuperuser)
}

func TestHandleUserDeleted(t *testing.T) {
	store := &fakePrincipals{}
	h := consumers.NewUserEventHandler(store, logger.Nop())

	err := h.HandleUserDeleted(context.Background(), event(t, messaging.EventUserDeleted, messaging.UserDeletedEvent{UserID: "u-1"}))
	require.NoError(t, err)
	assert.Equal(t, []string{"u-1"}, store.deactivated)
}

func TestHandleRolePermissionsChanged(t *testing.T) {
	store := &fakePrincipals{}
	h := consumers.NewUserEventHandler(store, logger.Nop())

	err := h.HandleRolePermissionsChanged(context.Background(), event(t, messaging.EventRolePermissionsChanged,
		messaging.RolePermissionsChangedEvent{RoleID: "role-1", RoleName: "Pharmacist", Permissions: []string{"orders.*", "lots.view"}}))
	require.NoError(t, err)

	grants := store.roles["role-1"]
	assert.True(t, grants.Has(permissions.Orders, permissions.Delete))
	assert.True(t, grants.Has(permissions.Lots, permissions.View))
	assert.False(t, grants.Has(permissions.Lots, permissions.Change))
}

func TestHandleRolePermissionsChanged_InvalidGrantsDropped(t *testing.T) {
	store := &fakePrincipals{}
	h := consumers.NewUserEventHandler(store, logger.Nop())

	err := h.HandleRolePermissionsChanged(context.Background(), event(t, messaging.EventRolePermissionsChanged,
		messaging.RolePermissionsChangedEvent{RoleID: "role-1", Permissions: []string{"orders.fly"}}))
	assert.NoError(t, err)
	assert.Empty(t, store.roles)
}

func TestHandlers_PropagateStoreErrors(t *testing.T) {
	store := &fakePrincipals{err: errors.New("connection refused")}
	h := consumers.NewUserEventHandler(store, logger.Nop())

	err := h.HandleUserDeleted(context.Background(), event(t, messaging.EventUserDeleted, messaging.UserDeletedEvent{UserID: "u-1"}))
	assert.Error(t, err)

	err = h.HandleUserChanged(context.Background(), &messaging.Event{Type: messaging.EventUserUpdated, Data: []byte("{")})
	assert.Error(t, err)
}
