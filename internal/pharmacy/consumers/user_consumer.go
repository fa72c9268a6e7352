package consumers

import (
	"context"

	"github.com/medflow/pharmacy-backend/pkg/config"
	"github.com/medflow/pharmacy-backend/pkg/logger"
	"github.com/medflow/pharmacy-backend/pkg/messaging"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// PrincipalStore is where the consumer keeps principals and role grants
type PrincipalStore interface {
	Upsert(ctx context.Context, p *permissions.Principal) error
	Deactivate(ctx context.Context, id string) error
	ReplaceRolePermissions(ctx context.Context, roleID, name string, grants permissions.Set) error
}

// UserEventHandler mirrors users and roles owned by the identity service
// into the local principal tables.
type UserEventHandler struct {
	principals PrincipalStore
	logger     *logger.Logger
}

// NewUserEventHandler creates a new user event handler
func NewUserEventHandler(principals PrincipalStore, log *logger.Logger) *UserEventHandler {
	return &UserEventHandler{principals: principals, logger: log}
}

// HandleUserChanged serves both user.created and user.updated. The payload
// is a full snapshot so both are upserts.
func (h *UserEventHandler) HandleUserChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("user_id", data.UserID).
		Str("event_type", event.Type).
		Msg("received user event")

	return h.principals.Upsert(ctx, &permissions.Principal{
		ID:          data.UserID,
		Username:    data.Username,
		RoleID:      data.RoleID,
		IsSuperuser: data.IsSuperuser,
		IsActive:    data.IsActive,
		ServiceID:   data.ServiceID,
	})
}

// HandleUserDeleted deactivates the principal. The row stays because
// movements and journal entries still point at it.
func (h *UserEventHandler) HandleUserDeleted(ctx context.Context, event *messaging.Event) error {
	var data messaging.UserDeletedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	h.logger.Info().
		Str("user_id", data.UserID).
		Msg("received user deleted event")

	return h.principals.Deactivate(ctx, data.UserID)
}

// HandleRolePermissionsChanged replaces a role's grants. A grant list that
// does not parse is logged and dropped, since redelivery cannot fix it.
func (h *UserEventHandler) HandleRolePermissionsChanged(ctx context.Context, event *messaging.Event) error {
	var data messaging.RolePermissionsChangedEvent
	if err := event.UnmarshalData(&data); err != nil {
		return err
	}

	grants, err := permissions.ParseSet(data.Permissions)
	if err != nil {
		h.logger.Error().
			Err(err).
			Str("role_id", data.RoleID).
			Strs("permissions", data.Permissions).
			Msg("dropping role permissions event with invalid grants")
		return nil
	}

	h.logger.Info().
		Str("role_id", data.RoleID).
		Int("grants", len(grants)).
		Msg("received role permissions event")

	return h.principals.ReplaceRolePermissions(ctx, data.RoleID, data.RoleName, grants)
}

// UserEventConsumer consumes user events
type UserEventConsumer struct {
	consumer *messaging.Consumer
	handler  *UserEventHandler
}

// NewUserEventConsumer declares the service queue, binds it to the user
// exchange and registers the handlers.
func NewUserEventConsumer(rmq *messaging.RabbitMQ, principals PrincipalStore, maxRetries int, log *logger.Logger) (*UserEventConsumer, error) {
	consumer, err := messaging.NewConsumer(rmq, config.ServiceName+".user-events", log)
	if err != nil {
		return nil, err
	}

	if err := consumer.Subscribe(messaging.ExchangeUserEvents, "user.#"); err != nil {
		return nil, err
	}
	if maxRetries > 0 {
		consumer.SetMaxRetries(maxRetries)
	}

	h := NewUserEventHandler(principals, log.WithComponent("user-consumer"))
	consumer.RegisterHandler(messaging.EventUserCreated, h.HandleUserChanged)
	consumer.RegisterHandler(messaging.EventUserUpdated, h.HandleUserChanged)
	consumer.RegisterHandler(messaging.EventUserDeleted, h.HandleUserDeleted)
	consumer.RegisterHandler(messaging.EventRolePermissionsChanged, h.HandleRolePermissionsChanged)

	return &UserEventConsumer{consumer: consumer, handler: h}, nil
}

// Start starts consuming messages
func (c *UserEventConsumer) Start(ctx context.Context) error {
	return c.consumer.Start(ctx)
}
