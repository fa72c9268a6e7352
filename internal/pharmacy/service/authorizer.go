package service

import (
	"context"

	"github.com/medflow/pharmacy-backend/pkg/actor"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// Authorizer resolves the caller to a principal and gates operations on
// its permissions.
type Authorizer struct {
	principals PrincipalStore
}

// NewAuthorizer creates a new authorizer
func NewAuthorizer(principals PrincipalStore) *Authorizer {
	return &Authorizer{principals: principals}
}

// Principal loads the principal behind the actor in ctx.
func (a *Authorizer) Principal(ctx context.Context) (*permissions.Principal, error) {
	act := actor.FromContext(ctx)
	if act.IsSystem() {
		return nil, errors.Unauthorized("authentication required")
	}

	p, err := a.principals.Get(ctx, act.ID)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.Unauthorized("unknown principal")
		}
		return nil, err
	}
	return p, nil
}

// Require returns the caller's principal if it may perform action on
// resource, and InsufficientAuthorization otherwise.
func (a *Authorizer) Require(ctx context.Context, resource permissions.Resource, action permissions.Action) (*permissions.Principal, error) {
	p, err := a.Principal(ctx)
	if err != nil {
		return nil, err
	}
	if err := permissions.Check(p, resource, action); err != nil {
		return nil, err
	}
	return p, nil
}

// PermissionMap returns the caller's can_<action>_<resource> flags.
func (a *Authorizer) PermissionMap(ctx context.Context) (map[string]bool, error) {
	p, err := a.Principal(ctx)
	if err != nil {
		return nil, err
	}
	return permissions.PermissionMap(p), nil
}
