package repository

import (
	"context"
	"database/sql"

	"github.com/medflow/pharmacy-backend/pkg/database"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/permissions"
)

// PrincipalRepository stores the local copy of users and role grants that
// authorization reads from.
type PrincipalRepository struct {
	db *database.DB
}

// NewPrincipalRepository creates a new principal repository
func NewPrincipalRepository(db *database.DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

type permissionRow struct {
	Resource string `db:"resource"`
	Action   string `db:"action"`
}

// Get loads a principal together with its role's permissions.
func (r *PrincipalRepository) Get(ctx context.Context, id string) (*permissions.Principal, error) {
	var p permissions.Principal
	query := `SELECT id, username, role_id, is_superuser, is_active, service_id FROM principals WHERE id = $1`
	if err := r.db.Q(ctx).GetContext(ctx, &p, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NotFound("principal")
		}
		return nil, err
	}

	p.Permissions = permissions.NewSet()
	if p.RoleID == nil {
		return &p, nil
	}

	var rows []permissionRow
	if err := r.db.Q(ctx).SelectContext(ctx, &rows,
		`SELECT resource, action FROM role_permissions WHERE role_id = $1`, *p.RoleID); err != nil {
		return nil, err
	}
	for _, row := range rows {
		p.Permissions[permissions.Permission{
			Resource: permissions.Resource(row.Resource),
			Action:   permissions.Action(row.Action),
		}] = struct{}{}
	}
	return &p, nil
}

// Upsert creates or replaces a principal. Permissions are not touched.
func (r *PrincipalRepository) Upsert(ctx context.Context, p *permissions.Principal) error {
	query := `
		INSERT INTO principals (id, username, role_id, is_superuser, is_active, service_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			role_id = EXCLUDED.role_id,
			is_superuser = EXCLUDED.is_superuser,
			is_active = EXCLUDED.is_active,
			service_id = EXCLUDED.service_id,
			updated_at = NOW()
	`
	_, err := r.db.Q(ctx).ExecContext(ctx, query,
		p.ID, p.Username, p.RoleID, p.IsSuperuser, p.IsActive, p.ServiceID)
	return mapErr(err)
}

// Deactivate keeps the row for audit references but denies everything.
func (r *PrincipalRepository) Deactivate(ctx context.Context, id string) error {
	_, err := r.db.Q(ctx).ExecContext(ctx,
		`UPDATE principals SET is_active = FALSE, is_superuser = FALSE, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// ReplaceRolePermissions sets the complete grant list of a role, creating
// the role when it is new.
func (r *PrincipalRepository) ReplaceRolePermissions(ctx context.Context, roleID, name string, grants permissions.Set) error {
	return r.db.Transaction(ctx, func(ctx context.Context) error {
		q := r.db.Q(ctx)
		if _, err := q.ExecContext(ctx, `
			INSERT INTO roles (id, name) VALUES ($1, $2)
			ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, roleID, name); err != nil {
			return mapErr(err)
		}
		if _, err := q.ExecContext(ctx, `DELETE FROM role_permissions WHERE role_id = $1`, roleID); err != nil {
			return err
		}
		for p := range grants {
			if _, err := q.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, resource, action) VALUES ($1, $2, $3)`,
				roleID, p.Resource, p.Action); err != nil {
				return mapErr(err)
			}
		}
		return nil
	})
}
