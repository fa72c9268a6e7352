package repository

import (
	"context"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/database"
)

// AuditRepository handles the append-only journal
type AuditRepository struct {
	db *database.DB
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *database.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Create appends an entry
func (r *AuditRepository) Create(ctx context.Context, e *domain.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	var details interface{}
	if len(e.Details) > 0 {
		details = e.Details
	}

	query := `
		INSERT INTO audit_journal (
			id, category, action, description, principal_id, entity_type, entity_id,
			entity_description, old_status, new_status, details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING created_at
	`
	return r.db.Q(ctx).QueryRowxContext(ctx, query,
		e.ID, e.Category, e.Action, e.Description, e.PrincipalID, e.EntityType, e.EntityID,
		e.EntityDescription, e.OldStatus, e.NewStatus, details,
	).Scan(&e.CreatedAt)
}

// List returns matching entries newest first with the total match count.
func (r *AuditRepository) List(ctx context.Context, f domain.AuditFilter) ([]domain.AuditEntry, int, error) {
	var where []string
	var args []interface{}
	if f.Category != "" {
		args = append(args, f.Category)
		where = append(where, "category = $"+strconv.Itoa(len(args)))
	}
	if f.EntityID != "" {
		args = append(args, f.EntityID)
		where = append(where, "entity_id = $"+strconv.Itoa(len(args)))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.Q(ctx).GetContext(ctx, &total, `SELECT COUNT(*) FROM audit_journal`+clause, args...); err != nil {
		return nil, 0, err
	}

	limit := f.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := `SELECT * FROM audit_journal` + clause +
		` ORDER BY created_at DESC, id LIMIT $` + strconv.Itoa(len(args)-1) +
		` OFFSET $` + strconv.Itoa(len(args))

	entries := []domain.AuditEntry{}
	if err := r.db.Q(ctx).SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}
