package domain

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// AuditCategory groups journal entries.
type AuditCategory string

const (
	AuditCategoryOrder   AuditCategory = "ORDER"
	AuditCategoryStock   AuditCategory = "STOCK"
	AuditCategoryProduct AuditCategory = "PRODUCT"
	AuditCategoryUser    AuditCategory = "USER"
	AuditCategorySystem  AuditCategory = "SYSTEM"
)

// AuditAction names what happened.
type AuditAction string

const (
	AuditCreate    AuditAction = "CREATE"
	AuditUpdate    AuditAction = "UPDATE"
	AuditDelete    AuditAction = "DELETE"
	AuditValidate  AuditAction = "VALIDATE"
	AuditCancel    AuditAction = "CANCEL"
	AuditDeliver   AuditAction = "DELIVER"
	AuditReception AuditAction = "RECEPTION"
	AuditAdjust    AuditAction = "ADJUST"
	AuditTransfer  AuditAction = "TRANSFER"
	AuditWriteOff  AuditAction = "WRITEOFF"
	AuditExpire    AuditAction = "EXPIRE"
)

// AuditEntry is an append-only journal record.
type AuditEntry struct {
	ID                string         `db:"id" json:"id"`
	Category          AuditCategory  `db:"category" json:"category"`
	Action            AuditAction    `db:"action" json:"action"`
	Description       string         `db:"description" json:"description"`
	PrincipalID       *string        `db:"principal_id" json:"principal_id,omitempty"`
	EntityType        string         `db:"entity_type" json:"entity_type"`
	EntityID          string         `db:"entity_id" json:"entity_id"`
	EntityDescription string         `db:"entity_description" json:"entity_description"`
	OldStatus         *string        `db:"old_status" json:"old_status,omitempty"`
	NewStatus         *string        `db:"new_status" json:"new_status,omitempty"`
	Details           types.JSONText `db:"details" json:"details,omitempty"`
	CreatedAt         time.Time      `db:"created_at" json:"created_at"`
}

// AuditFilter narrows journal listings. Zero values match everything.
type AuditFilter struct {
	Category AuditCategory
	EntityID string
	Limit    int
	Offset   int
}
