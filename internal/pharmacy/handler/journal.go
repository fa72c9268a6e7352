package handler

import (
	"net/http"
	"strconv"

	"github.com/medflow/pharmacy-backend/internal/pharmacy/domain"
	"github.com/medflow/pharmacy-backend/pkg/errors"
	"github.com/medflow/pharmacy-backend/pkg/httputil"
	"github.com/medflow/pharmacy-backend/pkg/logger"
)

const defaultJournalLimit = 20

// JournalHandler serves the audit journal and the caller's permissions
type JournalHandler struct {
	journal     JournalReader
	permissions PermissionReader
	logger      *logger.Logger
}

// NewJournalHandler creates a new journal handler
func NewJournalHandler(journal JournalReader, perms PermissionReader, log *logger.Logger) *JournalHandler {
	return &JournalHandler{
		journal:     journal,
		permissions: perms,
		logger:      log,
	}
}

// List lists journal entries, newest first
func (h *JournalHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuditFilter{
		Category: domain.AuditCategory(q.Get("category")),
		EntityID: q.Get("entity_id"),
		Limit:    defaultJournalLimit,
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit <= 0 {
			httputil.ErrorLocalized(w, r, errors.InvalidInput("limit must be a positive integer"))
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			httputil.ErrorLocalized(w, r, errors.InvalidInput("offset must be a non-negative integer"))
			return
		}
	}

	entries, total, err := h.journal.List(r.Context(), filter)
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, entries, httputil.PageMeta(filter.Offset, filter.Limit, total))
}

// Permissions returns the caller's can_<action>_<resource> flags
func (h *JournalHandler) Permissions(w http.ResponseWriter, r *http.Request) {
	flags, err := h.permissions.PermissionMap(r.Context())
	if err != nil {
		httputil.ErrorLocalized(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, flags)
}
