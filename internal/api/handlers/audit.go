package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/adamscao/ovpnbot/internal/models"
	"github.com/gin-gonic/gin"
)

const maxListLimit = 500

// AuditLister reads the audit trail
type AuditLister interface {
	List(ctx context.Context, username string, action string, limit int) ([]*models.AuditLog, error)
}

// IssuanceLister reads issuance records
type IssuanceLister interface {
	List(ctx context.Context, username string, onlyPartial bool, limit int) ([]*models.Issuance, error)
}

// AuditHandler exposes the audit trail and the issuance records
type AuditHandler struct {
	audit     AuditLister
	issuances IssuanceLister
}

// NewAuditHandler creates a new audit handler
func NewAuditHandler(audit AuditLister, issuances IssuanceLister) *AuditHandler {
	return &AuditHandler{
		audit:     audit,
		issuances: issuances,
	}
}

// ListAudit lists audit entries
// GET /v1/admin/audit?username=&action=&limit=
func (h *AuditHandler) ListAudit(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	logs, err := h.audit.List(c.Request.Context(), c.Query("username"), c.Query("action"), limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list audit logs")
		return
	}
	if logs == nil {
		logs = []*models.AuditLog{}
	}

	RespondSuccess(c, gin.H{"items": logs})
}

// ListIssuances lists issuance records, optionally only partial ones
// GET /v1/admin/issuances?username=&partial=true&limit=
func (h *AuditHandler) ListIssuances(c *gin.Context) {
	limit, ok := parseLimit(c)
	if !ok {
		return
	}

	onlyPartial := false
	if raw := c.Query("partial"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			RespondError(c, http.StatusBadRequest, "invalid_request", "partial must be a boolean")
			return
		}
		onlyPartial = v
	}

	recs, err := h.issuances.List(c.Request.Context(), c.Query("username"), onlyPartial, limit)
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "database_error", "Failed to list issuances")
		return
	}
	if recs == nil {
		recs = []*models.Issuance{}
	}

	RespondSuccess(c, gin.H{"items": recs})
}

// parseLimit reads ?limit=, defaulting to 50 and capping at maxListLimit
func parseLimit(c *gin.Context) (int, bool) {
	raw := c.Query("limit")
	if raw == "" {
		return 50, true
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		RespondError(c, http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
		return 0, false
	}

	return min(n, maxListLimit), true
}
