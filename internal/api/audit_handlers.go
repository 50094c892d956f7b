package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/classfair/classfair/internal/audit"
	"github.com/classfair/classfair/internal/middleware"
)

// maxAuditPageSize caps audit query results per request.
const maxAuditPageSize = 100

// AuditHandlers exposes read-only audit trail queries for operators.
type AuditHandlers struct {
	repo audit.Repository
}

// NewAuditHandlers creates a new AuditHandlers instance.
func NewAuditHandlers(repo audit.Repository) *AuditHandlers {
	return &AuditHandlers{repo: repo}
}

// auditResponse wraps a page of audit records.
type auditResponse struct {
	Records []*audit.Record `json:"records"`
}

// resourceKinds maps URL path segments to stored resource kinds.
var resourceKinds = map[string]string{
	"intents":       audit.ResourceIntent,
	"enrollments":   audit.ResourceEnrollment,
	"registrations": audit.ResourceRegistration,
}

// HandleQueryByResource serves GET /audit/{resource}/{id} where
// resource is one of intents, enrollments, registrations.
func (h *AuditHandlers) HandleQueryByResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	// audit/{resource}/{id}
	if len(parts) != 3 || parts[2] == "" {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "expected /audit/{resource}/{id}")
		return
	}

	kind, ok := resourceKinds[parts[1]]
	if !ok {
		ctx = middleware.SetErrorCode(ctx, ErrCodeNotFound)
		WriteError(w, ctx, http.StatusNotFound, ErrCodeNotFound, "unknown audit resource")
		return
	}

	records, err := h.repo.QueryByResource(ctx, kind, parts[2], pageLimit(r))
	if err != nil {
		slog.ErrorContext(ctx, "audit query failed", "resource_kind", kind, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "audit query failed")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, auditResponse{Records: records})
}

// HandleQueryByUser serves GET /audit/users/{id}.
func (h *AuditHandlers) HandleQueryByUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := strings.TrimPrefix(r.URL.Path, "/audit/users/")
	if userID == "" || strings.Contains(userID, "/") {
		ctx = middleware.SetErrorCode(ctx, ErrCodeBadRequest)
		WriteError(w, ctx, http.StatusBadRequest, ErrCodeBadRequest, "expected /audit/users/{id}")
		return
	}

	records, err := h.repo.QueryByUser(ctx, userID, pageLimit(r))
	if err != nil {
		slog.ErrorContext(ctx, "audit query failed", "user_id", userID, "error", err)
		ctx = middleware.SetErrorCode(ctx, ErrCodeInternal)
		WriteError(w, ctx, http.StatusInternalServerError, ErrCodeInternal, "audit query failed")
		return
	}

	WriteJSON(w, ctx, http.StatusOK, auditResponse{Records: records})
}

func pageLimit(r *http.Request) int {
	limit := maxAuditPageSize
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n < maxAuditPageSize {
			limit = n
		}
	}
	return limit
}
