package access

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counselgate/counselgate/internal/auditlog"
	"github.com/counselgate/counselgate/internal/platform/httpx"
	"github.com/counselgate/counselgate/internal/shared"
)

// Handler exposes the decision engine over HTTP.
type Handler struct {
	logger    *slog.Logger
	engine    *Engine
	perms     PermissionSource
	audit     AuditSink
	validator *validator.Validate
}

// NewHandler builds a Handler instance. audit may be nil.
func NewHandler(logger *slog.Logger, engine *Engine, perms PermissionSource, audit AuditSink) *Handler {
	return &Handler{logger: logger, engine: engine, perms: perms, audit: audit, validator: validator.New()}
}

// MountRoutes registers access routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/access/check-permission", h.checkPermission)
	r.Get("/access/me", h.me)
}

type checkRequest struct {
	UserID         int64   `json:"user_id" validate:"required"`
	ResourceType   string  `json:"resource_type" validate:"required,max=50"`
	PermissionType string  `json:"permission_type" validate:"required,max=50"`
	ResourceID     *string `json:"resource_id" validate:"omitempty,max=100"`
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	decision, err := h.engine.Check(r.Context(), req.UserID, req.ResourceType, req.PermissionType)
	if err != nil {
		h.logger.Error("check-permission", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	h.recordCheck(r, req, decision)
	httpx.JSON(w, http.StatusOK, decision)
}

// recordCheck writes one audit entry per explicit permission check, carrying
// the resource ID the caller asked about.
func (h *Handler) recordCheck(r *http.Request, req checkRequest, decision Decision) {
	if h.audit == nil {
		return
	}
	entry := auditlog.Entry{
		UserID:       &req.UserID,
		EndpointPath: r.URL.Path,
		HTTPMethod:   r.Method,
		RequestIP:    clientIP(r),
		UserAgent:    r.UserAgent(),
		Action:       req.PermissionType,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Success:      decision.Allowed,
	}
	if !decision.Allowed {
		entry.ErrorMessage = decision.Reason
	}
	h.audit.Record(r.Context(), entry)
}

// me returns the calling identity's effective permissions and roles.
func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	perms, err := h.perms.EffectivePermissionsCached(r.Context(), identity.UserID)
	if err != nil {
		h.logger.Error("access me", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	roles, err := h.perms.EffectiveRoles(r.Context(), identity.UserID, time.Now())
	if err != nil {
		h.logger.Error("access me", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"user_id":     identity.UserID,
		"role":        identity.Role,
		"permissions": perms,
		"roles":       roles,
	})
}
