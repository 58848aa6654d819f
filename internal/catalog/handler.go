package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counselgate/counselgate/internal/platform/httpx"
)

// Handler wires permission catalog admin endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers catalog routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/permissions", h.createPermission)
	r.Get("/permissions", h.listPermissions)
	r.Get("/permissions/{id}", h.getPermission)
	r.Put("/permissions/{id}", h.updatePermission)
}

type createPermissionRequest struct {
	ResourceType   string `json:"resource_type" validate:"required,alphanum"`
	PermissionType string `json:"permission_type" validate:"required,alphanum"`
	Description    string `json:"description" validate:"max=500"`
}

type updatePermissionRequest struct {
	ResourceType   string `json:"resource_type"`
	PermissionType string `json:"permission_type"`
	Description    string `json:"description" validate:"max=500"`
}

type permissionResponse struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ResourceType   string `json:"resource_type"`
	PermissionType string `json:"permission_type"`
	Description    string `json:"description"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

func toPermissionResponse(p Permission) permissionResponse {
	return permissionResponse{
		ID:             p.ID,
		Name:           p.Name(),
		ResourceType:   string(p.ResourceType),
		PermissionType: string(p.PermissionType),
		Description:    p.Description,
		CreatedAt:      p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		UpdatedAt:      p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

func (h *Handler) createPermission(w http.ResponseWriter, r *http.Request) {
	var req createPermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.Create(r.Context(), ResourceType(req.ResourceType), PermissionType(req.PermissionType), req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPermissionResponse(perm))
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	resource := ResourceType(r.URL.Query().Get("resource_type"))
	perms, err := h.service.List(r.Context(), resource)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]permissionResponse, 0, len(perms))
	for _, p := range perms {
		out = append(out, toPermissionResponse(p))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) getPermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	perm, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) updatePermission(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	var req updatePermissionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	// Identity is immutable; renaming would detach role grants that
	// reference the ID while displaying a stale name.
	if req.ResourceType != "" || req.PermissionType != "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "resource_type and permission_type cannot be changed")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	perm, err := h.service.UpdateDescription(r.Context(), id, req.Description)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPermissionResponse(perm))
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		h.logger.Error("catalog handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
