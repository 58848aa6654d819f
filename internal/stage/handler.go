package stage

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/counselgate/counselgate/internal/platform/httpx"
	"github.com/counselgate/counselgate/internal/shared"
)

// Handler wires stage endpoints. current and check-registration are public;
// everything else is admin-gated at the router.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountPublicRoutes registers the read endpoints that stay reachable even
// while a stage blocks everything else.
func (h *Handler) MountPublicRoutes(r chi.Router) {
	r.Get("/stages/current", h.current)
	r.Get("/stages/check-registration", h.checkRegistration)
}

// MountAdminRoutes registers the stage management endpoints.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	r.Post("/stages", h.create)
	r.Get("/stages", h.list)
	r.Get("/stages/{id}", h.get)
	r.Put("/stages/{id}", h.update)
	r.Post("/stages/{id}/activate", h.activate)
	r.Post("/stages/{id}/deactivate", h.deactivate)
	r.Post("/stages/{id}/permissions", h.setPermissionOverride)
	r.Post("/stages/initialize-defaults", h.initializeDefaults)
}

type stageRequest struct {
	StageType           string     `json:"stage_type" validate:"required,max=50"`
	Name                string     `json:"name" validate:"required,max=200"`
	Description         string     `json:"description" validate:"max=1000"`
	StartDate           *time.Time `json:"start_date"`
	EndDate             *time.Time `json:"end_date"`
	AllowedRoles        []string   `json:"allowed_roles"`
	BlockedEndpoints    []string   `json:"blocked_endpoints"`
	RequiredPermissions []string   `json:"required_permissions"`
}

type stageResponse struct {
	ID                  int64      `json:"id"`
	StageType           string     `json:"stage_type"`
	Name                string     `json:"name"`
	Description         string     `json:"description"`
	IsActive            bool       `json:"is_active"`
	StartDate           *time.Time `json:"start_date"`
	EndDate             *time.Time `json:"end_date"`
	AllowedRoles        []string   `json:"allowed_roles"`
	BlockedEndpoints    []string   `json:"blocked_endpoints"`
	RequiredPermissions []string   `json:"required_permissions"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toStageResponse(s Stage) stageResponse {
	return stageResponse{
		ID:                  s.ID,
		StageType:           string(s.StageType),
		Name:                s.Name,
		Description:         s.Description,
		IsActive:            s.IsActive,
		StartDate:           s.StartDate,
		EndDate:             s.EndDate,
		AllowedRoles:        emptyIfNil(s.AllowedRoles),
		BlockedEndpoints:    emptyIfNil(s.BlockedEndpoints),
		RequiredPermissions: emptyIfNil(s.RequiredPermissions),
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func emptyIfNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), Stage{
		StageType:           Type(req.StageType),
		Name:                req.Name,
		Description:         req.Description,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		AllowedRoles:        req.AllowedRoles,
		BlockedEndpoints:    req.BlockedEndpoints,
		RequiredPermissions: req.RequiredPermissions,
		CreatedBy:           actorID(r),
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toStageResponse(created))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	stages, err := h.service.List(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]stageResponse, 0, len(stages))
	for _, s := range stages {
		out = append(out, toStageResponse(s))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStageResponse(s))
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req stageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	updated, err := h.service.Update(r.Context(), Stage{
		ID:                  id,
		Name:                req.Name,
		Description:         req.Description,
		StartDate:           req.StartDate,
		EndDate:             req.EndDate,
		AllowedRoles:        req.AllowedRoles,
		BlockedEndpoints:    req.BlockedEndpoints,
		RequiredPermissions: req.RequiredPermissions,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStageResponse(updated))
}

func (h *Handler) activate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	s, err := h.service.Activate(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toStageResponse(s))
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.service.Deactivate(r.Context(), id); err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"deactivated": id,
		"warning":     "no stage is active; all gated endpoints are now blocked",
	})
}

type overrideRequest struct {
	PermissionID int64 `json:"permission_id" validate:"required"`
	IsAllowed    *bool `json:"is_allowed" validate:"required"`
}

func (h *Handler) setPermissionOverride(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req overrideRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	override, err := h.service.SetPermissionOverride(r.Context(), id, req.PermissionID, *req.IsAllowed)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"stage_id":      override.StageID,
		"permission_id": override.PermissionID,
		"is_allowed":    override.IsAllowed,
	})
}

func (h *Handler) initializeDefaults(w http.ResponseWriter, r *http.Request) {
	created, err := h.service.InitializeDefaults(r.Context(), actorID(r))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"created": created})
}

func (h *Handler) current(w http.ResponseWriter, r *http.Request) {
	info, err := h.service.CurrentInfo(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	if info.CurrentStage == nil {
		httpx.JSON(w, http.StatusOK, info)
		return
	}
	resp := toStageResponse(*info.CurrentStage)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"current_stage":   resp,
		"allowed_roles":   emptyIfNil(info.AllowedRoles),
		"blocked_actions": emptyIfNil(info.BlockedActions),
		"message":         info.Message,
	})
}

func (h *Handler) checkRegistration(w http.ResponseWriter, r *http.Request) {
	role := r.URL.Query().Get("role")
	if role == "" {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "role query parameter is required")
		return
	}
	status, err := h.service.IsRegistrationAllowed(r.Context(), role)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, status)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		httpx.RespondError(w, httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicate):
		httpx.RespondError(w, httpx.ErrDuplicate)
	default:
		h.logger.Error("stage handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func actorID(r *http.Request) *int64 {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return &id.UserID
	}
	return nil
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrValidation)
		return 0, false
	}
	return id, true
}
