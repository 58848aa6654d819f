package auditlog

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/counselgate/counselgate/internal/platform/httpx"
	"github.com/counselgate/counselgate/internal/shared"
)

// Handler wires the audit log query endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers audit log routes. Export is rate limited because a
// full CSV dump is expensive.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/audit-logs", h.query)
	r.With(httprate.LimitByIP(5, time.Minute)).Get("/audit-logs/export", h.export)
}

func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", 20)
	if perPage > 200 {
		perPage = 200
	}

	entries, total, err := h.service.Query(r.Context(), filter, page, perPage)
	if err != nil {
		h.logger.Error("audit log query", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"pagination": shared.NewPagination(page, perPage, int(total)),
	})
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="access-logs.csv"`)
	if err := h.service.ExportCSV(r.Context(), filter, w); err != nil {
		// Headers are already out; all we can do is log.
		h.logger.Error("audit log export", slog.Any("error", err))
	}
}

func parseFilter(r *http.Request) (Filter, error) {
	var filter Filter
	q := r.URL.Query()

	if raw := q.Get("user_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Filter{}, err
		}
		filter.UserID = &id
	}
	filter.Action = q.Get("action")
	if raw := q.Get("success"); raw != "" {
		success, err := strconv.ParseBool(raw)
		if err != nil {
			return Filter{}, err
		}
		filter.Success = &success
	}
	if raw := q.Get("from"); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, err
		}
		filter.From = &from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return Filter{}, err
		}
		filter.To = &to
	}
	return filter, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
