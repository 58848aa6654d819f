package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/counselgate/counselgate/internal/access"
	"github.com/counselgate/counselgate/internal/auditlog"
	"github.com/counselgate/counselgate/internal/catalog"
	"github.com/counselgate/counselgate/internal/observability"
	"github.com/counselgate/counselgate/internal/rolegraph"
	"github.com/counselgate/counselgate/internal/stage"
	"github.com/counselgate/counselgate/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	CatalogHandler   *catalog.Handler
	RoleGraphHandler *rolegraph.Handler
	StageHandler     *stage.Handler
	AccessHandler    *access.Handler
	AuditHandler     *auditlog.Handler
	JobHandler       *jobs.Handler
	AccessMiddleware *access.Middleware
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router. The whole /api tree sits behind the
// stage gate; the admin surface additionally requires system permissions,
// with the action derived from the HTTP method.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.AccessMiddleware.Gate)

		params.StageHandler.MountPublicRoutes(r)
		params.AccessHandler.MountRoutes(r)

		r.Route("/admin", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(params.AccessMiddleware.RequireResourceAccess("system"))
				params.CatalogHandler.MountRoutes(r)
				params.RoleGraphHandler.MountRoutes(r)
				params.AuditHandler.MountRoutes(r)
				if params.JobHandler != nil {
					params.JobHandler.MountRoutes(r)
				}
			})
			r.Group(func(r chi.Router) {
				r.Use(params.AccessMiddleware.RequireResourceAccess("stage"))
				params.StageHandler.MountAdminRoutes(r)
			})
		})
	})

	return r
}
