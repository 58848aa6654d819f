package access

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/counselgate/counselgate/internal/auditlog"
	"github.com/counselgate/counselgate/internal/platform/httpx"
	"github.com/counselgate/counselgate/internal/shared"
	"github.com/counselgate/counselgate/internal/stage"
)

// AuditSink receives one entry per gated request. *auditlog.Service
// satisfies it.
type AuditSink interface {
	Record(ctx context.Context, e auditlog.Entry)
}

// Middleware enforces stage gating and permission checks on HTTP routes and
// records every gated request in the audit log.
type Middleware struct {
	logger   *slog.Logger
	engine   *Engine
	stages   StageGate
	audit    AuditSink
	observer DecisionObserver
	now      func() time.Time
}

// NewMiddleware builds a Middleware instance. audit and observer may be nil.
func NewMiddleware(logger *slog.Logger, engine *Engine, stages StageGate, audit AuditSink, observer DecisionObserver) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{logger: logger, engine: engine, stages: stages, audit: audit, observer: observer, now: time.Now}
}

// Gate blocks requests the current stage forbids and records an audit entry
// for every request that passes through it, allowed or not.
func (m *Middleware) Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := m.now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)

		blocked, current, err := m.stages.IsEndpointBlocked(r.Context(), r.URL.Path)
		if err != nil {
			m.logger.Error("stage lookup failed, blocking request",
				slog.Any("error", err),
				slog.String("request_id", requestID),
				slog.String("path", r.URL.Path))
		}
		if blocked {
			m.observeOutcome("stage_blocked")
			m.respondStageBlocked(w, r, current)
			m.record(r, http.StatusForbidden, start, "stage blocked")
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		m.record(r, rec.status, start, "")
	})
}

// RequirePermission guards a route subtree with a resource/action check.
// Unauthenticated requests get 401, denied ones 403 with the decision
// attached.
func (m *Middleware) RequirePermission(resource, action string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.checkAndServe(w, r, next, resource, action)
		})
	}
}

// RequireResourceAccess guards a route subtree with a check whose action is
// derived from the HTTP method: GET/HEAD need read, POST write, PUT/PATCH
// update, DELETE delete. The blanket resource_admin permission satisfies all
// of them.
func (m *Middleware) RequireResourceAccess(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.checkAndServe(w, r, next, resource, methodAction(r.Method))
		})
	}
}

func (m *Middleware) checkAndServe(w http.ResponseWriter, r *http.Request, next http.Handler, resource, action string) {
	identity := shared.IdentityFromContext(r.Context())
	if identity == nil {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	decision, err := m.engine.Check(r.Context(), identity.UserID, resource, action)
	if err != nil {
		// Fail closed: an unevaluable check is a denial.
		m.logger.Error("permission check failed",
			slog.Any("error", err),
			slog.Int64("user_id", identity.UserID),
			slog.String("resource", resource),
			slog.String("action", action))
		httpx.RespondError(w, httpx.ErrForbidden)
		return
	}
	if !decision.Allowed {
		httpx.ProblemWithExtra(w, http.StatusForbidden, "Forbidden", decision.Reason, map[string]any{
			"required_permissions": decision.Required,
			"user_permissions":     decision.UserPermissions,
			"user_roles":           decision.UserRoles,
		})
		return
	}
	next.ServeHTTP(w, r)
}

func methodAction(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "write"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return "admin"
	}
}

func (m *Middleware) respondStageBlocked(w http.ResponseWriter, r *http.Request, current *stage.Stage) {
	extra := map[string]any{"endpoint": r.URL.Path}
	detail := "no stage is currently active"
	if current != nil {
		detail = "this action is not available during " + current.Name
		extra["current_stage"] = string(current.StageType)
		extra["stage_name"] = current.Name
		extra["stage_description"] = current.Description
		extra["blocked_endpoints"] = current.BlockedEndpoints
	}
	httpx.ProblemWithExtra(w, http.StatusForbidden, "Stage Restriction", detail, extra)
}

func (m *Middleware) record(r *http.Request, status int, start time.Time, errMessage string) {
	if m.audit == nil {
		return
	}
	entry := auditlog.Entry{
		EndpointPath:    r.URL.Path,
		HTTPMethod:      r.Method,
		RequestIP:       clientIP(r),
		UserAgent:       r.UserAgent(),
		Action:          actionForMethod(r.Method),
		Success:         status < http.StatusBadRequest,
		ErrorMessage:    errMessage,
		ResponseStatus:  status,
		ExecutionTimeMs: m.now().Sub(start).Milliseconds(),
		Timestamp:       start,
	}
	if identity := shared.IdentityFromContext(r.Context()); identity != nil {
		entry.UserID = &identity.UserID
	}
	m.audit.Record(r.Context(), entry)
}

func (m *Middleware) observeOutcome(outcome string) {
	if m.observer != nil {
		m.observer.ObserveDecision(outcome)
	}
}

func actionForMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead:
		return "read"
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	case http.MethodDelete:
		return "delete"
	default:
		return strings.ToLower(method)
	}
}

// clientIP resolves the originating address, preferring proxy headers.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
