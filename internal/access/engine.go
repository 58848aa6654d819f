package access

import (
	"context"
	"time"

	"github.com/counselgate/counselgate/internal/catalog"
	"github.com/counselgate/counselgate/internal/stage"
)

// PermissionSource supplies a user's effective permissions and roles.
// *rolegraph.Service satisfies it.
type PermissionSource interface {
	EffectivePermissionsCached(ctx context.Context, userID int64) ([]string, error)
	EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error)
}

// StageGate supplies the current stage's endpoint and permission
// restrictions. *stage.Service satisfies it.
type StageGate interface {
	IsEndpointBlocked(ctx context.Context, path string) (bool, *stage.Stage, error)
	DisallowedForCurrent(ctx context.Context) ([]string, error)
}

// Decision is the outcome of a permission check, including enough context
// for a caller to explain a denial.
type Decision struct {
	Allowed         bool     `json:"allowed"`
	Required        []string `json:"required_permissions"`
	UserPermissions []string `json:"user_permissions"`
	UserRoles       []string `json:"user_roles"`
	Reason          string   `json:"reason,omitempty"`
}

// DecisionObserver receives the outcome of every check for metrics.
type DecisionObserver interface {
	ObserveDecision(outcome string)
}

// Engine evaluates permission checks against the role graph and the current
// stage. Any lookup failure denies: access control fails closed.
type Engine struct {
	perms    PermissionSource
	stages   StageGate
	observer DecisionObserver
	now      func() time.Time
}

// NewEngine builds an Engine instance. observer may be nil.
func NewEngine(perms PermissionSource, stages StageGate, observer DecisionObserver) *Engine {
	return &Engine{perms: perms, stages: stages, observer: observer, now: time.Now}
}

// Check decides whether userID may perform action on resource. A check
// passes when the user holds either the specific permission
// (resource_action) or the blanket resource_admin permission, minus
// whatever the current stage explicitly disallows.
func (e *Engine) Check(ctx context.Context, userID int64, resource, action string) (Decision, error) {
	required := []string{
		catalog.PermissionName(catalog.ResourceType(resource), catalog.PermissionType(action)),
		catalog.PermissionName(catalog.ResourceType(resource), catalog.PermAdmin),
	}
	decision := Decision{Required: required}

	held, err := e.perms.EffectivePermissionsCached(ctx, userID)
	if err != nil {
		e.observe("deny")
		return decision, err
	}
	roles, err := e.perms.EffectiveRoles(ctx, userID, e.now())
	if err != nil {
		e.observe("deny")
		return decision, err
	}
	disallowed, err := e.stages.DisallowedForCurrent(ctx)
	if err != nil {
		e.observe("deny")
		return decision, err
	}

	decision.UserRoles = roles
	decision.UserPermissions = subtract(held, disallowed)

	for _, name := range required {
		if containsName(decision.UserPermissions, name) {
			decision.Allowed = true
			e.observe("allow")
			return decision, nil
		}
	}

	decision.Reason = "missing permission " + required[0]
	if containsName(held, required[0]) || containsName(held, required[1]) {
		decision.Reason = "permission disabled during the current stage"
	}
	e.observe("deny")
	return decision, nil
}

func (e *Engine) observe(outcome string) {
	if e.observer != nil {
		e.observer.ObserveDecision(outcome)
	}
}

func subtract(held, removed []string) []string {
	if len(removed) == 0 {
		return held
	}
	out := make([]string, 0, len(held))
	for _, name := range held {
		if !containsName(removed, name) {
			out = append(out, name)
		}
	}
	return out
}

func containsName(list []string, name string) bool {
	for _, item := range list {
		if item == name {
			return true
		}
	}
	return false
}
