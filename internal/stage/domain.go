package stage

import "time"

// Type identifies a phase of the counselling process. The set below is the
// seeded default; new types can be added through the admin surface without
// code changes.
type Type string

const (
	TypeStage1    Type = "stage_1" // College Registration
	TypeStage2    Type = "stage_2" // Student Registration
	TypeStage3    Type = "stage_3" // Application Processing
	TypeStage4    Type = "stage_4" // Results and Allotment
	TypeCompleted Type = "completed"
)

// Stage is one phase of the process. At most one row system-wide carries
// is_active = true; activation is a single atomic statement so readers can
// never observe two active stages.
type Stage struct {
	ID                  int64
	StageType           Type
	Name                string
	Description         string
	IsActive            bool
	StartDate           *time.Time
	EndDate             *time.Time
	AllowedRoles        []string
	BlockedEndpoints    []string
	RequiredPermissions []string
	CreatedBy           *int64
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Permission is a per-stage permission override. is_allowed=false tightens
// the role-based result during this stage; overrides never grant.
type Permission struct {
	StageID      int64
	PermissionID int64
	IsAllowed    bool
	CreatedAt    time.Time
}

// registrationRoles is the hardcoded stage-type registration rule: during
// college registration only the college role may register, during student
// registration only the student role. Stages absent from this table permit
// no registrations regardless of their allowed_roles configuration.
var registrationRoles = map[Type]string{
	TypeStage1: "college",
	TypeStage2: "student",
}

// bypassPrefixes are never stage-gated: introspection, health, login/refresh,
// and the stage-read endpoints themselves (otherwise nobody could find out
// why they are blocked).
var bypassPrefixes = []string{
	"/docs",
	"/redoc",
	"/openapi.json",
	"/healthz",
	"/metrics",
	"/api/auth/login",
	"/api/auth/refresh",
	"/api/auth/registration-status",
	"/api/stages/current",
	"/api/stages/check-registration",
}
