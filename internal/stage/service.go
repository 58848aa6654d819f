package stage

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

var (
	ErrNotFound      = errors.New("stage: not found")
	ErrDuplicate     = errors.New("stage: duplicate stage type")
	ErrNoActiveStage = errors.New("stage: no active stage")
)

// RepositoryPort abstracts persistence so the service can be unit tested.
type RepositoryPort interface {
	Create(ctx context.Context, s Stage) (Stage, error)
	Get(ctx context.Context, id int64) (Stage, error)
	GetByType(ctx context.Context, stageType Type) (Stage, error)
	List(ctx context.Context) ([]Stage, error)
	Update(ctx context.Context, s Stage) (Stage, error)
	Activate(ctx context.Context, id int64) error
	Deactivate(ctx context.Context, id int64) error
	Current(ctx context.Context) (Stage, error)
	SetPermissionOverride(ctx context.Context, stageID, permissionID int64, isAllowed bool) (Permission, error)
	DisallowedPermissions(ctx context.Context, stageID int64) ([]string, error)
}

// Service implements the stage state machine.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Create registers a new stage. Stages start inactive.
func (s *Service) Create(ctx context.Context, st Stage) (Stage, error) {
	st.StageType = Type(strings.TrimSpace(strings.ToLower(string(st.StageType))))
	st.IsActive = false
	return s.repo.Create(ctx, st)
}

// Get fetches a stage by id.
func (s *Service) Get(ctx context.Context, id int64) (Stage, error) {
	return s.repo.Get(ctx, id)
}

// List returns all stages.
func (s *Service) List(ctx context.Context) ([]Stage, error) {
	return s.repo.List(ctx)
}

// Update edits a stage's configuration. The stage type is immutable.
func (s *Service) Update(ctx context.Context, st Stage) (Stage, error) {
	if _, err := s.repo.Get(ctx, st.ID); err != nil {
		return Stage{}, err
	}
	return s.repo.Update(ctx, st)
}

// Activate makes the given stage the single active stage, deactivating
// whatever was active before in the same statement.
func (s *Service) Activate(ctx context.Context, id int64) (Stage, error) {
	if err := s.repo.Activate(ctx, id); err != nil {
		return Stage{}, err
	}
	st, err := s.repo.Get(ctx, id)
	if err != nil {
		return Stage{}, err
	}
	s.logger.Info("stage activated",
		slog.Int64("stage_id", st.ID),
		slog.String("stage_type", string(st.StageType)))
	return st, nil
}

// Deactivate clears the active stage. With no active stage the system fails
// closed: all non-bypass traffic is blocked until an admin activates one.
func (s *Service) Deactivate(ctx context.Context, id int64) error {
	if err := s.repo.Deactivate(ctx, id); err != nil {
		return err
	}
	s.logger.Warn("stage deactivated, all gated endpoints now blocked", slog.Int64("stage_id", id))
	return nil
}

// Current returns the active stage, or ErrNoActiveStage.
func (s *Service) Current(ctx context.Context) (Stage, error) {
	return s.repo.Current(ctx)
}

// RegistrationStatus reports whether a role may register right now and why.
type RegistrationStatus struct {
	Allowed      bool   `json:"allowed"`
	Role         string `json:"role"`
	CurrentStage string `json:"current_stage,omitempty"`
	Message      string `json:"message"`
}

// IsRegistrationAllowed answers whether the given role may register during
// the current stage. The decision is the stage-type rule intersected with
// the stage's allowed_roles list; no active stage means nobody registers.
func (s *Service) IsRegistrationAllowed(ctx context.Context, role string) (RegistrationStatus, error) {
	role = strings.TrimSpace(strings.ToLower(role))
	status := RegistrationStatus{Role: role}

	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNoActiveStage) {
		status.Message = "registration is closed: no stage is currently active"
		return status, nil
	}
	if err != nil {
		return status, err
	}
	status.CurrentStage = current.Name

	required, ok := registrationRoles[current.StageType]
	if !ok {
		status.Message = "registration is not open during " + current.Name
		return status, nil
	}
	if role != required {
		status.Message = "only " + required + " registration is open during " + current.Name
		return status, nil
	}
	if !contains(current.AllowedRoles, role) {
		status.Message = role + " is not in the allowed roles for " + current.Name
		return status, nil
	}

	status.Allowed = true
	status.Message = role + " registration is open"
	return status, nil
}

// IsEndpointBlocked reports whether the path is gated off by the current
// stage. Bypass prefixes are never blocked; with no active stage everything
// else is.
func (s *Service) IsEndpointBlocked(ctx context.Context, path string) (bool, *Stage, error) {
	for _, prefix := range bypassPrefixes {
		if strings.HasPrefix(path, prefix) {
			return false, nil, nil
		}
	}

	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNoActiveStage) {
		return true, nil, nil
	}
	if err != nil {
		// Fail closed on lookup errors too.
		return true, nil, err
	}

	for _, blocked := range current.BlockedEndpoints {
		if blocked != "" && strings.HasPrefix(path, blocked) {
			return true, &current, nil
		}
	}
	return false, &current, nil
}

// SetPermissionOverride records a per-stage permission override.
func (s *Service) SetPermissionOverride(ctx context.Context, stageID, permissionID int64, isAllowed bool) (Permission, error) {
	if _, err := s.repo.Get(ctx, stageID); err != nil {
		return Permission{}, err
	}
	return s.repo.SetPermissionOverride(ctx, stageID, permissionID, isAllowed)
}

// DisallowedForCurrent lists permission names denied by override during the
// active stage. No active stage yields nothing to subtract; the endpoint
// gate already blocks everything in that state.
func (s *Service) DisallowedForCurrent(ctx context.Context) ([]string, error) {
	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNoActiveStage) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return s.repo.DisallowedPermissions(ctx, current.ID)
}

// Info summarises the current stage for display.
type Info struct {
	CurrentStage   *Stage   `json:"current_stage"`
	AllowedRoles   []string `json:"allowed_roles"`
	BlockedActions []string `json:"blocked_actions"`
	Message        string   `json:"message"`
}

// CurrentInfo returns a display summary of the active stage.
func (s *Service) CurrentInfo(ctx context.Context) (Info, error) {
	current, err := s.repo.Current(ctx)
	if errors.Is(err, ErrNoActiveStage) {
		return Info{Message: "no stage is currently active; all gated endpoints are blocked"}, nil
	}
	if err != nil {
		return Info{}, err
	}
	return Info{
		CurrentStage:   &current,
		AllowedRoles:   current.AllowedRoles,
		BlockedActions: current.BlockedEndpoints,
		Message:        current.Description,
	}, nil
}

// InitializeDefaults seeds the five standard process stages. Existing stage
// types are left untouched, so the call is idempotent. Returns the number of
// stages created.
func (s *Service) InitializeDefaults(ctx context.Context, createdBy *int64) (int, error) {
	created := 0
	for _, def := range defaultStages() {
		def.CreatedBy = createdBy
		_, err := s.repo.Create(ctx, def)
		if errors.Is(err, ErrDuplicate) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
	}
	if created > 0 {
		s.logger.Info("default stages initialised", slog.Int("created", created))
	}
	return created, nil
}

func defaultStages() []Stage {
	return []Stage{
		{
			StageType:        TypeStage1,
			Name:             "College Registration",
			Description:      "Colleges register and submit their details for verification.",
			AllowedRoles:     []string{"admin", "college"},
			BlockedEndpoints: []string{"/api/students", "/api/applications", "/api/allotments"},
			RequiredPermissions: []string{
				"college_write", "college_read",
			},
		},
		{
			StageType:        TypeStage2,
			Name:             "Student Registration",
			Description:      "Students register and submit applications to verified colleges.",
			AllowedRoles:     []string{"admin", "student", "college"},
			BlockedEndpoints: []string{"/api/colleges/register", "/api/allotments"},
			RequiredPermissions: []string{
				"student_write", "student_read",
			},
		},
		{
			StageType:        TypeStage3,
			Name:             "Application Processing",
			Description:      "Submitted applications are reviewed and verified.",
			AllowedRoles:     []string{"admin", "college"},
			BlockedEndpoints: []string{"/api/colleges/register", "/api/students/register"},
			RequiredPermissions: []string{
				"student_verify", "college_approve",
			},
		},
		{
			StageType:        TypeStage4,
			Name:             "Results and Allotment",
			Description:      "Seat allotment results are published to students and colleges.",
			AllowedRoles:     []string{"admin", "student", "college"},
			BlockedEndpoints: []string{"/api/colleges/register", "/api/students/register", "/api/applications"},
			RequiredPermissions: []string{
				"student_read", "college_read",
			},
		},
		{
			StageType:        TypeCompleted,
			Name:             "Process Completed",
			Description:      "The counselling process has concluded; data is read-only.",
			AllowedRoles:     []string{"admin"},
			BlockedEndpoints: []string{"/api/colleges", "/api/students", "/api/applications", "/api/allotments"},
			RequiredPermissions: []string{
				"system_read",
			},
		},
	}
}

func contains(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}
