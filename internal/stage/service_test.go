package stage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/counselgate/counselgate/testing"
)

type overrideKey struct {
	stageID, permissionID int64
}

type memoryStageRepo struct {
	mu        sync.Mutex
	stages    map[int64]Stage
	overrides map[overrideKey]Permission
	permNames map[int64]string
	nextID    int64
}

func newMemoryStageRepo() *memoryStageRepo {
	return &memoryStageRepo{
		stages:    make(map[int64]Stage),
		overrides: make(map[overrideKey]Permission),
		permNames: make(map[int64]string),
	}
}

func (r *memoryStageRepo) addPermission(id int64, name string) {
	r.permNames[id] = name
}

func (r *memoryStageRepo) Create(ctx context.Context, s Stage) (Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.stages {
		if existing.StageType == s.StageType {
			return Stage{}, ErrDuplicate
		}
	}
	r.nextID++
	s.ID = r.nextID
	s.CreatedAt = time.Now()
	s.UpdatedAt = s.CreatedAt
	r.stages[s.ID] = s
	return s, nil
}

func (r *memoryStageRepo) Get(ctx context.Context, id int64) (Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[id]
	if !ok {
		return Stage{}, ErrNotFound
	}
	return s, nil
}

func (r *memoryStageRepo) GetByType(ctx context.Context, stageType Type) (Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stages {
		if s.StageType == stageType {
			return s, nil
		}
	}
	return Stage{}, ErrNotFound
}

func (r *memoryStageRepo) List(ctx context.Context) ([]Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Stage, 0, len(r.stages))
	for _, s := range r.stages {
		out = append(out, s)
	}
	return out, nil
}

func (r *memoryStageRepo) Update(ctx context.Context, s Stage) (Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.stages[s.ID]
	if !ok {
		return Stage{}, ErrNotFound
	}
	existing.Name = s.Name
	existing.Description = s.Description
	existing.StartDate = s.StartDate
	existing.EndDate = s.EndDate
	existing.AllowedRoles = s.AllowedRoles
	existing.BlockedEndpoints = s.BlockedEndpoints
	existing.RequiredPermissions = s.RequiredPermissions
	existing.UpdatedAt = time.Now()
	r.stages[s.ID] = existing
	return existing, nil
}

func (r *memoryStageRepo) Activate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.stages[id]; !ok {
		return ErrNotFound
	}
	for key, s := range r.stages {
		s.IsActive = key == id
		r.stages[key] = s
	}
	return nil
}

func (r *memoryStageRepo) Deactivate(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stages[id]
	if !ok {
		return ErrNotFound
	}
	s.IsActive = false
	r.stages[id] = s
	return nil
}

func (r *memoryStageRepo) Current(ctx context.Context) (Stage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stages {
		if s.IsActive {
			return s, nil
		}
	}
	return Stage{}, ErrNoActiveStage
}

func (r *memoryStageRepo) SetPermissionOverride(ctx context.Context, stageID, permissionID int64, isAllowed bool) (Permission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.permNames[permissionID]; !ok {
		return Permission{}, ErrNotFound
	}
	p := Permission{StageID: stageID, PermissionID: permissionID, IsAllowed: isAllowed, CreatedAt: time.Now()}
	r.overrides[overrideKey{stageID, permissionID}] = p
	return p, nil
}

func (r *memoryStageRepo) DisallowedPermissions(ctx context.Context, stageID int64) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for key, p := range r.overrides {
		if key.stageID == stageID && !p.IsAllowed {
			out = append(out, r.permNames[key.permissionID])
		}
	}
	return out, nil
}

func newStageFixture(t *testing.T) (*Service, *memoryStageRepo) {
	t.Helper()
	repo := newMemoryStageRepo()
	return NewService(repo, nil), repo
}

func seedDefaults(t *testing.T, svc *Service) map[Type]Stage {
	t.Helper()
	created, err := svc.InitializeDefaults(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 5, created)

	stages, err := svc.List(context.Background())
	require.NoError(t, err)
	byType := make(map[Type]Stage, len(stages))
	for _, s := range stages {
		byType[s.StageType] = s
	}
	return byType
}

func TestInitializeDefaultsIsIdempotent(t *testing.T) {
	svc, _ := newStageFixture(t)
	seedDefaults(t, svc)

	created, err := svc.InitializeDefaults(context.Background(), nil)
	require.NoError(t, err)
	require.Zero(t, created)

	stages, err := svc.List(context.Background())
	require.NoError(t, err)
	require.Len(t, stages, 5)
}

func TestActivateIsExclusive(t *testing.T) {
	svc, _ := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()

	_, err := svc.Activate(ctx, byType[TypeStage1].ID)
	require.NoError(t, err)
	_, err = svc.Activate(ctx, byType[TypeStage2].ID)
	require.NoError(t, err)

	stages, err := svc.List(ctx)
	require.NoError(t, err)
	active := 0
	for _, s := range stages {
		if s.IsActive {
			active++
			require.Equal(t, TypeStage2, s.StageType)
		}
	}
	require.Equal(t, 1, active)
}

func TestActivateUnknownStage(t *testing.T) {
	svc, _ := newStageFixture(t)
	_, err := svc.Activate(context.Background(), 404)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestNoActiveStageBlocksEverything(t *testing.T) {
	svc, _ := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()

	_, err := svc.Activate(ctx, byType[TypeStage1].ID)
	require.NoError(t, err)
	require.NoError(t, svc.Deactivate(ctx, byType[TypeStage1].ID))

	blocked, current, err := svc.IsEndpointBlocked(ctx, "/api/colleges")
	require.NoError(t, err)
	require.True(t, blocked)
	require.Nil(t, current)

	// Bypass endpoints stay reachable even with no active stage.
	blocked, _, err = svc.IsEndpointBlocked(ctx, "/api/stages/current")
	require.NoError(t, err)
	require.False(t, blocked)
	blocked, _, err = svc.IsEndpointBlocked(ctx, "/healthz")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestEndpointBlockingUsesPrefixMatch(t *testing.T) {
	svc, _ := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()

	_, err := svc.Activate(ctx, byType[TypeStage1].ID)
	require.NoError(t, err)

	// stage_1 blocks /api/students; sub-paths are covered by the prefix.
	blocked, current, err := svc.IsEndpointBlocked(ctx, "/api/students/42/applications")
	require.NoError(t, err)
	require.True(t, blocked)
	require.NotNil(t, current)
	require.Equal(t, TypeStage1, current.StageType)

	blocked, _, err = svc.IsEndpointBlocked(ctx, "/api/colleges/register")
	require.NoError(t, err)
	require.False(t, blocked)
}

func TestRegistrationFollowsStageType(t *testing.T) {
	svc, _ := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()

	_, err := svc.Activate(ctx, byType[TypeStage1].ID)
	require.NoError(t, err)

	status, err := svc.IsRegistrationAllowed(ctx, "college")
	require.NoError(t, err)
	require.True(t, status.Allowed)

	status, err = svc.IsRegistrationAllowed(ctx, "student")
	require.NoError(t, err)
	require.False(t, status.Allowed)
	require.Contains(t, status.Message, "college")

	_, err = svc.Activate(ctx, byType[TypeStage2].ID)
	require.NoError(t, err)

	status, err = svc.IsRegistrationAllowed(ctx, "student")
	require.NoError(t, err)
	require.True(t, status.Allowed)

	status, err = svc.IsRegistrationAllowed(ctx, "college")
	require.NoError(t, err)
	require.False(t, status.Allowed)
}

func TestRegistrationClosedOutsideRegistrationStages(t *testing.T) {
	svc, _ := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()

	// No active stage at all.
	status, err := svc.IsRegistrationAllowed(ctx, "student")
	require.NoError(t, err)
	require.False(t, status.Allowed)

	// Processing stage has no registration rule.
	_, err = svc.Activate(ctx, byType[TypeStage3].ID)
	require.NoError(t, err)
	for _, role := range []string{"student", "college", "admin"} {
		status, err = svc.IsRegistrationAllowed(ctx, role)
		require.NoError(t, err)
		require.False(t, status.Allowed)
	}
}

func TestRegistrationRequiresAllowedRole(t *testing.T) {
	svc, _ := newStageFixture(t)
	ctx := context.Background()

	// Stage-type rule says student, but the configured allowed_roles list
	// was narrowed to admin only; the intersection denies.
	created, err := svc.Create(ctx, Stage{
		StageType:    TypeStage2,
		Name:         "Restricted Student Registration",
		AllowedRoles: []string{"admin"},
	})
	require.NoError(t, err)
	_, err = svc.Activate(ctx, created.ID)
	require.NoError(t, err)

	status, err := svc.IsRegistrationAllowed(ctx, "student")
	require.NoError(t, err)
	require.False(t, status.Allowed)
}

func TestDisallowedForCurrentStage(t *testing.T) {
	svc, repo := newStageFixture(t)
	byType := seedDefaults(t, svc)
	ctx := context.Background()
	repo.addPermission(7, "college_write")

	// No active stage: nothing to subtract.
	names, err := svc.DisallowedForCurrent(ctx)
	require.NoError(t, err)
	require.Empty(t, names)

	_, err = svc.Activate(ctx, byType[TypeStage4].ID)
	require.NoError(t, err)
	_, err = svc.SetPermissionOverride(ctx, byType[TypeStage4].ID, 7, false)
	require.NoError(t, err)

	names, err = svc.DisallowedForCurrent(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"college_write"}, names)

	// Flipping the override back to allowed clears the subtraction.
	_, err = svc.SetPermissionOverride(ctx, byType[TypeStage4].ID, 7, true)
	require.NoError(t, err)
	names, err = svc.DisallowedForCurrent(ctx)
	require.NoError(t, err)
	require.Empty(t, names)
}

func TestCurrentInfoWithoutActiveStage(t *testing.T) {
	svc, _ := newStageFixture(t)
	info, err := svc.CurrentInfo(context.Background())
	require.NoError(t, err)
	require.Nil(t, info.CurrentStage)
	require.Contains(t, info.Message, "blocked")
}
