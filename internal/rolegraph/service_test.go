package rolegraph

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/counselgate/counselgate/testing"
)

type edgeKey struct {
	a, b int64
}

type memoryGraphRepo struct {
	mu         sync.Mutex
	roles      map[int64]Role
	perms      map[int64]string
	rolePerms  map[edgeKey]RolePermission
	userRoles  map[edgeKey]UserRole
	knownUsers map[int64]struct{}
	nextID     int64
}

func newMemoryGraphRepo() *memoryGraphRepo {
	return &memoryGraphRepo{
		roles:      make(map[int64]Role),
		perms:      make(map[int64]string),
		rolePerms:  make(map[edgeKey]RolePermission),
		userRoles:  make(map[edgeKey]UserRole),
		knownUsers: make(map[int64]struct{}),
	}
}

func (r *memoryGraphRepo) addPermission(id int64, name string) {
	r.perms[id] = name
}

func (r *memoryGraphRepo) addUser(id int64) {
	r.knownUsers[id] = struct{}{}
}

func (r *memoryGraphRepo) CreateRole(ctx context.Context, name, description string, isSystemRole bool, createdBy *int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, role := range r.roles {
		if role.Name == name {
			return Role{}, ErrDuplicate
		}
	}
	r.nextID++
	role := Role{ID: r.nextID, Name: name, Description: description, IsSystemRole: isSystemRole, CreatedBy: createdBy, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	r.roles[role.ID] = role
	return role, nil
}

func (r *memoryGraphRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	return role, nil
}

func (r *memoryGraphRepo) ListRoles(ctx context.Context) ([]Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Role, 0, len(r.roles))
	for _, role := range r.roles {
		out = append(out, role)
	}
	return out, nil
}

func (r *memoryGraphRepo) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	role, ok := r.roles[id]
	if !ok {
		return Role{}, ErrNotFound
	}
	role.Name = name
	role.Description = description
	role.UpdatedAt = time.Now()
	r.roles[id] = role
	return role, nil
}

func (r *memoryGraphRepo) DeleteRole(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[id]; !ok {
		return ErrNotFound
	}
	delete(r.roles, id)
	return nil
}

func (r *memoryGraphRepo) UpsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64, expiresAt *time.Time) (RolePermission, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.roles[roleID]; !ok {
		return RolePermission{}, ErrNotFound
	}
	if _, ok := r.perms[permissionID]; !ok {
		return RolePermission{}, ErrNotFound
	}
	edge := RolePermission{RoleID: roleID, PermissionID: permissionID, GrantedBy: grantedBy, GrantedAt: time.Now(), ExpiresAt: expiresAt}
	r.rolePerms[edgeKey{roleID, permissionID}] = edge
	return edge, nil
}

func (r *memoryGraphRepo) ExpireRolePermission(ctx context.Context, roleID, permissionID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := edgeKey{roleID, permissionID}
	edge, ok := r.rolePerms[key]
	if !ok || !edge.Active(at) {
		return nil
	}
	edge.ExpiresAt = &at
	r.rolePerms[key] = edge
	return nil
}

func (r *memoryGraphRepo) UpsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.knownUsers[userID]; !ok {
		return UserRole{}, ErrNotFound
	}
	if _, ok := r.roles[roleID]; !ok {
		return UserRole{}, ErrNotFound
	}
	edge := UserRole{UserID: userID, RoleID: roleID, AssignedBy: assignedBy, AssignedAt: time.Now(), ExpiresAt: expiresAt}
	r.userRoles[edgeKey{userID, roleID}] = edge
	return edge, nil
}

func (r *memoryGraphRepo) ExpireUserRole(ctx context.Context, userID, roleID int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := edgeKey{userID, roleID}
	edge, ok := r.userRoles[key]
	if !ok || !edge.Active(at) {
		return nil
	}
	edge.ExpiresAt = &at
	r.userRoles[key] = edge
	return nil
}

func (r *memoryGraphRepo) EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	for _, ur := range r.userRoles {
		if ur.UserID != userID || !ur.Active(at) {
			continue
		}
		for _, rp := range r.rolePerms {
			if rp.RoleID != ur.RoleID || !rp.Active(at) {
				continue
			}
			seen[r.perms[rp.PermissionID]] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

func (r *memoryGraphRepo) EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{})
	for _, ur := range r.userRoles {
		if ur.UserID != userID || !ur.Active(at) {
			continue
		}
		seen[r.roles[ur.RoleID].Name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	return out, nil
}

func newGraphFixture(t *testing.T) (*Service, *memoryGraphRepo) {
	t.Helper()
	repo := newMemoryGraphRepo()
	repo.addPermission(1, "college_read")
	repo.addPermission(2, "college_write")
	repo.addPermission(3, "college_approve")
	repo.addPermission(4, "student_read")
	repo.addUser(10)
	repo.addUser(11)
	return NewService(repo, nil, nil), repo
}

func TestEffectivePermissionsUnionAcrossRoles(t *testing.T) {
	svc, _ := newGraphFixture(t)
	ctx := context.Background()

	collegeAdmin, err := svc.CreateRole(ctx, "college_admin", "", true, nil)
	require.NoError(t, err)
	reviewer, err := svc.CreateRole(ctx, "reviewer", "", false, nil)
	require.NoError(t, err)

	for _, permID := range []int64{1, 2, 3} {
		_, err := svc.AssignPermission(ctx, collegeAdmin.ID, permID, nil, nil)
		require.NoError(t, err)
	}
	_, err = svc.AssignPermission(ctx, reviewer.ID, 1, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, reviewer.ID, 4, nil, nil)
	require.NoError(t, err)

	_, err = svc.AssignRoleToUser(ctx, 10, collegeAdmin.ID, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignRoleToUser(ctx, 10, reviewer.ID, nil, nil)
	require.NoError(t, err)

	perms, err := svc.EffectivePermissions(ctx, 10, time.Now())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"college_read", "college_write", "college_approve", "student_read"}, perms)

	// Assigning the same role twice must not duplicate entries.
	_, err = svc.AssignRoleToUser(ctx, 10, reviewer.ID, nil, nil)
	require.NoError(t, err)
	perms, err = svc.EffectivePermissions(ctx, 10, time.Now())
	require.NoError(t, err)
	require.Len(t, perms, 4)
}

func TestExpiredEdgesAreExcludedWithoutRevoke(t *testing.T) {
	svc, _ := newGraphFixture(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "temp", "", false, nil)
	require.NoError(t, err)
	expiry := time.Now().Add(time.Hour)
	_, err = svc.AssignPermission(ctx, role.ID, 1, nil, &expiry)
	require.NoError(t, err)
	_, err = svc.AssignRoleToUser(ctx, 10, role.ID, nil, nil)
	require.NoError(t, err)

	perms, err := svc.EffectivePermissions(ctx, 10, time.Now())
	require.NoError(t, err)
	require.Equal(t, []string{"college_read"}, perms)

	// Pure time-based exclusion: no revoke call, just a later instant.
	perms, err = svc.EffectivePermissions(ctx, 10, expiry.Add(time.Second))
	require.NoError(t, err)
	require.Empty(t, perms)
}

func TestRevokeIsImmediateAndIdempotent(t *testing.T) {
	svc, _ := newGraphFixture(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "granted", "", false, nil)
	require.NoError(t, err)
	_, err = svc.AssignPermission(ctx, role.ID, 1, nil, nil)
	require.NoError(t, err)
	_, err = svc.AssignRoleToUser(ctx, 10, role.ID, nil, nil)
	require.NoError(t, err)

	require.NoError(t, svc.RevokePermission(ctx, role.ID, 1))
	perms, err := svc.EffectivePermissions(ctx, 10, time.Now().Add(time.Millisecond))
	require.NoError(t, err)
	require.Empty(t, perms)

	// Second revoke is a no-op.
	require.NoError(t, svc.RevokePermission(ctx, role.ID, 1))
}

func TestReassignOverwritesExpiry(t *testing.T) {
	svc, repo := newGraphFixture(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "renewable", "", false, nil)
	require.NoError(t, err)
	soon := time.Now().Add(time.Minute)
	_, err = svc.AssignPermission(ctx, role.ID, 1, nil, &soon)
	require.NoError(t, err)

	later := time.Now().Add(24 * time.Hour)
	edge, err := svc.AssignPermission(ctx, role.ID, 1, nil, &later)
	require.NoError(t, err)
	require.Equal(t, later, *edge.ExpiresAt)
	require.Len(t, repo.rolePerms, 1)
}

func TestAssignPermissionUnknownRole(t *testing.T) {
	svc, _ := newGraphFixture(t)
	_, err := svc.AssignPermission(context.Background(), 999, 1, nil, nil)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSystemRoleProtection(t *testing.T) {
	svc, _ := newGraphFixture(t)
	ctx := context.Background()

	role, err := svc.CreateRole(ctx, "super_admin", "", true, nil)
	require.NoError(t, err)

	require.ErrorIs(t, svc.DeleteRole(ctx, role.ID), ErrSystemRole)

	_, err = svc.UpdateRole(ctx, role.ID, "renamed", "")
	require.ErrorIs(t, err, ErrSystemRole)

	// Description edits keep working.
	updated, err := svc.UpdateRole(ctx, role.ID, "super_admin", "root of trust")
	require.NoError(t, err)
	require.Equal(t, "root of trust", updated.Description)
}

func TestZeroRoleUserHasNoPermissions(t *testing.T) {
	svc, _ := newGraphFixture(t)
	perms, err := svc.EffectivePermissions(context.Background(), 11, time.Now())
	require.NoError(t, err)
	require.Empty(t, perms)
}
