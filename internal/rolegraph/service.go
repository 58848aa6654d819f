package rolegraph

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
)

// ErrNotFound indicates that a referenced role, permission, or user does not exist.
var ErrNotFound = errors.New("rolegraph: not found")

// ErrDuplicate indicates a role name collision.
var ErrDuplicate = errors.New("rolegraph: duplicate role name")

// ErrSystemRole indicates an attempt to delete or rename a protected system role.
var ErrSystemRole = errors.New("rolegraph: system role is protected")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	CreateRole(ctx context.Context, name, description string, isSystemRole bool, createdBy *int64) (Role, error)
	GetRole(ctx context.Context, id int64) (Role, error)
	ListRoles(ctx context.Context) ([]Role, error)
	UpdateRole(ctx context.Context, id int64, name, description string) (Role, error)
	DeleteRole(ctx context.Context, id int64) error
	UpsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64, expiresAt *time.Time) (RolePermission, error)
	ExpireRolePermission(ctx context.Context, roleID, permissionID int64, at time.Time) error
	UpsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error)
	ExpireUserRole(ctx context.Context, userID, roleID int64, at time.Time) error
	EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]string, error)
	EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error)
}

// Service orchestrates role graph operations. All mutations invalidate the
// effective-permission cache synchronously so a revoke is never shadowed by
// a stale cached allow.
type Service struct {
	repo   RepositoryPort
	cache  *Cache
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a Service. The cache may be nil to disable caching.
func NewService(repo RepositoryPort, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// CreateRole inserts a new role.
func (s *Service) CreateRole(ctx context.Context, name, description string, isSystemRole bool, createdBy *int64) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rolegraph: role name required")
	}
	return s.repo.CreateRole(ctx, name, strings.TrimSpace(description), isSystemRole, createdBy)
}

// GetRole fetches a role by ID.
func (s *Service) GetRole(ctx context.Context, id int64) (Role, error) {
	return s.repo.GetRole(ctx, id)
}

// ListRoles returns all roles.
func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	return s.repo.ListRoles(ctx)
}

// UpdateRole updates an existing role. System roles keep their name.
func (s *Service) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Role{}, errors.New("rolegraph: role name required")
	}
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return Role{}, err
	}
	if existing.IsSystemRole && existing.Name != name {
		return Role{}, ErrSystemRole
	}
	return s.repo.UpdateRole(ctx, id, name, strings.TrimSpace(description))
}

// DeleteRole removes a role. System roles are never deleted.
func (s *Service) DeleteRole(ctx context.Context, id int64) error {
	existing, err := s.repo.GetRole(ctx, id)
	if err != nil {
		return err
	}
	if existing.IsSystemRole {
		return ErrSystemRole
	}
	if err := s.repo.DeleteRole(ctx, id); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// AssignPermission grants a permission to a role. Re-assigning an existing
// edge overwrites its expiry.
func (s *Service) AssignPermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64, expiresAt *time.Time) (RolePermission, error) {
	edge, err := s.repo.UpsertRolePermission(ctx, roleID, permissionID, grantedBy, expiresAt)
	if err != nil {
		return RolePermission{}, err
	}
	s.invalidateAll(ctx)
	return edge, nil
}

// RevokePermission expires the (role, permission) edge immediately. Idempotent.
func (s *Service) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	if err := s.repo.ExpireRolePermission(ctx, roleID, permissionID, s.now()); err != nil {
		return err
	}
	s.invalidateAll(ctx)
	return nil
}

// AssignRoleToUser grants a role to a user.
func (s *Service) AssignRoleToUser(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	edge, err := s.repo.UpsertUserRole(ctx, userID, roleID, assignedBy, expiresAt)
	if err != nil {
		return UserRole{}, err
	}
	s.invalidateUser(ctx, userID)
	return edge, nil
}

// RevokeRoleFromUser expires the (user, role) edge immediately. Idempotent.
func (s *Service) RevokeRoleFromUser(ctx context.Context, userID, roleID int64) error {
	if err := s.repo.ExpireUserRole(ctx, userID, roleID, s.now()); err != nil {
		return err
	}
	s.invalidateUser(ctx, userID)
	return nil
}

// EffectivePermissions computes the time-filtered union of permission names
// reachable from the user's roles, fresh from the store.
func (s *Service) EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	return s.repo.EffectivePermissions(ctx, userID, at)
}

// EffectiveRoles computes the user's non-expired role names, fresh from the store.
func (s *Service) EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	return s.repo.EffectiveRoles(ctx, userID, at)
}

// EffectivePermissionsCached resolves the current permission set through the
// short-TTL cache. Falls back to the store when the cache is disabled or cold.
func (s *Service) EffectivePermissionsCached(ctx context.Context, userID int64) ([]string, error) {
	if s.cache != nil {
		if perms, ok := s.cache.GetPermissions(ctx, userID); ok {
			return perms, nil
		}
	}
	perms, err := s.repo.EffectivePermissions(ctx, userID, s.now())
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.SetPermissions(ctx, userID, perms)
	}
	return perms, nil
}

func (s *Service) invalidateUser(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUser(ctx, userID); err != nil && s.logger != nil {
		s.logger.Warn("rolegraph cache invalidate user", slog.Int64("user_id", userID), slog.Any("error", err))
	}
}

func (s *Service) invalidateAll(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateAll(ctx); err != nil && s.logger != nil {
		s.logger.Warn("rolegraph cache invalidate all", slog.Any("error", err))
	}
}
