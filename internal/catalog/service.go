package catalog

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound indicates that the requested permission does not exist.
var ErrNotFound = errors.New("catalog: permission not found")

// ErrDuplicate indicates a (resource, action) identity collision.
var ErrDuplicate = errors.New("catalog: permission already exists")

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	Create(ctx context.Context, resource ResourceType, action PermissionType, description string) (Permission, error)
	Get(ctx context.Context, id int64) (Permission, error)
	List(ctx context.Context, resource ResourceType) ([]Permission, error)
	UpdateDescription(ctx context.Context, id int64, description string) (Permission, error)
}

// Service orchestrates permission catalog operations.
type Service struct {
	repo RepositoryPort
}

// NewService constructs a Service.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// Create registers a new permission identity.
func (s *Service) Create(ctx context.Context, resource ResourceType, action PermissionType, description string) (Permission, error) {
	resource = ResourceType(strings.TrimSpace(strings.ToLower(string(resource))))
	action = PermissionType(strings.TrimSpace(strings.ToLower(string(action))))
	if resource == "" || action == "" {
		return Permission{}, errors.New("catalog: resource and permission type required")
	}
	return s.repo.Create(ctx, resource, action, strings.TrimSpace(description))
}

// Get fetches a permission by ID.
func (s *Service) Get(ctx context.Context, id int64) (Permission, error) {
	return s.repo.Get(ctx, id)
}

// List returns the catalog, optionally filtered by resource type.
func (s *Service) List(ctx context.Context, resource ResourceType) ([]Permission, error) {
	return s.repo.List(ctx, resource)
}

// UpdateDescription changes a permission's description. The identity pair is
// immutable once created; callers attempting to change it get ErrImmutable
// at the handler layer before this is reached.
func (s *Service) UpdateDescription(ctx context.Context, id int64, description string) (Permission, error) {
	return s.repo.UpdateDescription(ctx, id, strings.TrimSpace(description))
}

// EnsureDefaults seeds the default permission set. Idempotent: identities
// that already exist are left untouched.
func (s *Service) EnsureDefaults(ctx context.Context) (int, error) {
	created := 0
	for _, d := range defaultPermissions {
		_, err := s.repo.Create(ctx, d.resource, d.action, d.description)
		if err != nil {
			if errors.Is(err, ErrDuplicate) {
				continue
			}
			return created, err
		}
		created++
	}
	return created, nil
}
