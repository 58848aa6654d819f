package rolegraph

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
)

// Repository provides PostgreSQL backed persistence for the role graph.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateRole inserts a new role. Returns ErrDuplicate on a name collision.
func (r *Repository) CreateRole(ctx context.Context, name, description string, isSystemRole bool, createdBy *int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		INSERT INTO roles (name, description, is_system_role, created_by)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, description, is_system_role, created_by, created_at, updated_at`,
		name, description, isSystemRole, createdBy,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// GetRole fetches a role by ID.
func (r *Repository) GetRole(ctx context.Context, id int64) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, description, is_system_role, created_by, created_at, updated_at
		FROM roles WHERE id = $1`, id,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		return Role{}, err
	}
	return role, nil
}

// ListRoles returns all roles ordered by name.
func (r *Repository) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, description, is_system_role, created_by, created_at, updated_at
		FROM roles ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var roles []Role
	for rows.Next() {
		var role Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// UpdateRole updates name and description.
func (r *Repository) UpdateRole(ctx context.Context, id int64, name, description string) (Role, error) {
	var role Role
	err := r.pool.QueryRow(ctx, `
		UPDATE roles SET name = $2, description = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING id, name, description, is_system_role, created_by, created_at, updated_at`,
		id, name, description,
	).Scan(&role.ID, &role.Name, &role.Description, &role.IsSystemRole, &role.CreatedBy, &role.CreatedAt, &role.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Role{}, ErrNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Role{}, ErrDuplicate
		}
		return Role{}, err
	}
	return role, nil
}

// DeleteRole removes a role by ID.
func (r *Repository) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// UpsertRolePermission creates or refreshes the (role, permission) edge.
// Re-assigning overwrites expires_at, which un-expires a lapsed edge.
func (r *Repository) UpsertRolePermission(ctx context.Context, roleID, permissionID int64, grantedBy *int64, expiresAt *time.Time) (RolePermission, error) {
	var edge RolePermission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO role_permissions (role_id, permission_id, granted_by, granted_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (role_id, permission_id)
		DO UPDATE SET granted_by = EXCLUDED.granted_by, granted_at = NOW(), expires_at = EXCLUDED.expires_at
		RETURNING role_id, permission_id, granted_by, granted_at, expires_at`,
		roleID, permissionID, grantedBy, expiresAt,
	).Scan(&edge.RoleID, &edge.PermissionID, &edge.GrantedBy, &edge.GrantedAt, &edge.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return RolePermission{}, ErrNotFound
		}
		return RolePermission{}, err
	}
	return edge, nil
}

// ExpireRolePermission marks the edge lapsed as of the given instant.
// Idempotent: a missing or already-expired edge is a no-op. The row is never
// deleted so the grant history stays queryable.
func (r *Repository) ExpireRolePermission(ctx context.Context, roleID, permissionID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE role_permissions SET expires_at = $3
		WHERE role_id = $1 AND permission_id = $2
		  AND (expires_at IS NULL OR expires_at > $3)`,
		roleID, permissionID, at)
	return err
}

// UpsertUserRole creates or refreshes the (user, role) edge.
func (r *Repository) UpsertUserRole(ctx context.Context, userID, roleID int64, assignedBy *int64, expiresAt *time.Time) (UserRole, error) {
	var edge UserRole
	err := r.pool.QueryRow(ctx, `
		INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at, expires_at)
		VALUES ($1, $2, $3, NOW(), $4)
		ON CONFLICT (user_id, role_id)
		DO UPDATE SET assigned_by = EXCLUDED.assigned_by, assigned_at = NOW(), expires_at = EXCLUDED.expires_at
		RETURNING user_id, role_id, assigned_by, assigned_at, expires_at`,
		userID, roleID, assignedBy, expiresAt,
	).Scan(&edge.UserID, &edge.RoleID, &edge.AssignedBy, &edge.AssignedAt, &edge.ExpiresAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation {
			return UserRole{}, ErrNotFound
		}
		return UserRole{}, err
	}
	return edge, nil
}

// ExpireUserRole marks the edge lapsed as of the given instant. Idempotent.
func (r *Repository) ExpireUserRole(ctx context.Context, userID, roleID int64, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE user_roles SET expires_at = $3
		WHERE user_id = $1 AND role_id = $2
		  AND (expires_at IS NULL OR expires_at > $3)`,
		userID, roleID, at)
	return err
}

// EffectivePermissions returns deduplicated permission display names reachable
// from the user's non-expired roles, filtered at the given instant.
func (r *Repository) EffectivePermissions(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT p.resource_type || '_' || p.permission_type AS name
		FROM user_roles ur
		JOIN role_permissions rp ON rp.role_id = ur.role_id
		JOIN permissions p ON p.id = rp.permission_id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > $2)
		  AND (rp.expires_at IS NULL OR rp.expires_at > $2)
		ORDER BY name`,
		userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// EffectiveRoles returns the names of the user's non-expired roles.
func (r *Repository) EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT DISTINCT ro.name
		FROM user_roles ur
		JOIN roles ro ON ro.id = ur.role_id
		WHERE ur.user_id = $1
		  AND (ur.expires_at IS NULL OR ur.expires_at > $2)
		ORDER BY ro.name`,
		userID, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
