package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Repository provides PostgreSQL backed persistence for the permission catalog.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new permission. Returns ErrDuplicate when the
// (resource_type, permission_type) pair already exists.
func (r *Repository) Create(ctx context.Context, resource ResourceType, action PermissionType, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		INSERT INTO permissions (resource_type, permission_type, description)
		VALUES ($1, $2, $3)
		RETURNING id, resource_type, permission_type, description, created_at, updated_at`,
		resource, action, description,
	).Scan(&p.ID, &p.ResourceType, &p.PermissionType, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return Permission{}, ErrDuplicate
		}
		return Permission{}, err
	}
	return p, nil
}

// Get fetches a permission by ID.
func (r *Repository) Get(ctx context.Context, id int64) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		SELECT id, resource_type, permission_type, description, created_at, updated_at
		FROM permissions WHERE id = $1`, id,
	).Scan(&p.ID, &p.ResourceType, &p.PermissionType, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// List returns permissions ordered by resource then action. An empty resource
// filter returns the whole catalog.
func (r *Repository) List(ctx context.Context, resource ResourceType) ([]Permission, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, resource_type, permission_type, description, created_at, updated_at
		FROM permissions
		WHERE $1 = '' OR resource_type = $1
		ORDER BY resource_type, permission_type`, string(resource))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var perms []Permission
	for rows.Next() {
		var p Permission
		if err := rows.Scan(&p.ID, &p.ResourceType, &p.PermissionType, &p.Description, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		perms = append(perms, p)
	}
	return perms, rows.Err()
}

// UpdateDescription changes the description. Identity fields are immutable.
func (r *Repository) UpdateDescription(ctx context.Context, id int64, description string) (Permission, error) {
	var p Permission
	err := r.pool.QueryRow(ctx, `
		UPDATE permissions SET description = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING id, resource_type, permission_type, description, created_at, updated_at`,
		id, description,
	).Scan(&p.ID, &p.ResourceType, &p.PermissionType, &p.Description, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}
