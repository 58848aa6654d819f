package stage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/counselgate/counselgate/internal/platform/db"
)

// Repository provides PostgreSQL persistence for stages. The list-valued
// columns (allowed_roles, blocked_endpoints, required_permissions) are JSONB.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const stageColumns = `id, stage_type, name, description, is_active, start_date, end_date,
	allowed_roles, blocked_endpoints, required_permissions, created_by, created_at, updated_at`

func scanStage(row pgx.Row) (Stage, error) {
	var s Stage
	err := row.Scan(
		&s.ID, &s.StageType, &s.Name, &s.Description, &s.IsActive,
		&s.StartDate, &s.EndDate,
		&s.AllowedRoles, &s.BlockedEndpoints, &s.RequiredPermissions,
		&s.CreatedBy, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

// Create inserts a stage. The unique constraint on stage_type maps to
// ErrDuplicate.
func (r *Repository) Create(ctx context.Context, s Stage) (Stage, error) {
	query := `
		INSERT INTO stages (stage_type, name, description, is_active, start_date, end_date,
			allowed_roles, blocked_endpoints, required_permissions, created_by)
		VALUES ($1, $2, $3, FALSE, $4, $5, $6, $7, $8, $9)
		RETURNING ` + stageColumns

	row := r.pool.QueryRow(ctx, query,
		s.StageType, s.Name, s.Description, s.StartDate, s.EndDate,
		s.AllowedRoles, s.BlockedEndpoints, s.RequiredPermissions, s.CreatedBy,
	)
	created, err := scanStage(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Stage{}, ErrDuplicate
		}
		return Stage{}, err
	}
	return created, nil
}

// Get fetches a stage by id.
func (r *Repository) Get(ctx context.Context, id int64) (Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE id = $1`
	s, err := scanStage(r.pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stage{}, ErrNotFound
	}
	return s, err
}

// GetByType fetches a stage by its type.
func (r *Repository) GetByType(ctx context.Context, stageType Type) (Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE stage_type = $1`
	s, err := scanStage(r.pool.QueryRow(ctx, query, stageType))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stage{}, ErrNotFound
	}
	return s, err
}

// List returns all stages in creation order.
func (r *Repository) List(ctx context.Context) ([]Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Update replaces the mutable fields of a stage. stage_type and is_active
// are not touched here; activation has its own statement.
func (r *Repository) Update(ctx context.Context, s Stage) (Stage, error) {
	query := `
		UPDATE stages
		SET name = $2, description = $3, start_date = $4, end_date = $5,
			allowed_roles = $6, blocked_endpoints = $7, required_permissions = $8,
			updated_at = NOW()
		WHERE id = $1
		RETURNING ` + stageColumns

	row := r.pool.QueryRow(ctx, query,
		s.ID, s.Name, s.Description, s.StartDate, s.EndDate,
		s.AllowedRoles, s.BlockedEndpoints, s.RequiredPermissions,
	)
	updated, err := scanStage(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Stage{}, ErrNotFound
	}
	return updated, err
}

// Activate makes exactly one stage active. The flag flip is a single UPDATE
// over all rows, so no reader can ever see two active stages; the
// transaction only ties the existence check to it.
func (r *Repository) Activate(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM stages WHERE id = $1)`, id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		_, err := tx.Exec(ctx, `UPDATE stages SET is_active = (id = $1), updated_at = NOW()`, id)
		return err
	})
}

// Deactivate clears the active flag on one stage, leaving the system with no
// active stage.
func (r *Repository) Deactivate(ctx context.Context, id int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE stages SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Current returns the active stage, or ErrNoActiveStage when none is active.
func (r *Repository) Current(ctx context.Context) (Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE is_active = TRUE LIMIT 1`
	s, err := scanStage(r.pool.QueryRow(ctx, query))
	if errors.Is(err, pgx.ErrNoRows) {
		return Stage{}, ErrNoActiveStage
	}
	return s, err
}

// SetPermissionOverride upserts a per-stage permission override.
func (r *Repository) SetPermissionOverride(ctx context.Context, stageID, permissionID int64, isAllowed bool) (Permission, error) {
	query := `
		INSERT INTO stage_permissions (stage_id, permission_id, is_allowed)
		VALUES ($1, $2, $3)
		ON CONFLICT (stage_id, permission_id)
		DO UPDATE SET is_allowed = EXCLUDED.is_allowed
		RETURNING stage_id, permission_id, is_allowed, created_at`

	var p Permission
	err := r.pool.QueryRow(ctx, query, stageID, permissionID, isAllowed).
		Scan(&p.StageID, &p.PermissionID, &p.IsAllowed, &p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Permission{}, ErrNotFound
		}
		return Permission{}, err
	}
	return p, nil
}

// DisallowedPermissions returns the permission names explicitly denied for
// the given stage through is_allowed=false overrides.
func (r *Repository) DisallowedPermissions(ctx context.Context, stageID int64) ([]string, error) {
	query := `
		SELECT p.resource_type || '_' || p.permission_type
		FROM stage_permissions sp
		JOIN permissions p ON p.id = sp.permission_id
		WHERE sp.stage_id = $1 AND sp.is_allowed = FALSE
		ORDER BY 1`

	rows, err := r.pool.Query(ctx, query, stageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// ScheduledExpirations returns active stages whose end_date has passed.
// The worker uses this to deactivate stages on schedule.
func (r *Repository) ScheduledExpirations(ctx context.Context, at time.Time) ([]Stage, error) {
	query := `SELECT ` + stageColumns + ` FROM stages WHERE is_active = TRUE AND end_date IS NOT NULL AND end_date < $1`
	rows, err := r.pool.Query(ctx, query, at)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Stage
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
