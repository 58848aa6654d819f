package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// edgeArchiveAge is how long an edge must have been expired before it is
// moved to the archive tables. Effective permission queries only look at
// expires_at relative to now, so archiving this far back cannot change any
// decision.
const edgeArchiveAge = "180 days"

// NewEdgeArchiveHandler moves long-expired role graph edges into the
// archive tables, keeping the hot tables small without losing the grant
// history.
func NewEdgeArchiveHandler(pool *pgxpool.Pool, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if pool == nil {
			return nil
		}

		tag, err := pool.Exec(ctx, `
			WITH moved AS (
				DELETE FROM user_roles
				WHERE expires_at IS NOT NULL AND expires_at < NOW() - INTERVAL '`+edgeArchiveAge+`'
				RETURNING user_id, role_id, assigned_by, assigned_at, expires_at
			)
			INSERT INTO user_roles_archive (user_id, role_id, assigned_by, assigned_at, expires_at)
			SELECT user_id, role_id, assigned_by, assigned_at, expires_at FROM moved`)
		if err != nil {
			return err
		}
		userEdges := tag.RowsAffected()

		tag, err = pool.Exec(ctx, `
			WITH moved AS (
				DELETE FROM role_permissions
				WHERE expires_at IS NOT NULL AND expires_at < NOW() - INTERVAL '`+edgeArchiveAge+`'
				RETURNING role_id, permission_id, granted_by, granted_at, expires_at
			)
			INSERT INTO role_permissions_archive (role_id, permission_id, granted_by, granted_at, expires_at)
			SELECT role_id, permission_id, granted_by, granted_at, expires_at FROM moved`)
		if err != nil {
			return err
		}

		if archived := userEdges + tag.RowsAffected(); archived > 0 {
			logger.Info("role graph edges archived",
				slog.Int64("user_role_edges", userEdges),
				slog.Int64("role_permission_edges", tag.RowsAffected()))
		}
		return nil
	}
}
