package auditlog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides PostgreSQL persistence for access log entries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds a Repository instance.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Insert stores one entry.
func (r *Repository) Insert(ctx context.Context, e Entry) error {
	query := `
		INSERT INTO access_logs (user_id, endpoint_path, http_method, request_ip, user_agent,
			action, resource_type, resource_id, success, error_message, response_status,
			execution_time_ms, timestamp)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.pool.Exec(ctx, query,
		e.UserID, e.EndpointPath, e.HTTPMethod, e.RequestIP, e.UserAgent,
		e.Action, e.ResourceType, e.ResourceID, e.Success, e.ErrorMessage,
		e.ResponseStatus, e.ExecutionTimeMs, e.Timestamp,
	)
	return err
}

// Query returns matching entries newest first, plus the total match count
// for pagination.
func (r *Repository) Query(ctx context.Context, filter Filter, page, perPage int) ([]Entry, int64, error) {
	if perPage <= 0 {
		perPage = 20
	}
	if page <= 0 {
		page = 1
	}
	where, args := buildWhere(filter)

	var total int64
	countQuery := "SELECT COUNT(*) FROM access_logs" + where
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, endpoint_path, http_method, request_ip, user_agent,
			action, resource_type, resource_id, success, error_message, response_status,
			execution_time_ms, timestamp
		FROM access_logs%s
		ORDER BY timestamp DESC
		LIMIT $%d OFFSET $%d`, where, len(args)+1, len(args)+2)
	args = append(args, perPage, (page-1)*perPage)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func buildWhere(filter Filter) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.UserID != nil {
		add("user_id = $%d", *filter.UserID)
	}
	if filter.Action != "" {
		add("action = $%d", filter.Action)
	}
	if filter.Success != nil {
		add("success = $%d", *filter.Success)
	}
	if filter.From != nil {
		add("timestamp >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("timestamp <= $%d", *filter.To)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntries(rows pgx.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var e Entry
		err := rows.Scan(
			&e.ID, &e.UserID, &e.EndpointPath, &e.HTTPMethod, &e.RequestIP, &e.UserAgent,
			&e.Action, &e.ResourceType, &e.ResourceID, &e.Success, &e.ErrorMessage,
			&e.ResponseStatus, &e.ExecutionTimeMs, &e.Timestamp,
		)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DeleteOlderThan removes entries past the retention horizon. The worker
// calls this on a schedule.
func (r *Repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM access_logs WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
