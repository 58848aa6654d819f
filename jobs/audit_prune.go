package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// AuditPruner is the slice of the audit log layer the prune task needs.
type AuditPruner interface {
	Prune(ctx context.Context, retention time.Duration) (int64, error)
}

// NewAuditPruneHandler removes access log entries older than the retention
// window carried in the task payload.
func NewAuditPruneHandler(audit AuditPruner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload AuditPrunePayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		if payload.RetentionHours <= 0 {
			return asynq.SkipRetry
		}
		removed, err := audit.Prune(ctx, time.Duration(payload.RetentionHours)*time.Hour)
		if err != nil {
			return err
		}
		logger.Info("audit prune finished", slog.Int64("removed", removed))
		return nil
	}
}
