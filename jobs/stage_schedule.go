package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/counselgate/counselgate/internal/stage"
)

// StageScheduler is the slice of the stage layer the schedule check needs.
type StageScheduler interface {
	ScheduledExpirations(ctx context.Context, at time.Time) ([]stage.Stage, error)
	Deactivate(ctx context.Context, id int64) error
}

// NewStageScheduleHandler deactivates active stages whose end date has
// passed. With nothing scheduled it is a no-op; the system then has no
// active stage and fails closed until an admin activates the next one.
func NewStageScheduleHandler(stages StageScheduler, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		expired, err := stages.ScheduledExpirations(ctx, time.Now())
		if err != nil {
			return err
		}
		for _, s := range expired {
			if err := stages.Deactivate(ctx, s.ID); err != nil {
				return err
			}
			logger.Info("stage deactivated on schedule",
				slog.Int64("stage_id", s.ID),
				slog.String("stage_type", string(s.StageType)))
		}
		return nil
	}
}
