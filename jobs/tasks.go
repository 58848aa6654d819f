package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"

	// TaskStageScheduleCheck deactivates active stages whose end date passed.
	TaskStageScheduleCheck = "stage:schedule_check"
	// TaskAuditPrune removes access log entries past the retention window.
	TaskAuditPrune = "audit:prune"
	// TaskEdgeArchive moves long-expired role graph edges to the archive table.
	TaskEdgeArchive = "rolegraph:edge_archive"
)

// AuditPrunePayload carries the retention window for a prune run.
type AuditPrunePayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewStageScheduleCheckTask constructs the periodic stage schedule task.
func NewStageScheduleCheckTask() *asynq.Task {
	return asynq.NewTask(TaskStageScheduleCheck, nil)
}

// NewAuditPruneTask constructs an audit prune task.
func NewAuditPruneTask(payload AuditPrunePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditPrune, data), nil
}

// NewEdgeArchiveTask constructs an edge archive task.
func NewEdgeArchiveTask() *asynq.Task {
	return asynq.NewTask(TaskEdgeArchive, nil)
}
