package auditlog

import "time"

// Entry is one recorded access attempt. UserID is nil for unauthenticated
// requests; those are recorded too.
type Entry struct {
	ID              int64      `json:"id"`
	UserID          *int64     `json:"user_id"`
	EndpointPath    string     `json:"endpoint_path"`
	HTTPMethod      string     `json:"http_method"`
	RequestIP       string     `json:"request_ip"`
	UserAgent       string     `json:"user_agent"`
	Action          string     `json:"action"`
	ResourceType    string     `json:"resource_type"`
	ResourceID      *string    `json:"resource_id"`
	Success         bool       `json:"success"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	ResponseStatus  int        `json:"response_status"`
	ExecutionTimeMs int64      `json:"execution_time_ms"`
	Timestamp       time.Time `json:"timestamp"`
}

// Filter narrows a log query. Zero-valued fields are ignored.
type Filter struct {
	UserID  *int64
	Action  string
	Success *bool
	From    *time.Time
	To      *time.Time
}
