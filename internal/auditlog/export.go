package auditlog

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{
	"id", "user_id", "endpoint_path", "http_method", "request_ip", "user_agent",
	"action", "resource_type", "resource_id", "success", "error_message",
	"response_status", "execution_time_ms", "timestamp",
}

// exportPageSize bounds memory while streaming large exports.
const exportPageSize = 500

// ExportCSV streams matching entries to w as CSV, newest first.
func (s *Service) ExportCSV(ctx context.Context, filter Filter, w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}

	for page := 1; ; page++ {
		entries, total, err := s.repo.Query(ctx, filter, page, exportPageSize)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if err := cw.Write(csvRow(e)); err != nil {
				return err
			}
		}
		if int64(page*exportPageSize) >= total || len(entries) == 0 {
			break
		}
	}

	cw.Flush()
	return cw.Error()
}

func csvRow(e Entry) []string {
	userID := ""
	if e.UserID != nil {
		userID = strconv.FormatInt(*e.UserID, 10)
	}
	resourceID := ""
	if e.ResourceID != nil {
		resourceID = *e.ResourceID
	}
	return []string{
		strconv.FormatInt(e.ID, 10),
		userID,
		e.EndpointPath,
		e.HTTPMethod,
		e.RequestIP,
		e.UserAgent,
		e.Action,
		e.ResourceType,
		resourceID,
		strconv.FormatBool(e.Success),
		e.ErrorMessage,
		strconv.Itoa(e.ResponseStatus),
		strconv.FormatInt(e.ExecutionTimeMs, 10),
		e.Timestamp.Format("2006-01-02T15:04:05Z07:00"),
	}
}
