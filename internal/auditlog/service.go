package auditlog

import (
	"context"
	"log/slog"
	"time"
)

// RepositoryPort abstracts persistence so the service can be unit tested.
type RepositoryPort interface {
	Insert(ctx context.Context, e Entry) error
	Query(ctx context.Context, filter Filter, page, perPage int) ([]Entry, int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service records and queries access log entries.
type Service struct {
	repo   RepositoryPort
	logger *slog.Logger
	now    func() time.Time
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Record stores an entry best-effort. Logging must never fail the request
// being logged, so storage errors are written to the structured log and
// swallowed.
func (s *Service) Record(ctx context.Context, e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = s.now()
	}
	if err := s.repo.Insert(ctx, e); err != nil {
		s.logger.Error("access log write failed",
			slog.Any("error", err),
			slog.String("endpoint", e.EndpointPath),
			slog.String("method", e.HTTPMethod))
	}
}

// Query returns matching entries newest first with the total match count.
func (s *Service) Query(ctx context.Context, filter Filter, page, perPage int) ([]Entry, int64, error) {
	entries, total, err := s.repo.Query(ctx, filter, page, perPage)
	if err != nil {
		return nil, 0, err
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, total, nil
}

// Prune deletes entries older than the retention window and reports how
// many were removed.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := s.now().Add(-retention)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("access logs pruned",
			slog.Int64("removed", removed),
			slog.Time("cutoff", cutoff))
	}
	return removed, nil
}
