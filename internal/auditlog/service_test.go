package auditlog

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	_ "github.com/counselgate/counselgate/testing"
)

type memoryLogRepo struct {
	mu        sync.Mutex
	entries   []Entry
	failWrite bool
	nextID    int64
}

func (r *memoryLogRepo) Insert(ctx context.Context, e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failWrite {
		return errors.New("storage unavailable")
	}
	r.nextID++
	e.ID = r.nextID
	r.entries = append(r.entries, e)
	return nil
}

func (r *memoryLogRepo) Query(ctx context.Context, filter Filter, page, perPage int) ([]Entry, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Entry
	for _, e := range r.entries {
		if filter.UserID != nil && (e.UserID == nil || *e.UserID != *filter.UserID) {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		if filter.Success != nil && e.Success != *filter.Success {
			continue
		}
		if filter.From != nil && e.Timestamp.Before(*filter.From) {
			continue
		}
		if filter.To != nil && e.Timestamp.After(*filter.To) {
			continue
		}
		matched = append(matched, e)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := int64(len(matched))
	start := (page - 1) * perPage
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + perPage
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memoryLogRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kept []Entry
	var removed int64
	for _, e := range r.entries {
		if e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	r.entries = kept
	return removed, nil
}

func entryAt(userID int64, action string, success bool, at time.Time) Entry {
	return Entry{
		UserID:       &userID,
		EndpointPath: "/api/colleges",
		HTTPMethod:   "GET",
		Action:       action,
		ResourceType: "college",
		Success:      success,
		Timestamp:    at,
	}
}

func TestRecordNeverFailsTheCaller(t *testing.T) {
	repo := &memoryLogRepo{failWrite: true}
	svc := NewService(repo, nil)

	// Must not panic or surface the storage error.
	svc.Record(context.Background(), entryAt(1, "read", true, time.Now()))
	require.Empty(t, repo.entries)
}

func TestRecordFillsTimestamp(t *testing.T) {
	repo := &memoryLogRepo{}
	svc := NewService(repo, nil)

	svc.Record(context.Background(), Entry{EndpointPath: "/api/students", HTTPMethod: "POST"})
	require.Len(t, repo.entries, 1)
	require.False(t, repo.entries[0].Timestamp.IsZero())
	require.Nil(t, repo.entries[0].UserID)
}

func TestQueryFilters(t *testing.T) {
	repo := &memoryLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()
	base := time.Now()

	svc.Record(ctx, entryAt(1, "read", true, base.Add(-3*time.Hour)))
	svc.Record(ctx, entryAt(1, "write", false, base.Add(-2*time.Hour)))
	svc.Record(ctx, entryAt(2, "read", true, base.Add(-time.Hour)))

	userID := int64(1)
	entries, total, err := svc.Query(ctx, Filter{UserID: &userID}, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, entries, 2)
	// Newest first.
	require.Equal(t, "write", entries[0].Action)

	failed := false
	entries, total, err = svc.Query(ctx, Filter{Success: &failed}, 1, 20)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "write", entries[0].Action)

	from := base.Add(-90 * time.Minute)
	entries, _, err = svc.Query(ctx, Filter{From: &from}, 1, 20)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.EqualValues(t, 2, *entries[0].UserID)
}

func TestQueryPagination(t *testing.T) {
	repo := &memoryLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		svc.Record(ctx, entryAt(1, "read", true, time.Now().Add(time.Duration(i)*time.Second)))
	}

	entries, total, err := svc.Query(ctx, Filter{}, 2, 2)
	require.NoError(t, err)
	require.EqualValues(t, 5, total)
	require.Len(t, entries, 2)

	// Out-of-range pages come back empty, not as an error.
	entries, _, err = svc.Query(ctx, Filter{}, 9, 2)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestExportCSV(t *testing.T) {
	repo := &memoryLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.Record(ctx, entryAt(1, "read", true, time.Now().Add(-time.Minute)))
	svc.Record(ctx, entryAt(2, "write", false, time.Now()))

	var sb strings.Builder
	require.NoError(t, svc.ExportCSV(ctx, Filter{}, &sb))

	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	require.Len(t, lines, 3)
	require.True(t, strings.HasPrefix(lines[0], "id,user_id,endpoint_path"))
	require.Contains(t, lines[1], "write")
	require.Contains(t, lines[2], "read")
}

func TestPrune(t *testing.T) {
	repo := &memoryLogRepo{}
	svc := NewService(repo, nil)
	ctx := context.Background()

	svc.Record(ctx, entryAt(1, "read", true, time.Now().Add(-48*time.Hour)))
	svc.Record(ctx, entryAt(1, "read", true, time.Now()))

	removed, err := svc.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, removed)
	require.Len(t, repo.entries, 1)
}
