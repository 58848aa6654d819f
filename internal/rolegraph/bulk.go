package rolegraph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const bulkConcurrency = 4

// BulkResult reports per-item outcomes of a bulk assignment. Bulk operations
// are best-effort, not transactional: succeeded items stay applied even when
// other items fail.
type BulkResult struct {
	Succeeded []int64
	Failed    map[int64]string
}

// BulkAssignRoleToUsers assigns a role to each user in userIDs.
func (s *Service) BulkAssignRoleToUsers(ctx context.Context, userIDs []int64, roleID int64, assignedBy *int64, expiresAt *time.Time) (BulkResult, error) {
	return s.bulkApply(ctx, userIDs, func(ctx context.Context, userID int64) error {
		_, err := s.repo.UpsertUserRole(ctx, userID, roleID, assignedBy, expiresAt)
		return err
	}, func(ctx context.Context, userID int64) {
		s.invalidateUser(ctx, userID)
	})
}

// BulkAssignPermissionToRoles assigns a permission to each role in roleIDs.
func (s *Service) BulkAssignPermissionToRoles(ctx context.Context, roleIDs []int64, permissionID int64, grantedBy *int64, expiresAt *time.Time) (BulkResult, error) {
	result, err := s.bulkApply(ctx, roleIDs, func(ctx context.Context, roleID int64) error {
		_, err := s.repo.UpsertRolePermission(ctx, roleID, permissionID, grantedBy, expiresAt)
		return err
	}, nil)
	if err == nil && len(result.Succeeded) > 0 {
		s.invalidateAll(ctx)
	}
	return result, err
}

func (s *Service) bulkApply(ctx context.Context, ids []int64, apply func(context.Context, int64) error, onSuccess func(context.Context, int64)) (BulkResult, error) {
	result := BulkResult{Failed: make(map[int64]string)}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bulkConcurrency)
	for _, id := range ids {
		g.Go(func() error {
			err := apply(gctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed[id] = err.Error()
				return nil
			}
			result.Succeeded = append(result.Succeeded, id)
			if onSuccess != nil {
				onSuccess(gctx, id)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	return result, nil
}
