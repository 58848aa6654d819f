package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/counselgate/counselgate/internal/stage"
	_ "github.com/counselgate/counselgate/testing"
)

type fakePermissionSource struct {
	perms map[int64][]string
	roles map[int64][]string
	err   error
}

func (f *fakePermissionSource) EffectivePermissionsCached(ctx context.Context, userID int64) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.perms[userID], nil
}

func (f *fakePermissionSource) EffectiveRoles(ctx context.Context, userID int64, at time.Time) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.roles[userID], nil
}

type fakeStageGate struct {
	blocked    map[string]bool
	current    *stage.Stage
	disallowed []string
	err        error
}

func (f *fakeStageGate) IsEndpointBlocked(ctx context.Context, path string) (bool, *stage.Stage, error) {
	if f.err != nil {
		return true, nil, f.err
	}
	return f.blocked[path], f.current, nil
}

func (f *fakeStageGate) DisallowedForCurrent(ctx context.Context) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.disallowed, nil
}

type countingObserver struct {
	outcomes map[string]int
}

func newCountingObserver() *countingObserver {
	return &countingObserver{outcomes: make(map[string]int)}
}

func (o *countingObserver) ObserveDecision(outcome string) {
	o.outcomes[outcome]++
}

func TestCheckSpecificPermission(t *testing.T) {
	perms := &fakePermissionSource{
		perms: map[int64][]string{1: {"college_read", "student_read"}},
		roles: map[int64][]string{1: {"reviewer"}},
	}
	engine := NewEngine(perms, &fakeStageGate{}, nil)

	decision, err := engine.Check(context.Background(), 1, "college", "read")
	require.NoError(t, err)
	require.True(t, decision.Allowed)
	require.Equal(t, []string{"college_read", "college_admin"}, decision.Required)
	require.Equal(t, []string{"reviewer"}, decision.UserRoles)

	decision, err = engine.Check(context.Background(), 1, "college", "write")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "college_write")
}

func TestBlanketAdminSatisfiesAnyAction(t *testing.T) {
	perms := &fakePermissionSource{
		perms: map[int64][]string{1: {"college_admin"}},
		roles: map[int64][]string{1: {"college_admin"}},
	}
	engine := NewEngine(perms, &fakeStageGate{}, nil)

	for _, action := range []string{"read", "write", "delete", "approve"} {
		decision, err := engine.Check(context.Background(), 1, "college", action)
		require.NoError(t, err)
		require.True(t, decision.Allowed, action)
	}

	// The blanket is per resource, not global.
	decision, err := engine.Check(context.Background(), 1, "student", "read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
}

func TestStageOverrideOnlyTightens(t *testing.T) {
	perms := &fakePermissionSource{
		perms: map[int64][]string{1: {"college_read", "college_write"}},
		roles: map[int64][]string{1: {"college"}},
	}
	gate := &fakeStageGate{disallowed: []string{"college_write"}}
	engine := NewEngine(perms, gate, nil)

	decision, err := engine.Check(context.Background(), 1, "college", "write")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Contains(t, decision.Reason, "current stage")
	require.NotContains(t, decision.UserPermissions, "college_write")

	// Unrelated permissions are untouched.
	decision, err = engine.Check(context.Background(), 1, "college", "read")
	require.NoError(t, err)
	require.True(t, decision.Allowed)

	// A disallow the user never held grants nothing.
	gate.disallowed = []string{"student_read"}
	decision, err = engine.Check(context.Background(), 1, "student", "read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
}

func TestCheckFailsClosedOnLookupError(t *testing.T) {
	perms := &fakePermissionSource{err: errors.New("database down")}
	observer := newCountingObserver()
	engine := NewEngine(perms, &fakeStageGate{}, observer)

	decision, err := engine.Check(context.Background(), 1, "college", "read")
	require.Error(t, err)
	require.False(t, decision.Allowed)
	require.Equal(t, 1, observer.outcomes["deny"])
}

func TestDecisionMetrics(t *testing.T) {
	perms := &fakePermissionSource{
		perms: map[int64][]string{1: {"college_read"}},
		roles: map[int64][]string{1: {"college"}},
	}
	observer := newCountingObserver()
	engine := NewEngine(perms, &fakeStageGate{}, observer)

	_, err := engine.Check(context.Background(), 1, "college", "read")
	require.NoError(t, err)
	_, err = engine.Check(context.Background(), 1, "college", "delete")
	require.NoError(t, err)

	require.Equal(t, 1, observer.outcomes["allow"])
	require.Equal(t, 1, observer.outcomes["deny"])
}

func TestUnknownUserHasNoPermissions(t *testing.T) {
	engine := NewEngine(&fakePermissionSource{}, &fakeStageGate{}, nil)
	decision, err := engine.Check(context.Background(), 42, "college", "read")
	require.NoError(t, err)
	require.False(t, decision.Allowed)
	require.Empty(t, decision.UserPermissions)
}
