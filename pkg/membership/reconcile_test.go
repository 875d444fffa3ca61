package membership

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
)

type fakeRoster struct {
	mu        sync.Mutex
	members   map[string]map[int64]bool
	failAdd   map[int64]bool
	failList  bool
	mutations int
}

func newFakeRoster() *fakeRoster {
	return &fakeRoster{
		members: make(map[string]map[int64]bool),
		failAdd: make(map[int64]bool),
	}
}

func (f *fakeRoster) Add(_ context.Context, role string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAdd[id] {
		return errors.New("roster unavailable")
	}
	if f.members[role] == nil {
		f.members[role] = make(map[int64]bool)
	}
	f.members[role][id] = true
	f.mutations++
	return nil
}

func (f *fakeRoster) Remove(_ context.Context, role string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.members[role], id)
	f.mutations++
	return nil
}

func (f *fakeRoster) List(_ context.Context, role string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failList {
		return nil, errors.New("connection refused")
	}
	var ids []int64
	for id := range f.members[role] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func TestReconcile_AddsAndRemoves(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01")
	roster := newFakeRoster()

	_, err := ledger.Grant(ctx, GrantRequest{SubjectID: 1, RoleGroup: "care"})
	require.NoError(t, err)
	_, err = ledger.Grant(ctx, GrantRequest{SubjectID: 2, RoleGroup: "care", EndDate: period.Ptr(period.MustParse("2024-02-01"))})
	require.NoError(t, err)

	// subject 2 expired, subject 3 never had a grant
	require.NoError(t, roster.Add(ctx, "care", 2))
	require.NoError(t, roster.Add(ctx, "care", 3))

	report, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, report.Added)
	assert.Equal(t, []int64{2, 3}, report.Removed)
	assert.Empty(t, report.Failures)

	listed, err := roster.List(ctx, "care")
	require.NoError(t, err)
	assert.Equal(t, []int64{1}, listed)
}

func TestReconcile_Idempotent(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01")
	roster := newFakeRoster()

	for _, id := range []int64{1, 2, 3} {
		_, err := ledger.Grant(ctx, GrantRequest{SubjectID: id, RoleGroup: "care"})
		require.NoError(t, err)
	}

	first, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 3, first.Mutations())

	before := roster.mutations
	second, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	require.NoError(t, err)
	assert.Zero(t, second.Mutations())
	assert.Equal(t, before, roster.mutations)
}

func TestReconcile_CollectsFailuresAndContinues(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01", WithReconcileOptions(1, time.Second))
	roster := newFakeRoster()
	roster.failAdd[2] = true

	for _, id := range []int64{1, 2, 3} {
		_, err := ledger.Grant(ctx, GrantRequest{SubjectID: id, RoleGroup: "care"})
		require.NoError(t, err)
	}

	report, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, report.Added)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, int64(2), report.Failures[0].SubjectID)
	assert.Equal(t, OpAdd, report.Failures[0].Operation)
	assert.ErrorIs(t, report.Failures[0].Err, apperr.ErrExternalService)

	// the failed subject is retried on the next pass
	delete(roster.failAdd, 2)
	retry, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, []int64{2}, retry.Added)
}

func TestReconcile_RosterListFailure(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01")
	roster := newFakeRoster()
	roster.failList = true

	_, err := ledger.Reconcile(ctx, "care", roster, time.Time{})
	assert.ErrorIs(t, err, apperr.ErrExternalService)
}

func TestReconcileAll(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01")
	roster := newFakeRoster()

	_, err := ledger.Grant(ctx, GrantRequest{SubjectID: 1, RoleGroup: "care"})
	require.NoError(t, err)
	_, err = ledger.Grant(ctx, GrantRequest{SubjectID: 2, RoleGroup: "billing"})
	require.NoError(t, err)

	reports, err := ledger.ReconcileAll(ctx, roster, time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 3)

	added := map[string][]int64{}
	for _, r := range reports {
		assert.Empty(t, r.Failures)
		added[r.RoleGroup] = r.Added
	}
	assert.Equal(t, []int64{1}, added["care"])
	assert.Equal(t, []int64{2}, added["billing"])
	assert.Empty(t, added["AuthorizedGroupName"])
}

func TestReconcileAll_ListFailureIsReported(t *testing.T) {
	ctx := context.Background()
	ledger, _ := newTestLedger(t, "2024-03-01")
	roster := newFakeRoster()
	roster.failList = true

	reports, err := ledger.ReconcileAll(ctx, roster, time.Time{})
	require.NoError(t, err)
	require.Len(t, reports, 3)
	for _, r := range reports {
		require.Len(t, r.Failures, 1)
		assert.Equal(t, OpList, r.Failures[0].Operation)
	}
}
