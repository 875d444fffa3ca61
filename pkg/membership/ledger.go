package membership

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

// RoleSet is a set of role group names.
type RoleSet map[string]struct{}

// Has reports whether the set contains role.
func (s RoleSet) Has(role string) bool {
	_, ok := s[role]
	return ok
}

// Sorted returns the role names in lexical order.
func (s RoleSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for r := range s {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

// SubjectSet is a set of subject ids.
type SubjectSet map[int64]struct{}

// Has reports whether the set contains id.
func (s SubjectSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s SubjectSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Ledger is the single entry point for reading and changing role grants.
type Ledger struct {
	store   Store
	now     func() time.Time
	logger  logrus.FieldLogger
	metrics *observability.Metrics
	hooks   []ChangeHook
	batch   async.BatchOptions
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock overrides the clock used when no explicit date is given.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithLogger sets the ledger logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMetrics records roster mutations and reconcile runs.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// WithChangeHook registers a hook called after every grant change.
func WithChangeHook(hook ChangeHook) Option {
	return func(l *Ledger) { l.hooks = append(l.hooks, hook) }
}

// WithReconcileOptions bounds the roster calls made by Reconcile.
func WithReconcileOptions(workers int, itemTimeout time.Duration) Option {
	return func(l *Ledger) {
		l.batch = async.BatchOptions{Workers: workers, ItemTimeout: itemTimeout}
	}
}

// NewLedger creates a ledger over store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:  store,
		now:    time.Now,
		logger: observability.NopLogger(),
		batch:  async.BatchOptions{Workers: 4, ItemTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// OnChange registers a hook after construction. It is not safe to call
// concurrently with ledger writes.
func (l *Ledger) OnChange(hook ChangeHook) {
	l.hooks = append(l.hooks, hook)
}

// Today returns the current civil date according to the ledger clock.
func (l *Ledger) Today() time.Time {
	return period.Date(l.now())
}

func (l *Ledger) dateOrToday(at time.Time) time.Time {
	if at.IsZero() {
		return l.Today()
	}
	return period.Date(at)
}

// Grant appends a new grant. Grants are never merged: re-granting a role
// that is already held adds another record to the history.
func (l *Ledger) Grant(ctx context.Context, req GrantRequest) (*Record, error) {
	if !(period.Interval{Start: req.StartDate, End: req.EndDate}).Valid() {
		return nil, apperr.InvalidPeriod("grant ends %s before it starts %s",
			req.EndDate.Format(time.DateOnly), req.StartDate.Format(time.DateOnly))
	}

	exists, err := l.store.SubjectExists(ctx, req.SubjectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperr.NotFound("subject", req.SubjectID)
	}

	if _, err := l.store.GetRoleGroup(ctx, req.RoleGroup); err != nil {
		return nil, err
	}

	record := &Record{
		SubjectID: req.SubjectID,
		RoleGroup: req.RoleGroup,
		StartDate: normalise(req.StartDate),
		EndDate:   normalise(req.EndDate),
		GrantedBy: req.GrantedBy,
	}
	if err := l.store.CreateRecord(ctx, record); err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"subject_id": record.SubjectID,
		"role_group": record.RoleGroup,
		"interval":   record.Interval().String(),
	}).Info("role granted")

	l.changed(record.SubjectID)
	return record, nil
}

// Revoke removes a grant. It is an administrative operation; expiry is
// normally expressed through the end date.
func (l *Ledger) Revoke(ctx context.Context, recordID int64) error {
	record, err := l.store.GetRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if err := l.store.DeleteRecord(ctx, recordID); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"record_id":  recordID,
		"subject_id": record.SubjectID,
		"role_group": record.RoleGroup,
	}).Info("grant revoked")

	l.changed(record.SubjectID)
	return nil
}

// Correct replaces the dates of an existing grant.
func (l *Ledger) Correct(ctx context.Context, recordID int64, start, end *time.Time) (*Record, error) {
	if !(period.Interval{Start: start, End: end}).Valid() {
		return nil, apperr.InvalidPeriod("corrected grant ends %s before it starts %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	record, err := l.store.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := l.store.UpdateRecordDates(ctx, recordID, start, end); err != nil {
		return nil, err
	}
	record.StartDate = normalise(start)
	record.EndDate = normalise(end)

	l.logger.WithFields(logrus.Fields{
		"record_id":  recordID,
		"subject_id": record.SubjectID,
		"interval":   record.Interval().String(),
	}).Info("grant corrected")

	l.changed(record.SubjectID)
	return record, nil
}

// ActiveRoles returns the role groups for which the subject holds at least
// one grant in effect on at. A zero at means today.
func (l *Ledger) ActiveRoles(ctx context.Context, subjectID int64, at time.Time) (RoleSet, error) {
	records, err := l.store.ListBySubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	day := l.dateOrToday(at)
	roles := make(RoleSet)
	for _, r := range records {
		if r.ActiveAt(day) {
			roles[r.RoleGroup] = struct{}{}
		}
	}
	return roles, nil
}

// ActiveSubjects returns the subjects holding a grant of roleGroup in effect
// on at. A zero at means today.
func (l *Ledger) ActiveSubjects(ctx context.Context, roleGroup string, at time.Time) (SubjectSet, error) {
	if _, err := l.store.GetRoleGroup(ctx, roleGroup); err != nil {
		return nil, err
	}

	records, err := l.store.ListByRoleGroup(ctx, roleGroup)
	if err != nil {
		return nil, err
	}

	day := l.dateOrToday(at)
	subjects := make(SubjectSet)
	for _, r := range records {
		if r.ActiveAt(day) {
			subjects[r.SubjectID] = struct{}{}
		}
	}
	return subjects, nil
}

// History returns every grant of a subject, including expired ones.
func (l *Ledger) History(ctx context.Context, subjectID int64) ([]Record, error) {
	return l.store.ListBySubject(ctx, subjectID)
}

// CreateRoleGroup creates a role group.
func (l *Ledger) CreateRoleGroup(ctx context.Context, name, description string) (*RoleGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("role group name is required")
	}
	group := &RoleGroup{Name: name, Description: description}
	if err := l.store.CreateRoleGroup(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// DeleteRoleGroup deletes a role group that no grant references. When roster
// is not nil its members for the group are removed first.
func (l *Ledger) DeleteRoleGroup(ctx context.Context, name string, roster Roster) error {
	records, err := l.store.ListByRoleGroup(ctx, name)
	if err != nil {
		return err
	}
	if len(records) > 0 {
		return fmt.Errorf("role group %q is referenced by %d grants: %w", name, len(records), apperr.ErrInvalidTransition)
	}
	if roster != nil {
		if err := clearRoster(ctx, roster, name); err != nil {
			return err
		}
	}
	return l.store.DeleteRoleGroup(ctx, name)
}

// clearRoster empties the roster of a role group. ReconcileAll only visits
// role groups that exist, so members left behind here would never be
// removed.
func clearRoster(ctx context.Context, roster Roster, roleGroup string) error {
	members, err := roster.List(ctx, roleGroup)
	if err != nil {
		return apperr.External("roster", fmt.Errorf("failed to list %q: %w", roleGroup, err))
	}
	for _, subjectID := range members {
		if err := roster.Remove(ctx, roleGroup, subjectID); err != nil {
			return apperr.External("roster", fmt.Errorf("failed to remove subject %d from %q: %w", subjectID, roleGroup, err))
		}
	}
	return nil
}

// ListRoleGroups lists all role groups.
func (l *Ledger) ListRoleGroups(ctx context.Context) ([]RoleGroup, error) {
	return l.store.ListRoleGroups(ctx)
}

func (l *Ledger) changed(subjectID int64) {
	for _, hook := range l.hooks {
		hook(subjectID)
	}
}
