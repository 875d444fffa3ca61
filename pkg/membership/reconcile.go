package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/observability"
)

const reconcileJob = "roster_reconcile"

// Roster operations.
const (
	OpAdd    = "add"
	OpRemove = "remove"
	OpList   = "list"
)

// Failure is one roster operation that did not complete.
type Failure struct {
	SubjectID int64
	Operation string
	Err       error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s subject %d: %v", f.Operation, f.SubjectID, f.Err)
}

// ReconcileReport describes one reconcile pass over a role group.
type ReconcileReport struct {
	RoleGroup string
	Added     []int64
	Removed   []int64
	Failures  []Failure
}

// Mutations returns the number of roster changes that were applied.
func (r *ReconcileReport) Mutations() int {
	return len(r.Added) + len(r.Removed)
}

type rosterOp struct {
	subjectID int64
	operation string
}

// Reconcile brings the roster entry of roleGroup in line with the subjects
// whose grants are in effect on at (zero means today). Subjects missing from
// the roster are added and stale entries removed. A failing roster call is
// recorded in the report and does not stop the remaining calls. Running it
// again without ledger changes performs no roster mutations.
func (l *Ledger) Reconcile(ctx context.Context, roleGroup string, roster Roster, at time.Time) (*ReconcileReport, error) {
	active, err := l.ActiveSubjects(ctx, roleGroup, at)
	if err != nil {
		return nil, fmt.Errorf("failed to compute active subjects: %w", err)
	}

	listed, err := roster.List(ctx, roleGroup)
	if err != nil {
		return nil, apperr.External("roster", err)
	}

	current := make(SubjectSet, len(listed))
	for _, id := range listed {
		current[id] = struct{}{}
	}

	var ops []rosterOp
	for _, id := range active.Sorted() {
		if !current.Has(id) {
			ops = append(ops, rosterOp{subjectID: id, operation: OpAdd})
		}
	}
	for _, id := range current.Sorted() {
		if !active.Has(id) {
			ops = append(ops, rosterOp{subjectID: id, operation: OpRemove})
		}
	}

	report := &ReconcileReport{RoleGroup: roleGroup}
	if len(ops) == 0 {
		return report, nil
	}

	errs := async.Batch(ctx, ops, l.batch, func(ctx context.Context, op rosterOp) error {
		if op.operation == OpAdd {
			return roster.Add(ctx, roleGroup, op.subjectID)
		}
		return roster.Remove(ctx, roleGroup, op.subjectID)
	})

	for i, op := range ops {
		if errs[i] != nil {
			report.Failures = append(report.Failures, Failure{
				SubjectID: op.subjectID,
				Operation: op.operation,
				Err:       apperr.External("roster", errs[i]),
			})
			l.metrics.RosterMutation(op.operation, observability.OutcomeFailure)
			l.logger.WithFields(logrus.Fields{
				"role_group": roleGroup,
				"subject_id": op.subjectID,
				"operation":  op.operation,
			}).WithError(errs[i]).Warn("roster update failed")
			continue
		}

		l.metrics.RosterMutation(op.operation, observability.OutcomeSuccess)
		if op.operation == OpAdd {
			report.Added = append(report.Added, op.subjectID)
		} else {
			report.Removed = append(report.Removed, op.subjectID)
		}
	}

	return report, nil
}

// ReconcileAll reconciles every role group. A role group whose roster cannot
// be read is reported with a single list failure and the run continues.
func (l *Ledger) ReconcileAll(ctx context.Context, roster Roster, at time.Time) ([]*ReconcileReport, error) {
	start := time.Now()

	groups, err := l.store.ListRoleGroups(ctx)
	if err != nil {
		l.metrics.ObserveJobRun(reconcileJob, observability.OutcomeFailure, time.Since(start))
		return nil, fmt.Errorf("failed to list role groups: %w", err)
	}

	reports := make([]*ReconcileReport, 0, len(groups))
	added, removed, failed := 0, 0, 0
	for _, g := range groups {
		report, err := l.Reconcile(ctx, g.Name, roster, at)
		if err != nil {
			report = &ReconcileReport{
				RoleGroup: g.Name,
				Failures:  []Failure{{Operation: OpList, Err: err}},
			}
			l.logger.WithField("role_group", g.Name).WithError(err).Error("reconcile failed")
		}
		added += len(report.Added)
		removed += len(report.Removed)
		failed += len(report.Failures)
		reports = append(reports, report)
	}

	outcome := observability.OutcomeSuccess
	if failed > 0 {
		outcome = observability.OutcomeFailure
	}
	l.metrics.ObserveJobRun(reconcileJob, outcome, time.Since(start))

	l.logger.WithFields(logrus.Fields{
		"role_groups": len(groups),
		"added":       added,
		"removed":     removed,
		"failed":      failed,
	}).Info("roster reconcile finished")

	return reports, nil
}
