package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/app"
	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/contextkeys"
	"github.com/platinummonkey/carehub/pkg/observability"
)

const (
	jobBilling   = "billing"
	jobSweep     = "sweep"
	jobReconcile = "reconcile"
	jobAll       = "all"
)

type runner struct {
	svc     *app.Services
	logger  logrus.FieldLogger
	timeout time.Duration
}

func newRunner(svc *app.Services, logger logrus.FieldLogger, timeout time.Duration) *runner {
	return &runner{svc: svc, logger: logger, timeout: timeout}
}

// runOnce runs one job, or all of them in billing, sweep, reconcile order.
func (r *runner) runOnce(ctx context.Context, name string, day time.Time) error {
	jobs := map[string]func(context.Context, time.Time) error{
		jobBilling:   r.billing,
		jobSweep:     r.sweep,
		jobReconcile: r.reconcile,
	}

	if name != jobAll {
		fn, ok := jobs[name]
		if !ok {
			return fmt.Errorf("unknown job %q", name)
		}
		return r.invoke(ctx, name, fn, day)
	}

	for _, name := range []string{jobBilling, jobSweep, jobReconcile} {
		if err := r.invoke(ctx, name, jobs[name], day); err != nil {
			return err
		}
	}
	return nil
}

// scheduled adapts a job to a cron callback. Each run is bounded by the
// runner timeout; failures and panics are logged and the next tick runs
// again. The callback blocks until the run ends so cron can skip overlapping
// ticks.
func (r *runner) scheduled(ctx context.Context, name string, fn func(context.Context, time.Time) error) func() {
	return func() {
		<-async.SafeGo(ctx, r.logger.WithField("job", name), r.timeout, name+" job", func(ctx context.Context) error {
			return r.invoke(ctx, name, fn, time.Time{})
		})
	}
}

func (r *runner) invoke(ctx context.Context, name string, fn func(context.Context, time.Time) error, day time.Time) error {
	runID := uuid.NewString()
	logger := r.logger.WithFields(logrus.Fields{"job": name, "run_id": runID})
	ctx = contextkeys.WithRequestID(ctx, runID)
	ctx = observability.WithLogger(ctx, logger)

	logger.Info("Job started")
	if err := fn(ctx, day); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func (r *runner) billing(ctx context.Context, day time.Time) error {
	report, err := r.svc.Billing.Run(ctx, day)
	if err != nil {
		return err
	}
	observability.FromContext(ctx, r.logger).Info(report.Summary())
	return nil
}

func (r *runner) sweep(ctx context.Context, day time.Time) error {
	report, err := r.svc.Invoices.SweepExpirations(ctx, day)
	if err != nil {
		return err
	}
	observability.FromContext(ctx, r.logger).WithFields(logrus.Fields{
		"expired": len(report.Expired),
		"skipped": report.Skipped,
		"failed":  report.Failed(),
	}).Info("Expiry sweep finished")
	return nil
}

func (r *runner) reconcile(ctx context.Context, day time.Time) error {
	reports, err := r.svc.Ledger.ReconcileAll(ctx, r.svc.Roster, day)
	if err != nil {
		return err
	}

	var mutations, failures int
	for _, report := range reports {
		mutations += report.Mutations()
		failures += len(report.Failures)
	}
	observability.FromContext(ctx, r.logger).WithFields(logrus.Fields{
		"role_groups": len(reports),
		"mutations":   mutations,
		"failures":    failures,
	}).Info("Roster reconciliation finished")
	return nil
}
