package invoices

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

const sweepJob = "invoice_expiry"

var tracer = otel.Tracer("github.com/platinummonkey/carehub/pkg/invoices")

var errNoLongerEligible = errors.New("invoice no longer eligible for expiry")

// SweepReport summarizes one expiry sweep.
type SweepReport struct {
	AsOf     time.Time
	Cutoff   time.Time
	Expired  []int64
	Skipped  int
	Failures map[int64]error
	// NotifyFailures counts transition hooks that failed after an invoice
	// had already been expired.
	NotifyFailures int
}

// Failed returns the number of invoices that could not be expired.
func (r *SweepReport) Failed() int {
	return len(r.Failures)
}

// SweepExpirations expires every outstanding invoice whose due date is more
// than the grace period before asOf. Partially paid invoices never expire.
// One failing invoice does not stop the others.
func (l *Lifecycle) SweepExpirations(ctx context.Context, asOf time.Time) (*SweepReport, error) {
	started := l.now()
	if asOf.IsZero() {
		asOf = started
	}
	asOf = period.Date(asOf)
	cutoff := asOf.AddDate(0, 0, -l.graceDays)

	candidates, err := l.store.ListOutstandingDueBefore(ctx, cutoff)
	if err != nil {
		l.metrics.ObserveJobRun(sweepJob, observability.OutcomeFailure, time.Since(started))
		return nil, fmt.Errorf("failed to list expiry candidates: %w", err)
	}

	report := &SweepReport{AsOf: asOf, Cutoff: cutoff, Failures: make(map[int64]error)}
	// an abandoned item may still finish after Batch returns
	var mu sync.Mutex
	expired := make([]bool, len(candidates))
	skipped := make([]bool, len(candidates))
	var notifyFailures atomic.Int64

	positions := make([]int, len(candidates))
	for i := range candidates {
		positions[i] = i
	}

	errs := async.Batch(ctx, positions, l.sweep, func(ctx context.Context, i int) error {
		inv := candidates[i]
		ctx, span := tracer.Start(ctx, "invoices.Expire",
			trace.WithAttributes(attribute.Int64("invoice.id", inv.ID)))
		defer span.End()
		logger := observability.WithTraceContext(ctx, l.logger).WithField("invoice_id", inv.ID)

		updated, err := l.store.Update(ctx, inv.ID, func(locked *Invoice) (*History, error) {
			if locked.Status != StatusOutstanding || !locked.DueDate.Before(cutoff) {
				return nil, errNoLongerEligible
			}
			locked.Status = StatusExpired
			return &History{
				Kind:       KindExpiry,
				Amount:     locked.Outstanding(),
				FromStatus: StatusOutstanding,
				ToStatus:   StatusExpired,
				Note:       fmt.Sprintf("unpaid %d days after due date", l.graceDays),
			}, nil
		})
		if errors.Is(err, errNoLongerEligible) {
			mu.Lock()
			skipped[i] = true
			mu.Unlock()
			logger.Debug("invoice no longer eligible for expiry")
			return nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "expiry failed")
			return err
		}

		mu.Lock()
		expired[i] = true
		mu.Unlock()
		logger.WithField("due_date", updated.DueDate.Format(time.DateOnly)).Info("invoice expired")
		if n := l.fireTransition(ctx, updated, StatusOutstanding, StatusExpired); n > 0 {
			notifyFailures.Add(int64(n))
		}
		return nil
	})

	mu.Lock()
	for i, inv := range candidates {
		switch {
		case errs[i] != nil:
			report.Failures[inv.ID] = errs[i]
			l.metrics.JobItem(sweepJob, observability.OutcomeFailure)
			l.logger.WithField("invoice_id", inv.ID).WithError(errs[i]).Error("failed to expire invoice")
		case skipped[i]:
			report.Skipped++
			l.metrics.JobItem(sweepJob, observability.OutcomeSkipped)
		case expired[i]:
			report.Expired = append(report.Expired, inv.ID)
			l.metrics.JobItem(sweepJob, observability.OutcomeSuccess)
		}
	}
	mu.Unlock()
	report.NotifyFailures = int(notifyFailures.Load())

	outcome := observability.OutcomeSuccess
	if report.Failed() > 0 {
		outcome = observability.OutcomeFailure
	}
	l.metrics.ObserveJobRun(sweepJob, outcome, time.Since(started))

	l.logger.WithFields(logrus.Fields{
		"as_of":           asOf.Format(time.DateOnly),
		"cutoff":          cutoff.Format(time.DateOnly),
		"candidates":      len(candidates),
		"expired":         len(report.Expired),
		"skipped":         report.Skipped,
		"failed":          report.Failed(),
		"notify_failures": report.NotifyFailures,
	}).Info("expiry sweep finished")

	return report, nil
}
