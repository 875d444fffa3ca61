package billing

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/contracts"
	"github.com/platinummonkey/carehub/pkg/invoices"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

const jobName = "billing"

var tracer = otel.Tracer("github.com/platinummonkey/carehub/pkg/billing")

// Defaults for a Job.
const (
	DefaultWorkers     = 4
	DefaultItemTimeout = 30 * time.Second
)

// ContractSource lists the contracts to bill.
type ContractSource interface {
	ListClientIDs(ctx context.Context) ([]int64, error)
	ListForClient(ctx context.Context, clientID int64) ([]contracts.Contract, error)
}

// Outcome is the result of billing one client.
type Outcome string

const (
	OutcomeInvoiced Outcome = "invoiced"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// ClientResult records what happened to one client.
type ClientResult struct {
	ClientID  int64
	Outcome   Outcome
	InvoiceID int64
	Reason    string
	Err       error
}

// Report is the aggregate tally of a billing run.
type Report struct {
	Period   period.Billing
	Clients  int
	Invoiced int
	Skipped  int
	Failed   int
	Results  []ClientResult
	Failures map[int64]error
}

// Summary returns a one-line tally.
func (r *Report) Summary() string {
	return fmt.Sprintf("billing %s: %d clients, %d invoiced, %d skipped, %d failed",
		r.Period.Key(), r.Clients, r.Invoiced, r.Skipped, r.Failed)
}

// Job creates one invoice per client for the current billing month.
type Job struct {
	contracts ContractSource
	lifecycle *invoices.Lifecycle

	vatRate decimal.Decimal
	batch   async.BatchOptions
	now     func() time.Time

	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// Option configures a Job.
type Option func(*Job)

// WithVATRate sets the VAT percentage applied to new invoices.
func WithVATRate(rate decimal.Decimal) Option {
	return func(j *Job) { j.vatRate = rate }
}

// WithConcurrency bounds how many clients are billed at once and how long
// each may take.
func WithConcurrency(workers int, itemTimeout time.Duration) Option {
	return func(j *Job) {
		j.batch = async.BatchOptions{Workers: workers, ItemTimeout: itemTimeout}
	}
}

// WithClock overrides the clock used when Run is given a zero date.
func WithClock(now func() time.Time) Option {
	return func(j *Job) { j.now = now }
}

// WithLogger sets the job logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(j *Job) { j.logger = logger }
}

// WithMetrics records run and per-client outcomes.
func WithMetrics(m *observability.Metrics) Option {
	return func(j *Job) { j.metrics = m }
}

// NewJob creates a billing job.
func NewJob(source ContractSource, lifecycle *invoices.Lifecycle, opts ...Option) *Job {
	j := &Job{
		contracts: source,
		lifecycle: lifecycle,
		vatRate:   decimal.Zero,
		batch:     async.BatchOptions{Workers: DefaultWorkers, ItemTimeout: DefaultItemTimeout},
		now:       time.Now,
		logger:    observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// Run bills every client with at least one contract for the month containing
// today, over the period from the first of the month to today. A failing
// client is logged and counted; it never stops the run. Run only returns an
// error when the client list cannot be loaded.
func (j *Job) Run(ctx context.Context, today time.Time) (*Report, error) {
	started := time.Now()
	if today.IsZero() {
		today = j.now()
	}
	billing := period.Month(today)

	ctx, span := tracer.Start(ctx, "billing.Run",
		trace.WithAttributes(attribute.String("billing.period", billing.Key())))
	defer span.End()

	clientIDs, err := j.contracts.ListClientIDs(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list clients")
		j.metrics.ObserveJobRun(jobName, observability.OutcomeFailure, time.Since(started))
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}

	positions := make([]int, len(clientIDs))
	for i := range clientIDs {
		positions[i] = i
	}

	// an abandoned item may still finish after Batch returns
	var mu sync.Mutex
	results := make([]ClientResult, len(clientIDs))
	errs := async.Batch(ctx, positions, j.batch, func(ctx context.Context, i int) error {
		res := j.billClient(ctx, clientIDs[i], billing, period.Date(today))
		mu.Lock()
		results[i] = res
		mu.Unlock()
		return res.Err
	})

	report := &Report{Period: billing, Clients: len(clientIDs), Failures: make(map[int64]error)}
	mu.Lock()
	defer mu.Unlock()
	for i, clientID := range clientIDs {
		res := results[i]
		if errs[i] != nil {
			res = ClientResult{ClientID: clientID, Outcome: OutcomeFailed, Err: errs[i]}
		}
		report.Results = append(report.Results, res)

		switch res.Outcome {
		case OutcomeInvoiced:
			report.Invoiced++
			j.metrics.JobItem(jobName, observability.OutcomeSuccess)
		case OutcomeSkipped:
			report.Skipped++
			j.metrics.JobItem(jobName, observability.OutcomeSkipped)
		default:
			report.Failed++
			report.Failures[clientID] = res.Err
			j.metrics.JobItem(jobName, observability.OutcomeFailure)
			j.logger.WithField("client_id", clientID).WithError(res.Err).Error("failed to bill client")
		}
	}

	outcome := observability.OutcomeSuccess
	if report.Failed > 0 {
		outcome = observability.OutcomeFailure
		span.SetStatus(codes.Error, report.Summary())
	}
	j.metrics.ObserveJobRun(jobName, outcome, time.Since(started))

	span.SetAttributes(
		attribute.Int("billing.clients", report.Clients),
		attribute.Int("billing.invoiced", report.Invoiced),
		attribute.Int("billing.failed", report.Failed),
	)
	j.logger.WithFields(logrus.Fields{
		"period":   billing.Key(),
		"clients":  report.Clients,
		"invoiced": report.Invoiced,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"duration": time.Since(started).String(),
	}).Info(report.Summary())

	return report, nil
}

// billClient creates the client's invoice in its own transaction. The
// document is rendered and archived first so a render failure leaves nothing
// persisted and a later run retries the client.
func (j *Job) billClient(ctx context.Context, clientID int64, billing period.Billing, today time.Time) ClientResult {
	ctx, span := tracer.Start(ctx, "billing.Client",
		trace.WithAttributes(attribute.Int64("client.id", clientID)))
	defer span.End()
	logger := observability.WithTraceContext(ctx, j.logger).WithField("client_id", clientID)

	res := ClientResult{ClientID: clientID}
	fail := func(err error) ClientResult {
		span.RecordError(err)
		span.SetStatus(codes.Error, "client billing failed")
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}
	skip := func(reason string) ClientResult {
		res.Outcome = OutcomeSkipped
		res.Reason = reason
		logger.WithField("reason", reason).Debug("client skipped")
		return res
	}

	exists, err := j.lifecycle.ExistsForPeriod(ctx, clientID, billing.Start)
	if err != nil {
		return fail(err)
	}
	if exists {
		return skip("already invoiced")
	}

	list, err := j.contracts.ListForClient(ctx, clientID)
	if err != nil {
		return fail(fmt.Errorf("failed to load contracts: %w", err))
	}

	lines, err := j.lines(logger, list, billing)
	if err != nil {
		return fail(err)
	}
	if len(lines) == 0 {
		return skip("no billable contracts")
	}

	inv, err := j.lifecycle.Build(invoices.Draft{
		ClientID:  clientID,
		Period:    billing,
		IssueDate: today,
		VATRate:   j.vatRate,
		Lines:     lines,
	})
	if err != nil {
		return fail(err)
	}

	if j.lifecycle.DocumentsConfigured() {
		if err := j.lifecycle.StoreDocument(ctx, inv); err != nil {
			return fail(err)
		}
	}

	if err := j.lifecycle.Insert(ctx, inv); err != nil {
		if errors.Is(err, apperr.ErrDuplicateInvoice) {
			return skip("already invoiced")
		}
		return fail(err)
	}

	res.Outcome = OutcomeInvoiced
	res.InvoiceID = inv.ID
	logger.WithField("invoice_id", inv.ID).Debug("client invoiced")
	return res
}

func (j *Job) lines(logger logrus.FieldLogger, list []contracts.Contract, billing period.Billing) ([]invoices.Line, error) {
	var lines []invoices.Line
	for _, c := range list {
		from, to, ok := contracts.BillableWindow(c, billing)
		if !ok {
			continue
		}
		if !c.RateType.Known() {
			logger.WithFields(logrus.Fields{
				"contract_id": c.ID,
				"rate_type":   c.RateType,
			}).Warn("contract has unknown rate type, billing zero")
		}

		cost, err := contracts.CostForPeriod(c, from, to)
		if err != nil {
			return nil, fmt.Errorf("contract %d: %w", c.ID, err)
		}

		contractID := c.ID
		lines = append(lines, invoices.Line{
			ContractID:  &contractID,
			Description: describe(c),
			PeriodStart: from,
			PeriodEnd:   to,
			Amount:      cost,
		})
	}
	return lines, nil
}

func describe(c contracts.Contract) string {
	if c.CareType == "" {
		return fmt.Sprintf("contract %d (%s rate %s)", c.ID, c.RateType, c.RateValue.String())
	}
	return fmt.Sprintf("%s (%s rate %s)", c.CareType, c.RateType, c.RateValue.String())
}
