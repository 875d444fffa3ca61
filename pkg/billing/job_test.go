package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/contracts"
	"github.com/platinummonkey/carehub/pkg/documents"
	"github.com/platinummonkey/carehub/pkg/invoices"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

func d(s string) time.Time { return period.MustParse(s) }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fixture struct {
	contracts *contracts.MemoryStore
	invoices  *invoices.MemoryStore
	archive   *documents.MemoryArchive
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		contracts: contracts.NewMemoryStore(),
		invoices:  invoices.NewMemoryStore(),
		archive:   documents.NewMemoryArchive(),
	}

	ctx := context.Background()
	for _, c := range []contracts.Contract{
		{ClientID: 1, SenderID: 10, StartDate: d("2024-01-01"), CareType: "home care", RateType: contracts.RateDay, RateValue: dec("100")},
		{ClientID: 2, SenderID: 10, StartDate: d("2024-03-07"), CareType: "night care", RateType: contracts.RateWeek, RateValue: dec("700")},
		{ClientID: 3, SenderID: 10, StartDate: d("2024-01-01"), DurationDays: 31, CareType: "respite", RateType: contracts.RateDay, RateValue: dec("50")},
	} {
		require.NoError(t, f.contracts.Create(ctx, &c))
	}
	return f
}

func (f *fixture) lifecycle(renderer invoices.Renderer) *invoices.Lifecycle {
	return invoices.NewLifecycle(f.invoices, invoices.WithDocuments(renderer, f.archive))
}

func (f *fixture) job(renderer invoices.Renderer, opts ...Option) *Job {
	opts = append([]Option{WithVATRate(dec("21"))}, opts...)
	return NewJob(f.contracts, f.lifecycle(renderer), opts...)
}

func resultFor(r *Report, clientID int64) ClientResult {
	for _, res := range r.Results {
		if res.ClientID == clientID {
			return res
		}
	}
	return ClientResult{}
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	report, err := f.job(documents.NewTextRenderer()).Run(ctx, d("2024-03-20"))
	require.NoError(t, err)

	assert.Equal(t, "2024-03", report.Period.Key())
	assert.Equal(t, 3, report.Clients)
	assert.Equal(t, 2, report.Invoiced)
	assert.Equal(t, 1, report.Skipped)
	assert.Zero(t, report.Failed)
	assert.Equal(t, "billing 2024-03: 3 clients, 2 invoiced, 1 skipped, 0 failed", report.Summary())
	assert.Equal(t, "no billable contracts", resultFor(report, 3).Reason)

	first, err := f.invoices.Get(ctx, resultFor(report, 1).InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, d("2024-03-01"), first.PeriodStart)
	assert.Equal(t, d("2024-03-20"), first.PeriodEnd)
	assert.Equal(t, "2000", first.PreVATTotal.String())
	assert.Equal(t, "420", first.VATAmount.String())
	assert.Equal(t, "2420", first.TotalAmount.String())
	assert.Equal(t, invoices.StatusOutstanding, first.Status)
	require.Len(t, first.Lines, 1)
	assert.Equal(t, d("2024-03-01"), first.Lines[0].PeriodStart)

	second, err := f.invoices.Get(ctx, resultFor(report, 2).InvoiceID)
	require.NoError(t, err)
	assert.Equal(t, d("2024-03-07"), second.Lines[0].PeriodStart)
	assert.Equal(t, "1400", second.PreVATTotal.String())

	assert.NotEmpty(t, first.DocumentKey)
	doc, err := f.archive.Get(ctx, first.DocumentKey)
	require.NoError(t, err)
	assert.Contains(t, string(doc), first.InvoiceNumber)
	assert.Len(t, f.archive.Keys(), 2)
}

func TestRun_TwiceCreatesOneInvoicePerClientAndMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	job := f.job(documents.NewTextRenderer())

	_, err := job.Run(ctx, d("2024-03-20"))
	require.NoError(t, err)

	again, err := job.Run(ctx, d("2024-03-28"))
	require.NoError(t, err)
	assert.Zero(t, again.Invoiced)
	assert.Equal(t, 3, again.Skipped)
	assert.Equal(t, "already invoiced", resultFor(again, 1).Reason)

	for _, clientID := range []int64{1, 2} {
		list, err := f.invoices.ListForClient(ctx, clientID)
		require.NoError(t, err)
		assert.Len(t, list, 1, "client %d", clientID)
	}

	next, err := job.Run(ctx, d("2024-04-02"))
	require.NoError(t, err)
	assert.Equal(t, 2, next.Invoiced)
}

type blindStore struct {
	*invoices.MemoryStore
}

func (blindStore) ExistsForPeriod(context.Context, int64, time.Time) (bool, error) {
	return false, nil
}

func TestRun_DuplicateOnInsertIsASkip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	lc := invoices.NewLifecycle(blindStore{f.invoices})
	job := NewJob(f.contracts, lc)

	_, err := job.Run(ctx, d("2024-03-20"))
	require.NoError(t, err)

	again, err := job.Run(ctx, d("2024-03-20"))
	require.NoError(t, err)
	assert.Zero(t, again.Failed)
	assert.Equal(t, 3, again.Skipped)
}

type failingRenderer struct {
	clientID int64
	inner    invoices.Renderer
}

func (r failingRenderer) Render(ctx context.Context, inv *invoices.Invoice) ([]byte, string, error) {
	if inv.ClientID == r.clientID {
		return nil, "", errors.New("template engine crashed")
	}
	return r.inner.Render(ctx, inv)
}

func TestRun_RenderFailureSkipsOnlyThatClient(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	logger, hook := test.NewNullLogger()

	report, err := f.job(failingRenderer{clientID: 1, inner: documents.NewTextRenderer()}, WithLogger(logger)).
		Run(ctx, d("2024-03-20"))
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Invoiced)
	require.Contains(t, report.Failures, int64(1))
	assert.ErrorIs(t, report.Failures[1], apperr.ErrExternalService)

	exists, err := f.invoices.ExistsForPeriod(ctx, 1, d("2024-03-01"))
	require.NoError(t, err)
	assert.False(t, exists, "nothing is persisted when rendering fails")

	var logged bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.ErrorLevel && e.Data["client_id"] == int64(1) {
			logged = true
		}
	}
	assert.True(t, logged)

	retry, err := f.job(documents.NewTextRenderer()).Run(ctx, d("2024-03-21"))
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Invoiced)
	assert.Positive(t, resultFor(retry, 1).InvoiceID)
}

type slowSource struct {
	*contracts.MemoryStore
	slowClient int64
}

func (s slowSource) ListForClient(ctx context.Context, clientID int64) ([]contracts.Contract, error) {
	if clientID == s.slowClient {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return s.MemoryStore.ListForClient(ctx, clientID)
}

func TestRun_ItemTimeoutIsAPerClientFailure(t *testing.T) {
	f := newFixture(t)
	job := NewJob(slowSource{MemoryStore: f.contracts, slowClient: 2}, f.lifecycle(documents.NewTextRenderer()),
		WithConcurrency(2, 50*time.Millisecond))

	started := time.Now()
	report, err := job.Run(context.Background(), d("2024-03-20"))
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 2*time.Second)

	assert.Equal(t, 1, report.Failed)
	assert.ErrorIs(t, report.Failures[2], context.DeadlineExceeded)
	assert.Equal(t, 1, report.Invoiced)
}

type brokenSource struct{}

func (brokenSource) ListClientIDs(context.Context) ([]int64, error) {
	return nil, errors.New("database unavailable")
}

func (brokenSource) ListForClient(context.Context, int64) ([]contracts.Contract, error) {
	return nil, nil
}

func TestRun_ClientListFailure(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	job := NewJob(brokenSource{}, invoices.NewLifecycle(invoices.NewMemoryStore()), WithMetrics(metrics))

	_, err := job.Run(context.Background(), d("2024-03-20"))
	assert.ErrorContains(t, err, "database unavailable")
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("billing", observability.OutcomeFailure)))
}

func TestRun_UnknownRateTypeBillsZeroWithWarning(t *testing.T) {
	ctx := context.Background()
	source := contracts.NewMemoryStore()
	require.NoError(t, source.Create(ctx, &contracts.Contract{ClientID: 5, StartDate: d("2024-01-01"), RateType: "fortnight", RateValue: dec("10")}))

	store := invoices.NewMemoryStore()
	logger, hook := test.NewNullLogger()
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)
	job := NewJob(source, invoices.NewLifecycle(store), WithLogger(logger), WithMetrics(metrics))

	report, err := job.Run(ctx, d("2024-03-20"))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Invoiced)

	inv, err := store.Get(ctx, resultFor(report, 5).InvoiceID)
	require.NoError(t, err)
	assert.True(t, inv.TotalAmount.IsZero())
	assert.Empty(t, inv.DocumentKey)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["rate_type"] == contracts.RateType("fortnight") {
			warned = true
		}
	}
	assert.True(t, warned)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobItemsTotal.WithLabelValues("billing", observability.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.JobRunsTotal.WithLabelValues("billing", observability.OutcomeSuccess)))
}

func TestRun_ClientLogsCarryTraceContext(t *testing.T) {
	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	source := contracts.NewMemoryStore()
	require.NoError(t, source.Create(ctx, &contracts.Contract{ClientID: 5, StartDate: d("2024-01-01"), RateType: "fortnight", RateValue: dec("10")}))

	logger, hook := test.NewNullLogger()
	_, err := NewJob(source, invoices.NewLifecycle(invoices.NewMemoryStore()), WithLogger(logger)).Run(ctx, d("2024-03-20"))
	require.NoError(t, err)

	var warning *logrus.Entry
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warning = e
		}
	}
	require.NotNil(t, warning)
	assert.Equal(t, traceID.String(), warning.Data["trace_id"])
	assert.Equal(t, int64(5), warning.Data["client_id"])
}

func TestRun_ZeroDateUsesClock(t *testing.T) {
	f := newFixture(t)
	job := f.job(documents.NewTextRenderer(), WithClock(func() time.Time { return d("2024-02-10").Add(8 * time.Hour) }))

	report, err := job.Run(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "2024-02", report.Period.Key())
	assert.Equal(t, 1, report.Invoiced)
	assert.Equal(t, 2, report.Skipped)
}
