package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/async"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

// Defaults for a Lifecycle.
const (
	DefaultExpiryGraceDays  = 30
	DefaultPaymentTermsDays = 30
)

// Lifecycle owns every state change of an invoice: creation, amendment,
// payments, expiry and archival.
type Lifecycle struct {
	store    Store
	renderer Renderer
	archive  Archive
	hooks    []TransitionHook

	now              func() time.Time
	graceDays        int
	paymentTermsDays int
	sweep            async.BatchOptions

	logger  logrus.FieldLogger
	metrics *observability.Metrics
}

// Option configures a Lifecycle.
type Option func(*Lifecycle)

// WithClock overrides the clock.
func WithClock(now func() time.Time) Option {
	return func(l *Lifecycle) { l.now = now }
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(l *Lifecycle) { l.logger = logger }
}

// WithMetrics records transitions and sweep runs.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Lifecycle) { l.metrics = m }
}

// WithDocuments sets the renderer and archive used by StoreDocument.
func WithDocuments(r Renderer, a Archive) Option {
	return func(l *Lifecycle) {
		l.renderer = r
		l.archive = a
	}
}

// WithHook registers a transition hook.
func WithHook(h TransitionHook) Option {
	return func(l *Lifecycle) { l.hooks = append(l.hooks, h) }
}

// WithExpiryGraceDays sets how many days past its due date an unpaid
// invoice survives before the sweep expires it.
func WithExpiryGraceDays(days int) Option {
	return func(l *Lifecycle) { l.graceDays = days }
}

// WithPaymentTermsDays sets the due date offset from the issue date.
func WithPaymentTermsDays(days int) Option {
	return func(l *Lifecycle) { l.paymentTermsDays = days }
}

// WithSweepOptions bounds the per-invoice work of SweepExpirations.
func WithSweepOptions(workers int, itemTimeout time.Duration) Option {
	return func(l *Lifecycle) {
		l.sweep = async.BatchOptions{Workers: workers, ItemTimeout: itemTimeout}
	}
}

// NewLifecycle creates a lifecycle over store.
func NewLifecycle(store Store, opts ...Option) *Lifecycle {
	l := &Lifecycle{
		store:            store,
		now:              time.Now,
		graceDays:        DefaultExpiryGraceDays,
		paymentTermsDays: DefaultPaymentTermsDays,
		sweep:            async.BatchOptions{Workers: 4, ItemTimeout: 10 * time.Second},
		logger:           observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Draft is the input for a new invoice.
type Draft struct {
	ClientID  int64
	Period    period.Billing
	IssueDate time.Time
	// DueDate defaults to IssueDate plus the payment terms.
	DueDate time.Time
	VATRate decimal.Decimal
	Lines   []Line
}

// Build turns a draft into an outstanding invoice with computed totals. It
// does not persist anything.
func (l *Lifecycle) Build(d Draft) (*Invoice, error) {
	start, end := period.Date(d.Period.Start), period.Date(d.Period.End)
	if end.Before(start) {
		return nil, apperr.InvalidPeriod("billing period ends %s before it starts %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}
	if err := validateVATRate(d.VATRate); err != nil {
		return nil, err
	}

	lines := make([]Line, len(d.Lines))
	for i, line := range d.Lines {
		if line.Amount.IsNegative() {
			return nil, apperr.InvalidAmount("line %q has negative amount %s", line.Description, line.Amount)
		}
		line.Amount = line.Amount.Round(2)
		line.PeriodStart = period.Date(line.PeriodStart)
		line.PeriodEnd = period.Date(line.PeriodEnd)
		lines[i] = line
	}

	issue := d.IssueDate
	if issue.IsZero() {
		issue = l.now()
	}
	issue = period.Date(issue)

	due := d.DueDate
	if due.IsZero() {
		due = issue.AddDate(0, 0, l.paymentTermsDays)
	}

	inv := &Invoice{
		InvoiceNumber: NewInvoiceNumber(d.ClientID, start),
		ClientID:      d.ClientID,
		PeriodStart:   start,
		PeriodEnd:     end,
		IssueDate:     issue,
		DueDate:       period.Date(due),
		PreVATTotal:   SumLines(lines),
		VATRate:       d.VATRate,
		PaidAmount:    decimal.Zero,
		Status:        StatusOutstanding,
		Lines:         lines,
	}
	RecomputeTotals(inv)
	return inv, nil
}

// NewInvoiceNumber returns INV-<YYYYMM>-<client>-<8 hex chars>.
func NewInvoiceNumber(clientID int64, periodStart time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%d-%s", periodStart.Format("200601"), clientID, suffix)
}

// ExistsForPeriod reports whether the client already has an invoice for the
// period starting at periodStart.
func (l *Lifecycle) ExistsForPeriod(ctx context.Context, clientID int64, periodStart time.Time) (bool, error) {
	return l.store.ExistsForPeriod(ctx, clientID, period.Date(periodStart))
}

// Insert persists a built invoice. It returns apperr.ErrDuplicateInvoice when
// the client already has an invoice for the period.
func (l *Lifecycle) Insert(ctx context.Context, inv *Invoice) error {
	exists, err := l.ExistsForPeriod(ctx, inv.ClientID, inv.PeriodStart)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("client %d period %s: %w", inv.ClientID, inv.PeriodStart.Format("2006-01"), apperr.ErrDuplicateInvoice)
	}
	if err := l.store.Create(ctx, inv); err != nil {
		return err
	}

	l.logger.WithFields(logrus.Fields{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"client_id":      inv.ClientID,
		"total":          inv.TotalAmount.StringFixed(2),
	}).Info("invoice created")
	return nil
}

// Create builds and persists an invoice.
func (l *Lifecycle) Create(ctx context.Context, d Draft) (*Invoice, error) {
	inv, err := l.Build(d)
	if err != nil {
		return nil, err
	}
	if err := l.Insert(ctx, inv); err != nil {
		return nil, err
	}
	return inv, nil
}

// Get returns an invoice with its lines.
func (l *Lifecycle) Get(ctx context.Context, id int64) (*Invoice, error) {
	return l.store.Get(ctx, id)
}

// History returns the events recorded against an invoice.
func (l *Lifecycle) History(ctx context.Context, id int64) ([]History, error) {
	return l.store.History(ctx, id)
}

// Amend replaces the pre-VAT total and VAT rate of a non-terminal invoice and
// recomputes its totals. If the amount already paid covers the new total the
// invoice becomes paid.
func (l *Lifecycle) Amend(ctx context.Context, id int64, preVAT, vatRate decimal.Decimal) (*Invoice, error) {
	if preVAT.IsNegative() {
		return nil, apperr.InvalidAmount("pre-VAT total %s is negative", preVAT)
	}
	if subCent(preVAT) {
		return nil, apperr.InvalidAmount("pre-VAT total %s has more than two decimals", preVAT)
	}
	if err := validateVATRate(vatRate); err != nil {
		return nil, err
	}

	var from, to Status
	inv, err := l.store.Update(ctx, id, func(inv *Invoice) (*History, error) {
		if inv.Status.Terminal() {
			return nil, fmt.Errorf("invoice %d is %s: %w", inv.ID, inv.Status, apperr.ErrInvalidTransition)
		}

		from = inv.Status
		inv.PreVATTotal = preVAT
		inv.VATRate = vatRate
		RecomputeTotals(inv)
		if next := statusForPaid(inv.PaidAmount, inv.TotalAmount); next != from && CanTransition(from, next) {
			inv.Status = next
		}
		to = inv.Status

		return &History{
			Kind:       KindAmendment,
			Amount:     inv.TotalAmount,
			FromStatus: from,
			ToStatus:   to,
			Note:       fmt.Sprintf("pre-VAT %s, VAT %s%%", preVAT.StringFixed(2), vatRate.String()),
		}, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"invoice_id": id,
		"total":      inv.TotalAmount.StringFixed(2),
	}).Info("invoice amended")

	if from != to {
		l.fireTransition(ctx, inv, from, to)
	}
	return inv, nil
}

// RecordPayment appends a payment and moves the invoice to partially_paid or
// paid. The amount must be positive and in whole cents. Payments on paid or
// expired invoices are rejected.
func (l *Lifecycle) RecordPayment(ctx context.Context, id int64, amount decimal.Decimal, method string) (*History, error) {
	if !amount.IsPositive() {
		return nil, apperr.InvalidAmount("payment %s must be positive", amount)
	}
	if subCent(amount) {
		return nil, apperr.InvalidAmount("payment %s has more than two decimals", amount)
	}

	var entry *History
	inv, err := l.store.Update(ctx, id, func(inv *Invoice) (*History, error) {
		if inv.Status.Terminal() {
			return nil, fmt.Errorf("invoice %d is %s: %w", inv.ID, inv.Status, apperr.ErrInvalidTransition)
		}

		from := inv.Status
		inv.PaidAmount = inv.PaidAmount.Add(amount)
		inv.Status = statusForPaid(inv.PaidAmount, inv.TotalAmount)

		entry = &History{
			Kind:       KindPayment,
			Amount:     amount,
			Method:     method,
			FromStatus: from,
			ToStatus:   inv.Status,
		}
		return entry, nil
	})
	if err != nil {
		return nil, err
	}

	l.logger.WithFields(logrus.Fields{
		"invoice_id": id,
		"amount":     amount.StringFixed(2),
		"method":     method,
		"status":     inv.Status,
	}).Info("payment recorded")

	if entry.Transitioned() {
		l.fireTransition(ctx, inv, entry.FromStatus, entry.ToStatus)
	}
	return entry, nil
}

// DocumentsConfigured reports whether a renderer and an archive are set.
func (l *Lifecycle) DocumentsConfigured() bool {
	return l.renderer != nil && l.archive != nil
}

// StoreDocument renders the invoice and stores it in the archive, setting
// DocumentKey on inv. It does not persist the key; Archive does.
func (l *Lifecycle) StoreDocument(ctx context.Context, inv *Invoice) error {
	if !l.DocumentsConfigured() {
		return errors.New("document renderer or archive not configured")
	}

	data, contentType, err := l.renderer.Render(ctx, inv)
	if err != nil {
		return apperr.External("renderer", err)
	}

	key := DocumentKey(inv)
	if err := l.archive.Put(ctx, key, data, contentType); err != nil {
		return apperr.External("archive", err)
	}
	inv.DocumentKey = key
	return nil
}

// DocumentKey returns the archive key of an invoice document.
func DocumentKey(inv *Invoice) string {
	return fmt.Sprintf("invoices/%s/%s.txt", inv.PeriodStart.Format("2006/01"), inv.InvoiceNumber)
}

// Archive renders and stores the document of a persisted invoice and records
// its key.
func (l *Lifecycle) Archive(ctx context.Context, id int64) (*Invoice, error) {
	inv, err := l.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := l.StoreDocument(ctx, inv); err != nil {
		return nil, err
	}

	key := inv.DocumentKey
	updated, err := l.store.Update(ctx, id, func(locked *Invoice) (*History, error) {
		locked.DocumentKey = key
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	updated.Lines = inv.Lines
	return updated, nil
}

// fireTransition runs the hooks for a committed transition and returns how
// many failed. Hook failures are logged, never returned.
func (l *Lifecycle) fireTransition(ctx context.Context, inv *Invoice, from, to Status) int {
	l.metrics.InvoiceTransition(string(from), string(to))

	failed := 0
	for _, h := range l.hooks {
		if err := h.OnTransition(ctx, inv, from, to); err != nil {
			failed++
			l.logger.WithFields(logrus.Fields{
				"invoice_id": inv.ID,
				"from":       from,
				"to":         to,
			}).WithError(err).Warn("transition hook failed")
		}
	}
	return failed
}
