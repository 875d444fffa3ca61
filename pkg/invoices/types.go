package invoices

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Status is the persisted lifecycle state of an invoice.
type Status string

const (
	StatusOutstanding   Status = "outstanding"
	StatusPartiallyPaid Status = "partially_paid"
	StatusPaid          Status = "paid"
	StatusExpired       Status = "expired"
)

// Terminal reports whether no transition leaves s.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusExpired
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusOutstanding, StatusPartiallyPaid, StatusPaid, StatusExpired:
		return true
	}
	return false
}

var transitions = map[Status][]Status{
	StatusOutstanding:   {StatusPartiallyPaid, StatusPaid, StatusExpired},
	StatusPartiallyPaid: {StatusPaid},
}

// CanTransition reports whether the state machine allows from -> to.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Invoice is a bill for one client and one billing period. VATAmount and
// TotalAmount are derived by RecomputeTotals and never set directly.
type Invoice struct {
	ID            int64     `json:"id"`
	InvoiceNumber string    `json:"invoice_number"`
	ClientID      int64     `json:"client_id"`
	PeriodStart   time.Time `json:"period_start"`
	PeriodEnd     time.Time `json:"period_end"`
	IssueDate     time.Time `json:"issue_date"`
	DueDate       time.Time `json:"due_date"`

	PreVATTotal decimal.Decimal `json:"pre_vat_total"`
	VATRate     decimal.Decimal `json:"vat_rate"`
	VATAmount   decimal.Decimal `json:"vat_amount"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	PaidAmount  decimal.Decimal `json:"paid_amount"`

	Status      Status    `json:"status"`
	Lines       []Line    `json:"lines,omitempty"`
	DocumentKey string    `json:"document_key,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Outstanding returns the amount still to be paid, never negative.
func (inv *Invoice) Outstanding() decimal.Decimal {
	rest := inv.TotalAmount.Sub(inv.PaidAmount)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// Line is one priced contract (or manual item) on an invoice.
type Line struct {
	ID          int64           `json:"id,omitempty"`
	ContractID  *int64          `json:"contract_id,omitempty"`
	Description string          `json:"description"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	Amount      decimal.Decimal `json:"amount"`
}

// HistoryKind classifies history entries.
type HistoryKind string

const (
	KindPayment   HistoryKind = "payment"
	KindExpiry    HistoryKind = "expiry"
	KindAmendment HistoryKind = "amendment"
)

// History is an append-only record of an event against an invoice. FromStatus
// and ToStatus are set when the event changed the status.
type History struct {
	ID         int64           `json:"id"`
	InvoiceID  int64           `json:"invoice_id"`
	Kind       HistoryKind     `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Method     string          `json:"method,omitempty"`
	FromStatus Status          `json:"from_status,omitempty"`
	ToStatus   Status          `json:"to_status,omitempty"`
	Note       string          `json:"note,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

// Transitioned reports whether the entry records a status change.
func (h *History) Transitioned() bool {
	return h.ToStatus != "" && h.FromStatus != h.ToStatus
}

// Mutation changes a locked invoice and returns the history entry to append,
// or nil for none. Returning an error aborts the update.
type Mutation func(inv *Invoice) (*History, error)

// Store persists invoices. Every change to an existing invoice goes through
// Update.
type Store interface {
	// Create inserts the invoice and its lines. It returns
	// apperr.ErrDuplicateInvoice when the client already has an invoice
	// for the period.
	Create(ctx context.Context, inv *Invoice) error
	Get(ctx context.Context, id int64) (*Invoice, error)
	GetByNumber(ctx context.Context, number string) (*Invoice, error)
	ExistsForPeriod(ctx context.Context, clientID int64, periodStart time.Time) (bool, error)
	ListForClient(ctx context.Context, clientID int64) ([]Invoice, error)
	// ListOutstandingDueBefore returns outstanding invoices whose due date is
	// strictly before cutoff.
	ListOutstandingDueBefore(ctx context.Context, cutoff time.Time) ([]Invoice, error)
	// Update locks the invoice, applies mutate and appends the returned
	// history entry atomically.
	Update(ctx context.Context, id int64, mutate Mutation) (*Invoice, error)
	History(ctx context.Context, invoiceID int64) ([]History, error)
}

// Renderer produces the archival document of an invoice.
type Renderer interface {
	Render(ctx context.Context, inv *Invoice) (data []byte, contentType string, err error)
}

// Archive stores rendered documents.
type Archive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// TransitionHook is invoked after a status change has been committed.
type TransitionHook interface {
	OnTransition(ctx context.Context, inv *Invoice, from, to Status) error
}

// TransitionHookFunc adapts a function to TransitionHook.
type TransitionHookFunc func(ctx context.Context, inv *Invoice, from, to Status) error

func (f TransitionHookFunc) OnTransition(ctx context.Context, inv *Invoice, from, to Status) error {
	return f(ctx, inv, from, to)
}
