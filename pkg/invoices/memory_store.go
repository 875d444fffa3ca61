package invoices

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
)

// MemoryStore is an in-process Store for tests and local tooling. Update
// holds the store lock for the duration of the mutation.
type MemoryStore struct {
	mu       sync.Mutex
	invoices map[int64]*Invoice
	history  map[int64][]History
	nextID   int64
	nextLine int64
	nextHist int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		invoices: make(map[int64]*Invoice),
		history:  make(map[int64][]History),
	}
}

func (s *MemoryStore) Create(_ context.Context, inv *Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.invoices {
		if existing.ClientID == inv.ClientID && existing.PeriodStart.Equal(period.Date(inv.PeriodStart)) {
			return fmt.Errorf("client %d period %s: %w", inv.ClientID, inv.PeriodStart.Format("2006-01"), apperr.ErrDuplicateInvoice)
		}
		if existing.InvoiceNumber == inv.InvoiceNumber {
			return fmt.Errorf("invoice number %s: %w", inv.InvoiceNumber, apperr.ErrDuplicateInvoice)
		}
	}

	now := time.Now()
	s.nextID++
	inv.ID = s.nextID
	inv.CreatedAt = now
	inv.UpdatedAt = now
	for i := range inv.Lines {
		s.nextLine++
		inv.Lines[i].ID = s.nextLine
	}
	s.invoices[inv.ID] = cloneInvoice(inv)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice", id)
	}
	return cloneInvoice(inv), nil
}

func (s *MemoryStore) GetByNumber(_ context.Context, number string) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, inv := range s.invoices {
		if inv.InvoiceNumber == number {
			return cloneInvoice(inv), nil
		}
	}
	return nil, apperr.NotFound("invoice", number)
}

func (s *MemoryStore) ExistsForPeriod(_ context.Context, clientID int64, periodStart time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := period.Date(periodStart)
	for _, inv := range s.invoices {
		if inv.ClientID == clientID && inv.PeriodStart.Equal(start) {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) ListForClient(_ context.Context, clientID int64) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Invoice
	for _, inv := range s.invoices {
		if inv.ClientID == clientID {
			c := cloneInvoice(inv)
			c.Lines = nil
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PeriodStart.After(out[j].PeriodStart) })
	return out, nil
}

func (s *MemoryStore) ListOutstandingDueBefore(_ context.Context, cutoff time.Time) ([]Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff = period.Date(cutoff)
	var out []Invoice
	for _, inv := range s.invoices {
		if inv.Status == StatusOutstanding && inv.DueDate.Before(cutoff) {
			c := cloneInvoice(inv)
			c.Lines = nil
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) Update(_ context.Context, id int64, mutate Mutation) (*Invoice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.invoices[id]
	if !ok {
		return nil, apperr.NotFound("invoice", id)
	}

	working := cloneInvoice(current)
	entry, err := mutate(working)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	working.UpdatedAt = now
	s.invoices[id] = cloneInvoice(working)

	if entry != nil {
		s.nextHist++
		entry.ID = s.nextHist
		entry.InvoiceID = id
		entry.CreatedAt = now
		s.history[id] = append(s.history[id], *entry)
	}
	return working, nil
}

func (s *MemoryStore) History(_ context.Context, invoiceID int64) ([]History, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]History(nil), s.history[invoiceID]...), nil
}

func cloneInvoice(inv *Invoice) *Invoice {
	c := *inv
	c.Lines = append([]Line(nil), inv.Lines...)
	return &c
}
