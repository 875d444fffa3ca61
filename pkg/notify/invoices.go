package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/platinummonkey/carehub/pkg/invoices"
)

// Invoice event names.
const (
	EventInvoiceExpired       = "invoice.expired"
	EventInvoicePaid          = "invoice.paid"
	EventInvoicePartiallyPaid = "invoice.partially_paid"
)

var invoiceEvents = map[invoices.Status]string{
	invoices.StatusExpired:       EventInvoiceExpired,
	invoices.StatusPaid:          EventInvoicePaid,
	invoices.StatusPartiallyPaid: EventInvoicePartiallyPaid,
}

// InvoiceNotifier sends invoice status changes to the invoiced client.
type InvoiceNotifier struct {
	dispatcher Dispatcher
}

// NewInvoiceNotifier creates an invoices.TransitionHook backed by dispatcher.
func NewInvoiceNotifier(dispatcher Dispatcher) *InvoiceNotifier {
	return &InvoiceNotifier{dispatcher: dispatcher}
}

// ClientRecipient returns the recipient name of a client.
func ClientRecipient(clientID int64) string {
	return fmt.Sprintf("client:%d", clientID)
}

// OnTransition implements invoices.TransitionHook.
func (n *InvoiceNotifier) OnTransition(ctx context.Context, inv *invoices.Invoice, from, to invoices.Status) error {
	event, ok := invoiceEvents[to]
	if !ok {
		return nil
	}

	content := map[string]any{
		"invoice_id":     inv.ID,
		"invoice_number": inv.InvoiceNumber,
		"from_status":    string(from),
		"status":         string(to),
		"total_amount":   inv.TotalAmount.StringFixed(2),
		"paid_amount":    inv.PaidAmount.StringFixed(2),
		"outstanding":    inv.Outstanding().StringFixed(2),
		"due_date":       inv.DueDate.Format(time.DateOnly),
	}
	if err := n.dispatcher.Notify(ctx, ClientRecipient(inv.ClientID), event, content); err != nil {
		return fmt.Errorf("failed to notify %s for invoice %d: %w", event, inv.ID, err)
	}
	return nil
}
