// Package invoices implements the invoice state machine.
//
// An invoice starts outstanding. Payments move it to partially_paid or paid,
// and the expiry sweep moves outstanding invoices to expired once their due
// date is more than the grace period in the past. Paid and expired are
// terminal.
//
// VATAmount and TotalAmount are derived by RecomputeTotals. Every change to
// a persisted invoice goes through Store.Update, which locks the row, applies
// the mutation and appends the history entry in one transaction. Transition
// hooks run after the commit and their failures are only logged.
//
//	lc := invoices.NewLifecycle(invoices.NewPostgresStore(db),
//		invoices.WithLogger(logger),
//		invoices.WithHook(notify.NewInvoiceNotifier(dispatcher, logger)),
//	)
//	entry, err := lc.RecordPayment(ctx, invoiceID, decimal.RequireFromString("121.00"), "bank_transfer")
package invoices
