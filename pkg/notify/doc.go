// Package notify delivers notifications to subjects and clients.
//
// RedisDispatcher publishes JSON messages on a per-recipient Redis channel
// for a relay to pick up. WebhookDispatcher POSTs the same messages to an
// HTTP endpoint, signed with HMAC-SHA256 when a secret is configured:
//
//	if !notify.VerifySignature(body, r.Header.Get(notify.HeaderSignature), secret) {
//		http.Error(w, "bad signature", http.StatusUnauthorized)
//	}
//
// Fanout sends to several dispatchers at once. InvoiceNotifier turns invoice
// status transitions into invoice.paid, invoice.partially_paid and
// invoice.expired events.
package notify
