// Package async provides safe concurrent execution primitives for background jobs.
//
// # Overview
//
// Batch jobs in carehub (recurring billing, invoice expiry, roster
// reconciliation) iterate over many independent entities. A failure, panic or
// slow external call for one entity must not stop the rest, so every job runs
// its items through Batch.
//
// # Key Functions
//
// Batch: bounded-concurrency processing with a per-item timeout. Errors are
// returned positionally so callers can attribute each failure to its item.
//
//	errs := async.Batch(ctx, invoices, async.BatchOptions{Workers: 4, ItemTimeout: 10 * time.Second},
//		func(ctx context.Context, inv *invoices.Invoice) error {
//			return expire(ctx, inv)
//		})
//
// SafeGo: fire-and-forget goroutine with timeout, panic recovery and logging.
//
// # Related Packages
//
//   - pkg/billing: recurring invoice generation
//   - pkg/invoices: expiry sweep
//   - pkg/membership: roster reconciliation
package async
