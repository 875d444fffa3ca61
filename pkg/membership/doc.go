// Package membership implements the role grant ledger.
//
// A grant (Record) gives a subject a role group for an optionally open-ended
// date window. Whether a grant is active is never stored: it is derived from
// the window and a date through period.IsActive every time it is needed.
// Grants are append-only history; overlapping grants for the same pair are
// allowed and not merged.
//
// # Reconciliation
//
// Reconcile diffs the subjects active for a role group against an external
// Roster and applies the missing adds and removes. Roster calls run through
// async.Batch so one slow or failing call does not block the others.
//
//	ledger := membership.NewLedger(membership.NewPostgresStore(db),
//		membership.WithLogger(logger),
//		membership.WithChangeHook(gate.Invalidate),
//	)
//	report, err := ledger.Reconcile(ctx, "care-coordinators", redisRoster, time.Time{})
package membership
