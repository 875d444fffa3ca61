// Package roster provides the externally visible role rosters that
// membership.Ledger.Reconcile keeps in sync with active grants.
package roster
