// Package authz is the request-time authorization gate.
//
// A Gate answers whether a subject holds a role group today. Super-admins
// bypass the ledger. Any error while reading roles denies the request; the
// gate never fails open.
//
//	gate := authz.NewGate(ledger, authz.ContextIdentity{}, authz.WithCache(10000, 30*time.Second))
//	ledger.OnChange(gate.Invalidate)
//
//	r := mux.NewRouter()
//	r.Handle("/invoices", authz.RequireRole(gate, "billing")(invoicesHandler))
package authz
