package cli

import (
	"context"
	"io"

	"github.com/platinummonkey/carehub/pkg/authz"
	"github.com/platinummonkey/carehub/pkg/billing"
	"github.com/platinummonkey/carehub/pkg/contracts"
	"github.com/platinummonkey/carehub/pkg/invoices"
	"github.com/platinummonkey/carehub/pkg/membership"
)

// Env holds the services the commands operate on. Commands whose service
// is nil fail with a configuration error.
type Env struct {
	Ledger    *membership.Ledger
	Gate      *authz.Gate
	Contracts contracts.Store
	Invoices  *invoices.Lifecycle
	Billing   *billing.Job
	Migrate   func(ctx context.Context) error
	Out       io.Writer
}
