package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/platinummonkey/carehub/pkg/invoices"
)

func newRecordPaymentCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "record-payment",
		Description: "Record a payment against an invoice",
		Flags:       flag.NewFlagSet("record-payment", flag.ContinueOnError),
	}
	invoice := cmd.Flags.String("invoice", "", "Invoice id")
	amount := cmd.Flags.String("amount", "", "Amount paid")
	method := cmd.Flags.String("method", "bank_transfer", "Payment method")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Invoices == nil {
			return fmt.Errorf("record-payment: %w", errMissingService)
		}

		id, err := parseID("invoice", *invoice)
		if err != nil {
			return err
		}
		paid, err := parseAmount("amount", *amount)
		if err != nil {
			return err
		}

		entry, err := env.Invoices.RecordPayment(ctx, id, paid, *method)
		if err != nil {
			return fmt.Errorf("failed to record payment: %w", err)
		}
		fmt.Fprintf(env.Out, "invoice %d: payment %s recorded, %s -> %s\n",
			id, entry.Amount.StringFixed(2), entry.FromStatus, entry.ToStatus)
		return nil
	}
	return cmd
}

func newAmendInvoiceCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "amend-invoice",
		Description: "Change an invoice's pre-VAT total or VAT rate",
		Flags:       flag.NewFlagSet("amend-invoice", flag.ContinueOnError),
	}
	invoice := cmd.Flags.String("invoice", "", "Invoice id")
	preVAT := cmd.Flags.String("pre-vat", "", "New pre-VAT total (default: unchanged)")
	vatRate := cmd.Flags.String("vat-rate", "", "New VAT rate in percent (default: unchanged)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Invoices == nil {
			return fmt.Errorf("amend-invoice: %w", errMissingService)
		}

		id, err := parseID("invoice", *invoice)
		if err != nil {
			return err
		}
		if *preVAT == "" && *vatRate == "" {
			return fmt.Errorf("one of --pre-vat or --vat-rate is required")
		}

		current, err := env.Invoices.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load invoice: %w", err)
		}
		pre, rate := current.PreVATTotal, current.VATRate
		if *preVAT != "" {
			if pre, err = parseAmount("pre-vat", *preVAT); err != nil {
				return err
			}
		}
		if *vatRate != "" {
			if rate, err = parseAmount("vat-rate", *vatRate); err != nil {
				return err
			}
		}

		inv, err := env.Invoices.Amend(ctx, id, pre, rate)
		if err != nil {
			return fmt.Errorf("failed to amend invoice: %w", err)
		}
		printInvoice(env, inv)
		return nil
	}
	return cmd
}

func newArchiveCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "archive",
		Description: "Render an invoice document and store it in the archive",
		Flags:       flag.NewFlagSet("archive", flag.ContinueOnError),
	}
	invoice := cmd.Flags.String("invoice", "", "Invoice id")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Invoices == nil {
			return fmt.Errorf("archive: %w", errMissingService)
		}

		id, err := parseID("invoice", *invoice)
		if err != nil {
			return err
		}
		inv, err := env.Invoices.Archive(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to archive invoice: %w", err)
		}
		fmt.Fprintf(env.Out, "invoice %s archived at %s\n", inv.InvoiceNumber, inv.DocumentKey)
		return nil
	}
	return cmd
}

func newSweepCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "sweep",
		Description: "Expire outstanding invoices past the grace period",
		Flags:       flag.NewFlagSet("sweep", flag.ContinueOnError),
	}
	asOf := cmd.Flags.String("as-of", "", "Sweep date (YYYY-MM-DD, default: today)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Invoices == nil {
			return fmt.Errorf("sweep: %w", errMissingService)
		}

		date, err := parseDateOrZero("as-of", *asOf)
		if err != nil {
			return err
		}
		report, err := env.Invoices.SweepExpirations(ctx, date)
		if err != nil {
			return fmt.Errorf("failed to sweep invoices: %w", err)
		}

		fmt.Fprintf(env.Out, "sweep %s (due before %s): %d expired, %d skipped, %d failed\n",
			report.AsOf.Format("2006-01-02"), report.Cutoff.Format("2006-01-02"),
			len(report.Expired), report.Skipped, report.Failed())
		ids := make([]int64, 0, len(report.Failures))
		for id := range report.Failures {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Fprintf(env.Out, "  invoice %d: %v\n", id, report.Failures[id])
		}
		return nil
	}
	return cmd
}

func printInvoice(env *Env, inv *invoices.Invoice) {
	fmt.Fprintf(env.Out, "invoice %s (%d): pre-VAT %s, VAT %s%% = %s, total %s, paid %s, status %s\n",
		inv.InvoiceNumber, inv.ID,
		inv.PreVATTotal.StringFixed(2), inv.VATRate.String(), inv.VATAmount.StringFixed(2),
		inv.TotalAmount.StringFixed(2), inv.PaidAmount.StringFixed(2), inv.Status)
}
