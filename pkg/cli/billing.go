package cli

import (
	"context"
	"flag"
	"fmt"
	"sort"

	"github.com/platinummonkey/carehub/pkg/contracts"
	"github.com/platinummonkey/carehub/pkg/period"
)

func newCostCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "cost",
		Description: "Price a contract over a period",
		Flags:       flag.NewFlagSet("cost", flag.ContinueOnError),
	}
	contract := cmd.Flags.String("contract", "", "Contract id")
	from := cmd.Flags.String("from", "", "First day (YYYY-MM-DD)")
	to := cmd.Flags.String("to", "", "Last day (YYYY-MM-DD)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Contracts == nil {
			return fmt.Errorf("cost: %w", errMissingService)
		}

		id, err := parseID("contract", *contract)
		if err != nil {
			return err
		}
		if err := requireFlag("from", *from); err != nil {
			return err
		}
		if err := requireFlag("to", *to); err != nil {
			return err
		}
		start, err := period.Parse(*from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		end, err := period.Parse(*to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		c, err := env.Contracts.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to load contract: %w", err)
		}
		cost, err := contracts.CostForPeriod(*c, start, end)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.Out, "contract %d %s..%s: %s (%s %s per %s)\n",
			c.ID, start.Format("2006-01-02"), end.Format("2006-01-02"),
			cost.StringFixed(2), c.CareType, c.RateValue.StringFixed(2), c.RateType)
		return nil
	}
	return cmd
}

func newBillCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "bill",
		Description: "Run the monthly billing job",
		Flags:       flag.NewFlagSet("bill", flag.ContinueOnError),
	}
	date := cmd.Flags.String("date", "", "Billing date; the period runs from the first of its month (YYYY-MM-DD, default: today)")

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Billing == nil {
			return fmt.Errorf("bill: %w", errMissingService)
		}

		today, err := parseDateOrZero("date", *date)
		if err != nil {
			return err
		}
		report, err := env.Billing.Run(ctx, today)
		if err != nil {
			return fmt.Errorf("billing run failed: %w", err)
		}

		fmt.Fprintln(env.Out, report.Summary())
		ids := make([]int64, 0, len(report.Failures))
		for id := range report.Failures {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			fmt.Fprintf(env.Out, "  client %d: %v\n", id, report.Failures[id])
		}
		return nil
	}
	return cmd
}
