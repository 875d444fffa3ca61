package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/carehub/pkg/period"
)

// Command represents a CLI command
type Command struct {
	Name        string
	Description string
	Run         func(ctx context.Context, args []string) error
	Subcommands map[string]*Command
	Flags       *flag.FlagSet
}

// NewRootCommand creates the root command over env.
func NewRootCommand(env *Env) *Command {
	root := &Command{
		Name:        "carehubctl",
		Description: "carehub operator CLI",
		Subcommands: make(map[string]*Command),
		Flags:       flag.NewFlagSet("carehubctl", flag.ContinueOnError),
	}

	for _, cmd := range []*Command{
		newGrantCommand(env),
		newRevokeCommand(env),
		newCheckCommand(env),
		newRecordPaymentCommand(env),
		newAmendInvoiceCommand(env),
		newArchiveCommand(env),
		newSweepCommand(env),
		newCostCommand(env),
		newBillCommand(env),
		newMigrateCommand(env),
	} {
		cmd.Flags.SetOutput(env.Out)
		root.Subcommands[cmd.Name] = cmd
	}

	return root
}

// Execute runs the subcommand named by args[0].
func (c *Command) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		return c.usage(out)
	}

	if subcmd, ok := c.Subcommands[args[0]]; ok {
		return subcmd.Run(ctx, args[1:])
	}

	return fmt.Errorf("unknown command: %s", args[0])
}

// usage prints the command usage
func (c *Command) usage(out io.Writer) error {
	fmt.Fprintf(out, "Usage: %s <command> [flags]\n\n", c.Name)
	fmt.Fprintf(out, "Commands:\n")

	names := make([]string, 0, len(c.Subcommands))
	for name := range c.Subcommands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(out, "  %-15s %s\n", name, c.Subcommands[name].Description)
	}
	return nil
}

var errMissingService = errors.New("service not configured")

func requireFlag(name, value string) error {
	if value == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func parseID(name, value string) (int64, error) {
	if err := requireFlag(name, value); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(value, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("--%s must be a positive integer, got %q", name, value)
	}
	return id, nil
}

func parseAmount(name, value string) (decimal.Decimal, error) {
	if err := requireFlag(name, value); err != nil {
		return decimal.Zero, err
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// parseOptionalDate returns nil for an empty value.
func parseOptionalDate(name, value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := period.Parse(value)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", name, err)
	}
	return &t, nil
}

// parseDateOrZero returns the zero time for an empty value, which the
// services read as today.
func parseDateOrZero(name, value string) (time.Time, error) {
	t, err := parseOptionalDate(name, value)
	if err != nil || t == nil {
		return time.Time{}, err
	}
	return *t, nil
}
