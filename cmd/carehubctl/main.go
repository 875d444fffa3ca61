package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/platinummonkey/carehub/pkg/app"
	"github.com/platinummonkey/carehub/pkg/authz"
	"github.com/platinummonkey/carehub/pkg/cli"
	"github.com/platinummonkey/carehub/pkg/config"
	"github.com/platinummonkey/carehub/pkg/observability"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	// stdout carries command output, so logs go to stderr
	logger, err := observability.NewLogger(cfg.Observability.LogLevel, "text", os.Stderr)
	if err != nil {
		return err
	}

	admins, err := parseSubjects(os.Getenv("CAREHUB_SUPER_ADMINS"))
	if err != nil {
		return fmt.Errorf("invalid CAREHUB_SUPER_ADMINS: %w", err)
	}

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	gate := authz.NewGate(svc.Ledger, authz.StaticIdentity{SuperAdmins: admins},
		authz.WithGateLogger(logger.WithField("component", "authz")),
	)
	svc.Ledger.OnChange(gate.Invalidate)

	env := &cli.Env{
		Ledger:    svc.Ledger,
		Gate:      gate,
		Contracts: svc.Contracts,
		Invoices:  svc.Invoices,
		Billing:   svc.Billing,
		Migrate:   svc.Migrate,
		Out:       os.Stdout,
	}
	return cli.NewRootCommand(env).Execute(ctx, os.Args[1:], os.Stdout)
}

// parseSubjects parses a comma separated list of subject ids.
func parseSubjects(s string) (map[int64]bool, error) {
	subjects := make(map[int64]bool)
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("subject id must be a positive integer, got %q", part)
		}
		subjects[id] = true
	}
	return subjects, nil
}
