package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/carehub/pkg/app"
	"github.com/platinummonkey/carehub/pkg/config"
	"github.com/platinummonkey/carehub/pkg/httputil"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/period"
)

var (
	runOnce    = flag.Bool("run-once", false, "Run the selected job once and exit")
	job        = flag.String("job", jobAll, "Job to run with --run-once: billing, sweep, reconcile or all")
	date       = flag.String("date", "", "Date to run the job for (YYYY-MM-DD). If empty, uses today. Only used with --run-once")
	migrate    = flag.Bool("migrate", true, "Apply pending schema migrations on start")
	jobTimeout = flag.Duration("job-timeout", time.Hour, "Upper bound on a single scheduled job run")
)

func main() {
	flag.Parse()
	if *jobTimeout <= 0 {
		fmt.Fprintf(os.Stderr, "--job-timeout must be positive, got %s\n", *jobTimeout)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Observability.LogLevel, cfg.Observability.LogFormat, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("Scheduler failed")
	}
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize OpenTelemetry: %w", err)
	}

	svc, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}

	if *migrate {
		if err := svc.Migrate(ctx); err != nil {
			svc.Close()
			return fmt.Errorf("failed to migrate: %w", err)
		}
	}

	jobs := newRunner(svc, logger, *jobTimeout)

	if *runOnce {
		defer svc.Close()
		defer observability.ShutdownOTel(context.Background(), providers, logger)

		day, err := parseDate(*date)
		if err != nil {
			return err
		}
		return jobs.runOnce(ctx, *job, day)
	}

	svc.DB.StartHealthCheckRoutine(ctx, 0)

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.SkipIfStillRunning(cron.PrintfLogger(logger))),
	)
	for _, entry := range []struct {
		name     string
		schedule string
		fn       func(context.Context, time.Time) error
	}{
		{jobBilling, cfg.Billing.Schedule, jobs.billing},
		{jobSweep, cfg.Invoices.SweepSchedule, jobs.sweep},
		{jobReconcile, cfg.Membership.ReconcileSchedule, jobs.reconcile},
	} {
		if _, err := c.AddFunc(entry.schedule, jobs.scheduled(ctx, entry.name, entry.fn)); err != nil {
			svc.Close()
			return fmt.Errorf("failed to schedule %s: %w", entry.name, err)
		}
		logger.WithFields(logrus.Fields{"job": entry.name, "schedule": entry.schedule}).Info("Job scheduled")
	}

	router := mux.NewRouter()
	observability.RegisterHealthRoutes(router, svc.Health)
	router.Handle("/metrics", observability.MetricsHandler(svc.Registry)).Methods(http.MethodGet)

	handler := httputil.Chain(
		observability.HTTPMetricsMiddleware(svc.Metrics),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(logger),
		httputil.RecoveryMiddleware(logger),
	)(router)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:           otelhttp.NewHandler(handler, "carehub-ops"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return observability.ShutdownOTel(ctx, providers, logger)
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.WithField("addr", server.Addr).Info("Ops server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := shutdown.WaitForShutdown(gctx)
		if closeErr := svc.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close connections")
		}
		return err
	})

	c.Start()
	logger.Info("carehub scheduler started")

	return g.Wait()
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	d, err := period.Parse(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --date: %w", err)
	}
	return d, nil
}
