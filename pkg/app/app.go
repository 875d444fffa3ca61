package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/carehub/pkg/authz"
	"github.com/platinummonkey/carehub/pkg/billing"
	"github.com/platinummonkey/carehub/pkg/config"
	"github.com/platinummonkey/carehub/pkg/contracts"
	"github.com/platinummonkey/carehub/pkg/documents"
	"github.com/platinummonkey/carehub/pkg/invoices"
	"github.com/platinummonkey/carehub/pkg/membership"
	"github.com/platinummonkey/carehub/pkg/notify"
	"github.com/platinummonkey/carehub/pkg/observability"
	"github.com/platinummonkey/carehub/pkg/roster"
	"github.com/platinummonkey/carehub/pkg/storage"
	"github.com/platinummonkey/carehub/pkg/storage/postgres"
)

// Version is reported by the readiness probe.
var Version = "dev"

// Services holds every wired component of a carehub process.
type Services struct {
	Config   *config.Config
	Logger   logrus.FieldLogger
	Registry *prometheus.Registry
	Metrics  *observability.Metrics
	Health   *observability.HealthChecker

	DB      *postgres.ConnectionManager
	Redis   *redis.Client
	Archive *documents.S3Archive

	Roster     membership.Roster
	Dispatcher notify.Dispatcher

	Ledger    *membership.Ledger
	Gate      *authz.Gate
	Contracts contracts.Store
	Invoices  *invoices.Lifecycle
	Billing   *billing.Job
}

// New connects to the configured backends and wires the services. Redis and
// S3 are optional; without Redis the roster lives in memory and
// notifications go to the log, and without a bucket invoice documents are
// not archived.
func New(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*Services, error) {
	if logger == nil {
		logger = observability.NopLogger()
	}

	s := &Services{
		Config:   cfg,
		Logger:   logger,
		Registry: prometheus.NewRegistry(),
		Health:   observability.NewHealthChecker(Version),
	}
	s.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if cfg.Observability.MetricsEnabled {
		s.Metrics = observability.NewMetrics(s.Registry)
	}

	db, err := postgres.NewConnectionManager(ctx, postgres.ConnectionConfig{
		PrimaryURL:  cfg.Database.URL,
		ReplicaURLs: cfg.Database.ReplicaURLs,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		Timeout:     cfg.Database.Timeout,
		Logger:      logger.WithField("component", "postgres"),
	})
	if err != nil {
		return nil, err
	}
	s.DB = db
	s.Health.AddCheck("database", true, db.HealthCheck)
	if len(cfg.Database.ReplicaURLs) > 0 {
		s.Health.AddCheck("database_replicas", false, db.ReplicaCheck)
	}

	if cfg.Redis.Enabled() {
		client, err := storage.NewRedisClient(ctx, storage.RedisConfig{
			URL:        cfg.Redis.URL,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			MaxRetries: cfg.Redis.MaxRetries,
			PoolSize:   cfg.Redis.PoolSize,
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Redis = client
		s.Roster = roster.NewRedisRoster(client, cfg.Redis.RosterPrefix)
		s.Dispatcher = notify.NewRedisDispatcher(client, cfg.Redis.NotifyPrefix)
		s.Health.AddCheck("redis", false, observability.RedisCheck(client))
	} else {
		logger.Warn("Redis not configured: using in-memory roster and log notifications")
		s.Roster = roster.NewMemoryRoster()
		s.Dispatcher = notify.NewLogDispatcher(logger.WithField("component", "notify"))
	}
	if cfg.Notify.WebhookURL != "" {
		s.Dispatcher = notify.Fanout{s.Dispatcher, notify.NewWebhookDispatcher(notify.WebhookConfig{
			URL:     cfg.Notify.WebhookURL,
			Secret:  cfg.Notify.WebhookSecret,
			Timeout: cfg.Notify.WebhookTimeout,
			Retry:   notify.RetryConfig{MaxAttempts: cfg.Notify.WebhookMaxAttempts},
			Logger:  logger.WithField("component", "notify"),
		})}
	}

	if cfg.Archive.Enabled() {
		archive, err := documents.NewS3Archive(ctx, documents.S3Config{
			Endpoint:     cfg.Archive.Endpoint,
			Region:       cfg.Archive.Region,
			Bucket:       cfg.Archive.Bucket,
			AccessKey:    cfg.Archive.AccessKey,
			SecretKey:    cfg.Archive.SecretKey,
			UsePathStyle: cfg.Archive.UsePathStyle,
		})
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to initialize document archive: %w", err)
		}
		s.Archive = archive
		s.Health.AddCheck("archive", false, archive.HealthCheck)
	}

	s.wire()
	return s, nil
}

func (s *Services) wire() {
	cfg := s.Config

	s.Ledger = membership.NewLedger(membership.NewPostgresStore(s.DB.Primary()),
		membership.WithLogger(s.Logger.WithField("component", "membership")),
		membership.WithMetrics(s.Metrics),
		membership.WithReconcileOptions(cfg.Membership.Workers, cfg.Membership.ItemTimeout),
	)
	s.Gate = authz.NewGate(s.Ledger, authz.ContextIdentity{},
		authz.WithGateLogger(s.Logger.WithField("component", "authz")),
		authz.WithGateMetrics(s.Metrics),
		authz.WithCache(cfg.Membership.GateCacheSize, cfg.Membership.GateCacheTTL),
	)
	s.Ledger.OnChange(s.Gate.Invalidate)

	s.Contracts = contracts.NewPostgresStore(s.DB.Primary())

	opts := []invoices.Option{
		invoices.WithLogger(s.Logger.WithField("component", "invoices")),
		invoices.WithMetrics(s.Metrics),
		invoices.WithHook(notify.NewInvoiceNotifier(s.Dispatcher)),
		invoices.WithExpiryGraceDays(cfg.Invoices.ExpiryGraceDays),
		invoices.WithPaymentTermsDays(cfg.Billing.PaymentTermsDays),
		invoices.WithSweepOptions(cfg.Invoices.Workers, cfg.Invoices.ItemTimeout),
	}
	if s.Archive != nil {
		opts = append(opts, invoices.WithDocuments(documents.NewTextRenderer(), s.Archive))
	}
	s.Invoices = invoices.NewLifecycle(invoices.NewPostgresStore(s.DB.Primary()), opts...)

	// billing only reads contracts, so it can use a replica
	s.Billing = billing.NewJob(contracts.NewPostgresStore(s.DB.Replica()), s.Invoices,
		billing.WithVATRate(cfg.Billing.VATRate),
		billing.WithConcurrency(cfg.Billing.Workers, cfg.Billing.ItemTimeout),
		billing.WithLogger(s.Logger.WithField("component", "billing")),
		billing.WithMetrics(s.Metrics),
	)
}

// Migrate applies the schema of every store.
func (s *Services) Migrate(ctx context.Context) error {
	return postgres.Migrate(ctx, s.DB.Primary(), s.Logger,
		membership.Migrations(),
		contracts.Migrations(),
		invoices.Migrations(),
	)
}

// Close releases the database and Redis connections.
func (s *Services) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		errs = append(errs, s.DB.Close())
	}
	return errors.Join(errs...)
}
