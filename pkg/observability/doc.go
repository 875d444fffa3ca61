// Package observability provides structured logging, Prometheus metrics,
// OpenTelemetry tracing, health probes and graceful shutdown.
//
// # Logging
//
// Components take a logrus.FieldLogger and default to NopLogger:
//
//	logger, err := observability.NewLogger("info", observability.FormatJSON, os.Stdout)
//	logger.WithField("client_id", id).Info("invoice created")
//
// # Metrics
//
// A nil *Metrics records nothing, so tests can skip the registry:
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	metrics.ObserveJobRun("billing", observability.OutcomeSuccess, time.Since(start))
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Health
//
//	checker := observability.NewHealthChecker(version)
//	checker.AddCheck("database", true, cm.HealthCheck)
//	checker.AddCheck("redis", false, observability.RedisCheck(client))
//	observability.RegisterHealthRoutes(router, checker)
//
// # OpenTelemetry
//
//	providers, err := observability.InitOTel(ctx, observability.OTelConfig{
//		Enabled:     true,
//		Endpoint:    "otel-collector:4317",
//		ServiceName: "carehub-scheduler",
//	}, logger)
//	defer observability.ShutdownOTel(ctx, providers, logger)
package observability
