// Package config loads carehub configuration.
//
// Values come from Default, then from an optional YAML file named by
// CAREHUB_CONFIG_FILE, then from CAREHUB_* environment variables. The
// environment always wins.
//
// Ops server:
//
//	CAREHUB_HOST="0.0.0.0"
//	CAREHUB_PORT="9090"
//	CAREHUB_SHUTDOWN_TIMEOUT="30s"
//
// Storage:
//
//	CAREHUB_POSTGRES_URL="postgres://localhost/carehub?sslmode=disable"
//	CAREHUB_POSTGRES_REPLICA_URLS="postgres://replica1/carehub,postgres://replica2/carehub"
//	CAREHUB_REDIS_URL="redis://localhost:6379/0"
//	CAREHUB_S3_BUCKET="carehub-invoices"
//	CAREHUB_S3_ENDPOINT="http://localhost:9000"
//	CAREHUB_S3_USE_PATH_STYLE="true"
//
// Notifications:
//
//	CAREHUB_WEBHOOK_URL="https://hooks.example.com/carehub"
//	CAREHUB_WEBHOOK_SECRET="..."
//
// Jobs:
//
//	CAREHUB_VAT_RATE="21"
//	CAREHUB_BILLING_SCHEDULE="0 2 1 * *"
//	CAREHUB_SWEEP_SCHEDULE="30 3 * * *"
//	CAREHUB_EXPIRY_GRACE_DAYS="30"
//	CAREHUB_RECONCILE_SCHEDULE="*/15 * * * *"
//
// The same settings in YAML:
//
//	database:
//	  url: postgres://localhost/carehub?sslmode=disable
//	billing:
//	  vat_rate: "21"
//	  item_timeout: 30s
//	membership:
//	  gate_cache_ttl: 30s
package config
