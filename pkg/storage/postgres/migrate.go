package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
)

// Migration represents a database migration
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Component groups the migrations owned by one package. Components are
// applied in the order they are passed to Migrate.
type Component struct {
	Name       string
	Migrations []Migration
}

const migrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		component VARCHAR(64) NOT NULL,
		version INTEGER NOT NULL,
		description TEXT NOT NULL,
		applied_at TIMESTAMP NOT NULL DEFAULT NOW(),
		PRIMARY KEY (component, version)
	)
`

// Migrate applies every pending migration of every component. Each migration
// runs in its own transaction together with its bookkeeping row.
func Migrate(ctx context.Context, db *sql.DB, logger logrus.FieldLogger, components ...Component) error {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	if _, err := db.ExecContext(ctx, migrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, c := range components {
		applied, err := appliedVersions(ctx, db, c.Name)
		if err != nil {
			return err
		}

		migrations := make([]Migration, len(c.Migrations))
		copy(migrations, c.Migrations)
		sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })

		for _, m := range migrations {
			if applied[m.Version] {
				continue
			}
			if err := apply(ctx, db, c.Name, m); err != nil {
				return err
			}
			logger.WithFields(logrus.Fields{
				"component": c.Name,
				"version":   m.Version,
			}).Infof("applied migration: %s", m.Description)
		}
	}

	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB, component string) (map[int]bool, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_migrations WHERE component = $1", component)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations for %s: %w", component, err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("failed to scan migration version: %w", err)
		}
		applied[v] = true
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, component string, m Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s/%d: %w", component, m.Version, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration %s/%d: %w", component, m.Version, err)
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (component, version, description) VALUES ($1, $2, $3)",
		component, m.Version, m.Description,
	); err != nil {
		return fmt.Errorf("failed to record migration %s/%d: %w", component, m.Version, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migration %s/%d: %w", component, m.Version, err)
	}
	return nil
}
