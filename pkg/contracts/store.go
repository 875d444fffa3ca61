package contracts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
	"github.com/platinummonkey/carehub/pkg/storage/postgres"
)

// Store persists contracts. Contracts are append-only.
type Store interface {
	Create(ctx context.Context, c *Contract) error
	Get(ctx context.Context, id int64) (*Contract, error)
	ListForClient(ctx context.Context, clientID int64) ([]Contract, error)
	// ListClientIDs returns every client with at least one contract.
	ListClientIDs(ctx context.Context) ([]int64, error)
}

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new contract store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Create inserts a contract
func (s *PostgresStore) Create(ctx context.Context, c *Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO contracts (client_id, sender_id, start_date, duration_days, care_type, rate_type, rate_value)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query,
		c.ClientID,
		c.SenderID,
		period.Date(c.StartDate),
		c.DurationDays,
		c.CareType,
		string(c.RateType),
		c.RateValue,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create contract: %w", err)
	}
	c.StartDate = period.Date(c.StartDate)
	return nil
}

const contractColumns = `id, client_id, sender_id, start_date, duration_days, care_type, rate_type, rate_value, created_at`

// Get retrieves a contract by ID
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE id = $1`

	c, err := scanContract(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("contract", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contract: %w", err)
	}
	return c, nil
}

// ListForClient lists a client's contracts in creation order
func (s *PostgresStore) ListForClient(ctx context.Context, clientID int64) ([]Contract, error) {
	query := `SELECT ` + contractColumns + ` FROM contracts WHERE client_id = $1 ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, clientID)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var out []Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contracts: %w", err)
	}
	return out, nil
}

// ListClientIDs lists the clients that have contracts
func (s *PostgresStore) ListClientIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT client_id FROM contracts ORDER BY client_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan client id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanContract(row scanner) (*Contract, error) {
	var c Contract
	var rateType string
	if err := row.Scan(
		&c.ID,
		&c.ClientID,
		&c.SenderID,
		&c.StartDate,
		&c.DurationDays,
		&c.CareType,
		&rateType,
		&c.RateValue,
		&c.CreatedAt,
	); err != nil {
		return nil, err
	}
	c.RateType = RateType(rateType)
	c.StartDate = period.Date(c.StartDate)
	return &c, nil
}

// Migrations returns the contracts schema.
func Migrations() postgres.Component {
	return postgres.Component{
		Name: "contracts",
		Migrations: []postgres.Migration{
			{
				Version:     1,
				Description: "Create contracts table",
				SQL: `
					CREATE TABLE IF NOT EXISTS contracts (
						id BIGSERIAL PRIMARY KEY,
						client_id BIGINT NOT NULL,
						sender_id BIGINT NOT NULL,
						start_date DATE NOT NULL,
						duration_days INTEGER NOT NULL DEFAULT 0 CHECK (duration_days >= 0),
						care_type VARCHAR(100) NOT NULL DEFAULT '',
						rate_type VARCHAR(16) NOT NULL DEFAULT '',
						rate_value NUMERIC(14,4) NOT NULL DEFAULT 0,
						created_at TIMESTAMP NOT NULL DEFAULT NOW()
					);

					CREATE INDEX IF NOT EXISTS idx_contracts_client_id ON contracts(client_id);
				`,
			},
		},
	}
}

// MemoryStore is an in-process Store for tests and local tooling.
type MemoryStore struct {
	mu        sync.RWMutex
	contracts map[int64]Contract
	nextID    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contracts: make(map[int64]Contract)}
}

func (s *MemoryStore) Create(_ context.Context, c *Contract) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c.ID = s.nextID
	c.StartDate = period.Date(c.StartDate)
	c.CreatedAt = time.Now()
	s.contracts[c.ID] = *c
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id int64) (*Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.contracts[id]
	if !ok {
		return nil, apperr.NotFound("contract", id)
	}
	return &c, nil
}

func (s *MemoryStore) ListForClient(_ context.Context, clientID int64) ([]Contract, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Contract
	for _, c := range s.contracts {
		if c.ClientID == clientID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListClientIDs(_ context.Context) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[int64]bool)
	var ids []int64
	for _, c := range s.contracts {
		if !seen[c.ClientID] {
			seen[c.ClientID] = true
			ids = append(ids, c.ClientID)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
