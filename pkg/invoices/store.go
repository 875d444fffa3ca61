package invoices

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
	"github.com/platinummonkey/carehub/pkg/storage/postgres"
)

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new invoice store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const invoiceColumns = `id, invoice_number, client_id, period_start, period_end, issue_date, due_date,
	pre_vat_total, vat_rate, vat_amount, total_amount, paid_amount, status, document_key, created_at, updated_at`

// Create inserts an invoice with its lines in one transaction
func (s *PostgresStore) Create(ctx context.Context, inv *Invoice) error {
	return postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `
			INSERT INTO invoices (invoice_number, client_id, period_start, period_end, issue_date, due_date,
				pre_vat_total, vat_rate, vat_amount, total_amount, paid_amount, status, document_key)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			RETURNING id, created_at, updated_at
		`

		err := tx.QueryRowContext(ctx, query,
			inv.InvoiceNumber,
			inv.ClientID,
			period.Date(inv.PeriodStart),
			period.Date(inv.PeriodEnd),
			period.Date(inv.IssueDate),
			period.Date(inv.DueDate),
			inv.PreVATTotal,
			inv.VATRate,
			inv.VATAmount,
			inv.TotalAmount,
			inv.PaidAmount,
			string(inv.Status),
			inv.DocumentKey,
		).Scan(&inv.ID, &inv.CreatedAt, &inv.UpdatedAt)
		if err != nil {
			if postgres.IsUniqueViolation(err) {
				return fmt.Errorf("client %d period %s: %w", inv.ClientID, inv.PeriodStart.Format("2006-01"), apperr.ErrDuplicateInvoice)
			}
			return fmt.Errorf("failed to create invoice: %w", err)
		}

		for i := range inv.Lines {
			line := &inv.Lines[i]
			err := tx.QueryRowContext(ctx, `
				INSERT INTO invoice_lines (invoice_id, contract_id, description, period_start, period_end, amount)
				VALUES ($1, $2, $3, $4, $5, $6)
				RETURNING id
			`,
				inv.ID,
				nullInt64(line.ContractID),
				line.Description,
				period.Date(line.PeriodStart),
				period.Date(line.PeriodEnd),
				line.Amount,
			).Scan(&line.ID)
			if err != nil {
				return fmt.Errorf("failed to create invoice line: %w", err)
			}
		}
		return nil
	})
}

// Get retrieves an invoice and its lines by ID
func (s *PostgresStore) Get(ctx context.Context, id int64) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	return s.getOne(ctx, query, id)
}

// GetByNumber retrieves an invoice and its lines by invoice number
func (s *PostgresStore) GetByNumber(ctx context.Context, number string) (*Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE invoice_number = $1`
	return s.getOne(ctx, query, number)
}

func (s *PostgresStore) getOne(ctx context.Context, query string, key any) (*Invoice, error) {
	inv, err := scanInvoice(s.db.QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.NotFound("invoice", key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}

	lines, err := s.lines(ctx, inv.ID)
	if err != nil {
		return nil, err
	}
	inv.Lines = lines
	return inv, nil
}

func (s *PostgresStore) lines(ctx context.Context, invoiceID int64) ([]Line, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, contract_id, description, period_start, period_end, amount
		FROM invoice_lines
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		var contractID sql.NullInt64
		if err := rows.Scan(&line.ID, &contractID, &line.Description, &line.PeriodStart, &line.PeriodEnd, &line.Amount); err != nil {
			return nil, fmt.Errorf("failed to scan invoice line: %w", err)
		}
		if contractID.Valid {
			id := contractID.Int64
			line.ContractID = &id
		}
		line.PeriodStart = period.Date(line.PeriodStart)
		line.PeriodEnd = period.Date(line.PeriodEnd)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoice lines: %w", err)
	}
	return lines, nil
}

// ExistsForPeriod checks for an invoice for the client and period
func (s *PostgresStore) ExistsForPeriod(ctx context.Context, clientID int64, periodStart time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM invoices WHERE client_id = $1 AND period_start = $2)`,
		clientID, period.Date(periodStart),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check invoice: %w", err)
	}
	return exists, nil
}

// ListForClient lists a client's invoices, newest period first, without lines
func (s *PostgresStore) ListForClient(ctx context.Context, clientID int64) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE client_id = $1 ORDER BY period_start DESC`
	return s.list(ctx, query, clientID)
}

// ListOutstandingDueBefore lists outstanding invoices due strictly before cutoff
func (s *PostgresStore) ListOutstandingDueBefore(ctx context.Context, cutoff time.Time) ([]Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE status = $1 AND due_date < $2 ORDER BY due_date, id`
	return s.list(ctx, query, string(StatusOutstanding), period.Date(cutoff))
}

func (s *PostgresStore) list(ctx context.Context, query string, args ...any) ([]Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		out = append(out, *inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoices: %w", err)
	}
	return out, nil
}

// Update locks the invoice row, applies mutate and writes the result together
// with its history entry.
func (s *PostgresStore) Update(ctx context.Context, id int64, mutate Mutation) (*Invoice, error) {
	var inv *Invoice
	err := postgres.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1 FOR UPDATE`

		locked, err := scanInvoice(tx.QueryRowContext(ctx, query, id))
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.NotFound("invoice", id)
		}
		if err != nil {
			return fmt.Errorf("failed to lock invoice: %w", err)
		}

		entry, err := mutate(locked)
		if err != nil {
			return err
		}

		err = tx.QueryRowContext(ctx, `
			UPDATE invoices
			SET pre_vat_total = $1, vat_rate = $2, vat_amount = $3, total_amount = $4,
				paid_amount = $5, status = $6, document_key = $7, updated_at = NOW()
			WHERE id = $8
			RETURNING updated_at
		`,
			locked.PreVATTotal,
			locked.VATRate,
			locked.VATAmount,
			locked.TotalAmount,
			locked.PaidAmount,
			string(locked.Status),
			locked.DocumentKey,
			id,
		).Scan(&locked.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to update invoice: %w", err)
		}

		if entry != nil {
			entry.InvoiceID = id
			err = tx.QueryRowContext(ctx, `
				INSERT INTO invoice_history (invoice_id, kind, amount, method, from_status, to_status, note)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id, created_at
			`,
				id,
				string(entry.Kind),
				entry.Amount,
				entry.Method,
				string(entry.FromStatus),
				string(entry.ToStatus),
				entry.Note,
			).Scan(&entry.ID, &entry.CreatedAt)
			if err != nil {
				return fmt.Errorf("failed to record invoice history: %w", err)
			}
		}

		inv = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// History lists the events recorded for an invoice, oldest first
func (s *PostgresStore) History(ctx context.Context, invoiceID int64) ([]History, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, invoice_id, kind, amount, method, from_status, to_status, note, created_at
		FROM invoice_history
		WHERE invoice_id = $1
		ORDER BY id
	`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoice history: %w", err)
	}
	defer rows.Close()

	var out []History
	for rows.Next() {
		var h History
		var kind, from, to string
		if err := rows.Scan(&h.ID, &h.InvoiceID, &kind, &h.Amount, &h.Method, &from, &to, &h.Note, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice history: %w", err)
		}
		h.Kind = HistoryKind(kind)
		h.FromStatus = Status(from)
		h.ToStatus = Status(to)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate invoice history: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (*Invoice, error) {
	var inv Invoice
	var status string
	if err := row.Scan(
		&inv.ID,
		&inv.InvoiceNumber,
		&inv.ClientID,
		&inv.PeriodStart,
		&inv.PeriodEnd,
		&inv.IssueDate,
		&inv.DueDate,
		&inv.PreVATTotal,
		&inv.VATRate,
		&inv.VATAmount,
		&inv.TotalAmount,
		&inv.PaidAmount,
		&status,
		&inv.DocumentKey,
		&inv.CreatedAt,
		&inv.UpdatedAt,
	); err != nil {
		return nil, err
	}
	inv.Status = Status(status)
	inv.PeriodStart = period.Date(inv.PeriodStart)
	inv.PeriodEnd = period.Date(inv.PeriodEnd)
	inv.IssueDate = period.Date(inv.IssueDate)
	inv.DueDate = period.Date(inv.DueDate)
	return &inv, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// Migrations returns the invoices schema.
func Migrations() postgres.Component {
	return postgres.Component{
		Name: "invoices",
		Migrations: []postgres.Migration{
			{
				Version:     1,
				Description: "Create invoices and invoice_lines tables",
				SQL: `
					CREATE TABLE IF NOT EXISTS invoices (
						id BIGSERIAL PRIMARY KEY,
						invoice_number VARCHAR(64) NOT NULL UNIQUE,
						client_id BIGINT NOT NULL,
						period_start DATE NOT NULL,
						period_end DATE NOT NULL,
						issue_date DATE NOT NULL,
						due_date DATE NOT NULL,
						pre_vat_total NUMERIC(14,2) NOT NULL DEFAULT 0,
						vat_rate NUMERIC(5,2) NOT NULL DEFAULT 0,
						vat_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
						total_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
						paid_amount NUMERIC(14,2) NOT NULL DEFAULT 0,
						status VARCHAR(20) NOT NULL DEFAULT 'outstanding'
							CHECK (status IN ('outstanding', 'partially_paid', 'paid', 'expired')),
						document_key TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL DEFAULT NOW(),
						updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
						UNIQUE (client_id, period_start),
						CHECK (period_start <= period_end)
					);

					CREATE INDEX IF NOT EXISTS idx_invoices_status_due_date ON invoices(status, due_date);

					CREATE TABLE IF NOT EXISTS invoice_lines (
						id BIGSERIAL PRIMARY KEY,
						invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
						contract_id BIGINT,
						description TEXT NOT NULL DEFAULT '',
						period_start DATE NOT NULL,
						period_end DATE NOT NULL,
						amount NUMERIC(14,2) NOT NULL DEFAULT 0
					);

					CREATE INDEX IF NOT EXISTS idx_invoice_lines_invoice_id ON invoice_lines(invoice_id);
				`,
			},
			{
				Version:     2,
				Description: "Create invoice_history table",
				SQL: `
					CREATE TABLE IF NOT EXISTS invoice_history (
						id BIGSERIAL PRIMARY KEY,
						invoice_id BIGINT NOT NULL REFERENCES invoices(id) ON DELETE CASCADE,
						kind VARCHAR(20) NOT NULL,
						amount NUMERIC(14,2) NOT NULL DEFAULT 0,
						method VARCHAR(50) NOT NULL DEFAULT '',
						from_status VARCHAR(20) NOT NULL DEFAULT '',
						to_status VARCHAR(20) NOT NULL DEFAULT '',
						note TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL DEFAULT NOW()
					);

					CREATE INDEX IF NOT EXISTS idx_invoice_history_invoice_id ON invoice_history(invoice_id);
				`,
			},
		},
	}
}
