package invoices

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/carehub/pkg/apperr"
)

var invoiceCols = []string{
	"id", "invoice_number", "client_id", "period_start", "period_end", "issue_date", "due_date",
	"pre_vat_total", "vat_rate", "vat_amount", "total_amount", "paid_amount", "status", "document_key", "created_at", "updated_at",
}

func invoiceRow(rows *sqlmock.Rows, id int64, status Status, paid string) *sqlmock.Rows {
	now := time.Now()
	return rows.AddRow(id, "INV-202403-1-ABCDEF12", int64(1), d("2024-03-01"), d("2024-03-15"), d("2024-03-15"), d("2024-04-14"),
		[]byte("100.00"), []byte("21.00"), []byte("21.00"), []byte("121.00"), []byte(paid), string(status), "", now, now)
}

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	contractID := int64(4)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(int64(10), now, now))
	mock.ExpectQuery("INSERT INTO invoice_lines").
		WithArgs(int64(10), sqlmock.AnyArg(), "home care", d("2024-03-01"), d("2024-03-15"), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(100)))
	mock.ExpectCommit()

	inv := &Invoice{
		InvoiceNumber: "INV-202403-1-ABCDEF12",
		ClientID:      1,
		PeriodStart:   d("2024-03-01"),
		PeriodEnd:     d("2024-03-15"),
		IssueDate:     d("2024-03-15"),
		DueDate:       d("2024-04-14"),
		PreVATTotal:   dec("100"),
		VATRate:       dec("21"),
		Status:        StatusOutstanding,
		Lines: []Line{{
			ContractID:  &contractID,
			Description: "home care",
			PeriodStart: d("2024-03-01"),
			PeriodEnd:   d("2024-03-15"),
			Amount:      dec("100"),
		}},
	}
	RecomputeTotals(inv)

	require.NoError(t, NewPostgresStore(db).Create(context.Background(), inv))
	assert.Equal(t, int64(10), inv.ID)
	assert.Equal(t, int64(100), inv.Lines[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateDuplicate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO invoices").WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	inv := &Invoice{ClientID: 1, PeriodStart: d("2024-03-01"), Status: StatusOutstanding}
	err = NewPostgresStore(db).Create(context.Background(), inv)
	assert.ErrorIs(t, err, apperr.ErrDuplicateInvoice)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM invoices WHERE id").
		WithArgs(int64(10)).
		WillReturnRows(invoiceRow(sqlmock.NewRows(invoiceCols), 10, StatusPartiallyPaid, "50.00"))
	mock.ExpectQuery("FROM invoice_lines").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "contract_id", "description", "period_start", "period_end", "amount"}).
			AddRow(int64(1), int64(4), "home care", d("2024-03-01"), d("2024-03-15"), []byte("60.00")).
			AddRow(int64(2), nil, "travel", d("2024-03-01"), d("2024-03-15"), []byte("40.00")))

	inv, err := NewPostgresStore(db).Get(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyPaid, inv.Status)
	assert.Equal(t, "121", inv.TotalAmount.String())
	assert.Equal(t, "71", inv.Outstanding().String())
	require.Len(t, inv.Lines, 2)
	require.NotNil(t, inv.Lines[0].ContractID)
	assert.Equal(t, int64(4), *inv.Lines[0].ContractID)
	assert.Nil(t, inv.Lines[1].ContractID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM invoices WHERE invoice_number").WithArgs("INV-X").WillReturnError(sql.ErrNoRows)

	_, err = NewPostgresStore(db).GetByNumber(context.Background(), "INV-X")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresStore_ListOutstandingDueBefore(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM invoices WHERE status = \\$1 AND due_date < \\$2").
		WithArgs("outstanding", d("2024-02-14")).
		WillReturnRows(invoiceRow(sqlmock.NewRows(invoiceCols), 3, StatusOutstanding, "0"))

	list, err := NewPostgresStore(db).ListOutstandingDueBefore(context.Background(), d("2024-02-14").Add(5*time.Hour))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(3), list[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateLocksRowAndAppendsHistory(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FROM invoices WHERE id = \\$1 FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(invoiceRow(sqlmock.NewRows(invoiceCols), 10, StatusOutstanding, "0"))
	mock.ExpectQuery("UPDATE invoices").
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), "paid", "", int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"updated_at"}).AddRow(now))
	mock.ExpectQuery("INSERT INTO invoice_history").
		WithArgs(int64(10), "payment", sqlmock.AnyArg(), "card", "outstanding", "paid", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(7), now))
	mock.ExpectCommit()

	var entry *History
	inv, err := NewPostgresStore(db).Update(context.Background(), 10, func(inv *Invoice) (*History, error) {
		from := inv.Status
		inv.PaidAmount = inv.PaidAmount.Add(dec("121"))
		inv.Status = statusForPaid(inv.PaidAmount, inv.TotalAmount)
		entry = &History{Kind: KindPayment, Amount: dec("121"), Method: "card", FromStatus: from, ToStatus: inv.Status}
		return entry, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, inv.Status)
	assert.Equal(t, int64(7), entry.ID)
	assert.Equal(t, int64(10), entry.InvoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateRollsBackOnMutationError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(int64(10)).
		WillReturnRows(invoiceRow(sqlmock.NewRows(invoiceCols), 10, StatusPaid, "121.00"))
	mock.ExpectRollback()

	rejected := errors.New("rejected")
	_, err = NewPostgresStore(db).Update(context.Background(), 10, func(*Invoice) (*History, error) {
		return nil, rejected
	})
	assert.ErrorIs(t, err, rejected)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpdateNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").WithArgs(int64(404)).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err = NewPostgresStore(db).Update(context.Background(), 404, func(*Invoice) (*History, error) {
		t.Fatal("mutation must not run")
		return nil, nil
	})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_History(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("FROM invoice_history").
		WithArgs(int64(10)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "invoice_id", "kind", "amount", "method", "from_status", "to_status", "note", "created_at"}).
			AddRow(int64(1), int64(10), "payment", []byte("21.00"), "card", "outstanding", "partially_paid", "", now).
			AddRow(int64(2), int64(10), "amendment", []byte("242.00"), "", "partially_paid", "partially_paid", "pre-VAT 200.00", now))

	history, err := NewPostgresStore(db).History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.True(t, history[0].Transitioned())
	assert.False(t, history[1].Transitioned())
	assert.Equal(t, KindAmendment, history[1].Kind)
}

func TestMigrations(t *testing.T) {
	c := Migrations()
	assert.Equal(t, "invoices", c.Name)
	require.Len(t, c.Migrations, 2)
	assert.Contains(t, c.Migrations[0].SQL, "UNIQUE (client_id, period_start)")
	assert.Contains(t, c.Migrations[0].SQL, "invoice_number VARCHAR(64) NOT NULL UNIQUE")
}
