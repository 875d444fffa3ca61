package contracts

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/carehub/pkg/apperr"
)

var contractCols = []string{"id", "client_id", "sender_id", "start_date", "duration_days", "care_type", "rate_type", "rate_value", "created_at"}

func TestPostgresStore_Create(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("INSERT INTO contracts").
		WithArgs(int64(5), int64(9), d("2024-01-01"), 30, "home care", "day", decimal.RequireFromString("95.50")).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(int64(1), now))

	c := &Contract{
		ClientID:     5,
		SenderID:     9,
		StartDate:    time.Date(2024, 1, 1, 15, 0, 0, 0, time.UTC),
		DurationDays: 30,
		CareType:     "home care",
		RateType:     RateDay,
		RateValue:    decimal.RequireFromString("95.50"),
	}
	require.NoError(t, NewPostgresStore(db).Create(context.Background(), c))
	assert.Equal(t, int64(1), c.ID)
	assert.Equal(t, d("2024-01-01"), c.StartDate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_CreateRejectsInvalid(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	err = NewPostgresStore(db).Create(context.Background(), &Contract{ClientID: 1, StartDate: d("2024-01-01"), RateValue: decimal.NewFromInt(-5)})
	assert.ErrorIs(t, err, apperr.ErrInvalidAmount)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListForClient(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now()
	mock.ExpectQuery("FROM contracts WHERE client_id").
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(contractCols).
			AddRow(int64(1), int64(5), int64(9), d("2024-01-01"), 0, "home care", "week", []byte("700.0000"), now).
			AddRow(int64(2), int64(5), int64(9), d("2024-02-01"), 10, "night care", "", []byte("0"), now))

	list, err := NewPostgresStore(db).ListForClient(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, RateWeek, list[0].RateType)
	assert.True(t, decimal.NewFromInt(700).Equal(list[0].RateValue))
	assert.Equal(t, RateType(""), list[1].RateType)
	assert.Equal(t, 10, list[1].DurationDays)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("FROM contracts WHERE id").WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)

	_, err = NewPostgresStore(db).Get(context.Background(), 3)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestPostgresStore_ListClientIDs(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT DISTINCT client_id FROM contracts").
		WillReturnRows(sqlmock.NewRows([]string{"client_id"}).AddRow(int64(1)).AddRow(int64(4)))

	ids, err := NewPostgresStore(db).ListClientIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 4}, ids)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	for _, clientID := range []int64{3, 1, 3} {
		require.NoError(t, s.Create(ctx, &Contract{ClientID: clientID, StartDate: d("2024-01-01"), RateType: RateDay, RateValue: decimal.NewFromInt(1)}))
	}

	ids, err := s.ListClientIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)

	list, err := s.ListForClient(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	_, err = s.Get(ctx, 99)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}
