package contracts

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
)

func d(s string) time.Time { return period.MustParse(s) }

func TestCostForPeriod(t *testing.T) {
	tests := []struct {
		name     string
		rateType RateType
		rate     string
		start    string
		end      string
		want     string
	}{
		{"single inclusive day", RateDay, "100", "2024-01-01", "2024-01-01", "100"},
		{"day rate over a month", RateDay, "12.50", "2024-01-01", "2024-01-31", "387.5"},
		{"two whole weeks", RateWeek, "700", "2024-01-01", "2024-01-14", "1400"},
		{"one day of a week rate", RateWeek, "70", "2024-01-01", "2024-01-01", "10"},
		{"hour rate", RateHour, "2", "2024-01-01", "2024-01-02", "96"},
		{"minute rate", RateMinute, "0.01", "2024-01-01", "2024-01-01", "14.4"},
		{"leap day counted", RateDay, "1", "2024-02-01", "2024-02-29", "29"},
		{"unknown rate type is free", RateType("fortnight"), "100", "2024-01-01", "2024-01-31", "0"},
		{"empty rate type is free", RateType(""), "100", "2024-01-01", "2024-01-31", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := Contract{RateType: tt.rateType, RateValue: decimal.RequireFromString(tt.rate)}
			got, err := CostForPeriod(c, d(tt.start), d(tt.end))
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestCostForPeriod_FractionalWeeks(t *testing.T) {
	c := Contract{RateType: RateWeek, RateValue: decimal.NewFromInt(100)}

	got, err := CostForPeriod(c, d("2024-01-01"), d("2024-01-10"))
	require.NoError(t, err)
	assert.Equal(t, "142.86", got.Round(2).String())
}

func TestCostForPeriod_InvalidPeriod(t *testing.T) {
	c := Contract{RateType: RateDay, RateValue: decimal.NewFromInt(100)}

	_, err := CostForPeriod(c, d("2024-01-02"), d("2024-01-01"))
	assert.ErrorIs(t, err, apperr.ErrInvalidPeriod)
}

func TestCostForPeriod_IgnoresTimeOfDay(t *testing.T) {
	c := Contract{RateType: RateDay, RateValue: decimal.NewFromInt(10)}

	start := time.Date(2024, 1, 1, 23, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC)
	got, err := CostForPeriod(c, start, end)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(20).Equal(got))
}

func TestContract_Validity(t *testing.T) {
	fixed := Contract{StartDate: d("2024-01-10"), DurationDays: 10}
	assert.Equal(t, "[2024-01-10, 2024-01-19]", fixed.Validity().String())
	assert.True(t, fixed.ActiveAt(d("2024-01-19")))
	assert.False(t, fixed.ActiveAt(d("2024-01-20")))

	open := Contract{StartDate: d("2024-01-10")}
	assert.Equal(t, "[2024-01-10, +inf]", open.Validity().String())
	assert.True(t, open.ActiveAt(d("2030-01-01")))
}

func TestBillableWindow(t *testing.T) {
	month := period.Month(d("2024-03-20"))

	tests := []struct {
		name     string
		contract Contract
		from, to string
		ok       bool
	}{
		{"covers the month", Contract{StartDate: d("2024-01-01")}, "2024-03-01", "2024-03-20", true},
		{"starts mid month", Contract{StartDate: d("2024-03-05")}, "2024-03-05", "2024-03-20", true},
		{"ends mid month", Contract{StartDate: d("2024-02-01"), DurationDays: 40}, "2024-03-01", "2024-03-11", true},
		{"starts after today", Contract{StartDate: d("2024-03-21")}, "", "", false},
		{"ended last month", Contract{StartDate: d("2024-01-01"), DurationDays: 31}, "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from, to, ok := BillableWindow(tt.contract, month)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, d(tt.from), from)
				assert.Equal(t, d(tt.to), to)
			}
		})
	}
}

func TestContract_Validate(t *testing.T) {
	valid := Contract{ClientID: 1, StartDate: d("2024-01-01"), RateType: RateDay, RateValue: decimal.NewFromInt(1)}
	assert.NoError(t, valid.Validate())

	noClient := valid
	noClient.ClientID = 0
	assert.Error(t, noClient.Validate())

	negative := valid
	negative.RateValue = decimal.NewFromInt(-1)
	assert.ErrorIs(t, negative.Validate(), apperr.ErrInvalidAmount)

	badDuration := valid
	badDuration.DurationDays = -1
	assert.ErrorIs(t, badDuration.Validate(), apperr.ErrInvalidPeriod)

	assert.True(t, RateWeek.Known())
	assert.False(t, RateType("").Known())
}
