package contracts

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/carehub/pkg/apperr"
	"github.com/platinummonkey/carehub/pkg/period"
)

// RateType is the unit a contract's rate is charged per.
type RateType string

const (
	RateDay    RateType = "day"
	RateWeek   RateType = "week"
	RateHour   RateType = "hour"
	RateMinute RateType = "minute"
)

// Known reports whether r is one of the supported rate units.
func (r RateType) Known() bool {
	switch r {
	case RateDay, RateWeek, RateHour, RateMinute:
		return true
	}
	return false
}

// Contract is a care agreement between a client and a billing party.
type Contract struct {
	ID       int64 `json:"id"`
	ClientID int64 `json:"client_id"`
	SenderID int64 `json:"sender_id"`

	StartDate time.Time `json:"start_date"`
	// DurationDays is the number of days the contract runs, counting the
	// start date. Zero means open-ended.
	DurationDays int `json:"duration_days"`

	CareType  string          `json:"care_type"`
	RateType  RateType        `json:"rate_type"`
	RateValue decimal.Decimal `json:"rate_value"`
	CreatedAt time.Time       `json:"created_at"`
}

// Validity returns the dates on which the contract is in effect.
func (c Contract) Validity() period.Interval {
	start := period.Date(c.StartDate)
	iv := period.Interval{Start: &start}
	if c.DurationDays > 0 {
		end := start.AddDate(0, 0, c.DurationDays-1)
		iv.End = &end
	}
	return iv
}

// ActiveAt reports whether the contract is in effect on at.
func (c Contract) ActiveAt(at time.Time) bool {
	return c.Validity().Contains(at)
}

// BillableWindow intersects the billing period with the contract validity.
// ok is false when the contract does not run during the period.
func BillableWindow(c Contract, b period.Billing) (from, to time.Time, ok bool) {
	return c.Validity().Clamp(b.Start, b.End)
}

var (
	hoursPerDay   = decimal.NewFromInt(24)
	minutesPerDay = decimal.NewFromInt(24 * 60)
	daysPerWeek   = decimal.NewFromInt(7)
)

// CostForPeriod prices the contract over [start, end], both days included.
// Weeks are fractional. An unknown or empty rate type costs zero.
func CostForPeriod(c Contract, start, end time.Time) (decimal.Decimal, error) {
	start, end = period.Date(start), period.Date(end)
	if end.Before(start) {
		return decimal.Zero, apperr.InvalidPeriod("period end %s precedes start %s",
			end.Format(time.DateOnly), start.Format(time.DateOnly))
	}

	days := decimal.NewFromInt(int64(period.DaysInclusive(start, end)))

	switch c.RateType {
	case RateDay:
		return days.Mul(c.RateValue), nil
	case RateWeek:
		// multiply first so whole weeks stay exact
		return days.Mul(c.RateValue).Div(daysPerWeek), nil
	case RateHour:
		return days.Mul(hoursPerDay).Mul(c.RateValue), nil
	case RateMinute:
		return days.Mul(minutesPerDay).Mul(c.RateValue), nil
	default:
		return decimal.Zero, nil
	}
}

// Validate checks the fields a new contract must carry.
func (c Contract) Validate() error {
	if c.ClientID == 0 {
		return errors.New("contract client is required")
	}
	if c.StartDate.IsZero() {
		return apperr.InvalidPeriod("contract start date is required")
	}
	if c.DurationDays < 0 {
		return apperr.InvalidPeriod("contract duration %d is negative", c.DurationDays)
	}
	if c.RateValue.IsNegative() {
		return apperr.InvalidAmount("rate %s is negative", c.RateValue)
	}
	return nil
}
