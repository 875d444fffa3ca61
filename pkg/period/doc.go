// Package period implements the date-range semantics shared by the whole core.
//
// # Overview
//
// Every entitlement in the system (role membership, contract validity, billing
// windows) is a closed range of civil dates where either end may be open.
// IsActive is the single implementation of "in effect on a given day"; other
// packages call it instead of comparing dates themselves.
//
// # Conventions
//
// All dates are normalised to midnight UTC with Date. Bounds are inclusive on
// both ends, so a range starting and ending on the same day contains exactly
// one day:
//
//	day := period.MustParse("2024-06-30")
//	period.IsActive(nil, &day, day)                      // true
//	period.IsActive(nil, &day, day.AddDate(0, 0, 1))     // false
//	period.DaysInclusive(day, day)                       // 1
//
// # Billing windows
//
// Month returns the window accrued by the recurring billing job: from the
// first of the month up to and including "today".
package period
