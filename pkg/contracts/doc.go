// Package contracts holds care contracts and their cost model.
//
// CostForPeriod prices a contract over an inclusive date range using exact
// decimal arithmetic:
//
//	day     days * rate
//	week    days / 7 * rate   (fractional weeks)
//	hour    days * 24 * rate
//	minute  days * 1440 * rate
//
// Contracts whose rate type is unknown or empty cost zero. This leniency is
// kept for compatibility with existing data; the billing job logs such
// contracts at WARN.
package contracts
