// Package cli implements the carehubctl operator commands.
//
// Each command parses its own flag set and calls one service in Env:
//
//	carehubctl migrate
//	carehubctl grant --subject 42 --role nurse --start 2024-01-01 --end 2024-12-31
//	carehubctl revoke --record 7
//	carehubctl check --subject 42 --role nurse [--at 2024-06-01]
//	carehubctl cost --contract 5 --from 2024-03-01 --to 2024-03-31
//	carehubctl bill [--date 2024-03-31]
//	carehubctl record-payment --invoice 10 --amount 121.00 --method card
//	carehubctl amend-invoice --invoice 10 --pre-vat 200 [--vat-rate 9]
//	carehubctl archive --invoice 10
//	carehubctl sweep [--as-of 2024-05-15]
//
// Without --at, check goes through the authorization gate for today, so the
// super-admin bypass applies.
package cli
