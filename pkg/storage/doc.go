// Package storage holds connection helpers shared by the stores.
//
// Relational storage lives in the postgres subpackage (connection manager,
// migrations, transactions). This package provides the Redis client used by
// the roster and the notification relay.
package storage
