/*
store.go - Persistence interface for hours-bank accounts

APPEND-ONLY CONTRACT:
  - AppendTransaction(): Single transaction write, together with the new
    cached balance, in one atomic step
  - SaveBalance(): Rewrites only the cache (used by self-healing reads)
  - NO Update() or Delete() of transactions

IDEMPOTENCY:
  A transaction with a non-empty idempotency key is rejected with
  ErrDuplicateIdempotencyKey when the key already exists.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - store/memory/memory.go: In-memory for testing
*/
package generic

import (
	"context"

	"github.com/shopspring/decimal"
)

// AccountStore handles persistence of hours-bank accounts.
type AccountStore interface {
	// LoadAccount returns the account with its full history, oldest first.
	// A worker that never had a transaction gets an empty account.
	LoadAccount(ctx context.Context, workerID WorkerID) (Account, error)

	// AppendTransaction persists tx and the resulting cached balance atomically.
	AppendTransaction(ctx context.Context, tx Transaction, cache Balance) error

	// SaveBalance overwrites the cached balance without touching history.
	SaveBalance(ctx context.Context, workerID WorkerID, cache Balance) error

	// IdempotencyKeyExists checks whether a transaction used this key.
	IdempotencyKeyExists(ctx context.Context, key string) (bool, error)
}

// RateSource supplies the hourly rate used to price a posting.
// Returns ErrEntityNotFound for unknown workers.
type RateSource interface {
	HourlyRate(ctx context.Context, workerID WorkerID) (decimal.Decimal, error)
}

// RateFunc adapts a function to RateSource.
type RateFunc func(ctx context.Context, workerID WorkerID) (decimal.Decimal, error)

func (f RateFunc) HourlyRate(ctx context.Context, workerID WorkerID) (decimal.Decimal, error) {
	return f(ctx, workerID)
}
