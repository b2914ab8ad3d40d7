/*
Package generic provides the hours-bank ledger core.

PURPOSE:
  This package contains the domain-agnostic pieces of the hours bank: a
  signed-hours account per worker, an append-only transaction history, and
  the cached running balance derived from it. It knows nothing about shifts,
  punches or administrative absences; the attendance package builds on it.

KEY CONCEPTS IN THIS FILE (types.go):
  - Transaction: An immutable ledger entry (extra, deduction, reversal)
  - Account: Cached balance plus the full history it must equal
  - Balance: The (hours, value) pair returned to callers
  - WorkerID / TransactionID: Type-safe identifiers

DESIGN PRINCIPLES:
  1. Immutability: Transactions are never modified, only reversed
  2. Precision: Uses decimal.Decimal to avoid floating-point drift
  3. History is truth: the cached balance is an optimization only
  4. Auditability: Every transaction carries a description and reference

USAGE:
  ledger := generic.NewLedger(store, rates, clock, logger)
  tx, bal, err := ledger.Post(ctx, generic.PostRequest{
      WorkerID:    "w-1",
      Hours:       decimal.NewFromInt(2),
      Direction:   generic.Debit,
      Description: "shortfall on 2026-03-02",
  })

SEE ALSO:
  - ledger.go: Posting, reversal and self-healing reads
  - store.go: Persistence contract
*/
package generic

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type TransactionID string

// =============================================================================
// TRANSACTION - Atomic change to an hours bank
// =============================================================================

type TransactionType string

const (
	TxExtra     TransactionType = "extra"     // Credit: worked more than scheduled, or manual credit
	TxDeduction TransactionType = "deduction" // Debit: shortfall, absence, or manual debit
	TxReversal  TransactionType = "reversal"  // Undo of a previous transaction
)

// Direction selects the sign of a posting.
type Direction string

const (
	Credit Direction = "credit"
	Debit  Direction = "debit"
)

// Valid reports whether d is a known direction.
func (d Direction) Valid() bool { return d == Credit || d == Debit }

// Transaction is one immutable entry in a worker's hours bank.
// Hours are signed: positive credits the bank, negative debits it.
// Value is Hours times the worker's hourly rate at posting time and is
// never re-priced afterwards.
type Transaction struct {
	ID             TransactionID
	WorkerID       WorkerID
	Date           TimePoint
	Type           TransactionType
	Hours          decimal.Decimal
	Value          decimal.Decimal
	Description    string
	ReferenceID    string // reversed transaction, admin entry, or reconciliation key
	IdempotencyKey string
	CreatedAt      time.Time
}

// =============================================================================
// ACCOUNT - Cached balance plus history
// =============================================================================

// Balance is the pair of running totals kept for every account.
type Balance struct {
	Hours decimal.Decimal
	Value decimal.Decimal
}

// Account is the hours bank of one worker.
//
// INVARIANT: Hours and Value equal the fold-sum of History.
type Account struct {
	WorkerID WorkerID
	Hours    decimal.Decimal
	Value    decimal.Decimal
	History  []Transaction
}

// Balance returns the cached totals.
func (a Account) Balance() Balance { return Balance{Hours: a.Hours, Value: a.Value} }

// Sum folds the history into a fresh balance.
func (a Account) Sum() Balance {
	sum := Balance{Hours: decimal.Zero, Value: decimal.Zero}
	for _, tx := range a.History {
		sum.Hours = sum.Hours.Add(tx.Hours)
		sum.Value = sum.Value.Add(tx.Value)
	}
	return sum
}

// Find returns the transaction with the given ID.
func (a Account) Find(id TransactionID) (Transaction, bool) {
	for _, tx := range a.History {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// IsReversed reports whether a reversal referencing id exists.
func (a Account) IsReversed(id TransactionID) bool {
	for _, tx := range a.History {
		if tx.Type == TxReversal && tx.ReferenceID == string(id) {
			return true
		}
	}
	return false
}
