/*
ledger.go - Append-only hours bank with a self-healing cached balance

PURPOSE:
  The Ledger is the only writer of hours-bank accounts. Every credit,
  debit and reversal is appended to the worker's history, and the cached
  (hours, value) pair is refolded from that history on every write AND on
  every read.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. CONSISTENT: Account.Hours == sum(History.Hours), same for Value.
  3. SERIAL: Postings for one worker never interleave (per-worker mutex).
  4. IDEMPOTENT: Same idempotency key = same transaction (no duplicates)

CORRECTIONS:
  A mistake is never edited. Reverse() appends a transaction with negated
  hours and value; both stay in the history.

EXAMPLE FLOW:
  1. Worker stays 1.5h late:         TxExtra     +1.5h
  2. Worker leaves 2h early:         TxDeduction -2.0h
  3. Absence entry deleted by admin: TxReversal  +2.0h

  History [+1.5, -2.0, +2.0] = +1.5h
*/
package generic

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultDriftTolerance is the largest cache/history disagreement left alone.
var DefaultDriftTolerance = decimal.RequireFromString("0.01")

// PostRequest describes one posting. Hours is a positive magnitude; the
// sign comes from Direction.
type PostRequest struct {
	WorkerID       WorkerID
	Date           TimePoint // zero = today on the ledger clock
	Hours          decimal.Decimal
	Direction      Direction
	Description    string
	ReferenceID    string
	IdempotencyKey string
}

// Ledger posts to and reads from hours-bank accounts.
type Ledger struct {
	store     AccountStore
	rates     RateSource
	clock     Clock
	logger    *zap.Logger
	tolerance decimal.Decimal
	locks     *KeyedMutex

	// OnDrift, when set, is told about every corrected drift.
	OnDrift func(ctx context.Context, drift *DriftError)
}

func NewLedger(store AccountStore, rates RateSource, clock Clock, logger *zap.Logger) *Ledger {
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		store:     store,
		rates:     rates,
		clock:     clock,
		logger:    logger,
		tolerance: DefaultDriftTolerance,
		locks:     NewKeyedMutex(),
	}
}

// SetDriftTolerance overrides DefaultDriftTolerance.
func (l *Ledger) SetDriftTolerance(tol decimal.Decimal) { l.tolerance = tol }

func (l *Ledger) DriftTolerance() decimal.Decimal { return l.tolerance }

// Post appends a credit or debit priced at the worker's current hourly rate
// and returns the transaction with the new balance.
func (l *Ledger) Post(ctx context.Context, req PostRequest) (Transaction, Balance, error) {
	if req.WorkerID == "" {
		return Transaction{}, Balance{}, Invalid("worker_id", "required")
	}
	if !req.Direction.Valid() {
		return Transaction{}, Balance{}, Invalid("direction", "must be credit or debit, got %q", req.Direction)
	}
	if !req.Hours.IsPositive() {
		return Transaction{}, Balance{}, Invalid("hours", "must be positive, got %s", req.Hours)
	}

	unlock := l.locks.Lock(string(req.WorkerID))
	defer unlock()

	if req.IdempotencyKey != "" {
		exists, err := l.store.IdempotencyKeyExists(ctx, req.IdempotencyKey)
		if err != nil {
			return Transaction{}, Balance{}, err
		}
		if exists {
			return Transaction{}, Balance{}, ErrDuplicateIdempotencyKey
		}
	}

	rate, err := l.rates.HourlyRate(ctx, req.WorkerID)
	if err != nil {
		return Transaction{}, Balance{}, err
	}

	signed, txType := req.Hours, TxExtra
	if req.Direction == Debit {
		signed, txType = req.Hours.Neg(), TxDeduction
	}

	date := req.Date
	if date.IsZero() {
		date = DayOf(l.clock.Now())
	}

	tx := Transaction{
		ID:             TransactionID(uuid.NewString()),
		WorkerID:       req.WorkerID,
		Date:           date,
		Type:           txType,
		Hours:          signed,
		Value:          signed.Mul(rate),
		Description:    req.Description,
		ReferenceID:    req.ReferenceID,
		IdempotencyKey: req.IdempotencyKey,
		CreatedAt:      l.clock.Now(),
	}

	bal, err := l.appendLocked(ctx, tx)
	if err != nil {
		return Transaction{}, Balance{}, err
	}

	l.logger.Info("hours bank posting",
		zap.String("worker_id", string(req.WorkerID)),
		zap.String("type", string(txType)),
		zap.String("hours", signed.StringFixed(2)),
		zap.String("balance", bal.Hours.StringFixed(2)),
	)
	return tx, bal, nil
}

// Reverse appends a transaction that cancels id. Hours and value are the
// exact negation of the original; the reversal is not re-priced.
func (l *Ledger) Reverse(ctx context.Context, workerID WorkerID, id TransactionID, description string) (Transaction, Balance, error) {
	unlock := l.locks.Lock(string(workerID))
	defer unlock()

	acct, err := l.store.LoadAccount(ctx, workerID)
	if err != nil {
		return Transaction{}, Balance{}, err
	}

	orig, ok := acct.Find(id)
	if !ok {
		return Transaction{}, Balance{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	if orig.Type == TxReversal {
		return Transaction{}, Balance{}, Invalid("transaction_id", "%s is itself a reversal", id)
	}
	if acct.IsReversed(id) {
		return Transaction{}, Balance{}, fmt.Errorf("%w: %s", ErrAlreadyReversed, id)
	}

	if description == "" {
		description = "Reversal: " + orig.Description
	}

	tx := Transaction{
		ID:          TransactionID(uuid.NewString()),
		WorkerID:    workerID,
		Date:        DayOf(l.clock.Now()),
		Type:        TxReversal,
		Hours:       orig.Hours.Neg(),
		Value:       orig.Value.Neg(),
		Description: description,
		ReferenceID: string(orig.ID),
		CreatedAt:   l.clock.Now(),
	}

	bal, err := l.appendLocked(ctx, tx)
	if err != nil {
		return Transaction{}, Balance{}, err
	}
	return tx, bal, nil
}

// BalanceOf returns the account after checking its cache against history.
// A drift beyond tolerance is corrected and persisted before returning.
func (l *Ledger) BalanceOf(ctx context.Context, workerID WorkerID) (Account, error) {
	unlock := l.locks.Lock(string(workerID))
	defer unlock()

	acct, err := l.store.LoadAccount(ctx, workerID)
	if err != nil {
		return Account{}, err
	}

	if drift := l.reconcileCache(ctx, &acct); drift != nil {
		if err := l.store.SaveBalance(ctx, workerID, acct.Balance()); err != nil {
			return Account{}, fmt.Errorf("persist corrected balance: %w", err)
		}
	}
	return acct, nil
}

// appendLocked refolds the history including tx and persists both.
// Caller holds the worker lock.
func (l *Ledger) appendLocked(ctx context.Context, tx Transaction) (Balance, error) {
	acct, err := l.store.LoadAccount(ctx, tx.WorkerID)
	if err != nil {
		return Balance{}, err
	}
	acct.WorkerID = tx.WorkerID
	acct.History = append(acct.History, tx)
	// Incremental totals; reconcileCache replaces them with the refold.
	acct.Hours = acct.Hours.Add(tx.Hours)
	acct.Value = acct.Value.Add(tx.Value)
	l.reconcileCache(ctx, &acct)

	if err := l.store.AppendTransaction(ctx, tx, acct.Balance()); err != nil {
		return Balance{}, err
	}
	return acct.Balance(), nil
}

// reconcileCache is the single place the balance invariant is enforced:
// it always sets the cache to the fold-sum of history and reports a drift
// when the previous cache disagreed by more than the tolerance.
func (l *Ledger) reconcileCache(ctx context.Context, acct *Account) *DriftError {
	computed := acct.Sum()
	cached := acct.Balance()
	acct.Hours, acct.Value = computed.Hours, computed.Value

	if cached.Hours.Sub(computed.Hours).Abs().LessThanOrEqual(l.tolerance) &&
		cached.Value.Sub(computed.Value).Abs().LessThanOrEqual(l.tolerance) {
		return nil
	}

	drift := &DriftError{WorkerID: acct.WorkerID, Cached: cached, Computed: computed}
	l.logger.Warn("hours bank cache corrected",
		zap.String("worker_id", string(acct.WorkerID)),
		zap.String("cached_hours", cached.Hours.StringFixed(2)),
		zap.String("history_hours", computed.Hours.StringFixed(2)),
		zap.Error(drift),
	)
	if l.OnDrift != nil {
		l.OnDrift(ctx, drift)
	}
	return drift
}
