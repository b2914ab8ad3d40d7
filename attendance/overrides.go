package attendance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/generic"
)

// AdminEntryRequest is the validated input for a new administrative entry.
type AdminEntryRequest struct {
	WorkerID generic.WorkerID
	Date     generic.TimePoint
	Type     AdminEntryType
	Hours    decimal.Decimal
	Notes    string
}

// Validate rejects input before it can reach the ledger.
func (r AdminEntryRequest) Validate() error {
	if r.Date.IsZero() {
		return generic.Invalid("date", "required")
	}
	if !r.Type.Valid() {
		return generic.Invalid("type", "unknown administrative type %q", r.Type)
	}
	if !r.Hours.IsPositive() {
		return generic.Invalid("hours", "must be positive, got %s", r.Hours)
	}
	if r.Hours.GreaterThan(decimal.NewFromInt(24)) {
		return generic.Invalid("hours", "%s exceeds a calendar day", r.Hours)
	}
	return nil
}

// OverrideRegistry owns administrative entries. Any entry on a
// (worker, date) vetoes automatic reconciliation for that day.
//
// Entries whose type is in the debit set also debit their hours from the
// hours bank; deleting such an entry reverses that debit.
type OverrideRegistry struct {
	store      AdminEntryStore
	workers    WorkerStore
	ledger     *generic.Ledger
	debitTypes map[AdminEntryType]bool
	clock      generic.Clock
	logger     *zap.Logger
}

func NewOverrideRegistry(store AdminEntryStore, workers WorkerStore, ledger *generic.Ledger, debitTypes []AdminEntryType, clock generic.Clock, logger *zap.Logger) *OverrideRegistry {
	set := make(map[AdminEntryType]bool, len(debitTypes))
	for _, t := range debitTypes {
		set[t] = true
	}
	return &OverrideRegistry{
		store:      store,
		workers:    workers,
		ledger:     ledger,
		debitTypes: set,
		clock:      clock,
		logger:     logger,
	}
}

// EntriesFor returns the entries recorded for one worker on one day.
func (r *OverrideRegistry) EntriesFor(ctx context.Context, id generic.WorkerID, date generic.TimePoint) ([]AdminEntry, error) {
	return r.store.AdminEntriesInRange(ctx, id, date, date)
}

// EntriesInRange returns a worker's entries in [from, to].
func (r *OverrideRegistry) EntriesInRange(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]AdminEntry, error) {
	return r.store.AdminEntriesInRange(ctx, id, from, to)
}

// Add records an entry for one worker.
func (r *OverrideRegistry) Add(ctx context.Context, req AdminEntryRequest) (AdminEntry, error) {
	if req.WorkerID == "" {
		return AdminEntry{}, generic.Invalid("worker_id", "required")
	}
	if err := req.Validate(); err != nil {
		return AdminEntry{}, err
	}
	if _, err := r.workers.GetWorker(ctx, req.WorkerID); err != nil {
		return AdminEntry{}, err
	}
	return r.add(ctx, req)
}

// AddForAllActive records the same entry for every active worker.
func (r *OverrideRegistry) AddForAllActive(ctx context.Context, req AdminEntryRequest) ([]AdminEntry, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	workers, err := r.workers.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}

	var entries []AdminEntry
	for _, w := range workers {
		if !w.Active {
			continue
		}
		one := req
		one.WorkerID = w.ID
		if one.Notes == "" {
			one.Notes = "Applied to all workers"
		}
		e, err := r.add(ctx, one)
		if err != nil {
			return entries, fmt.Errorf("worker %s: %w", w.ID, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *OverrideRegistry) add(ctx context.Context, req AdminEntryRequest) (AdminEntry, error) {
	entry := AdminEntry{
		ID:        uuid.NewString(),
		WorkerID:  req.WorkerID,
		Date:      req.Date,
		Type:      req.Type,
		Hours:     req.Hours,
		Notes:     req.Notes,
		CreatedAt: r.clock.Now(),
	}
	if err := r.store.SaveAdminEntry(ctx, entry); err != nil {
		return AdminEntry{}, err
	}
	if !r.debitTypes[entry.Type] {
		return entry, nil
	}

	tx, _, err := r.ledger.Post(ctx, generic.PostRequest{
		WorkerID:    entry.WorkerID,
		Date:        entry.Date,
		Hours:       entry.Hours,
		Direction:   generic.Debit,
		Description: fmt.Sprintf("Administrative entry: %s", entry.Type),
		ReferenceID: entry.ID,
	})
	if err != nil {
		if delErr := r.store.DeleteAdminEntry(ctx, entry.ID); delErr != nil {
			r.logger.Error("rollback of administrative entry failed",
				zap.String("entry_id", entry.ID), zap.Error(delErr))
		}
		return AdminEntry{}, err
	}

	entry.TransactionID = tx.ID
	if err := r.store.SaveAdminEntry(ctx, entry); err != nil {
		return AdminEntry{}, err
	}
	return entry, nil
}

// Delete removes an entry and reverses the debit it caused.
func (r *OverrideRegistry) Delete(ctx context.Context, entryID string) (AdminEntry, error) {
	entry, err := r.store.GetAdminEntry(ctx, entryID)
	if err != nil {
		return AdminEntry{}, err
	}

	if entry.TransactionID != "" {
		_, _, err := r.ledger.Reverse(ctx, entry.WorkerID, entry.TransactionID,
			fmt.Sprintf("Reversal of administrative entry: %s", entry.Type))
		switch {
		case errors.Is(err, generic.ErrAlreadyReversed):
			r.logger.Warn("administrative debit already reversed",
				zap.String("entry_id", entry.ID),
				zap.String("transaction_id", string(entry.TransactionID)))
		case err != nil:
			return AdminEntry{}, err
		}
	}

	if err := r.store.DeleteAdminEntry(ctx, entryID); err != nil {
		return AdminEntry{}, err
	}
	return entry, nil
}
