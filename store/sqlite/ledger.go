package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// HOURS BANK (generic.AccountStore interface)
// =============================================================================

// LoadAccount returns the cached balance and the full history, oldest first.
func (s *Store) LoadAccount(ctx context.Context, workerID generic.WorkerID) (generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct := generic.Account{WorkerID: workerID}
	err := s.db.QueryRowContext(ctx,
		"SELECT hours, value FROM hours_bank_accounts WHERE worker_id = ?", workerID,
	).Scan(&acct.Hours, &acct.Value)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return generic.Account{}, fmt.Errorf("failed to load account: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, date, tx_type, hours, value, description,
		       reference_id, idempotency_key, created_at
		FROM hours_bank_transactions
		WHERE worker_id = ?
		ORDER BY seq ASC
	`, workerID)
	if err != nil {
		return generic.Account{}, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return generic.Account{}, err
		}
		acct.History = append(acct.History, tx)
	}
	return acct, rows.Err()
}

func scanTransaction(rows *sql.Rows) (generic.Transaction, error) {
	var (
		tx        generic.Transaction
		date      string
		key       sql.NullString
		createdAt string
	)
	err := rows.Scan(&tx.ID, &tx.WorkerID, &date, &tx.Type, &tx.Hours, &tx.Value,
		&tx.Description, &tx.ReferenceID, &key, &createdAt)
	if err != nil {
		return tx, fmt.Errorf("failed to scan transaction: %w", err)
	}
	if tx.Date, err = generic.ParseDate(date); err != nil {
		return tx, err
	}
	if tx.CreatedAt, err = parseTime(createdAt); err != nil {
		return tx, err
	}
	tx.IdempotencyKey = key.String
	return tx, nil
}

// AppendTransaction inserts tx and upserts the cached balance in one
// database transaction.
func (s *Store) AppendTransaction(ctx context.Context, tx generic.Transaction, cache generic.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO hours_bank_transactions
		(id, worker_id, date, tx_type, hours, value, description, reference_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		tx.ID,
		tx.WorkerID,
		tx.Date.String(),
		tx.Type,
		tx.Hours,
		tx.Value,
		tx.Description,
		tx.ReferenceID,
		nullString(tx.IdempotencyKey),
		formatTime(tx.CreatedAt),
	)
	if err != nil {
		if isIdempotencyKeyError(err) {
			return generic.ErrDuplicateIdempotencyKey
		}
		return fmt.Errorf("failed to append transaction: %w", err)
	}

	if err := upsertBalance(ctx, sqlTx, tx.WorkerID, cache); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// SaveBalance rewrites the cache only.
func (s *Store) SaveBalance(ctx context.Context, workerID generic.WorkerID, cache generic.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBalance(ctx, s.db, workerID, cache)
}

func upsertBalance(ctx context.Context, db execer, workerID generic.WorkerID, cache generic.Balance) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO hours_bank_accounts (worker_id, hours, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id) DO UPDATE SET
			hours = excluded.hours,
			value = excluded.value,
			updated_at = excluded.updated_at
	`, workerID, cache.Hours, cache.Value, formatTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// IdempotencyKeyExists checks whether a transaction used key.
func (s *Store) IdempotencyKeyExists(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM hours_bank_transactions WHERE idempotency_key = ?", key,
	).Scan(&count)
	return count > 0, err
}

// CorruptBalance overwrites the cache with an arbitrary value. It exists so
// that drift handling can be exercised against a real database.
func (s *Store) CorruptBalance(ctx context.Context, workerID generic.WorkerID, hours decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return upsertBalance(ctx, s.db, workerID, generic.Balance{Hours: hours, Value: decimal.Zero})
}
