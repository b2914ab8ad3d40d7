package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// WORKER STORE
// =============================================================================

const workerColumns = "id, name, role_id, hourly_rate, active, pin, created_at"

// SaveWorker inserts or updates a worker.
func (s *Store) SaveWorker(ctx context.Context, w attendance.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workers (`+workerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role_id = excluded.role_id,
			hourly_rate = excluded.hourly_rate,
			active = excluded.active,
			pin = excluded.pin
	`, w.ID, w.Name, w.RoleID, w.HourlyRate, w.Active, w.PIN, formatTime(w.CreatedAt))
	if err != nil {
		if isUniqueConstraintError(err) {
			return attendance.ErrDuplicatePIN
		}
		return fmt.Errorf("failed to save worker: %w", err)
	}
	return nil
}

// GetWorker returns generic.ErrEntityNotFound for unknown IDs.
func (s *Store) GetWorker(ctx context.Context, id generic.WorkerID) (attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryWorker(ctx, "SELECT "+workerColumns+" FROM workers WHERE id = ?", id)
}

// WorkerByPIN looks a worker up by kiosk PIN.
func (s *Store) WorkerByPIN(ctx context.Context, pin string) (attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryWorker(ctx, "SELECT "+workerColumns+" FROM workers WHERE pin = ?", pin)
}

func (s *Store) queryWorker(ctx context.Context, query string, args ...any) (attendance.Worker, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return attendance.Worker{}, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return attendance.Worker{}, err
		}
		return attendance.Worker{}, generic.ErrEntityNotFound
	}
	return scanWorker(rows)
}

// ListWorkers returns every worker ordered by name.
func (s *Store) ListWorkers(ctx context.Context) ([]attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+workerColumns+" FROM workers ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	defer rows.Close()

	var workers []attendance.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func scanWorker(rows *sql.Rows) (attendance.Worker, error) {
	var (
		w         attendance.Worker
		createdAt string
	)
	if err := rows.Scan(&w.ID, &w.Name, &w.RoleID, &w.HourlyRate, &w.Active, &w.PIN, &createdAt); err != nil {
		return w, fmt.Errorf("failed to scan worker: %w", err)
	}
	var err error
	w.CreatedAt, err = parseTime(createdAt)
	return w, err
}

// =============================================================================
// SCHEDULE STORE
// =============================================================================

// GetSchedule returns nil when the worker has no rows.
func (s *Store) GetSchedule(ctx context.Context, id generic.WorkerID) ([]attendance.ReferenceShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT weekday, start_time, end_time, break_time
		FROM schedules WHERE worker_id = ? ORDER BY weekday
	`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query schedule: %w", err)
	}
	defer rows.Close()

	var shifts []attendance.ReferenceShift
	for rows.Next() {
		var (
			sh      attendance.ReferenceShift
			weekday int
		)
		if err := rows.Scan(&weekday, &sh.Start, &sh.End, &sh.Break); err != nil {
			return nil, fmt.Errorf("failed to scan shift: %w", err)
		}
		sh.Weekday = time.Weekday(weekday)
		shifts = append(shifts, sh)
	}
	return shifts, rows.Err()
}

// SaveSchedule replaces the worker's schedule atomically.
func (s *Store) SaveSchedule(ctx context.Context, id generic.WorkerID, shifts []attendance.ReferenceShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, "DELETE FROM schedules WHERE worker_id = ?", id); err != nil {
		return fmt.Errorf("failed to clear schedule: %w", err)
	}
	for _, sh := range shifts {
		_, err := sqlTx.ExecContext(ctx, `
			INSERT INTO schedules (worker_id, weekday, start_time, end_time, break_time)
			VALUES (?, ?, ?, ?, ?)
		`, id, int(sh.Weekday), sh.Start, sh.End, sh.Break)
		if err != nil {
			return foreignKeyErr(err, "schedule")
		}
	}
	return sqlTx.Commit()
}

// =============================================================================
// PUNCH STORE
// =============================================================================

func (s *Store) AppendPunch(ctx context.Context, p attendance.Punch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO punches (id, worker_id, date, time, punch_type, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, p.ID, p.WorkerID, p.Date.String(), p.Time, p.Type, formatTime(p.Timestamp))
	if err != nil {
		return foreignKeyErr(err, "punch")
	}
	return nil
}

// PunchesInRange returns punches with from <= date <= to in recording order.
func (s *Store) PunchesInRange(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]attendance.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, worker_id, date, time, punch_type, recorded_at
		FROM punches
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY recorded_at ASC, rowid ASC
	`, id, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query punches: %w", err)
	}
	defer rows.Close()

	var punches []attendance.Punch
	for rows.Next() {
		var (
			p          attendance.Punch
			date, recd string
		)
		if err := rows.Scan(&p.ID, &p.WorkerID, &date, &p.Time, &p.Type, &recd); err != nil {
			return nil, fmt.Errorf("failed to scan punch: %w", err)
		}
		if p.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		if p.Timestamp, err = parseTime(recd); err != nil {
			return nil, err
		}
		punches = append(punches, p)
	}
	return punches, rows.Err()
}

// =============================================================================
// ADMIN ENTRY STORE
// =============================================================================

const adminEntryColumns = "id, worker_id, date, entry_type, hours, notes, transaction_id, created_at"

// SaveAdminEntry inserts or updates an entry.
func (s *Store) SaveAdminEntry(ctx context.Context, e attendance.AdminEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO admin_entries (`+adminEntryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			hours = excluded.hours,
			notes = excluded.notes,
			transaction_id = excluded.transaction_id
	`, e.ID, e.WorkerID, e.Date.String(), e.Type, e.Hours, e.Notes, e.TransactionID, formatTime(e.CreatedAt))
	if err != nil {
		return foreignKeyErr(err, "administrative entry")
	}
	return nil
}

func (s *Store) GetAdminEntry(ctx context.Context, id string) (attendance.AdminEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := s.queryAdminEntries(ctx, "SELECT "+adminEntryColumns+" FROM admin_entries WHERE id = ?", id)
	if err != nil {
		return attendance.AdminEntry{}, err
	}
	if len(entries) == 0 {
		return attendance.AdminEntry{}, attendance.ErrAdminEntryNotFound
	}
	return entries[0], nil
}

func (s *Store) DeleteAdminEntry(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM admin_entries WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete administrative entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return attendance.ErrAdminEntryNotFound
	}
	return nil
}

func (s *Store) AdminEntriesInRange(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]attendance.AdminEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryAdminEntries(ctx, `
		SELECT `+adminEntryColumns+`
		FROM admin_entries
		WHERE worker_id = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, created_at ASC
	`, id, from.String(), to.String())
}

func (s *Store) queryAdminEntries(ctx context.Context, query string, args ...any) ([]attendance.AdminEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query administrative entries: %w", err)
	}
	defer rows.Close()

	var entries []attendance.AdminEntry
	for rows.Next() {
		var (
			e               attendance.AdminEntry
			date, createdAt string
		)
		if err := rows.Scan(&e.ID, &e.WorkerID, &date, &e.Type, &e.Hours, &e.Notes, &e.TransactionID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan administrative entry: %w", err)
		}
		if e.Date, err = generic.ParseDate(date); err != nil {
			return nil, err
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// MARKER STORE
// =============================================================================

func (s *Store) GetMarker(ctx context.Context, id generic.WorkerID, date generic.TimePoint) (attendance.Marker, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m := attendance.Marker{WorkerID: id, Date: date}
	var updatedAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT delta, updated_at FROM reconciliation_markers WHERE worker_id = ? AND date = ?",
		id, date.String(),
	).Scan(&m.Delta, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.Marker{}, false, nil
	}
	if err != nil {
		return attendance.Marker{}, false, fmt.Errorf("failed to load marker: %w", err)
	}
	m.UpdatedAt, err = parseTime(updatedAt)
	return m, err == nil, err
}

func (s *Store) SaveMarker(ctx context.Context, m attendance.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO reconciliation_markers (worker_id, date, delta, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(worker_id, date) DO UPDATE SET
			delta = excluded.delta,
			updated_at = excluded.updated_at
	`, m.WorkerID, m.Date.String(), m.Delta, formatTime(m.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to save marker: %w", err)
	}
	return nil
}

// =============================================================================
// REPORT STORE
// =============================================================================

const reportColumns = `id, worker_id, year, month, total_reference, total_worked,
	justified_absence, vacation, training, unjustified_absence,
	hours_bank, bank_value, deduction_value, generated_at`

// ReplaceReport drops the existing report for the month and inserts r.
func (s *Store) ReplaceReport(ctx context.Context, r attendance.MonthlyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx,
		"DELETE FROM monthly_reports WHERE worker_id = ? AND year = ? AND month = ?",
		r.WorkerID, r.Year, int(r.Month),
	); err != nil {
		return fmt.Errorf("failed to drop previous report: %w", err)
	}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO monthly_reports (`+reportColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ID, r.WorkerID, r.Year, int(r.Month),
		r.TotalReference, r.TotalWorked,
		r.JustifiedAbsence, r.Vacation, r.Training, r.UnjustifiedAbsence,
		r.HoursBank, r.BankValue, r.DeductionValue,
		formatTime(r.GeneratedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}
	return sqlTx.Commit()
}

func (s *Store) GetReport(ctx context.Context, id generic.WorkerID, year int, month time.Month) (attendance.MonthlyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	reports, err := s.queryReports(ctx,
		"SELECT "+reportColumns+" FROM monthly_reports WHERE worker_id = ? AND year = ? AND month = ?",
		id, year, int(month))
	if err != nil {
		return attendance.MonthlyReport{}, err
	}
	if len(reports) == 0 {
		return attendance.MonthlyReport{}, attendance.ErrReportNotFound
	}
	return reports[0], nil
}

func (s *Store) ListReports(ctx context.Context, id generic.WorkerID) ([]attendance.MonthlyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryReports(ctx,
		"SELECT "+reportColumns+" FROM monthly_reports WHERE worker_id = ? ORDER BY year DESC, month DESC",
		id)
}

func (s *Store) queryReports(ctx context.Context, query string, args ...any) ([]attendance.MonthlyReport, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	var reports []attendance.MonthlyReport
	for rows.Next() {
		var (
			r           attendance.MonthlyReport
			month       int
			generatedAt string
		)
		err := rows.Scan(&r.ID, &r.WorkerID, &r.Year, &month,
			&r.TotalReference, &r.TotalWorked,
			&r.JustifiedAbsence, &r.Vacation, &r.Training, &r.UnjustifiedAbsence,
			&r.HoursBank, &r.BankValue, &r.DeductionValue, &generatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		r.Month = time.Month(month)
		if r.GeneratedAt, err = parseTime(generatedAt); err != nil {
			return nil, err
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}
