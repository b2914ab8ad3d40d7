// Package memory provides an in-process attendance.Repository for tests,
// demos and single-node setups that persist through a JSON snapshot.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Store struct {
	mu          sync.RWMutex
	workers     map[generic.WorkerID]attendance.Worker
	schedules   map[generic.WorkerID][]attendance.ReferenceShift
	punches     map[generic.WorkerID][]attendance.Punch
	entries     map[string]attendance.AdminEntry
	accounts    map[generic.WorkerID]generic.Account
	idempotency map[string]bool
	markers     map[markerKey]attendance.Marker
	reports     map[reportKey]attendance.MonthlyReport
}

type markerKey struct {
	WorkerID generic.WorkerID
	Date     string
}

type reportKey struct {
	WorkerID generic.WorkerID
	Year     int
	Month    time.Month
}

var _ attendance.Repository = (*Store)(nil)

func New() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.workers = make(map[generic.WorkerID]attendance.Worker)
	s.schedules = make(map[generic.WorkerID][]attendance.ReferenceShift)
	s.resetTransactional()
}

func (s *Store) resetTransactional() {
	s.punches = make(map[generic.WorkerID][]attendance.Punch)
	s.entries = make(map[string]attendance.AdminEntry)
	s.accounts = make(map[generic.WorkerID]generic.Account)
	s.idempotency = make(map[string]bool)
	s.markers = make(map[markerKey]attendance.Marker)
	s.reports = make(map[reportKey]attendance.MonthlyReport)
}

func (s *Store) WipeTransactional(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetTransactional()
	return nil
}

// =============================================================================
// HOURS BANK
// =============================================================================

func (s *Store) LoadAccount(_ context.Context, id generic.WorkerID) (generic.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct := s.accounts[id]
	acct.WorkerID = id
	acct.History = append([]generic.Transaction(nil), acct.History...)
	return acct, nil
}

// AppendTransaction adds a single transaction. Append-only.
func (s *Store) AppendTransaction(_ context.Context, tx generic.Transaction, cache generic.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.IdempotencyKey != "" && s.idempotency[tx.IdempotencyKey] {
		return generic.ErrDuplicateIdempotencyKey
	}
	acct := s.accounts[tx.WorkerID]
	acct.WorkerID = tx.WorkerID
	acct.History = append(acct.History, tx)
	acct.Hours, acct.Value = cache.Hours, cache.Value
	s.accounts[tx.WorkerID] = acct

	if tx.IdempotencyKey != "" {
		s.idempotency[tx.IdempotencyKey] = true
	}
	return nil
}

func (s *Store) SaveBalance(_ context.Context, id generic.WorkerID, cache generic.Balance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[id]
	acct.WorkerID = id
	acct.Hours, acct.Value = cache.Hours, cache.Value
	s.accounts[id] = acct
	return nil
}

func (s *Store) IdempotencyKeyExists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idempotency[key], nil
}

// CorruptBalance overwrites the cached hours without touching history.
// Tests use it to simulate a drifted cache.
func (s *Store) CorruptBalance(_ context.Context, id generic.WorkerID, hours decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.accounts[id]
	acct.WorkerID = id
	acct.Hours = hours
	s.accounts[id] = acct
	return nil
}

// =============================================================================
// WORKERS AND SCHEDULES
// =============================================================================

func (s *Store) SaveWorker(_ context.Context, w attendance.Worker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.workers {
		if other.ID != w.ID && other.PIN == w.PIN && w.PIN != "" {
			return attendance.ErrDuplicatePIN
		}
	}
	s.workers[w.ID] = w
	return nil
}

func (s *Store) GetWorker(_ context.Context, id generic.WorkerID) (attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.workers[id]
	if !ok {
		return attendance.Worker{}, generic.ErrEntityNotFound
	}
	return w, nil
}

func (s *Store) WorkerByPIN(_ context.Context, pin string) (attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, w := range s.workers {
		if w.PIN == pin {
			return w, nil
		}
	}
	return attendance.Worker{}, generic.ErrEntityNotFound
}

func (s *Store) ListWorkers(_ context.Context) ([]attendance.Worker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]attendance.Worker, 0, len(s.workers))
	for _, w := range s.workers {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) GetSchedule(_ context.Context, id generic.WorkerID) ([]attendance.ReferenceShift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	shifts, ok := s.schedules[id]
	if !ok {
		return nil, nil
	}
	return append([]attendance.ReferenceShift(nil), shifts...), nil
}

func (s *Store) SaveSchedule(_ context.Context, id generic.WorkerID, shifts []attendance.ReferenceShift) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[id]; !ok {
		return generic.ErrEntityNotFound
	}
	s.schedules[id] = append([]attendance.ReferenceShift(nil), shifts...)
	return nil
}

// =============================================================================
// PUNCHES
// =============================================================================

func (s *Store) AppendPunch(_ context.Context, p attendance.Punch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[p.WorkerID]; !ok {
		return generic.ErrEntityNotFound
	}
	s.punches[p.WorkerID] = append(s.punches[p.WorkerID], p)
	return nil
}

func (s *Store) PunchesInRange(_ context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]attendance.Punch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.Punch
	for _, p := range s.punches[id] {
		if p.Date.AfterOrEqual(from) && p.Date.BeforeOrEqual(to) {
			out = append(out, p)
		}
	}
	return out, nil
}

// =============================================================================
// ADMINISTRATIVE ENTRIES
// =============================================================================

func (s *Store) SaveAdminEntry(_ context.Context, e attendance.AdminEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.workers[e.WorkerID]; !ok {
		return generic.ErrEntityNotFound
	}
	s.entries[e.ID] = e
	return nil
}

func (s *Store) GetAdminEntry(_ context.Context, id string) (attendance.AdminEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return attendance.AdminEntry{}, attendance.ErrAdminEntryNotFound
	}
	return e, nil
}

func (s *Store) DeleteAdminEntry(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[id]; !ok {
		return attendance.ErrAdminEntryNotFound
	}
	delete(s.entries, id)
	return nil
}

func (s *Store) AdminEntriesInRange(_ context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]attendance.AdminEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.AdminEntry
	for _, e := range s.entries {
		if e.WorkerID == id && e.Date.AfterOrEqual(from) && e.Date.BeforeOrEqual(to) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// =============================================================================
// MARKERS AND REPORTS
// =============================================================================

func (s *Store) GetMarker(_ context.Context, id generic.WorkerID, date generic.TimePoint) (attendance.Marker, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.markers[markerKey{WorkerID: id, Date: date.String()}]
	return m, ok, nil
}

func (s *Store) SaveMarker(_ context.Context, m attendance.Marker) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers[markerKey{WorkerID: m.WorkerID, Date: m.Date.String()}] = m
	return nil
}

func (s *Store) ReplaceReport(_ context.Context, r attendance.MonthlyReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reports[reportKey{WorkerID: r.WorkerID, Year: r.Year, Month: r.Month}] = r
	return nil
}

func (s *Store) GetReport(_ context.Context, id generic.WorkerID, year int, month time.Month) (attendance.MonthlyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportKey{WorkerID: id, Year: year, Month: month}]
	if !ok {
		return attendance.MonthlyReport{}, attendance.ErrReportNotFound
	}
	return r, nil
}

func (s *Store) ListReports(_ context.Context, id generic.WorkerID) ([]attendance.MonthlyReport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []attendance.MonthlyReport
	for k, r := range s.reports {
		if k.WorkerID == id {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return out[i].Month > out[j].Month
	})
	return out, nil
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is the whole store as one JSON document.
type Snapshot struct {
	Workers   []attendance.Worker                              `json:"workers"`
	Schedules map[generic.WorkerID][]attendance.ReferenceShift `json:"schedules"`
	Punches   []attendance.Punch                               `json:"punches"`
	Entries   []attendance.AdminEntry                          `json:"admin_entries"`
	Accounts  []generic.Account                                `json:"accounts"`
	Markers   []attendance.Marker                              `json:"markers"`
	Reports   []attendance.MonthlyReport                       `json:"reports"`
}

// Snapshot copies the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{Schedules: make(map[generic.WorkerID][]attendance.ReferenceShift, len(s.schedules))}
	for _, w := range s.workers {
		snap.Workers = append(snap.Workers, w)
	}
	for id, shifts := range s.schedules {
		snap.Schedules[id] = append([]attendance.ReferenceShift(nil), shifts...)
	}
	for _, ps := range s.punches {
		snap.Punches = append(snap.Punches, ps...)
	}
	for _, e := range s.entries {
		snap.Entries = append(snap.Entries, e)
	}
	for _, a := range s.accounts {
		a.History = append([]generic.Transaction(nil), a.History...)
		snap.Accounts = append(snap.Accounts, a)
	}
	for _, m := range s.markers {
		snap.Markers = append(snap.Markers, m)
	}
	for _, r := range s.reports {
		snap.Reports = append(snap.Reports, r)
	}
	return snap
}

// Restore replaces the current state with snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reset()
	for _, w := range snap.Workers {
		s.workers[w.ID] = w
	}
	for id, shifts := range snap.Schedules {
		s.schedules[id] = append([]attendance.ReferenceShift(nil), shifts...)
	}
	for _, p := range snap.Punches {
		s.punches[p.WorkerID] = append(s.punches[p.WorkerID], p)
	}
	for _, e := range snap.Entries {
		s.entries[e.ID] = e
	}
	for _, a := range snap.Accounts {
		s.accounts[a.WorkerID] = a
		for _, tx := range a.History {
			if tx.IdempotencyKey != "" {
				s.idempotency[tx.IdempotencyKey] = true
			}
		}
	}
	for _, m := range snap.Markers {
		s.markers[markerKey{WorkerID: m.WorkerID, Date: m.Date.String()}] = m
	}
	for _, r := range snap.Reports {
		s.reports[reportKey{WorkerID: r.WorkerID, Year: r.Year, Month: r.Month}] = r
	}
}

// SaveAll writes the snapshot to path, replacing it atomically.
func (s *Store) SaveAll(path string) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadAll reads a snapshot written by SaveAll. A missing file leaves the
// store empty.
func (s *Store) LoadAll(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode snapshot: %w", err)
	}
	s.Restore(snap)
	return nil
}
