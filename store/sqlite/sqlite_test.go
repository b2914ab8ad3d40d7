package sqlite_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
	"github.com/warp/hours-bank/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func saveWorker(t *testing.T, store *sqlite.Store, id generic.WorkerID, pin string) attendance.Worker {
	t.Helper()
	w := attendance.Worker{
		ID:         id,
		Name:       "Worker " + string(id),
		HourlyRate: dec("12"),
		Active:     true,
		PIN:        pin,
		CreatedAt:  time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveWorker(context.Background(), w))
	return w
}

func newTx(id string, worker generic.WorkerID, hours string, key string) generic.Transaction {
	h := dec(hours)
	return generic.Transaction{
		ID:             generic.TransactionID(id),
		WorkerID:       worker,
		Date:           generic.MustParseDate("2026-03-02"),
		Type:           generic.TxExtra,
		Hours:          h,
		Value:          h.Mul(dec("12")),
		Description:    "test",
		IdempotencyKey: key,
		CreatedAt:      time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC),
	}
}

// =============================================================================
// SCHEMA
// =============================================================================

func TestNew_AppliesMigrations(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.Ping(ctx))
	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}

// =============================================================================
// WORKERS AND SCHEDULES
// =============================================================================

func TestWorkers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	saved := saveWorker(t, store, "w-1", "1234")

	got, err := store.GetWorker(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, saved.Name, got.Name)
	assert.True(t, got.HourlyRate.Equal(dec("12")))
	assert.True(t, got.Active)
	assert.True(t, saved.CreatedAt.Equal(got.CreatedAt))

	byPIN, err := store.WorkerByPIN(ctx, "1234")
	require.NoError(t, err)
	assert.Equal(t, saved.ID, byPIN.ID)

	_, err = store.GetWorker(ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEntityNotFound)

	got.Active = false
	require.NoError(t, store.SaveWorker(ctx, got))
	updated, err := store.GetWorker(ctx, "w-1")
	require.NoError(t, err)
	assert.False(t, updated.Active)

	err = store.SaveWorker(ctx, attendance.Worker{ID: "w-2", Name: "Bo", PIN: "1234"})
	assert.ErrorIs(t, err, attendance.ErrDuplicatePIN)

	saveWorker(t, store, "w-0", "0000")
	workers, err := store.ListWorkers(ctx)
	require.NoError(t, err)
	require.Len(t, workers, 2)
	assert.Equal(t, generic.WorkerID("w-0"), workers[0].ID)
}

func TestSchedules(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	saveWorker(t, store, "w-1", "1234")

	shifts, err := store.GetSchedule(ctx, "w-1")
	require.NoError(t, err)
	assert.Nil(t, shifts)

	require.NoError(t, store.SaveSchedule(ctx, "w-1", attendance.DefaultSchedule()))
	custom := []attendance.ReferenceShift{{Weekday: time.Wednesday, Start: "10:00", End: "14:00"}}
	require.NoError(t, store.SaveSchedule(ctx, "w-1", custom))

	shifts, err = store.GetSchedule(ctx, "w-1")
	require.NoError(t, err)
	assert.Equal(t, custom, shifts, "save replaces the whole schedule")

	err = store.SaveSchedule(ctx, "ghost", custom)
	assert.ErrorIs(t, err, generic.ErrEntityNotFound)
}

// =============================================================================
// HOURS BANK
// =============================================================================

func TestLedger_AppendAndLoad(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendTransaction(ctx, newTx("t-1", "w-1", "0.1", ""), generic.Balance{Hours: dec("0.1"), Value: dec("1.2")}))
	require.NoError(t, store.AppendTransaction(ctx, newTx("t-2", "w-1", "0.2", "k-1"), generic.Balance{Hours: dec("0.3"), Value: dec("3.6")}))

	acct, err := store.LoadAccount(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, acct.History, 2)
	assert.Equal(t, generic.TransactionID("t-1"), acct.History[0].ID)
	assert.Equal(t, generic.TxExtra, acct.History[0].Type)
	assert.Equal(t, "k-1", acct.History[1].IdempotencyKey)
	assert.Equal(t, "2026-03-02", acct.History[1].Date.String())
	assert.True(t, acct.Hours.Equal(dec("0.3")), "decimals survive storage exactly")
	assert.True(t, acct.Sum().Hours.Equal(acct.Hours))

	exists, err := store.IdempotencyKeyExists(ctx, "k-1")
	require.NoError(t, err)
	assert.True(t, exists)

	err = store.AppendTransaction(ctx, newTx("t-3", "w-1", "1", "k-1"), generic.Balance{})
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)

	acct, err = store.LoadAccount(ctx, "w-1")
	require.NoError(t, err)
	assert.Len(t, acct.History, 2, "failed append leaves no trace")
	assert.True(t, acct.Hours.Equal(dec("0.3")))
}

func TestLedger_EmptyAccount(t *testing.T) {
	store := newStore(t)

	acct, err := store.LoadAccount(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, generic.WorkerID("nobody"), acct.WorkerID)
	assert.Empty(t, acct.History)
	assert.True(t, acct.Hours.IsZero())
}

// =============================================================================
// PUNCHES, ENTRIES, MARKERS, REPORTS
// =============================================================================

func TestPunches(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	saveWorker(t, store, "w-1", "1234")

	for i, day := range []string{"2026-03-01", "2026-03-02", "2026-03-03"} {
		require.NoError(t, store.AppendPunch(ctx, attendance.Punch{
			ID:        "p-" + day,
			WorkerID:  "w-1",
			Date:      generic.MustParseDate(day),
			Time:      "09:00",
			Type:      attendance.PunchIn,
			Timestamp: time.Date(2026, time.March, i+1, 9, 0, 0, 0, time.UTC),
		}))
	}

	punches, err := store.PunchesInRange(ctx, "w-1", generic.MustParseDate("2026-03-02"), generic.MustParseDate("2026-03-03"))
	require.NoError(t, err)
	require.Len(t, punches, 2)
	assert.Equal(t, "2026-03-02", punches[0].Date.String())
	assert.Equal(t, attendance.PunchIn, punches[0].Type)

	err = store.AppendPunch(ctx, attendance.Punch{ID: "p-x", WorkerID: "ghost", Date: generic.MustParseDate("2026-03-02"), Time: "09:00", Type: attendance.PunchIn})
	assert.ErrorIs(t, err, generic.ErrEntityNotFound)
}

func TestAdminEntries(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	saveWorker(t, store, "w-1", "1234")
	entry := attendance.AdminEntry{
		ID:        "e-1",
		WorkerID:  "w-1",
		Date:      generic.MustParseDate("2026-03-02"),
		Type:      attendance.AdminVacation,
		Hours:     dec("7.5"),
		CreatedAt: time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SaveAdminEntry(ctx, entry))

	entry.TransactionID = "t-9"
	require.NoError(t, store.SaveAdminEntry(ctx, entry))

	got, err := store.GetAdminEntry(ctx, "e-1")
	require.NoError(t, err)
	assert.Equal(t, generic.TransactionID("t-9"), got.TransactionID)
	assert.True(t, got.Hours.Equal(dec("7.5")))

	inRange, err := store.AdminEntriesInRange(ctx, "w-1", generic.MustParseDate("2026-03-01"), generic.MustParseDate("2026-03-31"))
	require.NoError(t, err)
	assert.Len(t, inRange, 1)

	require.NoError(t, store.DeleteAdminEntry(ctx, "e-1"))
	assert.ErrorIs(t, store.DeleteAdminEntry(ctx, "e-1"), attendance.ErrAdminEntryNotFound)
	_, err = store.GetAdminEntry(ctx, "e-1")
	assert.ErrorIs(t, err, attendance.ErrAdminEntryNotFound)
}

func TestMarkers(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	day := generic.MustParseDate("2026-03-02")

	_, ok, err := store.GetMarker(ctx, "w-1", day)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SaveMarker(ctx, attendance.Marker{WorkerID: "w-1", Date: day, Delta: dec("2")}))
	require.NoError(t, store.SaveMarker(ctx, attendance.Marker{WorkerID: "w-1", Date: day, Delta: dec("-0.5")}))

	m, ok, err := store.GetMarker(ctx, "w-1", day)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, m.Delta.Equal(dec("-0.5")))
}

func TestReports(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	report := func(id string, month time.Month, bank string) attendance.MonthlyReport {
		return attendance.MonthlyReport{
			ID: id, WorkerID: "w-1", Year: 2026, Month: month,
			HoursBank: dec(bank), GeneratedAt: time.Date(2026, month+1, 1, 0, 0, 0, 0, time.UTC),
		}
	}

	require.NoError(t, store.ReplaceReport(ctx, report("r-1", time.February, "1")))
	require.NoError(t, store.ReplaceReport(ctx, report("r-2", time.March, "2")))
	require.NoError(t, store.ReplaceReport(ctx, report("r-3", time.March, "-3.25")))

	got, err := store.GetReport(ctx, "w-1", 2026, time.March)
	require.NoError(t, err)
	assert.Equal(t, "r-3", got.ID)
	assert.True(t, got.HoursBank.Equal(dec("-3.25")))

	all, err := store.ListReports(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, time.March, all[0].Month)

	_, err = store.GetReport(ctx, "w-1", 2026, time.January)
	assert.ErrorIs(t, err, attendance.ErrReportNotFound)
}

func TestWipeTransactional(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	saveWorker(t, store, "w-1", "1234")
	require.NoError(t, store.SaveSchedule(ctx, "w-1", attendance.DefaultSchedule()))
	require.NoError(t, store.AppendTransaction(ctx, newTx("t-1", "w-1", "1", "k"), generic.Balance{Hours: dec("1"), Value: dec("12")}))

	require.NoError(t, store.WipeTransactional(ctx))

	_, err := store.GetWorker(ctx, "w-1")
	require.NoError(t, err)
	shifts, err := store.GetSchedule(ctx, "w-1")
	require.NoError(t, err)
	assert.Len(t, shifts, 5)

	acct, err := store.LoadAccount(ctx, "w-1")
	require.NoError(t, err)
	assert.Empty(t, acct.History)
	exists, err := store.IdempotencyKeyExists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// ENGINE ON SQLITE
// =============================================================================

func TestEngineEndToEnd(t *testing.T) {
	// GIVEN: A worker at 12/h who worked 5h of a 7h Monday
	// WHEN: The day is reconciled twice and the cache is then corrupted
	// THEN: One -2h/-24 posting exists and reads heal the cache

	store := newStore(t)
	ctx := context.Background()
	clock := generic.NewFixedClock(time.Date(2026, time.March, 2, 19, 0, 0, 0, time.UTC))
	engine := attendance.NewEngine(store, attendance.EngineOptions{Clock: clock, Notifier: attendance.NopNotifier{}})

	_, err := engine.CreateWorker(ctx, attendance.WorkerInput{ID: "w-1", Name: "Ana", HourlyRate: dec("12"), PIN: "1234", Active: true})
	require.NoError(t, err)
	for _, p := range []struct {
		typ  attendance.PunchType
		hour int
	}{{attendance.PunchIn, 9}, {attendance.PunchBreakStart, 13}, {attendance.PunchBreakEnd, 14}, {attendance.PunchOut, 15}} {
		_, err := engine.RegisterPunch(ctx, attendance.PunchRequest{
			WorkerID: "w-1", Type: p.typ, At: time.Date(2026, time.March, 2, p.hour, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}

	day := generic.MustParseDate("2026-03-02")
	out, err := engine.ReconcileDay(ctx, "w-1", day, false)
	require.NoError(t, err)
	require.Equal(t, attendance.StatePosted, out.State)
	out, err = engine.ReconcileDay(ctx, "w-1", day, false)
	require.NoError(t, err)
	assert.Equal(t, attendance.StateAlreadyPosted, out.State)

	acct, err := engine.GetBalance(ctx, "w-1")
	require.NoError(t, err)
	require.Len(t, acct.History, 1)
	assert.True(t, acct.Hours.Equal(dec("-2")))
	assert.True(t, acct.Value.Equal(dec("-24")))

	require.NoError(t, store.CorruptBalance(ctx, "w-1", dec("40")))
	corrected, err := engine.VerifyBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []generic.WorkerID{"w-1"}, corrected)

	stored, err := store.LoadAccount(ctx, "w-1")
	require.NoError(t, err)
	assert.True(t, stored.Hours.Equal(dec("-2")))
	assert.True(t, stored.Value.Equal(dec("-24")))
}
