package attendance_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
	"github.com/warp/hours-bank/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func at(date, hhmm string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", date+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return t
}

type note struct {
	Message  string
	Severity attendance.Severity
}

// recordingNotifier keeps every notification for assertions.
type recordingNotifier struct {
	mu    sync.Mutex
	notes []note
}

func (n *recordingNotifier) Notify(_ context.Context, message string, severity attendance.Severity) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, note{message, severity})
}

func (n *recordingNotifier) with(severity attendance.Severity) []note {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []note
	for _, x := range n.notes {
		if x.Severity == severity {
			out = append(out, x)
		}
	}
	return out
}

type fixture struct {
	ctx      context.Context
	store    *memory.Store
	clock    *generic.FixedClock
	notifier *recordingNotifier
	engine   *attendance.Engine
}

// newFixture starts the clock on Monday 2026-03-02 at 19:00, after the
// default 09:00-17:00 shift has ended.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctx:      context.Background(),
		store:    memory.New(),
		clock:    generic.NewFixedClock(at("2026-03-02", "19:00")),
		notifier: &recordingNotifier{},
	}
	f.engine = attendance.NewEngine(f.store, attendance.EngineOptions{
		Clock:    f.clock,
		Notifier: f.notifier,
	})
	return f
}

func (f *fixture) worker(t *testing.T, id generic.WorkerID, pin string) attendance.Worker {
	t.Helper()
	w, err := f.engine.CreateWorker(f.ctx, attendance.WorkerInput{
		ID:         id,
		Name:       "Worker " + string(id),
		HourlyRate: dec("12"),
		PIN:        pin,
		Active:     true,
	})
	require.NoError(t, err)
	return w
}

func (f *fixture) punch(t *testing.T, id generic.WorkerID, typ attendance.PunchType, date, hhmm string) {
	t.Helper()
	_, err := f.engine.RegisterPunch(f.ctx, attendance.PunchRequest{WorkerID: id, Type: typ, At: at(date, hhmm)})
	require.NoError(t, err)
}

// fiveHourDay punches 09:00-13:00 and 14:00-15:00.
func (f *fixture) fiveHourDay(t *testing.T, id generic.WorkerID, date string) {
	t.Helper()
	f.punch(t, id, attendance.PunchIn, date, "09:00")
	f.punch(t, id, attendance.PunchBreakStart, date, "13:00")
	f.punch(t, id, attendance.PunchBreakEnd, date, "14:00")
	f.punch(t, id, attendance.PunchOut, date, "15:00")
}

func (f *fixture) reconcile(t *testing.T, id generic.WorkerID, date string, force bool) attendance.DayOutcome {
	t.Helper()
	out, err := f.engine.ReconcileDay(f.ctx, id, generic.MustParseDate(date), force)
	require.NoError(t, err)
	return out
}

func (f *fixture) balance(t *testing.T, id generic.WorkerID) generic.Account {
	t.Helper()
	acct, err := f.engine.GetBalance(f.ctx, id)
	require.NoError(t, err)
	return acct
}

// =============================================================================
// DAILY RECONCILIATION
// =============================================================================

func TestReconcileDay_DebitsShortfall(t *testing.T) {
	// GIVEN: A 7h reference day with 5h worked, rate 12/h
	// WHEN: The day is reconciled after the shift ended
	// THEN: 2h worth -24.00 is debited once

	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.fiveHourDay(t, "w-1", "2026-03-02")

	out := f.reconcile(t, "w-1", "2026-03-02", false)

	require.Equal(t, attendance.StatePosted, out.State)
	assert.True(t, out.Reference.Equal(dec("7")))
	assert.True(t, out.Worked.Equal(dec("5")))
	assert.True(t, out.Delta.Equal(dec("2")))
	require.NotNil(t, out.Transaction)
	assert.Equal(t, generic.TxDeduction, out.Transaction.Type)
	assert.True(t, out.Transaction.Hours.Equal(dec("-2")))
	assert.True(t, out.Transaction.Value.Equal(dec("-24")))
	assert.Equal(t, "Automatic update - 2026-03-02: worked 5.0h (scheduled 7.0h)", out.Transaction.Description)
	assert.Equal(t, "reconcile:w-1:2026-03-02", out.Transaction.ReferenceID)

	acct := f.balance(t, "w-1")
	assert.True(t, acct.Hours.Equal(dec("-2")))
	assert.True(t, acct.Value.Equal(dec("-24")))
}

func TestReconcileDay_CreditsOvertime(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.punch(t, "w-1", attendance.PunchIn, "2026-03-02", "08:00")
	f.punch(t, "w-1", attendance.PunchOut, "2026-03-02", "17:00")

	out := f.reconcile(t, "w-1", "2026-03-02", false)

	require.Equal(t, attendance.StatePosted, out.State)
	assert.True(t, out.Transaction.Hours.Equal(dec("2")))
	assert.Equal(t, generic.TxExtra, out.Transaction.Type)
	assert.True(t, strings.Contains(out.Transaction.Description, "overtime 2026-03-02"))
}

func TestReconcileDay_IsIdempotent(t *testing.T) {
	// GIVEN: A day already posted
	// WHEN: The timer, a punch hook and an admin button all re-run it
	// THEN: The bank moves only once

	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.fiveHourDay(t, "w-1", "2026-03-02")
	require.Equal(t, attendance.StatePosted, f.reconcile(t, "w-1", "2026-03-02", false).State)

	for i := 0; i < 3; i++ {
		assert.Equal(t, attendance.StateAlreadyPosted, f.reconcile(t, "w-1", "2026-03-02", i == 2).State)
	}

	acct := f.balance(t, "w-1")
	assert.Len(t, acct.History, 1)
	assert.True(t, acct.Hours.Equal(dec("-2")))
}

func TestReconcileDay_ConcurrentCallsPostOnce(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.fiveHourDay(t, "w-1", "2026-03-02")

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.engine.ReconcileDay(f.ctx, "w-1", generic.MustParseDate("2026-03-02"), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Len(t, f.balance(t, "w-1").History, 1)
}

func TestReconcileDay_RetroactivePunchIsCorrected(t *testing.T) {
	// GIVEN: A day posted with 2h short
	// WHEN: The missing afternoon punches are added later and the day re-runs
	// THEN: Exactly the difference is credited back and the bank is square

	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.fiveHourDay(t, "w-1", "2026-03-02")
	f.reconcile(t, "w-1", "2026-03-02", false)

	f.clock.Set(at("2026-03-03", "10:00"))
	f.punch(t, "w-1", attendance.PunchIn, "2026-03-02", "15:00")
	f.punch(t, "w-1", attendance.PunchOut, "2026-03-02", "17:00")

	out := f.reconcile(t, "w-1", "2026-03-02", false)

	require.Equal(t, attendance.StatePosted, out.State)
	assert.True(t, out.Delta.IsZero())
	assert.True(t, out.Transaction.Hours.Equal(dec("2")))
	assert.True(t, strings.HasPrefix(out.Transaction.Description, "Automatic correction"))

	acct := f.balance(t, "w-1")
	assert.Len(t, acct.History, 2)
	assert.True(t, acct.Hours.IsZero())
	assert.True(t, acct.Value.IsZero())
}

func TestReconcileDay_MaterialityThreshold(t *testing.T) {
	// GIVEN: 0.05h short on Monday, 0.15h short on Tuesday
	// THEN: Monday is balanced, Tuesday is posted

	f := newFixture(t)
	f.clock.Set(at("2026-03-04", "09:00"))
	f.worker(t, "w-1", "1234")
	require.NoError(t, f.engine.SetSchedule(f.ctx, "w-1", []attendance.ReferenceShift{
		{Weekday: time.Monday, Start: "09:00", End: "16:00"},
		{Weekday: time.Tuesday, Start: "09:00", End: "16:00"},
	}))
	f.punch(t, "w-1", attendance.PunchIn, "2026-03-02", "09:00")
	f.punch(t, "w-1", attendance.PunchOut, "2026-03-02", "15:57")
	f.punch(t, "w-1", attendance.PunchIn, "2026-03-03", "09:00")
	f.punch(t, "w-1", attendance.PunchOut, "2026-03-03", "15:51")

	monday := f.reconcile(t, "w-1", "2026-03-02", false)
	tuesday := f.reconcile(t, "w-1", "2026-03-03", false)

	assert.Equal(t, attendance.StateBalanced, monday.State)
	assert.True(t, monday.Delta.Equal(dec("0.05")))
	assert.Equal(t, attendance.StatePosted, tuesday.State)
	assert.True(t, tuesday.Transaction.Hours.Equal(dec("-0.15")))
}

func TestReconcileDay_PendingUntilShiftEnd(t *testing.T) {
	f := newFixture(t)
	f.clock.Set(at("2026-03-02", "16:59"))
	f.worker(t, "w-1", "1234")

	assert.Equal(t, attendance.StatePending, f.reconcile(t, "w-1", "2026-03-02", false).State)
	assert.Empty(t, f.balance(t, "w-1").History)

	f.clock.Advance(time.Minute)
	out := f.reconcile(t, "w-1", "2026-03-02", false)
	require.Equal(t, attendance.StatePosted, out.State)
	assert.True(t, out.Transaction.Hours.Equal(dec("-7")))
}

func TestReconcileDay_ClosesOnElapsedMinutes(t *testing.T) {
	// GIVEN: A shift ending 17:30 and a clock at 18:10
	// THEN: The day is closed even though 10 < 30 minutes

	f := newFixture(t)
	f.clock.Set(at("2026-03-02", "18:10"))
	f.worker(t, "w-1", "1234")
	require.NoError(t, f.engine.SetSchedule(f.ctx, "w-1", []attendance.ReferenceShift{
		{Weekday: time.Monday, Start: "09:30", End: "17:30"},
	}))

	assert.Equal(t, attendance.StatePosted, f.reconcile(t, "w-1", "2026-03-02", false).State)
}

func TestReconcileDay_MissingShiftEndClosesAtSixPM(t *testing.T) {
	// GIVEN: A stored Monday shift with no end time and a clock at 17:59
	// WHEN: The day is reconciled before and at 18:00
	// THEN: It stays pending until 18:00 and then posts

	f := newFixture(t)
	f.clock.Set(at("2026-03-02", "17:59"))
	f.worker(t, "w-1", "1234")
	require.NoError(t, f.store.SaveSchedule(f.ctx, "w-1", []attendance.ReferenceShift{
		{Weekday: time.Monday, Start: "09:00"},
	}))

	assert.Equal(t, attendance.StatePending, f.reconcile(t, "w-1", "2026-03-02", false).State)

	f.clock.Advance(time.Minute)
	assert.Equal(t, attendance.StatePosted, f.reconcile(t, "w-1", "2026-03-02", false).State)
}

func TestReconcileDay_LastMinuteOfDayAlwaysCloses(t *testing.T) {
	// GIVEN: A stored shift whose end lies past midnight
	// WHEN: The day is reconciled at 23:58 and at 23:59
	// THEN: 23:59 closes the day regardless of the shift end

	f := newFixture(t)
	f.clock.Set(at("2026-03-02", "23:58"))
	f.worker(t, "w-1", "1234")
	require.NoError(t, f.store.SaveSchedule(f.ctx, "w-1", []attendance.ReferenceShift{
		{Weekday: time.Monday, Start: "09:00", End: "25:00"},
	}))

	assert.Equal(t, attendance.StatePending, f.reconcile(t, "w-1", "2026-03-02", false).State)

	f.clock.Advance(time.Minute)
	out := f.reconcile(t, "w-1", "2026-03-02", false)
	require.Equal(t, attendance.StatePosted, out.State)
	assert.True(t, out.Transaction.Hours.Equal(dec("-16")))
}

func TestReconcileDay_FutureDateNeedsForce(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")

	assert.Equal(t, attendance.StatePending, f.reconcile(t, "w-1", "2026-03-03", false).State)
	assert.Equal(t, attendance.StatePosted, f.reconcile(t, "w-1", "2026-03-03", true).State)
}

func TestReconcileDay_TerminalStates(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")

	t.Run("weekend", func(t *testing.T) {
		assert.Equal(t, attendance.StateNotApplicable, f.reconcile(t, "w-1", "2026-03-07", true).State)
	})

	t.Run("unknown worker", func(t *testing.T) {
		assert.Equal(t, attendance.StateSkipped, f.reconcile(t, "ghost", "2026-03-02", true).State)
	})

	t.Run("unscheduled weekday", func(t *testing.T) {
		require.NoError(t, f.engine.SetSchedule(f.ctx, "w-1", []attendance.ReferenceShift{
			{Weekday: time.Tuesday, Start: "09:00", End: "13:00"},
		}))
		assert.Equal(t, attendance.StateNotApplicable, f.reconcile(t, "w-1", "2026-03-02", true).State)
	})

	assert.Empty(t, f.balance(t, "w-1").History)
}

func TestReconcileDay_AdminEntryVetoes(t *testing.T) {
	// GIVEN: A justified absence recorded for the day, no punches
	// WHEN: The day is reconciled
	// THEN: No automatic posting happens; only the entry's own debit exists

	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	entry, err := f.engine.Overrides().Add(f.ctx, attendance.AdminEntryRequest{
		WorkerID: "w-1",
		Date:     generic.MustParseDate("2026-03-02"),
		Type:     attendance.AdminJustified,
		Hours:    dec("7"),
	})
	require.NoError(t, err)

	out := f.reconcile(t, "w-1", "2026-03-02", true)

	assert.Equal(t, attendance.StateOverridden, out.State)
	acct := f.balance(t, "w-1")
	require.Len(t, acct.History, 1)
	assert.Equal(t, entry.ID, acct.History[0].ReferenceID)
	assert.True(t, acct.Hours.Equal(dec("-7")))
}

// =============================================================================
// BATCH RUN
// =============================================================================

func TestReconcileAllActiveWorkersToday(t *testing.T) {
	// GIVEN: Two active workers with no punches and one inactive worker
	// WHEN: The daily batch runs twice after the shift ended
	// THEN: Each active worker is debited once; the inactive one is untouched

	f := newFixture(t)
	f.worker(t, "w-1", "1111")
	f.worker(t, "w-2", "2222")
	f.worker(t, "w-3", "3333")
	_, err := f.engine.SetWorkerActive(f.ctx, "w-3", false)
	require.NoError(t, err)

	first, err := f.engine.ReconcileAllActiveWorkersToday(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-02", first.Date.String())
	assert.Len(t, first.Outcomes, 2)
	assert.Equal(t, 2, first.Posted())
	assert.Empty(t, first.Failures)

	second, err := f.engine.ReconcileAllActiveWorkersToday(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Posted())
	for _, o := range second.Outcomes {
		assert.Equal(t, attendance.StateAlreadyPosted, o.State)
	}

	assert.True(t, f.balance(t, "w-1").Hours.Equal(dec("-7")))
	assert.Empty(t, f.balance(t, "w-3").History)
}

// =============================================================================
// MANUAL ADJUSTMENTS AND BALANCE
// =============================================================================

func TestPostManualAdjustment(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	adj := attendance.ManualAdjustment{
		WorkerID:       "w-1",
		Hours:          dec("1.5"),
		Direction:      generic.Credit,
		IdempotencyKey: "req-42",
	}

	tx, bal, err := f.engine.PostManualAdjustment(f.ctx, adj)
	require.NoError(t, err)
	assert.Equal(t, "Manual credit", tx.Description)
	assert.Equal(t, "manual", tx.ReferenceID)
	assert.True(t, bal.Value.Equal(dec("18")))
	assert.Len(t, f.notifier.with(attendance.SeveritySuccess), 1)

	_, _, err = f.engine.PostManualAdjustment(f.ctx, adj)
	assert.ErrorIs(t, err, generic.ErrDuplicateIdempotencyKey)
	assert.Len(t, f.balance(t, "w-1").History, 1)
}

func TestPostManualAdjustment_UnknownWorker(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.engine.PostManualAdjustment(f.ctx, attendance.ManualAdjustment{
		WorkerID: "ghost", Hours: dec("1"), Direction: generic.Debit,
	})

	assert.ErrorIs(t, err, generic.ErrEntityNotFound)
}

func TestGetBalance_NotifiesCorrectedDrift(t *testing.T) {
	f := newFixture(t)
	f.worker(t, "w-1", "1234")
	f.fiveHourDay(t, "w-1", "2026-03-02")
	f.reconcile(t, "w-1", "2026-03-02", false)
	require.NoError(t, f.store.CorruptBalance(f.ctx, "w-1", dec("10")))

	acct := f.balance(t, "w-1")

	assert.True(t, acct.Hours.Equal(dec("-2")))
	warnings := f.notifier.with(attendance.SeverityWarning)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Message, "(corrected)")
}

func TestGetBalance_UnknownWorker(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.GetBalance(f.ctx, "ghost")
	assert.ErrorIs(t, err, generic.ErrEntityNotFound)
}
