/*
engine.go - Daily hours-bank reconciliation

PURPOSE:
  Compares a worker's reference shift with the punches recorded for a day
  and posts the difference to the hours bank, once.

STATE MACHINE (per worker, per date):
  not_applicable  weekend or no reference shift         terminal
  skipped         worker does not exist                 terminal (logged)
  overridden      administrative entry present          terminal, no ledger effect
  balanced        |delta| below the materiality limit   nothing to post
  pending         workday not closed yet                re-evaluated later
  already_posted  marker matches the current delta      terminal until data changes
  posted          ledger transaction appended           marker updated

IDEMPOTENCY:
  The marker for (worker, date) stores the delta whose effect is already in
  the bank. A later run posts only when the current delta differs from the
  marker by at least the materiality threshold, and then posts exactly that
  difference. Calling ReconcileDay from the timer, after a punch, and from
  an admin button in quick succession therefore posts at most once for an
  unchanged day, while a retroactive punch edit still gets corrected.

CLOSEABILITY:
  A day is closeable when forced, when it is already in the past, or when
  the clock has reached the shift end (true minute comparison) or 23:59.
*/
package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/generic"
)

// DefaultMaterialityThreshold is 6 minutes.
var DefaultMaterialityThreshold = decimal.RequireFromString("0.1")

const (
	fallbackShiftEnd = "18:00"
	lastMinuteOfDay  = 23*60 + 59
)

type DayState string

const (
	StateNotApplicable DayState = "not_applicable"
	StateSkipped       DayState = "skipped"
	StateOverridden    DayState = "overridden"
	StateBalanced      DayState = "balanced"
	StatePending       DayState = "pending"
	StateAlreadyPosted DayState = "already_posted"
	StatePosted        DayState = "posted"
)

// DayOutcome reports what ReconcileDay decided and why.
type DayOutcome struct {
	WorkerID    generic.WorkerID
	Date        generic.TimePoint
	State       DayState
	Reference   decimal.Decimal
	Worked      decimal.Decimal
	Delta       decimal.Decimal
	Transaction *generic.Transaction
	Balance     *generic.Balance
}

// RunSummary is the result of a batch run over all active workers.
type RunSummary struct {
	Date     generic.TimePoint
	Outcomes []DayOutcome
	Failures map[generic.WorkerID]string
}

// Posted counts the outcomes that moved the bank.
func (s RunSummary) Posted() int {
	n := 0
	for _, o := range s.Outcomes {
		if o.State == StatePosted {
			n++
		}
	}
	return n
}

// EngineOptions configures NewEngine. Zero values select defaults.
type EngineOptions struct {
	Clock                generic.Clock
	Logger               *zap.Logger
	Notifier             Notifier
	MaterialityThreshold decimal.Decimal
	DriftTolerance       decimal.Decimal
	// AdminDebitTypes selects which administrative entries debit the bank.
	// nil means all types.
	AdminDebitTypes []AdminEntryType
}

// Engine is the trigger surface of the hours bank.
type Engine struct {
	repo      Repository
	ledger    *generic.Ledger
	schedules *ScheduleResolver
	overrides *OverrideRegistry
	reports   *ReportGenerator

	clock     generic.Clock
	logger    *zap.Logger
	notifier  Notifier
	threshold decimal.Decimal
	locks     *generic.KeyedMutex
}

func NewEngine(repo Repository, opts EngineOptions) *Engine {
	if opts.Clock == nil {
		opts.Clock = generic.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{Logger: opts.Logger}
	}
	if !opts.MaterialityThreshold.IsPositive() {
		opts.MaterialityThreshold = DefaultMaterialityThreshold
	}
	if opts.AdminDebitTypes == nil {
		opts.AdminDebitTypes = AllAdminEntryTypes
	}

	ledger := generic.NewLedger(repo, WorkerRates{Workers: repo}, opts.Clock, opts.Logger.Named("ledger"))
	if opts.DriftTolerance.IsPositive() {
		ledger.SetDriftTolerance(opts.DriftTolerance)
	}
	notifier := opts.Notifier
	ledger.OnDrift = func(ctx context.Context, drift *generic.DriftError) {
		notifier.Notify(ctx, drift.Error()+" (corrected)", SeverityWarning)
	}

	schedules := NewScheduleResolver(repo)
	return &Engine{
		repo:      repo,
		ledger:    ledger,
		schedules: schedules,
		overrides: NewOverrideRegistry(repo, repo, ledger, opts.AdminDebitTypes, opts.Clock, opts.Logger.Named("overrides")),
		reports:   NewReportGenerator(repo, schedules, ledger, opts.Clock, opts.Logger.Named("reports")),
		clock:     opts.Clock,
		logger:    opts.Logger,
		notifier:  opts.Notifier,
		threshold: opts.MaterialityThreshold,
		locks:     generic.NewKeyedMutex(),
	}
}

// Ledger exposes the hours bank the engine posts to.
func (e *Engine) Ledger() *generic.Ledger { return e.ledger }

func (e *Engine) Overrides() *OverrideRegistry { return e.overrides }

// Today is the current local date of the engine's clock.
func (e *Engine) Today() generic.TimePoint { return generic.DayOf(e.clock.Now()) }

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileDay evaluates one worker on one date and posts at most one
// transaction. It is safe to call repeatedly.
func (e *Engine) ReconcileDay(ctx context.Context, id generic.WorkerID, date generic.TimePoint, forceClose bool) (DayOutcome, error) {
	unlock := e.locks.Lock(string(id))
	defer unlock()

	out := DayOutcome{WorkerID: id, Date: date}
	log := e.logger.With(zap.String("worker_id", string(id)), zap.Stringer("date", date))

	if _, err := e.repo.GetWorker(ctx, id); err != nil {
		if errors.Is(err, generic.ErrEntityNotFound) {
			log.Warn("reconciliation skipped: unknown worker")
			out.State = StateSkipped
			return out, nil
		}
		return out, err
	}

	// 1. Reference shift
	shift, ok, err := e.schedules.ResolveShift(ctx, id, date)
	if err != nil {
		return out, err
	}
	if !ok {
		out.State = StateNotApplicable
		return out, nil
	}

	// 2. Administrative veto
	entries, err := e.overrides.EntriesFor(ctx, id, date)
	if err != nil {
		return out, err
	}
	if len(entries) > 0 {
		out.State = StateOverridden
		return out, nil
	}

	// 3. Delta
	punches, err := e.repo.PunchesInRange(ctx, id, date, date)
	if err != nil {
		return out, err
	}
	out.Reference = shift.NetHours()
	out.Worked = WorkedHours(punches)
	out.Delta = out.Reference.Sub(out.Worked)
	if out.Reference.IsNegative() {
		log.Warn("reference shift has negative duration",
			zap.String("start", shift.Start), zap.String("end", shift.End), zap.String("break", shift.Break))
	}

	marker, hasMarker, err := e.repo.GetMarker(ctx, id, date)
	if err != nil {
		return out, err
	}

	// 5. Materiality
	if !hasMarker && out.Delta.Abs().LessThan(e.threshold) {
		out.State = StateBalanced
		return out, nil
	}

	// 4/6. Closeability
	if !forceClose && !e.closeable(shift, date) {
		out.State = StatePending
		return out, nil
	}

	// 7. Idempotency
	adjustment := out.Delta
	if hasMarker {
		adjustment = out.Delta.Sub(marker.Delta)
		if adjustment.Abs().LessThan(e.threshold) {
			out.State = StateAlreadyPosted
			return out, nil
		}
	}

	// 8. Post
	req := generic.PostRequest{
		WorkerID:    id,
		Date:        date,
		Hours:       adjustment.Abs(),
		Direction:   generic.Debit,
		Description: e.describe(date, out, hasMarker),
		ReferenceID: markerKey(id, date),
	}
	if adjustment.IsNegative() {
		req.Direction = generic.Credit
	}
	tx, bal, err := e.ledger.Post(ctx, req)
	if err != nil {
		return out, fmt.Errorf("post reconciliation for %s on %s: %w", id, date, err)
	}

	// 9. Marker
	if err := e.repo.SaveMarker(ctx, Marker{WorkerID: id, Date: date, Delta: out.Delta, UpdatedAt: e.clock.Now()}); err != nil {
		return out, fmt.Errorf("save marker: %w", err)
	}

	out.State = StatePosted
	out.Transaction = &tx
	out.Balance = &bal
	log.Info("day reconciled",
		zap.String("reference", out.Reference.StringFixed(2)),
		zap.String("worked", out.Worked.StringFixed(2)),
		zap.String("posted", tx.Hours.StringFixed(2)),
	)
	return out, nil
}

func (e *Engine) describe(date generic.TimePoint, out DayOutcome, correction bool) string {
	kind := "Automatic update"
	if correction {
		kind = "Automatic correction"
	}
	if out.Delta.IsNegative() {
		return fmt.Sprintf("%s - overtime %s: worked %sh (scheduled %sh)",
			kind, date, out.Worked.StringFixed(1), out.Reference.StringFixed(1))
	}
	return fmt.Sprintf("%s - %s: worked %sh (scheduled %sh)",
		kind, date, out.Worked.StringFixed(1), out.Reference.StringFixed(1))
}

// closeable compares elapsed minutes, not hour and minute separately.
func (e *Engine) closeable(shift ReferenceShift, date generic.TimePoint) bool {
	now := e.clock.Now()
	today := generic.DayOf(now)
	switch {
	case date.Before(today):
		return true
	case date.After(today):
		return false
	}

	end := shift.End
	if end == "" {
		end = fallbackShiftEnd
	}
	elapsed := now.Hour()*60 + now.Minute()
	return elapsed >= TimeToMinutes(end) || elapsed >= lastMinuteOfDay
}

func markerKey(id generic.WorkerID, date generic.TimePoint) string {
	return fmt.Sprintf("reconcile:%s:%s", id, date)
}

// ReconcileAllActiveWorkersToday runs ReconcileDay for every active worker.
// One worker's failure is logged and recorded; the run continues.
func (e *Engine) ReconcileAllActiveWorkersToday(ctx context.Context) (RunSummary, error) {
	today := e.Today()
	summary := RunSummary{Date: today, Failures: make(map[generic.WorkerID]string)}

	workers, err := e.repo.ListWorkers(ctx)
	if err != nil {
		return summary, fmt.Errorf("list workers: %w", err)
	}

	for _, w := range workers {
		if !w.Active {
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		out, err := e.ReconcileDay(ctx, w.ID, today, false)
		if err != nil {
			e.logger.Error("reconciliation failed",
				zap.String("worker_id", string(w.ID)), zap.Stringer("date", today), zap.Error(err))
			e.notifier.Notify(ctx, fmt.Sprintf("Reconciliation failed for %s: %v", w.Name, err), SeverityError)
			summary.Failures[w.ID] = err.Error()
			continue
		}
		summary.Outcomes = append(summary.Outcomes, out)
	}
	return summary, nil
}

// =============================================================================
// MANUAL ADJUSTMENT AND BALANCE
// =============================================================================

// ManualAdjustment is an administrator's direct posting.
type ManualAdjustment struct {
	WorkerID       generic.WorkerID
	Hours          decimal.Decimal
	Direction      generic.Direction
	Description    string
	IdempotencyKey string
}

// PostManualAdjustment credits or debits a worker's bank directly.
func (e *Engine) PostManualAdjustment(ctx context.Context, adj ManualAdjustment) (generic.Transaction, generic.Balance, error) {
	if adj.Description == "" {
		if adj.Direction == generic.Credit {
			adj.Description = "Manual credit"
		} else {
			adj.Description = "Manual debit"
		}
	}
	tx, bal, err := e.ledger.Post(ctx, generic.PostRequest{
		WorkerID:       adj.WorkerID,
		Hours:          adj.Hours,
		Direction:      adj.Direction,
		Description:    adj.Description,
		ReferenceID:    "manual",
		IdempotencyKey: adj.IdempotencyKey,
	})
	if err != nil {
		return tx, bal, err
	}
	e.notifier.Notify(ctx, fmt.Sprintf("Hours bank of %s adjusted by %sh", adj.WorkerID, tx.Hours.StringFixed(2)), SeveritySuccess)
	return tx, bal, nil
}

// GetBalance returns the worker's account after the consistency check.
func (e *Engine) GetBalance(ctx context.Context, id generic.WorkerID) (generic.Account, error) {
	if _, err := e.repo.GetWorker(ctx, id); err != nil {
		return generic.Account{}, err
	}
	return e.ledger.BalanceOf(ctx, id)
}

// GenerateMonthlyReport delegates to the report generator.
func (e *Engine) GenerateMonthlyReport(ctx context.Context, id generic.WorkerID, year int, month time.Month) (MonthlyReport, error) {
	return e.reports.Generate(ctx, id, year, month)
}
