package attendance

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// WORKERS AND SCHEDULES
// =============================================================================

// WorkerInput is the administrative form for a new worker.
type WorkerInput struct {
	ID         generic.WorkerID // generated when empty
	Name       string
	RoleID     string
	HourlyRate decimal.Decimal
	PIN        string
	Active     bool
}

func validPIN(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// CreateWorker registers a worker and applies the default schedule.
func (e *Engine) CreateWorker(ctx context.Context, in WorkerInput) (Worker, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return Worker{}, generic.Invalid("name", "required")
	}
	if in.HourlyRate.IsNegative() {
		return Worker{}, generic.Invalid("hourly_rate", "must not be negative, got %s", in.HourlyRate)
	}
	if !validPIN(in.PIN) {
		return Worker{}, generic.Invalid("pin", "must be 4 digits")
	}
	if _, err := e.repo.WorkerByPIN(ctx, in.PIN); err == nil {
		return Worker{}, ErrDuplicatePIN
	} else if !errors.Is(err, generic.ErrEntityNotFound) {
		return Worker{}, err
	}
	if in.ID == "" {
		in.ID = generic.WorkerID(uuid.NewString())
	}

	w := Worker{
		ID:         in.ID,
		Name:       in.Name,
		RoleID:     in.RoleID,
		HourlyRate: in.HourlyRate,
		Active:     in.Active,
		PIN:        in.PIN,
		CreatedAt:  e.clock.Now(),
	}
	if err := e.repo.SaveWorker(ctx, w); err != nil {
		return Worker{}, err
	}
	if _, err := e.schedules.EnsureSchedule(ctx, w.ID); err != nil {
		return Worker{}, err
	}
	e.logger.Info("worker created", zap.String("worker_id", string(w.ID)), zap.String("name", w.Name))
	return w, nil
}

// SetWorkerActive toggles whether the worker takes part in daily runs.
func (e *Engine) SetWorkerActive(ctx context.Context, id generic.WorkerID, active bool) (Worker, error) {
	w, err := e.repo.GetWorker(ctx, id)
	if err != nil {
		return Worker{}, err
	}
	w.Active = active
	if err := e.repo.SaveWorker(ctx, w); err != nil {
		return Worker{}, err
	}
	return w, nil
}

// SetSchedule replaces a worker's reference schedule.
func (e *Engine) SetSchedule(ctx context.Context, id generic.WorkerID, shifts []ReferenceShift) error {
	if _, err := e.repo.GetWorker(ctx, id); err != nil {
		return err
	}
	if len(shifts) == 0 {
		return generic.Invalid("shifts", "at least one weekday is required")
	}
	if err := ValidateSchedule(shifts); err != nil {
		return err
	}
	return e.repo.SaveSchedule(ctx, id, shifts)
}

// =============================================================================
// PUNCHES
// =============================================================================

// PunchRequest records a clock event. A zero At means now.
type PunchRequest struct {
	WorkerID generic.WorkerID
	Type     PunchType
	At       time.Time
}

// RegisterPunch stores a punch for an active worker. It does not reconcile;
// callers trigger the scheduler afterwards.
func (e *Engine) RegisterPunch(ctx context.Context, req PunchRequest) (Punch, error) {
	if !req.Type.Valid() {
		return Punch{}, generic.Invalid("type", "unknown punch type %q", req.Type)
	}
	w, err := e.repo.GetWorker(ctx, req.WorkerID)
	if err != nil {
		return Punch{}, err
	}
	if !w.Active {
		return Punch{}, ErrWorkerInactive
	}

	at := req.At
	if at.IsZero() {
		at = e.clock.Now()
	}
	p := Punch{
		ID:        uuid.NewString(),
		WorkerID:  w.ID,
		Date:      generic.DayOf(at),
		Time:      at.Format("15:04"),
		Type:      req.Type,
		Timestamp: at,
	}
	if err := e.repo.AppendPunch(ctx, p); err != nil {
		return Punch{}, err
	}
	e.logger.Info("punch registered",
		zap.String("worker_id", string(w.ID)),
		zap.String("type", string(p.Type)),
		zap.Stringer("date", p.Date),
		zap.String("time", p.Time),
	)
	return p, nil
}

// RegisterPunchByPIN is the kiosk flow: the worker identifies with a PIN.
func (e *Engine) RegisterPunchByPIN(ctx context.Context, pin string, typ PunchType) (Worker, Punch, error) {
	if !validPIN(pin) {
		return Worker{}, Punch{}, generic.Invalid("pin", "must be 4 digits")
	}
	w, err := e.repo.WorkerByPIN(ctx, pin)
	if err != nil {
		return Worker{}, Punch{}, err
	}
	p, err := e.RegisterPunch(ctx, PunchRequest{WorkerID: w.ID, Type: typ})
	if err != nil {
		return Worker{}, Punch{}, err
	}
	return w, p, nil
}

// PunchesFor lists a worker's punches in [from, to].
func (e *Engine) PunchesFor(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]Punch, error) {
	if to.Before(from) {
		return nil, generic.Invalid("to", "%s is before %s", to, from)
	}
	return e.repo.PunchesInRange(ctx, id, from, to)
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// EnsureSchedules applies the default schedule to every worker without one
// and returns how many were changed.
func (e *Engine) EnsureSchedules(ctx context.Context) (int, error) {
	workers, err := e.repo.ListWorkers(ctx)
	if err != nil {
		return 0, err
	}
	applied := 0
	for _, w := range workers {
		ok, err := e.schedules.EnsureSchedule(ctx, w.ID)
		if err != nil {
			return applied, fmt.Errorf("worker %s: %w", w.ID, err)
		}
		if ok {
			applied++
		}
	}
	if applied > 0 {
		e.logger.Info("default schedules applied", zap.Int("workers", applied))
	}
	return applied, nil
}

// VerifyBalances runs the ledger consistency check for every worker and
// returns the workers whose cached balance had to be corrected.
func (e *Engine) VerifyBalances(ctx context.Context) ([]generic.WorkerID, error) {
	workers, err := e.repo.ListWorkers(ctx)
	if err != nil {
		return nil, err
	}
	var corrected []generic.WorkerID
	for _, w := range workers {
		before, err := e.repo.LoadAccount(ctx, w.ID)
		if err != nil {
			return corrected, err
		}
		after, err := e.ledger.BalanceOf(ctx, w.ID)
		if err != nil {
			return corrected, err
		}
		tol := e.ledger.DriftTolerance()
		if before.Hours.Sub(after.Hours).Abs().GreaterThan(tol) || before.Value.Sub(after.Value).Abs().GreaterThan(tol) {
			corrected = append(corrected, w.ID)
		}
	}
	e.logger.Info("hours bank verified", zap.Int("workers", len(workers)), zap.Int("corrected", len(corrected)))
	return corrected, nil
}

// WipeTransactionalData clears punches, administrative entries, ledgers,
// markers and reports. Workers and schedules are kept.
func (e *Engine) WipeTransactionalData(ctx context.Context) error {
	if err := e.repo.WipeTransactional(ctx); err != nil {
		return fmt.Errorf("wipe transactional data: %w", err)
	}
	e.logger.Warn("transactional data wiped")
	e.notifier.Notify(ctx, "Transactional data cleared; workers and schedules kept", SeverityWarning)
	return nil
}

// =============================================================================
// READ SIDE
// =============================================================================

func (e *Engine) ListWorkers(ctx context.Context) ([]Worker, error) {
	return e.repo.ListWorkers(ctx)
}

func (e *Engine) GetWorker(ctx context.Context, id generic.WorkerID) (Worker, error) {
	return e.repo.GetWorker(ctx, id)
}

// Schedule returns the worker's reference shifts, Monday first.
func (e *Engine) Schedule(ctx context.Context, id generic.WorkerID) ([]ReferenceShift, error) {
	if _, err := e.repo.GetWorker(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.GetSchedule(ctx, id)
}

// ListReports returns stored reports, newest month first.
func (e *Engine) ListReports(ctx context.Context, id generic.WorkerID) ([]MonthlyReport, error) {
	if _, err := e.repo.GetWorker(ctx, id); err != nil {
		return nil, err
	}
	return e.repo.ListReports(ctx, id)
}
