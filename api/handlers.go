/*
handlers.go - HTTP API handlers for the hours bank

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to the engine.

ENDPOINTS:
  Workers:
    GET    /api/workers                     List workers
    POST   /api/workers                     Create worker (default schedule applied)
    GET    /api/workers/{id}                Get worker
    GET    /api/workers/{id}/schedule       Reference schedule
    PUT    /api/workers/{id}/schedule       Replace schedule

  Punches:
    POST   /api/workers/{id}/punches        Register punch, then reconcile
    GET    /api/workers/{id}/punches        Punches of a day (?date=) with worked hours
    POST   /api/punch                       Kiosk punch by PIN, then reconcile

  Hours bank:
    GET    /api/workers/{id}/balance        Balance (consistency-checked)
    GET    /api/workers/{id}/transactions   History
    POST   /api/workers/{id}/adjustments    Manual credit/debit (Idempotency-Key header)
    POST   /api/workers/{id}/reconcile      Reconcile one day

  Administrative entries:
    GET    /api/workers/{id}/admin-entries  List (?from=&to=)
    POST   /api/admin-entries               Add (empty worker_id = all active workers)
    DELETE /api/admin-entries/{id}          Delete and reverse its debit

  Reports:
    POST   /api/workers/{id}/reports        Generate (replaces the month's report)
    GET    /api/workers/{id}/reports        List

  Operations:
    POST   /api/reconciliation/tick         Run the scheduler tick now
    GET    /api/reconciliation/last         Last run summary
    POST   /api/admin/wipe                  Clear transactional data

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (idempotency, already reversed, duplicate PIN, inactive worker)
  - 500: Internal errors

SECURITY NOTE:
  No authentication or authorization. All endpoints are public.
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine    *attendance.Engine
	Scheduler *Scheduler
	// Location interprets retroactive punch times.
	Location *time.Location

	logger *zap.Logger
}

func NewHandler(engine *attendance.Engine, scheduler *Scheduler, loc *time.Location, logger *zap.Logger) *Handler {
	if loc == nil {
		loc = time.Local
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Engine: engine, Scheduler: scheduler, Location: loc, logger: logger}
}

func (h *Handler) tick(r *http.Request) {
	if h.Scheduler != nil {
		h.Scheduler.Tick(r.Context())
	}
}

func workerID(r *http.Request) generic.WorkerID {
	return generic.WorkerID(chi.URLParam(r, "id"))
}

// dateParam parses a YYYY-MM-DD query value, falling back to def.
func dateParam(r *http.Request, key string, def generic.TimePoint) (generic.TimePoint, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	d, err := generic.ParseDate(v)
	if err != nil {
		return generic.TimePoint{}, generic.Invalid(key, "use YYYY-MM-DD")
	}
	return d, nil
}

// =============================================================================
// WORKERS
// =============================================================================

// ListWorkers returns all workers.
func (h *Handler) ListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := h.Engine.ListWorkers(r.Context())
	if err != nil {
		h.fail(w, "Failed to list workers", err)
		return
	}
	dtos := make([]WorkerDTO, len(workers))
	for i, wk := range workers {
		dtos[i] = toWorkerDTO(wk)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetWorker returns a single worker.
func (h *Handler) GetWorker(w http.ResponseWriter, r *http.Request) {
	wk, err := h.Engine.GetWorker(r.Context(), workerID(r))
	if err != nil {
		h.fail(w, "Failed to get worker", err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkerDTO(wk))
}

// CreateWorker registers a worker.
func (h *Handler) CreateWorker(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}

	wk, err := h.Engine.CreateWorker(r.Context(), attendance.WorkerInput{
		ID:         generic.WorkerID(req.ID),
		Name:       req.Name,
		RoleID:     req.RoleID,
		HourlyRate: req.HourlyRate,
		PIN:        req.PIN,
		Active:     active,
	})
	if err != nil {
		h.fail(w, "Failed to create worker", err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkerDTO(wk))
}

// GetSchedule returns the worker's reference shifts.
func (h *Handler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	shifts, err := h.Engine.Schedule(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, shifts))
}

// PutSchedule replaces the worker's reference shifts.
func (h *Handler) PutSchedule(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	var req ScheduleDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	shifts := fromShiftDTOs(req.Shifts)
	if err := h.Engine.SetSchedule(r.Context(), id, shifts); err != nil {
		h.fail(w, "Failed to save schedule", err)
		return
	}
	writeJSON(w, http.StatusOK, toScheduleDTO(id, shifts))
}

// =============================================================================
// PUNCHES
// =============================================================================

// RegisterPunch stores a punch and runs the reconciliation tick.
// POST /api/workers/{id}/punches
func (h *Handler) RegisterPunch(w http.ResponseWriter, r *http.Request) {
	var req PunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	at, err := h.punchTime(req)
	if err != nil {
		h.fail(w, "Invalid punch time", err)
		return
	}
	p, err := h.Engine.RegisterPunch(r.Context(), attendance.PunchRequest{
		WorkerID: workerID(r),
		Type:     attendance.PunchType(req.Type),
		At:       at,
	})
	if err != nil {
		h.fail(w, "Failed to register punch", err)
		return
	}
	h.tick(r)
	// The tick only covers today; a retroactive punch re-evaluates its own day.
	if p.Date.Before(h.Engine.Today()) {
		if _, err := h.Engine.ReconcileDay(r.Context(), p.WorkerID, p.Date, false); err != nil {
			h.logger.Error("retroactive reconciliation failed",
				zap.String("worker_id", string(p.WorkerID)), zap.Stringer("date", p.Date), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusCreated, toPunchDTO(p))
}

// punchTime returns zero (meaning now) unless both date and time are given.
func (h *Handler) punchTime(req PunchRequest) (time.Time, error) {
	if req.Date == "" && req.Time == "" {
		return time.Time{}, nil
	}
	if req.Date == "" || req.Time == "" {
		return time.Time{}, generic.Invalid("time", "date and time must be given together")
	}
	d, err := generic.ParseDate(req.Date)
	if err != nil {
		return time.Time{}, generic.Invalid("date", "use YYYY-MM-DD")
	}
	minutes, ok := attendance.ParseClock(req.Time)
	if !ok {
		return time.Time{}, generic.Invalid("time", "%q is not HH:MM", req.Time)
	}
	return time.Date(d.Year(), d.Month(), d.Day(), minutes/60, minutes%60, 0, 0, h.Location), nil
}

// PunchByPIN is the kiosk flow.
// POST /api/punch
func (h *Handler) PunchByPIN(w http.ResponseWriter, r *http.Request) {
	var req PINPunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	wk, p, err := h.Engine.RegisterPunchByPIN(r.Context(), req.PIN, attendance.PunchType(req.Type))
	if err != nil {
		h.fail(w, "Failed to register punch", err)
		return
	}
	h.tick(r)
	writeJSON(w, http.StatusCreated, PINPunchResponse{Worker: toWorkerDTO(wk), Punch: toPunchDTO(p)})
}

// GetPunches returns one day's punches and the hours they add up to.
// GET /api/workers/{id}/punches?date=YYYY-MM-DD
func (h *Handler) GetPunches(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	date, err := dateParam(r, "date", h.Engine.Today())
	if err != nil {
		h.fail(w, "Invalid date", err)
		return
	}
	if _, err := h.Engine.GetWorker(r.Context(), id); err != nil {
		h.fail(w, "Failed to get worker", err)
		return
	}
	punches, err := h.Engine.PunchesFor(r.Context(), id, date, date)
	if err != nil {
		h.fail(w, "Failed to list punches", err)
		return
	}

	dto := DayPunchesDTO{
		WorkerID:    string(id),
		Date:        date.String(),
		Punches:     make([]PunchDTO, 0, len(punches)),
		WorkedHours: attendance.WorkedHours(punches),
	}
	for _, p := range punches {
		dto.Punches = append(dto.Punches, toPunchDTO(p))
	}
	writeJSON(w, http.StatusOK, dto)
}

// =============================================================================
// HOURS BANK
// =============================================================================

// GetBalance returns the consistency-checked balance.
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	acct, err := h.Engine.GetBalance(r.Context(), id)
	if err != nil {
		h.fail(w, "Failed to get balance", err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(id, acct.Balance()))
}

// GetTransactions returns the history, newest first.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	acct, err := h.Engine.GetBalance(r.Context(), workerID(r))
	if err != nil {
		h.fail(w, "Failed to get transactions", err)
		return
	}
	dtos := make([]TransactionDTO, 0, len(acct.History))
	for i := len(acct.History) - 1; i >= 0; i-- {
		tx := acct.History[i]
		dto := toTransactionDTO(tx)
		dto.Reversed = acct.IsReversed(tx.ID)
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdjustment posts a manual credit or debit.
// POST /api/workers/{id}/adjustments
func (h *Handler) CreateAdjustment(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if _, err := h.Engine.GetWorker(r.Context(), id); err != nil {
		h.fail(w, "Failed to get worker", err)
		return
	}

	tx, bal, err := h.Engine.PostManualAdjustment(r.Context(), attendance.ManualAdjustment{
		WorkerID:       id,
		Hours:          req.Hours,
		Direction:      generic.Direction(req.Direction),
		Description:    req.Description,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		h.fail(w, "Failed to post adjustment", err)
		return
	}
	writeJSON(w, http.StatusCreated, AdjustmentResponse{
		Transaction: toTransactionDTO(tx),
		Balance:     toBalanceDTO(id, bal),
	})
}

// ReconcileDay evaluates one (worker, date).
// POST /api/workers/{id}/reconcile
func (h *Handler) ReconcileDay(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	date := h.Engine.Today()
	if req.Date != "" {
		d, err := generic.ParseDate(req.Date)
		if err != nil {
			h.fail(w, "Invalid date", generic.Invalid("date", "use YYYY-MM-DD"))
			return
		}
		date = d
	}

	id := workerID(r)
	if _, err := h.Engine.GetWorker(r.Context(), id); err != nil {
		h.fail(w, "Failed to get worker", err)
		return
	}
	out, err := h.Engine.ReconcileDay(r.Context(), id, date, req.Force)
	if err != nil {
		h.fail(w, "Reconciliation failed", err)
		return
	}
	writeJSON(w, http.StatusOK, toOutcomeDTO(out))
}

// =============================================================================
// ADMINISTRATIVE ENTRIES
// =============================================================================

// ListAdminEntries defaults to the current month.
// GET /api/workers/{id}/admin-entries?from=&to=
func (h *Handler) ListAdminEntries(w http.ResponseWriter, r *http.Request) {
	id := workerID(r)
	today := h.Engine.Today()
	from, err := dateParam(r, "from", generic.StartOfMonth(today.Year(), today.Month()))
	if err != nil {
		h.fail(w, "Invalid date", err)
		return
	}
	to, err := dateParam(r, "to", generic.EndOfMonth(today.Year(), today.Month()))
	if err != nil {
		h.fail(w, "Invalid date", err)
		return
	}
	if _, err := h.Engine.GetWorker(r.Context(), id); err != nil {
		h.fail(w, "Failed to get worker", err)
		return
	}

	entries, err := h.Engine.Overrides().EntriesInRange(r.Context(), id, from, to)
	if err != nil {
		h.fail(w, "Failed to list administrative entries", err)
		return
	}
	dtos := make([]AdminEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAdminEntryDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateAdminEntry adds an entry for one worker or all active workers.
// POST /api/admin-entries
func (h *Handler) CreateAdminEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateAdminEntryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		h.fail(w, "Invalid date", generic.Invalid("date", "use YYYY-MM-DD"))
		return
	}
	entry := attendance.AdminEntryRequest{
		WorkerID: generic.WorkerID(req.WorkerID),
		Date:     date,
		Type:     attendance.AdminEntryType(req.Type),
		Hours:    req.Hours,
		Notes:    req.Notes,
	}

	var entries []attendance.AdminEntry
	if req.WorkerID == "" {
		entries, err = h.Engine.Overrides().AddForAllActive(r.Context(), entry)
	} else {
		var e attendance.AdminEntry
		e, err = h.Engine.Overrides().Add(r.Context(), entry)
		entries = []attendance.AdminEntry{e}
	}
	if err != nil {
		h.fail(w, "Failed to add administrative entry", err)
		return
	}

	dtos := make([]AdminEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toAdminEntryDTO(e)
	}
	writeJSON(w, http.StatusCreated, dtos)
}

// DeleteAdminEntry removes an entry and reverses its debit.
// DELETE /api/admin-entries/{id}
func (h *Handler) DeleteAdminEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Engine.Overrides().Delete(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, "Failed to delete administrative entry", err)
		return
	}
	writeJSON(w, http.StatusOK, toAdminEntryDTO(e))
}

// =============================================================================
// REPORTS
// =============================================================================

// GenerateReport builds the month's report, replacing an older one.
// POST /api/workers/{id}/reports
func (h *Handler) GenerateReport(w http.ResponseWriter, r *http.Request) {
	var req GenerateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	rep, err := h.Engine.GenerateMonthlyReport(r.Context(), workerID(r), req.Year, time.Month(req.Month))
	if err != nil {
		h.fail(w, "Failed to generate report", err)
		return
	}
	writeJSON(w, http.StatusCreated, toReportDTO(rep))
}

// ListReports returns stored reports, newest first.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	reports, err := h.Engine.ListReports(r.Context(), workerID(r))
	if err != nil {
		h.fail(w, "Failed to list reports", err)
		return
	}
	dtos := make([]ReportDTO, len(reports))
	for i, rep := range reports {
		dtos[i] = toReportDTO(rep)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// TriggerTick runs the reconciliation tick now.
// POST /api/reconciliation/tick
func (h *Handler) TriggerTick(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(h.Scheduler.Tick(r.Context())))
}

// LastRun returns the summary of the most recent tick.
func (h *Handler) LastRun(w http.ResponseWriter, r *http.Request) {
	if h.Scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "Scheduler not configured", nil)
		return
	}
	summary, at := h.Scheduler.LastRun()
	if at.IsZero() {
		writeError(w, http.StatusNotFound, "No reconciliation run yet", nil)
		return
	}
	writeJSON(w, http.StatusOK, toRunSummaryDTO(summary))
}

// WipeData clears transactional data. Workers and schedules survive.
// POST /api/admin/wipe
func (h *Handler) WipeData(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.WipeTransactionalData(r.Context()); err != nil {
		h.fail(w, "Failed to wipe data", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "wiped"})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// fail maps err to its status code and writes the error body.
func (h *Handler) fail(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.Error(err))
	}
	writeError(w, status, message, err)
}

func statusFor(err error) int {
	switch {
	case generic.IsClientError(err):
		return http.StatusBadRequest
	case generic.IsNotFound(err),
		errors.Is(err, attendance.ErrAdminEntryNotFound),
		errors.Is(err, attendance.ErrReportNotFound):
		return http.StatusNotFound
	case generic.IsConflict(err),
		errors.Is(err, attendance.ErrDuplicatePIN),
		errors.Is(err, attendance.ErrWorkerInactive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
