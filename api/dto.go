/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DECIMALS:
  Hours and money are decimal.Decimal. They are written as JSON strings
  ("-2.5") and accepted as strings or numbers.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs.
*/
package api

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// WORKERS AND SCHEDULES
// =============================================================================

type WorkerDTO struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	RoleID     string          `json:"role_id,omitempty"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	Active     bool            `json:"active"`
	CreatedAt  string          `json:"created_at,omitempty"`
}

// CreateWorkerRequest creates a worker. Active defaults to true.
type CreateWorkerRequest struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	RoleID     string          `json:"role_id"`
	HourlyRate decimal.Decimal `json:"hourly_rate"`
	PIN        string          `json:"pin"`
	Active     *bool           `json:"active,omitempty"`
}

// ShiftDTO uses ISO weekday numbers, 1 (Monday) to 5 (Friday).
type ShiftDTO struct {
	Weekday int    `json:"weekday"`
	Start   string `json:"start"`
	End     string `json:"end"`
	Break   string `json:"break,omitempty"`
}

type ScheduleDTO struct {
	WorkerID string     `json:"worker_id"`
	Shifts   []ShiftDTO `json:"shifts"`
}

// =============================================================================
// PUNCHES
// =============================================================================

// PunchRequest registers a punch now, or at Date+Time for a retroactive
// correction.
type PunchRequest struct {
	Type string `json:"type"`
	Date string `json:"date,omitempty"`
	Time string `json:"time,omitempty"`
}

// PINPunchRequest is the kiosk punch.
type PINPunchRequest struct {
	PIN  string `json:"pin"`
	Type string `json:"type"`
}

type PunchDTO struct {
	ID        string `json:"id"`
	WorkerID  string `json:"worker_id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
}

type PINPunchResponse struct {
	Worker WorkerDTO `json:"worker"`
	Punch  PunchDTO  `json:"punch"`
}

type DayPunchesDTO struct {
	WorkerID    string          `json:"worker_id"`
	Date        string          `json:"date"`
	Punches     []PunchDTO      `json:"punches"`
	WorkedHours decimal.Decimal `json:"worked_hours"`
}

// =============================================================================
// HOURS BANK
// =============================================================================

type BalanceDTO struct {
	WorkerID string          `json:"worker_id"`
	Hours    decimal.Decimal `json:"hours"`
	Value    decimal.Decimal `json:"value"`
}

type TransactionDTO struct {
	ID          string          `json:"id"`
	Date        string          `json:"date"`
	Type        string          `json:"type"`
	Hours       decimal.Decimal `json:"hours"`
	Value       decimal.Decimal `json:"value"`
	Description string          `json:"description"`
	ReferenceID string          `json:"reference_id,omitempty"`
	Reversed    bool            `json:"reversed,omitempty"`
	CreatedAt   string          `json:"created_at"`
}

// AdjustmentRequest is a manual posting. The Idempotency-Key header, if
// present, makes retries safe.
type AdjustmentRequest struct {
	Hours       decimal.Decimal `json:"hours"`
	Direction   string          `json:"direction"`
	Description string          `json:"description"`
}

type AdjustmentResponse struct {
	Transaction TransactionDTO `json:"transaction"`
	Balance     BalanceDTO     `json:"balance"`
}

// =============================================================================
// RECONCILIATION
// =============================================================================

// ReconcileRequest defaults to today without forcing.
type ReconcileRequest struct {
	Date  string `json:"date"`
	Force bool   `json:"force"`
}

type DayOutcomeDTO struct {
	WorkerID    string          `json:"worker_id"`
	Date        string          `json:"date"`
	State       string          `json:"state"`
	Reference   decimal.Decimal `json:"reference_hours"`
	Worked      decimal.Decimal `json:"worked_hours"`
	Delta       decimal.Decimal `json:"delta"`
	Transaction *TransactionDTO `json:"transaction,omitempty"`
	Balance     *BalanceDTO     `json:"balance,omitempty"`
}

type RunSummaryDTO struct {
	Date     string            `json:"date"`
	Posted   int               `json:"posted"`
	Outcomes []DayOutcomeDTO   `json:"outcomes"`
	Failures map[string]string `json:"failures,omitempty"`
}

// =============================================================================
// ADMINISTRATIVE ENTRIES AND REPORTS
// =============================================================================

// CreateAdminEntryRequest applies to every active worker when WorkerID is empty.
type CreateAdminEntryRequest struct {
	WorkerID string          `json:"worker_id"`
	Date     string          `json:"date"`
	Type     string          `json:"type"`
	Hours    decimal.Decimal `json:"hours"`
	Notes    string          `json:"notes"`
}

type AdminEntryDTO struct {
	ID            string          `json:"id"`
	WorkerID      string          `json:"worker_id"`
	Date          string          `json:"date"`
	Type          string          `json:"type"`
	Hours         decimal.Decimal `json:"hours"`
	Notes         string          `json:"notes,omitempty"`
	TransactionID string          `json:"transaction_id,omitempty"`
	CreatedAt     string          `json:"created_at"`
}

type GenerateReportRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

type ReportDTO struct {
	ID                 string          `json:"id"`
	WorkerID           string          `json:"worker_id"`
	Year               int             `json:"year"`
	Month              int             `json:"month"`
	TotalReference     decimal.Decimal `json:"total_reference"`
	TotalWorked        decimal.Decimal `json:"total_worked"`
	JustifiedAbsence   decimal.Decimal `json:"justified_absence"`
	Vacation           decimal.Decimal `json:"vacation"`
	Training           decimal.Decimal `json:"training"`
	UnjustifiedAbsence decimal.Decimal `json:"unjustified_absence"`
	HoursBank          decimal.Decimal `json:"hours_bank"`
	BankValue          decimal.Decimal `json:"bank_value"`
	DeductionValue     decimal.Decimal `json:"deduction_value"`
	GeneratedAt        string          `json:"generated_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toWorkerDTO(w attendance.Worker) WorkerDTO {
	dto := WorkerDTO{
		ID:         string(w.ID),
		Name:       w.Name,
		RoleID:     w.RoleID,
		HourlyRate: w.HourlyRate,
		Active:     w.Active,
	}
	if !w.CreatedAt.IsZero() {
		dto.CreatedAt = w.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toScheduleDTO(id generic.WorkerID, shifts []attendance.ReferenceShift) ScheduleDTO {
	dto := ScheduleDTO{WorkerID: string(id), Shifts: make([]ShiftDTO, 0, len(shifts))}
	for _, s := range shifts {
		dto.Shifts = append(dto.Shifts, ShiftDTO{Weekday: int(s.Weekday), Start: s.Start, End: s.End, Break: s.Break})
	}
	sort.Slice(dto.Shifts, func(i, j int) bool { return dto.Shifts[i].Weekday < dto.Shifts[j].Weekday })
	return dto
}

func fromShiftDTOs(dtos []ShiftDTO) []attendance.ReferenceShift {
	shifts := make([]attendance.ReferenceShift, 0, len(dtos))
	for _, d := range dtos {
		shifts = append(shifts, attendance.ReferenceShift{
			Weekday: time.Weekday(d.Weekday),
			Start:   d.Start,
			End:     d.End,
			Break:   d.Break,
		})
	}
	return shifts
}

func toPunchDTO(p attendance.Punch) PunchDTO {
	return PunchDTO{
		ID:        p.ID,
		WorkerID:  string(p.WorkerID),
		Date:      p.Date.String(),
		Time:      p.Time,
		Type:      string(p.Type),
		Timestamp: p.Timestamp.Format(time.RFC3339),
	}
}

func toBalanceDTO(id generic.WorkerID, b generic.Balance) BalanceDTO {
	return BalanceDTO{WorkerID: string(id), Hours: b.Hours, Value: b.Value}
}

func toTransactionDTO(tx generic.Transaction) TransactionDTO {
	return TransactionDTO{
		ID:          string(tx.ID),
		Date:        tx.Date.String(),
		Type:        string(tx.Type),
		Hours:       tx.Hours,
		Value:       tx.Value,
		Description: tx.Description,
		ReferenceID: tx.ReferenceID,
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
}

func toOutcomeDTO(o attendance.DayOutcome) DayOutcomeDTO {
	dto := DayOutcomeDTO{
		WorkerID:  string(o.WorkerID),
		Date:      o.Date.String(),
		State:     string(o.State),
		Reference: o.Reference,
		Worked:    o.Worked,
		Delta:     o.Delta,
	}
	if o.Transaction != nil {
		tx := toTransactionDTO(*o.Transaction)
		dto.Transaction = &tx
	}
	if o.Balance != nil {
		b := toBalanceDTO(o.WorkerID, *o.Balance)
		dto.Balance = &b
	}
	return dto
}

func toRunSummaryDTO(s attendance.RunSummary) RunSummaryDTO {
	dto := RunSummaryDTO{
		Date:     s.Date.String(),
		Posted:   s.Posted(),
		Outcomes: make([]DayOutcomeDTO, 0, len(s.Outcomes)),
	}
	for _, o := range s.Outcomes {
		dto.Outcomes = append(dto.Outcomes, toOutcomeDTO(o))
	}
	if len(s.Failures) > 0 {
		dto.Failures = make(map[string]string, len(s.Failures))
		for id, msg := range s.Failures {
			dto.Failures[string(id)] = msg
		}
	}
	return dto
}

func toAdminEntryDTO(e attendance.AdminEntry) AdminEntryDTO {
	return AdminEntryDTO{
		ID:            e.ID,
		WorkerID:      string(e.WorkerID),
		Date:          e.Date.String(),
		Type:          string(e.Type),
		Hours:         e.Hours,
		Notes:         e.Notes,
		TransactionID: string(e.TransactionID),
		CreatedAt:     e.CreatedAt.Format(time.RFC3339),
	}
}

func toReportDTO(r attendance.MonthlyReport) ReportDTO {
	return ReportDTO{
		ID:                 r.ID,
		WorkerID:           string(r.WorkerID),
		Year:               r.Year,
		Month:              int(r.Month),
		TotalReference:     r.TotalReference,
		TotalWorked:        r.TotalWorked,
		JustifiedAbsence:   r.JustifiedAbsence,
		Vacation:           r.Vacation,
		Training:           r.Training,
		UnjustifiedAbsence: r.UnjustifiedAbsence,
		HoursBank:          r.HoursBank,
		BankValue:          r.BankValue,
		DeductionValue:     r.DeductionValue,
		GeneratedAt:        r.GeneratedAt.Format(time.RFC3339),
	}
}
