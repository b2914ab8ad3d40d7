// Package attendance implements time-and-attendance reconciliation on top of
// the generic hours-bank ledger: reference schedules, punches, administrative
// overrides, the daily reconciliation engine and monthly reports.
package attendance

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hours-bank/generic"
)

// =============================================================================
// WORKER
// =============================================================================

// Worker is read by the engine; only the administrative surface writes it.
type Worker struct {
	ID         generic.WorkerID
	Name       string
	RoleID     string
	HourlyRate decimal.Decimal
	Active     bool
	PIN        string
	CreatedAt  time.Time
}

// =============================================================================
// REFERENCE SCHEDULE
// =============================================================================

// ReferenceShift is the contractual shift for one weekday.
// Break is optional and written "HH:MM-HH:MM".
type ReferenceShift struct {
	Weekday time.Weekday
	Start   string
	End     string
	Break   string
}

// NetHours is the shift length minus its break.
func (s ReferenceShift) NetHours() decimal.Decimal {
	return ShiftNetHours(s.Start, s.End, s.Break)
}

// =============================================================================
// PUNCH
// =============================================================================

type PunchType string

const (
	PunchIn         PunchType = "in"
	PunchBreakStart PunchType = "break_start"
	PunchBreakEnd   PunchType = "break_end"
	PunchOut        PunchType = "out"
)

// Valid reports whether t is a known punch type.
func (t PunchType) Valid() bool {
	switch t {
	case PunchIn, PunchBreakStart, PunchBreakEnd, PunchOut:
		return true
	}
	return false
}

// opens reports whether the punch starts a worked interval.
func (t PunchType) opens() bool { return t == PunchIn || t == PunchBreakEnd }

// closes reports whether the punch ends a worked interval.
func (t PunchType) closes() bool { return t == PunchBreakStart || t == PunchOut }

// Punch is an immutable clock event. Time is the wall-clock "HH:MM" used for
// hour arithmetic; Timestamp orders events.
type Punch struct {
	ID        string
	WorkerID  generic.WorkerID
	Date      generic.TimePoint
	Time      string
	Type      PunchType
	Timestamp time.Time
}

// =============================================================================
// ADMINISTRATIVE ENTRY
// =============================================================================

type AdminEntryType string

const (
	AdminJustified   AdminEntryType = "justified"
	AdminVacation    AdminEntryType = "vacation"
	AdminTraining    AdminEntryType = "training"
	AdminUnjustified AdminEntryType = "unjustified"
)

// AllAdminEntryTypes lists every administrative entry type.
var AllAdminEntryTypes = []AdminEntryType{AdminJustified, AdminVacation, AdminTraining, AdminUnjustified}

func (t AdminEntryType) Valid() bool {
	for _, v := range AllAdminEntryTypes {
		if t == v {
			return true
		}
	}
	return false
}

// AdminEntry replaces automatic reconciliation for its (worker, date).
// TransactionID links the hours-bank debit it caused, if any.
type AdminEntry struct {
	ID            string
	WorkerID      generic.WorkerID
	Date          generic.TimePoint
	Type          AdminEntryType
	Hours         decimal.Decimal
	Notes         string
	TransactionID generic.TransactionID
	CreatedAt     time.Time
}

// =============================================================================
// MONTHLY REPORT
// =============================================================================

// MonthlyReport is an immutable snapshot; at most one exists per
// (worker, year, month).
type MonthlyReport struct {
	ID                 string
	WorkerID           generic.WorkerID
	Year               int
	Month              time.Month
	TotalReference     decimal.Decimal
	TotalWorked        decimal.Decimal
	JustifiedAbsence   decimal.Decimal
	Vacation           decimal.Decimal
	Training           decimal.Decimal
	UnjustifiedAbsence decimal.Decimal
	HoursBank          decimal.Decimal
	BankValue          decimal.Decimal
	DeductionValue     decimal.Decimal
	GeneratedAt        time.Time
}

// =============================================================================
// IDEMPOTENCY MARKER
// =============================================================================

// Marker records the last delta posted for a (worker, date).
type Marker struct {
	WorkerID  generic.WorkerID
	Date      generic.TimePoint
	Delta     decimal.Decimal
	UpdatedAt time.Time
}
