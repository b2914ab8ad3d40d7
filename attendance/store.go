/*
store.go - Repository contract for the attendance domain

The engine and report generator receive a Repository instead of reaching
into shared state. Two implementations exist:
  - store/memory: in-process maps with a JSON snapshot (LoadAll/SaveAll)
  - store/sqlite: SQLite with embedded migrations

Lookups of single records return generic.ErrEntityNotFound,
ErrAdminEntryNotFound or ErrReportNotFound when nothing matches. Range
queries are inclusive on both ends.
*/
package attendance

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/hours-bank/generic"
)

type WorkerStore interface {
	GetWorker(ctx context.Context, id generic.WorkerID) (Worker, error)
	WorkerByPIN(ctx context.Context, pin string) (Worker, error)
	ListWorkers(ctx context.Context) ([]Worker, error)
	SaveWorker(ctx context.Context, w Worker) error
}

type ScheduleStore interface {
	// GetSchedule returns nil when the worker has no schedule at all.
	GetSchedule(ctx context.Context, id generic.WorkerID) ([]ReferenceShift, error)
	SaveSchedule(ctx context.Context, id generic.WorkerID, shifts []ReferenceShift) error
}

type PunchStore interface {
	AppendPunch(ctx context.Context, p Punch) error
	PunchesInRange(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]Punch, error)
}

type AdminEntryStore interface {
	SaveAdminEntry(ctx context.Context, e AdminEntry) error
	GetAdminEntry(ctx context.Context, id string) (AdminEntry, error)
	DeleteAdminEntry(ctx context.Context, id string) error
	AdminEntriesInRange(ctx context.Context, id generic.WorkerID, from, to generic.TimePoint) ([]AdminEntry, error)
}

type MarkerStore interface {
	GetMarker(ctx context.Context, id generic.WorkerID, date generic.TimePoint) (Marker, bool, error)
	SaveMarker(ctx context.Context, m Marker) error
}

type ReportStore interface {
	// ReplaceReport stores r, dropping any report for the same worker and month.
	ReplaceReport(ctx context.Context, r MonthlyReport) error
	GetReport(ctx context.Context, id generic.WorkerID, year int, month time.Month) (MonthlyReport, error)
	ListReports(ctx context.Context, id generic.WorkerID) ([]MonthlyReport, error)
}

// Repository is everything the engine persists.
type Repository interface {
	generic.AccountStore
	WorkerStore
	ScheduleStore
	PunchStore
	AdminEntryStore
	MarkerStore
	ReportStore

	// WipeTransactional clears punches, administrative entries, hours-bank
	// accounts, markers and reports. Workers and schedules survive.
	WipeTransactional(ctx context.Context) error
}

// WorkerRates prices ledger postings from the worker registry.
type WorkerRates struct {
	Workers WorkerStore
}

func (r WorkerRates) HourlyRate(ctx context.Context, id generic.WorkerID) (decimal.Decimal, error) {
	w, err := r.Workers.GetWorker(ctx, id)
	if err != nil {
		return decimal.Zero, err
	}
	return w.HourlyRate, nil
}

var _ generic.RateSource = WorkerRates{}
