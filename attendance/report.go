package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/hours-bank/generic"
)

// ReportGenerator aggregates one worker's month into a MonthlyReport.
// It reads punches, administrative entries and the ledger; the only thing
// it writes is the report itself.
type ReportGenerator struct {
	repo      Repository
	schedules *ScheduleResolver
	ledger    *generic.Ledger
	clock     generic.Clock
	logger    *zap.Logger
}

func NewReportGenerator(repo Repository, schedules *ScheduleResolver, ledger *generic.Ledger, clock generic.Clock, logger *zap.Logger) *ReportGenerator {
	return &ReportGenerator{repo: repo, schedules: schedules, ledger: ledger, clock: clock, logger: logger}
}

// Generate builds and stores the report for (worker, year, month),
// replacing an earlier one.
//
// Each scheduled weekday adds its reference hours. A day carrying
// administrative entries adds their hours to the matching category and its
// punches are ignored; any other day adds its worked hours.
func (g *ReportGenerator) Generate(ctx context.Context, id generic.WorkerID, year int, month time.Month) (MonthlyReport, error) {
	if month < time.January || month > time.December {
		return MonthlyReport{}, generic.Invalid("month", "%d is not a month", month)
	}
	if year < 1 {
		return MonthlyReport{}, generic.Invalid("year", "%d is not a year", year)
	}
	worker, err := g.repo.GetWorker(ctx, id)
	if err != nil {
		return MonthlyReport{}, err
	}

	applied, err := g.schedules.EnsureSchedule(ctx, id)
	if err != nil {
		return MonthlyReport{}, err
	}
	if applied {
		g.logger.Info("default schedule applied", zap.String("worker_id", string(id)))
	}
	shifts, err := g.repo.GetSchedule(ctx, id)
	if err != nil {
		return MonthlyReport{}, err
	}

	from, to := generic.StartOfMonth(year, month), generic.EndOfMonth(year, month)
	punches, err := g.repo.PunchesInRange(ctx, id, from, to)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("load punches: %w", err)
	}
	entries, err := g.repo.AdminEntriesInRange(ctx, id, from, to)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("load administrative entries: %w", err)
	}

	punchesByDay := make(map[string][]Punch)
	for _, p := range punches {
		punchesByDay[p.Date.String()] = append(punchesByDay[p.Date.String()], p)
	}
	entriesByDay := make(map[string][]AdminEntry)
	for _, e := range entries {
		entriesByDay[e.Date.String()] = append(entriesByDay[e.Date.String()], e)
	}

	r := MonthlyReport{WorkerID: id, Year: year, Month: month}
	for _, day := range generic.DaysBetween(from, to) {
		shift, ok := shiftFor(shifts, day.Weekday())
		if !ok {
			continue
		}
		r.TotalReference = r.TotalReference.Add(shift.NetHours())

		dayEntries := entriesByDay[day.String()]
		if len(dayEntries) == 0 {
			r.TotalWorked = r.TotalWorked.Add(WorkedHours(punchesByDay[day.String()]))
			continue
		}
		for _, e := range dayEntries {
			switch e.Type {
			case AdminJustified:
				r.JustifiedAbsence = r.JustifiedAbsence.Add(e.Hours)
			case AdminVacation:
				r.Vacation = r.Vacation.Add(e.Hours)
			case AdminTraining:
				r.Training = r.Training.Add(e.Hours)
			case AdminUnjustified:
				r.UnjustifiedAbsence = r.UnjustifiedAbsence.Add(e.Hours)
			}
		}
	}

	acct, err := g.ledger.BalanceOf(ctx, id)
	if err != nil {
		return MonthlyReport{}, fmt.Errorf("read hours bank: %w", err)
	}
	r.HoursBank = acct.Hours
	r.BankValue = acct.Value
	r.DeductionValue = r.UnjustifiedAbsence.Mul(worker.HourlyRate)

	r = roundReport(r)
	r.ID = uuid.NewString()
	r.GeneratedAt = g.clock.Now()

	if err := g.repo.ReplaceReport(ctx, r); err != nil {
		return MonthlyReport{}, fmt.Errorf("store report: %w", err)
	}
	g.logger.Info("monthly report generated",
		zap.String("worker_id", string(id)),
		zap.Int("year", year),
		zap.Int("month", int(month)),
		zap.String("hours_bank", r.HoursBank.StringFixed(2)),
	)
	return r, nil
}

func roundReport(r MonthlyReport) MonthlyReport {
	for _, d := range []*decimal.Decimal{
		&r.TotalReference, &r.TotalWorked, &r.JustifiedAbsence, &r.Vacation, &r.Training,
		&r.UnjustifiedAbsence, &r.HoursBank, &r.BankValue, &r.DeductionValue,
	} {
		*d = d.Round(2)
	}
	return r
}
