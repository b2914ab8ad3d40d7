package attendance

import (
	"context"
	"fmt"
	"time"

	"github.com/warp/hours-bank/generic"
)

// DefaultSchedule is applied once to a worker that has no schedule at all:
// Monday to Friday, 09:00-17:00 with a 13:00-14:00 break.
func DefaultSchedule() []ReferenceShift {
	shifts := make([]ReferenceShift, 0, 5)
	for wd := time.Monday; wd <= time.Friday; wd++ {
		shifts = append(shifts, ReferenceShift{Weekday: wd, Start: "09:00", End: "17:00", Break: "13:00-14:00"})
	}
	return shifts
}

// ScheduleResolver maps (worker, date) to the applicable reference shift.
type ScheduleResolver struct {
	store ScheduleStore
}

func NewScheduleResolver(store ScheduleStore) *ScheduleResolver {
	return &ScheduleResolver{store: store}
}

// ResolveShift returns the shift for date, or false for weekends and
// unscheduled weekdays. It never applies the default schedule.
func (r *ScheduleResolver) ResolveShift(ctx context.Context, id generic.WorkerID, date generic.TimePoint) (ReferenceShift, bool, error) {
	if date.IsWeekend() {
		return ReferenceShift{}, false, nil
	}
	shifts, err := r.store.GetSchedule(ctx, id)
	if err != nil {
		return ReferenceShift{}, false, err
	}
	shift, ok := shiftFor(shifts, date.Weekday())
	return shift, ok, nil
}

// EnsureSchedule saves DefaultSchedule for a worker with no schedule.
// Returns true when the default was applied.
func (r *ScheduleResolver) EnsureSchedule(ctx context.Context, id generic.WorkerID) (bool, error) {
	shifts, err := r.store.GetSchedule(ctx, id)
	if err != nil {
		return false, err
	}
	if len(shifts) > 0 {
		return false, nil
	}
	if err := r.store.SaveSchedule(ctx, id, DefaultSchedule()); err != nil {
		return false, fmt.Errorf("save default schedule: %w", err)
	}
	return true, nil
}

func shiftFor(shifts []ReferenceShift, wd time.Weekday) (ReferenceShift, bool) {
	if wd == time.Saturday || wd == time.Sunday {
		return ReferenceShift{}, false
	}
	for _, s := range shifts {
		if s.Weekday == wd {
			return s, true
		}
	}
	return ReferenceShift{}, false
}

// ValidateSchedule checks a schedule before it is stored.
func ValidateSchedule(shifts []ReferenceShift) error {
	seen := make(map[time.Weekday]bool)
	for _, s := range shifts {
		if s.Weekday < time.Monday || s.Weekday > time.Friday {
			return generic.Invalid("weekday", "%s has no reference shift", s.Weekday)
		}
		if seen[s.Weekday] {
			return generic.Invalid("weekday", "%s listed twice", s.Weekday)
		}
		seen[s.Weekday] = true

		start, ok := ParseClock(s.Start)
		if !ok {
			return generic.Invalid("start", "%q is not HH:MM", s.Start)
		}
		end, ok := ParseClock(s.End)
		if !ok {
			return generic.Invalid("end", "%q is not HH:MM", s.End)
		}
		if end <= start {
			return generic.Invalid("end", "%s must be after start %s on %s", s.End, s.Start, s.Weekday)
		}
		if s.Break == "" {
			continue
		}
		from, to, ok := splitBreak(s.Break)
		if !ok {
			return generic.Invalid("break", "%q is not HH:MM-HH:MM", s.Break)
		}
		bFrom, ok1 := ParseClock(from)
		bTo, ok2 := ParseClock(to)
		if !ok1 || !ok2 {
			return generic.Invalid("break", "%q is not HH:MM-HH:MM", s.Break)
		}
		if bTo < bFrom || bFrom < start || bTo > end {
			return generic.Invalid("break", "%s must lie within %s-%s", s.Break, s.Start, s.End)
		}
	}
	return nil
}
