package attendance

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var sixty = decimal.NewFromInt(60)

// TimeToMinutes converts "HH:MM" to minutes since midnight.
// Empty or malformed input yields 0; callers treat 0 from an optional field
// as "unspecified", not as midnight.
func TimeToMinutes(hhmm string) int {
	h, m, ok := splitClock(hhmm)
	if !ok {
		return 0
	}
	return h*60 + m
}

// ParseClock is the strict form of TimeToMinutes used at input boundaries.
func ParseClock(hhmm string) (int, bool) {
	h, m, ok := splitClock(hhmm)
	if !ok || h > 23 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func splitClock(hhmm string) (int, int, bool) {
	hs, ms, found := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !found {
		return 0, 0, false
	}
	h, err := strconv.Atoi(hs)
	if err != nil || h < 0 {
		return 0, 0, false
	}
	m, err := strconv.Atoi(ms)
	if err != nil || m < 0 {
		return 0, 0, false
	}
	return h, m, true
}

// BreakMinutes returns the length of a "HH:MM-HH:MM" break, 0 when absent.
func BreakMinutes(breakRange string) int {
	from, to, ok := splitBreak(breakRange)
	if !ok {
		return 0
	}
	return TimeToMinutes(to) - TimeToMinutes(from)
}

func splitBreak(breakRange string) (string, string, bool) {
	if strings.TrimSpace(breakRange) == "" {
		return "", "", false
	}
	return strings.Cut(breakRange, "-")
}

// MinutesToHours converts a minute count to fractional hours.
func MinutesToHours(minutes int) decimal.Decimal {
	return decimal.NewFromInt(int64(minutes)).Div(sixty)
}

// ShiftNetHours is (end - start - break) in hours. A misconfigured shift
// (end before start) yields a negative result; it is not clamped.
func ShiftNetHours(start, end, breakRange string) decimal.Decimal {
	return MinutesToHours(TimeToMinutes(end) - TimeToMinutes(start) - BreakMinutes(breakRange))
}
