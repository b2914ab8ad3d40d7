package attendance_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/hours-bank/attendance"
	"github.com/warp/hours-bank/generic"
)

func TestTimeToMinutes(t *testing.T) {
	assert.Equal(t, 570, attendance.TimeToMinutes("09:30"))
	assert.Equal(t, 1439, attendance.TimeToMinutes("23:59"))
	assert.Equal(t, 0, attendance.TimeToMinutes(""))
	assert.Equal(t, 0, attendance.TimeToMinutes("nine"))
}

func TestParseClock_RejectsOutOfRange(t *testing.T) {
	m, ok := attendance.ParseClock("17:45")
	require.True(t, ok)
	assert.Equal(t, 1065, m)

	for _, bad := range []string{"24:00", "12:60", "", "1200", "-1:00"} {
		_, ok := attendance.ParseClock(bad)
		assert.False(t, ok, bad)
	}
}

func TestBreakMinutes(t *testing.T) {
	assert.Equal(t, 60, attendance.BreakMinutes("13:00-14:00"))
	assert.Equal(t, 45, attendance.BreakMinutes("12:30-13:15"))
	assert.Equal(t, 0, attendance.BreakMinutes(""))
	assert.Equal(t, 0, attendance.BreakMinutes("13:00"))
}

func TestShiftNetHours(t *testing.T) {
	assert.True(t, attendance.ShiftNetHours("09:00", "17:00", "13:00-14:00").Equal(dec("7")))
	assert.True(t, attendance.ShiftNetHours("08:30", "12:45", "").Equal(dec("4.25")))

	// A misconfigured shift is reported as negative, not clamped.
	assert.True(t, attendance.ShiftNetHours("17:00", "09:00", "").Equal(dec("-8")))
}

// =============================================================================
// WORKED HOURS
// =============================================================================

var workday = generic.MustParseDate("2026-03-02")

func punchAt(typ attendance.PunchType, hhmm string) attendance.Punch {
	at, err := time.Parse("2006-01-02 15:04", workday.String()+" "+hhmm)
	if err != nil {
		panic(err)
	}
	return attendance.Punch{WorkerID: "w-1", Date: workday, Time: hhmm, Type: typ, Timestamp: at}
}

func TestWorkedHours_FullDay(t *testing.T) {
	// GIVEN: in 09:00, break 13:00-14:00, out 17:00
	punches := []attendance.Punch{
		punchAt(attendance.PunchIn, "09:00"),
		punchAt(attendance.PunchBreakStart, "13:00"),
		punchAt(attendance.PunchBreakEnd, "14:00"),
		punchAt(attendance.PunchOut, "17:00"),
	}

	// THEN: 4h + 3h
	assert.True(t, attendance.WorkedHours(punches).Equal(dec("7")))
}

func TestWorkedHours_MissingOutLosesOnlyOpenInterval(t *testing.T) {
	punches := []attendance.Punch{
		punchAt(attendance.PunchIn, "09:00"),
		punchAt(attendance.PunchBreakStart, "13:00"),
		punchAt(attendance.PunchBreakEnd, "14:00"),
	}

	assert.True(t, attendance.WorkedHours(punches).Equal(dec("4")))
}

func TestWorkedHours_OrdersByTimestamp(t *testing.T) {
	punches := []attendance.Punch{
		punchAt(attendance.PunchOut, "17:00"),
		punchAt(attendance.PunchBreakEnd, "14:00"),
		punchAt(attendance.PunchIn, "09:00"),
		punchAt(attendance.PunchBreakStart, "13:00"),
	}

	assert.True(t, attendance.WorkedHours(punches).Equal(dec("7")))
}

func TestWorkedHours_LastOpenWins(t *testing.T) {
	// GIVEN: Two "in" punches before a single "out"
	punches := []attendance.Punch{
		punchAt(attendance.PunchIn, "08:00"),
		punchAt(attendance.PunchIn, "09:00"),
		punchAt(attendance.PunchOut, "12:00"),
	}

	// THEN: Only the second one opens the interval
	assert.True(t, attendance.WorkedHours(punches).Equal(dec("3")))
}

func TestWorkedHours_CloseWithoutOpenIgnored(t *testing.T) {
	punches := []attendance.Punch{
		punchAt(attendance.PunchOut, "10:00"),
		punchAt(attendance.PunchIn, "11:00"),
		punchAt(attendance.PunchOut, "12:30"),
	}

	assert.True(t, attendance.WorkedHours(punches).Equal(dec("1.5")))
	assert.True(t, attendance.WorkedHours(nil).Equal(decimal.Zero))
}
