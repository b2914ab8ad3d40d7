package attendance

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WorkedHours pairs opening punches (in, break_end) with the next closing
// punch (break_start, out) in timestamp order.
//
// A second open before a close replaces the first (last open wins). An open
// with no close is not counted, so a missing "out" only loses that interval.
func WorkedHours(punches []Punch) decimal.Decimal {
	sorted := make([]Punch, len(punches))
	copy(sorted, punches)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	var (
		open    *Punch
		minutes int
	)
	for i := range sorted {
		p := &sorted[i]
		switch {
		case p.Type.opens():
			open = p
		case p.Type.closes() && open != nil:
			minutes += TimeToMinutes(p.Time) - TimeToMinutes(open.Time)
			open = nil
		}
	}
	return MinutesToHours(minutes)
}
