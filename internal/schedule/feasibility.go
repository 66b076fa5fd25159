package schedule

import "time"

// SlotFree reports whether a booking of durationMin starting at startMin
// fits the candidate on the given weekday: the slot must be fully
// contained in one of the candidate's windows and must not overlap any
// busy interval.
func SlotFree(b Bookable, weekday time.Weekday, busy []Interval, startMin, durationMin int) bool {
	if durationMin <= 0 {
		return false
	}
	end := startMin + durationMin

	contained := false
	for _, w := range b.WindowsOn(weekday) {
		if w.StartMin <= startMin && w.EndMin >= end {
			contained = true
			break
		}
	}
	if !contained {
		return false
	}
	return !overlapsAny(startMin, end, busy)
}

func overlapsAny(startMin, endMin int, busy []Interval) bool {
	for _, b := range busy {
		// Half-open intervals: [start,end) overlaps [b.StartMin,b.EndMin)
		// iff start < b.EndMin && b.StartMin < end.
		if startMin < b.EndMin && b.StartMin < endMin {
			return true
		}
	}
	return false
}

// adjacentToAny reports whether the slot is back-to-back with an existing
// interval (zero gap on either side).
func adjacentToAny(startMin, endMin int, busy []Interval) bool {
	for _, b := range busy {
		if b.EndMin == startMin || b.StartMin == endMin {
			return true
		}
	}
	return false
}
