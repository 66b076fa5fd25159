package schedule

import "github.com/ariel-montero/clinicsched/internal/model"

// Scoring weights. Continuity of care dominates, schedule compaction
// beats load balancing, and the per-day booking count only breaks
// otherwise even candidates toward less-loaded staff.
const (
	scorePreferred = 100
	scoreAdjacent  = 50
)

// ScoreTherapist ranks one feasible therapist for one slot on one day.
// Busy must be the therapist's blocking intervals for that day.
func ScoreTherapist(t model.Therapist, busy []Interval, startMin, durationMin int, preferredID string) int {
	s := 0
	if preferredID != "" && t.ID == preferredID {
		s += scorePreferred
	}
	if adjacentToAny(startMin, startMin+durationMin, busy) {
		s += scoreAdjacent
	}
	return s - len(busy)
}
