package schedule

import (
	"time"

	"github.com/ariel-montero/clinicsched/internal/model"
)

type TherapyType string

const (
	TherapyPhysical     TherapyType = "physical"
	TherapyOccupational TherapyType = "occupational"
	TherapyCombined     TherapyType = "combined"
)

func (t TherapyType) Valid() bool {
	switch t {
	case TherapyPhysical, TherapyOccupational, TherapyCombined:
		return true
	}
	return false
}

// Specialty maps a single-specialty therapy type to the staff specialty
// that serves it. Combined has no single specialty.
func (t TherapyType) Specialty() model.Specialty {
	switch t {
	case TherapyPhysical:
		return model.SpecialtyPhysical
	case TherapyOccupational:
		return model.SpecialtyOccupational
	}
	return ""
}

// Search bounds. Scans terminate at the clinic close and the calendar
// horizon regardless of demand.
const (
	DefaultDayStartMin = 8 * 60  // 08:00
	DefaultDayEndMin   = 18 * 60 // 18:00
	sameDayStepMin     = 15
	daySearchStepMin   = 30
	searchHorizonDays  = 30

	// DefaultDurationMinutes applies only when neither the request nor
	// the pinned machine supplies a session length.
	DefaultDurationMinutes = 45
)

// Criteria is the shared shape of a booking request. Zero values mean
// "engine's choice": an empty Date triggers the multi-day scan, a
// negative StartMin means no fixed time, an empty preferred-therapist id
// falls back to the patient's most recent therapist.
type Criteria struct {
	Therapy         TherapyType
	DurationMinutes int

	MachineType string // category to allocate from, ignored when MachineID pinned
	MachineID   string

	Date     time.Time // UTC midnight; zero = unscheduled
	StartMin int       // minutes since midnight; < 0 = unscheduled

	DayStartMin int // preferred time-of-day window, defaults 08:00-18:00
	DayEndMin   int

	PreferredTherapistID string
	PatientCedula        string // public patient key; resolved before any allocation work
	Notes                string
}

func (c *Criteria) normalize() {
	if c.DayStartMin <= 0 {
		c.DayStartMin = DefaultDayStartMin
	}
	if c.DayEndMin <= 0 || c.DayEndMin > fullDayEnd {
		c.DayEndMin = DefaultDayEndMin
	}
}

// SlotRequest books a single visit (one row, or a simultaneous pair for
// combined therapy).
type SlotRequest struct {
	Criteria

	// ExactOnly rejects the request instead of scanning forward when the
	// requested date/time conflicts with an existing booking.
	ExactOnly bool
}

// SeriesRequest books a recurring run of visits on consecutive business
// days, all-or-nothing.
type SeriesRequest struct {
	Criteria

	Occurrences int
}

// Slot is a resolved (date, time) pair.
type Slot struct {
	Date     time.Time
	StartMin int
}

func (s Slot) IsZero() bool { return s.Date.IsZero() }

// Proposal is the outcome of a read-only slot search.
type Proposal struct {
	Slot
	DurationMinutes int

	TherapistID   string // single-specialty
	TherapistName string

	PhysicalID       string // combined pair
	PhysicalName     string
	OccupationalID   string
	OccupationalName string

	MachineID   string
	MachineName string

	// Adjusted marks a proposal that differs from an explicitly requested
	// date/time.
	Adjusted bool
}

// ProjectedVisit is one row of a preview: what the commit path would
// book, without persisting anything.
type ProjectedVisit struct {
	Date            time.Time
	StartMin        int
	DurationMinutes int
	TherapistID     string
	TherapistName   string
	MachineID       string
	MachineName     string
	Notes           string
}
