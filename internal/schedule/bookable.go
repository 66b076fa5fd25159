package schedule

import (
	"time"

	"github.com/ariel-montero/clinicsched/internal/model"
)

// Interval is a half-open [StartMin, EndMin) span of clinic minutes
// within one day.
type Interval struct {
	StartMin int
	EndMin   int
}

// Window is a candidate's bookable span on a given weekday.
type Window = Interval

const fullDayEnd = 24 * 60

// Bookable is anything the engine can reserve a slot against. Therapists
// constrain slots to their recurring weekly windows; machines have no
// weekly schedule, so they report the whole day. A candidate reporting no
// windows at all is never feasible.
type Bookable interface {
	BookableID() string
	WindowsOn(weekday time.Weekday) []Window
}

type therapistBookable struct {
	t model.Therapist
}

func (b therapistBookable) BookableID() string { return b.t.ID }

func (b therapistBookable) WindowsOn(weekday time.Weekday) []Window {
	var out []Window
	for _, w := range b.t.WindowsOn(weekday) {
		out = append(out, Window{StartMin: w.StartMinute, EndMin: w.EndMinute})
	}
	return out
}

type machineBookable struct {
	m model.Machine
}

func (b machineBookable) BookableID() string { return b.m.ID }

func (b machineBookable) WindowsOn(time.Weekday) []Window {
	if !b.m.Bookable() {
		return nil
	}
	return []Window{{StartMin: 0, EndMin: fullDayEnd}}
}

// BusyIntervals projects a candidate's appointments on one day to their
// occupied spans. Cancelled appointments do not block.
func BusyIntervals(appts []model.Appointment) []Interval {
	var busy []Interval
	for _, a := range appts {
		if !a.Blocks() {
			continue
		}
		busy = append(busy, Interval{StartMin: a.StartMinute, EndMin: a.EndMinute()})
	}
	return busy
}
