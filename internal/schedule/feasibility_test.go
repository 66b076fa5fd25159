package schedule

import (
	"testing"
	"time"

	"github.com/ariel-montero/clinicsched/internal/model"
)

func window(weekday, startMin, endMin int) model.AvailabilityWindow {
	return model.AvailabilityWindow{Weekday: weekday, StartMinute: startMin, EndMinute: endMin}
}

func TestSlotFree_TherapistWindows(t *testing.T) {
	th := model.Therapist{
		ID:      "t1",
		Windows: []model.AvailabilityWindow{window(1, 540, 1020)}, // Mon 09:00-17:00
	}
	b := therapistBookable{th}

	cases := []struct {
		name     string
		weekday  time.Weekday
		busy     []Interval
		startMin int
		duration int
		want     bool
	}{
		{"inside window", time.Monday, nil, 600, 45, true},
		{"starts at window open", time.Monday, nil, 540, 45, true},
		{"ends at window close", time.Monday, nil, 975, 45, true},
		{"spills past close", time.Monday, nil, 1000, 45, false},
		{"before open", time.Monday, nil, 500, 45, false},
		{"wrong weekday", time.Tuesday, nil, 600, 45, false},
		{"overlapping booking", time.Monday, []Interval{{600, 645}}, 630, 45, false},
		{"back-to-back after booking", time.Monday, []Interval{{600, 645}}, 645, 45, true},
		{"back-to-back before booking", time.Monday, []Interval{{600, 645}}, 555, 45, true},
		{"zero duration", time.Monday, nil, 600, 0, false},
	}
	for _, tc := range cases {
		if got := SlotFree(b, tc.weekday, tc.busy, tc.startMin, tc.duration); got != tc.want {
			t.Fatalf("%s: SlotFree = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestSlotFree_NoWindowsNeverFeasible(t *testing.T) {
	b := therapistBookable{model.Therapist{ID: "t1"}}
	if SlotFree(b, time.Monday, nil, 600, 30) {
		t.Fatal("therapist without windows must not be selectable")
	}
}

func TestSlotFree_Machine(t *testing.T) {
	active := machineBookable{model.Machine{ID: "m1", Status: model.MachineActive}}
	if !SlotFree(active, time.Sunday, nil, 60, 30) {
		t.Fatal("active machine has no weekly window constraint")
	}
	if SlotFree(active, time.Monday, []Interval{{60, 120}}, 90, 30) {
		t.Fatal("machine overlap must block")
	}

	down := machineBookable{model.Machine{ID: "m2", Status: model.MachineMaintenance}}
	if SlotFree(down, time.Monday, nil, 600, 30) {
		t.Fatal("non-active machine must not be bookable")
	}
}

func TestBusyIntervals_IgnoresCancelled(t *testing.T) {
	appts := []model.Appointment{
		{StartMinute: 540, DurationMinutes: 45, Status: model.StatusScheduled},
		{StartMinute: 600, DurationMinutes: 45, Status: model.StatusCancelled},
		{StartMinute: 660, DurationMinutes: 30, Status: model.StatusCompleted},
	}
	busy := BusyIntervals(appts)
	if len(busy) != 2 {
		t.Fatalf("expected 2 blocking intervals, got %d", len(busy))
	}
	if busy[0] != (Interval{540, 585}) || busy[1] != (Interval{660, 690}) {
		t.Fatalf("unexpected intervals: %+v", busy)
	}
}

func TestSlotFree_Idempotent(t *testing.T) {
	th := model.Therapist{ID: "t1", Windows: []model.AvailabilityWindow{window(1, 540, 1020)}}
	b := therapistBookable{th}
	busy := []Interval{{540, 585}}
	first := SlotFree(b, time.Monday, busy, 585, 45)
	second := SlotFree(b, time.Monday, busy, 585, 45)
	if first != second || !first {
		t.Fatalf("feasibility must be stable over unchanged state: %v then %v", first, second)
	}
}
