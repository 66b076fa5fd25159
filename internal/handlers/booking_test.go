package handlers

import (
	"testing"

	"github.com/ariel-montero/clinicsched/internal/schedule"
)

func TestCriteriaFrom(t *testing.T) {
	c, err := criteriaFrom(bookingRequest{
		TherapyType: "Physical",
		Date:        "2026-03-02",
		StartTime:   "09:30",
		DayStart:    "08:00",
		DayEnd:      "17:00",
	})
	if err != nil {
		t.Fatalf("criteriaFrom failed: %v", err)
	}
	if c.Therapy != schedule.TherapyPhysical {
		t.Fatalf("therapy = %q", c.Therapy)
	}
	if c.Date.Format("2006-01-02") != "2026-03-02" {
		t.Fatalf("date = %v", c.Date)
	}
	if c.StartMin != 570 || c.DayStartMin != 480 || c.DayEndMin != 1020 {
		t.Fatalf("minutes = %d/%d/%d", c.StartMin, c.DayStartMin, c.DayEndMin)
	}
}

func TestCriteriaFrom_OmittedTimeMeansUnscheduled(t *testing.T) {
	c, err := criteriaFrom(bookingRequest{TherapyType: "combined"})
	if err != nil {
		t.Fatalf("criteriaFrom failed: %v", err)
	}
	if c.StartMin != -1 {
		t.Fatalf("expected unscheduled start, got %d", c.StartMin)
	}
	if !c.Date.IsZero() {
		t.Fatalf("expected zero date, got %v", c.Date)
	}
}

func TestCriteriaFrom_Invalid(t *testing.T) {
	cases := []bookingRequest{
		{TherapyType: "massage"},
		{TherapyType: "physical", Date: "02/03/2026"},
		{TherapyType: "physical", StartTime: "25:00"},
		{TherapyType: "physical", DurationMinutes: -15},
	}
	for i, req := range cases {
		if _, err := criteriaFrom(req); err == nil {
			t.Fatalf("case %d: expected error", i)
		}
	}
}
