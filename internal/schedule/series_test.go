package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
)

func seriesStore() *memStore {
	tid := "th-phys"
	return &memStore{
		therapists: []model.Therapist{
			{
				ID:        tid,
				Name:      "Ana",
				Specialty: model.SpecialtyPhysical,
				Windows:   weekdayWindows(tid, 540, 1020, 1, 2, 3, 4, 5),
			},
		},
		machines: []model.Machine{
			{ID: "m-1", Name: "Cubicle 1", Type: "cubicle", Status: model.MachineActive},
		},
		patients: []model.Patient{
			{ID: "p-1", Cedula: "001-1234567-8", Name: "Jose"},
		},
	}
}

func TestBookSeries_SkipsWeekend(t *testing.T) {
	store := seriesStore()
	e := newTestEngine(store)

	appts, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-06"), // Friday
			StartMin:        600,
			PatientCedula:   "001-1234567-8",
		},
		Occurrences: 5,
	})
	if err != nil {
		t.Fatalf("book series: %v", err)
	}
	want := []string{"2026-02-06", "2026-02-09", "2026-02-10", "2026-02-11", "2026-02-12"}
	if len(appts) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(appts))
	}
	for i, a := range appts {
		if a.Date.Format("2006-01-02") != want[i] {
			t.Fatalf("row %d date = %s, want %s", i, a.Date.Format("2006-01-02"), want[i])
		}
		if a.StartMinute != 600 || a.DurationMinutes != 45 {
			t.Fatalf("row %d has wrong slot: %+v", i, a)
		}
		if a.BatchID == nil || *a.BatchID != *appts[0].BatchID {
			t.Fatal("all series rows must share one batch id")
		}
	}

	// One created event per row plus one series event.
	var created, series int
	for _, evt := range store.events {
		switch evt.EventType {
		case outbox.EventAppointmentCreated:
			created++
		case outbox.EventSeriesCreated:
			series++
		}
	}
	if created != 5 || series != 1 {
		t.Fatalf("expected 5 created + 1 series events, got %d + %d", created, series)
	}
}

func TestBookSeries_NoCandidateWhenWindowMissingMidSeries(t *testing.T) {
	store := seriesStore()
	// Drop Wednesday from the only candidate's schedule.
	store.therapists[0].Windows = weekdayWindows("th-phys", 540, 1020, 1, 2, 4, 5)
	e := newTestEngine(store)

	_, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        600,
		},
		Occurrences: 5,
	})
	if !errors.Is(err, ErrNoCandidateForSeries) {
		t.Fatalf("expected ErrNoCandidateForSeries, got %v", err)
	}
	if len(store.appts) != 0 {
		t.Fatalf("failed series must leave no rows, found %d", len(store.appts))
	}
}

func TestBookSeries_AtomicOnWriteFailure(t *testing.T) {
	store := seriesStore()
	store.failCreate = true
	e := newTestEngine(store)

	_, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        600,
		},
		Occurrences: 3,
	})
	if err == nil {
		t.Fatal("expected write failure to surface")
	}
	if len(store.appts) != 0 || len(store.events) != 0 {
		t.Fatal("failed commit must leave no partial rows or events")
	}
}

func TestBookSeries_MachineValidatedAcrossAllDates(t *testing.T) {
	store := seriesStore()
	// The only machine is taken at the series time on the third date.
	store.appts = append(store.appts, model.Appointment{
		ID:              "machine-busy",
		Date:            mustDate("2026-02-04"),
		StartMinute:     600,
		DurationMinutes: 45,
		MachineID:       strPtr("m-1"),
		Status:          model.StatusScheduled,
	})
	e := newTestEngine(store)

	_, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        600,
		},
		Occurrences: 5,
	})
	if !errors.Is(err, ErrNoSlotForSeries) {
		t.Fatalf("expected ErrNoSlotForSeries, got %v", err)
	}
}

func TestBookSeries_CombinedBooksOnePairPerDate(t *testing.T) {
	store := seriesStore()
	oid := "th-occ"
	store.therapists = append(store.therapists, model.Therapist{
		ID:        oid,
		Name:      "Luis",
		Specialty: model.SpecialtyOccupational,
		Windows:   weekdayWindows(oid, 540, 1020, 1, 2, 3, 4, 5),
	})
	e := newTestEngine(store)

	appts, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyCombined,
			DurationMinutes: 30,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        600,
		},
		Occurrences: 3,
	})
	if err != nil {
		t.Fatalf("book series: %v", err)
	}
	if len(appts) != 6 {
		t.Fatalf("expected 2 rows per date, got %d", len(appts))
	}
	if appts[0].BatchID == nil || store.countBatch(*appts[0].BatchID) != 6 {
		t.Fatal("every row of the series must share one batch id")
	}
	assertNoOverlaps(t, store.appts)
}

func TestBookSeries_PicksLeastLoadedCandidate(t *testing.T) {
	store := seriesStore()
	store.therapists = append(store.therapists, model.Therapist{
		ID:        "th-phys-2",
		Name:      "Marta",
		Specialty: model.SpecialtyPhysical,
		Windows:   weekdayWindows("th-phys-2", 540, 1020, 1, 2, 3, 4, 5),
	})
	// Ana carries existing load on two of the series dates.
	for _, d := range []string{"2026-02-02", "2026-02-03"} {
		store.appts = append(store.appts, model.Appointment{
			ID:              "load-" + d,
			Date:            mustDate(d),
			StartMinute:     840,
			DurationMinutes: 45,
			TherapistID:     strPtr("th-phys"),
			Status:          model.StatusScheduled,
		})
	}
	e := newTestEngine(store)

	appts, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        600,
		},
		Occurrences: 3,
	})
	if err != nil {
		t.Fatalf("book series: %v", err)
	}
	for _, a := range appts {
		if a.TherapistID == nil || *a.TherapistID != "th-phys-2" {
			t.Fatalf("expected least-loaded therapist, got %+v", a.TherapistID)
		}
	}
}

func TestBookSeries_AnchorsOnEarliestSlotWhenUnscheduled(t *testing.T) {
	store := seriesStore()
	e := newTestEngine(store) // "today" is Monday 2026-02-02

	appts, err := e.BookSeries(context.Background(), SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			StartMin:        -1,
		},
		Occurrences: 2,
	})
	if err != nil {
		t.Fatalf("book series: %v", err)
	}
	if !appts[0].Date.Equal(mustDate("2026-02-02")) || appts[0].StartMinute != 540 {
		t.Fatalf("expected anchor at Monday 09:00 (window open), got %s %d",
			appts[0].Date.Format("2006-01-02"), appts[0].StartMinute)
	}
}
