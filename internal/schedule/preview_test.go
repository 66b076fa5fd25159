package schedule

import (
	"context"
	"testing"

	"github.com/ariel-montero/clinicsched/internal/model"
)

// A preview must not write anything and must land on the same slot and
// candidates a subsequent commit would pick.
func TestPreviewSlot_AgreesWithBook(t *testing.T) {
	req := SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        540, // taken, forces the forward scan
	}}

	store := fixtureStore()
	e := newTestEngine(store)

	visits, err := e.PreviewSlot(context.Background(), req)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(store.appts) != 1 {
		t.Fatal("preview must not persist rows")
	}
	if len(store.events) != 0 {
		t.Fatal("preview must not emit events")
	}

	res, err := e.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(visits) != len(res.Created) {
		t.Fatalf("preview produced %d visits, commit %d rows", len(visits), len(res.Created))
	}
	for i := range visits {
		v, a := visits[i], res.Created[i]
		if !v.Date.Equal(a.Date) || v.StartMin != a.StartMinute || v.DurationMinutes != a.DurationMinutes {
			t.Fatalf("visit %d slot mismatch: preview %+v vs commit %+v", i, v, a)
		}
		if (v.TherapistID == "") != (a.TherapistID == nil) {
			t.Fatalf("visit %d therapist mismatch", i)
		}
		if v.TherapistID != "" && v.TherapistID != *a.TherapistID {
			t.Fatalf("visit %d picked %s, commit picked %s", i, v.TherapistID, *a.TherapistID)
		}
	}
}

func TestPreviewSeries_AgreesWithBookSeries(t *testing.T) {
	req := SeriesRequest{
		Criteria: Criteria{
			Therapy:         TherapyCombined,
			DurationMinutes: 30,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-06"), // Friday anchor
			StartMin:        600,
		},
		Occurrences: 3,
	}

	store := seriesStore()
	store.therapists = append(store.therapists, model.Therapist{
		ID:        "th-occ",
		Name:      "Luis",
		Specialty: model.SpecialtyOccupational,
		Windows:   weekdayWindows("th-occ", 540, 1020, 1, 2, 3, 4, 5),
	})

	e := newTestEngine(store)
	visits, err := e.PreviewSeries(context.Background(), req)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(store.appts) != 0 || len(store.events) != 0 {
		t.Fatal("preview must not persist rows or events")
	}

	appts, err := e.BookSeries(context.Background(), req)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(visits) != len(appts) {
		t.Fatalf("preview produced %d visits, commit %d rows", len(visits), len(appts))
	}
	for i := range visits {
		v, a := visits[i], appts[i]
		if !v.Date.Equal(a.Date) || v.StartMin != a.StartMinute {
			t.Fatalf("visit %d slot mismatch: preview %s %d vs commit %s %d",
				i, v.Date.Format("2006-01-02"), v.StartMin, a.Date.Format("2006-01-02"), a.StartMinute)
		}
		if a.TherapistID != nil && v.TherapistID != *a.TherapistID {
			t.Fatalf("visit %d therapist mismatch: %s vs %s", i, v.TherapistID, *a.TherapistID)
		}
	}
}
