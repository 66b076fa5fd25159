package schedule

import (
	"context"
	"errors"
	"testing"

	"github.com/ariel-montero/clinicsched/internal/model"
)

func fixtureStore() *memStore {
	tid := "th-phys"
	return &memStore{
		therapists: []model.Therapist{
			{
				ID:        tid,
				Name:      "Ana",
				Specialty: model.SpecialtyPhysical,
				Windows:   weekdayWindows(tid, 540, 1020, 1, 2, 3, 4, 5), // Mon-Fri 09:00-17:00
			},
		},
		machines: []model.Machine{
			{ID: "m-1", Name: "Cubicle 1", Type: "cubicle", Status: model.MachineActive},
		},
		appts: []model.Appointment{
			{
				ID:              "existing",
				Date:            mustDate("2026-02-02"), // Monday
				StartMinute:     540,
				DurationMinutes: 45,
				TherapistID:     strPtr("th-phys"),
				MachineID:       strPtr("m-1"),
				Status:          model.StatusScheduled,
			},
		},
	}
}

func strPtr(s string) *string { return &s }

func TestProposeSlot_ForwardScansPastExistingBooking(t *testing.T) {
	e := newTestEngine(fixtureStore())

	prop, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        540, // 09:00, taken until 09:45
	}})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if prop.StartMin != 585 {
		t.Fatalf("expected 09:45 slot, got minute %d", prop.StartMin)
	}
	if !prop.Adjusted {
		t.Fatal("forward-scanned slot must be marked adjusted")
	}
	if prop.TherapistID != "th-phys" || prop.MachineID != "m-1" {
		t.Fatalf("unexpected assignment: %+v", prop)
	}
}

func TestProposeSlot_ExactSlotNotAdjusted(t *testing.T) {
	e := newTestEngine(fixtureStore())

	prop, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        600, // 10:00, free
	}})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if prop.StartMin != 600 || prop.Adjusted {
		t.Fatalf("exact free slot should be returned untouched: %+v", prop)
	}
}

func TestProposeSlot_ExactOnlyConflict(t *testing.T) {
	e := newTestEngine(fixtureStore())

	_, err := e.ProposeSlot(context.Background(), SlotRequest{
		Criteria: Criteria{
			Therapy:         TherapyPhysical,
			DurationMinutes: 45,
			MachineType:     "cubicle",
			Date:            mustDate("2026-02-02"),
			StartMin:        540,
		},
		ExactOnly: true,
	})
	if !errors.Is(err, ErrSlotConflict) {
		t.Fatalf("expected ErrSlotConflict, got %v", err)
	}
}

func TestProposeSlot_CombinedNeedsBothSpecialties(t *testing.T) {
	store := fixtureStore()
	// The only occupational therapist is fully booked on Monday even
	// though physical capacity remains.
	oid := "th-occ"
	store.therapists = append(store.therapists, model.Therapist{
		ID:        oid,
		Name:      "Luis",
		Specialty: model.SpecialtyOccupational,
		Windows:   weekdayWindows(oid, 540, 1020, 1),
	})
	store.appts = append(store.appts, model.Appointment{
		ID:              "occ-blocked",
		Date:            mustDate("2026-02-02"),
		StartMinute:     540,
		DurationMinutes: 480,
		TherapistID:     strPtr(oid),
		Status:          model.StatusScheduled,
	})
	store.machines = append(store.machines, model.Machine{
		ID: "m-2", Name: "Cubicle 2", Type: "cubicle", Status: model.MachineActive,
	})
	e := newTestEngine(store)

	_, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyCombined,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        540,
	}})
	if !errors.Is(err, ErrNoSlotAvailable) {
		t.Fatalf("expected ErrNoSlotAvailable, got %v", err)
	}
}

func TestProposeSlot_DayScanFindsNextWorkingDay(t *testing.T) {
	store := fixtureStore()
	// Restrict the therapist to Wednesdays only.
	store.therapists[0].Windows = weekdayWindows("th-phys", 540, 1020, 3)
	e := newTestEngine(store) // "today" is Monday 2026-02-02

	prop, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		StartMin:        -1,
	}})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	if got := prop.Date; !got.Equal(mustDate("2026-02-04")) {
		t.Fatalf("expected Wednesday 2026-02-04, got %s", got.Format("2006-01-02"))
	}
	if prop.StartMin != 540 {
		t.Fatalf("expected the window opening at 09:00, got %d", prop.StartMin)
	}
}

func TestProposeSlot_HorizonExhausted(t *testing.T) {
	store := fixtureStore()
	store.therapists[0].Windows = nil // never selectable
	e := newTestEngine(store)

	_, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		StartMin:        -1,
	}})
	if !errors.Is(err, ErrNoSlotAvailable) {
		t.Fatalf("expected ErrNoSlotAvailable, got %v", err)
	}
}

func TestProposeSlot_UnknownPatient(t *testing.T) {
	e := newTestEngine(fixtureStore())

	_, err := e.ProposeSlot(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:       TherapyPhysical,
		MachineType:   "cubicle",
		PatientCedula: "404-0000000-1",
	}})
	if !errors.Is(err, ErrPatientNotFound) {
		t.Fatalf("expected ErrPatientNotFound, got %v", err)
	}
}

func TestBook_ContinuityOfCarePrefersLastTherapist(t *testing.T) {
	store := fixtureStore()
	// Second physical therapist with an emptier schedule; history still
	// routes the patient to Ana.
	store.therapists = append(store.therapists, model.Therapist{
		ID:        "th-phys-2",
		Name:      "Marta",
		Specialty: model.SpecialtyPhysical,
		Windows:   weekdayWindows("th-phys-2", 540, 1020, 1, 2, 3, 4, 5),
	})
	store.patients = []model.Patient{{ID: "p-1", Cedula: "001-1234567-8", Name: "Jose"}}
	store.appts = append(store.appts, model.Appointment{
		ID:              "history",
		Date:            mustDate("2026-01-26"),
		StartMinute:     600,
		DurationMinutes: 45,
		PatientID:       strPtr("p-1"),
		TherapistID:     strPtr("th-phys"),
		Status:          model.StatusCompleted,
	})
	e := newTestEngine(store)

	res, err := e.Book(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        660,
		PatientCedula:   "001-1234567-8",
	}})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if res.Proposal.TherapistID != "th-phys" {
		t.Fatalf("expected continuity with th-phys, got %s", res.Proposal.TherapistID)
	}
	if len(res.Created) != 1 || res.Created[0].PatientID == nil || *res.Created[0].PatientID != "p-1" {
		t.Fatalf("unexpected created rows: %+v", res.Created)
	}
}

func TestBook_CombinedCreatesTaggedPair(t *testing.T) {
	store := fixtureStore()
	oid := "th-occ"
	store.therapists = append(store.therapists, model.Therapist{
		ID:        oid,
		Name:      "Luis",
		Specialty: model.SpecialtyOccupational,
		Windows:   weekdayWindows(oid, 540, 1020, 1, 2, 3, 4, 5),
	})
	e := newTestEngine(store)

	res, err := e.Book(context.Background(), SlotRequest{Criteria: Criteria{
		Therapy:         TherapyCombined,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        660,
	}})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if len(res.Created) != 2 {
		t.Fatalf("combined therapy must create two rows, got %d", len(res.Created))
	}
	if res.Created[0].BatchID == nil || res.Created[1].BatchID == nil ||
		*res.Created[0].BatchID != *res.Created[1].BatchID {
		t.Fatal("combined pair must share a batch id")
	}
	if res.Created[0].Notes == res.Created[1].Notes {
		t.Fatal("pair rows must carry distinguishing notes")
	}
}

func TestBook_NoDoubleBookingAfterCommit(t *testing.T) {
	store := fixtureStore()
	e := newTestEngine(store)

	req := SlotRequest{Criteria: Criteria{
		Therapy:         TherapyPhysical,
		DurationMinutes: 45,
		MachineType:     "cubicle",
		Date:            mustDate("2026-02-02"),
		StartMin:        600,
	}}
	first, err := e.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("first booking: %v", err)
	}

	// The identical request now lands on the next free 15-minute step.
	second, err := e.Book(context.Background(), req)
	if err != nil {
		t.Fatalf("second booking: %v", err)
	}
	if second.Actual.StartMin == first.Actual.StartMin {
		t.Fatal("second booking double-booked the same slot")
	}
	if !second.Adjusted {
		t.Fatal("second booking should be marked adjusted")
	}

	// Invariant check over everything committed.
	assertNoOverlaps(t, store.appts)
}

func assertNoOverlaps(t *testing.T, appts []model.Appointment) {
	t.Helper()
	for i := range appts {
		for j := i + 1; j < len(appts); j++ {
			a, b := appts[i], appts[j]
			if !a.Blocks() || !b.Blocks() || !a.Date.Equal(b.Date) {
				continue
			}
			sameTherapist := a.TherapistID != nil && b.TherapistID != nil && *a.TherapistID == *b.TherapistID
			sameMachine := a.MachineID != nil && b.MachineID != nil && *a.MachineID == *b.MachineID
			if !sameTherapist && !sameMachine {
				continue
			}
			if a.StartMinute < b.EndMinute() && b.StartMinute < a.EndMinute() {
				t.Fatalf("overlap between %s and %s on %s", a.ID, b.ID, a.Date.Format("2006-01-02"))
			}
		}
	}
}
