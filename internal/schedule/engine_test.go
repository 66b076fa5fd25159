package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// memStore is an in-memory Store for engine tests. CreateBatch appends
// all rows or, when failCreate is set, fails without touching state,
// mirroring the transactional contract of the real repository.
type memStore struct {
	therapists []model.Therapist
	machines   []model.Machine
	patients   []model.Patient
	appts      []model.Appointment

	failCreate bool
	events     []outbox.Event
}

func (s *memStore) TherapistsBySpecialty(_ context.Context, specialty model.Specialty) ([]model.Therapist, error) {
	var out []model.Therapist
	for _, t := range s.therapists {
		if t.Specialty == specialty {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *memStore) TherapistByID(_ context.Context, id string) (*model.Therapist, error) {
	for i := range s.therapists {
		if s.therapists[i].ID == id {
			t := s.therapists[i]
			return &t, nil
		}
	}
	return nil, nil
}

func (s *memStore) TherapistAppointmentsOn(_ context.Context, date time.Time, therapistID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.TherapistID != nil && *a.TherapistID == therapistID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) MachinesByType(_ context.Context, machineType string) ([]model.Machine, error) {
	var out []model.Machine
	for _, m := range s.machines {
		if m.Status == model.MachineActive && (machineType == "" || m.Type == machineType) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) MachineByID(_ context.Context, id string) (*model.Machine, error) {
	for i := range s.machines {
		if s.machines[i].ID == id {
			m := s.machines[i]
			return &m, nil
		}
	}
	return nil, nil
}

func (s *memStore) MachineAppointmentsOn(_ context.Context, date time.Time, machineID string) ([]model.Appointment, error) {
	var out []model.Appointment
	for _, a := range s.appts {
		if a.MachineID != nil && *a.MachineID == machineID && a.Date.Equal(date) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) PatientByCedula(_ context.Context, cedula string) (*model.Patient, error) {
	for i := range s.patients {
		if s.patients[i].Cedula == cedula {
			p := s.patients[i]
			return &p, nil
		}
	}
	return nil, nil
}

func (s *memStore) LastTherapistFor(_ context.Context, patientID string) (string, error) {
	var last *model.Appointment
	for i := range s.appts {
		a := s.appts[i]
		if a.PatientID == nil || *a.PatientID != patientID || a.TherapistID == nil {
			continue
		}
		if last == nil || a.Date.After(last.Date) ||
			(a.Date.Equal(last.Date) && a.StartMinute > last.StartMinute) {
			last = &s.appts[i]
		}
	}
	if last == nil {
		return "", nil
	}
	return *last.TherapistID, nil
}

func (s *memStore) CreateBatch(_ context.Context, appts []*model.Appointment, events []outbox.Event) error {
	if s.failCreate {
		return errors.New("write failed")
	}
	for _, a := range appts {
		s.appts = append(s.appts, *a)
	}
	s.events = append(s.events, events...)
	return nil
}

func (s *memStore) countBatch(batchID string) int {
	n := 0
	for _, a := range s.appts {
		if a.BatchID != nil && *a.BatchID == batchID {
			n++
		}
	}
	return n
}

func mustDate(s string) time.Time {
	d, err := timeutil.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func weekdayWindows(therapistID string, startMin, endMin int, weekdays ...int) []model.AvailabilityWindow {
	var out []model.AvailabilityWindow
	for _, wd := range weekdays {
		out = append(out, model.AvailabilityWindow{
			TherapistID: therapistID,
			Weekday:     wd,
			StartMinute: startMin,
			EndMinute:   endMin,
		})
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(store *memStore) *Engine {
	e := NewEngine(store, NopLocker{}, testLogger())
	e.now = func() time.Time { return mustDate("2026-02-02") } // a Monday
	return e
}
