// Package schedule implements the clinic's resource allocation engine:
// deciding whether staff and machines are free, ranking candidates,
// searching forward for the earliest workable slot, and committing
// single, combined, and recurring bookings atomically.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

var (
	ErrInvalidRequest       = errors.New("invalid booking request")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrNoSlotAvailable      = errors.New("no feasible slot within the search bounds")
	ErrNoCandidateForSeries = errors.New("no staff candidate is free on every date of the series")
	ErrNoSlotForSeries      = errors.New("no machine or anchor slot satisfies the full series")
	ErrSlotConflict         = errors.New("requested slot conflicts with an existing booking")
	ErrSlotLocked           = errors.New("slot is being booked by a concurrent request")
)

// Store is the repository surface the engine allocates against. Reads are
// plain queries; CreateBatch must persist all rows and events in one
// transaction or none of them.
type Store interface {
	TherapistsBySpecialty(ctx context.Context, specialty model.Specialty) ([]model.Therapist, error)
	TherapistByID(ctx context.Context, id string) (*model.Therapist, error)
	TherapistAppointmentsOn(ctx context.Context, date time.Time, therapistID string) ([]model.Appointment, error)

	MachinesByType(ctx context.Context, machineType string) ([]model.Machine, error)
	MachineByID(ctx context.Context, id string) (*model.Machine, error)
	MachineAppointmentsOn(ctx context.Context, date time.Time, machineID string) ([]model.Appointment, error)

	PatientByCedula(ctx context.Context, cedula string) (*model.Patient, error)
	LastTherapistFor(ctx context.Context, patientID string) (string, error)

	CreateBatch(ctx context.Context, appts []*model.Appointment, events []outbox.Event) error
}

// SlotLocker serializes the check-then-write window for a set of
// (resource, date) keys. Release is safe to call exactly once.
type SlotLocker interface {
	AcquireSlots(ctx context.Context, keys []string) (release func(), err error)
}

// NopLocker performs no locking. Single-writer deployments and tests use
// it; production wires the Redis locker.
type NopLocker struct{}

func (NopLocker) AcquireSlots(context.Context, []string) (func(), error) {
	return func() {}, nil
}

type Engine struct {
	store  Store
	locks  SlotLocker
	logger *slog.Logger
	now    func() time.Time
}

func NewEngine(store Store, locks SlotLocker, logger *slog.Logger) *Engine {
	if locks == nil {
		locks = NopLocker{}
	}
	return &Engine{
		store:  store,
		locks:  locks,
		logger: logger,
		now:    time.Now,
	}
}

// SlotKey is the lock key for one resource on one date.
func SlotKey(kind, id string, date time.Time) string {
	return fmt.Sprintf("slot:%s:%s:%s", kind, id, date.Format(timeutil.DateLayout))
}

// resolvePatient maps the public patient key to a record, and infers the
// preferred therapist from booking history when the request names none.
func (e *Engine) resolvePatient(ctx context.Context, c Criteria) (*model.Patient, string, error) {
	preferred := c.PreferredTherapistID

	var patient *model.Patient
	if c.PatientCedula != "" {
		p, err := e.store.PatientByCedula(ctx, c.PatientCedula)
		if err != nil {
			return nil, "", err
		}
		if p == nil {
			return nil, "", ErrPatientNotFound
		}
		patient = p
		if preferred == "" {
			last, err := e.store.LastTherapistFor(ctx, p.ID)
			if err != nil {
				return nil, "", err
			}
			preferred = last
		}
	}
	return patient, preferred, nil
}

// resolveDuration applies the single duration default: explicit request
// value, then the pinned machine's fixed session length, then the clinic
// default.
func (e *Engine) resolveDuration(ctx context.Context, c Criteria) (int, error) {
	if c.DurationMinutes > 0 {
		return c.DurationMinutes, nil
	}
	if c.MachineID != "" {
		m, err := e.store.MachineByID(ctx, c.MachineID)
		if err != nil {
			return 0, err
		}
		if m != nil && m.SessionMinutes != nil && *m.SessionMinutes > 0 {
			return *m.SessionMinutes, nil
		}
	}
	return DefaultDurationMinutes, nil
}

// bestTherapist returns the highest-scoring feasible therapist of the
// given specialty for one slot, or nil when none is free. Ties keep
// repository enumeration order.
func (e *Engine) bestTherapist(ctx context.Context, specialty model.Specialty, date time.Time, startMin, durationMin int, preferredID string) (*model.Therapist, error) {
	candidates, err := e.store.TherapistsBySpecialty(ctx, specialty)
	if err != nil {
		return nil, err
	}

	var best *model.Therapist
	bestScore := 0
	for i := range candidates {
		t := candidates[i]
		appts, err := e.store.TherapistAppointmentsOn(ctx, date, t.ID)
		if err != nil {
			return nil, err
		}
		busy := BusyIntervals(appts)
		if !SlotFree(therapistBookable{t}, date.Weekday(), busy, startMin, durationMin) {
			continue
		}
		score := ScoreTherapist(t, busy, startMin, durationMin, preferredID)
		if best == nil || score > bestScore {
			best = &candidates[i]
			bestScore = score
		}
	}
	return best, nil
}

// therapistFreeOn re-checks feasibility for a specific therapist id.
// Used under the slot lock before committing.
func (e *Engine) therapistFreeOn(ctx context.Context, therapistID string, date time.Time, startMin, durationMin int) (bool, error) {
	t, err := e.store.TherapistByID(ctx, therapistID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	appts, err := e.store.TherapistAppointmentsOn(ctx, date, t.ID)
	if err != nil {
		return false, err
	}
	return SlotFree(therapistBookable{*t}, date.Weekday(), BusyIntervals(appts), startMin, durationMin), nil
}

// pickMachine selects the machine for a slot: the pinned machine when one
// was requested, otherwise the first feasible active machine of the
// requested type in enumeration order.
func (e *Engine) pickMachine(ctx context.Context, c Criteria, date time.Time, startMin, durationMin int) (*model.Machine, error) {
	if c.MachineID != "" {
		m, err := e.store.MachineByID(ctx, c.MachineID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, nil
		}
		free, err := e.machineFreeOn(ctx, *m, date, startMin, durationMin)
		if err != nil || !free {
			return nil, err
		}
		return m, nil
	}

	machines, err := e.store.MachinesByType(ctx, c.MachineType)
	if err != nil {
		return nil, err
	}
	for i := range machines {
		free, err := e.machineFreeOn(ctx, machines[i], date, startMin, durationMin)
		if err != nil {
			return nil, err
		}
		if free {
			return &machines[i], nil
		}
	}
	return nil, nil
}

func (e *Engine) machineFreeOn(ctx context.Context, m model.Machine, date time.Time, startMin, durationMin int) (bool, error) {
	appts, err := e.store.MachineAppointmentsOn(ctx, date, m.ID)
	if err != nil {
		return false, err
	}
	return SlotFree(machineBookable{m}, date.Weekday(), BusyIntervals(appts), startMin, durationMin), nil
}

// evaluateSlot tests one (date, time) against the full request: the
// required therapist(s) and a machine must all be free simultaneously.
// Returns nil when the slot does not work.
func (e *Engine) evaluateSlot(ctx context.Context, c Criteria, date time.Time, startMin, durationMin int, preferredID string) (*Proposal, error) {
	prop := &Proposal{
		Slot:            Slot{Date: date, StartMin: startMin},
		DurationMinutes: durationMin,
	}

	if c.Therapy == TherapyCombined {
		phys, err := e.bestTherapist(ctx, model.SpecialtyPhysical, date, startMin, durationMin, preferredID)
		if err != nil {
			return nil, err
		}
		if phys == nil {
			return nil, nil
		}
		occ, err := e.bestTherapist(ctx, model.SpecialtyOccupational, date, startMin, durationMin, preferredID)
		if err != nil {
			return nil, err
		}
		if occ == nil {
			return nil, nil
		}
		prop.PhysicalID = phys.ID
		prop.PhysicalName = phys.Name
		prop.OccupationalID = occ.ID
		prop.OccupationalName = occ.Name
	} else {
		t, err := e.bestTherapist(ctx, c.Therapy.Specialty(), date, startMin, durationMin, preferredID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, nil
		}
		prop.TherapistID = t.ID
		prop.TherapistName = t.Name
	}

	m, err := e.pickMachine(ctx, c, date, startMin, durationMin)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, nil
	}
	prop.MachineID = m.ID
	prop.MachineName = m.Name
	return prop, nil
}
