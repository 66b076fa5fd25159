package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// seriesPlan is a fully resolved recurring booking: every date, the
// staff assignment(s), and the machine, all proven feasible across the
// whole sequence before anything is written.
type seriesPlan struct {
	criteria Criteria
	dates    []time.Time
	startMin int
	duration int
	patient  *model.Patient

	therapists []model.Therapist // one entry, or physical then occupational
	machine    model.Machine
}

// BookSeries books `occurrences` visits on consecutive business days as
// one transaction. Either every row is written or none are.
func (e *Engine) BookSeries(ctx context.Context, req SeriesRequest) ([]model.Appointment, error) {
	plan, err := e.planSeries(ctx, req)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.AcquireSlots(ctx, plan.lockKeys())
	if err != nil {
		return nil, err
	}
	defer release()

	ok, err := e.verifySeries(ctx, plan)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSlotConflict
	}

	batchID := uuid.NewString()
	rows := e.rowsForSeries(plan, batchID)
	events, err := creationEvents(rows, batchID)
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateBatch(ctx, rows, events); err != nil {
		return nil, err
	}

	out := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		out = append(out, *r)
	}
	return out, nil
}

func (e *Engine) planSeries(ctx context.Context, req SeriesRequest) (*seriesPlan, error) {
	req.normalize()
	if !req.Therapy.Valid() || req.Occurrences <= 0 {
		return nil, ErrInvalidRequest
	}
	patient, preferred, err := e.resolvePatient(ctx, req.Criteria)
	if err != nil {
		return nil, err
	}
	duration, err := e.resolveDuration(ctx, req.Criteria)
	if err != nil {
		return nil, err
	}

	// Anchor: the given date/time, or the earliest single slot the
	// proposer can find.
	anchorDate := req.Date
	startMin := req.StartMin
	if anchorDate.IsZero() || startMin < 0 {
		prop, err := e.planSlot(ctx, SlotRequest{Criteria: req.Criteria}, preferred)
		if err != nil {
			if err == ErrNoSlotAvailable {
				return nil, ErrNoSlotForSeries
			}
			return nil, err
		}
		anchorDate = prop.Date
		startMin = prop.StartMin
	}

	plan := &seriesPlan{
		criteria: req.Criteria,
		dates:    timeutil.BusinessDays(anchorDate, req.Occurrences),
		startMin: startMin,
		duration: duration,
		patient:  patient,
	}

	// Staff: the same scorer as single-slot selection, summed across the
	// sequence, over candidates free on every date.
	if req.Therapy == TherapyCombined {
		phys, err := e.bestSeriesTherapist(ctx, model.SpecialtyPhysical, plan, preferred)
		if err != nil {
			return nil, err
		}
		occ, err := e.bestSeriesTherapist(ctx, model.SpecialtyOccupational, plan, preferred)
		if err != nil {
			return nil, err
		}
		if phys == nil || occ == nil {
			return nil, ErrNoCandidateForSeries
		}
		plan.therapists = []model.Therapist{*phys, *occ}
	} else {
		t, err := e.bestSeriesTherapist(ctx, req.Therapy.Specialty(), plan, preferred)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, ErrNoCandidateForSeries
		}
		plan.therapists = []model.Therapist{*t}
	}

	// Machine: cross-date validated with the same rigor as staff.
	machine, err := e.seriesMachine(ctx, plan)
	if err != nil {
		return nil, err
	}
	if machine == nil {
		return nil, ErrNoSlotForSeries
	}
	plan.machine = *machine
	return plan, nil
}

// bestSeriesTherapist returns the highest cumulative-score candidate
// that is feasible for every date of the plan, or nil.
func (e *Engine) bestSeriesTherapist(ctx context.Context, specialty model.Specialty, plan *seriesPlan, preferredID string) (*model.Therapist, error) {
	candidates, err := e.store.TherapistsBySpecialty(ctx, specialty)
	if err != nil {
		return nil, err
	}

	var best *model.Therapist
	bestScore := 0
	for i := range candidates {
		t := candidates[i]
		total := 0
		qualifies := true
		for _, date := range plan.dates {
			appts, err := e.store.TherapistAppointmentsOn(ctx, date, t.ID)
			if err != nil {
				return nil, err
			}
			busy := BusyIntervals(appts)
			if !SlotFree(therapistBookable{t}, date.Weekday(), busy, plan.startMin, plan.duration) {
				qualifies = false
				break
			}
			total += ScoreTherapist(t, busy, plan.startMin, plan.duration, preferredID)
		}
		if !qualifies {
			continue
		}
		if best == nil || total > bestScore {
			best = &candidates[i]
			bestScore = total
		}
	}
	return best, nil
}

func (e *Engine) seriesMachine(ctx context.Context, plan *seriesPlan) (*model.Machine, error) {
	if plan.criteria.MachineID != "" {
		m, err := e.store.MachineByID(ctx, plan.criteria.MachineID)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, nil
		}
		free, err := e.machineFreeAcross(ctx, *m, plan)
		if err != nil || !free {
			return nil, err
		}
		return m, nil
	}

	machines, err := e.store.MachinesByType(ctx, plan.criteria.MachineType)
	if err != nil {
		return nil, err
	}
	for i := range machines {
		free, err := e.machineFreeAcross(ctx, machines[i], plan)
		if err != nil {
			return nil, err
		}
		if free {
			return &machines[i], nil
		}
	}
	return nil, nil
}

func (e *Engine) machineFreeAcross(ctx context.Context, m model.Machine, plan *seriesPlan) (bool, error) {
	for _, date := range plan.dates {
		free, err := e.machineFreeOn(ctx, m, date, plan.startMin, plan.duration)
		if err != nil {
			return false, err
		}
		if !free {
			return false, nil
		}
	}
	return true, nil
}

func (p *seriesPlan) lockKeys() []string {
	var keys []string
	for _, date := range p.dates {
		for _, t := range p.therapists {
			keys = append(keys, SlotKey("therapist", t.ID, date))
		}
		keys = append(keys, SlotKey("machine", p.machine.ID, date))
	}
	return keys
}

// verifySeries re-checks every (resource, date) pair under the slot lock.
func (e *Engine) verifySeries(ctx context.Context, plan *seriesPlan) (bool, error) {
	for _, date := range plan.dates {
		for _, t := range plan.therapists {
			free, err := e.therapistFreeOn(ctx, t.ID, date, plan.startMin, plan.duration)
			if err != nil {
				return false, err
			}
			if !free {
				return false, nil
			}
		}
		free, err := e.machineFreeOn(ctx, plan.machine, date, plan.startMin, plan.duration)
		if err != nil {
			return false, err
		}
		if !free {
			return false, nil
		}
	}
	return true, nil
}

// rowsForSeries renders the plan through the same row materialization as
// single bookings, one proposal per date.
func (e *Engine) rowsForSeries(plan *seriesPlan, batchID string) []*model.Appointment {
	var batch *string
	if batchID != "" {
		batch = &batchID
	}
	var rows []*model.Appointment
	for _, date := range plan.dates {
		prop := &Proposal{
			Slot:            Slot{Date: date, StartMin: plan.startMin},
			DurationMinutes: plan.duration,
			MachineID:       plan.machine.ID,
			MachineName:     plan.machine.Name,
		}
		if len(plan.therapists) == 2 {
			prop.PhysicalID = plan.therapists[0].ID
			prop.PhysicalName = plan.therapists[0].Name
			prop.OccupationalID = plan.therapists[1].ID
			prop.OccupationalName = plan.therapists[1].Name
		} else {
			prop.TherapistID = plan.therapists[0].ID
			prop.TherapistName = plan.therapists[0].Name
		}
		rows = append(rows, e.rowsForSlot(prop, plan.criteria, plan.patient, batch)...)
	}
	return rows
}
