package schedule

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
)

// BookingResult reports what was committed for a single-slot request,
// including whether the engine had to move the requested time.
type BookingResult struct {
	Created   []model.Appointment
	Requested Slot
	Actual    Slot
	Adjusted  bool
	Proposal  Proposal
}

// Book commits a single visit (or a combined pair). The search runs
// read-only; the chosen resources are then locked per (resource, date),
// re-verified, and written with their events in one transaction.
func (e *Engine) Book(ctx context.Context, req SlotRequest) (*BookingResult, error) {
	req.normalize()
	if !req.Therapy.Valid() {
		return nil, ErrInvalidRequest
	}
	patient, preferred, err := e.resolvePatient(ctx, req.Criteria)
	if err != nil {
		return nil, err
	}

	prop, err := e.planSlot(ctx, req, preferred)
	if err != nil {
		return nil, err
	}

	release, err := e.locks.AcquireSlots(ctx, e.slotKeys(prop, prop.Date))
	if err != nil {
		return nil, err
	}
	defer release()

	ok, err := e.verifyProposal(ctx, prop)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost the race between planning and locking.
		return nil, ErrSlotConflict
	}

	rows := e.rowsForSlot(prop, req.Criteria, patient, newBatchIDForCombined(req.Therapy))
	events, err := creationEvents(rows, "")
	if err != nil {
		return nil, err
	}
	if err := e.store.CreateBatch(ctx, rows, events); err != nil {
		return nil, err
	}

	created := make([]model.Appointment, 0, len(rows))
	for _, r := range rows {
		created = append(created, *r)
	}
	res := &BookingResult{
		Created:  created,
		Actual:   prop.Slot,
		Adjusted: prop.Adjusted,
		Proposal: *prop,
	}
	if !req.Date.IsZero() && req.StartMin >= 0 {
		res.Requested = Slot{Date: timeutil.Day(req.Date), StartMin: req.StartMin}
	}
	return res, nil
}

// slotKeys lists the lock keys for every resource a proposal touches on
// one date, in sorted-stable order (therapists before machine).
func (e *Engine) slotKeys(prop *Proposal, date time.Time) []string {
	var keys []string
	if prop.TherapistID != "" {
		keys = append(keys, SlotKey("therapist", prop.TherapistID, date))
	}
	if prop.PhysicalID != "" {
		keys = append(keys, SlotKey("therapist", prop.PhysicalID, date))
	}
	if prop.OccupationalID != "" {
		keys = append(keys, SlotKey("therapist", prop.OccupationalID, date))
	}
	keys = append(keys, SlotKey("machine", prop.MachineID, date))
	return keys
}

// verifyProposal re-derives feasibility for exactly the chosen resources.
// Run under the slot lock: a false result means a concurrent booking won.
func (e *Engine) verifyProposal(ctx context.Context, prop *Proposal) (bool, error) {
	for _, id := range prop.therapistIDs() {
		free, err := e.therapistFreeOn(ctx, id, prop.Date, prop.StartMin, prop.DurationMinutes)
		if err != nil {
			return false, err
		}
		if !free {
			return false, nil
		}
	}
	m, err := e.store.MachineByID(ctx, prop.MachineID)
	if err != nil {
		return false, err
	}
	if m == nil {
		return false, nil
	}
	return e.machineFreeOn(ctx, *m, prop.Date, prop.StartMin, prop.DurationMinutes)
}

func (p *Proposal) therapistIDs() []string {
	if p.TherapistID != "" {
		return []string{p.TherapistID}
	}
	return []string{p.PhysicalID, p.OccupationalID}
}

func newBatchIDForCombined(t TherapyType) *string {
	if t != TherapyCombined {
		return nil
	}
	id := uuid.NewString()
	return &id
}

// rowsForSlot materializes the appointment rows a proposal stands for:
// one row for a single specialty, two notes-tagged rows sharing a batch
// id for combined therapy. Preview and commit both go through here so
// they cannot drift.
func (e *Engine) rowsForSlot(prop *Proposal, c Criteria, patient *model.Patient, batchID *string) []*model.Appointment {
	base := model.Appointment{
		Date:            prop.Date,
		StartMinute:     prop.StartMin,
		DurationMinutes: prop.DurationMinutes,
		Status:          model.StatusScheduled,
		Notes:           c.Notes,
		BatchID:         batchID,
		MachineID:       &prop.MachineID,
	}
	if patient != nil {
		base.PatientID = &patient.ID
		base.PatientName = patient.Name
	}

	if prop.TherapistID != "" {
		row := base
		row.ID = uuid.NewString()
		row.TherapistID = &prop.TherapistID
		return []*model.Appointment{&row}
	}

	phys := base
	phys.ID = uuid.NewString()
	phys.TherapistID = &prop.PhysicalID
	phys.Notes = taggedNotes(c.Notes, "physical therapy")
	occ := base
	occ.ID = uuid.NewString()
	occ.TherapistID = &prop.OccupationalID
	occ.Notes = taggedNotes(c.Notes, "occupational therapy")
	return []*model.Appointment{&phys, &occ}
}

func taggedNotes(base, tag string) string {
	if base == "" {
		return tag
	}
	return base + " / " + tag
}

// creationEvents builds one AppointmentCreated event per row, plus a
// SeriesCreated event when seriesBatchID is set.
func creationEvents(rows []*model.Appointment, seriesBatchID string) ([]outbox.Event, error) {
	events := make([]outbox.Event, 0, len(rows)+1)
	for _, a := range rows {
		payload, err := json.Marshal(appointmentPayload(a))
		if err != nil {
			return nil, err
		}
		events = append(events, outbox.Event{
			AggregateType: "appointment",
			AggregateID:   a.ID,
			EventType:     outbox.EventAppointmentCreated,
			Payload:       payload,
		})
	}

	if seriesBatchID != "" {
		ids := make([]string, 0, len(rows))
		dates := make([]string, 0, len(rows))
		for _, a := range rows {
			ids = append(ids, a.ID)
			dates = append(dates, a.Date.Format(timeutil.DateLayout))
		}
		payload, err := json.Marshal(map[string]any{
			"batch_id":        seriesBatchID,
			"appointment_ids": ids,
			"dates":           dates,
		})
		if err != nil {
			return nil, err
		}
		events = append(events, outbox.Event{
			AggregateType: "series",
			AggregateID:   seriesBatchID,
			EventType:     outbox.EventSeriesCreated,
			Payload:       payload,
		})
	}
	return events, nil
}

func appointmentPayload(a *model.Appointment) map[string]any {
	payload := map[string]any{
		"appointment_id":   a.ID,
		"date":             a.Date.Format(timeutil.DateLayout),
		"start_time":       timeutil.Clock(a.StartMinute),
		"duration_minutes": a.DurationMinutes,
		"status":           string(a.Status),
	}
	if a.TherapistID != nil {
		payload["therapist_id"] = *a.TherapistID
	}
	if a.MachineID != nil {
		payload["machine_id"] = *a.MachineID
	}
	if a.PatientID != nil {
		payload["patient_id"] = *a.PatientID
	}
	if a.BatchID != nil {
		payload["batch_id"] = *a.BatchID
	}
	return payload
}
