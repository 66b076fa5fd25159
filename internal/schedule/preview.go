package schedule

import (
	"context"

	"github.com/ariel-montero/clinicsched/internal/model"
)

// PreviewSlot projects what Book would commit for the request, without
// persisting. It shares the planner and row materialization with the
// commit path, so a preview and an immediate booking against unchanged
// data always agree.
func (e *Engine) PreviewSlot(ctx context.Context, req SlotRequest) ([]ProjectedVisit, error) {
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

	rows := e.rowsForSlot(prop, req.Criteria, patient, nil)
	names := map[string]string{
		prop.TherapistID:    prop.TherapistName,
		prop.PhysicalID:     prop.PhysicalName,
		prop.OccupationalID: prop.OccupationalName,
	}
	return visitsFromRows(rows, names, prop.MachineName), nil
}

// PreviewSeries projects the full recurring series the commit path would
// create.
func (e *Engine) PreviewSeries(ctx context.Context, req SeriesRequest) ([]ProjectedVisit, error) {
	plan, err := e.planSeries(ctx, req)
	if err != nil {
		return nil, err
	}

	rows := e.rowsForSeries(plan, "")
	names := make(map[string]string, len(plan.therapists))
	for _, t := range plan.therapists {
		names[t.ID] = t.Name
	}
	return visitsFromRows(rows, names, plan.machine.Name), nil
}

func visitsFromRows(rows []*model.Appointment, therapistNames map[string]string, machineName string) []ProjectedVisit {
	visits := make([]ProjectedVisit, 0, len(rows))
	for _, r := range rows {
		v := ProjectedVisit{
			Date:            r.Date,
			StartMin:        r.StartMinute,
			DurationMinutes: r.DurationMinutes,
			MachineName:     machineName,
			Notes:           r.Notes,
		}
		if r.TherapistID != nil {
			v.TherapistID = *r.TherapistID
			v.TherapistName = therapistNames[*r.TherapistID]
		}
		if r.MachineID != nil {
			v.MachineID = *r.MachineID
		}
		visits = append(visits, v)
	}
	return visits
}
