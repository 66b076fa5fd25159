package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/internal/timeutil"
	"github.com/ariel-montero/clinicsched/libs/db"
)

// AppointmentRepository serves the plain CRUD side of the calendar:
// listing, rescheduling and cancelling rows that already exist. New
// bookings go through the engine instead.
type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, ob *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: ob}
}

// ListFilter narrows List. Zero values mean "no filter"; Date is
// compared at day precision.
type ListFilter struct {
	Date        time.Time
	TherapistID string
	MachineID   string
	PatientID   string
	Status      string
	Limit       int
}

func (r *AppointmentRepository) List(ctx context.Context, f ListFilter) ([]model.Appointment, error) {
	if f.Limit <= 0 {
		f.Limit = 200
	}
	var date *time.Time
	if !f.Date.IsZero() {
		d := timeutil.Day(f.Date)
		date = &d
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, date, start_minute, duration_minutes,
			patient_id::text, COALESCE(patient_name, ''), therapist_id::text, machine_id::text,
			status, COALESCE(notes, ''), batch_id::text, created_at
		FROM appointments
		WHERE ($1::date IS NULL OR date = $1)
			AND ($2 = '' OR therapist_id::text = $2)
			AND ($3 = '' OR machine_id::text = $3)
			AND ($4 = '' OR patient_id::text = $4)
			AND ($5 = '' OR status = $5)
		ORDER BY date ASC, start_minute ASC
		LIMIT $6
	`, date, f.TherapistID, f.MachineID, f.PatientID, f.Status, f.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, date, start_minute, duration_minutes,
			patient_id::text, COALESCE(patient_name, ''), therapist_id::text, machine_id::text,
			status, COALESCE(notes, ''), batch_id::text, created_at
		FROM appointments
		WHERE id = $1
	`, id)
	if err != nil {
		return model.Appointment{}, err
	}
	defer rows.Close()
	appts, err := scanAppointments(rows)
	if err != nil {
		return model.Appointment{}, err
	}
	if len(appts) == 0 {
		return model.Appointment{}, pgx.ErrNoRows
	}
	return appts[0], nil
}

// AppointmentUpdate carries the fields a reschedule may change. Nil
// pointers leave the current value in place.
type AppointmentUpdate struct {
	Date            *time.Time
	StartMinute     *int
	DurationMinutes *int
	TherapistID     *string
	MachineID       *string
	Status          *model.AppointmentStatus
	Notes           *string
}

// Update applies the patch under FOR UPDATE and records an updated (or
// cancelled, when the new status is cancelled) event in the same
// transaction.
func (r *AppointmentRepository) Update(ctx context.Context, id string, patch AppointmentUpdate) (model.Appointment, error) {
	var updated model.Appointment
	err := r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		current, err := r.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}

		if patch.Date != nil {
			current.Date = timeutil.Day(*patch.Date)
		}
		if patch.StartMinute != nil {
			current.StartMinute = *patch.StartMinute
		}
		if patch.DurationMinutes != nil {
			current.DurationMinutes = *patch.DurationMinutes
		}
		if patch.TherapistID != nil {
			if *patch.TherapistID == "" {
				current.TherapistID = nil
			} else {
				current.TherapistID = patch.TherapistID
			}
		}
		if patch.MachineID != nil {
			if *patch.MachineID == "" {
				current.MachineID = nil
			} else {
				current.MachineID = patch.MachineID
			}
		}
		if patch.Status != nil {
			current.Status = *patch.Status
		}
		if patch.Notes != nil {
			current.Notes = *patch.Notes
		}

		_, err = tx.Exec(ctx, `
			UPDATE appointments
			SET date = $2,
				start_minute = $3,
				duration_minutes = $4,
				therapist_id = $5,
				machine_id = $6,
				status = $7,
				notes = $8
			WHERE id = $1
		`, current.ID, current.Date, current.StartMinute, current.DurationMinutes,
			current.TherapistID, current.MachineID, string(current.Status), current.Notes)
		if err != nil {
			return err
		}

		eventType := outbox.EventAppointmentUpdated
		if current.Status == model.StatusCancelled {
			eventType = outbox.EventAppointmentCancelled
		}
		if err := r.insertEvent(ctx, tx, eventType, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	return updated, nil
}

// Cancel marks the row cancelled, which frees its slot for future
// bookings while keeping the history.
func (r *AppointmentRepository) Cancel(ctx context.Context, id string) (model.Appointment, error) {
	status := model.StatusCancelled
	return r.Update(ctx, id, AppointmentUpdate{Status: &status})
}

// Delete removes the row outright and records a cancelled event, since
// downstream consumers only care that the slot no longer stands.
func (r *AppointmentRepository) Delete(ctx context.Context, id string) error {
	return r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		current, err := r.getForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM appointments WHERE id = $1`, id); err != nil {
			return err
		}
		return r.insertEvent(ctx, tx, outbox.EventAppointmentCancelled, current)
	})
}

func (r *AppointmentRepository) getForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	var a model.Appointment
	var status string
	err := tx.QueryRow(ctx, `
		SELECT id::text, date, start_minute, duration_minutes,
			patient_id::text, COALESCE(patient_name, ''), therapist_id::text, machine_id::text,
			status, COALESCE(notes, ''), batch_id::text, created_at
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(
		&a.ID,
		&a.Date,
		&a.StartMinute,
		&a.DurationMinutes,
		&a.PatientID,
		&a.PatientName,
		&a.TherapistID,
		&a.MachineID,
		&status,
		&a.Notes,
		&a.BatchID,
		&a.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.AppointmentStatus(status)
	return a, nil
}

func (r *AppointmentRepository) insertEvent(ctx context.Context, tx pgx.Tx, eventType string, a model.Appointment) error {
	payload, err := json.Marshal(map[string]any{
		"appointment_id": a.ID,
		"date":           a.Date.Format(timeutil.DateLayout),
		"start_time":     timeutil.Clock(a.StartMinute),
		"duration":       a.DurationMinutes,
		"status":         string(a.Status),
	})
	if err != nil {
		return err
	}
	return r.outbox.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     eventType,
		Payload:       payload,
	})
}
