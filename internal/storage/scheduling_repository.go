package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/internal/outbox"
	"github.com/ariel-montero/clinicsched/libs/db"
)

// SchedulingRepository is the read/commit surface the booking engine
// runs against. Reads return rows with cancelled appointments filtered
// out where noted; CreateBatch writes rows and outbox events in one
// transaction.
type SchedulingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewSchedulingRepository(pool *db.Pool, ob *outbox.Repository) *SchedulingRepository {
	return &SchedulingRepository{pool: pool, outbox: ob}
}

func (r *SchedulingRepository) TherapistsBySpecialty(ctx context.Context, specialty model.Specialty) ([]model.Therapist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, specialty, created_at
		FROM therapists
		WHERE specialty = $1
		ORDER BY created_at ASC, id ASC
	`, string(specialty))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var therapists []model.Therapist
	for rows.Next() {
		var t model.Therapist
		if err := rows.Scan(&t.ID, &t.Name, &t.Specialty, &t.CreatedAt); err != nil {
			return nil, err
		}
		therapists = append(therapists, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	if err := r.loadWindows(ctx, therapists); err != nil {
		return nil, err
	}
	return therapists, nil
}

func (r *SchedulingRepository) TherapistByID(ctx context.Context, id string) (*model.Therapist, error) {
	var t model.Therapist
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, specialty, created_at
		FROM therapists
		WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Specialty, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	list := []model.Therapist{t}
	if err := r.loadWindows(ctx, list); err != nil {
		return nil, err
	}
	return &list[0], nil
}

// loadWindows attaches availability windows to each therapist in place.
func (r *SchedulingRepository) loadWindows(ctx context.Context, therapists []model.Therapist) error {
	if len(therapists) == 0 {
		return nil
	}
	ids := make([]string, 0, len(therapists))
	index := make(map[string]int, len(therapists))
	for i, t := range therapists {
		ids = append(ids, t.ID)
		index[t.ID] = i
	}

	rows, err := r.pool.Query(ctx, `
		SELECT therapist_id::text, weekday, start_minute, end_minute
		FROM therapist_availability
		WHERE therapist_id = ANY($1)
		ORDER BY therapist_id, weekday, start_minute
	`, ids)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var w model.AvailabilityWindow
		if err := rows.Scan(&w.TherapistID, &w.Weekday, &w.StartMinute, &w.EndMinute); err != nil {
			return err
		}
		if i, ok := index[w.TherapistID]; ok {
			therapists[i].Windows = append(therapists[i].Windows, w)
		}
	}
	return rows.Err()
}

func (r *SchedulingRepository) TherapistAppointmentsOn(ctx context.Context, date time.Time, therapistID string) ([]model.Appointment, error) {
	return r.appointmentsOn(ctx, date, "therapist_id", therapistID)
}

func (r *SchedulingRepository) MachineAppointmentsOn(ctx context.Context, date time.Time, machineID string) ([]model.Appointment, error) {
	return r.appointmentsOn(ctx, date, "machine_id", machineID)
}

func (r *SchedulingRepository) appointmentsOn(ctx context.Context, date time.Time, column, id string) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, date, start_minute, duration_minutes,
			patient_id::text, COALESCE(patient_name, ''), therapist_id::text, machine_id::text,
			status, COALESCE(notes, ''), batch_id::text, created_at
		FROM appointments
		WHERE `+column+` = $1
			AND date = $2
			AND status <> 'cancelled'
		ORDER BY start_minute ASC
	`, id, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAppointments(rows)
}

func (r *SchedulingRepository) MachinesByType(ctx context.Context, machineType string) ([]model.Machine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, type, status, session_minutes, created_at
		FROM machines
		WHERE status = 'active'
			AND ($1 = '' OR type = $1)
		ORDER BY created_at ASC, id ASC
	`, machineType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var machines []model.Machine
	for rows.Next() {
		var m model.Machine
		if err := rows.Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.SessionMinutes, &m.CreatedAt); err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}
	return machines, rows.Err()
}

func (r *SchedulingRepository) MachineByID(ctx context.Context, id string) (*model.Machine, error) {
	var m model.Machine
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, name, type, status, session_minutes, created_at
		FROM machines
		WHERE id = $1
	`, id).Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.SessionMinutes, &m.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *SchedulingRepository) PatientByCedula(ctx context.Context, cedula string) (*model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, cedula, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
		FROM patients
		WHERE cedula = $1
	`, cedula).Scan(&p.ID, &p.Cedula, &p.Name, &p.Phone, &p.Email, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LastTherapistFor returns the therapist of the patient's most recent
// non-cancelled appointment, or "" when there is no history.
func (r *SchedulingRepository) LastTherapistFor(ctx context.Context, patientID string) (string, error) {
	var therapistID string
	err := r.pool.QueryRow(ctx, `
		SELECT therapist_id::text
		FROM appointments
		WHERE patient_id = $1
			AND therapist_id IS NOT NULL
			AND status <> 'cancelled'
		ORDER BY date DESC, start_minute DESC
		LIMIT 1
	`, patientID).Scan(&therapistID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return therapistID, nil
}

// CreateBatch inserts every appointment row and outbox event in one
// transaction. The exclusion constraints on appointments make a lost
// race surface here as a conflict error rather than a double booking.
func (r *SchedulingRepository) CreateBatch(ctx context.Context, appts []*model.Appointment, events []outbox.Event) error {
	return r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		for _, a := range appts {
			err := tx.QueryRow(ctx, `
				INSERT INTO appointments
					(id, date, start_minute, duration_minutes, patient_id, patient_name,
					 therapist_id, machine_id, status, notes, batch_id)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
				RETURNING created_at
			`, a.ID, a.Date, a.StartMinute, a.DurationMinutes, a.PatientID, a.PatientName,
				a.TherapistID, a.MachineID, string(a.Status), a.Notes, a.BatchID).Scan(&a.CreatedAt)
			if err != nil {
				return err
			}
		}
		for _, evt := range events {
			if err := r.outbox.Insert(ctx, tx, evt); err != nil {
				return err
			}
		}
		return nil
	})
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && (pgErr.Code == "23P01" || pgErr.Code == "23505")
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func scanAppointments(rows pgx.Rows) ([]model.Appointment, error) {
	var appts []model.Appointment
	for rows.Next() {
		var a model.Appointment
		var status string
		if err := rows.Scan(
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
		); err != nil {
			return nil, err
		}
		a.Status = model.AppointmentStatus(status)
		appts = append(appts, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
