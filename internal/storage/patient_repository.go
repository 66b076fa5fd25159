package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/libs/db"
)

type PatientRepository struct {
	pool *db.Pool
}

func NewPatientRepository(pool *db.Pool) *PatientRepository {
	return &PatientRepository{pool: pool}
}

// Create registers a patient keyed by cedula. A repeated cedula updates
// the contact fields instead of failing, since intake forms get
// resubmitted.
func (r *PatientRepository) Create(ctx context.Context, cedula, name, phone, email string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		INSERT INTO patients (cedula, name, phone, email)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cedula) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			email = EXCLUDED.email
		RETURNING id::text, cedula, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
	`, cedula, name, phone, email).Scan(&p.ID, &p.Cedula, &p.Name, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (r *PatientRepository) GetByCedula(ctx context.Context, cedula string) (model.Patient, error) {
	var p model.Patient
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, cedula, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
		FROM patients
		WHERE cedula = $1
	`, cedula).Scan(&p.ID, &p.Cedula, &p.Name, &p.Phone, &p.Email, &p.CreatedAt)
	if err != nil {
		return model.Patient{}, err
	}
	return p, nil
}

func (r *PatientRepository) List(ctx context.Context, limit int) ([]model.Patient, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, cedula, name, COALESCE(phone, ''), COALESCE(email, ''), created_at
		FROM patients
		ORDER BY name ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var patients []model.Patient
	for rows.Next() {
		var p model.Patient
		if err := rows.Scan(&p.ID, &p.Cedula, &p.Name, &p.Phone, &p.Email, &p.CreatedAt); err != nil {
			return nil, err
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}

func (r *PatientRepository) Exists(ctx context.Context, cedula string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM patients WHERE cedula = $1`, cedula).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return ok, err
}
