package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/libs/db"
)

type TherapistRepository struct {
	pool *db.Pool
}

func NewTherapistRepository(pool *db.Pool) *TherapistRepository {
	return &TherapistRepository{pool: pool}
}

func (r *TherapistRepository) Create(ctx context.Context, name string, specialty model.Specialty, windows []model.AvailabilityWindow) (model.Therapist, error) {
	var t model.Therapist
	err := r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO therapists (name, specialty)
			VALUES ($1, $2)
			RETURNING id::text, name, specialty, created_at
		`, name, string(specialty)).Scan(&t.ID, &t.Name, &t.Specialty, &t.CreatedAt)
		if err != nil {
			return err
		}
		return insertWindows(ctx, tx, t.ID, windows)
	})
	if err != nil {
		return model.Therapist{}, err
	}
	for i := range windows {
		windows[i].TherapistID = t.ID
	}
	t.Windows = windows
	return t, nil
}

// ReplaceWindows swaps the therapist's whole weekly schedule in one
// transaction. Existing appointments are left alone.
func (r *TherapistRepository) ReplaceWindows(ctx context.Context, therapistID string, windows []model.AvailabilityWindow) error {
	return r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		var exists bool
		err := tx.QueryRow(ctx, `SELECT true FROM therapists WHERE id = $1`, therapistID).Scan(&exists)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM therapist_availability WHERE therapist_id = $1`, therapistID)
		if err != nil {
			return err
		}
		return insertWindows(ctx, tx, therapistID, windows)
	})
}

func insertWindows(ctx context.Context, tx pgx.Tx, therapistID string, windows []model.AvailabilityWindow) error {
	for _, w := range windows {
		_, err := tx.Exec(ctx, `
			INSERT INTO therapist_availability (therapist_id, weekday, start_minute, end_minute)
			VALUES ($1, $2, $3, $4)
		`, therapistID, w.Weekday, w.StartMinute, w.EndMinute)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *TherapistRepository) List(ctx context.Context) ([]model.Therapist, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, specialty, created_at
		FROM therapists
		ORDER BY name ASC
	`)
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
	return therapists, rows.Err()
}

// Delete removes the therapist and their availability, and detaches any
// appointments that referenced them so the visit history survives.
func (r *TherapistRepository) Delete(ctx context.Context, id string) error {
	return r.pool.WithinTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE appointments SET therapist_id = NULL WHERE therapist_id = $1
		`, id)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM therapist_availability WHERE therapist_id = $1`, id)
		if err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM therapists WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return pgx.ErrNoRows
		}
		return nil
	})
}

func (r *TherapistRepository) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `SELECT true FROM therapists WHERE id = $1`, id).Scan(&ok)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	return ok, err
}
