package storage

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/ariel-montero/clinicsched/libs/db"
)

// IdempotencyRepository stores the recorded response for booking
// requests that carried an Idempotency-Key, so client retries replay
// the original outcome instead of double-booking.
type IdempotencyRepository struct {
	pool *db.Pool
}

type IdempotencyRecord struct {
	Key             string
	StatusCode      int
	ResponsePayload []byte
}

func NewIdempotencyRepository(pool *db.Pool) *IdempotencyRepository {
	return &IdempotencyRepository{pool: pool}
}

func (r *IdempotencyRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// LockKey claims the key inside tx, blocking concurrent retries until
// the first request commits. The bool reports whether the key had
// already been finalized.
func (r *IdempotencyRepository) LockKey(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, bool, error) {
	rec, err := r.selectForUpdate(ctx, tx, key)
	if err == nil {
		return rec, rec.StatusCode != 0, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return IdempotencyRecord{}, false, err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (idempotency_key)
		VALUES ($1)
		ON CONFLICT (idempotency_key) DO NOTHING
	`, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}

	rec, err = r.selectForUpdate(ctx, tx, key)
	if err != nil {
		return IdempotencyRecord{}, false, err
	}
	return rec, rec.StatusCode != 0, nil
}

func (r *IdempotencyRepository) Finalize(ctx context.Context, tx pgx.Tx, key string, statusCode int, response []byte) error {
	_, err := tx.Exec(ctx, `
		UPDATE booking_idempotency_keys
		SET status_code = $2,
			response_payload = $3,
			updated_at = now()
		WHERE idempotency_key = $1
	`, key, statusCode, response)
	return err
}

func (r *IdempotencyRepository) selectForUpdate(ctx context.Context, tx pgx.Tx, key string) (IdempotencyRecord, error) {
	var rec IdempotencyRecord
	var responseText string
	err := tx.QueryRow(ctx, `
		SELECT idempotency_key,
			COALESCE(status_code, 0),
			COALESCE(response_payload::text, '')
		FROM booking_idempotency_keys
		WHERE idempotency_key = $1
		FOR UPDATE
	`, key).Scan(&rec.Key, &rec.StatusCode, &responseText)
	if err != nil {
		return IdempotencyRecord{}, err
	}
	if responseText != "" {
		rec.ResponsePayload = []byte(responseText)
	}
	return rec, nil
}
