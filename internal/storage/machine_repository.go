package storage

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ariel-montero/clinicsched/internal/model"
	"github.com/ariel-montero/clinicsched/libs/db"
)

type MachineRepository struct {
	pool *db.Pool
}

func NewMachineRepository(pool *db.Pool) *MachineRepository {
	return &MachineRepository{pool: pool}
}

func (r *MachineRepository) Create(ctx context.Context, name, machineType string, sessionMinutes *int) (model.Machine, error) {
	var m model.Machine
	err := r.pool.QueryRow(ctx, `
		INSERT INTO machines (name, type, status, session_minutes)
		VALUES ($1, $2, 'active', $3)
		RETURNING id::text, name, type, status, session_minutes, created_at
	`, name, machineType, sessionMinutes).Scan(&m.ID, &m.Name, &m.Type, &m.Status, &m.SessionMinutes, &m.CreatedAt)
	if err != nil {
		return model.Machine{}, err
	}
	return m, nil
}

// List returns machines of every status; callers filter bookability
// themselves. An empty type matches all machines.
func (r *MachineRepository) List(ctx context.Context, machineType string) ([]model.Machine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id::text, name, type, status, session_minutes, created_at
		FROM machines
		WHERE $1 = '' OR type = $1
		ORDER BY name ASC
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

func (r *MachineRepository) SetStatus(ctx context.Context, id string, status model.MachineStatus) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE machines SET status = $2 WHERE id = $1
	`, id, string(status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}
