package inspections

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// Append дописывает событие замера. Журнал только растёт.
func (r *Repo) Append(ctx context.Context, ins Inspection) (*Inspection, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO inspections (batch_id, shipment_id, stage, weight, length, width, height, note)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id, batch_id, shipment_id, stage, weight, length, width, height, note, created_at
	`, ins.BatchID, ins.ShipmentID, string(ins.Stage), ins.Weight, ins.Length, ins.Width, ins.Height, ins.Note)

	var out Inspection
	if err := row.Scan(&out.ID, &out.BatchID, &out.ShipmentID, &out.Stage, &out.Weight,
		&out.Length, &out.Width, &out.Height, &out.Note, &out.CreatedAt); err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *Repo) ListByBatch(ctx context.Context, batchID int64) ([]Inspection, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, batch_id, shipment_id, stage, weight, length, width, height, note, created_at
		FROM inspections
		WHERE batch_id = $1
		ORDER BY created_at
	`, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Inspection
	for rows.Next() {
		var ins Inspection
		if err := rows.Scan(&ins.ID, &ins.BatchID, &ins.ShipmentID, &ins.Stage, &ins.Weight,
			&ins.Length, &ins.Width, &ins.Height, &ins.Note, &ins.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, ins)
	}
	return out, rows.Err()
}

// Reconstruct — полный скан журнала партии и свёртка last-write-wins.
// Партии ограничены по размеру, отчёты не на горячем пути, поэтому
// инкрементальной проекции нет.
func (r *Repo) Reconstruct(ctx context.Context, batchID int64) (map[int64]Snapshot, error) {
	rows, err := r.ListByBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	return Reconstruct(rows), nil
}
