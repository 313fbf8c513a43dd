package batches

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Create(ctx context.Context, batchNo string) (*Batch, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO batches (batch_no, status) VALUES ($1,'draft')
		RETURNING id, batch_no, status, item_count, total_weight, created_at
	`, batchNo)
	var b Batch
	if err := row.Scan(&b.ID, &b.BatchNo, &b.Status, &b.ItemCount, &b.TotalWeight, &b.CreatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) Get(ctx context.Context, id int64) (*Batch, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, batch_no, status, item_count, total_weight, created_at
		FROM batches WHERE id = $1
	`, id)
	var b Batch
	if err := row.Scan(&b.ID, &b.BatchNo, &b.Status, &b.ItemCount, &b.TotalWeight, &b.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}

// List возвращает партии, при status="" — все.
func (r *Repo) List(ctx context.Context, status Status) ([]Batch, error) {
	q := `
		SELECT id, batch_no, status, item_count, total_weight, created_at
		FROM batches
	`
	args := []any{}
	if status != "" {
		q += ` WHERE status = $1`
		args = append(args, string(status))
	}
	q += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.BatchNo, &b.Status, &b.ItemCount, &b.TotalWeight, &b.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Repo) SetStatus(ctx context.Context, id int64, status Status) (*Batch, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE batches SET status=$2 WHERE id=$1
		RETURNING id, batch_no, status, item_count, total_weight, created_at
	`, id, string(status))
	var b Batch
	if err := row.Scan(&b.ID, &b.BatchNo, &b.Status, &b.ItemCount, &b.TotalWeight, &b.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &b, nil
}
