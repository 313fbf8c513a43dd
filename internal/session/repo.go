package session

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) Get(ctx context.Context, operatorID int64) (*Context, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT active_batch_id, payload FROM session_states WHERE operator_id = $1
	`, operatorID)
	var batchID int64
	var raw []byte
	err := row.Scan(&batchID, &raw)
	return sessionFromRow(operatorID, batchID, raw, err)
}

// Строки нет — пустая сессия; прочие ошибки стора отдаются наверх.
func sessionFromRow(operatorID, batchID int64, raw []byte, err error) (*Context, error) {
	if err != nil {
		if err == pgx.ErrNoRows {
			return &Context{OperatorID: operatorID, Payload: Payload{}}, nil
		}
		return nil, err
	}
	p := Payload{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &p)
	}
	return &Context{OperatorID: operatorID, ActiveBatchID: batchID, Payload: p}, nil
}

func (r *Repo) Set(ctx context.Context, operatorID, activeBatchID int64, payload Payload) error {
	raw, _ := json.Marshal(payload)
	_, err := r.pool.Exec(ctx, `
		INSERT INTO session_states (operator_id, active_batch_id, payload, updated_at)
		VALUES ($1,$2,$3,now())
		ON CONFLICT (operator_id) DO UPDATE SET
		  active_batch_id=$2, payload=$3, updated_at=now()
	`, operatorID, activeBatchID, raw)
	return err
}

func (r *Repo) Reset(ctx context.Context, operatorID int64) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM session_states WHERE operator_id = $1`, operatorID)
	return err
}
