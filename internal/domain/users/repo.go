package users

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repo struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

func (r *Repo) GetByLogin(ctx context.Context, login string) (*Operator, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, login, name, role, org_id, active, created_at, updated_at
		FROM operators WHERE login = $1
	`, login)

	var o Operator
	if err := row.Scan(&o.ID, &o.Login, &o.Name, &o.Role, &o.OrgID, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Operator, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, login, name, role, org_id, active, created_at, updated_at
		FROM operators WHERE id = $1
	`, id)

	var o Operator
	if err := row.Scan(&o.ID, &o.Login, &o.Name, &o.Role, &o.OrgID, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &o, nil
}

// Upsert по логину. Уже назначенного admin не понижаем.
func (r *Repo) Upsert(ctx context.Context, login, name string, role Role, orgID int64) (*Operator, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO operators (login, name, role, org_id)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (login)
		DO UPDATE SET
			name       = EXCLUDED.name,
			org_id     = EXCLUDED.org_id,
			role       = CASE WHEN operators.role = 'admin' THEN operators.role ELSE EXCLUDED.role END,
			updated_at = now()
		RETURNING id, login, name, role, org_id, active, created_at, updated_at
	`, login, name, string(role), orgID)

	var o Operator
	if err := row.Scan(&o.ID, &o.Login, &o.Name, &o.Role, &o.OrgID, &o.Active, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}
