package billing

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const billCols = `
	id, batch_id, bill_no, payer_org_id, payee_org_id, currency,
	total_amount, paid_amount, status, created_at`

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(&b.ID, &b.BatchID, &b.BillNo, &b.PayerOrgID, &b.PayeeOrgID,
		&b.Currency, &b.TotalAmount, &b.PaidAmount, &b.Status, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// GetTier возвращает ступень тарифа по весу (min <= w < max, max NULL — хвост).
func (r *Repo) GetTier(ctx context.Context, weight float64) (*RateTier, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, min_weight, max_weight, base_fee, price_per_kg, active
		FROM rate_tiers
		WHERE active = TRUE
		  AND min_weight <= $1
		  AND (max_weight IS NULL OR $1 < max_weight)
		ORDER BY min_weight DESC
		LIMIT 1
	`, weight)

	var t RateTier
	if err := row.Scan(&t.ID, &t.MinWeight, &t.MaxWeight, &t.BaseFee, &t.PricePerKg, &t.Active); err != nil {
		if err == pgx.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return &t, true, nil
}

// Create вставляет счёт со строками одной транзакцией. Повторная деривация
// по той же партии упирается в уникальный индекс по batch_id -> AlreadyExists.
func (r *Repo) Create(ctx context.Context, b Bill, items []BillItem) (*Bill, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO bills (batch_id, bill_no, payer_org_id, payee_org_id, currency, total_amount, paid_amount, status)
		VALUES ($1,$2,$3,$4,$5,$6,0,'pending')
		RETURNING`+billCols,
		b.BatchID, b.BillNo, b.PayerOrgID, b.PayeeOrgID, b.Currency, b.TotalAmount)
	out, err := scanBill(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return nil, apperr.E(apperr.KindAlreadyExists, "bill for batch %d already exists", b.BatchID)
		}
		return nil, err
	}

	for _, it := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO bill_items (bill_id, title, amount) VALUES ($1,$2,$3)
		`, out.ID, it.Title, it.Amount); err != nil {
			return nil, err
		}
	}
	return out, tx.Commit(ctx)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+billCols+` FROM bills WHERE id = $1`, id)
	b, err := scanBill(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (r *Repo) GetByBatch(ctx context.Context, batchID int64) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+billCols+` FROM bills WHERE batch_id = $1`, batchID)
	b, err := scanBill(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return b, err
}

// ListForOrg — счета, где организация плательщик или получатель.
func (r *Repo) ListForOrg(ctx context.Context, orgID int64) ([]Bill, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+billCols+` FROM bills
		WHERE payer_org_id = $1 OR payee_org_id = $1
		ORDER BY created_at DESC
	`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Bill
	for rows.Next() {
		b, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

func (r *Repo) Items(ctx context.Context, billID int64) ([]BillItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, bill_id, title, amount FROM bill_items WHERE bill_id = $1 ORDER BY id
	`, billID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []BillItem
	for rows.Next() {
		var it BillItem
		if err := rows.Scan(&it.ID, &it.BillID, &it.Title, &it.Amount); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AddPayment дописывает платёж и пересчитывает статус одной транзакцией.
// Счёт блокируется FOR UPDATE, чтобы параллельные платежи не потеряли сумму.
func (r *Repo) AddPayment(ctx context.Context, billID int64, amount float64, method, reference string) (*Bill, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `SELECT`+billCols+` FROM bills WHERE id = $1 FOR UPDATE`, billID)
	b, err := scanBill(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
		}
		return nil, err
	}
	if b.Status == StatusCancelled {
		return nil, apperr.E(apperr.KindInvalidAmount, "bill %d is cancelled, payment rejected", billID)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO bill_payments (bill_id, amount, method, reference) VALUES ($1,$2,$3,$4)
	`, billID, amount, method, reference); err != nil {
		return nil, err
	}

	var paid float64
	if err := tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount),0) FROM bill_payments WHERE bill_id = $1 AND NOT reversed
	`, billID).Scan(&paid); err != nil {
		return nil, err
	}

	row = tx.QueryRow(ctx, `
		UPDATE bills SET paid_amount=$2, status=$3 WHERE id=$1
		RETURNING`+billCols,
		billID, paid, string(StatusFor(b.TotalAmount, paid)))
	out, err := scanBill(row)
	if err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

// MarkPaid — административное полное закрытие счёта, без сверки платежей.
func (r *Repo) MarkPaid(ctx context.Context, billID int64) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bills SET paid_amount=total_amount, status='paid'
		WHERE id=$1 AND status <> 'cancelled'
		RETURNING`+billCols, billID)
	b, err := scanBill(row)
	if err == pgx.ErrNoRows {
		// либо счёта нет, либо он отменён
		cur, gerr := r.GetByID(ctx, billID)
		if gerr != nil {
			return nil, gerr
		}
		if cur == nil {
			return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
		}
		return nil, apperr.E(apperr.KindInvalidTransition, "bill %d is cancelled", billID)
	}
	return b, err
}

// Cancel переводит счёт в cancelled. Оплаченный счёт отменить нельзя.
func (r *Repo) Cancel(ctx context.Context, billID int64) (*Bill, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bills SET status='cancelled'
		WHERE id=$1 AND status <> 'paid'
		RETURNING`+billCols, billID)
	b, err := scanBill(row)
	if err == pgx.ErrNoRows {
		cur, gerr := r.GetByID(ctx, billID)
		if gerr != nil {
			return nil, gerr
		}
		if cur == nil {
			return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
		}
		return nil, apperr.E(apperr.KindInvalidTransition, "bill %d is paid and cannot be cancelled", billID)
	}
	return b, err
}
