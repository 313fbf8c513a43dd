package shipments

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
)

type Repo struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

const shipmentCols = `
	id, batch_id, tracking_no, weight, volume, length, width, height,
	status, package_tag, sender_at, transit_at, receiver_at, version, created_at`

func scanShipment(row pgx.Row) (*Shipment, error) {
	var s Shipment
	err := row.Scan(&s.ID, &s.BatchID, &s.TrackingNo, &s.Weight, &s.Volume,
		&s.Length, &s.Width, &s.Height, &s.Status, &s.PackageTag,
		&s.SenderAt, &s.TransitAt, &s.ReceiverAt, &s.Version, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Insert — ручное добавление отправления в партию.
func (r *Repo) Insert(ctx context.Context, s Shipment) (*Shipment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO shipments
			(batch_id, tracking_no, weight, volume, length, width, height, status, package_tag, sender_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending','standard',$8)
		RETURNING`+shipmentCols,
		s.BatchID, s.TrackingNo, s.Weight, s.Volume, s.Length, s.Width, s.Height, s.SenderAt)
	out, err := scanShipment(row)
	if err != nil {
		return nil, err
	}
	if err := recalcBatch(ctx, tx, s.BatchID); err != nil {
		return nil, err
	}
	return out, tx.Commit(ctx)
}

func (r *Repo) GetByID(ctx context.Context, id int64) (*Shipment, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+shipmentCols+` FROM shipments WHERE id = $1`, id)
	s, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *Repo) GetByTracking(ctx context.Context, trackingNo string) (*Shipment, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+shipmentCols+` FROM shipments WHERE tracking_no = $1`, trackingNo)
	s, err := scanShipment(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return s, err
}

func (r *Repo) GetMany(ctx context.Context, ids []int64) ([]Shipment, error) {
	rows, err := r.pool.Query(ctx, `SELECT`+shipmentCols+` FROM shipments WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// ListByBatch возвращает отправления партии; по умолчанию без исторических.
func (r *Repo) ListByBatch(ctx context.Context, batchID int64, includeHistorical bool) ([]Shipment, error) {
	q := `SELECT` + shipmentCols + ` FROM shipments WHERE batch_id = $1`
	if !includeHistorical {
		q += ` AND package_tag NOT IN ('merged_child','split_parent')`
	}
	q += ` ORDER BY created_at`

	rows, err := r.pool.Query(ctx, q, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Shipment, error) {
	var out []Shipment
	for rows.Next() {
		s, err := scanShipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Delete — жёсткое удаление из партии. Допустимо только до консолидации;
// наличие рёбер генеалогии проверяет сервисный слой.
func (r *Repo) Delete(ctx context.Context, id, batchID int64) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `DELETE FROM shipments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", id)
	}
	if err := recalcBatch(ctx, tx, batchID); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Merge применяет слияние одной транзакцией: родитель, N рёбер, N детей.
// Версии детей проверяются повторно внутри транзакции; промах — Conflict,
// и ни одна из записей не остаётся применённой.
func (r *Repo) Merge(ctx context.Context, in MergeInput, childBatchIDs []int64) (*Shipment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
		INSERT INTO shipments (batch_id, tracking_no, weight, volume, status, package_tag)
		VALUES ($1,$2,$3,$4,'pending','merge_parent')
		RETURNING`+shipmentCols,
		in.BatchID, in.TrackingNo, in.TotalWeight, in.Volume)
	parent, err := scanShipment(row)
	if err != nil {
		return nil, err
	}

	for _, ref := range in.Children {
		ct, err := tx.Exec(ctx, `
			UPDATE shipments
			SET status='shipped', package_tag='merged_child', version=version+1
			WHERE id=$1 AND version=$2
		`, ref.ID, ref.Version)
		if err != nil {
			return nil, err
		}
		if ct.RowsAffected() == 0 {
			return nil, apperr.E(apperr.KindConflict, "shipment %d changed concurrently", ref.ID)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO shipment_relations (parent_id, child_id, type) VALUES ($1,$2,'merge')
		`, parent.ID, ref.ID); err != nil {
			return nil, err
		}
	}

	for _, bid := range dedupe(append([]int64{in.BatchID}, childBatchIDs...)) {
		if err := recalcBatch(ctx, tx, bid); err != nil {
			return nil, err
		}
	}
	return parent, tx.Commit(ctx)
}

// Split применяет разделение одной транзакцией: N детей, N рёбер, родитель.
func (r *Repo) Split(ctx context.Context, in SplitInput) ([]Shipment, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	children := make([]Shipment, 0, len(in.Parts))
	for _, p := range in.Parts {
		row := tx.QueryRow(ctx, `
			INSERT INTO shipments (batch_id, tracking_no, weight, volume, status, package_tag)
			VALUES ($1,$2,$3,$4,'pending','split_child')
			RETURNING`+shipmentCols,
			in.BatchID, p.TrackingNo, p.Weight, p.Volume)
		c, err := scanShipment(row)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO shipment_relations (parent_id, child_id, type) VALUES ($1,$2,'split')
		`, in.Parent.ID, c.ID); err != nil {
			return nil, err
		}
		children = append(children, *c)
	}

	ct, err := tx.Exec(ctx, `
		UPDATE shipments
		SET status='shipped', package_tag='split_parent', version=version+1
		WHERE id=$1 AND version=$2
	`, in.Parent.ID, in.Parent.Version)
	if err != nil {
		return nil, err
	}
	if ct.RowsAffected() == 0 {
		return nil, apperr.E(apperr.KindConflict, "shipment %d changed concurrently", in.Parent.ID)
	}

	if err := recalcBatch(ctx, tx, in.BatchID); err != nil {
		return nil, err
	}
	return children, tx.Commit(ctx)
}

/* Генеалогия */

// Children — дети в один переход (обе стороны консолидации пишут рёбра
// parent -> child).
func (r *Repo) Children(ctx context.Context, id int64) ([]Relation, error) {
	return r.relations(ctx, `SELECT id, parent_id, child_id, type, created_at
		FROM shipment_relations WHERE parent_id = $1 ORDER BY id`, id)
}

// Parent — родитель в один переход, nil если корень. У split_child, позже
// слитого, два родительских ребра (split и merge); отдаём позднейшее.
func (r *Repo) Parent(ctx context.Context, id int64) (*Relation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, parent_id, child_id, type, created_at
		FROM shipment_relations WHERE child_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, id)
	var rel Relation
	if err := row.Scan(&rel.ID, &rel.ParentID, &rel.ChildID, &rel.Type, &rel.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rel, nil
}

// Ancestors — явное замыкание вверх по цепочке (merge-of-a-merge и т.п.).
func (r *Repo) Ancestors(ctx context.Context, id int64) ([]Relation, error) {
	var chain []Relation
	cur := id
	for {
		rel, err := r.Parent(ctx, cur)
		if err != nil {
			return nil, err
		}
		if rel == nil {
			return chain, nil
		}
		chain = append(chain, *rel)
		cur = rel.ParentID
	}
}

// Descendants — замыкание вниз, в ширину.
func (r *Repo) Descendants(ctx context.Context, id int64) ([]Relation, error) {
	var out []Relation
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rels, err := r.Children(ctx, cur)
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			out = append(out, rel)
			queue = append(queue, rel.ChildID)
		}
	}
	return out, nil
}

func (r *Repo) relations(ctx context.Context, q string, args ...any) ([]Relation, error) {
	rows, err := r.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Relation
	for rows.Next() {
		var rel Relation
		if err := rows.Scan(&rel.ID, &rel.ParentID, &rel.ChildID, &rel.Type, &rel.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// SetStageAt проставляет отметку прибытия на этап.
func (r *Repo) SetStageAt(ctx context.Context, id int64, stage string, at time.Time) error {
	var col string
	switch stage {
	case "sender":
		col = "sender_at"
	case "transit":
		col = "transit_at"
	case "receiver":
		col = "receiver_at"
	default:
		return apperr.E(apperr.KindInvalidTransition, "unknown stage %q", stage)
	}
	ct, err := r.pool.Exec(ctx, `UPDATE shipments SET `+col+`=$2 WHERE id=$1`, id, at)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", id)
	}
	return nil
}

func recalcBatch(ctx context.Context, tx pgx.Tx, batchID int64) error {
	_, err := tx.Exec(ctx, `
		UPDATE batches SET
			item_count = (
				SELECT COUNT(*) FROM shipments
				WHERE batch_id = $1 AND package_tag NOT IN ('merged_child','split_parent')
			),
			total_weight = (
				SELECT COALESCE(SUM(weight),0) FROM shipments
				WHERE batch_id = $1 AND package_tag NOT IN ('merged_child','split_parent')
			)
		WHERE id = $1
	`, batchID)
	return err
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
