package service

import (
	"context"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/billing"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
)

// memStore — память вместо Postgres для сервисных сценариев. Семантика
// повторяет pgx-репозитории: агрегаты партии без исторических отправлений,
// проверка версий при консолидации, один счёт на партию.
type memStore struct {
	nextID   int64
	clock    time.Time
	batches  map[int64]*batches.Batch
	ships    map[int64]*shipments.Shipment
	rels     []shipments.Relation
	insps    []inspections.Inspection
	bills    map[int64]*billing.Bill
	items    []billing.BillItem
	payments []billing.Payment
	tiers    []billing.RateTier
}

func newMemStore() *memStore {
	return &memStore{
		clock:   time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		batches: map[int64]*batches.Batch{},
		ships:   map[int64]*shipments.Shipment{},
		bills:   map[int64]*billing.Bill{},
		tiers:   []billing.RateTier{{ID: 1, MinWeight: 0, PricePerKg: 1.0, Active: true}},
	}
}

func (m *memStore) id() int64 { m.nextID++; return m.nextID }

func (m *memStore) now() time.Time {
	m.clock = m.clock.Add(time.Second)
	return m.clock
}

func (m *memStore) recalc(batchID int64) {
	b, ok := m.batches[batchID]
	if !ok {
		return
	}
	b.ItemCount = 0
	b.TotalWeight = 0
	for _, s := range m.ships {
		if s.BatchID == batchID && !s.PackageTag.Historical() {
			b.ItemCount++
			b.TotalWeight += s.Weight
		}
	}
}

/* BatchStore */

type memBatches struct{ m *memStore }

func (f memBatches) Create(_ context.Context, batchNo string) (*batches.Batch, error) {
	b := &batches.Batch{ID: f.m.id(), BatchNo: batchNo, Status: batches.StatusDraft, CreatedAt: f.m.now()}
	f.m.batches[b.ID] = b
	out := *b
	return &out, nil
}

func (f memBatches) Get(_ context.Context, id int64) (*batches.Batch, error) {
	b, ok := f.m.batches[id]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (f memBatches) List(_ context.Context, status batches.Status) ([]batches.Batch, error) {
	var out []batches.Batch
	for _, b := range f.m.batches {
		if status == "" || b.Status == status {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f memBatches) SetStatus(_ context.Context, id int64, status batches.Status) (*batches.Batch, error) {
	b, ok := f.m.batches[id]
	if !ok {
		return nil, nil
	}
	b.Status = status
	out := *b
	return &out, nil
}

/* ShipmentStore */

type memShipments struct{ m *memStore }

func (f memShipments) Insert(_ context.Context, s shipments.Shipment) (*shipments.Shipment, error) {
	s.ID = f.m.id()
	s.Status = shipments.StatusPending
	s.PackageTag = shipments.TagStandard
	s.CreatedAt = f.m.now()
	f.m.ships[s.ID] = &s
	f.m.recalc(s.BatchID)
	out := s
	return &out, nil
}

func (f memShipments) GetByID(_ context.Context, id int64) (*shipments.Shipment, error) {
	s, ok := f.m.ships[id]
	if !ok {
		return nil, nil
	}
	out := *s
	return &out, nil
}

func (f memShipments) GetByTracking(_ context.Context, trackingNo string) (*shipments.Shipment, error) {
	for _, s := range f.m.ships {
		if s.TrackingNo == trackingNo {
			out := *s
			return &out, nil
		}
	}
	return nil, nil
}

func (f memShipments) GetMany(_ context.Context, ids []int64) ([]shipments.Shipment, error) {
	var out []shipments.Shipment
	for _, id := range ids {
		if s, ok := f.m.ships[id]; ok {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (f memShipments) ListByBatch(_ context.Context, batchID int64, includeHistorical bool) ([]shipments.Shipment, error) {
	var out []shipments.Shipment
	for _, s := range f.m.ships {
		if s.BatchID != batchID {
			continue
		}
		if !includeHistorical && s.PackageTag.Historical() {
			continue
		}
		out = append(out, *s)
	}
	return out, nil
}

func (f memShipments) Delete(_ context.Context, id, batchID int64) error {
	if _, ok := f.m.ships[id]; !ok {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", id)
	}
	delete(f.m.ships, id)
	f.m.recalc(batchID)
	return nil
}

func (f memShipments) Merge(_ context.Context, in shipments.MergeInput, childBatchIDs []int64) (*shipments.Shipment, error) {
	for _, ref := range in.Children {
		s, ok := f.m.ships[ref.ID]
		if !ok || s.Version != ref.Version {
			return nil, apperr.E(apperr.KindConflict, "shipment %d changed concurrently", ref.ID)
		}
	}
	parent := &shipments.Shipment{
		ID: f.m.id(), BatchID: in.BatchID, TrackingNo: in.TrackingNo,
		Weight: in.TotalWeight, Volume: in.Volume,
		Status: shipments.StatusPending, PackageTag: shipments.TagMergeParent,
		CreatedAt: f.m.now(),
	}
	f.m.ships[parent.ID] = parent
	for _, ref := range in.Children {
		c := f.m.ships[ref.ID]
		c.Status = shipments.StatusShipped
		c.PackageTag = shipments.TagMergedChild
		c.Version++
		f.m.rels = append(f.m.rels, shipments.Relation{
			ID: f.m.id(), ParentID: parent.ID, ChildID: ref.ID, Type: shipments.RelMerge, CreatedAt: f.m.now(),
		})
	}
	f.m.recalc(in.BatchID)
	for _, bid := range childBatchIDs {
		f.m.recalc(bid)
	}
	out := *parent
	return &out, nil
}

func (f memShipments) Split(_ context.Context, in shipments.SplitInput) ([]shipments.Shipment, error) {
	p, ok := f.m.ships[in.Parent.ID]
	if !ok || p.Version != in.Parent.Version {
		return nil, apperr.E(apperr.KindConflict, "shipment %d changed concurrently", in.Parent.ID)
	}
	var children []shipments.Shipment
	for _, part := range in.Parts {
		c := &shipments.Shipment{
			ID: f.m.id(), BatchID: in.BatchID, TrackingNo: part.TrackingNo,
			Weight: part.Weight, Volume: part.Volume,
			Status: shipments.StatusPending, PackageTag: shipments.TagSplitChild,
			CreatedAt: f.m.now(),
		}
		f.m.ships[c.ID] = c
		f.m.rels = append(f.m.rels, shipments.Relation{
			ID: f.m.id(), ParentID: p.ID, ChildID: c.ID, Type: shipments.RelSplit, CreatedAt: f.m.now(),
		})
		children = append(children, *c)
	}
	p.Status = shipments.StatusShipped
	p.PackageTag = shipments.TagSplitParent
	p.Version++
	f.m.recalc(in.BatchID)
	return children, nil
}

func (f memShipments) Children(_ context.Context, id int64) ([]shipments.Relation, error) {
	var out []shipments.Relation
	for _, r := range f.m.rels {
		if r.ParentID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f memShipments) Parent(_ context.Context, id int64) (*shipments.Relation, error) {
	var best *shipments.Relation
	for _, r := range f.m.rels {
		if r.ChildID != id {
			continue
		}
		if best == nil || r.CreatedAt.After(best.CreatedAt) ||
			(r.CreatedAt.Equal(best.CreatedAt) && r.ID > best.ID) {
			rr := r
			best = &rr
		}
	}
	return best, nil
}

func (f memShipments) Ancestors(ctx context.Context, id int64) ([]shipments.Relation, error) {
	var chain []shipments.Relation
	cur := id
	for {
		rel, err := f.Parent(ctx, cur)
		if err != nil || rel == nil {
			return chain, err
		}
		chain = append(chain, *rel)
		cur = rel.ParentID
	}
}

func (f memShipments) Descendants(ctx context.Context, id int64) ([]shipments.Relation, error) {
	var out []shipments.Relation
	queue := []int64{id}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		rels, _ := f.Children(ctx, cur)
		for _, rel := range rels {
			out = append(out, rel)
			queue = append(queue, rel.ChildID)
		}
	}
	return out, nil
}

func (f memShipments) SetStageAt(_ context.Context, id int64, stage string, at time.Time) error {
	s, ok := f.m.ships[id]
	if !ok {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", id)
	}
	switch stage {
	case "sender":
		s.SenderAt = &at
	case "transit":
		s.TransitAt = &at
	case "receiver":
		s.ReceiverAt = &at
	default:
		return apperr.E(apperr.KindInvalidTransition, "unknown stage %q", stage)
	}
	return nil
}

/* InspectionStore */

type memInspections struct{ m *memStore }

func (f memInspections) Append(_ context.Context, ins inspections.Inspection) (*inspections.Inspection, error) {
	ins.ID = f.m.id()
	ins.CreatedAt = f.m.now()
	f.m.insps = append(f.m.insps, ins)
	out := ins
	return &out, nil
}

func (f memInspections) Reconstruct(_ context.Context, batchID int64) (map[int64]inspections.Snapshot, error) {
	var rows []inspections.Inspection
	for _, ins := range f.m.insps {
		if ins.BatchID == batchID {
			rows = append(rows, ins)
		}
	}
	return inspections.Reconstruct(rows), nil
}

/* BillStore */

type memBills struct{ m *memStore }

func (f memBills) GetTier(_ context.Context, weight float64) (*billing.RateTier, bool, error) {
	var best *billing.RateTier
	for i := range f.m.tiers {
		t := &f.m.tiers[i]
		if !t.Active || t.MinWeight > weight {
			continue
		}
		if t.MaxWeight != nil && weight >= *t.MaxWeight {
			continue
		}
		if best == nil || t.MinWeight > best.MinWeight {
			best = t
		}
	}
	if best == nil {
		return nil, false, nil
	}
	out := *best
	return &out, true, nil
}

func (f memBills) Create(_ context.Context, b billing.Bill, items []billing.BillItem) (*billing.Bill, error) {
	for _, ex := range f.m.bills {
		if ex.BatchID == b.BatchID {
			return nil, apperr.E(apperr.KindAlreadyExists, "bill for batch %d already exists", b.BatchID)
		}
	}
	b.ID = f.m.id()
	b.Status = billing.StatusPending
	b.CreatedAt = f.m.now()
	f.m.bills[b.ID] = &b
	for _, it := range items {
		it.ID = f.m.id()
		it.BillID = b.ID
		f.m.items = append(f.m.items, it)
	}
	out := b
	return &out, nil
}

func (f memBills) Items(_ context.Context, billID int64) ([]billing.BillItem, error) {
	var out []billing.BillItem
	for _, it := range f.m.items {
		if it.BillID == billID {
			out = append(out, it)
		}
	}
	return out, nil
}

func (f memBills) GetByID(_ context.Context, id int64) (*billing.Bill, error) {
	b, ok := f.m.bills[id]
	if !ok {
		return nil, nil
	}
	out := *b
	return &out, nil
}

func (f memBills) GetByBatch(_ context.Context, batchID int64) (*billing.Bill, error) {
	for _, b := range f.m.bills {
		if b.BatchID == batchID {
			out := *b
			return &out, nil
		}
	}
	return nil, nil
}

func (f memBills) ListForOrg(_ context.Context, orgID int64) ([]billing.Bill, error) {
	var out []billing.Bill
	for _, b := range f.m.bills {
		if b.PayerOrgID == orgID || b.PayeeOrgID == orgID {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f memBills) AddPayment(_ context.Context, billID int64, amount float64, method, reference string) (*billing.Bill, error) {
	b, ok := f.m.bills[billID]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
	}
	if b.Status == billing.StatusCancelled {
		return nil, apperr.E(apperr.KindInvalidAmount, "bill %d is cancelled, payment rejected", billID)
	}
	f.m.payments = append(f.m.payments, billing.Payment{
		ID: f.m.id(), BillID: billID, Amount: amount, Method: method, Reference: reference, CreatedAt: f.m.now(),
	})
	var paid float64
	for _, p := range f.m.payments {
		if p.BillID == billID && !p.Reversed {
			paid += p.Amount
		}
	}
	b.PaidAmount = paid
	b.Status = billing.StatusFor(b.TotalAmount, paid)
	out := *b
	return &out, nil
}

func (f memBills) MarkPaid(_ context.Context, billID int64) (*billing.Bill, error) {
	b, ok := f.m.bills[billID]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
	}
	if b.Status == billing.StatusCancelled {
		return nil, apperr.E(apperr.KindInvalidTransition, "bill %d is cancelled", billID)
	}
	b.PaidAmount = b.TotalAmount
	b.Status = billing.StatusPaid
	out := *b
	return &out, nil
}

func (f memBills) Cancel(_ context.Context, billID int64) (*billing.Bill, error) {
	b, ok := f.m.bills[billID]
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
	}
	if b.Status == billing.StatusPaid {
		return nil, apperr.E(apperr.KindInvalidTransition, "bill %d is paid and cannot be cancelled", billID)
	}
	b.Status = billing.StatusCancelled
	out := *b
	return &out, nil
}
