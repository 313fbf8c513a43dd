package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/billing"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
	"github.com/Spok95/cargoflow/internal/domain/users"
)

// Хранилища сущностей. Продовые реализации — pgx-репозитории в
// internal/domain/*; тесты подставляют память.

type BatchStore interface {
	Create(ctx context.Context, batchNo string) (*batches.Batch, error)
	Get(ctx context.Context, id int64) (*batches.Batch, error)
	List(ctx context.Context, status batches.Status) ([]batches.Batch, error)
	SetStatus(ctx context.Context, id int64, status batches.Status) (*batches.Batch, error)
}

type ShipmentStore interface {
	Insert(ctx context.Context, s shipments.Shipment) (*shipments.Shipment, error)
	GetByID(ctx context.Context, id int64) (*shipments.Shipment, error)
	GetByTracking(ctx context.Context, trackingNo string) (*shipments.Shipment, error)
	GetMany(ctx context.Context, ids []int64) ([]shipments.Shipment, error)
	ListByBatch(ctx context.Context, batchID int64, includeHistorical bool) ([]shipments.Shipment, error)
	Delete(ctx context.Context, id, batchID int64) error
	Merge(ctx context.Context, in shipments.MergeInput, childBatchIDs []int64) (*shipments.Shipment, error)
	Split(ctx context.Context, in shipments.SplitInput) ([]shipments.Shipment, error)
	Children(ctx context.Context, id int64) ([]shipments.Relation, error)
	Parent(ctx context.Context, id int64) (*shipments.Relation, error)
	Ancestors(ctx context.Context, id int64) ([]shipments.Relation, error)
	Descendants(ctx context.Context, id int64) ([]shipments.Relation, error)
	SetStageAt(ctx context.Context, id int64, stage string, at time.Time) error
}

type InspectionStore interface {
	Append(ctx context.Context, ins inspections.Inspection) (*inspections.Inspection, error)
	Reconstruct(ctx context.Context, batchID int64) (map[int64]inspections.Snapshot, error)
}

type BillStore interface {
	GetTier(ctx context.Context, weight float64) (*billing.RateTier, bool, error)
	Create(ctx context.Context, b billing.Bill, items []billing.BillItem) (*billing.Bill, error)
	GetByID(ctx context.Context, id int64) (*billing.Bill, error)
	GetByBatch(ctx context.Context, batchID int64) (*billing.Bill, error)
	Items(ctx context.Context, billID int64) ([]billing.BillItem, error)
	ListForOrg(ctx context.Context, orgID int64) ([]billing.Bill, error)
	AddPayment(ctx context.Context, billID int64, amount float64, method, reference string) (*billing.Bill, error)
	MarkPaid(ctx context.Context, billID int64) (*billing.Bill, error)
	Cancel(ctx context.Context, billID int64) (*billing.Bill, error)
}

type Service struct {
	log         *slog.Logger
	batches     BatchStore
	shipments   ShipmentStore
	inspections InspectionStore
	bills       BillStore

	currency   string
	payeeOrgID int64 // организация-перевозчик, получатель по всем счетам
}

func New(log *slog.Logger, b BatchStore, s ShipmentStore, i InspectionStore, bl BillStore,
	currency string, payeeOrgID int64) *Service {
	return &Service{
		log:         log,
		batches:     b,
		shipments:   s,
		inspections: i,
		bills:       bl,
		currency:    currency,
		payeeOrgID:  payeeOrgID,
	}
}

func requireRole(actor users.Operator, required users.Role) error {
	if !actor.Role.Allows(required) {
		return apperr.E(apperr.KindForbidden, "role %s is not allowed here, need %s", actor.Role, required)
	}
	return nil
}
