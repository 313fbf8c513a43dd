package service

import (
	"context"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/shipments"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/infra/metrics"
)

// AddShipment — ручное добавление отправления в партию-черновик.
func (s *Service) AddShipment(ctx context.Context, actor users.Operator, sh shipments.Shipment) (*shipments.Shipment, error) {
	if err := requireRole(actor, users.RoleSender); err != nil {
		return nil, err
	}
	if sh.TrackingNo == "" {
		return nil, apperr.E(apperr.KindInsufficientInputs, "tracking_no is required")
	}
	if sh.Weight <= 0 {
		return nil, apperr.E(apperr.KindInvalidAmount, "weight must be positive, got %v", sh.Weight)
	}
	if _, err := s.GetBatch(ctx, sh.BatchID); err != nil {
		return nil, err
	}
	now := time.Now()
	sh.SenderAt = &now
	out, err := s.shipments.Insert(ctx, sh)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "insert shipment")
	}
	metrics.Operations.WithLabelValues("add_shipment", "ok").Inc()
	return out, nil
}

// RemoveShipment — жёсткое удаление. После консолидации отправление —
// постоянная часть аудита и не удаляется.
func (s *Service) RemoveShipment(ctx context.Context, actor users.Operator, shipmentID int64) error {
	if err := requireRole(actor, users.RoleSender); err != nil {
		return err
	}
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return apperr.Wrap(apperr.KindStore, err, "get shipment %d", shipmentID)
	}
	if sh == nil {
		return apperr.E(apperr.KindNotFound, "shipment %d not found", shipmentID)
	}
	if sh.PackageTag != shipments.TagStandard {
		return apperr.E(apperr.KindConflict, "shipment %d is part of a consolidation and cannot be removed", shipmentID)
	}
	if rel, err := s.shipments.Parent(ctx, shipmentID); err != nil {
		return apperr.Wrap(apperr.KindStore, err, "genealogy of shipment %d", shipmentID)
	} else if rel != nil {
		return apperr.E(apperr.KindConflict, "shipment %d has genealogy and cannot be removed", shipmentID)
	}
	if err := s.shipments.Delete(ctx, shipmentID, sh.BatchID); err != nil {
		return err
	}
	metrics.Operations.WithLabelValues("remove_shipment", "ok").Inc()
	return nil
}

// Merge объединяет N отправлений в одно новое. Вес родителя — показание
// весов оператора после физической консолидации, сумма детских весов
// заведомо менее точна и не используется.
func (s *Service) Merge(ctx context.Context, actor users.Operator, in shipments.MergeInput) (*shipments.Shipment, error) {
	if err := requireRole(actor, users.RoleTransit); err != nil {
		return nil, err
	}
	b, err := s.GetBatch(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, apperr.E(apperr.KindInvalidTransition, "batch %d is %s, consolidation is closed", b.ID, b.Status)
	}

	ids := make([]int64, len(in.Children))
	for i, ref := range in.Children {
		ids[i] = ref.ID
	}
	loaded, err := s.shipments.GetMany(ctx, ids)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "load merge children")
	}
	if err := shipments.ValidateMerge(in, loaded); err != nil {
		metrics.Operations.WithLabelValues("merge", "rejected").Inc()
		return nil, err
	}

	childBatches := make([]int64, 0, len(loaded))
	for _, c := range loaded {
		childBatches = append(childBatches, c.BatchID)
	}
	parent, err := s.shipments.Merge(ctx, in, childBatches)
	if err != nil {
		metrics.Operations.WithLabelValues("merge", "failed").Inc()
		return nil, err
	}
	metrics.Operations.WithLabelValues("merge", "ok").Inc()
	s.log.Info("shipments merged",
		"batch_id", in.BatchID, "parent_id", parent.ID, "children", len(in.Children),
		"total_weight", in.TotalWeight, "actor", actor.Login)
	return parent, nil
}

// SplitResult — результат разделения. WeightDiff ненулевой — расхождение
// суммы частей с весом родителя; операция всё равно применена.
type SplitResult struct {
	Children   []shipments.Shipment
	WeightDiff float64
	Exact      bool
}

// Split разделяет отправление на N новых.
func (s *Service) Split(ctx context.Context, actor users.Operator, in shipments.SplitInput) (*SplitResult, error) {
	if err := requireRole(actor, users.RoleTransit); err != nil {
		return nil, err
	}
	b, err := s.GetBatch(ctx, in.BatchID)
	if err != nil {
		return nil, err
	}
	if b.Status.Terminal() {
		return nil, apperr.E(apperr.KindInvalidTransition, "batch %d is %s, consolidation is closed", b.ID, b.Status)
	}

	parent, err := s.shipments.GetByID(ctx, in.Parent.ID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get shipment %d", in.Parent.ID)
	}
	if err := shipments.ValidateSplit(in, parent); err != nil {
		metrics.Operations.WithLabelValues("split", "rejected").Inc()
		return nil, err
	}

	diff, exact := shipments.SplitMismatch(parent.Weight, in.Parts)
	children, err := s.shipments.Split(ctx, in)
	if err != nil {
		metrics.Operations.WithLabelValues("split", "failed").Inc()
		return nil, err
	}
	metrics.Operations.WithLabelValues("split", "ok").Inc()
	if !exact {
		s.log.Warn("split weight mismatch",
			"parent_id", parent.ID, "parent_weight", parent.Weight, "diff", diff)
	}
	s.log.Info("shipment split",
		"batch_id", in.BatchID, "parent_id", parent.ID, "parts", len(in.Parts), "actor", actor.Login)
	return &SplitResult{Children: children, WeightDiff: diff, Exact: exact}, nil
}

// Genealogy — родитель и дети отправления в один переход.
type Genealogy struct {
	Parent   *shipments.Relation
	Children []shipments.Relation
}

func (s *Service) GetGenealogy(ctx context.Context, shipmentID int64) (*Genealogy, error) {
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get shipment %d", shipmentID)
	}
	if sh == nil {
		return nil, apperr.E(apperr.KindNotFound, "shipment %d not found", shipmentID)
	}
	parent, err := s.shipments.Parent(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "parent of shipment %d", shipmentID)
	}
	children, err := s.shipments.Children(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "children of shipment %d", shipmentID)
	}
	return &Genealogy{Parent: parent, Children: children}, nil
}

// Lineage — полное замыкание цепочки консолидаций вверх и вниз.
// Одного перехода достаточно для операционных экранов; глубокая цепочка
// (merge-of-a-merge) нужна отчётности и разбирается явным обходом.
type Lineage struct {
	Ancestors   []shipments.Relation
	Descendants []shipments.Relation
}

func (s *Service) GetLineage(ctx context.Context, shipmentID int64) (*Lineage, error) {
	sh, err := s.shipments.GetByID(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get shipment %d", shipmentID)
	}
	if sh == nil {
		return nil, apperr.E(apperr.KindNotFound, "shipment %d not found", shipmentID)
	}
	up, err := s.shipments.Ancestors(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "ancestors of shipment %d", shipmentID)
	}
	down, err := s.shipments.Descendants(ctx, shipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "descendants of shipment %d", shipmentID)
	}
	return &Lineage{Ancestors: up, Descendants: down}, nil
}

func (s *Service) FindByTracking(ctx context.Context, trackingNo string) (*shipments.Shipment, error) {
	if trackingNo == "" {
		return nil, apperr.E(apperr.KindInsufficientInputs, "tracking_no is required")
	}
	sh, err := s.shipments.GetByTracking(ctx, trackingNo)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "find shipment by tracking %q", trackingNo)
	}
	if sh == nil {
		return nil, apperr.E(apperr.KindNotFound, "shipment %q not found", trackingNo)
	}
	return sh, nil
}

func (s *Service) ListShipments(ctx context.Context, batchID int64, includeHistorical bool) ([]shipments.Shipment, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	out, err := s.shipments.ListByBatch(ctx, batchID, includeHistorical)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "list shipments of batch %d", batchID)
	}
	return out, nil
}
