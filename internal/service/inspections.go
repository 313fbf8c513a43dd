package service

import (
	"context"
	"time"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/inspections"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/infra/metrics"
)

// RecordStageCheck дописывает замер этапа и проставляет отметку прибытия
// на отправлении. Транзитные замеры пишет хаб, приёмочные — получатель.
func (s *Service) RecordStageCheck(ctx context.Context, actor users.Operator, ins inspections.Inspection) (*inspections.Inspection, error) {
	var required users.Role
	switch ins.Stage {
	case inspections.StageTransit:
		required = users.RoleTransit
	case inspections.StageReceiver:
		required = users.RoleReceiver
	default:
		return nil, apperr.E(apperr.KindInvalidTransition, "unknown stage %q", ins.Stage)
	}
	if err := requireRole(actor, required); err != nil {
		return nil, err
	}
	if ins.Weight <= 0 {
		return nil, apperr.E(apperr.KindInvalidAmount, "check weight must be positive, got %v", ins.Weight)
	}

	sh, err := s.shipments.GetByID(ctx, ins.ShipmentID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get shipment %d", ins.ShipmentID)
	}
	if sh == nil {
		return nil, apperr.E(apperr.KindNotFound, "shipment %d not found", ins.ShipmentID)
	}
	if ins.BatchID == 0 {
		ins.BatchID = sh.BatchID
	}

	out, err := s.inspections.Append(ctx, ins)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "append inspection")
	}
	if err := s.shipments.SetStageAt(ctx, ins.ShipmentID, string(ins.Stage), time.Now()); err != nil {
		// журнал уже дописан; отметка этапа вторична, но провал отдаём наверх
		return out, err
	}
	metrics.Operations.WithLabelValues("stage_check", "ok").Inc()
	s.log.Info("stage check recorded",
		"batch_id", out.BatchID, "shipment_id", out.ShipmentID, "stage", out.Stage, "weight", out.Weight)
	return out, nil
}

// ReconstructInspections — свёртка журнала партии, см. inspections.Reconstruct.
func (s *Service) ReconstructInspections(ctx context.Context, batchID int64) (map[int64]inspections.Snapshot, error) {
	if _, err := s.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	out, err := s.inspections.Reconstruct(ctx, batchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "reconstruct batch %d", batchID)
	}
	return out, nil
}
