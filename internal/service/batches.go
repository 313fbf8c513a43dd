package service

import (
	"context"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/infra/metrics"
)

// CreateBatch — новая партия в draft. Создаёт отправитель.
func (s *Service) CreateBatch(ctx context.Context, actor users.Operator, batchNo string) (*batches.Batch, error) {
	if err := requireRole(actor, users.RoleSender); err != nil {
		return nil, err
	}
	if batchNo == "" {
		return nil, apperr.E(apperr.KindInsufficientInputs, "batch_no is required")
	}
	b, err := s.batches.Create(ctx, batchNo)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "create batch")
	}
	metrics.Operations.WithLabelValues("create_batch", "ok").Inc()
	s.log.Info("batch created", "batch_id", b.ID, "batch_no", b.BatchNo)
	return b, nil
}

// Transition двигает партию по конвейеру. Переход в completed синхронно
// деривирует счёт; провал деривации возвращается вызывающему, но статус
// уже сменён и назад не откатывается.
func (s *Service) Transition(ctx context.Context, actor users.Operator, batchID int64, target batches.Status) (*batches.Batch, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get batch %d", batchID)
	}
	if b == nil {
		return nil, apperr.E(apperr.KindNotFound, "batch %d not found", batchID)
	}

	role, known := batches.RoleFor(target)
	if !known {
		return nil, apperr.E(apperr.KindInvalidTransition, "unknown status %q", target)
	}
	if !batches.CanTransition(b.Status, target) {
		return nil, apperr.E(apperr.KindInvalidTransition, "batch %d: %s -> %s is not allowed", batchID, b.Status, target)
	}
	if err := requireRole(actor, role); err != nil {
		return nil, err
	}

	updated, err := s.batches.SetStatus(ctx, batchID, target)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "set batch %d status", batchID)
	}
	metrics.Operations.WithLabelValues("transition", "ok").Inc()
	s.log.Info("batch transitioned", "batch_id", batchID, "from", b.Status, "to", target, "actor", actor.Login)

	if target == batches.StatusCompleted {
		if _, err := s.deriveBill(ctx, actor, updated); err != nil && !apperr.Is(err, apperr.KindAlreadyExists) {
			// статус completed остаётся; счёт довыпускается отдельным вызовом
			s.log.Error("bill derivation failed after completion", "batch_id", batchID, "err", err)
			return updated, err
		}
	}
	return updated, nil
}

func (s *Service) GetBatch(ctx context.Context, batchID int64) (*batches.Batch, error) {
	b, err := s.batches.Get(ctx, batchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get batch %d", batchID)
	}
	if b == nil {
		return nil, apperr.E(apperr.KindNotFound, "batch %d not found", batchID)
	}
	return b, nil
}

func (s *Service) ListBatches(ctx context.Context, status batches.Status) ([]batches.Batch, error) {
	if status != "" && !batches.Known(status) {
		return nil, apperr.E(apperr.KindInvalidTransition, "unknown status %q", status)
	}
	out, err := s.batches.List(ctx, status)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "list batches")
	}
	return out, nil
}
