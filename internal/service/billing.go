package service

import (
	"context"
	"fmt"

	"github.com/Spok95/cargoflow/internal/domain/apperr"
	"github.com/Spok95/cargoflow/internal/domain/batches"
	"github.com/Spok95/cargoflow/internal/domain/billing"
	"github.com/Spok95/cargoflow/internal/domain/users"
	"github.com/Spok95/cargoflow/internal/infra/metrics"
)

// deriveBill выпускает счёт по итоговому весу партии. Один счёт на партию:
// повтор упирается в AlreadyExists.
func (s *Service) deriveBill(ctx context.Context, actor users.Operator, b *batches.Batch) (*billing.Bill, error) {
	tier, ok, err := s.bills.GetTier(ctx, b.TotalWeight)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "rate tier for weight %v", b.TotalWeight)
	}
	if !ok {
		return nil, apperr.E(apperr.KindNotFound, "no active rate tier for weight %v", b.TotalWeight)
	}

	total := billing.AmountFor(*tier, b.TotalWeight)
	items := []billing.BillItem{
		{Title: "base fee", Amount: tier.BaseFee},
		{Title: fmt.Sprintf("freight %.3f kg @ %.2f", b.TotalWeight, tier.PricePerKg), Amount: tier.PricePerKg * b.TotalWeight},
	}
	bill, err := s.bills.Create(ctx, billing.Bill{
		BatchID:     b.ID,
		BillNo:      "BILL-" + b.BatchNo,
		PayerOrgID:  actor.OrgID,
		PayeeOrgID:  s.payeeOrgID,
		Currency:    s.currency,
		TotalAmount: total,
	}, items)
	if err != nil {
		return nil, err
	}
	metrics.Operations.WithLabelValues("derive_bill", "ok").Inc()
	s.log.Info("bill derived",
		"batch_id", b.ID, "bill_id", bill.ID, "total", bill.TotalAmount, "currency", bill.Currency)
	return bill, nil
}

// DeriveBill — явный довыпуск счёта по завершённой партии (например, после
// сбоя деривации при переходе в completed).
func (s *Service) DeriveBill(ctx context.Context, actor users.Operator, batchID int64) (*billing.Bill, error) {
	if err := requireRole(actor, users.RoleReceiver); err != nil {
		return nil, err
	}
	b, err := s.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if b.Status != batches.StatusCompleted {
		return nil, apperr.E(apperr.KindInvalidTransition, "batch %d is %s, bill is derived from a completed batch", b.ID, b.Status)
	}
	return s.deriveBill(ctx, actor, b)
}

// AddPayment регистрирует платёж и пересчитывает статус счёта.
func (s *Service) AddPayment(ctx context.Context, actor users.Operator, billID int64, amount float64, method, reference string) (*billing.Bill, error) {
	if err := requireRole(actor, users.RoleReceiver); err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, apperr.E(apperr.KindInvalidAmount, "payment amount must be positive, got %v", amount)
	}
	bill, err := s.bills.AddPayment(ctx, billID, amount, method, reference)
	if err != nil {
		return nil, err
	}
	metrics.Operations.WithLabelValues("add_payment", "ok").Inc()
	s.log.Info("payment registered",
		"bill_id", bill.ID, "amount", amount, "paid", bill.PaidAmount, "status", bill.Status)
	return bill, nil
}

// MarkPaid — ручное закрытие счёта администратором, без сверки платежей.
func (s *Service) MarkPaid(ctx context.Context, actor users.Operator, billID int64) (*billing.Bill, error) {
	if err := requireRole(actor, users.RoleAdmin); err != nil {
		return nil, err
	}
	bill, err := s.bills.MarkPaid(ctx, billID)
	if err != nil {
		return nil, err
	}
	metrics.Operations.WithLabelValues("mark_paid", "ok").Inc()
	s.log.Info("bill marked paid", "bill_id", bill.ID, "actor", actor.Login)
	return bill, nil
}

// CancelBill отменяет счёт. Оплаченный счёт не отменяется.
func (s *Service) CancelBill(ctx context.Context, actor users.Operator, billID int64) (*billing.Bill, error) {
	if err := requireRole(actor, users.RoleAdmin); err != nil {
		return nil, err
	}
	bill, err := s.bills.Cancel(ctx, billID)
	if err != nil {
		return nil, err
	}
	metrics.Operations.WithLabelValues("cancel_bill", "ok").Inc()
	s.log.Info("bill cancelled", "bill_id", bill.ID, "actor", actor.Login)
	return bill, nil
}

func (s *Service) GetBill(ctx context.Context, billID int64) (*billing.Bill, error) {
	bill, err := s.bills.GetByID(ctx, billID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get bill %d", billID)
	}
	if bill == nil {
		return nil, apperr.E(apperr.KindNotFound, "bill %d not found", billID)
	}
	return bill, nil
}

func (s *Service) GetBillItems(ctx context.Context, billID int64) ([]billing.BillItem, error) {
	if _, err := s.GetBill(ctx, billID); err != nil {
		return nil, err
	}
	out, err := s.bills.Items(ctx, billID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "items of bill %d", billID)
	}
	return out, nil
}

func (s *Service) GetBillForBatch(ctx context.Context, batchID int64) (*billing.Bill, error) {
	bill, err := s.bills.GetByBatch(ctx, batchID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "get bill of batch %d", batchID)
	}
	if bill == nil {
		return nil, apperr.E(apperr.KindNotFound, "batch %d has no bill", batchID)
	}
	return bill, nil
}

// ListBillsForActor — счета организации оператора (видимость по роли
// обеспечивает стор, здесь только выбор стороны).
func (s *Service) ListBillsForActor(ctx context.Context, actor users.Operator) ([]billing.Bill, error) {
	out, err := s.bills.ListForOrg(ctx, actor.OrgID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindStore, err, "list bills for org %d", actor.OrgID)
	}
	return out, nil
}
