package billing

import "time"

type BillStatus string

const (
	StatusPending       BillStatus = "pending"
	StatusPartiallyPaid BillStatus = "partially_paid"
	StatusPaid          BillStatus = "paid"
	StatusCancelled     BillStatus = "cancelled" // терминальный, платежи не принимает
)

type Bill struct {
	ID          int64
	BatchID     int64
	BillNo      string
	PayerOrgID  int64
	PayeeOrgID  int64
	Currency    string
	TotalAmount float64
	PaidAmount  float64
	Status      BillStatus
	CreatedAt   time.Time
}

// BillItem — строка счёта (базовый сбор, тариф за вес).
type BillItem struct {
	ID     int64
	BillID int64
	Title  string
	Amount float64
}

type Payment struct {
	ID        int64
	BillID    int64
	Amount    float64
	Method    string
	Reference string
	Reversed  bool
	CreatedAt time.Time
}

// RateTier — ступень тарифа по весу партии. min_weight <= w < max_weight
// (max_weight NULL — последняя ступень).
type RateTier struct {
	ID         int64
	MinWeight  float64
	MaxWeight  *float64
	BaseFee    float64
	PricePerKg float64
	Active     bool
}

// AmountFor считает сумму счёта по ступени.
func AmountFor(t RateTier, weight float64) float64 {
	return t.BaseFee + t.PricePerKg*weight
}

// StatusFor — закон статуса счёта по оплаченной сумме.
func StatusFor(total, paid float64) BillStatus {
	switch {
	case paid <= 0:
		return StatusPending
	case paid < total:
		return StatusPartiallyPaid
	default:
		return StatusPaid
	}
}
