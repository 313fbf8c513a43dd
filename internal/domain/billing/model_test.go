package billing

import "testing"

func TestStatusFor(t *testing.T) {
	cases := []struct {
		total, paid float64
		want        BillStatus
	}{
		{100, 0, StatusPending},
		{100, -5, StatusPending},
		{100, 40, StatusPartiallyPaid},
		{100, 99.99, StatusPartiallyPaid},
		{100, 100, StatusPaid},
		{100, 140, StatusPaid},
	}
	for _, c := range cases {
		if got := StatusFor(c.total, c.paid); got != c.want {
			t.Fatalf("StatusFor(%v, %v) = %s, want %s", c.total, c.paid, got, c.want)
		}
	}
}

func TestAmountFor(t *testing.T) {
	tier := RateTier{BaseFee: 5, PricePerKg: 1.5}
	if got := AmountFor(tier, 10); got != 20 {
		t.Fatalf("AmountFor = %v, want 20", got)
	}
	flat := RateTier{PricePerKg: 1.2}
	if got := AmountFor(flat, 100); got != 120 {
		t.Fatalf("AmountFor = %v, want 120", got)
	}
}
