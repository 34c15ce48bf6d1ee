package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"parking_garage/internal/domain"
)

// BillableDuration is the time since the later of paid_at and entered_at.
func BillableDuration(plate domain.LicencePlate, now time.Time) time.Duration {
	var since time.Time
	switch {
	case plate.PaidAt.Valid && plate.EnteredAt.Valid:
		since = plate.PaidAt.Time
		if plate.EnteredAt.Time.After(since) {
			since = plate.EnteredAt.Time
		}
	case plate.PaidAt.Valid:
		since = plate.PaidAt.Time
	case plate.EnteredAt.Valid:
		since = plate.EnteredAt.Time
	default:
		return 0
	}
	if d := now.Sub(since); d > 0 {
		return d
	}
	return 0
}

// ComputeBill consumes elapsed greedily from the largest tier down. The
// remainder left under the smallest tier is not billed; RefreshTime says how
// long until it turns into one more unit.
func ComputeBill(prices []domain.Price, elapsed time.Duration) (domain.Bill, error) {
	bill := domain.Bill{Elapsed: elapsed, Remaining: elapsed, Total: decimal.Zero}
	if len(prices) == 0 {
		return bill, nil
	}
	for _, p := range prices {
		if p.Duration <= 0 {
			return domain.Bill{}, domain.NewValidationError("price %q has a non-positive duration", p.Label)
		}
		if !p.Price.IsPositive() {
			return domain.Bill{}, domain.NewValidationError("price %q must be positive", p.Label)
		}
	}

	tiers := make([]domain.Price, len(prices))
	copy(tiers, prices)
	sort.SliceStable(tiers, func(i, j int) bool { return tiers[i].Duration > tiers[j].Duration })

	remaining := elapsed
	if remaining < 0 {
		remaining = 0
	}
	for _, tier := range tiers {
		qty := int(remaining / tier.Duration)
		remaining -= time.Duration(qty) * tier.Duration
		if qty == 0 {
			continue
		}
		amount := tier.Price.Mul(decimal.NewFromInt(int64(qty)))
		bill.Items = append(bill.Items, domain.BillingItem{
			PriceID:   tier.ID,
			Label:     tier.Label,
			Duration:  tier.Duration,
			Quantity:  qty,
			UnitPrice: tier.Price,
			Amount:    amount,
			Currency:  tier.Currency,
			StripeID:  tier.StripeIdentifier.String,
		})
		bill.Total = bill.Total.Add(amount)
	}

	bill.Remaining = remaining
	bill.RefreshTime = tiers[len(tiers)-1].Duration - remaining
	bill.Currency = tiers[0].Currency
	return bill, nil
}
