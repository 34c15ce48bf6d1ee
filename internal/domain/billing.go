package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// BillingItem is one consumed tier of the price ladder.
type BillingItem struct {
	PriceID   int             `json:"price_id"`
	Label     string          `json:"price_string"`
	Duration  time.Duration   `json:"duration"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Amount    decimal.Decimal `json:"amount"`
	Currency  string          `json:"valuta"`
	StripeID  string          `json:"stripe_identifier,omitempty"`
}

// Bill is the outcome of tiered billing for one stay.
type Bill struct {
	Items       []BillingItem   `json:"items"`
	Elapsed     time.Duration   `json:"elapsed"`
	Remaining   time.Duration   `json:"remaining"`
	RefreshTime time.Duration   `json:"refresh_time"`
	Total       decimal.Decimal `json:"total"`
	Currency    string          `json:"valuta,omitempty"`
}

// PaidFor holds when no tier has been consumed or nothing is owed.
func (b Bill) PaidFor() bool {
	return len(b.Items) == 0 || !b.Total.IsPositive()
}

type BillingPreview struct {
	LicencePlateID int  `json:"licence_plate_id"`
	GarageID       *int `json:"garage_id"`
	Bill
}
