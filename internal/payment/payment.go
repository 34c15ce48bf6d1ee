// Package payment collects parking fees through Stripe invoices and turns
// Stripe webhooks back into payment results.
package payment

import (
	"context"
	"errors"

	"parking_garage/internal/domain"
)

var ErrNoCustomer = errors.New("user has no payment customer")

// CollectRequest is one exit that has to be paid.
type CollectRequest struct {
	UserID         int
	CustomerID     string
	LicencePlateID int
	GarageID       int
	Plate          string
	Bill           domain.Bill
	// IdempotencyKey is unique per exit; the gateway derives its request keys from it.
	IdempotencyKey string
}

type Invoice struct {
	ID        string
	Status    string
	HostedURL string
}

// Gateway charges a customer for a bill. The final result arrives
// asynchronously through the webhook.
type Gateway interface {
	Collect(ctx context.Context, req CollectRequest) (*Invoice, error)
}
