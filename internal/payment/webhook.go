package payment

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

const (
	MetadataLicencePlateID = "licence_plate_id"
	MetadataGarageID       = "garage_id"
	MetadataUserID         = "user_id"
)

// InvoiceEvent is the part of a Stripe invoice webhook the exit flow needs.
type InvoiceEvent struct {
	Type           string
	InvoiceID      string
	LicencePlateID int
	Succeeded      bool
	HostedURL      string
}

// ParseInvoiceEvent verifies the signature and decodes invoice events. It
// returns nil for event types that carry no payment result.
func ParseInvoiceEvent(payload []byte, sigHeader, secret string) (*InvoiceEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, sigHeader, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("verifying webhook signature: %w", err)
	}

	var succeeded bool
	switch event.Type {
	case "invoice.paid", "invoice.payment_succeeded":
		succeeded = true
	case "invoice.payment_failed", "invoice.marked_uncollectible", "invoice.voided", "invoice.payment_action_required":
		succeeded = false
	default:
		return nil, nil
	}

	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", event.Type, err)
	}
	raw, ok := inv.Metadata[MetadataLicencePlateID]
	if !ok {
		return nil, fmt.Errorf("invoice %s has no %s metadata", inv.ID, MetadataLicencePlateID)
	}
	plateID, err := strconv.Atoi(raw)
	if err != nil {
		return nil, fmt.Errorf("invoice %s: invalid %s %q", inv.ID, MetadataLicencePlateID, raw)
	}

	return &InvoiceEvent{
		Type:           string(event.Type),
		InvoiceID:      inv.ID,
		LicencePlateID: plateID,
		Succeeded:      succeeded,
		HostedURL:      inv.HostedInvoiceURL,
	}, nil
}
