package payment

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/invoice"
	"github.com/stripe/stripe-go/v82/invoiceitem"
)

type StripeGatewayConfig struct {
	SecretKey string
}

type StripeGateway struct {
	config *StripeGatewayConfig
}

func NewStripeGateway(config *StripeGatewayConfig) (*StripeGateway, error) {
	if config == nil || config.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key is required")
	}
	stripe.Key = config.SecretKey
	return &StripeGateway{config: config}, nil
}

// Collect adds one invoice item per billing tier and finalizes an invoice
// that charges the customer's default payment method.
func (g *StripeGateway) Collect(ctx context.Context, req CollectRequest) (*Invoice, error) {
	if req.CustomerID == "" {
		return nil, ErrNoCustomer
	}
	metadata := map[string]string{
		MetadataLicencePlateID: strconv.Itoa(req.LicencePlateID),
		MetadataGarageID:       strconv.Itoa(req.GarageID),
		MetadataUserID:         strconv.Itoa(req.UserID),
	}

	for i, item := range req.Bill.Items {
		params := &stripe.InvoiceItemParams{
			Customer:    stripe.String(req.CustomerID),
			Amount:      stripe.Int64(toMinorUnits(item.Amount)),
			Currency:    stripe.String(strings.ToLower(item.Currency)),
			Description: stripe.String(fmt.Sprintf("%s x%d (%s)", item.Label, item.Quantity, req.Plate)),
		}
		params.Context = ctx
		setIdempotencyKey(&params.Params, req.IdempotencyKey, fmt.Sprintf("item-%d", i))
		if _, err := invoiceitem.New(params); err != nil {
			return nil, fmt.Errorf("StripeGateway.Collect (invoice item): %w", err)
		}
	}

	params := &stripe.InvoiceParams{
		Customer:                    stripe.String(req.CustomerID),
		AutoAdvance:                 stripe.Bool(true),
		CollectionMethod:            stripe.String(string(stripe.InvoiceCollectionMethodChargeAutomatically)),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		Description:                 stripe.String(fmt.Sprintf("Parking %s", req.Plate)),
	}
	params.Context = ctx
	setIdempotencyKey(&params.Params, req.IdempotencyKey, "invoice")
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	inv, err := invoice.New(params)
	if err != nil {
		return nil, fmt.Errorf("StripeGateway.Collect (invoice): %w", err)
	}

	finalizeParams := &stripe.InvoiceFinalizeInvoiceParams{AutoAdvance: stripe.Bool(true)}
	finalizeParams.Context = ctx
	setIdempotencyKey(&finalizeParams.Params, req.IdempotencyKey, "finalize")
	inv, err = invoice.FinalizeInvoice(inv.ID, finalizeParams)
	if err != nil {
		return nil, fmt.Errorf("StripeGateway.Collect (finalize): %w", err)
	}
	return &Invoice{ID: inv.ID, Status: string(inv.Status), HostedURL: inv.HostedInvoiceURL}, nil
}

// toMinorUnits converts 12.34 into 1234.
func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// setIdempotencyKey derives one key per Stripe call so a retried collection
// replays the original requests instead of creating new ones.
func setIdempotencyKey(p *stripe.Params, key, step string) {
	if key == "" {
		return
	}
	p.SetIdempotencyKey(key + "-" + step)
}
