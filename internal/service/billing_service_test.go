package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parking_garage/internal/domain"
)

func TestBillingPreview(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 2)
	e.hourlyPrice(t, g.ID, "2.50")
	alice := e.user(t, "alice@example.com", domain.RoleUser)
	lp := e.plate(t, alice.ID, "ALICE1")
	billing := NewBillingService(e.core, e.notifier)

	preview, err := billing.GetBillingPreview(ctx, actorOf(alice), lp.ID)
	require.NoError(t, err)
	assert.Nil(t, preview.GarageID)
	assert.Empty(t, preview.Items)
	assert.True(t, preview.Total.IsZero())

	_, err = e.gate(GateDeps{}).DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(2*time.Hour + 30*time.Minute)

	preview, err = billing.GetBillingPreview(ctx, actorOf(alice), lp.ID)
	require.NoError(t, err)
	require.NotNil(t, preview.GarageID)
	assert.Equal(t, g.ID, *preview.GarageID)
	require.Len(t, preview.Items, 1)
	assert.Equal(t, 2, preview.Items[0].Quantity)
	assert.True(t, preview.Total.Equal(decimal.NewFromInt(5)), preview.Total.String())
	assert.Equal(t, 30*time.Minute, preview.Remaining)
	assert.Equal(t, 30*time.Minute, preview.RefreshTime)

	bob := e.user(t, "bob@example.com", domain.RoleUser)
	_, err = billing.GetBillingPreview(ctx, actorOf(bob), lp.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	staff, err := billing.GetBillingPreview(ctx, domain.Actor{UserID: bob.ID, Role: domain.RoleOperator}, lp.ID)
	require.NoError(t, err)
	assert.True(t, staff.Total.Equal(preview.Total))
}

func TestRecordPayment_RestartsBilling(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "3.00")
	alice := e.user(t, "alice@example.com", domain.RoleUser)
	lp := e.plate(t, alice.ID, "ALICE1")
	billing := NewBillingService(e.core, e.notifier)
	gate := e.gate(GateDeps{})

	_, err := billing.RecordPayment(ctx, actorOf(alice), lp.ID)
	assert.ErrorIs(t, err, domain.ErrValidation, "nothing to pay while outside")

	_, err = gate.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(3 * time.Hour)

	_, err = gate.DetectPlate(ctx, lp.Plate, g.ID)
	require.ErrorIs(t, err, domain.ErrPaymentRequired)

	paid, err := billing.RecordPayment(ctx, actorOf(alice), lp.ID)
	require.NoError(t, err)
	assert.True(t, paid.Inside())
	assert.Equal(t, e.clock.Now(), paid.PaidAt.Time)
	assert.Contains(t, e.notifier.titles(), "Payment received")

	e.clock.Advance(20 * time.Minute)
	preview, err := billing.GetBillingPreview(ctx, actorOf(alice), lp.ID)
	require.NoError(t, err)
	assert.Empty(t, preview.Items)

	res, err := gate.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSignedOut, res.Outcome)
}
