package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"parking_garage/internal/domain"
	"parking_garage/internal/payment"
	"parking_garage/internal/repository"
)

func TestDetectPlate_UnknownPlateRegistersGeneratedUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 2)
	svc := e.gate(GateDeps{})

	res, err := svc.DetectPlate(ctx, "mh-ab 123", g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRegistered, res.Outcome)
	assert.Equal(t, "MHAB123", res.Plate)
	require.NotNil(t, res.Credentials)
	assert.Len(t, res.Credentials.Password, 30)
	assert.True(t, strings.HasPrefix(res.Credentials.Email, "generated-"))
	assert.True(t, strings.HasSuffix(res.Credentials.Email, "@test.local"))
	require.NotNil(t, res.ParkingLot)

	lp, err := e.store.LicencePlates.FindByPlate(ctx, "MHAB123")
	require.NoError(t, err)
	assert.True(t, lp.Inside())
	assert.Equal(t, int64(g.ID), lp.GarageID.Int64)
	assert.Equal(t, baseTime, lp.EnteredAt.Time)

	user, err := e.store.Users.FindByID(ctx, lp.UserID)
	require.NoError(t, err)
	assert.True(t, user.IsGenerated())
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(res.Credentials.Password)))

	garage, err := e.store.Garages.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, garage.Entered)

	lot, err := e.store.ParkingLots.FindByOccupant(ctx, lp.ID)
	require.NoError(t, err)
	assert.Equal(t, res.ParkingLot.ID, lot.ID)
	assert.True(t, lot.Occupied)

	assert.Equal(t, []barrierCall{{GarageID: g.ID, Direction: domain.GateDirectionEntry}}, e.barrier.calls)
	require.Len(t, e.events.events, 1)
	assert.Equal(t, domain.OutcomeRegistered, e.events.events[0].Outcome)
}

func TestDetectPlate_GeneratedUserLeavesForFree(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	svc := e.gate(GateDeps{})

	entry, err := svc.DetectPlate(ctx, "AB12CD", g.ID)
	require.NoError(t, err)
	e.clock.Advance(45 * time.Minute)

	exit, err := svc.DetectPlate(ctx, "AB12CD", g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSignedOut, exit.Outcome)

	_, err = e.store.LicencePlates.FindByPlate(ctx, "AB12CD")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	_, err = e.store.Users.FindByEmail(ctx, entry.Credentials.Email)
	assert.ErrorIs(t, err, repository.ErrNotFound)

	lot, err := e.store.ParkingLots.FindByID(ctx, entry.ParkingLot.ID)
	require.NoError(t, err)
	assert.False(t, lot.Occupied)
	assert.False(t, lot.OccupantPlateID.Valid)

	garage, err := e.store.Garages.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, garage.Entered)
	require.Len(t, e.barrier.calls, 2)
	assert.Equal(t, domain.GateDirectionExit, e.barrier.calls[1].Direction)
}

func TestDetectPlate_FullGarageRejectsWalkIn(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	svc := e.gate(GateDeps{})

	_, err := svc.DetectPlate(ctx, "AA11AA", g.ID)
	require.NoError(t, err)

	res, err := svc.DetectPlate(ctx, "BB22BB", g.ID)
	require.ErrorIs(t, err, domain.ErrCapacityExceeded)
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.NotEmpty(t, res.Reason)

	_, err = e.store.LicencePlates.FindByPlate(ctx, "BB22BB")
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Len(t, e.barrier.calls, 1)
	assert.Len(t, e.events.events, 2)
}

func TestDetectPlate_ReservedCapacityAdmitsOnlyHolder(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 2)
	svc := e.gate(GateDeps{})

	holder := e.plate(t, e.user(t, "holder@example.com", domain.RoleUser).ID, "HOLD01")
	res := e.reservation(t, g.ID, lots[0].ID, holder, baseTime.Add(10*time.Minute), baseTime.Add(3*time.Hour))

	walkIn, err := svc.DetectPlate(ctx, "WALK01", g.ID)
	require.NoError(t, err)
	require.NotNil(t, walkIn.ParkingLot)
	assert.Equal(t, lots[1].ID, walkIn.ParkingLot.ID, "the booked lot is not handed to walk-ins")

	_, err = svc.DetectPlate(ctx, "WALK02", g.ID)
	assert.ErrorIs(t, err, domain.ErrCapacityExceeded)

	entry, err := svc.DetectPlate(ctx, "HOLD01", g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRegistered, entry.Outcome)
	require.NotNil(t, entry.ReservationID)
	assert.Equal(t, res.ID, *entry.ReservationID)
	require.NotNil(t, entry.ParkingLot)
	assert.Equal(t, lots[0].ID, entry.ParkingLot.ID)

	stored, err := e.store.Reservations.FindByID(ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, stored.Showed)
}

func TestDetectPlate_ExitOwedWithoutAutomaticPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.50")
	lp := e.plate(t, e.user(t, "driver@example.com", domain.RoleUser).ID, "PAY001")
	svc := e.gate(GateDeps{Payments: e.payments})

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(3*time.Hour + 10*time.Minute)

	res, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.ErrorIs(t, err, domain.ErrPaymentRequired)
	var pr *domain.PaymentRequiredError
	require.ErrorAs(t, err, &pr)
	assert.True(t, pr.Bill.Total.Equal(decimal.RequireFromString("7.50")), pr.Bill.Total.String())
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	require.NotNil(t, res.Bill)
	assert.Equal(t, 10*time.Minute, res.Bill.Remaining)

	stored, err := e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.True(t, stored.Inside())
	assert.Empty(t, e.payments.requests)
}

func TestDetectPlate_AutomaticPaymentInvoicesThenSignsOut(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.00")
	user := e.payingUser(t, "auto@example.com")
	lp := e.plate(t, user.ID, "AUTO01")
	svc := e.gate(GateDeps{Payments: e.payments})

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(2 * time.Hour)

	res, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvoiced, res.Outcome)
	require.Len(t, e.payments.requests, 1)
	req := e.payments.requests[0]
	assert.Equal(t, "cus_123", req.CustomerID)
	assert.Equal(t, lp.ID, req.LicencePlateID)
	assert.True(t, req.Bill.Total.Equal(decimal.NewFromInt(4)))
	assert.Len(t, e.barrier.calls, 1, "the exit barrier waits for the payment result")

	stored, err := e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.True(t, stored.Inside())

	paid, err := svc.OnPaymentResult(ctx, lp.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSignedOut, paid.Outcome)

	stored, err = e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.False(t, stored.Inside())
	assert.Equal(t, e.clock.Now(), stored.PaidAt.Time)
	require.Len(t, e.barrier.calls, 2)
	assert.Equal(t, domain.GateDirectionExit, e.barrier.calls[1].Direction)

	again, err := svc.OnPaymentResult(ctx, lp.ID, true)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, again.Outcome)
}

func TestHandleInvoiceEvent_FailureKeepsPlateInside(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.00")
	lp := e.plate(t, e.payingUser(t, "auto@example.com").ID, "AUTO02")
	svc := e.gate(GateDeps{Payments: e.payments})

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(90 * time.Minute)
	_, err = svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)

	err = svc.HandleInvoiceEvent(ctx, &payment.InvoiceEvent{
		Type: "invoice.payment_failed", InvoiceID: "in_1", LicencePlateID: lp.ID,
		HostedURL: "https://pay.example/in_1",
	})
	require.NoError(t, err)

	stored, err := e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.True(t, stored.Inside())
	last := e.notifier.sent[len(e.notifier.sent)-1]
	assert.Equal(t, "Payment failed", last.Title)
	assert.Contains(t, last.Content, "https://pay.example/in_1")

	assert.NoError(t, svc.HandleInvoiceEvent(ctx, &payment.InvoiceEvent{LicencePlateID: 999, Succeeded: true}))
}

func TestDetectPlate_FailedCollectionNotifiesUser(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.00")
	lp := e.plate(t, e.payingUser(t, "auto@example.com").ID, "AUTO03")
	e.payments.err = errors.New("card declined")
	svc := e.gate(GateDeps{Payments: e.payments})

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(time.Hour)
	res, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvoiced, res.Outcome)
	assert.Contains(t, e.notifier.titles(), "Payment failed")

	stored, err := e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.False(t, stored.InvoicePending(), "nothing was invoiced, so the next read may try again")

	e.payments.err = nil
	_, err = svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Len(t, e.payments.requests, 2)
}

func TestDetectPlate_RepeatedExitReadsCollectOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.00")
	lp := e.plate(t, e.payingUser(t, "auto@example.com").ID, "AUTO04")
	svc := e.gate(GateDeps{Payments: e.payments})

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(3 * time.Hour)

	first, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvoiced, first.Outcome)

	e.clock.Advance(time.Minute)
	second, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeInvoiced, second.Outcome)
	require.NotNil(t, second.Bill)

	require.Len(t, e.payments.requests, 1, "an exit read while the invoice is open must not charge again")
	assert.NotEmpty(t, e.payments.requests[0].IdempotencyKey)

	stored, err := e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.True(t, stored.InvoicePending())
	assert.Equal(t, "in_test", stored.InvoiceID.String)

	err = svc.HandleInvoiceEvent(ctx, &payment.InvoiceEvent{InvoiceID: "in_test", LicencePlateID: lp.ID, Succeeded: true})
	require.NoError(t, err)
	stored, err = e.store.LicencePlates.FindByID(ctx, lp.ID)
	require.NoError(t, err)
	assert.False(t, stored.Inside())
	assert.False(t, stored.InvoicePending())
	assert.False(t, stored.InvoiceID.Valid)
}

func TestDetectPlate_FailedInvoiceRequiresManualPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	e.hourlyPrice(t, g.ID, "2.00")
	user := e.payingUser(t, "auto@example.com")
	lp := e.plate(t, user.ID, "AUTO05")
	svc := e.gate(GateDeps{Payments: e.payments})
	billing := NewBillingService(e.core, e.notifier)

	_, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	e.clock.Advance(2 * time.Hour)
	_, err = svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)

	_, err = billing.RecordPayment(ctx, actorOf(user), lp.ID)
	require.ErrorIs(t, err, domain.ErrConflict, "the kiosk waits for the open invoice")

	err = svc.HandleInvoiceEvent(ctx, &payment.InvoiceEvent{InvoiceID: "in_test", LicencePlateID: lp.ID})
	require.NoError(t, err)

	res, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.ErrorIs(t, err, domain.ErrPaymentRequired)
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)
	assert.Len(t, e.payments.requests, 1)

	paid, err := billing.RecordPayment(ctx, actorOf(user), lp.ID)
	require.NoError(t, err)
	assert.False(t, paid.InvoiceID.Valid)

	left, err := svc.DetectPlate(ctx, lp.Plate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSignedOut, left.Outcome)
	assert.Len(t, e.payments.requests, 1)
}

func TestDetectPlate_EnteredFollowsEnterExitSequence(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, lots := e.garage(t, 2)
	svc := e.gate(GateDeps{})
	for _, p := range []string{"SEQ001", "SEQ002", "SEQ003"} {
		e.plate(t, e.user(t, strings.ToLower(p)+"@example.com", domain.RoleUser).ID, p)
	}

	steps := []struct {
		plate   string
		entered int
		err     error
	}{
		{"SEQ001", 1, nil},
		{"SEQ002", 2, nil},
		{"SEQ003", 2, domain.ErrCapacityExceeded},
		{"SEQ001", 1, nil},
		{"SEQ003", 2, nil},
		{"SEQ002", 1, nil},
		{"SEQ003", 0, nil},
		{"SEQ001", 1, nil},
	}
	for i, step := range steps {
		e.clock.Advance(5 * time.Minute)
		_, err := svc.DetectPlate(ctx, step.plate, g.ID)
		if step.err != nil {
			require.ErrorIs(t, err, step.err, "step %d", i)
		} else {
			require.NoError(t, err, "step %d", i)
		}

		stored, err := e.store.Garages.FindByID(ctx, g.ID)
		require.NoError(t, err)
		assert.Equal(t, step.entered, stored.Entered, "step %d (%s)", i, step.plate)
		assert.LessOrEqual(t, stored.Entered, len(lots), "step %d", i)

		inside, err := e.store.LicencePlates.FindInsideGarage(ctx, g.ID)
		require.NoError(t, err)
		assert.Len(t, inside, stored.Entered, "step %d", i)
	}
}

func TestDetectPlate_InsideAnotherGarage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g1, _ := e.garage(t, 1)
	g2, _ := e.garage(t, 1)
	svc := e.gate(GateDeps{})

	_, err := svc.DetectPlate(ctx, "XY99ZZ", g1.ID)
	require.NoError(t, err)

	res, err := svc.DetectPlate(ctx, "XY99ZZ", g2.ID)
	require.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, domain.OutcomeRejected, res.Outcome)

	garage, err := e.store.Garages.FindByID(ctx, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, garage.Entered)
}

func TestDetectPlate_IgnoredAndRepeatedReads(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 2)
	svc := e.gate(GateDeps{Guard: &fakeGuard{}})

	res, err := svc.DetectPlate(ctx, domain.IgnoredPlate, g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)

	_, err = svc.DetectPlate(ctx, "RE12AD", g.ID)
	require.NoError(t, err)
	res, err = svc.DetectPlate(ctx, "re-12 ad", g.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeIgnored, res.Outcome)

	garage, err := e.store.Garages.FindByID(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, garage.Entered)
	assert.Len(t, e.barrier.calls, 1)

	_, err = svc.DetectPlate(ctx, "  ", g.ID)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = svc.DetectPlate(ctx, "NO12GA", 404)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestHandleDetectionMessage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)
	svc := e.gate(GateDeps{Recognizer: fakeRecognizer{plate: "IMG001"}})

	assert.NoError(t, svc.HandleDetectionMessage(ctx, "{"))
	assert.NoError(t, svc.HandleDetectionMessage(ctx, `{"garage_id": 404, "licence_plate": "LOST01"}`))

	require.NoError(t, svc.HandleDetectionMessage(ctx, fmt.Sprintf(`{"garage_id": %d, "licence_plate": "Q 11 QQ"}`, g.ID)))
	lp, err := e.store.LicencePlates.FindByPlate(ctx, "Q11QQ")
	require.NoError(t, err)
	assert.True(t, lp.Inside())

	image := base64.StdEncoding.EncodeToString([]byte("jpeg"))
	assert.NoError(t, svc.HandleDetectionMessage(ctx, fmt.Sprintf(`{"garage_id": %d, "image_base64": %q}`, g.ID, image)),
		"a full garage is a final answer")
	_, err = e.store.LicencePlates.FindByPlate(ctx, "IMG001")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestDetectImage(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	g, _ := e.garage(t, 1)

	svc := e.gate(GateDeps{Recognizer: fakeRecognizer{plate: "CAM123"}})
	resp, err := svc.DetectImage(ctx, g.ID, []byte("jpeg"), domain.SourceAPI)
	require.NoError(t, err)
	assert.Equal(t, "CAM123", resp.DetectedPlate)
	require.NotNil(t, resp.Result)
	assert.Equal(t, domain.OutcomeRegistered, resp.Result.Outcome)

	blind := e.gate(GateDeps{Recognizer: fakeRecognizer{err: ErrPlateNotRecognized}})
	resp, err = blind.DetectImage(ctx, g.ID, []byte("jpeg"), domain.SourceAPI)
	assert.ErrorIs(t, err, ErrPlateNotRecognized)
	assert.NotEmpty(t, resp.ErrorMessage)
}
