package service

import (
	"cmp"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/logger"
	"parking_garage/internal/payment"
	"parking_garage/internal/repository"
)

// GateDeps are the collaborators of the gate. Any of them may be nil except Auth.
type GateDeps struct {
	Auth       *AuthService
	Payments   payment.Gateway
	Notifier   Notifier
	Barrier    BarrierController
	Events     GateEventBroadcaster
	Guard      DetectionGuard
	Recognizer PlateRecognizer
}

// GateService drives the entry/exit state machine of licence plates.
type GateService struct {
	*Core
	auth       *AuthService
	payments   payment.Gateway
	notifier   Notifier
	barrier    BarrierController
	events     GateEventBroadcaster
	guard      DetectionGuard
	recognizer PlateRecognizer
	log        *logger.Logger
}

func NewGateService(core *Core, deps GateDeps) *GateService {
	log := logger.Named("gate")
	s := &GateService{
		Core:       core,
		auth:       deps.Auth,
		payments:   deps.Payments,
		notifier:   notifyOrLog(log, deps.Notifier),
		barrier:    deps.Barrier,
		events:     deps.Events,
		guard:      deps.Guard,
		recognizer: deps.Recognizer,
		log:        log,
	}
	if s.events == nil {
		s.events = noopBroadcaster{}
	}
	return s
}

// DetectPlate processes one camera read of plate at garageID. Rejections
// return both the rejected result and the typed error.
func (s *GateService) DetectPlate(ctx context.Context, plate string, garageID int) (*domain.EntryExitResult, error) {
	return s.detect(ctx, garageID, plate, domain.SourceAPI, nil)
}

// DetectImage recognises the plate on a camera frame and processes it.
func (s *GateService) DetectImage(ctx context.Context, garageID int, image []byte, source domain.DetectionSource) (*domain.LPRResponseDTO, error) {
	if s.recognizer == nil {
		return nil, fmt.Errorf("GateService.DetectImage: no plate recognizer configured")
	}
	plate, confidence, err := s.recognizer.RecognizePlate(ctx, image)
	if err != nil {
		s.record(ctx, garageID, "", source, "unrecognised", err.Error(), nil)
		return &domain.LPRResponseDTO{ErrorMessage: err.Error()}, err
	}
	resp := &domain.LPRResponseDTO{DetectedPlate: plate, Confidence: confidence}
	result, err := s.detect(ctx, garageID, plate, source, nil)
	resp.Result = result
	if err != nil {
		resp.ErrorMessage = err.Error()
	}
	return resp, err
}

// HandleDetectionMessage processes a queue message. Business rejections are
// final and reported as success so the message is not redelivered.
func (s *GateService) HandleDetectionMessage(ctx context.Context, body string) error {
	var msg domain.DetectionMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		s.log.Warn("dropping malformed detection message", zap.Error(err))
		s.record(ctx, 0, "", domain.SourceQueue, "malformed", err.Error(), nil)
		return nil
	}
	if msg.GarageID <= 0 {
		s.log.Warn("dropping detection message without garage", zap.String("camera_id", msg.CameraID))
		return nil
	}

	var err error
	switch {
	case msg.LicencePlate != "":
		payload, _ := json.Marshal(msg)
		_, err = s.detect(ctx, msg.GarageID, msg.LicencePlate, domain.SourceQueue, payload)
	case msg.ImageBase64 != "":
		image, decodeErr := base64.StdEncoding.DecodeString(msg.ImageBase64)
		if decodeErr != nil {
			s.log.Warn("dropping detection message with bad image", zap.Error(decodeErr))
			return nil
		}
		_, err = s.DetectImage(ctx, msg.GarageID, image, domain.SourceQueue)
		if errors.Is(err, ErrPlateNotRecognized) {
			return nil
		}
	default:
		s.log.Warn("dropping empty detection message", zap.Int("garage_id", msg.GarageID))
		return nil
	}
	if err == nil || isFinal(err) {
		return nil
	}
	return err
}

// isFinal reports errors that a redelivery cannot fix.
func isFinal(err error) bool {
	for _, target := range []error{
		domain.ErrValidation, domain.ErrConflict, domain.ErrCapacityExceeded,
		domain.ErrPaymentRequired, domain.ErrNotFound, domain.ErrNoLotAvailable,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *GateService) detect(ctx context.Context, garageID int, raw string, source domain.DetectionSource, payload json.RawMessage) (*domain.EntryExitResult, error) {
	now := s.now()
	plate := domain.NormalizePlate(raw)
	if plate == "" {
		return nil, domain.NewValidationError("licence plate is required")
	}

	if plate == domain.IgnoredPlate {
		result := &domain.EntryExitResult{Outcome: domain.OutcomeIgnored, Reason: "placeholder plate", GarageID: garageID, Plate: plate, At: now}
		s.record(ctx, garageID, plate, source, string(result.Outcome), result.Reason, payload)
		return result, nil
	}
	if s.guard != nil {
		allowed, err := s.guard.Allow(ctx, garageID, plate)
		logErr(s.log, "detection guard unavailable", err, zap.Int("garage_id", garageID))
		if !allowed {
			result := &domain.EntryExitResult{Outcome: domain.OutcomeIgnored, Reason: "repeated detection", GarageID: garageID, Plate: plate, At: now}
			s.record(ctx, garageID, plate, source, string(result.Outcome), result.Reason, payload)
			return result, nil
		}
	}

	var (
		result *domain.EntryExitResult
		denied error
		after  afterCommit
		garage *domain.Garage
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		after.reset()
		result, denied = nil, nil
		var err error
		garage, err = s.garage(ctx, garageID, true)
		if err != nil {
			return err
		}
		result = &domain.EntryExitResult{GarageID: garageID, Plate: plate, At: now}
		err = s.decide(ctx, garage, plate, now, result, &after)
		var rej *rejection
		if errors.As(err, &rej) {
			denied = rej.err
			return nil
		}
		return err
	})
	if err != nil {
		s.record(ctx, garageID, plate, source, "error", err.Error(), payload)
		return nil, err
	}
	if denied != nil {
		result.Outcome = domain.OutcomeRejected
		result.Reason = denied.Error()
	}

	after.run(ctx)
	s.publish(ctx, garage, result)
	s.record(ctx, garageID, plate, source, string(result.Outcome), result.Reason, payload)
	return result, denied
}

// rejection denies a detection. Nothing has been mutated when it is returned.
type rejection struct {
	err error
}

func (r *rejection) Error() string { return r.err.Error() }
func (r *rejection) Unwrap() error { return r.err }

func reject(err error) error {
	return &rejection{err: err}
}

// decide applies one detection to the locked garage: it either rejects it or
// fills result and queues the side effects.
func (s *GateService) decide(ctx context.Context, garage *domain.Garage, plate string, now time.Time, result *domain.EntryExitResult, after *afterCommit) error {
	lp, err := s.Store.LicencePlates.FindByPlate(ctx, plate)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return s.admitUnknown(ctx, garage, plate, result, after)
	case err != nil:
		return fmt.Errorf("GateService: find plate %s: %w", plate, err)
	}
	result.LicencePlateID = lp.ID

	if !lp.Inside() {
		return s.admit(ctx, garage, lp, now, result, after)
	}
	if int(lp.GarageID.Int64) != garage.ID {
		return reject(domain.NewConflictError("licence plate %s is inside garage %d", plate, lp.GarageID.Int64))
	}
	return s.leave(ctx, garage, lp, now, result, after)
}

func (s *GateService) admitUnknown(ctx context.Context, garage *domain.Garage, plate string, result *domain.EntryExitResult, after *afterCommit) error {
	states, err := s.lotStates(ctx, garage.ID)
	if err != nil {
		return err
	}
	r := s.resolver(garage)
	if !r.CanEnter(*garage, states, nil) {
		return reject(&domain.CapacityExceededError{GarageID: garage.ID, Plate: plate})
	}

	user, creds, err := s.auth.GenerateUser(ctx)
	if err != nil {
		return err
	}
	lp, err := s.Store.LicencePlates.Create(ctx, &domain.LicencePlate{UserID: user.ID, Plate: plate, Enabled: true})
	if err != nil {
		return fmt.Errorf("GateService: create plate %s: %w", plate, err)
	}
	result.LicencePlateID = lp.ID
	result.Credentials = creds
	return s.enter(ctx, garage, states, r, lp, nil, result, after)
}

func (s *GateService) admit(ctx context.Context, garage *domain.Garage, lp *domain.LicencePlate, now time.Time, result *domain.EntryExitResult, after *afterCommit) error {
	states, err := s.lotStates(ctx, garage.ID)
	if err != nil {
		return err
	}
	reservations, err := s.Store.Reservations.FindByLicencePlateID(ctx, lp.ID)
	if err != nil {
		return fmt.Errorf("GateService: reservations of plate %d: %w", lp.ID, err)
	}
	r := s.resolver(garage)
	if !r.CanEnter(*garage, states, reservations) {
		return reject(&domain.CapacityExceededError{GarageID: garage.ID, Plate: lp.Plate})
	}

	open := r.Config().OpenReservation(reservations, garage.ID, now)
	if open != nil && r.Config().MarkShowed(open, now) {
		if _, err := s.Store.Reservations.Update(ctx, open); err != nil {
			return fmt.Errorf("GateService: mark reservation %d showed: %w", open.ID, err)
		}
		id := open.ID
		result.ReservationID = &id
	}
	return s.enter(ctx, garage, states, r, lp, open, result, after)
}

// enter moves lp INSIDE and binds it to a lot: the reserved one when free,
// otherwise a random candidate. A garage with no candidate still admits.
func (s *GateService) enter(ctx context.Context, garage *domain.Garage, states []engine.LotState, r *engine.Resolver, lp *domain.LicencePlate, open *domain.Reservation, result *domain.EntryExitResult, after *afterCommit) error {
	now := r.Now()
	lp.Enter(garage.ID, now)
	if _, err := s.Store.LicencePlates.Update(ctx, lp); err != nil {
		return fmt.Errorf("GateService: enter plate %s: %w", lp.Plate, err)
	}

	var lot *domain.ParkingLot
	if open != nil {
		if i, ok := findState(states, open.ParkingLotID); ok && !states[i].Lot.Occupied && !states[i].Lot.Disabled {
			reserved := states[i].Lot
			lot = &reserved
		}
	}
	if lot == nil {
		picked, err := s.Selector.AssignRandomLot(r, garage.ID, states, now, now.Add(r.Config().DefaultParkWindow))
		switch {
		case errors.Is(err, domain.ErrNoLotAvailable):
			s.log.Warn("admitted without a lot", zap.Int("garage_id", garage.ID), zap.String("plate", lp.Plate))
		case err != nil:
			return err
		default:
			lot = picked
		}
	}
	if lot != nil {
		lot.Occupy(lp.ID)
		if _, err := s.Store.ParkingLots.Update(ctx, lot); err != nil {
			return fmt.Errorf("GateService: occupy lot %d: %w", lot.ID, err)
		}
		result.ParkingLot = lot
	}

	entered, err := s.Store.Garages.AdjustEntered(ctx, garage.ID, 1)
	if err != nil {
		return fmt.Errorf("GateService: count entry: %w", err)
	}
	garage.Entered = entered
	result.Outcome = domain.OutcomeRegistered

	userID, name := lp.UserID, garage.Name
	content := "You entered " + name + "."
	if lot != nil {
		content = fmt.Sprintf("You entered %s. Your parking lot is number %d on floor %d.", name, lot.LotNumber, lot.FloorNumber)
	}
	after.add(func(ctx context.Context) {
		s.Metrics.SetEntered(garage.ID, entered)
		s.notifier.Notify(ctx, userID, "Welcome", content)
	})
	return nil
}

func (s *GateService) leave(ctx context.Context, garage *domain.Garage, lp *domain.LicencePlate, now time.Time, result *domain.EntryExitResult, after *afterCommit) error {
	prices, err := s.Store.Prices.FindByGarageID(ctx, garage.ID)
	if err != nil {
		return fmt.Errorf("GateService: prices of garage %d: %w", garage.ID, err)
	}
	bill, err := engine.ComputeBill(prices, engine.BillableDuration(*lp, now))
	if err != nil {
		return err
	}
	if bill.PaidFor() {
		return s.signOut(ctx, garage, lp, now, result, after)
	}

	result.Bill = &bill
	if lp.InvoicePending() {
		// the gateway is already collecting this stay
		result.Outcome = domain.OutcomeInvoiced
		return nil
	}
	user, err := s.Store.Users.FindByID(ctx, lp.UserID)
	if err != nil {
		return repository.NotFound(err, repository.EntityUser, lp.UserID)
	}
	if s.payments == nil || !user.HasAutomaticPayment || !user.StripeCustomerID.Valid || lp.InvoiceFailed() {
		return reject(&domain.PaymentRequiredError{Plate: lp.Plate, Bill: &bill})
	}

	// postgres keeps microseconds; settleInvoice compares against the stored value
	pendingAt := now.Truncate(time.Microsecond)
	lp.InvoicePendingAt = null.TimeFrom(pendingAt)
	if _, err := s.Store.LicencePlates.Update(ctx, lp); err != nil {
		return fmt.Errorf("GateService: mark invoice pending for plate %s: %w", lp.Plate, err)
	}
	result.Outcome = domain.OutcomeInvoiced
	req := payment.CollectRequest{
		UserID:         user.ID,
		CustomerID:     user.StripeCustomerID.String,
		LicencePlateID: lp.ID,
		GarageID:       garage.ID,
		Plate:          lp.Plate,
		Bill:           bill,
		IdempotencyKey: fmt.Sprintf("parking-%d-%d", lp.ID, pendingAt.UnixMicro()),
	}
	after.add(func(ctx context.Context) { s.collect(ctx, req, pendingAt) })
	return nil
}

// collect charges the bill. pendingAt identifies the exit that asked for it;
// the plate keeps its invoice state only while that exit is still pending.
func (s *GateService) collect(ctx context.Context, req payment.CollectRequest, pendingAt time.Time) {
	inv, err := s.payments.Collect(ctx, req)
	if err != nil {
		s.Metrics.PaymentResults.WithLabelValues("collect_failed").Inc()
		s.log.Error("could not collect parking fee",
			zap.Int("licence_plate_id", req.LicencePlateID), zap.String("total", req.Bill.Total.String()), zap.Error(err))
		logErr(s.log, "could not clear pending invoice", s.settleInvoice(ctx, req.LicencePlateID, pendingAt, null.String{}),
			zap.Int("licence_plate_id", req.LicencePlateID))
		s.notifier.Notify(ctx, req.UserID, "Payment failed",
			fmt.Sprintf("We could not charge %s %s for %s. Please pay at the kiosk.", req.Bill.Total.StringFixed(2), req.Bill.Currency, req.Plate))
		return
	}
	s.Metrics.PaymentResults.WithLabelValues("invoiced").Inc()
	s.log.Info("parking fee invoiced", zap.String("invoice_id", inv.ID), zap.Int("licence_plate_id", req.LicencePlateID))
	logErr(s.log, "could not store invoice id", s.settleInvoice(ctx, req.LicencePlateID, pendingAt, null.StringFrom(inv.ID)),
		zap.Int("licence_plate_id", req.LicencePlateID), zap.String("invoice_id", inv.ID))
}

// settleInvoice stores the gateway's answer on a plate still pending since
// pendingAt. An invalid invoiceID means nothing was invoiced and the next
// exit read may try again.
func (s *GateService) settleInvoice(ctx context.Context, plateID int, pendingAt time.Time, invoiceID null.String) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		lp, err := s.Store.LicencePlates.FindByID(ctx, plateID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}
		if !lp.InvoicePendingAt.Valid || !lp.InvoicePendingAt.Time.Equal(pendingAt) {
			return nil
		}
		if invoiceID.Valid {
			lp.InvoiceID = invoiceID
		} else {
			lp.ClearInvoice()
		}
		_, err = s.Store.LicencePlates.Update(ctx, lp)
		return err
	})
}

// signOut finalizes an exit. Generated users disappear with their plate;
// registered plates go back OUTSIDE with paid_at set.
func (s *GateService) signOut(ctx context.Context, garage *domain.Garage, lp *domain.LicencePlate, now time.Time, result *domain.EntryExitResult, after *afterCommit) error {
	lot, err := s.Store.ParkingLots.FindByOccupant(ctx, lp.ID)
	switch {
	case err == nil:
		lot.Release()
		if _, err := s.Store.ParkingLots.Update(ctx, lot); err != nil {
			return fmt.Errorf("GateService: release lot %d: %w", lot.ID, err)
		}
		result.ParkingLot = lot
	case !errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("GateService: lot of plate %d: %w", lp.ID, err)
	}

	user, err := s.Store.Users.FindByID(ctx, lp.UserID)
	if err != nil {
		return repository.NotFound(err, repository.EntityUser, lp.UserID)
	}
	if user.IsGenerated() {
		if err := s.Store.Reservations.DeleteByLicencePlateID(ctx, lp.ID); err != nil {
			return fmt.Errorf("GateService: drop reservations of plate %d: %w", lp.ID, err)
		}
		if err := s.Store.LicencePlates.Delete(ctx, lp.ID); err != nil {
			return fmt.Errorf("GateService: drop plate %d: %w", lp.ID, err)
		}
		if err := s.Store.Users.Delete(ctx, user.ID); err != nil {
			return fmt.Errorf("GateService: drop generated user %d: %w", user.ID, err)
		}
	} else {
		lp.SignOut(now)
		if _, err := s.Store.LicencePlates.Update(ctx, lp); err != nil {
			return fmt.Errorf("GateService: sign out plate %s: %w", lp.Plate, err)
		}
	}

	entered, err := s.Store.Garages.AdjustEntered(ctx, garage.ID, -1)
	if err != nil {
		return fmt.Errorf("GateService: count exit: %w", err)
	}
	garage.Entered = entered
	result.Outcome = domain.OutcomeSignedOut

	generated, userID, name := user.IsGenerated(), user.ID, garage.Name
	after.add(func(ctx context.Context) {
		s.Metrics.SetEntered(garage.ID, entered)
		if !generated {
			s.notifier.Notify(ctx, userID, "Goodbye", "You left "+name+".")
		}
	})
	return nil
}

// OnPaymentResult settles an invoiced exit. Success signs the plate out and
// opens the exit barrier; failure leaves it INSIDE and tells the user.
func (s *GateService) OnPaymentResult(ctx context.Context, plateID int, succeeded bool) (*domain.EntryExitResult, error) {
	return s.paymentResult(ctx, plateID, succeeded, "", "")
}

// HandleInvoiceEvent applies a Stripe invoice webhook.
func (s *GateService) HandleInvoiceEvent(ctx context.Context, ev *payment.InvoiceEvent) error {
	if ev == nil || ev.LicencePlateID == 0 {
		return nil
	}
	_, err := s.paymentResult(ctx, ev.LicencePlateID, ev.Succeeded, ev.InvoiceID, ev.HostedURL)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("invoice event for unknown plate", zap.String("invoice_id", ev.InvoiceID), zap.Int("licence_plate_id", ev.LicencePlateID))
		return nil
	}
	return err
}

// failedInvoice marks a failed payment whose invoice id is unknown.
const failedInvoice = "unpaid"

func (s *GateService) paymentResult(ctx context.Context, plateID int, succeeded bool, invoiceID, hostedURL string) (*domain.EntryExitResult, error) {
	now := s.now()
	outcome := "failed"
	if succeeded {
		outcome = "succeeded"
	}
	s.Metrics.PaymentResults.WithLabelValues(outcome).Inc()

	var (
		result *domain.EntryExitResult
		after  afterCommit
		garage *domain.Garage
		userID int
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		after.reset()
		lp, err := s.Store.LicencePlates.FindByID(ctx, plateID)
		if err != nil {
			return repository.NotFound(err, repository.EntityLicencePlate, plateID)
		}
		userID = lp.UserID
		result = &domain.EntryExitResult{Plate: lp.Plate, LicencePlateID: lp.ID, At: now, Outcome: domain.OutcomeIgnored}
		if !succeeded || !lp.Inside() {
			if !lp.Inside() {
				return nil
			}
			result.GarageID = int(lp.GarageID.Int64)
			result.Outcome = domain.OutcomeInvoiced
			// the next exit read asks for a manual payment instead of invoicing again
			lp.InvoicePendingAt = null.Time{}
			lp.InvoiceID = null.StringFrom(cmp.Or(invoiceID, lp.InvoiceID.String, failedInvoice))
			if _, err := s.Store.LicencePlates.Update(ctx, lp); err != nil {
				return fmt.Errorf("GateService: record failed invoice for plate %s: %w", lp.Plate, err)
			}
			return nil
		}
		garage, err = s.garage(ctx, int(lp.GarageID.Int64), true)
		if err != nil {
			return err
		}
		result.GarageID = garage.ID
		return s.signOut(ctx, garage, lp, now, result, &after)
	})
	if err != nil {
		return nil, err
	}

	if !succeeded {
		content := fmt.Sprintf("The payment for %s failed.", result.Plate)
		if hostedURL != "" {
			content += " You can pay the invoice at " + hostedURL
		}
		s.notifier.Notify(ctx, userID, "Payment failed", content)
		return result, nil
	}
	after.run(ctx)
	if garage != nil {
		s.publish(ctx, garage, result)
	}
	return result, nil
}

// publish opens the barrier for committed transitions and tells dashboards.
func (s *GateService) publish(ctx context.Context, garage *domain.Garage, result *domain.EntryExitResult) {
	direction, open := result.Direction()
	if open && s.barrier != nil {
		err := s.barrier.OpenBarrier(ctx, garage.ID, direction, string(result.Outcome))
		logErr(s.log, "could not open barrier", err, zap.Int("garage_id", garage.ID), zap.String("direction", string(direction)))
	}
	s.events.BroadcastGateEvent(domain.GateEventNotification{
		Type:       domain.PushGateEvent,
		EventID:    uuid.NewString(),
		GarageID:   garage.ID,
		GarageName: garage.Name,
		Plate:      result.Plate,
		Direction:  direction,
		Outcome:    result.Outcome,
		Message:    result.Reason,
		Timestamp:  result.At,
	})
}

// record writes the audit row and counts the detection. Failures are logged.
func (s *GateService) record(ctx context.Context, garageID int, plate string, source domain.DetectionSource, outcome, notes string, payload json.RawMessage) {
	s.Metrics.ObserveDetection(string(source), outcome)
	entry := &domain.DetectionLog{
		ReceivedAt: s.now(),
		GarageID:   garageID,
		Plate:      plate,
		Source:     source,
		Outcome:    outcome,
		Notes:      notes,
		Payload:    payload,
	}
	logErr(s.log, "could not write detection log", s.Store.DetectionLogs.Create(ctx, entry), zap.Int("garage_id", garageID))
}
