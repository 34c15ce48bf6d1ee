package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/logger"
	"parking_garage/internal/repository"
)

type BillingService struct {
	*Core
	notifier Notifier
	log      *logger.Logger
}

func NewBillingService(core *Core, notifier Notifier) *BillingService {
	log := logger.Named("billing")
	return &BillingService{Core: core, notifier: notifyOrLog(log, notifier), log: log}
}

// GetBillingPreview shows what the plate would owe if it left now. A plate
// that is OUTSIDE owes nothing.
func (s *BillingService) GetBillingPreview(ctx context.Context, actor domain.Actor, plateID int) (*domain.BillingPreview, error) {
	lp, err := s.ownedPlate(ctx, actor, plateID)
	if err != nil {
		return nil, err
	}
	preview := &domain.BillingPreview{LicencePlateID: lp.ID}
	if !lp.Inside() {
		preview.Bill.Items = []domain.BillingItem{}
		return preview, nil
	}

	garageID := int(lp.GarageID.Int64)
	prices, err := s.Store.Prices.FindByGarageID(ctx, garageID)
	if err != nil {
		return nil, fmt.Errorf("BillingService.GetBillingPreview: %w", err)
	}
	bill, err := engine.ComputeBill(prices, engine.BillableDuration(*lp, s.now()))
	if err != nil {
		return nil, err
	}
	if bill.Items == nil {
		bill.Items = []domain.BillingItem{}
	}
	preview.GarageID = &garageID
	preview.Bill = bill
	return preview, nil
}

// RecordPayment settles what is owed at the kiosk: paid_at becomes now while
// the plate stays INSIDE, so billing restarts from here.
func (s *BillingService) RecordPayment(ctx context.Context, actor domain.Actor, plateID int) (*domain.LicencePlate, error) {
	var lp *domain.LicencePlate
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		lp, err = s.ownedPlate(ctx, actor, plateID)
		if err != nil {
			return err
		}
		if !lp.Inside() {
			return domain.NewValidationError("licence plate %s is not inside a garage", lp.Plate)
		}
		if _, err := s.garage(ctx, int(lp.GarageID.Int64), true); err != nil {
			return err
		}
		if lp.InvoicePending() {
			return domain.NewConflictError("licence plate %s has an automatic payment in progress", lp.Plate)
		}
		lp.PaidAt = null.TimeFrom(s.now())
		lp.ClearInvoice()
		if _, err := s.Store.LicencePlates.Update(ctx, lp); err != nil {
			return fmt.Errorf("BillingService.RecordPayment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Metrics.PaymentResults.WithLabelValues("manual").Inc()
	s.log.Info("manual payment recorded", zap.Int("licence_plate_id", lp.ID))
	s.notifier.Notify(ctx, lp.UserID, "Payment received", fmt.Sprintf("Parking for %s is paid. You can leave now.", lp.Plate))
	return lp, nil
}

func (s *BillingService) ownedPlate(ctx context.Context, actor domain.Actor, plateID int) (*domain.LicencePlate, error) {
	lp, err := s.Store.LicencePlates.FindByID(ctx, plateID)
	if err != nil {
		return nil, repository.NotFound(err, repository.EntityLicencePlate, plateID)
	}
	if lp.UserID != actor.UserID && !actor.IsStaff() {
		return nil, domain.NewNotFoundError(repository.EntityLicencePlate, plateID)
	}
	return lp, nil
}
