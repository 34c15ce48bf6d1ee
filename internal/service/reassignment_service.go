package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/logger"
)

// ReassignmentService moves upcoming reservations off lots that walk-ins
// are still occupying.
type ReassignmentService struct {
	*Core
	notifier Notifier
	log      *logger.Logger
}

func NewReassignmentService(core *Core, notifier Notifier) *ReassignmentService {
	log := logger.Named("reassignment")
	return &ReassignmentService{Core: core, notifier: notifyOrLog(log, notifier), log: log}
}

// Sweep reassigns every garage. A garage that fails is logged and skipped.
func (s *ReassignmentService) Sweep(ctx context.Context) (*domain.ReassignmentReport, error) {
	garages, err := s.Store.Garages.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("ReassignmentService.Sweep: %w", err)
	}
	total := &domain.ReassignmentReport{}
	var errs []error
	for _, g := range garages {
		report, err := s.ReassignGarage(ctx, g.ID)
		if err != nil {
			s.log.Error("reassignment failed", zap.Int("garage_id", g.ID), zap.Error(err))
			errs = append(errs, fmt.Errorf("garage %d: %w", g.ID, err))
			continue
		}
		total.Reassigned = append(total.Reassigned, report.Reassigned...)
		total.Failed = append(total.Failed, report.Failed...)
	}
	return total, errors.Join(errs...)
}

type moved struct {
	outcome domain.ReassignmentOutcome
	userID  int
}

// ReassignGarage handles one garage under its row lock.
func (s *ReassignmentService) ReassignGarage(ctx context.Context, garageID int) (*domain.ReassignmentReport, error) {
	var (
		report *domain.ReassignmentReport
		notify []moved
		name   string
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		report, notify = &domain.ReassignmentReport{}, nil
		garage, err := s.garage(ctx, garageID, true)
		if err != nil {
			return err
		}
		name = garage.Name
		states, err := s.lotStates(ctx, garageID)
		if err != nil {
			return err
		}
		inside, err := s.Store.LicencePlates.FindInsideGarage(ctx, garageID)
		if err != nil {
			return fmt.Errorf("ReassignmentService: plates inside garage %d: %w", garageID, err)
		}
		r := s.resolver(garage)
		if err := s.releaseLapsed(ctx, r, states); err != nil {
			return err
		}
		last := engine.LastEntered(inside)

		type pending struct {
			res     domain.Reservation
			fromLot int
		}
		var todo []pending
		for _, st := range states {
			for _, res := range st.Reservations {
				if r.NeedsReassignment(res, st, last) {
					todo = append(todo, pending{res: res, fromLot: st.Lot.ID})
				}
			}
		}

		for _, p := range todo {
			from, _ := findState(states, p.fromLot)
			outcome := domain.ReassignmentOutcome{
				ReservationID: p.res.ID,
				GarageID:      garageID,
				OldLotNumber:  states[from].Lot.LotNumber,
			}
			lot, err := s.Selector.AssignRandomLot(r, garageID, states, p.res.FromDate, p.res.ToDate, p.fromLot)
			if err != nil {
				if !errors.Is(err, domain.ErrNoLotAvailable) {
					return err
				}
				outcome.Error = err.Error()
				report.Failed = append(report.Failed, outcome)
				if p.res.UnavailableNotifiedAt.Valid {
					continue
				}
				res := p.res
				res.UnavailableNotifiedAt = null.TimeFrom(r.Now())
				if _, err := s.Store.Reservations.Update(ctx, &res); err != nil {
					return fmt.Errorf("ReassignmentService: flag reservation %d: %w", res.ID, err)
				}
				notify = append(notify, moved{outcome: outcome, userID: p.res.UserID})
				continue
			}

			res := p.res
			res.ParkingLotID = lot.ID
			res.UnavailableNotifiedAt = null.Time{}
			if _, err := s.Store.Reservations.Update(ctx, &res); err != nil {
				return fmt.Errorf("ReassignmentService: move reservation %d: %w", res.ID, err)
			}
			to, _ := findState(states, lot.ID)
			states[from].Reservations = without(states[from].Reservations, res.ID)
			states[to].Reservations = append(states[to].Reservations, res)

			outcome.NewLotNumber = lot.LotNumber
			report.Reassigned = append(report.Reassigned, outcome)
			notify = append(notify, moved{outcome: outcome, userID: res.UserID})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, m := range notify {
		o := m.outcome
		if o.Error != "" {
			s.Metrics.Reassignments.WithLabelValues("failed").Inc()
			s.log.Error("no lot left for reservation",
				zap.Int("garage_id", garageID), zap.Int("reservation_id", o.ReservationID), zap.Int("lot_no", o.OldLotNumber))
			s.notifier.Notify(ctx, m.userID, "Parking lot unavailable",
				fmt.Sprintf("Lot %d in %s is still occupied and no other lot is free for your reservation. Please contact the garage.", o.OldLotNumber, name))
			continue
		}
		s.Metrics.Reassignments.WithLabelValues("reassigned").Inc()
		s.log.Info("reservation reassigned",
			zap.Int("reservation_id", o.ReservationID), zap.Int("old_lot_no", o.OldLotNumber), zap.Int("new_lot_no", o.NewLotNumber))
		s.notifier.Notify(ctx, m.userID, "Parking lot changed",
			fmt.Sprintf("Your reservation in %s moved from lot %d to lot %d.", name, o.OldLotNumber, o.NewLotNumber))
	}
	return report, nil
}

func without(reservations []domain.Reservation, id int) []domain.Reservation {
	out := reservations[:0:0]
	for _, res := range reservations {
		if res.ID != id {
			out = append(out, res)
		}
	}
	return out
}
