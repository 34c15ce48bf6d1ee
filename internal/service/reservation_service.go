package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/logger"
	"parking_garage/internal/repository"
)

type ReservationService struct {
	*Core
	notifier Notifier
	log      *logger.Logger
}

func NewReservationService(core *Core, notifier Notifier) *ReservationService {
	log := logger.Named("reservations")
	return &ReservationService{Core: core, notifier: notifyOrLog(log, notifier), log: log}
}

// CreateReservation books a lot for a plate. Without an explicit lot a random
// candidate is picked.
func (s *ReservationService) CreateReservation(ctx context.Context, actor domain.Actor, dto domain.CreateReservationDTO) (*domain.Reservation, error) {
	from, to := dto.FromDate.In(time.UTC), dto.ToDate.In(time.UTC)
	if err := engine.ValidateInterval(from, to); err != nil {
		return nil, err
	}
	if !to.After(s.now()) {
		return nil, domain.NewValidationError("reservation must end in the future")
	}

	var (
		created *domain.Reservation
		lotNo   int
		garage  *domain.Garage
	)
	err := s.inTx(ctx, func(ctx context.Context) error {
		var err error
		garage, err = s.garage(ctx, dto.GarageID, true)
		if err != nil {
			return err
		}
		plate, err := s.Store.LicencePlates.FindByID(ctx, dto.LicencePlateID)
		if err != nil {
			return repository.NotFound(err, repository.EntityLicencePlate, dto.LicencePlateID)
		}
		if plate.UserID != actor.UserID && !actor.IsStaff() {
			return domain.NewNotFoundError(repository.EntityLicencePlate, dto.LicencePlateID)
		}

		r := s.resolver(garage)
		if err := s.canReserve(ctx, r, plate, from, to); err != nil {
			return err
		}

		states, err := s.lotStates(ctx, garage.ID)
		if err != nil {
			return err
		}
		if err := s.releaseLapsed(ctx, r, states); err != nil {
			return err
		}
		var lot *domain.ParkingLot
		if dto.ParkingLotID != nil {
			i, ok := findState(states, *dto.ParkingLotID)
			if !ok {
				return domain.NewNotFoundError(repository.EntityParkingLot, *dto.ParkingLotID)
			}
			if err := r.Validate(states[i], from, to); err != nil {
				return err
			}
			lot = &states[i].Lot
		} else {
			lot, err = s.Selector.AssignRandomLot(r, garage.ID, states, from, to)
			if err != nil {
				return err
			}
		}

		created, err = s.Store.Reservations.Create(ctx, &domain.Reservation{
			GarageID:       garage.ID,
			UserID:         plate.UserID,
			LicencePlateID: plate.ID,
			ParkingLotID:   lot.ID,
			FromDate:       from,
			ToDate:         to,
		})
		if err != nil {
			return fmt.Errorf("ReservationService.CreateReservation: %w", err)
		}
		lotNo = lot.LotNumber
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			s.Metrics.ReservationConflicts.Inc()
		}
		return nil, err
	}

	s.Metrics.ReservationsCreated.Inc()
	s.log.Info("reservation created", zap.Int("reservation_id", created.ID), zap.Int("garage_id", garage.ID), zap.Int("lot_no", lotNo))
	s.notifier.Notify(ctx, created.UserID, "Reservation confirmed",
		fmt.Sprintf("Parking lot %d in %s is yours from %s to %s.", lotNo, garage.Name,
			from.Format("2006-01-02 15:04"), to.Format("2006-01-02 15:04")))
	return created, nil
}

// canReserve rejects a second reservation of the same plate for an
// overlapping window, in any garage.
func (s *ReservationService) canReserve(ctx context.Context, r *engine.Resolver, plate *domain.LicencePlate, from, to time.Time) error {
	existing, err := s.Store.Reservations.FindByLicencePlateID(ctx, plate.ID)
	if err != nil {
		return fmt.Errorf("ReservationService: reservations of plate %d: %w", plate.ID, err)
	}
	for _, res := range existing {
		if !r.ValidReservation(res) {
			continue
		}
		if res.FromDate.Before(to) && from.Before(res.ToDate) {
			return domain.NewConflictError("licence plate %s already holds reservation %d in that window", plate.Plate, res.ID)
		}
	}
	return nil
}

// AssignLot picks a random lot that is free for [from, to) without booking it.
func (s *ReservationService) AssignLot(ctx context.Context, garageID int, from, to time.Time) (*domain.ParkingLot, error) {
	garage, err := s.garage(ctx, garageID, false)
	if err != nil {
		return nil, err
	}
	states, err := s.lotStates(ctx, garageID)
	if err != nil {
		return nil, err
	}
	return s.Selector.AssignRandomLot(s.resolver(garage), garageID, states, from, to)
}

// List returns the actor's reservations, or every reservation of garageID for staff.
func (s *ReservationService) List(ctx context.Context, actor domain.Actor, garageID int) ([]domain.Reservation, error) {
	if garageID > 0 && actor.IsStaff() {
		if err := s.Store.Registry().MustExist(ctx, repository.EntityGarage, garageID); err != nil {
			return nil, err
		}
		return s.Store.Reservations.FindByGarageID(ctx, garageID)
	}
	return s.Store.Reservations.FindByUserID(ctx, actor.UserID)
}

func (s *ReservationService) Cancel(ctx context.Context, actor domain.Actor, id int) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		res, err := s.Store.Reservations.FindByID(ctx, id)
		if err != nil {
			return repository.NotFound(err, repository.EntityReservation, id)
		}
		if res.UserID != actor.UserID && !actor.IsStaff() {
			return domain.NewNotFoundError(repository.EntityReservation, id)
		}
		if err := s.Store.Reservations.Delete(ctx, id); err != nil {
			return repository.NotFound(err, repository.EntityReservation, id)
		}
		return nil
	})
}
