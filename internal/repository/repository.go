package repository

import (
	"context"
	"errors"
	"time"

	"parking_garage/internal/domain"
)

var ErrNotFound = errors.New("record not found")

// ErrConflict covers unique and exclusion constraint violations.
var ErrConflict = errors.New("record conflicts with an existing one")

// ErrRetryable marks serialization failures and deadlocks; the whole
// transaction can be run again.
var ErrRetryable = errors.New("transaction aborted, retry")

// TxManager runs fn inside one transaction. Repositories called with the ctx
// handed to fn take part in it. Nested calls join the outer transaction.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Exister is implemented by every repository whose rows can be referenced.
type Exister interface {
	Exists(ctx context.Context, id int) (bool, error)
}

type GarageRepository interface {
	Exister
	Create(ctx context.Context, garage *domain.Garage) (*domain.Garage, error)
	FindByID(ctx context.Context, id int) (*domain.Garage, error)
	FindAll(ctx context.Context) ([]domain.Garage, error)
	Update(ctx context.Context, garage *domain.Garage) (*domain.Garage, error)
	Delete(ctx context.Context, id int) error
	// LockForUpdate loads the garage and holds its row lock until the
	// surrounding transaction ends.
	LockForUpdate(ctx context.Context, id int) (*domain.Garage, error)
	// AdjustEntered adds delta to the entered counter and returns the new value.
	AdjustEntered(ctx context.Context, id int, delta int) (int, error)
}

type ParkingLotRepository interface {
	Exister
	Create(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error)
	FindByID(ctx context.Context, id int) (*domain.ParkingLot, error)
	FindByGarageID(ctx context.Context, garageID int) ([]domain.ParkingLot, error)
	FindByOccupant(ctx context.Context, plateID int) (*domain.ParkingLot, error)
	Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error)
}

type ReservationRepository interface {
	Exister
	Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	FindByID(ctx context.Context, id int) (*domain.Reservation, error)
	FindByGarageID(ctx context.Context, garageID int) ([]domain.Reservation, error)
	FindByLicencePlateID(ctx context.Context, plateID int) ([]domain.Reservation, error)
	FindByUserID(ctx context.Context, userID int) ([]domain.Reservation, error)
	Update(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error)
	Delete(ctx context.Context, id int) error
	DeleteByLicencePlateID(ctx context.Context, plateID int) error
}

type LicencePlateRepository interface {
	Exister
	Create(ctx context.Context, plate *domain.LicencePlate) (*domain.LicencePlate, error)
	FindByID(ctx context.Context, id int) (*domain.LicencePlate, error)
	FindByPlate(ctx context.Context, plate string) (*domain.LicencePlate, error)
	FindByUserID(ctx context.Context, userID int) ([]domain.LicencePlate, error)
	FindInsideGarage(ctx context.Context, garageID int) ([]domain.LicencePlate, error)
	Update(ctx context.Context, plate *domain.LicencePlate) (*domain.LicencePlate, error)
	Delete(ctx context.Context, id int) error
}

type PriceRepository interface {
	Create(ctx context.Context, price *domain.Price) (*domain.Price, error)
	FindByGarageID(ctx context.Context, garageID int) ([]domain.Price, error)
	Delete(ctx context.Context, garageID, id int) error
}

type UserRepository interface {
	Exister
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByID(ctx context.Context, id int) (*domain.User, error)
	Delete(ctx context.Context, id int) error
}

type NotificationRepository interface {
	Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error)
	FindByUserID(ctx context.Context, userID int) ([]domain.Notification, error)
	MarkSeen(ctx context.Context, id, userID int) error
}

type DetectionLogRepository interface {
	Create(ctx context.Context, entry *domain.DetectionLog) error
	DeleteOlderThan(ctx context.Context, before time.Time) (int64, error)
}

// Store bundles the repositories of one backend with its transaction manager.
type Store struct {
	Tx            TxManager
	Garages       GarageRepository
	ParkingLots   ParkingLotRepository
	Reservations  ReservationRepository
	LicencePlates LicencePlateRepository
	Prices        PriceRepository
	Users         UserRepository
	Notifications NotificationRepository
	DetectionLogs DetectionLogRepository
}

// Entity names used by the registry and in NotFoundError.
const (
	EntityGarage       = "garage"
	EntityParkingLot   = "parking lot"
	EntityReservation  = "reservation"
	EntityLicencePlate = "licence plate"
	EntityUser         = "user"
	EntityPrice        = "price"
	EntityNotification = "notification"
)

// Registry resolves entity names to the repository that can confirm a
// referenced id exists.
type Registry map[string]Exister

func (s *Store) Registry() Registry {
	return Registry{
		EntityGarage:       s.Garages,
		EntityParkingLot:   s.ParkingLots,
		EntityReservation:  s.Reservations,
		EntityLicencePlate: s.LicencePlates,
		EntityUser:         s.Users,
	}
}

// MustExist returns a domain.NotFoundError when id does not resolve.
func (r Registry) MustExist(ctx context.Context, entity string, id int) error {
	ex, ok := r[entity]
	if !ok {
		return domain.NewValidationError("unknown entity %q", entity)
	}
	found, err := ex.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return domain.NewNotFoundError(entity, id)
	}
	return nil
}

// NotFound translates ErrNotFound into the domain error for entity/id and
// passes anything else through.
func NotFound(err error, entity string, id any) error {
	if errors.Is(err, ErrNotFound) {
		return domain.NewNotFoundError(entity, id)
	}
	return err
}
