package service

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/engine"
	"parking_garage/internal/repository"
)

var hourPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// GarageService manages garages, their lots and their price tiers.
type GarageService struct {
	*Core
}

func NewGarageService(core *Core) *GarageService {
	return &GarageService{Core: core}
}

func (s *GarageService) CreateGarage(ctx context.Context, ownerID int, dto domain.GarageDTO) (*domain.Garage, error) {
	garage, err := garageFromDTO(dto)
	if err != nil {
		return nil, err
	}
	garage.OwnerID = ownerID
	created, err := s.Store.Garages.Create(ctx, garage)
	if err != nil {
		return nil, fmt.Errorf("GarageService.CreateGarage: %w", translate(err))
	}
	return created, nil
}

func (s *GarageService) GetGarage(ctx context.Context, id int) (*domain.Garage, error) {
	return s.garage(ctx, id, false)
}

func (s *GarageService) ListGarages(ctx context.Context) ([]domain.Garage, error) {
	return s.Store.Garages.FindAll(ctx)
}

func (s *GarageService) UpdateGarage(ctx context.Context, id int, dto domain.GarageDTO) (*domain.Garage, error) {
	garage, err := garageFromDTO(dto)
	if err != nil {
		return nil, err
	}
	garage.ID = id
	var updated *domain.Garage
	err = s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.garage(ctx, id, true); err != nil {
			return err
		}
		g, err := s.Store.Garages.Update(ctx, garage)
		updated = g
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteGarage refuses while reservations exist or cars are inside.
func (s *GarageService) DeleteGarage(ctx context.Context, id int) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		garage, err := s.garage(ctx, id, true)
		if err != nil {
			return err
		}
		reservations, err := s.Store.Reservations.FindByGarageID(ctx, id)
		if err != nil {
			return fmt.Errorf("GarageService.DeleteGarage: %w", err)
		}
		inside, err := s.Store.LicencePlates.FindInsideGarage(ctx, id)
		if err != nil {
			return fmt.Errorf("GarageService.DeleteGarage: %w", err)
		}
		if len(reservations) > 0 || len(inside) > 0 || garage.Entered > 0 {
			return domain.NewConflictError("garage %d still has %d reservations and %d cars inside", id, len(reservations), max(len(inside), garage.Entered))
		}
		if err := s.Store.Garages.Delete(ctx, id); err != nil {
			return repository.NotFound(err, repository.EntityGarage, id)
		}
		return nil
	})
}

func (s *GarageService) GetStatus(ctx context.Context, id int) (*domain.GarageStatus, error) {
	garage, err := s.garage(ctx, id, false)
	if err != nil {
		return nil, err
	}
	states, err := s.lotStates(ctx, id)
	if err != nil {
		return nil, err
	}
	r := s.resolver(garage)
	status := &domain.GarageStatus{
		GarageID:        garage.ID,
		Name:            garage.Name,
		TotalLots:       len(states),
		Entered:         garage.Entered,
		OccupiedLots:    r.OccupiedLots(states),
		IsFull:          r.IsFull(states),
		IsFullyOccupied: engine.IsFullyOccupied(states),
	}
	if next, ok := r.NextFreeSpot(states); ok {
		status.NextFreeSpot = &next
	}
	return status, nil
}

// ListLots resolves every lot for [from, to). A zero window means the next
// default park window.
func (s *GarageService) ListLots(ctx context.Context, garageID int, q domain.AvailabilityQuery) ([]domain.LotAvailability, error) {
	garage, err := s.garage(ctx, garageID, false)
	if err != nil {
		return nil, err
	}
	r := s.resolver(garage)
	from, to := q.From, q.To
	if from.IsZero() {
		from = r.Now()
	}
	if to.IsZero() {
		to = from.Add(r.Config().DefaultParkWindow)
	}
	if err := engine.ValidateInterval(from, to); err != nil {
		return nil, err
	}

	states, err := s.lotStates(ctx, garageID)
	if err != nil {
		return nil, err
	}
	out := make([]domain.LotAvailability, 0, len(states))
	for _, st := range states {
		out = append(out, r.Availability(st, from.In(time.UTC), to.In(time.UTC)))
	}
	return out, nil
}

func (s *GarageService) CreateLot(ctx context.Context, garageID int, dto domain.ParkingLotDTO) (*domain.ParkingLot, error) {
	if err := s.Store.Registry().MustExist(ctx, repository.EntityGarage, garageID); err != nil {
		return nil, err
	}
	lot, err := s.Store.ParkingLots.Create(ctx, &domain.ParkingLot{
		GarageID:    garageID,
		LotNumber:   dto.LotNumber,
		FloorNumber: dto.FloorNumber,
		Disabled:    dto.Disabled,
	})
	if err != nil {
		return nil, translate(err)
	}
	return lot, nil
}

// UpdateLot applies an operator override. Clearing occupied also drops the
// occupant.
func (s *GarageService) UpdateLot(ctx context.Context, garageID, lotID int, dto domain.UpdateParkingLotDTO) (*domain.ParkingLot, error) {
	var updated *domain.ParkingLot
	err := s.inTx(ctx, func(ctx context.Context) error {
		if _, err := s.garage(ctx, garageID, true); err != nil {
			return err
		}
		lot, err := s.Store.ParkingLots.FindByID(ctx, lotID)
		if err != nil || lot.GarageID != garageID {
			return domain.NewNotFoundError(repository.EntityParkingLot, lotID)
		}
		if dto.FloorNumber != nil {
			lot.FloorNumber = *dto.FloorNumber
		}
		if dto.Disabled != nil {
			lot.Disabled = *dto.Disabled
		}
		if dto.Occupied != nil {
			if *dto.Occupied {
				lot.Occupied = true
			} else {
				lot.Release()
			}
		}
		updated, err = s.Store.ParkingLots.Update(ctx, lot)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *GarageService) ListPrices(ctx context.Context, garageID int) ([]domain.Price, error) {
	if err := s.Store.Registry().MustExist(ctx, repository.EntityGarage, garageID); err != nil {
		return nil, err
	}
	return s.Store.Prices.FindByGarageID(ctx, garageID)
}

func (s *GarageService) CreatePrice(ctx context.Context, garageID int, dto domain.PriceDTO) (*domain.Price, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(dto.Price))
	if err != nil {
		return nil, domain.NewValidationError("price %q is not a number", dto.Price)
	}
	if !amount.IsPositive() {
		return nil, domain.NewValidationError("price must be positive")
	}
	if dto.DurationMinutes <= 0 {
		return nil, domain.NewValidationError("duration_minutes must be positive")
	}
	if err := s.Store.Registry().MustExist(ctx, repository.EntityGarage, garageID); err != nil {
		return nil, err
	}
	price := &domain.Price{
		GarageID: garageID,
		Label:    dto.Label,
		Duration: time.Duration(dto.DurationMinutes) * time.Minute,
		Price:    amount,
		Currency: strings.ToUpper(dto.Currency),
	}
	if dto.StripeID != "" {
		price.StripeIdentifier = null.StringFrom(dto.StripeID)
	}
	created, err := s.Store.Prices.Create(ctx, price)
	if err != nil {
		return nil, repository.NotFound(err, repository.EntityGarage, garageID)
	}
	return created, nil
}

func (s *GarageService) DeletePrice(ctx context.Context, garageID, priceID int) error {
	if err := s.Store.Prices.Delete(ctx, garageID, priceID); err != nil {
		return repository.NotFound(err, repository.EntityPrice, priceID)
	}
	return nil
}

func garageFromDTO(dto domain.GarageDTO) (*domain.Garage, error) {
	name := strings.TrimSpace(dto.Name)
	if name == "" {
		return nil, domain.NewValidationError("garage name is required")
	}
	st := dto.Settings
	if st.MaxHeight < 0 || st.MaxWidth < 0 || st.MaxHandicappedLots < 0 || st.ElectricCars < 0 {
		return nil, domain.NewValidationError("garage settings must not be negative")
	}
	if st.DefaultStayMinutes.Valid && st.DefaultStayMinutes.Int64 <= 0 {
		return nil, domain.NewValidationError("default_stay_minutes must be positive")
	}
	hours := make([]domain.OpeningHour, 0, len(dto.OpeningHours))
	for _, h := range dto.OpeningHours {
		if h.FromDay < 0 || h.FromDay > 6 || h.ToDay < 0 || h.ToDay > 6 {
			return nil, domain.NewValidationError("opening days must be between 0 and 6")
		}
		if !hourPattern.MatchString(h.FromHour) || !hourPattern.MatchString(h.ToHour) {
			return nil, domain.NewValidationError("opening hours must look like HH:MM")
		}
		hours = append(hours, domain.OpeningHour{FromDay: h.FromDay, ToDay: h.ToDay, FromHour: h.FromHour, ToHour: h.ToHour})
	}
	location, err := locationFromDTO(dto.Location)
	if err != nil {
		return nil, err
	}
	return &domain.Garage{Name: name, Settings: st, Location: location, OpeningHours: hours}, nil
}

func locationFromDTO(dto *domain.LocationDTO) (*domain.Location, error) {
	if dto == nil {
		return nil, nil
	}
	loc := &domain.Location{
		Country:      strings.TrimSpace(dto.Country),
		Province:     strings.ToUpper(strings.TrimSpace(dto.Province)),
		Municipality: strings.TrimSpace(dto.Municipality),
		PostCode:     dto.PostCode,
		Street:       strings.TrimSpace(dto.Street),
		Number:       dto.Number,
	}
	if loc.Country == "" || loc.Municipality == "" || loc.Street == "" {
		return nil, domain.NewValidationError("location needs a country, municipality and street")
	}
	if !slices.Contains(domain.Provinces, loc.Province) {
		return nil, domain.NewValidationError("province %q is not one of %s", dto.Province, strings.Join(domain.Provinces, ", "))
	}
	if loc.PostCode <= 0 || loc.Number <= 0 {
		return nil, domain.NewValidationError("post_code and number must be positive")
	}
	return loc, nil
}
