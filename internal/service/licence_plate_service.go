package service

import (
	"context"
	"errors"
	"fmt"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

// LicencePlateService lets registered users manage their plates.
type LicencePlateService struct {
	plates repository.LicencePlateRepository
}

func NewLicencePlateService(plates repository.LicencePlateRepository) *LicencePlateService {
	return &LicencePlateService{plates: plates}
}

func (s *LicencePlateService) Register(ctx context.Context, userID int, dto domain.LicencePlateDTO) (*domain.LicencePlate, error) {
	plate := domain.NormalizePlate(dto.Plate)
	if len(plate) < 2 {
		return nil, domain.NewValidationError("licence plate %q is too short", dto.Plate)
	}
	if plate == domain.IgnoredPlate {
		return nil, domain.NewValidationError("licence plate %s is reserved", plate)
	}
	lp, err := s.plates.Create(ctx, &domain.LicencePlate{UserID: userID, Plate: plate, Enabled: true})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return nil, domain.NewConflictError("licence plate %s is already registered", plate)
		}
		return nil, fmt.Errorf("LicencePlateService.Register: %w", err)
	}
	return lp, nil
}

func (s *LicencePlateService) List(ctx context.Context, userID int) ([]domain.LicencePlate, error) {
	return s.plates.FindByUserID(ctx, userID)
}
