package memory

import (
	"context"
	"fmt"
	"sort"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type parkingLotRepo struct {
	db *DB
}

func (r *parkingLotRepo) Create(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	defer r.db.lock(ctx)()
	t := r.db.data
	if _, ok := t.garages[lot.GarageID]; !ok {
		return nil, fmt.Errorf("ParkingLotRepository.Create: %w", repository.ErrNotFound)
	}
	for _, existing := range t.lots {
		if existing.GarageID == lot.GarageID && existing.LotNumber == lot.LotNumber {
			return nil, fmt.Errorf("ParkingLotRepository.Create: %w: lot number %d", repository.ErrConflict, lot.LotNumber)
		}
	}
	lot.ID = t.next("parking_lots")
	lot.CreatedAt = r.db.now()
	lot.UpdatedAt = lot.CreatedAt
	t.lots[lot.ID] = *lot
	return lot, nil
}

func (r *parkingLotRepo) FindByID(ctx context.Context, id int) (*domain.ParkingLot, error) {
	defer r.db.lock(ctx)()
	lot, ok := r.db.data.lots[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &lot, nil
}

func (r *parkingLotRepo) FindByGarageID(ctx context.Context, garageID int) ([]domain.ParkingLot, error) {
	defer r.db.lock(ctx)()
	var out []domain.ParkingLot
	for _, lot := range r.db.data.lots {
		if lot.GarageID == garageID {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotNumber < out[j].LotNumber })
	return out, nil
}

func (r *parkingLotRepo) FindByOccupant(ctx context.Context, plateID int) (*domain.ParkingLot, error) {
	defer r.db.lock(ctx)()
	for _, lot := range r.db.data.lots {
		if lot.OccupantPlateID.Valid && int(lot.OccupantPlateID.Int64) == plateID {
			return &lot, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *parkingLotRepo) Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	defer r.db.lock(ctx)()
	current, ok := r.db.data.lots[lot.ID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	current.FloorNumber = lot.FloorNumber
	current.Occupied = lot.Occupied
	current.Disabled = lot.Disabled
	current.OccupantPlateID = lot.OccupantPlateID
	current.UpdatedAt = r.db.now()
	r.db.data.lots[lot.ID] = current
	*lot = current
	return lot, nil
}

func (r *parkingLotRepo) Exists(ctx context.Context, id int) (bool, error) {
	defer r.db.lock(ctx)()
	_, ok := r.db.data.lots[id]
	return ok, nil
}
