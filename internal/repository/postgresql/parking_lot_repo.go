package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgParkingLotRepository struct {
	db *sql.DB
}

func NewPgParkingLotRepository(db *sql.DB) repository.ParkingLotRepository {
	return &pgParkingLotRepository{db: db}
}

const parkingLotColumns = `id, garage_id, parking_lot_no, floor_number, occupied, disabled, occupant_plate_id, created_at, updated_at`

func scanParkingLot(row rowScanner) (*domain.ParkingLot, error) {
	lot := &domain.ParkingLot{}
	err := row.Scan(&lot.ID, &lot.GarageID, &lot.LotNumber, &lot.FloorNumber, &lot.Occupied, &lot.Disabled,
		&lot.OccupantPlateID, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, err
	}
	lot.CreatedAt = lot.CreatedAt.In(time.UTC)
	lot.UpdatedAt = lot.UpdatedAt.In(time.UTC)
	return lot, nil
}

func (r *pgParkingLotRepository) Create(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	query := `INSERT INTO parking_lots (garage_id, parking_lot_no, floor_number, occupied, disabled, occupant_plate_id)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, lot.GarageID, lot.LotNumber, lot.FloorNumber, lot.Occupied,
		lot.Disabled, lot.OccupantPlateID).Scan(&lot.ID, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.Create: %w", mapError(err))
	}
	lot.CreatedAt = lot.CreatedAt.In(time.UTC)
	lot.UpdatedAt = lot.UpdatedAt.In(time.UTC)
	return lot, nil
}

func (r *pgParkingLotRepository) FindByID(ctx context.Context, id int) (*domain.ParkingLot, error) {
	query := `SELECT ` + parkingLotColumns + ` FROM parking_lots WHERE id = $1`
	lot, err := scanParkingLot(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindByID: %w", mapError(err))
	}
	return lot, nil
}

func (r *pgParkingLotRepository) FindByOccupant(ctx context.Context, plateID int) (*domain.ParkingLot, error) {
	query := `SELECT ` + parkingLotColumns + ` FROM parking_lots WHERE occupant_plate_id = $1 LIMIT 1`
	lot, err := scanParkingLot(conn(ctx, r.db).QueryRowContext(ctx, query, plateID))
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindByOccupant: %w", mapError(err))
	}
	return lot, nil
}

func (r *pgParkingLotRepository) FindByGarageID(ctx context.Context, garageID int) ([]domain.ParkingLot, error) {
	query := `SELECT ` + parkingLotColumns + ` FROM parking_lots WHERE garage_id = $1 ORDER BY parking_lot_no`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, garageID)
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindByGarageID: %w", err)
	}
	defer rows.Close()

	var lots []domain.ParkingLot
	for rows.Next() {
		lot, err := scanParkingLot(rows)
		if err != nil {
			return nil, fmt.Errorf("ParkingLotRepository.FindByGarageID (scanning row): %w", err)
		}
		lots = append(lots, *lot)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.FindByGarageID (rows error): %w", err)
	}
	return lots, nil
}

func (r *pgParkingLotRepository) Update(ctx context.Context, lot *domain.ParkingLot) (*domain.ParkingLot, error) {
	query := `UPDATE parking_lots SET floor_number = $1, occupied = $2, disabled = $3, occupant_plate_id = $4,
	              updated_at = CURRENT_TIMESTAMP
	          WHERE id = $5 RETURNING updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, lot.FloorNumber, lot.Occupied, lot.Disabled,
		lot.OccupantPlateID, lot.ID).Scan(&lot.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ParkingLotRepository.Update: %w", mapError(err))
	}
	lot.UpdatedAt = lot.UpdatedAt.In(time.UTC)
	return lot, nil
}

func (r *pgParkingLotRepository) Exists(ctx context.Context, id int) (bool, error) {
	return exists(ctx, conn(ctx, r.db), "parking_lots", id)
}
