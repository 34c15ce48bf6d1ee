package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgReservationRepository struct {
	db *sql.DB
}

func NewPgReservationRepository(db *sql.DB) repository.ReservationRepository {
	return &pgReservationRepository{db: db}
}

const reservationColumns = `id, garage_id, user_id, licence_plate_id, parking_lot_id, from_date, to_date, showed,
	released_at, unavailable_notified_at, created_at, updated_at`

func scanReservation(row rowScanner) (*domain.Reservation, error) {
	res := &domain.Reservation{}
	err := row.Scan(&res.ID, &res.GarageID, &res.UserID, &res.LicencePlateID, &res.ParkingLotID,
		&res.FromDate, &res.ToDate, &res.Showed, &res.ReleasedAt, &res.UnavailableNotifiedAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	res.FromDate = res.FromDate.In(time.UTC)
	res.ToDate = res.ToDate.In(time.UTC)
	if res.ReleasedAt.Valid {
		res.ReleasedAt.Time = res.ReleasedAt.Time.In(time.UTC)
	}
	res.CreatedAt = res.CreatedAt.In(time.UTC)
	res.UpdatedAt = res.UpdatedAt.In(time.UTC)
	return res, nil
}

func (r *pgReservationRepository) Create(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	query := `INSERT INTO reservations (garage_id, user_id, licence_plate_id, parking_lot_id, from_date, to_date, showed, released_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id, created_at, updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, res.GarageID, res.UserID, res.LicencePlateID, res.ParkingLotID,
		res.FromDate, res.ToDate, res.Showed, res.ReleasedAt).Scan(&res.ID, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.Create: %w", mapError(err))
	}
	res.CreatedAt = res.CreatedAt.In(time.UTC)
	res.UpdatedAt = res.UpdatedAt.In(time.UTC)
	return res, nil
}

func (r *pgReservationRepository) FindByID(ctx context.Context, id int) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations WHERE id = $1`
	res, err := scanReservation(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.FindByID: %w", mapError(err))
	}
	return res, nil
}

func (r *pgReservationRepository) FindByGarageID(ctx context.Context, garageID int) ([]domain.Reservation, error) {
	return r.list(ctx, "ReservationRepository.FindByGarageID", `WHERE garage_id = $1`, garageID)
}

func (r *pgReservationRepository) FindByLicencePlateID(ctx context.Context, plateID int) ([]domain.Reservation, error) {
	return r.list(ctx, "ReservationRepository.FindByLicencePlateID", `WHERE licence_plate_id = $1`, plateID)
}

func (r *pgReservationRepository) FindByUserID(ctx context.Context, userID int) ([]domain.Reservation, error) {
	return r.list(ctx, "ReservationRepository.FindByUserID", `WHERE user_id = $1`, userID)
}

func (r *pgReservationRepository) list(ctx context.Context, op, where string, arg any) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM reservations ` + where + ` ORDER BY from_date, id`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("%s (scanning row): %w", op, err)
		}
		out = append(out, *res)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows error): %w", op, err)
	}
	return out, nil
}

func (r *pgReservationRepository) Update(ctx context.Context, res *domain.Reservation) (*domain.Reservation, error) {
	query := `UPDATE reservations SET parking_lot_id = $1, from_date = $2, to_date = $3, showed = $4,
	              released_at = $5, unavailable_notified_at = $6, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $7 RETURNING updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, res.ParkingLotID, res.FromDate, res.ToDate, res.Showed,
		res.ReleasedAt, res.UnavailableNotifiedAt, res.ID).
		Scan(&res.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("ReservationRepository.Update: %w", mapError(err))
	}
	res.UpdatedAt = res.UpdatedAt.In(time.UTC)
	return res, nil
}

func (r *pgReservationRepository) Delete(ctx context.Context, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("ReservationRepository.Delete: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("ReservationRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgReservationRepository) DeleteByLicencePlateID(ctx context.Context, plateID int) error {
	if _, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM reservations WHERE licence_plate_id = $1`, plateID); err != nil {
		return fmt.Errorf("ReservationRepository.DeleteByLicencePlateID: %w", mapError(err))
	}
	return nil
}

func (r *pgReservationRepository) Exists(ctx context.Context, id int) (bool, error) {
	return exists(ctx, conn(ctx, r.db), "reservations", id)
}
