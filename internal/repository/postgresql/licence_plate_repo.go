package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgLicencePlateRepository struct {
	db *sql.DB
}

func NewPgLicencePlateRepository(db *sql.DB) repository.LicencePlateRepository {
	return &pgLicencePlateRepository{db: db}
}

const licencePlateColumns = `id, user_id, garage_id, licence_plate, enabled, entered_at, paid_at,
	invoice_pending_at, invoice_id, created_at, updated_at`

func scanLicencePlate(row rowScanner) (*domain.LicencePlate, error) {
	lp := &domain.LicencePlate{}
	err := row.Scan(&lp.ID, &lp.UserID, &lp.GarageID, &lp.Plate, &lp.Enabled, &lp.EnteredAt, &lp.PaidAt,
		&lp.InvoicePendingAt, &lp.InvoiceID, &lp.CreatedAt, &lp.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if lp.EnteredAt.Valid {
		lp.EnteredAt.Time = lp.EnteredAt.Time.In(time.UTC)
	}
	if lp.PaidAt.Valid {
		lp.PaidAt.Time = lp.PaidAt.Time.In(time.UTC)
	}
	if lp.InvoicePendingAt.Valid {
		lp.InvoicePendingAt.Time = lp.InvoicePendingAt.Time.In(time.UTC)
	}
	lp.CreatedAt = lp.CreatedAt.In(time.UTC)
	lp.UpdatedAt = lp.UpdatedAt.In(time.UTC)
	return lp, nil
}

func (r *pgLicencePlateRepository) Create(ctx context.Context, lp *domain.LicencePlate) (*domain.LicencePlate, error) {
	query := `INSERT INTO licence_plates (user_id, garage_id, licence_plate, enabled, entered_at, paid_at)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, lp.UserID, lp.GarageID, lp.Plate, lp.Enabled, lp.EnteredAt, lp.PaidAt).
		Scan(&lp.ID, &lp.CreatedAt, &lp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("LicencePlateRepository.Create: %w", mapError(err))
	}
	lp.CreatedAt = lp.CreatedAt.In(time.UTC)
	lp.UpdatedAt = lp.UpdatedAt.In(time.UTC)
	return lp, nil
}

func (r *pgLicencePlateRepository) FindByID(ctx context.Context, id int) (*domain.LicencePlate, error) {
	query := `SELECT ` + licencePlateColumns + ` FROM licence_plates WHERE id = $1`
	lp, err := scanLicencePlate(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("LicencePlateRepository.FindByID: %w", mapError(err))
	}
	return lp, nil
}

func (r *pgLicencePlateRepository) FindByPlate(ctx context.Context, plate string) (*domain.LicencePlate, error) {
	query := `SELECT ` + licencePlateColumns + ` FROM licence_plates WHERE licence_plate = $1`
	lp, err := scanLicencePlate(conn(ctx, r.db).QueryRowContext(ctx, query, plate))
	if err != nil {
		return nil, fmt.Errorf("LicencePlateRepository.FindByPlate: %w", mapError(err))
	}
	return lp, nil
}

func (r *pgLicencePlateRepository) FindByUserID(ctx context.Context, userID int) ([]domain.LicencePlate, error) {
	return r.list(ctx, "LicencePlateRepository.FindByUserID", `WHERE user_id = $1 ORDER BY id`, userID)
}

func (r *pgLicencePlateRepository) FindInsideGarage(ctx context.Context, garageID int) ([]domain.LicencePlate, error) {
	return r.list(ctx, "LicencePlateRepository.FindInsideGarage", `WHERE garage_id = $1 ORDER BY entered_at`, garageID)
}

func (r *pgLicencePlateRepository) list(ctx context.Context, op, where string, arg any) ([]domain.LicencePlate, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+licencePlateColumns+` FROM licence_plates `+where, arg)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.LicencePlate
	for rows.Next() {
		lp, err := scanLicencePlate(rows)
		if err != nil {
			return nil, fmt.Errorf("%s (scanning row): %w", op, err)
		}
		out = append(out, *lp)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("%s (rows error): %w", op, err)
	}
	return out, nil
}

func (r *pgLicencePlateRepository) Update(ctx context.Context, lp *domain.LicencePlate) (*domain.LicencePlate, error) {
	query := `UPDATE licence_plates SET garage_id = $1, enabled = $2, entered_at = $3, paid_at = $4,
	              invoice_pending_at = $5, invoice_id = $6, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $7 RETURNING updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, lp.GarageID, lp.Enabled, lp.EnteredAt, lp.PaidAt,
		lp.InvoicePendingAt, lp.InvoiceID, lp.ID).
		Scan(&lp.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("LicencePlateRepository.Update: %w", mapError(err))
	}
	lp.UpdatedAt = lp.UpdatedAt.In(time.UTC)
	return lp, nil
}

func (r *pgLicencePlateRepository) Delete(ctx context.Context, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM licence_plates WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("LicencePlateRepository.Delete: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("LicencePlateRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgLicencePlateRepository) Exists(ctx context.Context, id int) (bool, error) {
	return exists(ctx, conn(ctx, r.db), "licence_plates", id)
}
