package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"gopkg.in/guregu/null.v4"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgGarageRepository struct {
	db *sql.DB
}

func NewPgGarageRepository(db *sql.DB) repository.GarageRepository {
	return &pgGarageRepository{db: db}
}

const garageColumns = `g.id, g.owner_id, g.name, g.entered, g.created_at, g.updated_at,
	COALESCE(s.max_height, 0), COALESCE(s.max_width, 0), COALESCE(s.max_handicapped_lots, 0),
	COALESCE(s.electric_cars, 0), s.default_stay_minutes,
	l.country, l.province, l.municipality, l.post_code, l.street, l.number`

const garageFrom = `FROM garages g
	LEFT JOIN garage_settings s ON s.garage_id = g.id
	LEFT JOIN garage_locations l ON l.garage_id = g.id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGarage(row rowScanner) (*domain.Garage, error) {
	g := &domain.Garage{}
	var (
		country, province, municipality, street null.String
		postCode, number                        null.Int
	)
	err := row.Scan(&g.ID, &g.OwnerID, &g.Name, &g.Entered, &g.CreatedAt, &g.UpdatedAt,
		&g.Settings.MaxHeight, &g.Settings.MaxWidth, &g.Settings.MaxHandicappedLots,
		&g.Settings.ElectricCars, &g.Settings.DefaultStayMinutes,
		&country, &province, &municipality, &postCode, &street, &number)
	if err != nil {
		return nil, err
	}
	if country.Valid {
		g.Location = &domain.Location{
			Country:      country.String,
			Province:     province.String,
			Municipality: municipality.String,
			PostCode:     int(postCode.Int64),
			Street:       street.String,
			Number:       int(number.Int64),
		}
	}
	g.CreatedAt = g.CreatedAt.In(time.UTC)
	g.UpdatedAt = g.UpdatedAt.In(time.UTC)
	return g, nil
}

func (r *pgGarageRepository) Create(ctx context.Context, garage *domain.Garage) (*domain.Garage, error) {
	db := conn(ctx, r.db)
	query := `INSERT INTO garages (owner_id, name) VALUES ($1, $2) RETURNING id, entered, created_at, updated_at`
	err := db.QueryRowContext(ctx, query, garage.OwnerID, garage.Name).
		Scan(&garage.ID, &garage.Entered, &garage.CreatedAt, &garage.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("GarageRepository.Create: %w", mapError(err))
	}
	if err := r.saveSettings(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Create (settings): %w", err)
	}
	if err := r.saveLocation(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Create (location): %w", err)
	}
	if err := r.replaceOpeningHours(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Create (opening hours): %w", err)
	}
	garage.CreatedAt = garage.CreatedAt.In(time.UTC)
	garage.UpdatedAt = garage.UpdatedAt.In(time.UTC)
	return garage, nil
}

func (r *pgGarageRepository) FindByID(ctx context.Context, id int) (*domain.Garage, error) {
	return r.findOne(ctx, "GarageRepository.FindByID", `SELECT `+garageColumns+` `+garageFrom+` WHERE g.id = $1`, id)
}

func (r *pgGarageRepository) LockForUpdate(ctx context.Context, id int) (*domain.Garage, error) {
	return r.findOne(ctx, "GarageRepository.LockForUpdate",
		`SELECT `+garageColumns+` `+garageFrom+` WHERE g.id = $1 FOR UPDATE OF g`, id)
}

func (r *pgGarageRepository) findOne(ctx context.Context, op, query string, id int) (*domain.Garage, error) {
	db := conn(ctx, r.db)
	garage, err := scanGarage(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, mapError(err))
	}
	hours, err := r.openingHours(ctx, db, garage.ID)
	if err != nil {
		return nil, fmt.Errorf("%s (opening hours): %w", op, err)
	}
	garage.OpeningHours = hours
	return garage, nil
}

func (r *pgGarageRepository) FindAll(ctx context.Context) ([]domain.Garage, error) {
	rows, err := conn(ctx, r.db).QueryContext(ctx, `SELECT `+garageColumns+` `+garageFrom+` ORDER BY g.name`)
	if err != nil {
		return nil, fmt.Errorf("GarageRepository.FindAll: %w", err)
	}
	defer rows.Close()

	var garages []domain.Garage
	for rows.Next() {
		g, err := scanGarage(rows)
		if err != nil {
			return nil, fmt.Errorf("GarageRepository.FindAll (scanning row): %w", err)
		}
		garages = append(garages, *g)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("GarageRepository.FindAll (rows error): %w", err)
	}
	return garages, nil
}

func (r *pgGarageRepository) Update(ctx context.Context, garage *domain.Garage) (*domain.Garage, error) {
	db := conn(ctx, r.db)
	query := `UPDATE garages SET name = $1, updated_at = CURRENT_TIMESTAMP WHERE id = $2 RETURNING updated_at`
	if err := db.QueryRowContext(ctx, query, garage.Name, garage.ID).Scan(&garage.UpdatedAt); err != nil {
		return nil, fmt.Errorf("GarageRepository.Update: %w", mapError(err))
	}
	if err := r.saveSettings(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Update (settings): %w", err)
	}
	if err := r.saveLocation(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Update (location): %w", err)
	}
	if err := r.replaceOpeningHours(ctx, db, garage); err != nil {
		return nil, fmt.Errorf("GarageRepository.Update (opening hours): %w", err)
	}
	garage.UpdatedAt = garage.UpdatedAt.In(time.UTC)
	return garage, nil
}

func (r *pgGarageRepository) Delete(ctx context.Context, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM garages WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("GarageRepository.Delete: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("GarageRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgGarageRepository) AdjustEntered(ctx context.Context, id int, delta int) (int, error) {
	// GREATEST keeps a stray double exit from pushing the counter negative.
	query := `UPDATE garages SET entered = GREATEST(entered + $1, 0), updated_at = CURRENT_TIMESTAMP
	          WHERE id = $2 RETURNING entered`
	var entered int
	if err := conn(ctx, r.db).QueryRowContext(ctx, query, delta, id).Scan(&entered); err != nil {
		return 0, fmt.Errorf("GarageRepository.AdjustEntered: %w", mapError(err))
	}
	return entered, nil
}

func (r *pgGarageRepository) Exists(ctx context.Context, id int) (bool, error) {
	return exists(ctx, conn(ctx, r.db), "garages", id)
}

func (r *pgGarageRepository) saveSettings(ctx context.Context, db dbtx, garage *domain.Garage) error {
	s := garage.Settings
	query := `INSERT INTO garage_settings (garage_id, max_height, max_width, max_handicapped_lots, electric_cars, default_stay_minutes)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          ON CONFLICT (garage_id) DO UPDATE SET
	              max_height = EXCLUDED.max_height,
	              max_width = EXCLUDED.max_width,
	              max_handicapped_lots = EXCLUDED.max_handicapped_lots,
	              electric_cars = EXCLUDED.electric_cars,
	              default_stay_minutes = EXCLUDED.default_stay_minutes`
	_, err := db.ExecContext(ctx, query, garage.ID, s.MaxHeight, s.MaxWidth, s.MaxHandicappedLots, s.ElectricCars, s.DefaultStayMinutes)
	return mapError(err)
}

// saveLocation upserts the address, or removes it when the garage has none.
func (r *pgGarageRepository) saveLocation(ctx context.Context, db dbtx, garage *domain.Garage) error {
	loc := garage.Location
	if loc == nil {
		_, err := db.ExecContext(ctx, `DELETE FROM garage_locations WHERE garage_id = $1`, garage.ID)
		return mapError(err)
	}
	query := `INSERT INTO garage_locations (garage_id, country, province, municipality, post_code, street, number)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)
	          ON CONFLICT (garage_id) DO UPDATE SET
	              country = EXCLUDED.country,
	              province = EXCLUDED.province,
	              municipality = EXCLUDED.municipality,
	              post_code = EXCLUDED.post_code,
	              street = EXCLUDED.street,
	              number = EXCLUDED.number`
	_, err := db.ExecContext(ctx, query, garage.ID, loc.Country, loc.Province, loc.Municipality, loc.PostCode, loc.Street, loc.Number)
	return mapError(err)
}

func (r *pgGarageRepository) replaceOpeningHours(ctx context.Context, db dbtx, garage *domain.Garage) error {
	if _, err := db.ExecContext(ctx, `DELETE FROM opening_hours WHERE garage_id = $1`, garage.ID); err != nil {
		return mapError(err)
	}
	query := `INSERT INTO opening_hours (garage_id, from_day, to_day, from_hour, to_hour) VALUES ($1, $2, $3, $4, $5) RETURNING id`
	for i := range garage.OpeningHours {
		h := &garage.OpeningHours[i]
		h.GarageID = garage.ID
		if err := db.QueryRowContext(ctx, query, h.GarageID, h.FromDay, h.ToDay, h.FromHour, h.ToHour).Scan(&h.ID); err != nil {
			return mapError(err)
		}
	}
	return nil
}

func (r *pgGarageRepository) openingHours(ctx context.Context, db dbtx, garageID int) ([]domain.OpeningHour, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT id, garage_id, from_day, to_day, from_hour, to_hour FROM opening_hours WHERE garage_id = $1 ORDER BY from_day, id`, garageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hours []domain.OpeningHour
	for rows.Next() {
		var h domain.OpeningHour
		if err := rows.Scan(&h.ID, &h.GarageID, &h.FromDay, &h.ToDay, &h.FromHour, &h.ToHour); err != nil {
			return nil, err
		}
		hours = append(hours, h)
	}
	return hours, rows.Err()
}

// exists backs the Exister implementations. table is always a constant.
func exists(ctx context.Context, db dbtx, table string, id int) (bool, error) {
	var found bool
	err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM `+table+` WHERE id = $1)`, id).Scan(&found)
	if err != nil {
		return false, fmt.Errorf("exists(%s): %w", table, err)
	}
	return found, nil
}
