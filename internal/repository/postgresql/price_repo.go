package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgPriceRepository struct {
	db *sql.DB
}

func NewPgPriceRepository(db *sql.DB) repository.PriceRepository {
	return &pgPriceRepository{db: db}
}

func (r *pgPriceRepository) Create(ctx context.Context, p *domain.Price) (*domain.Price, error) {
	query := `INSERT INTO prices (garage_id, price_string, duration_seconds, price, valuta, stripe_identifier)
	          VALUES ($1, $2, $3, $4, $5, $6) RETURNING id, created_at, updated_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, p.GarageID, p.Label, int64(p.Duration/time.Second), p.Price,
		p.Currency, p.StripeIdentifier).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("PriceRepository.Create: %w", mapError(err))
	}
	p.CreatedAt = p.CreatedAt.In(time.UTC)
	p.UpdatedAt = p.UpdatedAt.In(time.UTC)
	return p, nil
}

func (r *pgPriceRepository) FindByGarageID(ctx context.Context, garageID int) ([]domain.Price, error) {
	query := `SELECT id, garage_id, price_string, duration_seconds, price, valuta, stripe_identifier, created_at, updated_at
	          FROM prices WHERE garage_id = $1 ORDER BY duration_seconds DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, garageID)
	if err != nil {
		return nil, fmt.Errorf("PriceRepository.FindByGarageID: %w", err)
	}
	defer rows.Close()

	var prices []domain.Price
	for rows.Next() {
		var p domain.Price
		var seconds int64
		if err := rows.Scan(&p.ID, &p.GarageID, &p.Label, &seconds, &p.Price, &p.Currency, &p.StripeIdentifier,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("PriceRepository.FindByGarageID (scanning row): %w", err)
		}
		p.Duration = time.Duration(seconds) * time.Second
		p.CreatedAt = p.CreatedAt.In(time.UTC)
		p.UpdatedAt = p.UpdatedAt.In(time.UTC)
		prices = append(prices, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("PriceRepository.FindByGarageID (rows error): %w", err)
	}
	return prices, nil
}

func (r *pgPriceRepository) Delete(ctx context.Context, garageID, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM prices WHERE id = $1 AND garage_id = $2`, id, garageID)
	if err != nil {
		return fmt.Errorf("PriceRepository.Delete: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("PriceRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
