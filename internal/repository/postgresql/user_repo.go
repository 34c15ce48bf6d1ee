package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgUserRepository struct {
	db *sql.DB
}

func NewPgUserRepository(db *sql.DB) repository.UserRepository {
	return &pgUserRepository{db: db}
}

const userColumns = `id, email, password_hash, role, kind, has_automatic_payment, stripe_customer_id, created_at, updated_at`

func scanUser(row rowScanner) (*domain.User, error) {
	user := &domain.User{}
	err := row.Scan(&user.ID, &user.Email, &user.Password, &user.Role, &user.Kind, &user.HasAutomaticPayment,
		&user.StripeCustomerID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) Create(ctx context.Context, user *domain.User) (*domain.User, error) {
	query := `INSERT INTO users (email, password_hash, role, kind, has_automatic_payment, stripe_customer_id)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at, updated_at`
	// user.Password holds the bcrypt hash here
	err := conn(ctx, r.db).QueryRowContext(ctx, query, user.Email, user.Password, user.Role, user.Kind,
		user.HasAutomaticPayment, user.StripeCustomerID).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("UserRepository.Create: %w", mapError(err))
	}
	user.CreatedAt = user.CreatedAt.In(time.UTC)
	user.UpdatedAt = user.UpdatedAt.In(time.UTC)
	return user, nil
}

func (r *pgUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, email))
	if err != nil {
		return nil, fmt.Errorf("UserRepository.FindByEmail: %w", mapError(err))
	}
	return user, nil
}

func (r *pgUserRepository) FindByID(ctx context.Context, id int) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	user, err := scanUser(conn(ctx, r.db).QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("UserRepository.FindByID: %w", mapError(err))
	}
	return user, nil
}

func (r *pgUserRepository) Delete(ctx context.Context, id int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("UserRepository.Delete: %w", mapError(err))
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("UserRepository.Delete (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *pgUserRepository) Exists(ctx context.Context, id int) (bool, error) {
	return exists(ctx, conn(ctx, r.db), "users", id)
}
