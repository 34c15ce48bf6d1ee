package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgNotificationRepository struct {
	db *sql.DB
}

func NewPgNotificationRepository(db *sql.DB) repository.NotificationRepository {
	return &pgNotificationRepository{db: db}
}

func (r *pgNotificationRepository) Create(ctx context.Context, n *domain.Notification) (*domain.Notification, error) {
	query := `INSERT INTO notifications (user_id, title, content) VALUES ($1, $2, $3) RETURNING id, seen, created_at`
	err := conn(ctx, r.db).QueryRowContext(ctx, query, n.UserID, n.Title, n.Content).Scan(&n.ID, &n.Seen, &n.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("NotificationRepository.Create: %w", mapError(err))
	}
	n.CreatedAt = n.CreatedAt.In(time.UTC)
	return n, nil
}

func (r *pgNotificationRepository) FindByUserID(ctx context.Context, userID int) ([]domain.Notification, error) {
	query := `SELECT id, user_id, title, content, seen, created_at FROM notifications WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("NotificationRepository.FindByUserID: %w", err)
	}
	defer rows.Close()

	var out []domain.Notification
	for rows.Next() {
		var n domain.Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.Title, &n.Content, &n.Seen, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("NotificationRepository.FindByUserID (scanning row): %w", err)
		}
		n.CreatedAt = n.CreatedAt.In(time.UTC)
		out = append(out, n)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("NotificationRepository.FindByUserID (rows error): %w", err)
	}
	return out, nil
}

func (r *pgNotificationRepository) MarkSeen(ctx context.Context, id, userID int) error {
	result, err := conn(ctx, r.db).ExecContext(ctx, `UPDATE notifications SET seen = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("NotificationRepository.MarkSeen: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("NotificationRepository.MarkSeen (checking rows affected): %w", err)
	}
	if rowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}
