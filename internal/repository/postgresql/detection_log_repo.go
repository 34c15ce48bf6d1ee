package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"parking_garage/internal/domain"
	"parking_garage/internal/repository"
)

type pgDetectionLogRepository struct {
	db *sql.DB
}

func NewPgDetectionLogRepository(db *sql.DB) repository.DetectionLogRepository {
	return &pgDetectionLogRepository{db: db}
}

func (r *pgDetectionLogRepository) Create(ctx context.Context, entry *domain.DetectionLog) error {
	query := `INSERT INTO detection_logs (received_at, garage_id, licence_plate, source, outcome, notes, payload)
	          VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`

	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	err := conn(ctx, r.db).QueryRowContext(ctx, query,
		entry.ReceivedAt,
		entry.GarageID,
		sql.NullString{String: entry.Plate, Valid: entry.Plate != ""},
		string(entry.Source),
		entry.Outcome,
		sql.NullString{String: entry.Notes, Valid: entry.Notes != ""},
		payload,
	).Scan(&entry.ID)
	if err != nil {
		return fmt.Errorf("DetectionLogRepository.Create: %w", mapError(err))
	}
	return nil
}

func (r *pgDetectionLogRepository) DeleteOlderThan(ctx context.Context, before time.Time) (int64, error) {
	result, err := conn(ctx, r.db).ExecContext(ctx, `DELETE FROM detection_logs WHERE received_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("DetectionLogRepository.DeleteOlderThan: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DetectionLogRepository.DeleteOlderThan (checking rows affected): %w", err)
	}
	return n, nil
}
