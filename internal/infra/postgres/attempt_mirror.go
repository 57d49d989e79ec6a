package postgres

import (
	"context"
	"fmt"

	"faculty-quiz-service/internal/domain"
	"github.com/jackc/pgx/v4/pgxpool"
)

// AttemptMirror keeps the shared copy of finished attempts in Postgres.
type AttemptMirror struct {
	pool *pgxpool.Pool
}

func NewAttemptMirror(pool *pgxpool.Pool) *AttemptMirror {
	return &AttemptMirror{pool: pool}
}

// Mirror inserts the attempt; writing the same id twice is a no-op so retries are safe.
// created_at is stamped by the database.
func (m *AttemptMirror) Mirror(ctx context.Context, rec domain.AttemptRecord) error {
	_, err := m.pool.Exec(ctx,
		`INSERT INTO attempts (id, score, total, percentage, identity, client_timestamp, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (id) DO NOTHING`,
		rec.ID, rec.Score, rec.Total, rec.Percentage, rec.Identity, rec.Timestamp)
	if err != nil {
		return fmt.Errorf("mirror attempt: %w", err)
	}
	return nil
}

// Global returns the newest attempts across all participants, ordered by server time.
func (m *AttemptMirror) Global(ctx context.Context, limit int) ([]domain.AttemptRecord, error) {
	if limit <= 0 {
		limit = 5
	}
	rows, err := m.pool.Query(ctx,
		`SELECT id, score, total, percentage, identity, created_at
		 FROM attempts
		 ORDER BY created_at DESC
		 LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("load global attempts: %w", err)
	}
	defer rows.Close()

	out := make([]domain.AttemptRecord, 0, limit)
	for rows.Next() {
		var rec domain.AttemptRecord
		if err := rows.Scan(&rec.ID, &rec.Score, &rec.Total, &rec.Percentage, &rec.Identity, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		rec.Timestamp = rec.Timestamp.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load global attempts: %w", err)
	}
	return out, nil
}
