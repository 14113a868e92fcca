package otp

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps pending challenges in the otp_challenges table. Used
// when no Redis is configured; expired rows are filtered on read and cleaned
// opportunistically on save.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Save(ctx context.Context, sid string, challenge Challenge) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("prune challenges: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otp_challenges (sid, email, code_hash, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (sid) DO UPDATE SET email=EXCLUDED.email, code_hash=EXCLUDED.code_hash, expires_at=EXCLUDED.expires_at
	`, sid, challenge.Email, challenge.CodeHash, challenge.ExpiresAt, challenge.CreatedAt)
	if err != nil {
		return fmt.Errorf("save challenge: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, sid string) (Challenge, error) {
	var challenge Challenge
	err := s.db.QueryRowContext(ctx, `
		SELECT email, code_hash, expires_at, created_at
		FROM otp_challenges
		WHERE sid = $1
	`, sid).Scan(&challenge.Email, &challenge.CodeHash, &challenge.ExpiresAt, &challenge.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Challenge{}, ErrNotFound
	}
	if err != nil {
		return Challenge{}, fmt.Errorf("lookup challenge: %w", err)
	}
	return challenge, nil
}

func (s *PostgresStore) Delete(ctx context.Context, sid string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM otp_challenges WHERE sid = $1`, sid); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}
