package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateSuggestedEmail(ctx context.Context, userID uuid.UUID, email string) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suggested_emails (id, user_id, email, created_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (user_id, email) DO NOTHING
	`, uuid.New(), userID, email); err != nil {
		return fmt.Errorf("insert suggested email: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListSuggestedEmails(ctx context.Context, userID uuid.UUID) ([]SuggestedEmail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, email, created_at
		FROM suggested_emails
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list suggested emails: %w", err)
	}
	defer rows.Close()

	suggestions := make([]SuggestedEmail, 0)
	for rows.Next() {
		var se SuggestedEmail
		if err := rows.Scan(&se.ID, &se.UserID, &se.Email, &se.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan suggested email: %w", err)
		}
		suggestions = append(suggestions, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate suggested emails: %w", err)
	}
	return suggestions, nil
}

func (s *PostgresStore) GetSuggestedEmail(ctx context.Context, id uuid.UUID) (*SuggestedEmail, error) {
	var se SuggestedEmail
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, email, created_at FROM suggested_emails WHERE id = $1
	`, id).Scan(&se.ID, &se.UserID, &se.Email, &se.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup suggested email: %w", err)
	}
	return &se, nil
}

func (s *PostgresStore) DeleteSuggestedEmail(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM suggested_emails WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete suggested email: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteSuggestedEmailsByEmail(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM suggested_emails WHERE email = $1`, email); err != nil {
		return fmt.Errorf("delete suggested emails by email: %w", err)
	}
	return nil
}
