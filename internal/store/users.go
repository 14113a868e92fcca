package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateUser(ctx context.Context) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, created_at) VALUES ($1, NOW())
	`, id); err != nil {
		return uuid.Nil, fmt.Errorf("insert user: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Email, &user.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, name FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup user by email: %w", err)
	}
	return &user, nil
}

func (s *PostgresStore) UpdateUserName(ctx context.Context, id uuid.UUID, name string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1
	`, id, name)
	if err != nil {
		return fmt.Errorf("update user name: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1
	`, id, email)
	if err != nil {
		return fmt.Errorf("update user email: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}
