package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreateDevice(ctx context.Context, device Device) (uuid.UUID, error) {
	id := uuid.New()
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (id, user_id, platform, fingerprint, info, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, id, device.UserID, device.Platform, device.Fingerprint, device.Info); err != nil {
		return uuid.Nil, fmt.Errorf("insert device: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetDevice(ctx context.Context, id uuid.UUID) (*Device, error) {
	var device Device
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, platform, fingerprint, info, created_at
		FROM devices WHERE id = $1
	`, id).Scan(&device.ID, &device.UserID, &device.Platform, &device.Fingerprint, &device.Info, &device.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}
	return &device, nil
}

// ListDevices returns the user's devices newest first, so the oldest device
// (the eviction candidate) is always last.
func (s *PostgresStore) ListDevices(ctx context.Context, userID uuid.UUID) ([]Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, platform, fingerprint, info, created_at
		FROM devices WHERE user_id = $1 ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := make([]Device, 0)
	for rows.Next() {
		var device Device
		if err := rows.Scan(&device.ID, &device.UserID, &device.Platform, &device.Fingerprint, &device.Info, &device.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		devices = append(devices, device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func (s *PostgresStore) DeleteDevice(ctx context.Context, id uuid.UUID) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE id = $1`, id)
	if err != nil {
		return 0, fmt.Errorf("delete device: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *PostgresStore) DeleteDeviceByFingerprint(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM devices WHERE fingerprint = $1`, fingerprint); err != nil {
		return fmt.Errorf("delete device by fingerprint: %w", err)
	}
	return nil
}

func (s *PostgresStore) ReassignDevice(ctx context.Context, deviceID, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE devices SET user_id = $2, updated_at = NOW() WHERE id = $1
	`, deviceID, userID); err != nil {
		return fmt.Errorf("reassign device: %w", err)
	}
	return nil
}
