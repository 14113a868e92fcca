package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Operational tables. These are written by the node itself (health pulses)
// and by the audit recorder (traffic and log rows), never read on request
// paths.

func (s *PostgresStore) InsertHealth(ctx context.Context, h Health) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO x_health (id, api_name, api_version, env_name, node_ip, node_name, started_at, pulsed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
	`, h.ID, h.APIName, h.APIVersion, h.EnvName, h.NodeIP, h.NodeName); err != nil {
		return fmt.Errorf("insert health: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateHealthPulse(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE x_health SET pulsed_at = NOW() WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("update health pulse: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateHealthStopped(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE x_health SET stopped_at = NOW() WHERE id = $1
	`, id); err != nil {
		return fmt.Errorf("update health stopped: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertTraffic(ctx context.Context, t Traffic) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO x_traffic (id, health_id, method, path, code, elapsed_ms, headers, request, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	`, t.ID, t.HealthID, t.Method, t.Path, t.Code, t.Elapsed, t.Headers, t.Request, t.Response); err != nil {
		return fmt.Errorf("insert traffic: %w", err)
	}
	return nil
}

func (s *PostgresStore) InsertLog(ctx context.Context, entry LogEntry) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO x_log (id, traffic_id, kind, message, node_ip, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, uuid.New(), entry.TrafficID, entry.Kind, entry.Message, entry.NodeIP); err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	return nil
}
