package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) AddPlanMember(ctx context.Context, planID, userID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO plan_members (plan_id, user_id, created_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (plan_id, user_id) DO NOTHING
	`, planID, userID); err != nil {
		return fmt.Errorf("add plan member: %w", err)
	}
	return nil
}

func (s *PostgresStore) RemovePlanMember(ctx context.Context, planID, userID uuid.UUID) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM plan_members WHERE plan_id = $1 AND user_id = $2
	`, planID, userID)
	if err != nil {
		return 0, fmt.Errorf("remove plan member: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("remove plan member: %w", err)
	}
	return affected, nil
}

func (s *PostgresStore) ListPlanMembers(ctx context.Context, planID uuid.UUID) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT u.id, u.email, u.name
		FROM plan_members pm
		JOIN users u ON pm.user_id = u.id
		WHERE pm.plan_id = $1
		ORDER BY pm.created_at ASC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("list plan members: %w", err)
	}
	defer rows.Close()

	members := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Email, &user.Name); err != nil {
			return nil, fmt.Errorf("scan plan member: %w", err)
		}
		members = append(members, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plan members: %w", err)
	}
	return members, nil
}

// ListSharedPlans returns the plans shared with the given user, oldest
// membership first.
func (s *PostgresStore) ListSharedPlans(ctx context.Context, userID uuid.UUID) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.title, p.type, p.sort_order, p.starts, p.ends, p.done_percent,
			TRUE AS is_shared,
			u.id, u.email, u.name
		FROM plan_members pm
		JOIN plans p ON pm.plan_id = p.id
		LEFT JOIN users u ON p.user_id = u.id
		WHERE pm.user_id = $1
		ORDER BY pm.created_at ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func (s *PostgresStore) CountPlanMembers(ctx context.Context, planID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM plan_members WHERE plan_id = $1
	`, planID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count plan members: %w", err)
	}
	return count, nil
}

// CountSharedPlans counts the distinct plans a user's plans are shared into,
// not the member rows.
func (s *PostgresStore) CountSharedPlans(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT pm.plan_id)
		FROM plan_members pm
		JOIN plans p ON pm.plan_id = p.id
		WHERE p.user_id = $1
	`, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count shared plans: %w", err)
	}
	return count, nil
}
