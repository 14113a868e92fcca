package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (s *PostgresStore) CreatePlan(ctx context.Context, userID uuid.UUID, draft PlanDraft) (uuid.UUID, error) {
	id := uuid.New()
	// New plans append to the end of the owner's Main scope.
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO plans (id, user_id, title, starts, ends, type, done_percent, sort_order, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, '0/0',
			(SELECT COUNT(1) FROM plans WHERE user_id = $2 AND type = $6), NOW())
	`, id, userID, draft.Title, draft.Starts, draft.Ends, PlanTypeMain); err != nil {
		return uuid.Nil, fmt.Errorf("insert plan: %w", err)
	}
	return id, nil
}

const planColumns = `
	p.id, p.title, p.type, p.sort_order, p.starts, p.ends, p.done_percent,
	EXISTS(SELECT 1 FROM plan_members pm WHERE pm.plan_id = p.id) AS is_shared,
	u.id, u.email, u.name`

func scanPlan(row interface{ Scan(...any) error }) (Plan, error) {
	var plan Plan
	err := row.Scan(
		&plan.ID, &plan.Title, &plan.Type, &plan.SortOrder, &plan.Starts, &plan.Ends,
		&plan.DonePercent, &plan.IsShared,
		&plan.User.ID, &plan.User.Email, &plan.User.Name,
	)
	return plan, err
}

func (s *PostgresStore) GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+planColumns+`
		FROM plans p
		LEFT JOIN users u ON p.user_id = u.id
		WHERE p.id = $1
	`, id)
	plan, err := scanPlan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup plan: %w", err)
	}
	return &plan, nil
}

func (s *PostgresStore) ListPlans(ctx context.Context, userID uuid.UUID, planType string) ([]Plan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+planColumns+`
		FROM plans p
		LEFT JOIN users u ON p.user_id = u.id
		WHERE p.user_id = $1 AND p.type = $2
		ORDER BY p.sort_order DESC
	`, userID, planType)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()
	return collectPlans(rows)
}

func collectPlans(rows *sql.Rows) ([]Plan, error) {
	plans := make([]Plan, 0)
	for rows.Next() {
		plan, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, plan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return plans, nil
}

func (s *PostgresStore) UpdatePlan(ctx context.Context, draft PlanDraft) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET title = $2, starts = $3, ends = $4, updated_at = NOW() WHERE id = $1
	`, draft.ID, draft.Title, draft.Starts, draft.Ends); err != nil {
		return fmt.Errorf("update plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeletePlan(ctx context.Context, id uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete plan: %w", err)
	}
	return nil
}

func (s *PostgresStore) CountPlans(ctx context.Context, userID uuid.UUID, planType string) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(1) FROM plans WHERE user_id = $1 AND type = $2
	`, userID, planType).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return count, nil
}

// CompactPlanOrder closes the ordinal gap the given plan leaves in its scope.
// Runs before the plan row itself is deleted or moved to another scope.
func (s *PostgresStore) CompactPlanOrder(ctx context.Context, userID, planID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET sort_order = sort_order - 1
		WHERE user_id = $1
		AND type = (SELECT type FROM plans WHERE id = $2)
		AND sort_order > (SELECT sort_order FROM plans WHERE id = $2)
	`, userID, planID); err != nil {
		return fmt.Errorf("compact plan order: %w", err)
	}
	return nil
}

// MovePlanOrder applies the dense-reorder shift to every plan in the scope in
// one statement; the CASE arms mirror order.Shift.
func (s *PostgresStore) MovePlanOrder(ctx context.Context, userID uuid.UUID, planType string, oldOrder, newOrder int) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET sort_order =
			CASE
				WHEN sort_order = $3 THEN $4
				WHEN sort_order > $3 AND sort_order <= $4 THEN sort_order - 1
				WHEN sort_order >= $4 AND sort_order < $3 THEN sort_order + 1
				ELSE sort_order
			END
		WHERE user_id = $1 AND type = $2
	`, userID, planType, oldOrder, newOrder); err != nil {
		return fmt.Errorf("move plan order: %w", err)
	}
	return nil
}

// ChangePlanType appends the plan to the end of the destination scope. The
// caller compacts the source scope first, in the same transaction.
func (s *PostgresStore) ChangePlanType(ctx context.Context, userID, planID uuid.UUID, planType string) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET type = $3,
			sort_order = (SELECT COUNT(1) FROM plans WHERE user_id = $1 AND type = $3),
			updated_at = NOW()
		WHERE id = $2
	`, userID, planID, planType); err != nil {
		return fmt.Errorf("change plan type: %w", err)
	}
	return nil
}

// ReassignPlans moves every plan of fromUserID to toUserID, appending them
// after toUserID's existing plans of the same type with their relative order
// intact. The subquery counts against the statement-start snapshot, so all
// moved rows get the same per-type offset.
func (s *PostgresStore) ReassignPlans(ctx context.Context, fromUserID, toUserID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET user_id = $2,
			sort_order = sort_order + (SELECT COUNT(1) FROM plans t WHERE t.user_id = $2 AND t.type = plans.type),
			updated_at = NOW()
		WHERE user_id = $1
	`, fromUserID, toUserID); err != nil {
		return fmt.Errorf("reassign plans: %w", err)
	}
	return nil
}

// RefreshPlanDonePercent recomputes the denormalized "done/total" counter
// from the plan's tasks.
func (s *PostgresStore) RefreshPlanDonePercent(ctx context.Context, planID uuid.UUID) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE plans SET done_percent = (
			SELECT COUNT(CASE WHEN done THEN 1 END) || '/' || COUNT(1)
			FROM tasks WHERE plan_id = $1
		)
		WHERE id = $1
	`, planID); err != nil {
		return fmt.Errorf("refresh done percent: %w", err)
	}
	return nil
}
