package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"planhub/api/internal/order"
	"planhub/api/internal/store"
)

const (
	maxPlansPerType  = 100
	maxPlanMembers   = 20
	maxSharedPlans   = 20
	keyMaxPlans      = "max_is_100"
	keyMaxShares     = "max_is_20"
	keyLoginRequired = "login_required"
	keyCannotLeave   = "user_cannot_leave_plan"
	keyShareWithSelf = "not_allowed_to_share_with_creator"
)

// GetPlan returns one plan; shared plans additionally carry their member
// list. Non-shared plans never pay for the second query.
func (s *Service) GetPlan(ctx context.Context, planID uuid.UUID) (*store.Plan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, notFoundError("plan not found")
	}
	if plan.IsShared {
		members, err := s.store.ListPlanMembers(ctx, planID)
		if err != nil {
			return nil, err
		}
		plan.Members = members
	}
	return plan, nil
}

// ListPlans returns the caller's plans of one type, plus every plan shared
// with the caller when the caller has a verified email. Shared plans are not
// filtered by type.
func (s *Service) ListPlans(ctx context.Context, meta Meta, planType string) ([]store.Plan, error) {
	if !store.ValidPlanType(planType) {
		return nil, inputError("invalid plan type %q", planType)
	}
	plans, err := s.store.ListPlans(ctx, meta.UserID, planType)
	if err != nil {
		return nil, err
	}
	user, err := s.store.GetUser(ctx, meta.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil || user.Email == nil {
		return plans, nil
	}
	shared, err := s.store.ListSharedPlans(ctx, meta.UserID)
	if err != nil {
		return nil, err
	}
	return append(plans, shared...), nil
}

func (s *Service) CreatePlan(ctx context.Context, meta Meta, draft store.PlanDraft) (uuid.UUID, error) {
	count, err := s.store.CountPlans(ctx, meta.UserID, store.PlanTypeMain)
	if err != nil {
		return uuid.Nil, err
	}
	if count >= maxPlansPerType {
		return uuid.Nil, logicError("maximum of 100 plans reached", keyMaxPlans)
	}
	return s.store.CreatePlan(ctx, meta.UserID, draft)
}

func (s *Service) UpdatePlan(ctx context.Context, meta Meta, draft store.PlanDraft) error {
	if _, err := s.ownedPlan(ctx, meta, draft.ID); err != nil {
		return err
	}
	return s.store.UpdatePlan(ctx, draft)
}

// DeletePlan compacts the plan's scope and deletes the row in one
// transaction; tasks and memberships cascade.
func (s *Service) DeletePlan(ctx context.Context, meta Meta, planID uuid.UUID) error {
	if _, err := s.ownedPlan(ctx, meta, planID); err != nil {
		return err
	}
	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CompactPlanOrder(ctx, meta.UserID, planID); err != nil {
			return err
		}
		return tx.DeletePlan(ctx, planID)
	})
}

// ChangePlanType is a cross-scope move: compact the source scope, append into
// the destination. Both writes share one transaction so a crash cannot leave
// the plan counted in neither or both scopes.
func (s *Service) ChangePlanType(ctx context.Context, meta Meta, planID uuid.UUID, planType string) error {
	if !store.ValidPlanType(planType) {
		return inputError("invalid plan type %q", planType)
	}
	if _, err := s.ownedPlan(ctx, meta, planID); err != nil {
		return err
	}
	count, err := s.store.CountPlans(ctx, meta.UserID, planType)
	if err != nil {
		return err
	}
	if count >= maxPlansPerType {
		return logicError("maximum of 100 plans reached", keyMaxPlans)
	}
	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CompactPlanOrder(ctx, meta.UserID, planID); err != nil {
			return err
		}
		return tx.ChangePlanType(ctx, meta.UserID, planID, planType)
	})
}

func (s *Service) ReorderPlans(ctx context.Context, meta Meta, planType string, oldOrder, newOrder int) error {
	if !store.ValidPlanType(planType) {
		return inputError("invalid plan type %q", planType)
	}
	if oldOrder == newOrder {
		return nil
	}
	count, err := s.store.CountPlans(ctx, meta.UserID, planType)
	if err != nil {
		return err
	}
	if err := order.ValidateMove(oldOrder, newOrder, count); err != nil {
		return inputError("%s", err.Error())
	}
	return s.store.MovePlanOrder(ctx, meta.UserID, planType, oldOrder, newOrder)
}

// SharePlan grants plan access to the user owning the email. Only verified
// owners can share, the owner cannot be invited, an already-shared plan is
// capped at 20 members, and a first-time share is capped at 20 distinct
// shared plans per owner. Success also records the pair of suggestion rows
// for future autocomplete.
func (s *Service) SharePlan(ctx context.Context, meta Meta, planID uuid.UUID, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return inputError("email is required")
	}
	plan, err := s.ownedPlan(ctx, meta, planID)
	if err != nil {
		return err
	}
	owner, err := s.store.GetUser(ctx, meta.UserID)
	if err != nil {
		return err
	}
	if owner == nil || owner.Email == nil {
		return logicError("login required to share plans", keyLoginRequired)
	}
	target, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if target == nil {
		return notFoundError("email not found")
	}
	if target.ID == meta.UserID {
		return logicError("not allowed to share with creator", keyShareWithSelf)
	}

	if plan.IsShared {
		members, err := s.store.CountPlanMembers(ctx, planID)
		if err != nil {
			return err
		}
		if members >= maxPlanMembers {
			return logicError("maximum of 20 shares reached", keyMaxShares)
		}
	} else {
		sharedPlans, err := s.store.CountSharedPlans(ctx, meta.UserID)
		if err != nil {
			return err
		}
		if sharedPlans >= maxSharedPlans {
			return logicError("maximum of 20 shares reached", keyMaxShares)
		}
	}

	if err := s.store.AddPlanMember(ctx, planID, target.ID); err != nil {
		return err
	}

	// Suggestions are best-effort bookkeeping, not part of the share itself.
	if err := s.store.CreateSuggestedEmail(ctx, meta.UserID, email); err != nil {
		return err
	}
	return s.store.CreateSuggestedEmail(ctx, target.ID, *owner.Email)
}

func (s *Service) UnsharePlan(ctx context.Context, meta Meta, planID uuid.UUID, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return inputError("email is required")
	}
	if _, err := s.ownedPlan(ctx, meta, planID); err != nil {
		return err
	}
	target, err := s.store.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}
	if target == nil {
		return notFoundError("email not found")
	}
	_, err = s.store.RemovePlanMember(ctx, planID, target.ID)
	return err
}

// LeavePlan removes the caller's own membership. Exactly one row must go.
func (s *Service) LeavePlan(ctx context.Context, meta Meta, planID uuid.UUID) error {
	rows, err := s.store.RemovePlanMember(ctx, planID, meta.UserID)
	if err != nil {
		return err
	}
	if rows != 1 {
		return logicError("user cannot leave plan", keyCannotLeave)
	}
	return nil
}

func (s *Service) ownedPlan(ctx context.Context, meta Meta, planID uuid.UUID) (*store.Plan, error) {
	plan, err := s.store.GetPlan(ctx, planID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, notFoundError("plan not found")
	}
	if plan.User.ID != meta.UserID {
		return nil, forbiddenError("user does not own this plan")
	}
	return plan, nil
}
