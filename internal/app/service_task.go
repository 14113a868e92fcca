package app

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"planhub/api/internal/order"
	"planhub/api/internal/store"
)

const maxTasksPerPlan = 100

func (s *Service) CreateTask(ctx context.Context, planID uuid.UUID, title string) (uuid.UUID, error) {
	if strings.TrimSpace(title) == "" {
		return uuid.Nil, inputError("title is required")
	}
	count, err := s.store.CountTasks(ctx, planID)
	if err != nil {
		return uuid.Nil, err
	}
	if count >= maxTasksPerPlan {
		return uuid.Nil, logicError("maximum of 100 tasks reached", keyMaxPlans)
	}

	var taskID uuid.UUID
	err = s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		if taskID, err = tx.CreateTask(ctx, planID, title); err != nil {
			return err
		}
		return tx.RefreshPlanDonePercent(ctx, planID)
	})
	if err != nil {
		return uuid.Nil, err
	}
	return taskID, nil
}

func (s *Service) ListTasks(ctx context.Context, planID uuid.UUID) ([]store.Task, error) {
	return s.store.ListTasks(ctx, planID)
}

func (s *Service) DeleteTask(ctx context.Context, planID, taskID uuid.UUID) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.CompactTaskOrder(ctx, planID, taskID); err != nil {
			return err
		}
		if err := tx.DeleteTask(ctx, taskID); err != nil {
			return err
		}
		return tx.RefreshPlanDonePercent(ctx, planID)
	})
}

func (s *Service) UpdateTaskTitle(ctx context.Context, taskID uuid.UUID, title string) error {
	if strings.TrimSpace(title) == "" {
		return inputError("title is required")
	}
	return s.store.UpdateTaskTitle(ctx, taskID, title)
}

// UpdateTaskDone sets the flag, recomputes the plan's done counter, then
// floats the task to position 0 when done or sinks it to the last position
// when reopened. The whole sequence is one transaction.
func (s *Service) UpdateTaskDone(ctx context.Context, planID, taskID uuid.UUID, done bool) error {
	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.UpdateTaskDone(ctx, taskID, done); err != nil {
			return err
		}
		if err := tx.RefreshPlanDonePercent(ctx, planID); err != nil {
			return err
		}

		task, err := tx.GetTask(ctx, taskID)
		if err != nil {
			return err
		}
		if task == nil {
			return notFoundError("task not found")
		}
		count, err := tx.CountTasks(ctx, planID)
		if err != nil {
			return err
		}
		newOrder := 0
		if !done {
			newOrder = count - 1
		}
		if task.SortOrder == newOrder {
			return nil
		}
		return tx.MoveTaskOrder(ctx, planID, task.SortOrder, newOrder)
	})
}

func (s *Service) ReorderTasks(ctx context.Context, planID uuid.UUID, oldOrder, newOrder int) error {
	if oldOrder == newOrder {
		return nil
	}
	count, err := s.store.CountTasks(ctx, planID)
	if err != nil {
		return err
	}
	if err := order.ValidateMove(oldOrder, newOrder, count); err != nil {
		return inputError("%s", err.Error())
	}
	return s.store.MoveTaskOrder(ctx, planID, oldOrder, newOrder)
}
