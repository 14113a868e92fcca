package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
)

// Store is the persistence contract the service layer depends on. InTx hands
// the callback a Store bound to one transaction; every multi-statement
// operation that must be atomic (reorders, merges, cross-scope moves) runs
// through it.
type Store interface {
	InTx(ctx context.Context, fn func(Store) error) error
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context) (uuid.UUID, error)
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateUserName(ctx context.Context, id uuid.UUID, name string) error
	UpdateUserEmail(ctx context.Context, id uuid.UUID, email string) error
	DeleteUser(ctx context.Context, id uuid.UUID) error

	CreateDevice(ctx context.Context, device Device) (uuid.UUID, error)
	GetDevice(ctx context.Context, id uuid.UUID) (*Device, error)
	ListDevices(ctx context.Context, userID uuid.UUID) ([]Device, error)
	DeleteDevice(ctx context.Context, id uuid.UUID) (int64, error)
	DeleteDeviceByFingerprint(ctx context.Context, fingerprint string) error
	ReassignDevice(ctx context.Context, deviceID, userID uuid.UUID) error

	CreatePlan(ctx context.Context, userID uuid.UUID, draft PlanDraft) (uuid.UUID, error)
	GetPlan(ctx context.Context, id uuid.UUID) (*Plan, error)
	ListPlans(ctx context.Context, userID uuid.UUID, planType string) ([]Plan, error)
	UpdatePlan(ctx context.Context, draft PlanDraft) error
	DeletePlan(ctx context.Context, id uuid.UUID) error
	CountPlans(ctx context.Context, userID uuid.UUID, planType string) (int, error)
	CompactPlanOrder(ctx context.Context, userID, planID uuid.UUID) error
	MovePlanOrder(ctx context.Context, userID uuid.UUID, planType string, oldOrder, newOrder int) error
	ChangePlanType(ctx context.Context, userID, planID uuid.UUID, planType string) error
	ReassignPlans(ctx context.Context, fromUserID, toUserID uuid.UUID) error
	RefreshPlanDonePercent(ctx context.Context, planID uuid.UUID) error

	AddPlanMember(ctx context.Context, planID, userID uuid.UUID) error
	RemovePlanMember(ctx context.Context, planID, userID uuid.UUID) (int64, error)
	ListPlanMembers(ctx context.Context, planID uuid.UUID) ([]User, error)
	ListSharedPlans(ctx context.Context, userID uuid.UUID) ([]Plan, error)
	CountPlanMembers(ctx context.Context, planID uuid.UUID) (int, error)
	CountSharedPlans(ctx context.Context, ownerID uuid.UUID) (int, error)

	CreateTask(ctx context.Context, planID uuid.UUID, title string) (uuid.UUID, error)
	GetTask(ctx context.Context, id uuid.UUID) (*Task, error)
	ListTasks(ctx context.Context, planID uuid.UUID) ([]Task, error)
	DeleteTask(ctx context.Context, id uuid.UUID) error
	UpdateTaskTitle(ctx context.Context, id uuid.UUID, title string) error
	UpdateTaskDone(ctx context.Context, id uuid.UUID, done bool) error
	CountTasks(ctx context.Context, planID uuid.UUID) (int, error)
	CompactTaskOrder(ctx context.Context, planID, taskID uuid.UUID) error
	MoveTaskOrder(ctx context.Context, planID uuid.UUID, oldOrder, newOrder int) error

	CreateSuggestedEmail(ctx context.Context, userID uuid.UUID, email string) error
	ListSuggestedEmails(ctx context.Context, userID uuid.UUID) ([]SuggestedEmail, error)
	GetSuggestedEmail(ctx context.Context, id uuid.UUID) (*SuggestedEmail, error)
	DeleteSuggestedEmail(ctx context.Context, id uuid.UUID) error
	DeleteSuggestedEmailsByEmail(ctx context.Context, email string) error

	InsertHealth(ctx context.Context, health Health) error
	UpdateHealthPulse(ctx context.Context, id uuid.UUID) error
	UpdateHealthStopped(ctx context.Context, id uuid.UUID) error
	InsertTraffic(ctx context.Context, traffic Traffic) error
	InsertLog(ctx context.Context, entry LogEntry) error
}

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type PostgresStore struct {
	db   DBTX
	root *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, root: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.root
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.root.PingContext(ctx)
}

// InTx runs fn against a transaction-bound store. Calls on a store that is
// already transactional join the open transaction.
func (s *PostgresStore) InTx(ctx context.Context, fn func(Store) error) error {
	if _, ok := s.db.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.root.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&PostgresStore{db: tx, root: s.root}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}
