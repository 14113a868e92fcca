package store

import (
	"time"

	"github.com/google/uuid"
)

// Plan types. Each type is an independent ordering scope per user.
const (
	PlanTypeMain     = "Main"
	PlanTypeArchived = "Archived"
)

func ValidPlanType(t string) bool {
	return t == PlanTypeMain || t == PlanTypeArchived
}

// User is a planning account. Email is nil until the user verifies one; an
// email-less user is anonymous and exists only through its devices.
type User struct {
	ID    uuid.UUID `json:"id,omitempty"`
	Email *string   `json:"email,omitempty"`
	Name  *string   `json:"name,omitempty"`
}

// Device is one installation of the client app. Fingerprint is stable per
// physical device; at most one row exists per fingerprint.
type Device struct {
	ID          uuid.UUID `json:"id"`
	UserID      uuid.UUID `json:"userId"`
	Platform    string    `json:"platform"`
	Fingerprint string    `json:"fingerprint"`
	Info        string    `json:"info"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Plan struct {
	ID          uuid.UUID  `json:"id,omitempty"`
	Title       *string    `json:"title,omitempty"`
	Type        string     `json:"type,omitempty"`
	SortOrder   int        `json:"sortOrder"`
	Starts      *time.Time `json:"starts,omitempty"`
	Ends        *time.Time `json:"ends,omitempty"`
	DonePercent *string    `json:"donePercent,omitempty"`
	IsShared    bool       `json:"isShared,omitempty"`
	User        User       `json:"user,omitempty"`
	Members     []User     `json:"members,omitempty"`
}

// PlanDraft is the writable subset of a plan accepted from clients.
type PlanDraft struct {
	ID     uuid.UUID  `json:"id"`
	Title  *string    `json:"title"`
	Starts *time.Time `json:"starts"`
	Ends   *time.Time `json:"ends"`
}

type Task struct {
	ID        uuid.UUID `json:"id"`
	PlanID    uuid.UUID `json:"planId"`
	Title     string    `json:"title"`
	Done      bool      `json:"done"`
	SortOrder int       `json:"sortOrder"`
	CreatedAt time.Time `json:"createdAt"`
}

type SuggestedEmail struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"userId"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
}

// Health is one row per process start in x_health; pulsed_at shows liveness.
type Health struct {
	ID         uuid.UUID `json:"id"`
	APIName    string    `json:"apiName"`
	APIVersion string    `json:"apiVersion"`
	EnvName    string    `json:"envName"`
	NodeIP     string    `json:"nodeIp"`
	NodeName   string    `json:"nodeName"`
}

// Traffic is one request record in x_traffic. Request/Response bodies are
// captured only for error responses.
type Traffic struct {
	ID       uuid.UUID
	HealthID uuid.UUID
	Method   string
	Path     string
	Code     int
	Elapsed  int64
	Headers  string
	Request  string
	Response string
}

// LogEntry is an application or client-reported audit line in x_log.
type LogEntry struct {
	TrafficID *uuid.UUID
	Kind      string
	Message   string
	NodeIP    string
}
