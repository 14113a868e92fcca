package app

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planhub/api/internal/audit"
	"planhub/api/internal/auth"
	"planhub/api/internal/config"
	"planhub/api/internal/otp"
	"planhub/api/internal/store"
)

// NodeInfo identifies this process instance. Built once in main and injected
// everywhere it is needed; never held as package state.
type NodeInfo struct {
	HealthID   uuid.UUID
	APIName    string
	APIVersion string
	EnvName    string
	IP         string
	Name       string
}

// Meta is the authenticated identity of a request, resolved from the bearer
// token at the boundary and passed down explicitly.
type Meta struct {
	UserID    uuid.UUID
	DeviceID  uuid.UUID
	TrafficID uuid.UUID
}

type CreatedUser struct {
	ID       uuid.UUID `json:"id"`
	DeviceID uuid.UUID `json:"deviceId"`
	JWT      string    `json:"jwt"`
}

type VerifiedUser struct {
	UserID   uuid.UUID `json:"userId"`
	DeviceID uuid.UUID `json:"deviceId"`
	JWT      string    `json:"jwt"`
	Name     *string   `json:"userFullName"`
	Email    *string   `json:"email"`
}

type DeviceInput struct {
	Platform         string `json:"platform"`
	IsPhysicalDevice bool   `json:"isPhysicalDevice"`
	Fingerprint      string `json:"deviceFingerprint"`
	Info             string `json:"deviceInfo"`
}

type Service struct {
	cfg    config.Config
	store  store.Store
	tokens *auth.Tokens
	otp    otp.Provider
	log    *zap.Logger
	node   NodeInfo
	audit  *audit.Recorder
}

func NewService(cfg config.Config, st store.Store, tokens *auth.Tokens, provider otp.Provider, log *zap.Logger, node NodeInfo, recorder *audit.Recorder) *Service {
	return &Service{
		cfg:    cfg,
		store:  st,
		tokens: tokens,
		otp:    provider,
		log:    log,
		node:   node,
		audit:  recorder,
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) Node() NodeInfo {
	return s.node
}

func (s *Service) Audit() *audit.Recorder {
	return s.audit
}

// Authenticate resolves a bearer token into a request Meta. The device check
// is skipped for logout, whose purpose is removing a device row that may
// already belong to someone else after a merge.
func (s *Service) Authenticate(ctx context.Context, token string, checkDevice bool) (Meta, error) {
	if token == "" {
		return Meta{}, unauthorizedError("missing bearer token")
	}
	identity, err := s.tokens.Parse(token)
	if err != nil {
		return Meta{}, unauthorizedError("invalid or expired token")
	}
	if identity.UserID == uuid.Nil || identity.DeviceID == uuid.Nil {
		return Meta{}, forbiddenError("malformed identity")
	}

	user, err := s.store.GetUser(ctx, identity.UserID)
	if err != nil {
		return Meta{}, err
	}
	if user == nil {
		return Meta{}, unauthorizedError("unknown user")
	}

	if checkDevice {
		device, err := s.store.GetDevice(ctx, identity.DeviceID)
		if err != nil {
			return Meta{}, err
		}
		if device == nil || device.UserID != identity.UserID {
			return Meta{}, unauthorizedError("device does not belong to user")
		}
	}

	return Meta{UserID: identity.UserID, DeviceID: identity.DeviceID}, nil
}
