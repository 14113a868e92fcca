// Package otp implements the email one-time-passcode challenge flow: a send
// issues an opaque verification session id (sid) and mails a short code, a
// verify checks (sid, code, email) against the stored challenge.
package otp

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"

	"golang.org/x/crypto/bcrypt"

	"planhub/api/internal/email"
)

// Verification outcomes. Only StatusApproved authorizes anything.
const (
	StatusApproved  = "approved"
	StatusExpired   = "expired"
	StatusIncorrect = "incorrect"
	StatusNotFound  = "not_found"
)

// Provider is the challenge contract the user service depends on.
type Provider interface {
	SendChallenge(ctx context.Context, email string) (sid string, err error)
	VerifyChallenge(ctx context.Context, sid, code, email string) (status string, err error)
}

// Challenge is a pending verification, stored keyed by sid.
type Challenge struct {
	Email     string    `json:"email"`
	CodeHash  string    `json:"code_hash"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// ChallengeStore persists pending challenges. Implementations expire entries
// at or after Challenge.ExpiresAt; Get after expiry may return ErrNotFound.
type ChallengeStore interface {
	Save(ctx context.Context, sid string, challenge Challenge) error
	Get(ctx context.Context, sid string) (Challenge, error)
	Delete(ctx context.Context, sid string) error
}

type mailer interface {
	SendOTPEmail(to, code string, minutes int) error
}

// EmailProvider issues codes over SMTP and checks them against a store.
type EmailProvider struct {
	store  ChallengeStore
	mailer mailer
	ttl    time.Duration
}

func NewEmailProvider(store ChallengeStore, svc *email.Service, ttl time.Duration) *EmailProvider {
	return &EmailProvider{store: store, mailer: svc, ttl: ttl}
}

func (p *EmailProvider) SendChallenge(ctx context.Context, to string) (string, error) {
	code, err := randomCode()
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash code: %w", err)
	}

	sid := newSID()
	now := time.Now()
	challenge := Challenge{
		Email:     to,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(p.ttl),
		CreatedAt: now,
	}
	if err := p.store.Save(ctx, sid, challenge); err != nil {
		return "", fmt.Errorf("save challenge: %w", err)
	}

	if err := p.mailer.SendOTPEmail(to, code, int(p.ttl.Minutes())); err != nil {
		// A challenge whose code never arrived is useless to anyone.
		_ = p.store.Delete(ctx, sid)
		return "", fmt.Errorf("send otp email: %w", err)
	}
	return sid, nil
}

func (p *EmailProvider) VerifyChallenge(ctx context.Context, sid, code, to string) (string, error) {
	challenge, err := p.store.Get(ctx, sid)
	if err != nil {
		if err == ErrNotFound {
			return StatusNotFound, nil
		}
		return "", fmt.Errorf("load challenge: %w", err)
	}

	if time.Now().After(challenge.ExpiresAt) {
		_ = p.store.Delete(ctx, sid)
		return StatusExpired, nil
	}
	if challenge.Email != to {
		return StatusIncorrect, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(challenge.CodeHash), []byte(code)) != nil {
		return StatusIncorrect, nil
	}

	// One shot: a code cannot be replayed.
	if err := p.store.Delete(ctx, sid); err != nil {
		return "", fmt.Errorf("burn challenge: %w", err)
	}
	return StatusApproved, nil
}

// newSID returns an opaque verification session id. The vrf prefix makes sids
// recognizable in logs without saying anything about the challenge.
func newSID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return "vrf_" + hex.EncodeToString(buf)
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
