// Package auth issues and verifies the bearer tokens that bind a request to
// a (user, device) pair.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	issuer   = "planhub-api"
	tokenTTL = 7 * 24 * time.Hour
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

// Identity is the pair a verified token resolves to.
type Identity struct {
	UserID   uuid.UUID
	DeviceID uuid.UUID
}

type Tokens struct {
	secret []byte
}

func NewTokens(secret string) *Tokens {
	return &Tokens{secret: []byte(secret)}
}

// Issue signs a token bound to the given user and device, valid for 7 days.
func (t *Tokens) Issue(userID, deviceID uuid.UUID) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"userId":   userID.String(),
		"deviceId": deviceID.String(),
		"iat":      now.Unix(),
		"exp":      now.Add(tokenTTL).Unix(),
		"iss":      issuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", errors.New("sign token: " + err.Error())
	}
	return signed, nil
}

// Parse verifies the signature and expiry and extracts the bound identity.
// Both ids must be present and non-nil.
func (t *Tokens) Parse(token string) (Identity, error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return t.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrExpiredToken
		}
		return Identity{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := claimUUID(claims, "userId")
	if err != nil {
		return Identity{}, err
	}
	deviceID, err := claimUUID(claims, "deviceId")
	if err != nil {
		return Identity{}, err
	}
	return Identity{UserID: userID, DeviceID: deviceID}, nil
}

func claimUUID(claims jwt.MapClaims, key string) (uuid.UUID, error) {
	raw, ok := claims[key].(string)
	if !ok || raw == "" {
		return uuid.Nil, ErrInvalidToken
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}
