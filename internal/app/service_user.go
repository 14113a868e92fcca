package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"planhub/api/internal/otp"
	"planhub/api/internal/store"
)

const maxDevices = 5

// Register creates an anonymous user bound to the calling device and returns
// a token for the pair. A prior device row with the same fingerprint is
// replaced in the same transaction.
func (s *Service) Register(ctx context.Context, input DeviceInput) (*CreatedUser, error) {
	if !input.IsPhysicalDevice {
		return nil, inputError("device should be real, not a simulator")
	}
	if strings.TrimSpace(input.Fingerprint) == "" || strings.TrimSpace(input.Platform) == "" {
		return nil, inputError("platform and deviceFingerprint are required")
	}

	var userID, deviceID uuid.UUID
	err := s.store.InTx(ctx, func(tx store.Store) error {
		var err error
		if userID, err = tx.CreateUser(ctx); err != nil {
			return err
		}
		if err = tx.DeleteDeviceByFingerprint(ctx, input.Fingerprint); err != nil {
			return err
		}
		deviceID, err = tx.CreateDevice(ctx, store.Device{
			UserID:      userID,
			Platform:    input.Platform,
			Fingerprint: input.Fingerprint,
			Info:        input.Info,
		})
		return err
	})
	if err != nil {
		return nil, err
	}

	jwt, err := s.tokens.Issue(userID, deviceID)
	if err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("userId", userID.String()), zap.String("deviceId", deviceID.String()))
	return &CreatedUser{ID: userID, DeviceID: deviceID, JWT: jwt}, nil
}

// SendOTP issues a verification challenge for the email. Allow-listed test
// emails get the fixed sid without touching the provider.
func (s *Service) SendOTP(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", inputError("email is required")
	}
	if s.cfg.IsTestEmail(email) {
		return s.cfg.TestSID, nil
	}
	sid, err := s.otp.SendChallenge(ctx, email)
	if err != nil {
		return "", fmt.Errorf("send otp challenge: %w", err)
	}
	return sid, nil
}

// VerifyOTP checks the challenge and reconciles the caller's account with the
// email. If no user owns the email, it is attached to the caller. Otherwise
// the caller's plans and device move to the email's owner, the caller's row
// is deleted, and the fresh token is bound to the owner. Everything between
// lookup and token issue runs in one transaction; a replay after the source
// user is gone fails with not found.
func (s *Service) VerifyOTP(ctx context.Context, meta Meta, email, sid, code string) (*VerifiedUser, error) {
	email = strings.TrimSpace(email)
	if email == "" || sid == "" || code == "" {
		return nil, inputError("email, sid and otp are required")
	}

	status, err := s.checkOTP(ctx, email, sid, code)
	if err != nil {
		return nil, err
	}
	if status != otp.StatusApproved {
		return nil, unauthorizedError("otp not approved, status: " + status)
	}

	source, err := s.store.GetUser(ctx, meta.UserID)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, notFoundError("user not found")
	}

	var (
		newUserID uuid.UUID
		name      *string
	)
	err = s.store.InTx(ctx, func(tx store.Store) error {
		target, err := tx.GetUserByEmail(ctx, email)
		if err != nil {
			return err
		}
		if target == nil {
			if err := tx.UpdateUserEmail(ctx, meta.UserID, email); err != nil {
				return err
			}
			newUserID = meta.UserID
			name = source.Name
			return nil
		}

		if err := tx.ReassignPlans(ctx, meta.UserID, target.ID); err != nil {
			return err
		}
		devices, err := tx.ListDevices(ctx, target.ID)
		if err != nil {
			return err
		}
		if len(devices) >= maxDevices {
			// Newest first, so the eviction candidate is the last row.
			if _, err := tx.DeleteDevice(ctx, devices[len(devices)-1].ID); err != nil {
				return err
			}
		}
		if err := tx.ReassignDevice(ctx, meta.DeviceID, target.ID); err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, meta.UserID); err != nil {
			return err
		}
		newUserID = target.ID
		name = target.Name
		s.log.Info("merged user",
			zap.String("from", meta.UserID.String()),
			zap.String("into", target.ID.String()))
		return nil
	})
	if err != nil {
		return nil, err
	}

	jwt, err := s.tokens.Issue(newUserID, meta.DeviceID)
	if err != nil {
		return nil, err
	}
	return &VerifiedUser{
		UserID:   newUserID,
		DeviceID: meta.DeviceID,
		JWT:      jwt,
		Name:     name,
		Email:    &email,
	}, nil
}

func (s *Service) checkOTP(ctx context.Context, email, sid, code string) (string, error) {
	if s.cfg.IsTestEmail(email) && sid == s.cfg.TestSID && code == s.cfg.TestOTP {
		return otp.StatusApproved, nil
	}
	status, err := s.otp.VerifyChallenge(ctx, sid, code, email)
	if err != nil {
		return "", fmt.Errorf("verify otp challenge: %w", err)
	}
	return status, nil
}

func (s *Service) RefreshToken(ctx context.Context, meta Meta) (*VerifiedUser, error) {
	user, err := s.store.GetUser(ctx, meta.UserID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, unauthorizedError("unknown user")
	}
	jwt, err := s.tokens.Issue(meta.UserID, meta.DeviceID)
	if err != nil {
		return nil, err
	}
	return &VerifiedUser{
		UserID:   meta.UserID,
		DeviceID: meta.DeviceID,
		JWT:      jwt,
		Name:     user.Name,
		Email:    user.Email,
	}, nil
}

func (s *Service) UpdateName(ctx context.Context, meta Meta, name string) error {
	if strings.TrimSpace(name) == "" {
		return inputError("name is required")
	}
	return s.store.UpdateUserName(ctx, meta.UserID, name)
}

// Logout removes the given device row. The row must still belong to the
// caller; after a merge the client should log out with its fresh token.
func (s *Service) Logout(ctx context.Context, meta Meta, deviceID uuid.UUID) error {
	device, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return err
	}
	if device == nil || device.UserID != meta.UserID {
		return forbiddenError("device does not belong to user")
	}
	_, err = s.store.DeleteDevice(ctx, deviceID)
	return err
}

// DeleteAccount verifies a fresh OTP against the account's email, then
// removes the user. Suggestion rows pointing at the email go first so other
// users stop seeing it.
func (s *Service) DeleteAccount(ctx context.Context, meta Meta, sid, code string) error {
	if sid == "" || code == "" {
		return inputError("sid and otp are required")
	}
	user, err := s.store.GetUser(ctx, meta.UserID)
	if err != nil {
		return err
	}
	if user == nil {
		return notFoundError("user not found")
	}
	if user.Email == nil {
		return logicError("login required to delete account", "login_required")
	}

	status, err := s.checkOTP(ctx, *user.Email, sid, code)
	if err != nil {
		return err
	}
	if status != otp.StatusApproved {
		return unauthorizedError("otp not approved, status: " + status)
	}

	return s.store.InTx(ctx, func(tx store.Store) error {
		if err := tx.DeleteSuggestedEmailsByEmail(ctx, *user.Email); err != nil {
			return err
		}
		return tx.DeleteUser(ctx, meta.UserID)
	})
}

func (s *Service) Devices(ctx context.Context, meta Meta) ([]store.Device, error) {
	return s.store.ListDevices(ctx, meta.UserID)
}

func (s *Service) SuggestedEmails(ctx context.Context, meta Meta) ([]store.SuggestedEmail, error) {
	return s.store.ListSuggestedEmails(ctx, meta.UserID)
}

func (s *Service) DeleteSuggestedEmail(ctx context.Context, meta Meta, id uuid.UUID) error {
	suggestion, err := s.store.GetSuggestedEmail(ctx, id)
	if err != nil {
		return err
	}
	if suggestion == nil {
		return notFoundError("suggested email not found")
	}
	if suggestion.UserID != meta.UserID {
		return forbiddenError("suggested email does not belong to user")
	}
	return s.store.DeleteSuggestedEmail(ctx, id)
}
