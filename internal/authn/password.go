// ABOUTME: Password fallback login with bcrypt
// ABOUTME: Timing-uniform failure path so usernames cannot be enumerated

package authn

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/paceline/paceline/internal/store"
)

// dummyHash keeps failed lookups doing a real bcrypt comparison so response
// timing does not reveal whether the username exists.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// PasswordLogin verifies the username/password pair and authenticates the
// session on success. Every failure is ErrInvalidCredentials.
func (s *Service) PasswordLogin(ctx context.Context, sessionID, username, password string) (*store.User, error) {
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Dummy comparison to maintain constant timing
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("loading user: %w", err)
	}

	if user.PasswordHash == "" {
		// Passkey-only account
		_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if err := s.sessions.AuthenticateSession(ctx, sessionID, user.ID); err != nil {
		return nil, fmt.Errorf("authenticating session: %w", err)
	}

	s.logger.Info("password login successful", "user_id", user.ID)
	return user, nil
}

// HashPassword produces a bcrypt hash for storage.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing password: %w", err)
	}
	return string(hash), nil
}
