// ABOUTME: WebAuthn registration and authentication ceremonies for paceline
// ABOUTME: Owns challenge issuance, verification, clone detection, and session authentication

package authn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/paceline/paceline/internal/store"
)

// Config holds the ceremony configuration.
type Config struct {
	// BaseURL is the external URL of the application; the relying party ID
	// and allowed origins are derived from it.
	BaseURL string

	// RPDisplayName is shown by browsers during passkey prompts.
	RPDisplayName string

	// ChallengeTTL bounds how long an issued challenge stays verifiable.
	ChallengeTTL time.Duration
}

// Service runs WebAuthn ceremonies against the credential and session stores.
type Service struct {
	webauthn     *webauthn.WebAuthn
	users        store.UserStore
	creds        store.CredentialStore
	sessions     store.SessionStore
	logger       *slog.Logger
	challengeTTL time.Duration
}

// New creates an authentication service.
func New(cfg Config, users store.UserStore, creds store.CredentialStore, sessions store.SessionStore) (*Service, error) {
	rpID, rpOrigins := deriveRelyingParty(cfg.BaseURL)

	displayName := cfg.RPDisplayName
	if displayName == "" {
		displayName = "paceline"
	}

	w, err := webauthn.New(&webauthn.Config{
		RPDisplayName: displayName,
		RPID:          rpID,
		RPOrigins:     rpOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring webauthn: %w", err)
	}

	ttl := cfg.ChallengeTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Service{
		webauthn:     w,
		users:        users,
		creds:        creds,
		sessions:     sessions,
		logger:       slog.Default().With("component", "authn"),
		challengeTTL: ttl,
	}, nil
}

// deriveRelyingParty extracts the relying party ID and allowed origins from a
// base URL. Returns localhost defaults if the URL is empty or invalid.
func deriveRelyingParty(baseURL string) (rpID string, rpOrigins []string) {
	rpID = "localhost"
	rpOrigins = []string{"http://localhost", "https://localhost"}

	if baseURL == "" {
		return rpID, rpOrigins
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return rpID, rpOrigins
	}

	host := parsed.Hostname()
	if host == "" {
		return rpID, rpOrigins
	}

	rpID = host
	rpOrigins = []string{baseURL}
	// Also allow both http and https variants
	if parsed.Scheme == "https" {
		rpOrigins = append(rpOrigins, "http://"+parsed.Host)
	} else {
		rpOrigins = append(rpOrigins, "https://"+parsed.Host)
	}
	return rpID, rpOrigins
}

// BeginRegistration starts a registration ceremony for the given user.
// The challenge is parked on the session, replacing any pending one.
func (s *Service) BeginRegistration(ctx context.Context, sessionID, userID string) (*protocol.CredentialCreation, error) {
	user, err := s.users.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	// Existing credentials go on the exclude list
	existingCreds, err := s.creds.GetCredentialsByUser(ctx, userID)
	if err != nil {
		s.logger.Error("failed to load existing credentials", "user_id", userID, "error", err)
		existingCreds = nil
	}

	waUser := &ceremonyUser{user: user, creds: existingCreds}

	options, sessionData, err := s.webauthn.BeginRegistration(waUser, webauthn.WithExclusions(waUser.exclusions()))
	if err != nil {
		return nil, fmt.Errorf("beginning registration: %w", err)
	}

	if err := s.parkChallenge(ctx, sessionID, store.ChallengePurposeRegistration, userID, sessionData); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishRegistration verifies an attestation response and persists the new
// credential. The pending challenge is consumed before verification, so a
// failed attempt cannot be retried with the same challenge.
func (s *Service) FinishRegistration(ctx context.Context, sessionID string, response io.Reader) (*store.Credential, error) {
	sessionData, boundUser, err := s.consumeChallenge(ctx, sessionID, store.ChallengePurposeRegistration)
	if err != nil {
		return nil, err
	}

	parsedResponse, err := protocol.ParseCredentialCreationResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	user, err := s.users.GetUser(ctx, boundUser)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownUser
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}

	existingCreds, _ := s.creds.GetCredentialsByUser(ctx, user.ID)
	waUser := &ceremonyUser{user: user, creds: existingCreds}

	credential, err := s.webauthn.CreateCredential(waUser, *sessionData, parsedResponse)
	if err != nil {
		s.logger.Warn("registration verification failed", "user_id", user.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrAttestationInvalid, err)
	}

	// Credential IDs are globally unique; check before inserting so the
	// pre-existing credential is provably untouched. The unique constraint
	// on insert closes the race.
	if _, err := s.creds.GetCredentialByCredentialID(ctx, credential.ID); err == nil {
		s.logger.Error("registration attempted with existing credential id", "user_id", user.ID)
		return nil, ErrCredentialExists
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("checking credential uniqueness: %w", err)
	}

	transportsJSON, err := json.Marshal(credential.Transport)
	if err != nil {
		return nil, fmt.Errorf("encoding transports: %w", err)
	}

	cred := &store.Credential{
		ID:              uuid.New().String(),
		UserID:          user.ID,
		CredentialID:    credential.ID,
		PublicKey:       credential.PublicKey,
		AttestationType: credential.AttestationType,
		Transports:      string(transportsJSON),
		SignCount:       credential.Authenticator.SignCount,
		BackupEligible:  credential.Flags.BackupEligible,
		BackupState:     credential.Flags.BackupState,
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.creds.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, store.ErrCredentialExists) {
			s.logger.Error("registration lost uniqueness race", "user_id", user.ID)
			return nil, ErrCredentialExists
		}
		return nil, fmt.Errorf("storing credential: %w", err)
	}

	s.logger.Info("passkey registered", "user_id", user.ID, "credential_id", cred.ID)
	return cred, nil
}

// BeginLogin starts an authentication ceremony. With a username the ceremony
// is scoped to that user's registered credentials; without one it uses the
// discoverable credential flow.
func (s *Service) BeginLogin(ctx context.Context, sessionID, username string) (*protocol.CredentialAssertion, error) {
	var options *protocol.CredentialAssertion
	var sessionData *webauthn.SessionData
	var boundUser string

	if username == "" {
		var err error
		options, sessionData, err = s.webauthn.BeginDiscoverableLogin()
		if err != nil {
			return nil, fmt.Errorf("beginning discoverable login: %w", err)
		}
	} else {
		user, err := s.users.GetUserByUsername(ctx, username)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		if err != nil {
			return nil, fmt.Errorf("loading user: %w", err)
		}

		creds, err := s.creds.GetCredentialsByUser(ctx, user.ID)
		if err != nil {
			return nil, fmt.Errorf("loading credentials: %w", err)
		}
		if len(creds) == 0 {
			// Same failure as an unknown username, so probing /login/begin
			// cannot distinguish the two.
			return nil, ErrUnknownUser
		}

		waUser := &ceremonyUser{user: user, creds: creds}
		options, sessionData, err = s.webauthn.BeginLogin(waUser)
		if err != nil {
			return nil, fmt.Errorf("beginning login: %w", err)
		}
		boundUser = user.ID
	}

	if err := s.parkChallenge(ctx, sessionID, store.ChallengePurposeAuthentication, boundUser, sessionData); err != nil {
		return nil, err
	}

	return options, nil
}

// FinishLogin verifies an assertion response, applies clone detection, and
// authenticates the session on success. The credential lookup is always by
// credential ID; the user hint from the begin step never bypasses the
// signature check.
func (s *Service) FinishLogin(ctx context.Context, sessionID string, response io.Reader) (*store.User, error) {
	sessionData, _, err := s.consumeChallenge(ctx, sessionID, store.ChallengePurposeAuthentication)
	if err != nil {
		return nil, err
	}

	parsedResponse, err := protocol.ParseCredentialRequestResponseBody(response)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	storedCred, err := s.creds.GetCredentialByCredentialID(ctx, parsedResponse.RawID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUnknownCredential
	}
	if err != nil {
		return nil, fmt.Errorf("loading credential: %w", err)
	}

	owner, err := s.users.GetUser(ctx, storedCred.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading credential owner: %w", err)
	}

	allCreds, err := s.creds.GetCredentialsByUser(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	waUser := &ceremonyUser{user: owner, creds: allCreds}

	if len(sessionData.UserID) > 0 {
		_, err = s.webauthn.ValidateLogin(waUser, *sessionData, parsedResponse)
	} else {
		_, err = s.webauthn.ValidateDiscoverableLogin(credentialFinder(waUser, owner.ID), *sessionData, parsedResponse)
	}
	if err != nil {
		s.logger.Warn("login verification failed", "user_id", owner.ID, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrSignatureInvalid, err)
	}

	reportedCount := parsedResponse.Response.AuthenticatorData.Counter
	if err := s.checkSignCount(ctx, storedCred, reportedCount); err != nil {
		return nil, err
	}

	if err := s.creds.UpdateCredentialSignCount(ctx, storedCred.CredentialID, reportedCount); err != nil {
		return nil, fmt.Errorf("updating sign count: %w", err)
	}

	if err := s.sessions.AuthenticateSession(ctx, sessionID, owner.ID); err != nil {
		return nil, fmt.Errorf("authenticating session: %w", err)
	}

	s.logger.Info("passkey login successful", "user_id", owner.ID)
	return owner, nil
}

// checkSignCount applies the clone-detection rule. Single-device credentials
// must report a strictly increasing counter; multi-device (synced) passkeys
// legitimately regress and skip the check, as do authenticators that never
// implement a counter (both values zero).
func (s *Service) checkSignCount(ctx context.Context, cred *store.Credential, reported uint32) error {
	if cred.BackupEligible {
		return nil
	}
	if cred.SignCount == 0 && reported == 0 {
		return nil
	}
	if reported > cred.SignCount {
		return nil
	}

	s.logger.Error("possible cloned authenticator",
		"user_id", cred.UserID,
		"stored_count", cred.SignCount,
		"reported_count", reported,
	)
	if err := s.creds.FlagCredentialClone(ctx, cred.CredentialID); err != nil {
		s.logger.Error("failed to flag credential", "user_id", cred.UserID, "error", err)
	}
	return ErrCloneDetected
}

// Logout clears the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// credentialFinder builds the discoverable-login callback. The user handle,
// when present, must match the credential owner.
func credentialFinder(waUser *ceremonyUser, userID string) func(rawID, userHandle []byte) (webauthn.User, error) {
	return func(rawID, userHandle []byte) (webauthn.User, error) {
		if len(userHandle) > 0 && string(userHandle) != userID {
			return nil, errors.New("user handle mismatch")
		}
		return waUser, nil
	}
}

// parkChallenge serializes ceremony state onto the session, replacing any
// pending challenge so at most one is in flight.
func (s *Service) parkChallenge(ctx context.Context, sessionID, purpose, boundUser string, sessionData *webauthn.SessionData) error {
	data, err := json.Marshal(sessionData)
	if err != nil {
		return fmt.Errorf("encoding session data: %w", err)
	}

	ch := &store.Challenge{
		Purpose:   purpose,
		UserID:    boundUser,
		Data:      data,
		ExpiresAt: time.Now().Add(s.challengeTTL),
	}

	if err := s.sessions.SetChallenge(ctx, sessionID, ch); err != nil {
		return fmt.Errorf("storing challenge: %w", err)
	}
	return nil
}

// consumeChallenge atomically fetches and clears the session's pending
// challenge, then validates purpose and expiry. By the time it returns the
// challenge is gone, whatever the outcome.
func (s *Service) consumeChallenge(ctx context.Context, sessionID, purpose string) (*webauthn.SessionData, string, error) {
	ch, err := s.sessions.ConsumeChallenge(ctx, sessionID)
	if errors.Is(err, store.ErrNoChallenge) || errors.Is(err, store.ErrNotFound) {
		return nil, "", ErrNoPendingChallenge
	}
	if err != nil {
		return nil, "", fmt.Errorf("consuming challenge: %w", err)
	}

	if ch.Purpose != purpose {
		s.logger.Warn("challenge purpose mismatch", "want", purpose, "got", ch.Purpose)
		return nil, "", ErrNoPendingChallenge
	}

	if time.Now().After(ch.ExpiresAt) {
		return nil, "", ErrChallengeExpired
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(ch.Data, &sessionData); err != nil {
		return nil, "", fmt.Errorf("decoding session data: %w", err)
	}

	return &sessionData, ch.UserID, nil
}
