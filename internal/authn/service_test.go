// ABOUTME: Ceremony tests using a virtual WebAuthn authenticator
// ABOUTME: Covers registration, login, challenge lifecycle, and clone detection

package authn

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/descope/virtualwebauthn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline/paceline/internal/store"
)

const (
	testRPID   = "paceline.test"
	testOrigin = "https://paceline.test"
)

var testRP = virtualwebauthn.RelyingParty{
	Name:   "paceline",
	ID:     testRPID,
	Origin: testOrigin,
}

func newTestService(t *testing.T, ttl time.Duration) (*Service, *store.MockStore) {
	t.Helper()
	mock := store.NewMockStore()
	svc, err := New(Config{
		BaseURL:       testOrigin,
		RPDisplayName: "paceline",
		ChallengeTTL:  ttl,
	}, mock, mock, mock)
	require.NoError(t, err)
	return svc, mock
}

func addUser(t *testing.T, mock *store.MockStore, id, username string) {
	t.Helper()
	require.NoError(t, mock.CreateUser(context.Background(), &store.User{
		ID:        id,
		Username:  username,
		CreatedAt: time.Now().UTC(),
	}))
}

func addSession(t *testing.T, mock *store.MockStore, id string) {
	t.Helper()
	now := time.Now().UTC()
	require.NoError(t, mock.CreateSession(context.Background(), &store.Session{
		ID:        id,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Hour),
	}))
}

// attestFor drives the virtual authenticator through the attestation step.
func attestFor(t *testing.T, options interface{}, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) string {
	t.Helper()
	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	parsed, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	return virtualwebauthn.CreateAttestationResponse(testRP, auth, cred, *parsed)
}

// assertFor drives the virtual authenticator through the assertion step.
func assertFor(t *testing.T, options interface{}, auth virtualwebauthn.Authenticator, cred virtualwebauthn.Credential) string {
	t.Helper()
	optionsJSON, err := json.Marshal(options)
	require.NoError(t, err)

	parsed, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	return virtualwebauthn.CreateAssertionResponse(testRP, auth, cred, *parsed)
}

// registerPasskey runs a full registration ceremony for the user.
func registerPasskey(t *testing.T, svc *Service, sessionID, userID string) (virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()
	ctx := context.Background()

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, err := svc.BeginRegistration(ctx, sessionID, userID)
	require.NoError(t, err)

	response := attestFor(t, options.Response, auth, cred)
	_, err = svc.FinishRegistration(ctx, sessionID, strings.NewReader(response))
	require.NoError(t, err)

	auth.AddCredential(cred)
	return auth, cred
}

func TestRegistration_FullCeremony(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, err := svc.BeginRegistration(ctx, "session-1", "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, options.Response.Challenge)
	assert.Equal(t, testRPID, options.Response.RelyingParty.ID)

	response := attestFor(t, options.Response, auth, cred)
	stored, err := svc.FinishRegistration(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)
	assert.Equal(t, "user-1", stored.UserID)
	assert.Equal(t, uint32(0), stored.SignCount)
	assert.NotEmpty(t, stored.PublicKey)

	creds, err := mock.GetCredentialsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, creds, 1)

	// The challenge was consumed; the same response cannot be verified again.
	_, err = svc.FinishRegistration(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestRegistration_NoPendingChallenge(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	_, err := svc.FinishRegistration(context.Background(), "session-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestRegistration_UnknownUser(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	addSession(t, mock, "session-1")

	_, err := svc.BeginRegistration(context.Background(), "session-1", "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestRegistration_ReplacedChallengeInvalidatesOld(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	firstOptions, err := svc.BeginRegistration(ctx, "session-1", "user-1")
	require.NoError(t, err)

	// A second begin replaces the pending challenge.
	_, err = svc.BeginRegistration(ctx, "session-1", "user-1")
	require.NoError(t, err)

	// Answering the first challenge must fail verification.
	response := attestFor(t, firstOptions.Response, auth, cred)
	_, err = svc.FinishRegistration(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrAttestationInvalid)

	// No credential was persisted by the failed attempt.
	creds, err := mock.GetCredentialsByUser(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, creds)
}

func TestRegistration_DuplicateCredentialID(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addUser(t, mock, "user-2", "bob")
	addSession(t, mock, "session-1")
	addSession(t, mock, "session-2")

	auth := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, err := svc.BeginRegistration(ctx, "session-1", "user-1")
	require.NoError(t, err)
	response := attestFor(t, options.Response, auth, cred)
	first, err := svc.FinishRegistration(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)

	// A different user presenting the same authenticator credential must be
	// rejected, whatever their session.
	options2, err := svc.BeginRegistration(ctx, "session-2", "user-2")
	require.NoError(t, err)
	response2 := attestFor(t, options2.Response, auth, cred)
	_, err = svc.FinishRegistration(ctx, "session-2", strings.NewReader(response2))
	assert.ErrorIs(t, err, ErrCredentialExists)

	// The original mapping is untouched.
	got, err := mock.GetCredentialByCredentialID(ctx, first.CredentialID)
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.UserID)
	assert.Equal(t, first.PublicKey, got.PublicKey)
}

func TestLogin_FullCeremony(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth, cred := registerPasskey(t, svc, "session-1", "user-1")

	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)
	assert.NotEmpty(t, options.Response.Challenge)

	cred.Counter++
	response := assertFor(t, options.Response, auth, cred)

	user, err := svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)

	// Session is authenticated and the stored counter advanced.
	session, err := mock.GetSession(ctx, "session-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)

	stored, err := mock.GetCredentialByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), stored.SignCount)
	assert.Nil(t, stored.CloneFlaggedAt)
}

func TestLogin_ChallengeSingleUse(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth, cred := registerPasskey(t, svc, "session-1", "user-1")

	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)

	cred.Counter++
	response := assertFor(t, options.Response, auth, cred)

	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)

	// Replaying the identical response finds no pending challenge.
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestLogin_ExpiredChallenge(t *testing.T) {
	svc, mock := newTestService(t, time.Nanosecond)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	// Register with a generously-lived service, then log in with one whose
	// challenges expire immediately.
	regSvc, err := New(Config{BaseURL: testOrigin, ChallengeTTL: 5 * time.Minute}, mock, mock, mock)
	require.NoError(t, err)
	auth, cred := registerPasskey(t, regSvc, "session-1", "user-1")

	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	cred.Counter++
	response := assertFor(t, options.Response, auth, cred)
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrChallengeExpired)

	// Expiry still consumed the challenge.
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestLogin_PurposeMismatch(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	_, err := svc.BeginRegistration(ctx, "session-1", "user-1")
	require.NoError(t, err)

	// A registration challenge cannot finish a login ceremony.
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)

	// And the mismatch consumed it.
	_, err = svc.FinishRegistration(ctx, "session-1", strings.NewReader("{}"))
	assert.ErrorIs(t, err, ErrNoPendingChallenge)
}

func TestLogin_UnknownUser(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	addSession(t, mock, "session-1")

	_, err := svc.BeginLogin(context.Background(), "session-1", "ghost")
	assert.ErrorIs(t, err, ErrUnknownUser)
}

func TestLogin_UnknownCredential(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	registerPasskey(t, svc, "session-1", "user-1")

	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)

	// Respond with a credential the server has never seen.
	strangerAuth := virtualwebauthn.NewAuthenticator()
	strangerCred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)
	strangerAuth.AddCredential(strangerCred)

	response := assertFor(t, options.Response, strangerAuth, strangerCred)
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrUnknownCredential)
}

func TestLogin_CloneDetection(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth, cred := registerPasskey(t, svc, "session-1", "user-1")

	// Legitimate login advances the stored counter to 5.
	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)
	cred.Counter = 5
	response := assertFor(t, options.Response, auth, cred)
	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)

	stored, err := mock.GetCredentialByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	require.Equal(t, uint32(5), stored.SignCount)

	// A response reporting the same counter is evidence of a clone.
	addSession(t, mock, "session-2")
	options, err = svc.BeginLogin(ctx, "session-2", "alice")
	require.NoError(t, err)
	response = assertFor(t, options.Response, auth, cred) // counter still 5
	_, err = svc.FinishLogin(ctx, "session-2", strings.NewReader(response))
	assert.ErrorIs(t, err, ErrCloneDetected)

	// Flagged for review, counter untouched, session not authenticated.
	stored, err = mock.GetCredentialByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), stored.SignCount)
	assert.NotNil(t, stored.CloneFlaggedAt)

	session, err := mock.GetSession(ctx, "session-2")
	require.NoError(t, err)
	assert.Empty(t, session.UserID)

	// A later legitimate login with an advanced counter still succeeds; the
	// flag stays for the operator to act on.
	options, err = svc.BeginLogin(ctx, "session-2", "alice")
	require.NoError(t, err)
	cred.Counter = 6
	response = assertFor(t, options.Response, auth, cred)
	_, err = svc.FinishLogin(ctx, "session-2", strings.NewReader(response))
	require.NoError(t, err)

	stored, err = mock.GetCredentialByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), stored.SignCount)
	assert.NotNil(t, stored.CloneFlaggedAt)
}

func TestLogin_CounterlessAuthenticator(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	auth, cred := registerPasskey(t, svc, "session-1", "user-1")

	// Authenticator never implements a counter: both sides stay at zero.
	options, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)
	response := assertFor(t, options.Response, auth, cred)

	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)

	stored, err := mock.GetCredentialByCredentialID(ctx, cred.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.CloneFlaggedAt)
}

func TestLogin_DiscoverableFlow(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	_, cred := registerPasskey(t, svc, "session-1", "user-1")

	// No username: the ceremony relies on the authenticator's user handle.
	options, err := svc.BeginLogin(ctx, "session-1", "")
	require.NoError(t, err)
	assert.Empty(t, options.Response.AllowedCredentials)

	discoverableAuth := virtualwebauthn.NewAuthenticatorWithOptions(virtualwebauthn.AuthenticatorOptions{
		UserHandle: []byte("user-1"),
	})
	discoverableAuth.AddCredential(cred)

	cred.Counter++
	response := assertFor(t, options.Response, discoverableAuth, cred)

	user, err := svc.FinishLogin(ctx, "session-1", strings.NewReader(response))
	require.NoError(t, err)
	assert.Equal(t, "user-1", user.ID)
}

func TestLogin_MalformedResponse(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addUser(t, mock, "user-1", "alice")
	addSession(t, mock, "session-1")

	registerPasskey(t, svc, "session-1", "user-1")

	_, err := svc.BeginLogin(ctx, "session-1", "alice")
	require.NoError(t, err)

	_, err = svc.FinishLogin(ctx, "session-1", strings.NewReader("not json"))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestLogout(t *testing.T) {
	svc, mock := newTestService(t, 5*time.Minute)
	ctx := context.Background()
	addSession(t, mock, "session-1")

	require.NoError(t, svc.Logout(ctx, "session-1"))

	_, err := mock.GetSession(ctx, "session-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
