// ABOUTME: Sentinel errors for the authentication ceremonies
// ABOUTME: Internal distinctions only; the HTTP surface collapses them to one opaque failure

package authn

import (
	"errors"

	"github.com/paceline/paceline/internal/store"
)

var (
	// ErrNoPendingChallenge means the session had no challenge to verify
	// against. Also returned when a challenge was issued for the other
	// ceremony kind; a consumed challenge is gone either way.
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// ErrChallengeExpired means the pending challenge outlived its deadline.
	// The challenge is discarded; a new ceremony must be started.
	ErrChallengeExpired = errors.New("challenge expired")

	// ErrInvalidResponse means the ceremony payload could not be parsed.
	ErrInvalidResponse = errors.New("invalid ceremony response")

	// ErrAttestationInvalid means registration verification failed
	// (challenge mismatch, origin mismatch, or bad attestation).
	ErrAttestationInvalid = errors.New("attestation invalid")

	// ErrSignatureInvalid means assertion verification failed.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrUnknownCredential means no stored credential matches the asserted
	// credential ID.
	ErrUnknownCredential = errors.New("unknown credential")

	// ErrCredentialExists re-exports the store sentinel for callers that
	// only import authn. Credential IDs are globally unique.
	ErrCredentialExists = store.ErrCredentialExists

	// ErrCloneDetected means a single-device credential reported a sign
	// counter at or below the stored value. The credential is flagged for
	// operator review, not revoked.
	ErrCloneDetected = errors.New("possible cloned authenticator")

	// ErrUnknownUser means the referenced user does not exist.
	ErrUnknownUser = errors.New("unknown user")

	// ErrInvalidCredentials means a password login failed. Deliberately
	// does not say whether the user exists.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
