// ABOUTME: Adapter exposing store users and credentials to the go-webauthn library
// ABOUTME: Implements the webauthn.User interface

package authn

import (
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"

	"github.com/paceline/paceline/internal/store"
)

// ceremonyUser wraps a store.User to implement webauthn.User.
type ceremonyUser struct {
	user  *store.User
	creds []*store.Credential
}

func (u *ceremonyUser) WebAuthnID() []byte {
	return []byte(u.user.ID)
}

func (u *ceremonyUser) WebAuthnName() string {
	return u.user.Username
}

func (u *ceremonyUser) WebAuthnDisplayName() string {
	if u.user.DisplayName != "" {
		return u.user.DisplayName
	}
	return u.user.Username
}

func (u *ceremonyUser) WebAuthnCredentials() []webauthn.Credential {
	creds := make([]webauthn.Credential, len(u.creds))
	for i, c := range u.creds {
		creds[i] = webauthn.Credential{
			ID:              c.CredentialID,
			PublicKey:       c.PublicKey,
			AttestationType: c.AttestationType,
			Flags: webauthn.CredentialFlags{
				BackupEligible: c.BackupEligible,
				BackupState:    c.BackupState,
			},
			Authenticator: webauthn.Authenticator{
				SignCount: c.SignCount,
			},
		}
		// Parse transports if available
		if c.Transports != "" {
			var transports []protocol.AuthenticatorTransport
			_ = json.Unmarshal([]byte(c.Transports), &transports)
			creds[i].Transport = transports
		}
	}
	return creds
}

// exclusions returns credential descriptors for registration exclude lists so
// an authenticator is not registered twice for the same user.
func (u *ceremonyUser) exclusions() []protocol.CredentialDescriptor {
	descriptors := make([]protocol.CredentialDescriptor, len(u.creds))
	for i, c := range u.creds {
		descriptors[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: c.CredentialID,
		}
	}
	return descriptors
}
