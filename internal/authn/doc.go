// Package authn implements passkey (WebAuthn) and password authentication
// for paceline users.
//
// # Ceremonies
//
// Registration and login are both two-step ceremonies. The begin step
// produces browser-facing options carrying a random challenge; the finish
// step verifies the authenticator's signed response against that challenge.
// The server-side state between the two steps is parked on the caller's
// session, so each session holds at most one pending ceremony: beginning a
// new ceremony replaces whatever was pending before.
//
// # Challenge lifecycle
//
// A pending challenge is consumed atomically on the finish step: it is
// fetched and cleared in a single store transaction before any verification
// runs. A response can therefore only be evaluated once, no matter how the
// verification turns out, and concurrent finish calls race for the single
// challenge with exactly one winner. Expiry is checked at consume time, not
// by a background sweeper.
//
// # Clone detection
//
// Single-device credentials carry a signature counter that must strictly
// increase. A finish response whose counter has not advanced past the stored
// value is treated as evidence of a cloned authenticator: the login is
// rejected, the credential is flagged for operator review, and the stored
// counter is left untouched so the flag survives later legitimate logins.
// Multi-device (synced) passkeys legitimately share counters across
// hardware, so the check is skipped when the credential is backup-eligible.
//
// All verification failures surface to HTTP callers as the same opaque 401
// response. The reasons are logged server-side.
package authn
