// Package store provides persistent storage for paceline using SQLite.
//
// # Architecture
//
// The store package uses an interface-driven architecture with multiple
// specialized interfaces:
//
//   - TenantStore: Slug-to-schema mapping for tenant resolution
//   - UserStore: User accounts
//   - CredentialStore: WebAuthn credentials with sign counters
//   - SessionStore: Browser sessions and pending ceremony challenges
//   - ActivityStore: Tenant-scoped training activities
//
// SQLiteStore implements all interfaces in a single struct, allowing easy
// composition while maintaining clear interface boundaries. MockStore is an
// in-memory implementation for tests.
//
// # Tenant namespaces
//
// A tenant's "schema" is a namespace key. SQLite has no server-side schemas,
// so tenant-owned tables carry a schema_name column and every tenant-scoped
// query filters on it with a bound parameter. The schema value only ever
// comes from the tenants table, never from request input.
//
// # Challenge atomicity
//
// WebAuthn ceremonies park their challenge on the session row.
// SetChallenge overwrites any pending challenge (at most one in flight);
// ConsumeChallenge clears it in the same transaction that reads it, so a
// challenge can be verified at most once even under concurrent requests.
//
// # Error Handling
//
// Storage errors are mapped to sentinel errors where callers need to branch:
//
//   - ErrNotFound: entity does not exist
//   - ErrUsernameExists: unique username violation
//   - ErrCredentialExists: credential ID already registered (any user)
//   - ErrNoChallenge: session has no pending challenge
package store
