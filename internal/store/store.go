// ABOUTME: Store interfaces and data types for paceline persistence
// ABOUTME: Defines tenant, user, session, credential, and activity records

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// ErrCredentialExists is returned when a credential ID is already registered,
// for any user. Credential IDs are globally unique.
var ErrCredentialExists = errors.New("credential already exists")

// ErrNoChallenge is returned when consuming a challenge from a session that
// has none pending.
var ErrNoChallenge = errors.New("no pending challenge")

// Tenant maps an opaque URL slug to a backing-store namespace.
type Tenant struct {
	ID          string
	Slug        string
	SchemaName  string
	DisplayName string
	CreatedAt   time.Time
}

// User represents an account that can sign in to a tenant.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt hash, empty if passkey-only
	DisplayName  string
	CreatedAt    time.Time
}

// Credential represents a registered WebAuthn authenticator.
type Credential struct {
	ID              string
	UserID          string
	CredentialID    []byte
	PublicKey       []byte
	AttestationType string
	Transports      string // JSON array of transport hints
	SignCount       uint32
	BackupEligible  bool
	BackupState     bool
	CloneFlaggedAt  *time.Time
	CreatedAt       time.Time
}

// Challenge purpose values.
const (
	ChallengePurposeRegistration   = "registration"
	ChallengePurposeAuthentication = "authentication"
)

// Challenge is the pending ceremony state bound to a session. At most one
// challenge is live per session; consuming it clears it regardless of the
// verification outcome.
type Challenge struct {
	Purpose   string
	UserID    string // bound user, empty for discoverable login
	Data      []byte // serialized ceremony session data
	ExpiresAt time.Time
}

// Session represents a browser session. UserID is empty until a ceremony
// verifies the user.
type Session struct {
	ID        string
	UserID    string
	Challenge *Challenge
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Activity is a tenant-scoped training log entry.
type Activity struct {
	ID         string
	SchemaName string
	UserID     string
	Sport      string
	Title      string
	DistanceM  float64
	Duration   time.Duration
	StartedAt  time.Time
	CreatedAt  time.Time
}

// TenantStore defines the tenant-mapping contract used by tenant resolution.
type TenantStore interface {
	CreateTenant(ctx context.Context, tenant *Tenant) error
	GetTenant(ctx context.Context, id string) (*Tenant, error)
	// LookupSchemasBySlug returns every schema name mapped to the slug.
	// Zero or multiple results are the caller's problem to classify.
	LookupSchemasBySlug(ctx context.Context, slug string) ([]string, error)
	ListTenants(ctx context.Context) ([]*Tenant, error)
}

// UserStore defines user persistence.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	CountUsers(ctx context.Context) (int, error)
}

// CredentialStore defines WebAuthn credential persistence.
type CredentialStore interface {
	CreateCredential(ctx context.Context, cred *Credential) error
	GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error)
	GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error)
	UpdateCredentialSignCount(ctx context.Context, credentialID []byte, signCount uint32) error
	FlagCredentialClone(ctx context.Context, credentialID []byte) error
}

// SessionStore defines session persistence. Challenge state transitions must
// be atomic per session: SetChallenge replaces any pending challenge, and
// ConsumeChallenge is a fetch-and-clear so concurrent ceremonies cannot both
// observe the same challenge.
type SessionStore interface {
	CreateSession(ctx context.Context, session *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	SetChallenge(ctx context.Context, sessionID string, ch *Challenge) error
	ConsumeChallenge(ctx context.Context, sessionID string) (*Challenge, error)
	AuthenticateSession(ctx context.Context, sessionID, userID string) error
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context) error
}

// ActivityStore defines tenant-scoped activity persistence. Every query takes
// the resolved schema name; rows from other namespaces are never visible.
type ActivityStore interface {
	CreateActivity(ctx context.Context, activity *Activity) error
	ListActivities(ctx context.Context, schemaName, userID string, limit int) ([]*Activity, error)
}

// Store aggregates all persistence contracts behind the SQLite implementation.
type Store interface {
	TenantStore
	UserStore
	CredentialStore
	SessionStore
	ActivityStore

	// Close releases any resources held by the store
	Close() error
}
