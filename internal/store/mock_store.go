// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite

package store

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu          sync.RWMutex
	tenants     map[string]*Tenant     // keyed by tenant ID
	users       map[string]*User       // keyed by user ID
	usersByName map[string]string      // username -> user ID
	sessions    map[string]*Session    // keyed by session ID
	credentials map[string]*Credential // keyed by hex-free string(credentialID)
	activities  []*Activity

	// LookupErr, when set, is returned by LookupSchemasBySlug to simulate a
	// storage fault.
	LookupErr error

	// LookupCalls counts LookupSchemasBySlug invocations.
	LookupCalls int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		tenants:     make(map[string]*Tenant),
		users:       make(map[string]*User),
		usersByName: make(map[string]string),
		sessions:    make(map[string]*Session),
		credentials: make(map[string]*Credential),
	}
}

// Ensure MockStore implements Store.
var _ Store = (*MockStore)(nil)

// CreateTenant stores a new tenant. Duplicate slugs are allowed, matching the
// real table, so tests can exercise the ambiguous-mapping path.
func (m *MockStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := *tenant
	m.tenants[t.ID] = &t
	return nil
}

// GetTenant retrieves a tenant by ID.
func (m *MockStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenant, ok := m.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	t := *tenant
	return &t, nil
}

// LookupSchemasBySlug returns all schema names mapped to the slug.
func (m *MockStore) LookupSchemasBySlug(ctx context.Context, slug string) ([]string, error) {
	m.mu.Lock()
	m.LookupCalls++
	err := m.LookupErr
	m.mu.Unlock()

	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var schemas []string
	for _, t := range m.tenants {
		if t.Slug == slug {
			schemas = append(schemas, t.SchemaName)
		}
	}
	sort.Strings(schemas)
	return schemas, nil
}

// ListTenants returns all tenants.
func (m *MockStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tenants := make([]*Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		tc := *t
		tenants = append(tenants, &tc)
	}
	sort.Slice(tenants, func(i, j int) bool { return tenants[i].CreatedAt.Before(tenants[j].CreatedAt) })
	return tenants, nil
}

// CreateUser stores a new user.
func (m *MockStore) CreateUser(ctx context.Context, user *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.usersByName[user.Username]; exists {
		return ErrUsernameExists
	}
	u := *user
	m.users[u.ID] = &u
	m.usersByName[u.Username] = u.ID
	return nil
}

// GetUser retrieves a user by ID.
func (m *MockStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

// GetUserByUsername retrieves a user by username.
func (m *MockStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByName[username]
	if !ok {
		return nil, ErrNotFound
	}
	u := *m.users[id]
	return &u, nil
}

// CountUsers returns the number of users.
func (m *MockStore) CountUsers(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

// CreateCredential stores a new credential, enforcing global ID uniqueness.
func (m *MockStore) CreateCredential(ctx context.Context, cred *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := string(cred.CredentialID)
	if _, exists := m.credentials[key]; exists {
		return ErrCredentialExists
	}
	c := *cred
	m.credentials[key] = &c
	return nil
}

// GetCredentialByCredentialID retrieves a credential by its authenticator ID.
func (m *MockStore) GetCredentialByCredentialID(ctx context.Context, credentialID []byte) (*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cred, ok := m.credentials[string(credentialID)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *cred
	return &c, nil
}

// GetCredentialsByUser retrieves all credentials for a user.
func (m *MockStore) GetCredentialsByUser(ctx context.Context, userID string) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var creds []*Credential
	for _, cred := range m.credentials {
		if cred.UserID == userID {
			c := *cred
			creds = append(creds, &c)
		}
	}
	sort.Slice(creds, func(i, j int) bool { return bytes.Compare(creds[i].CredentialID, creds[j].CredentialID) < 0 })
	return creds, nil
}

// UpdateCredentialSignCount updates the sign counter for a credential.
func (m *MockStore) UpdateCredentialSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[string(credentialID)]
	if !ok {
		return ErrNotFound
	}
	cred.SignCount = signCount
	return nil
}

// FlagCredentialClone marks a credential as a suspected clone.
func (m *MockStore) FlagCredentialClone(ctx context.Context, credentialID []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cred, ok := m.credentials[string(credentialID)]
	if !ok {
		return ErrNotFound
	}
	if cred.CloneFlaggedAt == nil {
		now := time.Now().UTC()
		cred.CloneFlaggedAt = &now
	}
	return nil
}

// CreateSession stores a new session.
func (m *MockStore) CreateSession(ctx context.Context, session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := *session
	m.sessions[s.ID] = &s
	return nil
}

// GetSession retrieves a non-expired session.
func (m *MockStore) GetSession(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, ok := m.sessions[id]
	if !ok || time.Now().After(session.ExpiresAt) {
		return nil, ErrNotFound
	}
	s := *session
	if session.Challenge != nil {
		ch := *session.Challenge
		s.Challenge = &ch
	}
	return &s, nil
}

// SetChallenge stores a pending challenge, replacing any previous one.
func (m *MockStore) SetChallenge(ctx context.Context, sessionID string, ch *Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || time.Now().After(session.ExpiresAt) {
		return ErrNotFound
	}
	c := *ch
	session.Challenge = &c
	return nil
}

// ConsumeChallenge atomically reads and clears the pending challenge.
func (m *MockStore) ConsumeChallenge(ctx context.Context, sessionID string) (*Challenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	if session.Challenge == nil {
		return nil, ErrNoChallenge
	}
	ch := *session.Challenge
	session.Challenge = nil
	return &ch, nil
}

// AuthenticateSession marks the session as belonging to the user.
func (m *MockStore) AuthenticateSession(ctx context.Context, sessionID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[sessionID]
	if !ok || time.Now().After(session.ExpiresAt) {
		return ErrNotFound
	}
	session.UserID = userID
	session.Challenge = nil
	return nil
}

// DeleteSession deletes a session.
func (m *MockStore) DeleteSession(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

// DeleteExpiredSessions removes all expired sessions.
func (m *MockStore) DeleteExpiredSessions(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for id, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, id)
		}
	}
	return nil
}

// CreateActivity stores a new activity.
func (m *MockStore) CreateActivity(ctx context.Context, activity *Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	a := *activity
	m.activities = append(m.activities, &a)
	return nil
}

// ListActivities returns a user's activities within one namespace.
func (m *MockStore) ListActivities(ctx context.Context, schemaName, userID string, limit int) ([]*Activity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var activities []*Activity
	for _, activity := range m.activities {
		if activity.SchemaName == schemaName && activity.UserID == userID {
			a := *activity
			activities = append(activities, &a)
		}
	}
	sort.Slice(activities, func(i, j int) bool { return activities[i].StartedAt.After(activities[j].StartedAt) })
	if len(activities) > limit {
		activities = activities[:limit]
	}
	return activities, nil
}

// Close is a no-op for the mock store.
func (m *MockStore) Close() error {
	return nil
}
