// ABOUTME: Tests for tenant slug resolution
// ABOUTME: Covers validation, lookup classification, and storage faults

package tenant

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paceline/paceline/internal/store"
)

func newTestResolver(t *testing.T) (*Resolver, *store.MockStore) {
	t.Helper()
	mock := store.NewMockStore()
	return NewResolver(mock), mock
}

func addTenant(t *testing.T, mock *store.MockStore, id, slug, schema string) {
	t.Helper()
	require.NoError(t, mock.CreateTenant(context.Background(), &store.Tenant{
		ID:         id,
		Slug:       slug,
		SchemaName: schema,
		CreatedAt:  time.Now().UTC(),
	}))
}

func TestResolve_KnownSlug(t *testing.T) {
	resolver, mock := newTestResolver(t)
	addTenant(t, mock, "tenant-1", "velo", "tenant_velo")

	schema, err := resolver.Resolve(context.Background(), "velo")
	require.NoError(t, err)
	assert.Equal(t, "tenant_velo", schema)
}

func TestResolve_UnknownSlug(t *testing.T) {
	resolver, mock := newTestResolver(t)
	addTenant(t, mock, "tenant-1", "velo", "tenant_velo")

	_, err := resolver.Resolve(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestResolve_InvalidSlugSkipsLookup(t *testing.T) {
	resolver, mock := newTestResolver(t)

	cases := []struct {
		name string
		slug string
	}{
		{"empty", ""},
		{"hyphen", "my-tenant"},
		{"underscore", "my_tenant"},
		{"space", "my tenant"},
		{"sql_injection", "x'; DROP TABLE tenants--"},
		{"path_traversal", "../etc"},
		{"percent", "ten%ant"},
		{"unicode", "vélo"},
		{"too_long", strings.Repeat("a", 65)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := resolver.Resolve(context.Background(), tc.slug)
			assert.ErrorIs(t, err, ErrInvalidSlug)
		})
	}

	// None of the malformed slugs may reach storage.
	assert.Equal(t, 0, mock.LookupCalls)
}

func TestResolve_MaxLengthSlug(t *testing.T) {
	resolver, mock := newTestResolver(t)

	slug := strings.Repeat("a", 64)
	addTenant(t, mock, "tenant-1", slug, "tenant_long")

	schema, err := resolver.Resolve(context.Background(), slug)
	require.NoError(t, err)
	assert.Equal(t, "tenant_long", schema)
}

func TestResolve_AmbiguousMapping(t *testing.T) {
	resolver, mock := newTestResolver(t)
	addTenant(t, mock, "tenant-1", "velo", "tenant_velo")
	addTenant(t, mock, "tenant-2", "velo", "tenant_velo2")

	_, err := resolver.Resolve(context.Background(), "velo")
	assert.ErrorIs(t, err, ErrAmbiguousTenant)
}

func TestResolve_StorageFault(t *testing.T) {
	resolver, mock := newTestResolver(t)
	mock.LookupErr = errors.New("connection refused")

	_, err := resolver.Resolve(context.Background(), "velo")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestResolve_CaseSensitive(t *testing.T) {
	resolver, mock := newTestResolver(t)
	addTenant(t, mock, "tenant-1", "velo", "tenant_velo")

	_, err := resolver.Resolve(context.Background(), "Velo")
	assert.ErrorIs(t, err, ErrUnknownTenant)
}

func TestValidateSlug(t *testing.T) {
	assert.NoError(t, ValidateSlug("velo2024"))
	assert.NoError(t, ValidateSlug("A"))
	assert.ErrorIs(t, ValidateSlug(""), ErrInvalidSlug)
	assert.ErrorIs(t, ValidateSlug("no-dash"), ErrInvalidSlug)
	assert.ErrorIs(t, ValidateSlug(strings.Repeat("x", 65)), ErrInvalidSlug)
}
