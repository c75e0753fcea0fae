// ABOUTME: Tests for tenant mapping persistence
// ABOUTME: Covers slug lookup including the duplicate-mapping fault case

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTestTenant(t *testing.T, store *SQLiteStore, id, slug, schema string) *Tenant {
	t.Helper()
	tenant := &Tenant{
		ID:          id,
		Slug:        slug,
		SchemaName:  schema,
		DisplayName: slug,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.CreateTenant(context.Background(), tenant))
	return tenant
}

func TestTenants_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	created := createTestTenant(t, store, "tenant-1", "velo", "tenant_velo")

	got, err := store.GetTenant(ctx, "tenant-1")
	require.NoError(t, err)
	assert.Equal(t, created.Slug, got.Slug)
	assert.Equal(t, created.SchemaName, got.SchemaName)
}

func TestTenants_GetMissing(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetTenant(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTenants_LookupSchemasBySlug(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTenant(t, store, "tenant-1", "velo", "tenant_velo")
	createTestTenant(t, store, "tenant-2", "trail", "tenant_trail")

	schemas, err := store.LookupSchemasBySlug(ctx, "velo")
	require.NoError(t, err)
	assert.Equal(t, []string{"tenant_velo"}, schemas)

	schemas, err = store.LookupSchemasBySlug(ctx, "absent")
	require.NoError(t, err)
	assert.Empty(t, schemas)
}

func TestTenants_LookupDuplicateSlug(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	// A duplicate slug is a data fault the schema does not prevent; lookup
	// must report every row so resolution can refuse the slug.
	createTestTenant(t, store, "tenant-1", "velo", "tenant_velo")
	createTestTenant(t, store, "tenant-2", "velo", "tenant_velo2")

	schemas, err := store.LookupSchemasBySlug(ctx, "velo")
	require.NoError(t, err)
	assert.Len(t, schemas, 2)
}

func TestTenants_LookupIsExactMatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTenant(t, store, "tenant-1", "velo", "tenant_velo")

	for _, slug := range []string{"vel", "velox", "VELO%", "%", "_"} {
		schemas, err := store.LookupSchemasBySlug(ctx, slug)
		require.NoError(t, err)
		assert.Empty(t, schemas, "slug %q must not match", slug)
	}
}

func TestTenants_List(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	createTestTenant(t, store, "tenant-1", "velo", "tenant_velo")
	createTestTenant(t, store, "tenant-2", "trail", "tenant_trail")

	tenants, err := store.ListTenants(ctx)
	require.NoError(t, err)
	assert.Len(t, tenants, 2)
}
