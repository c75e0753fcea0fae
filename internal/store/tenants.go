// ABOUTME: Tenant mapping persistence for slug-to-schema resolution
// ABOUTME: Implements TenantStore over SQLite with parameterized lookups

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateTenant creates a new tenant mapping.
func (s *SQLiteStore) CreateTenant(ctx context.Context, tenant *Tenant) error {
	query := `
		INSERT INTO tenants (id, slug, schema_name, display_name, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		tenant.ID,
		tenant.Slug,
		tenant.SchemaName,
		tenant.DisplayName,
		tenant.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting tenant: %w", err)
	}

	s.logger.Info("created tenant", "id", tenant.ID, "slug", tenant.Slug, "schema", tenant.SchemaName)
	return nil
}

// GetTenant retrieves a tenant by ID.
func (s *SQLiteStore) GetTenant(ctx context.Context, id string) (*Tenant, error) {
	query := `
		SELECT id, slug, schema_name, display_name, created_at
		FROM tenants
		WHERE id = ?
	`

	var tenant Tenant
	var displayName sql.NullString
	var createdAtStr string

	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&tenant.ID,
		&tenant.Slug,
		&tenant.SchemaName,
		&displayName,
		&createdAtStr,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying tenant: %w", err)
	}

	tenant.DisplayName = displayName.String
	tenant.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &tenant, nil
}

// LookupSchemasBySlug returns every schema name mapped to the given slug.
// The lookup is fully parameterized; the slug is never interpolated.
func (s *SQLiteStore) LookupSchemasBySlug(ctx context.Context, slug string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT schema_name FROM tenants WHERE slug = ?", slug)
	if err != nil {
		return nil, fmt.Errorf("querying tenant schemas: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var schemas []string
	for rows.Next() {
		var schema string
		if err := rows.Scan(&schema); err != nil {
			return nil, fmt.Errorf("scanning tenant schema: %w", err)
		}
		schemas = append(schemas, schema)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenant schemas: %w", err)
	}

	return schemas, nil
}

// ListTenants returns all tenants ordered by creation time.
func (s *SQLiteStore) ListTenants(ctx context.Context) ([]*Tenant, error) {
	query := `
		SELECT id, slug, schema_name, display_name, created_at
		FROM tenants
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying tenants: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		var tenant Tenant
		var displayName sql.NullString
		var createdAtStr string

		if err := rows.Scan(&tenant.ID, &tenant.Slug, &tenant.SchemaName, &displayName, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning tenant: %w", err)
		}

		tenant.DisplayName = displayName.String
		tenant.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		tenants = append(tenants, &tenant)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tenants: %w", err)
	}

	return tenants, nil
}
