// ABOUTME: Resolves untrusted tenant slugs to trusted backing-store namespaces
// ABOUTME: Validates input before any storage access and classifies lookup outcomes

package tenant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/paceline/paceline/internal/store"
)

// Resolution errors. All of them surface to callers as the same opaque
// not-found response; the distinction exists for logging only.
var (
	// ErrInvalidSlug means the slug failed syntactic validation. No storage
	// lookup was performed.
	ErrInvalidSlug = errors.New("invalid tenant identifier")

	// ErrUnknownTenant means no mapping row exists for the slug.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrAmbiguousTenant means more than one mapping row exists for the slug.
	// This is a data-integrity fault, never caused by request input.
	ErrAmbiguousTenant = errors.New("ambiguous tenant mapping")

	// ErrUnavailable means the mapping store could not be reached. Safe to
	// retry at the caller's discretion.
	ErrUnavailable = errors.New("tenant resolution unavailable")
)

// slugPattern is the only shape of tenant identifier ever sent to storage.
var slugPattern = regexp.MustCompile(`^[a-zA-Z0-9]+$`)

const maxSlugLength = 64

// Resolver maps tenant slugs to schema namespaces.
type Resolver struct {
	store  store.TenantStore
	logger *slog.Logger
}

// NewResolver creates a Resolver backed by the given tenant store.
func NewResolver(tenantStore store.TenantStore) *Resolver {
	return &Resolver{
		store:  tenantStore,
		logger: slog.Default().With("component", "tenant"),
	}
}

// ValidateSlug reports whether a slug has the shape resolution accepts:
// non-empty, at most 64 characters, ASCII letters and digits only.
func ValidateSlug(slug string) error {
	if len(slug) == 0 || len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return ErrInvalidSlug
	}
	return nil
}

// Resolve validates the slug and maps it to exactly one schema namespace.
// Resolution is idempotent and has no side effects, so retrying after
// ErrUnavailable is always safe.
func (r *Resolver) Resolve(ctx context.Context, slug string) (string, error) {
	if err := ValidateSlug(slug); err != nil {
		return "", err
	}

	schemas, err := r.store.LookupSchemasBySlug(ctx, slug)
	if err != nil {
		r.logger.Error("tenant lookup failed", "slug", slug, "error", err)
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	switch len(schemas) {
	case 0:
		return "", ErrUnknownTenant
	case 1:
		return schemas[0], nil
	default:
		// Duplicate mapping rows can only come from an operational mistake.
		r.logger.Error("ambiguous tenant mapping", "slug", slug, "rows", len(schemas))
		return "", ErrAmbiguousTenant
	}
}
