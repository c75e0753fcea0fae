// ABOUTME: Request context for carrying the resolved tenant through handlers
// ABOUTME: Provides WithTenant/FromContext for immutable per-request attachment

package tenant

import (
	"context"
)

// Tenant holds the resolved tenant information for one request. It is
// attached to the request context by the middleware and never mutated
// afterwards; handlers that read it can rely on Schema being non-empty.
type Tenant struct {
	Slug   string // the path-supplied identifier, already validated
	Schema string // the resolved backing-store namespace
}

// tenantContextKey is the key type for storing Tenant in context.Context.
type tenantContextKey struct{}

// WithTenant returns a new context with the Tenant attached.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, t)
}

// FromContext retrieves the Tenant from the context, returning nil if not present.
func FromContext(ctx context.Context) *Tenant {
	val := ctx.Value(tenantContextKey{})
	if val == nil {
		return nil
	}
	t, ok := val.(*Tenant)
	if !ok {
		return nil
	}
	return t
}

// MustFromContext retrieves the Tenant from the context, panicking if not
// present. Handlers behind the middleware may use this.
func MustFromContext(ctx context.Context) *Tenant {
	t := FromContext(ctx)
	if t == nil {
		panic("tenant: Tenant not found in context")
	}
	return t
}
