// ABOUTME: HTTP middleware that resolves the {tenant} path segment
// ABOUTME: Attaches the resolved tenant to the request context or rejects opaquely

package tenant

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Middleware returns an HTTP middleware that resolves the {tenant} URL
// parameter before the request reaches any handler. Every failure kind maps
// to the same opaque 404 so callers cannot probe which check failed.
func (r *Resolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			slug := chi.URLParam(req, "tenant")

			schema, err := r.Resolve(req.Context(), slug)
			if err != nil {
				switch {
				case errors.Is(err, ErrInvalidSlug):
					r.logger.Debug("rejected tenant slug", "slug", slug)
				case errors.Is(err, ErrUnknownTenant):
					r.logger.Debug("unknown tenant", "slug", slug)
				default:
					// ErrAmbiguousTenant and ErrUnavailable already logged
					// at error level by Resolve.
				}
				http.NotFound(w, req)
				return
			}

			ctx := WithTenant(req.Context(), &Tenant{Slug: slug, Schema: schema})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}
