// Package tenant resolves URL tenant slugs to backing-store namespaces.
//
// # Resolution
//
// Tenant-scoped routes carry an opaque alphanumeric slug as a path segment
// (/t/{tenant}/...). Before any business handler runs, the middleware
// validates the slug, looks it up in the tenants table with a bound
// parameter, and attaches the resolved namespace to the request context:
//
//	tn := tenant.FromContext(r.Context())
//	activities, err := db.ListActivities(ctx, tn.Schema, userID, 50)
//
// A request whose tenant fails to resolve never reaches a handler; every
// failure kind (bad syntax, unknown slug, duplicate mapping rows, store
// fault) surfaces as the same opaque 404. The internal distinction exists
// only in logs.
//
// # Invariants
//
//   - Syntactically invalid slugs are rejected before any storage access.
//   - Exactly one mapping row resolves; zero or multiple rows fail.
//   - The context value is immutable; Schema is non-empty whenever the
//     value is present.
package tenant
