// Package server assembles the paceline HTTP service.
//
// Route layout:
//
//	GET  /health                   liveness probe, no auth
//	POST /auth/...                 authentication ceremonies (session cookie)
//	GET  /t/{tenant}/activities    tenant-scoped resources
//	POST /t/{tenant}/activities
//
// Tenant routes run the tenant resolver middleware first, then the
// authentication check. An unresolvable tenant returns the same 404
// whatever the failure reason, so a caller cannot distinguish a malformed
// slug from an unknown one or a resolution fault.
package server
