// Package middleware exposes HTTP adapters over riskgate.Engine: request
// context capture for the login pipeline and bearer-token guards for
// protected routes.
//
// # Guards
//
//   - [RequestContext] — attaches origin and client to the request context.
//   - [Guard] — validates the bearer token and its session binding.
//   - [RequireRole] — role check layered on top of Guard.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. It does NOT
// implement authentication logic itself; all decisions are delegated to
// Engine.Validate.
//
// # What this package must NOT do
//
//   - Parse or create tokens directly (delegates to Engine).
//   - Access Redis (Engine handles I/O).
//   - Make authorization decisions beyond pass/reject from Engine.Validate.
package middleware
