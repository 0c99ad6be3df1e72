// Package session provides the Redis-backed session binding registry and
// the compact binary encoding used for binding blobs.
//
// # Bindings
//
// A [Binding] ties one identity to one (origin, client) pair. The registry
// enforces at most one live binding per (identity, origin, client) tuple:
// [Store.Upsert] refreshes the existing binding in place when the tuple
// already has one, and only mints a new binding otherwise.
//
// # Binary encoding
//
// Binding blobs are stored as a versioned binary format (currently v1).
// The first byte is the format version; decoders reject unknown versions
// outright rather than guessing at field layout.
//
// # Architecture boundaries
//
// This package owns Redis persistence for bindings and nothing else. It
// does NOT parse tokens, evaluate policy rules, or make authentication
// decisions; those belong to the engine.
package session
