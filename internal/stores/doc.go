// Package stores provides the Redis-backed record stores behind the
// risk engine: pending second-factor challenges, origin bans, policy
// rules, and the risk event trail.
//
// # Design
//
// Pending challenges persist as versioned binary records with a TTL;
// mutation uses WATCH/MULTI optimistic transactions with retry on
// contention, and challenges are single-use. Bans, rules, and events
// persist as hashes or JSON blobs with an index structure so they can
// be listed without scanning the keyspace.
//
// # Architecture boundaries
//
// This package owns persistence and concurrency control. It does NOT
// evaluate rules, score risk, or make authentication decisions; those
// belong to the engine.
//
// # What this package must NOT do
//
//   - Import riskgate or any sibling internal package.
//   - Log or expose challenge secrets.
package stores
