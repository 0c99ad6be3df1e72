// Package riskgate provides a risk-adaptive authentication gateway engine.
// For every login attempt it runs an ordered decision pipeline — origin ban
// check, policy-rule evaluation, brute-force/CAPTCHA escalation, impossible
// travel detection, and device trust — and either blocks the attempt,
// demands a CAPTCHA proof, demands a second factor, or issues a credential
// backed by a Redis session binding that administrators can revoke at any
// time.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// riskgate is the public surface. It exposes [Engine], [Builder], [Config],
// the pure risk components (rule evaluation, travel assessment, device
// trust, risk tally), and value types. Identity storage, IP geolocation,
// and CAPTCHA verification are collaborator interfaces supplied by the
// caller; all Redis coordination — binding registry, failure counters,
// origin bans, rule and risk-event stores — lives under internal/ and
// session/ and is never exported beyond its package API.
//
// # Consistency contract
//
// A credential is only as valid as its session binding: Validate checks
// binding existence on every call, so an administrative revocation is
// visible to the very next request presenting that credential.
package riskgate
