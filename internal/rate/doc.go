// Package rate implements the Redis-backed brute-force guard: a
// consecutive failure counter per origin that gates logins behind a
// CAPTCHA once the threshold is reached.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on the first hit.
// Key prefix bf: is one counter per origin. Successful credential
// issuance resets a counter to zero; counters are never deleted.
//
// # What this package must NOT do
//
//   - Verify CAPTCHA proofs (the engine owns that).
//   - Be imported outside the riskgate module.
package rate
