// Package jwt issues and verifies the gateway's signed tokens.
//
// Two token kinds share one claim set: full access credentials
// (Purpose "access", bound to a session binding) and pending
// second-factor tokens (Purpose "mfa", bound to a challenge and good
// for nothing else). [Manager.Parse] verifies signature and registered
// claims only; callers must check Purpose before honoring a token.
package jwt
