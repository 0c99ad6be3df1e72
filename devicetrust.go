package riskgate

// IsTrustedDevice decides whether a login attempt comes from the identity's
// last-trusted context. Trust is binary and conjunctive: the stored origin
// and client must both match the current ones, the location must not have
// changed, and no rule may have forced the second-factor path. Any single
// mismatch sends the attempt through second-factor verification; partial
// trust would weaken the step-up guarantee.
func IsTrustedDevice(identity IdentityRecord, origin, client string, locationChanged, ruleForcedMFA bool) bool {
	if ruleForcedMFA || locationChanged {
		return false
	}
	if identity.LastOrigin == "" || identity.LastOrigin != origin {
		return false
	}
	if identity.LastClient == "" || identity.LastClient != client {
		return false
	}
	return true
}
