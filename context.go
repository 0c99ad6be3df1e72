package riskgate

import "context"

type originContextKey struct{}
type clientContextKey struct{}
type captchaProofContextKey struct{}

// WithOrigin attaches the caller's network origin (typically the remote IP)
// to ctx. The Engine uses it for ban checks, brute-force counters, policy
// rules, geolocation, and session binding keys.
func WithOrigin(ctx context.Context, origin string) context.Context {
	return context.WithValue(ctx, originContextKey{}, origin)
}

// WithClient attaches the opaque client-identity string (e.g. the presented
// User-Agent) to ctx. Used by device trust and session binding keys.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, clientContextKey{}, client)
}

// WithCaptchaProof attaches a CAPTCHA proof to ctx for attempts that were
// previously rejected with [ErrCaptchaRequired].
func WithCaptchaProof(ctx context.Context, proof string) context.Context {
	return context.WithValue(ctx, captchaProofContextKey{}, proof)
}

func originFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	origin, _ := ctx.Value(originContextKey{}).(string)
	return origin
}

func clientFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	client, _ := ctx.Value(clientContextKey{}).(string)
	return client
}

func captchaProofFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}

	proof, _ := ctx.Value(captchaProofContextKey{}).(string)
	return proof
}
