package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	riskgate "github.com/velkorin/riskgate"
)

type authResultContextKey struct{}

// AuthResultFromContext returns the validated auth result injected by [Guard].
func AuthResultFromContext(ctx context.Context) (*riskgate.AuthResult, bool) {
	res, ok := ctx.Value(authResultContextKey{}).(*riskgate.AuthResult)
	return res, ok
}

// RequestContext returns middleware that attaches the request's origin
// (remote IP) and client (User-Agent) to the context so downstream
// Engine calls see the same request attributes the pipeline gates on.
func RequestContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := riskgate.WithOrigin(r.Context(), remoteIP(r))
			ctx = riskgate.WithClient(ctx, r.UserAgent())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Guard returns middleware that authorizes each request through
// Engine.Validate and injects the result into the request context.
// A revoked session binding rejects the request even when the token
// itself is still within its lifetime.
func Guard(engine *riskgate.Engine) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if engine == nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			res, err := engine.Validate(r.Context(), token)
			if err != nil {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authResultContextKey{}, res)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that additionally requires the
// validated identity to hold the given role. Must wrap a handler already
// behind [Guard].
func RequireRole(role riskgate.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := AuthResultFromContext(r.Context())
			if !ok || res.Role != role {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := value[len(bearer):]
	if token == "" {
		return "", false
	}

	return token, true
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
