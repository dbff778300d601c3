package stubapi

import (
	"net/http"
	"strconv"

	"github.com/shehryarbajwa/testbed/internal/ratelimit"
)

// RequireAuth rejects requests whose bearer token was not issued by Login.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := h.userForToken(bearerToken(r)); !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, "missing or unknown bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitMiddleware enforces limiter per caller. Callers are keyed by
// bearer token, falling back to the remote address.
func RateLimitMiddleware(limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)

			if !limiter.Allow(key) {
				w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
				w.Header().Set("X-RateLimit-Remaining", "0")
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(int(limiter.Tokens(key))))
			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	return r.RemoteAddr
}
