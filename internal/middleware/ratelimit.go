package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
)

// RateLimit limits each caller to maxRequests per window. Authenticated
// callers are keyed by user id, anonymous ones by client IP.
func RateLimit(maxRequests int, window time.Duration) func(http.Handler) http.Handler {
	return httprate.Limit(maxRequests, window,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
		}),
	)
}

func rateLimitKey(r *http.Request) (string, error) {
	if claims, ok := GetUserFromContext(r.Context()); ok && claims.UserID != "" {
		return "user:" + claims.UserID, nil
	}
	key, err := httprate.KeyByRealIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
