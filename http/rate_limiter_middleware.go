package http

import (
	"net"
	"net/http"

	"github.com/rs/zerolog"
)

// RateLimitMiddleware rejects clients that have exhausted their bucket.
// Clients are keyed by the peer IP of the connection; the port is ignored
// when present and forwarding headers are never trusted.
func RateLimitMiddleware(limiter *RateLimiter, log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := r.RemoteAddr
			if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
				client = host
			}

			if !limiter.Allow(client) {
				log.Warn().Str("client", client).Str("path", r.URL.Path).Msg("Rate limit exceeded")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
