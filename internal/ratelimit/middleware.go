package ratelimit

import (
	"net"
	"net/http"
	"strconv"

	"github.com/alecgard/taskara/internal/respond"
)

// RejectMessage is the envelope message for throttled requests.
const RejectMessage = "Too many requests, please try again later."

// ClientIP keys requests by remote address. chi's RealIP middleware runs
// earlier and rewrites RemoteAddr from X-Forwarded-For when configured.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Middleware enforces limiter per key. Rate-limit headers are always set:
//
//	X-RateLimit-Limit     maximum requests allowed in the window
//	X-RateLimit-Remaining tokens remaining in the current window
//	X-RateLimit-Reset     Unix timestamp when the bucket is fully replenished
//
// Throttled requests get a 429 envelope and onReject is called.
func Middleware(limiter *Limiter, key func(*http.Request) string, onReject ...func()) func(http.Handler) http.Handler {
	if key == nil {
		key = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			k := key(r)

			limit, remaining, resetAt := limiter.Status(k)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !limiter.Allow(k) {
				for _, fn := range onReject {
					fn()
				}
				respond.JSON(w, http.StatusTooManyRequests, nil, RejectMessage)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
