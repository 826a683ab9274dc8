package api

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/hyperengineering/contactbox/internal/submission"
)

type clientContextKey struct{}

// WithClient returns a new context with the request origin attached.
func WithClient(ctx context.Context, c submission.Client) context.Context {
	return context.WithValue(ctx, clientContextKey{}, c)
}

// ClientFromContext extracts the request origin.
// The IP is "unknown" if nothing was attached.
func ClientFromContext(ctx context.Context) submission.Client {
	c, ok := ctx.Value(clientContextKey{}).(submission.Client)
	if !ok || c.IP == "" {
		c.IP = "unknown"
	}
	return c
}

// ClientMiddleware resolves the client address and user agent once per
// request. Forwarding headers are only read when trustedProxies > 0, and
// then only at the position the nearest trusted proxy wrote, so a client
// cannot pick its own rate-limit key.
func ClientMiddleware(trustedProxies int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			c := submission.Client{
				IP:        clientIP(r, trustedProxies),
				UserAgent: r.UserAgent(),
			}
			next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), c)))
		})
	}
}

// clientIP reads the rightmost trusted X-Forwarded-For entry, then
// X-Real-IP, and falls back to the peer address.
func clientIP(r *http.Request, trustedProxies int) string {
	if trustedProxies > 0 {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			idx := len(parts) - trustedProxies
			if idx < 0 {
				idx = 0
			}
			if ip := hostOnly(strings.TrimSpace(parts[idx])); net.ParseIP(ip) != nil {
				return ip
			}
		}
		if ip := hostOnly(strings.TrimSpace(r.Header.Get("X-Real-IP"))); net.ParseIP(ip) != nil {
			return ip
		}
	}
	return hostOnly(r.RemoteAddr)
}

// hostOnly strips the port from addr.
func hostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
