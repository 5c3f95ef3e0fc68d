// Package middleware holds HTTP middleware shared by the web server.
package middleware

import (
	"net/http"
	"os"
	"strings"
)

// originSet is the set of browser origins cleared to call the API.
type originSet map[string]struct{}

// loadOriginSet builds the set from the comma-separated WEB_ALLOWED_ORIGINS
// environment variable.
func loadOriginSet() originSet {
	set := make(originSet)
	for o := range strings.SplitSeq(os.Getenv("WEB_ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			set[o] = struct{}{}
		}
	}
	return set
}

// allows reports whether an Origin header value may receive CORS headers.
// Localhost origins on any port pass without being listed, so a local
// dashboard works against a dev server without configuration.
func (s originSet) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if isLocalOrigin(origin) {
		return true
	}
	_, ok := s[origin]
	return ok
}

func isLocalOrigin(origin string) bool {
	host := strings.TrimPrefix(origin, "http://")
	host = strings.TrimPrefix(host, "https://")
	return host == "localhost" || strings.HasPrefix(host, "localhost:")
}

// CORS returns middleware that answers cross-origin requests against an
// origin allow-list. The allowed methods mirror what the API actually
// routes; preflights are answered here and never reach a handler.
func CORS() func(http.Handler) http.Handler {
	allowed := loadOriginSet()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if origin := r.Header.Get("Origin"); allowed.allows(origin) {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Credentials", "true")
				h.Add("Vary", "Origin")
			}

			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Requested-With")
			h.Set("Access-Control-Max-Age", "86400")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SecurityHeaders returns middleware that sets browser hardening headers.
// The API serves JSON only, so the policy forbids loading anything.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			next.ServeHTTP(w, r)
		})
	}
}
