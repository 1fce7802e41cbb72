package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
)

// OriginsProvider returns the origins allowed to read the API from a browser.
type OriginsProvider interface {
	AllowedOrigins() []string
}

// Any allows every origin when present in the allowed origins.
const Any = "*"

const preflightMaxAge = 600

// CORS adds the cross origin headers for the allowed origins and answers preflight requests.
//
// Origins are read from p on every request so that reloaded origins apply immediately. Requests from other
// origins are served without CORS headers, leaving the browser to block them. Preflights from other origins
// are rejected with 403.
func CORS(p OriginsProvider, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Add("Vary", "Origin")

		allowed := p.AllowedOrigins()
		preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""

		switch {
		case slices.Contains(allowed, Any):
			h.Set("Access-Control-Allow-Origin", Any)
		case slices.Contains(allowed, strings.TrimRight(origin, "/")):
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Credentials", "true")
		default:
			if preflight {
				http.Error(w, "Disallowed CORS origin", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		if !preflight {
			next.ServeHTTP(w, r)
			return
		}

		h.Add("Vary", "Access-Control-Request-Method")
		h.Add("Vary", "Access-Control-Request-Headers")
		h.Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if reqHeaders := r.Header.Get("Access-Control-Request-Headers"); reqHeaders != "" {
			h.Set("Access-Control-Allow-Headers", reqHeaders)
		}
		h.Set("Access-Control-Max-Age", strconv.Itoa(preflightMaxAge))
		w.WriteHeader(http.StatusNoContent)
	})
}
