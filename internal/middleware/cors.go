package middleware

import (
	"net/http"
	"strings"
)

// CORS allows read-only cross-origin access to the stats API. origin is "*"
// or a comma-separated list of allowed origins.
func CORS(origin string) func(http.Handler) http.Handler {
	allowedList := splitOrigins(origin)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqOrigin := r.Header.Get("Origin")
			switch {
			case origin == "*":
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case reqOrigin != "" && isAllowed(reqOrigin, allowedList):
				w.Header().Set("Access-Control-Allow-Origin", reqOrigin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func splitOrigins(s string) []string {
	var out []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			out = append(out, o)
		}
	}
	return out
}

func isAllowed(reqOrigin string, allowed []string) bool {
	for _, o := range allowed {
		if reqOrigin == o {
			return true
		}
	}
	return false
}
