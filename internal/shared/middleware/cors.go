package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// CORS allows cross-origin requests from origins whose host appears in
// allowedHosts. An empty list allows any origin.
func CORS(allowedHosts []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				switch {
				case len(allowedHosts) == 0:
					w.Header().Set("Access-Control-Allow-Origin", "*")
				case isOriginAllowed(origin, allowedHosts):
					w.Header().Set("Access-Control-Allow-Origin", origin)
					w.Header().Set("Access-Control-Allow-Credentials", "true")
					w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
					w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				default:
					http.Error(w, "Forbidden", http.StatusForbidden)
					return
				}
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// isOriginAllowed compares the origin's hostname against the allowed
// hosts, ignoring ports unless the allowed entry pins one.
func isOriginAllowed(origin string, allowedHosts []string) bool {
	if len(allowedHosts) == 0 {
		return true
	}

	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}

	host := strings.ToLower(parsed.Host)
	hostname := strings.ToLower(parsed.Hostname())

	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed == "" {
			continue
		}
		if host == allowed || hostname == allowed {
			return true
		}
	}

	return false
}
