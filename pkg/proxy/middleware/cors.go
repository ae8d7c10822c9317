package middleware

import (
	"net/http"
	"slices"
	"strconv"
	"strings"

	"teclab/bitgate/pkg/config"
)

// CORSConfig contains configuration for CORS middleware.
type CORSConfig struct {
	// Enabled controls whether CORS is enabled.
	Enabled bool

	// AllowedOrigins is a list of allowed origins for CORS.
	// Use ["*"] to allow all origins.
	AllowedOrigins []string

	// AllowedMethods is a list of allowed HTTP methods.
	AllowedMethods []string

	// AllowedHeaders is a list of allowed HTTP headers.
	AllowedHeaders []string

	// ExposedHeaders is a list of headers exposed to clients.
	ExposedHeaders []string

	// MaxAge is the maximum age (in seconds) for preflight cache.
	MaxAge int

	// AllowCredentials controls whether credentials are allowed.
	AllowCredentials bool
}

// NewCORSConfig converts the proxy CORS configuration.
func NewCORSConfig(cfg config.CORSConfig) *CORSConfig {
	return &CORSConfig{
		Enabled:          cfg.Enabled,
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   cfg.ExposedHeaders,
		MaxAge:           cfg.MaxAge,
		AllowCredentials: cfg.AllowCredentials,
	}
}

// DefaultCORSConfig returns a permissive configuration suitable for
// browser-based chat clients.
func DefaultCORSConfig() *CORSConfig {
	return &CORSConfig{
		Enabled:        true,
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         3600,
	}
}

// CORSMiddleware adds Cross-Origin Resource Sharing headers and answers
// preflight OPTIONS requests with 204.
//
//	handler = CORSMiddleware(NewCORSConfig(cfg.Proxy.CORS))(handler)
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			wildcard := slices.Contains(config.AllowedOrigins, "*")

			switch {
			case origin != "" && (wildcard || slices.Contains(config.AllowedOrigins, origin)):
				// Credentials are never allowed together with "*", so echo
				// the origin instead.
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
				if config.AllowCredentials {
					w.Header().Set("Access-Control-Allow-Credentials", "true")
				}
				if len(config.ExposedHeaders) > 0 {
					w.Header().Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
				}
			case wildcard:
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}

			if r.Method == http.MethodOptions {
				if len(config.AllowedMethods) > 0 {
					w.Header().Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
				}
				if len(config.AllowedHeaders) > 0 {
					w.Header().Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
				}
				if config.MaxAge > 0 {
					w.Header().Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
				}
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
