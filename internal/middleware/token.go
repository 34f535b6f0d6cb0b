package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ServiceTokenMiddleware guards the internal service-to-service routes
// with a shared token carried in the X-Service-Token header.
type ServiceTokenMiddleware struct {
	token string
}

func NewServiceTokenMiddleware(token string) *ServiceTokenMiddleware {
	return &ServiceTokenMiddleware{token: token}
}

func (m *ServiceTokenMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.token == "" {
			// No token configured: internal routes are open, which is only
			// acceptable outside production. Config validation enforces that.
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-Service-Token")
		if subtle.ConstantTimeCompare([]byte(provided), []byte(m.token)) != 1 {
			log.Warn().Str("path", r.URL.Path).Msg("rejected internal request with invalid service token")
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Invalid service token",
			})
			return
		}

		next.ServeHTTP(w, r)
	})
}
