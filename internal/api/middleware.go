package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"
)

// settings key for the bcrypt hash of the operator API key
const settingAPIKeyHash = "api_key_hash"

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"bytes", ww.BytesWritten(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// authMiddleware guards management routes. A key in the config file is
// compared directly; otherwise the bcrypt hash stored via `nurture
// apikey set` is checked. With neither configured, access is open.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		presented := bearerToken(r)

		if s.cfg.API.Key != "" {
			if subtle.ConstantTimeCompare([]byte(presented), []byte(s.cfg.API.Key)) != 1 {
				s.unauthorized(w, r)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		hash, err := s.settings.GetSetting(settingAPIKeyHash)
		if err != nil {
			s.logger.Error("failed to read API key hash", "error", err)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		if hash == "" {
			next.ServeHTTP(w, r)
			return
		}

		if bcrypt.CompareHashAndPassword([]byte(hash), []byte(presented)) != nil {
			s.unauthorized(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) unauthorized(w http.ResponseWriter, r *http.Request) {
	s.logger.Warn("unauthorized API request",
		"remote_addr", r.RemoteAddr,
		"path", r.URL.Path,
	)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		auth = r.Header.Get("X-API-Key")
	}
	return strings.TrimPrefix(auth, "Bearer ")
}
