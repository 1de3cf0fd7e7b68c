package api

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fernwell/nurture/internal/queue"
)

// SubscribeRequest is the request body for POST /api/v1/subscribe
type SubscribeRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	Source   string `json:"source,omitempty"`
	Sequence string `json:"sequence,omitempty"`
}

// SettingsRequest is the request body for PUT /api/v1/settings
type SettingsRequest map[string]string

// ActiveProviderRequest is the request body for PUT /api/v1/providers/active
type ActiveProviderRequest struct {
	Name string `json:"name"`
}

// ProvidersResponse is the response for GET /api/v1/providers
type ProvidersResponse struct {
	Active    string   `json:"active"`
	Providers []string `json:"providers"`
}

// QueueResponse is the response for GET /api/v1/queue
type QueueResponse struct {
	Stats  *queue.Stats         `json:"stats"`
	Emails []*queue.QueuedEmail `json:"emails,omitempty"`
}

// HealthResponse is the response for GET /health
type HealthResponse struct {
	Status      string       `json:"status"`
	Uptime      string       `json:"uptime"`
	Queue       *queue.Stats `json:"queue"`
	SentLast24h int          `json:"sent_last_24h"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, _ := s.queue.Stats(r.Context())
	sent, _ := s.emailLog.CountSince(time.Now().Add(-24 * time.Hour))

	s.sendJSON(w, http.StatusOK, HealthResponse{
		Status:      "ok",
		Uptime:      time.Since(s.startTime).String(),
		Queue:       stats,
		SentLast24h: sent,
	})
}

// handleSubscribe handles POST /api/v1/subscribe
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	var req SubscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Email == "" {
		s.sendError(w, http.StatusBadRequest, "email is required")
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		s.sendError(w, http.StatusBadRequest, "email is not valid")
		return
	}

	// The dispatcher stores addresses lowercased; use the same form for
	// every lookup below.
	email := strings.ToLower(strings.TrimSpace(req.Email))

	res := s.dispatcher.SendSubscriber(r.Context(), email, req.Name, req.Source)
	if !res.Success {
		s.sendJSON(w, http.StatusBadGateway, res)
		return
	}

	if req.Sequence != "" {
		sub, err := s.subs.GetByEmail(email)
		switch {
		case err != nil:
			s.logger.Error("sequence enrollment lookup failed", "email", email, "sequence", req.Sequence, "error", err)
		case sub == nil:
			s.logger.Warn("sequence enrollment skipped, subscriber missing after capture", "email", email, "sequence", req.Sequence)
		default:
			if err := s.dispatcher.SubscribeToSequence(r.Context(), sub.ID, req.Sequence); err != nil {
				s.logger.Warn("sequence enrollment failed", "email", email, "sequence", req.Sequence, "error", err)
			}
		}
	}

	s.sendJSON(w, http.StatusOK, res)
}

// handleUnsubscribe handles GET and POST /api/v1/unsubscribe
func (s *Server) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" && r.Method == http.MethodPost {
		var body struct {
			Token string `json:"token"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil {
			token = body.Token
		}
	}
	if token == "" {
		s.sendError(w, http.StatusBadRequest, "token is required")
		return
	}

	if _, err := s.dispatcher.Unsubscribe(r.Context(), token); err != nil {
		s.sendError(w, http.StatusNotFound, "unknown unsubscribe token")
		return
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "unsubscribed"})
}

// handleListProviders handles GET /api/v1/providers
func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, ProvidersResponse{
		Active:    s.registry.ActiveName(),
		Providers: s.registry.Names(),
	})
}

// handleSetActiveProvider handles PUT /api/v1/providers/active
func (s *Server) handleSetActiveProvider(w http.ResponseWriter, r *http.Request) {
	var req ActiveProviderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.sendError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := s.registry.SetActive(req.Name); err != nil {
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	}
	if err := s.settings.SetSetting("email_service", req.Name); err != nil {
		s.logger.Error("failed to persist active provider", "error", err)
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"active": s.registry.ActiveName()})
}

// handleTestProvider handles POST /api/v1/providers/{name}/test
func (s *Server) handleTestProvider(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	p, err := s.registry.Get(name)
	if err != nil {
		s.sendError(w, http.StatusNotFound, err.Error())
		return
	}

	result := p.TestConnection(r.Context())
	status := http.StatusOK
	if !result.Success {
		status = http.StatusBadGateway
	}
	s.sendJSON(w, status, result)
}

// handleSetSettings handles PUT /api/v1/settings. Values land in the
// settings store and take effect after ConfigureProviders runs.
func (s *Server) handleSetSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req) == 0 {
		s.sendError(w, http.StatusBadRequest, "no settings given")
		return
	}

	for key, value := range req {
		if key == settingAPIKeyHash {
			s.sendError(w, http.StatusBadRequest, "api_key_hash cannot be set over the API")
			return
		}
		if err := s.settings.SetSetting(key, value); err != nil {
			s.logger.Error("failed to store setting", "key", key, "error", err)
			s.sendError(w, http.StatusInternalServerError, "Failed to store settings")
			return
		}
	}

	if err := s.dispatcher.ConfigureProviders(); err != nil {
		s.logger.Error("failed to reconfigure providers", "error", err)
	}

	s.sendJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// handleQueue handles GET /api/v1/queue
func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.queue.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get queue stats", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to get queue stats")
		return
	}

	filter := queue.ListFilter{Limit: 100}
	if st := r.URL.Query().Get("status"); st != "" {
		filter.Status = queue.Status(st)
	}
	emails, err := s.queue.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list queue", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list queue")
		return
	}

	s.sendJSON(w, http.StatusOK, QueueResponse{Stats: stats, Emails: emails})
}

// handleRetryQueued handles POST /api/v1/queue/{id}/retry
func (s *Server) handleRetryQueued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Requeue(r.Context(), id); err != nil {
		s.sendError(w, http.StatusConflict, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

// handleCancelQueued handles DELETE /api/v1/queue/{id}
func (s *Server) handleCancelQueued(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queue.Cancel(r.Context(), id); err != nil {
		s.sendError(w, http.StatusConflict, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// handleListSubscribers handles GET /api/v1/subscribers
func (s *Server) handleListSubscribers(w http.ResponseWriter, r *http.Request) {
	subs, err := s.subs.List(200, 0)
	if err != nil {
		s.logger.Error("failed to list subscribers", "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list subscribers")
		return
	}
	s.sendJSON(w, http.StatusOK, subs)
}

// handleSubscriberEmails handles GET /api/v1/subscribers/{id}/emails
func (s *Server) handleSubscriberEmails(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sub, err := s.subs.GetByID(id)
	if err != nil {
		s.logger.Error("subscriber lookup failed", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Subscriber lookup failed")
		return
	}
	if sub == nil {
		s.sendError(w, http.StatusNotFound, "Subscriber not found")
		return
	}

	entries, err := s.emailLog.ListBySubscriber(id, 100)
	if err != nil {
		s.logger.Error("failed to list delivery history", "id", id, "error", err)
		s.sendError(w, http.StatusInternalServerError, "Failed to list delivery history")
		return
	}
	s.sendJSON(w, http.StatusOK, entries)
}

// handleSequenceSubscribe handles POST /api/v1/sequences/{id}/subscribe
func (s *Server) handleSequenceSubscribe(w http.ResponseWriter, r *http.Request) {
	sequenceID := chi.URLParam(r, "id")

	var req struct {
		SubscriberID string `json:"subscriber_id"`
		Email        string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	subscriberID := req.SubscriberID
	if subscriberID == "" && req.Email != "" {
		sub, err := s.subs.GetByEmail(req.Email)
		if err != nil {
			s.sendError(w, http.StatusInternalServerError, "Subscriber lookup failed")
			return
		}
		if sub == nil {
			s.sendError(w, http.StatusNotFound, "Subscriber not found")
			return
		}
		subscriberID = sub.ID
	}
	if subscriberID == "" {
		s.sendError(w, http.StatusBadRequest, "subscriber_id or email is required")
		return
	}

	if err := s.dispatcher.SubscribeToSequence(r.Context(), subscriberID, sequenceID); err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "enrolled"})
}

// sendJSON sends a JSON response
func (s *Server) sendJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, ErrorResponse{Error: message})
}
