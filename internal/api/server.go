// Package api exposes the HTTP surface: health, the presence snapshot, the
// inbox-style message listings, message deletion and metrics, plus the two
// websocket upgrade endpoints.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"parley/internal/metrics"
	"parley/internal/presence"
	"parley/internal/websocket"
	"parley/pkg/interfaces"
	"parley/pkg/types"
)

const defaultListLimit = 50

// Server routes HTTP traffic to the core components. No business logic lives
// here, only HTTP handling and JSON serialization.
type Server struct {
	router    chi.Router
	store     interfaces.MessageStore
	presence  *presence.Registry
	transport *websocket.Registry
	log       zerolog.Logger
}

// NewServer builds the router over the given components.
func NewServer(store interfaces.MessageStore, presenceRegistry *presence.Registry,
	transport *websocket.Registry, ws *websocket.Handlers, log zerolog.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		presence:  presenceRegistry,
		transport: transport,
		log:       log,
	}

	s.router.Use(middleware.Recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", metrics.Handler())

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/presence/online", s.handleOnlineUsers)
		r.Get("/messages", s.handleListMessages)
		r.Delete("/messages/{id}", s.handleDeleteMessage)
	})

	s.router.Get("/ws/presence", ws.HandlePresence)
	s.router.Get("/ws/chat", ws.HandleChat)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":      "healthy",
		"connections": s.transport.Count(),
		"online":      len(s.presence.ListOnlineUsers()),
	})
}

func (s *Server) handleOnlineUsers(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.presence.ListOnlineUsers())
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !types.IsValidUsername(username) {
		s.writeError(w, http.StatusBadRequest, "missing or invalid username")
		return
	}
	container := r.URL.Query().Get("container")
	if container == "" {
		container = types.ContainerInbox
	}
	if !types.IsValidContainer(container) {
		s.writeError(w, http.StatusBadRequest, types.ErrInvalidContainer.Error())
		return
	}
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	messages, err := s.store.MessagesForUser(r.Context(), username, container, limit)
	if err != nil {
		s.log.Error().Err(err).Str("username", username).Msg("failed to list messages")
		s.writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	s.writeJSON(w, http.StatusOK, messages)
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if !types.IsValidUsername(username) {
		s.writeError(w, http.StatusBadRequest, "missing or invalid username")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid message id")
		return
	}

	switch err := s.store.DeleteMessage(r.Context(), id, username); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, interfaces.ErrMessageNotFound):
		s.writeError(w, http.StatusNotFound, "message not found")
	case errors.Is(err, interfaces.ErrNotMessageParticipant):
		s.writeError(w, http.StatusForbidden, "not a participant of this message")
	default:
		s.log.Error().Err(err).Int64("message_id", id).Msg("failed to delete message")
		s.writeError(w, http.StatusInternalServerError, "failed to delete message")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Debug().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
