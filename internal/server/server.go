// Package server exposes the HTTP surface of the parlord daemon: message
// ingestion, the websocket stream hub, and a per-channel SSE event feed.
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/parlorchat/parlor"
	"github.com/parlorchat/parlor/dispatch"
	"github.com/parlorchat/parlor/fanout"
	"github.com/parlorchat/parlor/realtime"
)

// Server routes daemon HTTP traffic.
type Server struct {
	messages     parlor.MessageStore
	orchestrator *dispatch.Orchestrator
	hub          *realtime.Hub
	bus          *fanout.Bus
	upgrader     websocket.Upgrader
	logger       *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server over the daemon's collaborators.
func New(messages parlor.MessageStore, orch *dispatch.Orchestrator, hub *realtime.Hub, bus *fanout.Bus, opts ...Option) *Server {
	s := &Server{
		messages:     messages,
		orchestrator: orch,
		hub:          hub,
		bus:          bus,
		upgrader:     websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:       parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the daemon's HTTP mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/messages", s.handleCreateMessage)
	mux.HandleFunc("GET /api/channels/{channel}/events", s.handleChannelEvents)
	mux.HandleFunc("GET /ws", s.handleWS)
	return mux
}

// createMessageRequest is the ingestion payload from the platform's message
// service.
type createMessageRequest struct {
	GuildID   string `json:"guildId"`
	ChannelID string `json:"channelId"`
	SenderID  string `json:"senderId"`
	Sender    string `json:"sender"`
	IsBot     bool   `json:"isBot"`
	Content   string `json:"content"`
}

// handleCreateMessage persists an inbound message and hands it to the
// orchestrator. Dispatch happens on background goroutines; the response
// returns as soon as the message is stored.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.GuildID == "" || req.ChannelID == "" || req.SenderID == "" {
		http.Error(w, "guildId, channelId and senderId are required", http.StatusBadRequest)
		return
	}

	msg := parlor.Message{
		ID:        parlor.NewID(),
		GuildID:   req.GuildID,
		ChannelID: req.ChannelID,
		Sender:    parlor.Sender{ID: req.SenderID, Name: req.Sender, IsBot: req.IsBot},
		Content:   req.Content,
		CreatedAt: parlor.NowUnix(),
	}
	if err := s.messages.CreateMessage(r.Context(), msg); err != nil {
		s.logger.Error("persist message", "channel_id", msg.ChannelID, "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	s.orchestrator.HandleMessageCreated(r.Context(), msg)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(msg)
}

// handleChannelEvents serves a channel's stream lifecycle events over SSE,
// fed by the in-process event bus.
func (s *Server) handleChannelEvents(w http.ResponseWriter, r *http.Request) {
	channelID := r.PathValue("channel")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, cancel := s.bus.Subscribe(channelID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		}
	}
}

// wsCommand is a client frame on the websocket: join or leave a channel room.
type wsCommand struct {
	Action    string `json:"action"`
	ChannelID string `json:"channelId"`
}

// handleWS upgrades the connection, registers the session, and services
// join/leave commands until the client disconnects.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		http.Error(w, "user_id is required", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	sess := realtime.NewSession(conn, userID)
	s.hub.Register(sess)
	defer s.hub.Unregister(sess)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var cmd wsCommand
		if err := json.Unmarshal(data, &cmd); err != nil || cmd.ChannelID == "" {
			continue
		}
		switch cmd.Action {
		case "join":
			s.hub.Join(cmd.ChannelID, sess)
		case "leave":
			s.hub.Leave(cmd.ChannelID, sess)
		}
	}
}
