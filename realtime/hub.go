// Package realtime owns the websocket sessions and channel rooms that bot
// stream events are broadcast into.
package realtime

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/parlorchat/parlor"
)

// Hub tracks connected sessions and their channel-room subscriptions.
type Hub struct {
	mu       sync.RWMutex
	sessions map[*Session]struct{}
	rooms    map[string]map[*Session]struct{} // channelID -> sessions
	logger   *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the structured logger for session lifecycle events.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = l }
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		sessions: make(map[*Session]struct{}),
		rooms:    make(map[string]map[*Session]struct{}),
		logger:   parlor.NopLogger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register adds a session and starts its write pump.
func (h *Hub) Register(s *Session) {
	h.mu.Lock()
	h.sessions[s] = struct{}{}
	h.mu.Unlock()
	h.logger.Info("session registered", "user_id", s.userID)
	go s.writePump()
}

// Unregister removes a session from the hub and every room.
func (h *Hub) Unregister(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s]; ok {
		delete(h.sessions, s)
		for channelID, subs := range h.rooms {
			delete(subs, s)
			if len(subs) == 0 {
				delete(h.rooms, channelID)
			}
		}
		close(s.send)
	}
	h.mu.Unlock()
	h.logger.Info("session unregistered", "user_id", s.userID)
}

// Join subscribes a session to a channel room.
func (h *Hub) Join(channelID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[channelID] == nil {
		h.rooms[channelID] = make(map[*Session]struct{})
	}
	h.rooms[channelID][s] = struct{}{}
}

// Leave unsubscribes a session from a channel room.
func (h *Hub) Leave(channelID string, s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[channelID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.rooms, channelID)
		}
	}
}

// Broadcast sends a stream event to every session in the channel's room.
// Sessions with full send buffers are skipped; chunk loss is tolerated and
// the End event carries the full content.
func (h *Hub) Broadcast(channelID string, ev parlor.StreamEvent) {
	data, err := json.Marshal(envelope{Event: string(ev.Type), Payload: ev})
	if err != nil {
		return
	}

	// Hold the read lock across the sends: Join/Leave/Unregister mutate the
	// room maps and close session send channels under the write lock, so a
	// send can never race a map write or a close. Sends are non-blocking.
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.rooms[channelID] {
		select {
		case s.send <- data:
		default:
		}
	}
}

// envelope is the wire frame sent to clients.
type envelope struct {
	Event   string             `json:"event"`
	Payload parlor.StreamEvent `json:"payload"`
}
