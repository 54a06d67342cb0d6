package realtime

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

// Session is one connected websocket client.
type Session struct {
	conn   *websocket.Conn
	userID string
	send   chan []byte
}

// NewSession wraps an upgraded websocket connection.
func NewSession(conn *websocket.Conn, userID string) *Session {
	return &Session{
		conn:   conn,
		userID: userID,
		send:   make(chan []byte, sendBuffer),
	}
}

// UserID returns the authenticated user id for this session.
func (s *Session) UserID() string { return s.userID }

// writePump drains the send queue onto the wire and keeps the connection
// alive with pings. Exits when the send channel is closed by Unregister.
func (s *Session) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case data, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
