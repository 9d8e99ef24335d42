package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ride-dispatch/internal/general/logger"
	"ride-dispatch/internal/ports"
)

const (
	wsWriteTimeout   = 5 * time.Second
	wsCloseAckWindow = 2 * time.Second
	ctrlTimeout      = 5 * time.Second
)

// session is one live socket plus its write lock. gorilla/websocket allows a
// single concurrent writer per connection, so every outbound frame goes
// through the mutex.
type session struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) write(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

func (s *session) writeClose(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	_ = s.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(wsCloseAckWindow),
	)
}

func (s *session) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(ctrlTimeout))
	return s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctrlTimeout))
}

// eventFrame is the envelope pushed to clients.
type eventFrame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Registry tracks live sessions per user id. A user may hold several
// connections (phone plus tablet); events fan out to all of them in
// connection order.
type Registry struct {
	logger *logger.Logger

	mu    sync.RWMutex
	users map[string][]*session
}

// NewRegistry constructs an empty connection registry.
func NewRegistry(log *logger.Logger) *Registry {
	return &Registry{
		logger: log,
		users:  make(map[string][]*session),
	}
}

var _ ports.ConnectionRegistry = (*Registry)(nil)

// add registers a session under the user id, preserving insertion order.
func (reg *Registry) add(userID string, s *session) {
	reg.mu.Lock()
	reg.users[userID] = append(reg.users[userID], s)
	reg.mu.Unlock()
}

// remove drops the session; the last session removed clears the user entry.
func (reg *Registry) remove(userID string, s *session) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	sessions := reg.users[userID]
	for i, candidate := range sessions {
		if candidate == s {
			sessions = append(sessions[:i], sessions[i+1:]...)
			break
		}
	}
	if len(sessions) == 0 {
		delete(reg.users, userID)
		return
	}
	reg.users[userID] = sessions
}

// IsOnline reports whether the user has at least one live connection.
func (reg *Registry) IsOnline(userID string) bool {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.users[userID]) > 0
}

// Send pushes one event to every live connection of the user and reports
// whether at least one write succeeded. A user with no connections is a
// normal non-delivery, not an error.
func (reg *Registry) Send(userID, event string, payload any) bool {
	body, err := json.Marshal(eventFrame{Type: event, Data: payload})
	if err != nil {
		reg.logger.Error(context.Background(), "ws_event_marshal_failed",
			"Failed to marshal outbound event", err,
			map[string]any{"user_id": userID, "event": event})
		return false
	}

	reg.mu.RLock()
	sessions := make([]*session, len(reg.users[userID]))
	copy(sessions, reg.users[userID])
	reg.mu.RUnlock()

	delivered := false
	for _, s := range sessions {
		if err := s.write(body); err != nil {
			reg.logger.Debug(context.Background(), "ws_event_write_failed",
				"Failed to write event to one connection",
				map[string]any{"user_id": userID, "event": event, "error": err.Error()})
			continue
		}
		delivered = true
	}
	return delivered
}

// Count returns the number of distinct users with live connections.
func (reg *Registry) Count() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.users)
}
