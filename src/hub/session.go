package hub

import (
	"strings"
	"sync"
	"time"

	"github.com/fhirchat/relay/src/types"
)

// Session wraps one WebSocket chat connection and manages frame flow.
type Session struct {
	ID          string
	conn        types.Conn
	hub         *Hub
	Send        chan types.Event
	inbox       chan string
	connectedAt time.Time
	watching    map[string]bool
	mu          sync.RWMutex
	done        chan struct{}
	closed      bool
}

// SessionInfo holds metadata about a connected chat session.
type SessionInfo struct {
	ID          string    `json:"id"`
	ConnectedAt time.Time `json:"connected_at"`
	Watching    []string  `json:"watching,omitempty"`
}

// NewSession creates a new session wrapper around a connection.
func NewSession(id string, conn types.Conn, h *Hub) *Session {
	return &Session{
		ID:          id,
		conn:        conn,
		hub:         h,
		Send:        make(chan types.Event, 256),
		inbox:       make(chan string, 32),
		connectedAt: time.Now(),
		watching:    make(map[string]bool),
		done:        make(chan struct{}),
	}
}

// Info returns metadata about this session.
func (s *Session) Info() SessionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	watching := make([]string, 0, len(s.watching))
	for id := range s.watching {
		watching = append(watching, id)
	}
	return SessionInfo{
		ID:          s.ID,
		ConnectedAt: s.connectedAt,
		Watching:    watching,
	}
}

func (s *Session) addWatch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watching[sessionID] = true
}

func (s *Session) removeWatch(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watching, sessionID)
}

// ReadPump reads frames from the WebSocket and routes them to the hub.
// "message" frames become user turns (dropped when content trims to
// empty), "watch"/"unwatch" frames manage transcript subscriptions
// with Content naming the target session, and anything else is
// dropped so the chat handler only ever sees real user turns.
func (s *Session) ReadPump() {
	defer func() {
		// The hub loop may already be stopped; never block shutdown.
		select {
		case s.hub.unregister <- s:
		case <-s.hub.done:
		}
		s.conn.Close()
	}()

	for {
		var out types.Outbound
		if err := s.conn.ReadJSON(&out); err != nil {
			return
		}
		switch out.Type {
		case types.MessageType:
			content := strings.TrimSpace(out.Content)
			if content == "" {
				continue
			}
			select {
			case s.hub.incoming <- inbound{sessionID: s.ID, content: content}:
			case <-s.hub.done:
				return
			}
		case types.WatchType:
			if target := strings.TrimSpace(out.Content); target != "" && target != s.ID {
				s.hub.Watch(target, s.ID)
			}
		case types.UnwatchType:
			if target := strings.TrimSpace(out.Content); target != "" {
				s.hub.Unwatch(target, s.ID)
			}
		}
	}
}

// WritePump writes events from the send channel to the WebSocket.
func (s *Session) WritePump() {
	defer s.conn.Close()

	for {
		select {
		case ev, ok := <-s.Send:
			if !ok {
				return
			}
			if err := s.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-s.done:
			return
		}
	}
}

// Close signals the session to stop its pumps.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.done)
		close(s.Send)
	}
}
