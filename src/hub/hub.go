package hub

import (
	"sync"

	"github.com/fhirchat/relay/src/types"
	"github.com/rs/zerolog"
)

// MessageHandler handles one trimmed, non-empty user message from a
// session. Each session has a single worker goroutine, so turns for
// one session run strictly in order while sessions stay concurrent.
type MessageHandler func(sessionID, content string)

// EventBridge mirrors transcript events to other relay instances.
// Defined here to avoid circular imports with the bridge package.
type EventBridge interface {
	Publish(sessionID string, ev types.Event) error
	Available() bool
}

// Hub manages all chat sessions and transcript watch subscriptions.
type Hub struct {
	sessions map[string]*Session
	watchers map[string]map[string]bool // watched session -> set of watcher IDs

	register   chan *Session
	unregister chan *Session
	incoming   chan inbound
	emit       chan emitMsg
	localEmit  chan emitMsg // mirrored from the bridge, no re-publish

	handler   MessageHandler
	onConnect []func(string)
	onDisconn []func(string)

	bridge   EventBridge
	mu       sync.RWMutex
	logger   zerolog.Logger
	done     chan struct{}
	stopOnce sync.Once
}

type inbound struct {
	sessionID string
	content   string
}

type emitMsg struct {
	sessionID string
	ev        types.Event
	toOwner   bool
}

// New creates a new Hub instance.
func New(logger zerolog.Logger) *Hub {
	return &Hub{
		sessions:   make(map[string]*Session),
		watchers:   make(map[string]map[string]bool),
		register:   make(chan *Session),
		unregister: make(chan *Session),
		incoming:   make(chan inbound, 256),
		emit:       make(chan emitMsg, 256),
		localEmit:  make(chan emitMsg, 256),
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetBridge attaches a cross-instance event bridge to the hub. When
// set, emitted events are also forwarded to other instances so remote
// watchers can follow a transcript.
func (h *Hub) SetBridge(b EventBridge) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.bridge = b
}

// MirrorToLocal delivers an event from the bridge to local watchers
// only. It does not re-publish to Redis, preventing infinite loops,
// and never targets the owning session, which lives on another node.
func (h *Hub) MirrorToLocal(sessionID string, ev types.Event) {
	h.localEmit <- emitMsg{sessionID: sessionID, ev: ev}
}

// Run starts the hub event loop. Call in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case s := <-h.register:
			h.addSession(s)
		case s := <-h.unregister:
			h.removeSession(s)
		case in := <-h.incoming:
			h.dispatch(in)
		case em := <-h.emit:
			h.publishToBridge(em.sessionID, em.ev)
			h.deliver(em)
		case em := <-h.localEmit:
			h.deliver(em)
		case <-h.done:
			return
		}
	}
}

// Stop halts the hub event loop. Safe to call more than once.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

// Register queues a session for registration.
func (h *Hub) Register(s *Session) {
	h.register <- s
}

// Unregister queues a session for removal.
func (h *Hub) Unregister(s *Session) {
	h.unregister <- s
}

// Emit sends a transcript event to the owning session and any
// watchers, local or remote.
func (h *Hub) Emit(sessionID string, ev types.Event) {
	h.emit <- emitMsg{sessionID: sessionID, ev: ev, toOwner: true}
}

// dispatch routes a user message to its session's worker queue.
// Running the handler here or on an ad hoc goroutine would let two
// quick messages interleave agent turns over the same conversation.
func (h *Hub) dispatch(in inbound) {
	h.mu.RLock()
	s, ok := h.sessions[in.sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case s.inbox <- in.content:
	default:
		h.logger.Warn().Str("session_id", in.sessionID).Msg("message queue full, dropping")
	}
}

// runTurns drains one session's message queue, one turn at a time.
func (h *Hub) runTurns(s *Session) {
	for {
		select {
		case content := <-s.inbox:
			h.mu.RLock()
			handler := h.handler
			h.mu.RUnlock()
			if handler == nil {
				h.logger.Warn().Str("session_id", s.ID).Msg("no message handler")
				continue
			}
			handler(s.ID, content)
		case <-s.done:
			return
		}
	}
}

func (h *Hub) addSession(s *Session) {
	h.mu.Lock()
	h.sessions[s.ID] = s
	h.mu.Unlock()

	go h.runTurns(s)

	h.logger.Info().Str("session_id", s.ID).Msg("session registered")

	for _, cb := range h.onConnect {
		cb(s.ID)
	}
}

func (h *Hub) removeSession(s *Session) {
	h.mu.Lock()
	if _, ok := h.sessions[s.ID]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.sessions, s.ID)

	// Drop all watch subscriptions held by the departing session.
	for watched, subs := range h.watchers {
		delete(subs, s.ID)
		if len(subs) == 0 {
			delete(h.watchers, watched)
		}
	}
	h.mu.Unlock()

	s.Close()
	h.logger.Info().Str("session_id", s.ID).Msg("session unregistered")

	for _, cb := range h.onDisconn {
		cb(s.ID)
	}
}
