package hub

import (
	"github.com/fhirchat/relay/src/types"
)

// deliver fans an event out to the owning session (when local and
// targeted) and to all local watchers of that session.
func (h *Hub) deliver(em emitMsg) {
	if em.toOwner {
		h.sendTo(em.sessionID, em.ev)
	}

	h.mu.RLock()
	subs, ok := h.watchers[em.sessionID]
	if !ok {
		h.mu.RUnlock()
		return
	}
	// Copy watcher IDs to avoid holding the lock during sends.
	ids := make([]string, 0, len(subs))
	for id := range subs {
		ids = append(ids, id)
	}
	h.mu.RUnlock()

	for _, id := range ids {
		if id == em.sessionID {
			continue
		}
		h.sendTo(id, em.ev)
	}
}

func (h *Hub) sendTo(sessionID string, ev types.Event) {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case s.Send <- ev:
	default:
		h.logger.Warn().Str("session_id", sessionID).Msg("send buffer full, dropping")
	}
}

// publishToBridge forwards an event to the bridge if one is attached.
func (h *Hub) publishToBridge(sessionID string, ev types.Event) {
	h.mu.RLock()
	b := h.bridge
	h.mu.RUnlock()

	if b == nil || !b.Available() {
		return
	}
	if err := b.Publish(sessionID, ev); err != nil {
		h.logger.Error().Err(err).Msg("bridge publish failed")
	}
}

// Send delivers an event directly to a specific session.
func (h *Hub) Send(sessionID string, ev types.Event) bool {
	h.mu.RLock()
	s, ok := h.sessions[sessionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	select {
	case s.Send <- ev:
		return true
	default:
		return false
	}
}

// Watch subscribes watcherID to the transcript of sessionID.
func (h *Hub) Watch(sessionID, watcherID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.sessions[watcherID]; !ok {
		return false
	}
	if h.watchers[sessionID] == nil {
		h.watchers[sessionID] = make(map[string]bool)
	}
	h.watchers[sessionID][watcherID] = true
	h.sessions[watcherID].addWatch(sessionID)
	return true
}

// Unwatch removes watcherID from the transcript of sessionID.
func (h *Hub) Unwatch(sessionID, watcherID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs, ok := h.watchers[sessionID]
	if !ok {
		return false
	}
	delete(subs, watcherID)
	if len(subs) == 0 {
		delete(h.watchers, sessionID)
	}
	if s, ok := h.sessions[watcherID]; ok {
		s.removeWatch(sessionID)
	}
	return true
}
