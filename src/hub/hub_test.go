package hub_test

import (
	"sync"
	"testing"
	"time"

	"github.com/fhirchat/relay/src/hub"
	"github.com/fhirchat/relay/src/types"
	"github.com/rs/zerolog"
)

// mockConn implements types.Conn for testing without a real WebSocket.
type mockConn struct {
	mu       sync.Mutex
	written  []any
	readCh   chan types.Outbound
	closed   bool
	closedCh chan struct{}
}

func newMockConn() *mockConn {
	return &mockConn{
		readCh:   make(chan types.Outbound, 16),
		closedCh: make(chan struct{}),
	}
}

func (m *mockConn) WriteJSON(v any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written = append(m.written, v)
	return nil
}

func (m *mockConn) ReadJSON(v any) error {
	select {
	case msg := <-m.readCh:
		ptr, ok := v.(*types.Outbound)
		if ok {
			*ptr = msg
		}
		return nil
	case <-m.closedCh:
		return &closeError{}
	}
}

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.closedCh)
	}
	return nil
}

func (m *mockConn) getWritten() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]any, len(m.written))
	copy(cp, m.written)
	return cp
}

type closeError struct{}

func (e *closeError) Error() string { return "connection closed" }

// newTestHub creates a hub and starts its event loop in a goroutine.
func newTestHub(t *testing.T) *hub.Hub {
	t.Helper()
	logger := zerolog.Nop()
	h := hub.New(logger)
	go h.Run()
	t.Cleanup(func() { h.Stop() })
	return h
}

// registerSession creates, registers, and starts a mock session.
func registerSession(t *testing.T, h *hub.Hub, id string) (*hub.Session, *mockConn) {
	t.Helper()
	conn := newMockConn()
	s := hub.NewSession(id, conn, h)
	h.Register(s)
	go s.WritePump()
	// Allow registration to process.
	time.Sleep(20 * time.Millisecond)
	return s, conn
}

func TestHubRegisterAndUnregister(t *testing.T) {
	h := newTestHub(t)

	_, _ = registerSession(t, h, "session-1")
	_, _ = registerSession(t, h, "session-2")

	if got := h.SessionCount(); got != 2 {
		t.Fatalf("expected 2 sessions, got %d", got)
	}

	s3, _ := registerSession(t, h, "session-3")
	h.Unregister(s3)
	time.Sleep(20 * time.Millisecond)

	if h.Info("session-3") != nil {
		t.Error("expected session-3 to be unregistered")
	}
	if h.Info("session-1") == nil {
		t.Error("expected session-1 to remain")
	}
}

func TestWatchAndUnwatch(t *testing.T) {
	h := newTestHub(t)
	_, _ = registerSession(t, h, "owner")
	_, _ = registerSession(t, h, "viewer")

	if ok := h.Watch("owner", "viewer"); !ok {
		t.Fatal("watch should succeed for registered watcher")
	}

	watched := h.Watched()
	if watched["owner"] != 1 {
		t.Errorf("expected 1 watcher on owner, got %d", watched["owner"])
	}

	if ok := h.Watch("owner", "nonexistent"); ok {
		t.Error("watch should fail for unregistered watcher")
	}

	h.Unwatch("owner", "viewer")
	watched = h.Watched()
	if _, ok := watched["owner"]; ok {
		t.Error("expected owner entry to be removed after last unwatch")
	}
}

func TestEmitReachesOwnerAndWatchers(t *testing.T) {
	h := newTestHub(t)
	_, ownerConn := registerSession(t, h, "owner")
	_, viewerConn := registerSession(t, h, "viewer")
	_, otherConn := registerSession(t, h, "other")

	h.Watch("owner", "viewer")
	h.Emit("owner", types.Assistant("hello"))

	// Allow delivery to process.
	time.Sleep(50 * time.Millisecond)

	if len(ownerConn.getWritten()) != 1 {
		t.Errorf("expected 1 event for owner, got %d", len(ownerConn.getWritten()))
	}
	if len(viewerConn.getWritten()) != 1 {
		t.Errorf("expected 1 event for viewer, got %d", len(viewerConn.getWritten()))
	}
	if len(otherConn.getWritten()) != 0 {
		t.Errorf("expected no events for non-watcher, got %d", len(otherConn.getWritten()))
	}
}

func TestMirrorToLocalSkipsOwner(t *testing.T) {
	h := newTestHub(t)
	_, ownerConn := registerSession(t, h, "owner")
	_, viewerConn := registerSession(t, h, "viewer")

	h.Watch("owner", "viewer")
	h.MirrorToLocal("owner", types.Assistant("from another node"))
	time.Sleep(50 * time.Millisecond)

	if len(ownerConn.getWritten()) != 0 {
		t.Error("mirrored events must not target the owning session")
	}
	if len(viewerConn.getWritten()) != 1 {
		t.Errorf("expected 1 mirrored event for viewer, got %d", len(viewerConn.getWritten()))
	}
}

func TestSendToSession(t *testing.T) {
	h := newTestHub(t)
	_, conn := registerSession(t, h, "target")

	if ok := h.Send("target", types.Warning("heads up")); !ok {
		t.Fatal("send to existing session should succeed")
	}
	time.Sleep(20 * time.Millisecond)

	if len(conn.getWritten()) != 1 {
		t.Fatalf("expected 1 event, got %d", len(conn.getWritten()))
	}

	if ok := h.Send("nonexistent", types.Warning("lost")); ok {
		t.Error("send to nonexistent session should fail")
	}
}

func TestConnectionCallbacks(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var connectedID, disconnectedID string
	h.OnConnection(func(id string) {
		mu.Lock()
		connectedID = id
		mu.Unlock()
	})
	h.OnDisconnection(func(id string) {
		mu.Lock()
		disconnectedID = id
		mu.Unlock()
	})

	s, _ := registerSession(t, h, "cb-session")
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if connectedID != "cb-session" {
		t.Errorf("expected connected callback with cb-session, got %s", connectedID)
	}
	mu.Unlock()

	h.Unregister(s)
	time.Sleep(20 * time.Millisecond)

	mu.Lock()
	if disconnectedID != "cb-session" {
		t.Errorf("expected disconnected callback with cb-session, got %s", disconnectedID)
	}
	mu.Unlock()
}

func TestSessionInfo(t *testing.T) {
	h := newTestHub(t)

	_, _ = registerSession(t, h, "info-session")
	_, _ = registerSession(t, h, "a")
	_, _ = registerSession(t, h, "b")
	h.Watch("a", "info-session")
	h.Watch("b", "info-session")

	info := h.Info("info-session")
	if info == nil {
		t.Fatal("expected session info")
	}
	if info.ID != "info-session" {
		t.Errorf("expected ID info-session, got %s", info.ID)
	}
	if len(info.Watching) != 2 {
		t.Errorf("expected 2 watched sessions, got %d", len(info.Watching))
	}
}

func TestReadPumpRoutesUserMessages(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var received []string
	h.SetHandler(func(sessionID, content string) {
		mu.Lock()
		received = append(received, sessionID+":"+content)
		mu.Unlock()
	})

	conn := newMockConn()
	s := hub.NewSession("reader", conn, h)
	h.Register(s)
	go s.WritePump()
	go s.ReadPump()
	time.Sleep(20 * time.Millisecond)

	conn.readCh <- types.Outbound{Type: "ping", Content: "ignored"}
	conn.readCh <- types.Outbound{Type: "message", Content: "   "}
	conn.readCh <- types.Outbound{Type: "message", Content: "  find patient John  "}
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected 1 handled message, got %d", len(received))
	}
	if received[0] != "reader:find patient John" {
		t.Errorf("unexpected handled message %q", received[0])
	}
}

func TestMessagesSerializedPerSession(t *testing.T) {
	h := newTestHub(t)

	var mu sync.Mutex
	var inFlight, maxInFlight int
	var order []string
	h.SetHandler(func(sessionID, content string) {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()

		// Slow agent turn.
		time.Sleep(50 * time.Millisecond)

		mu.Lock()
		order = append(order, content)
		inFlight--
		mu.Unlock()
	})

	conn := newMockConn()
	s := hub.NewSession("serial", conn, h)
	h.Register(s)
	go s.WritePump()
	go s.ReadPump()
	time.Sleep(20 * time.Millisecond)

	conn.readCh <- types.Outbound{Type: "message", Content: "first"}
	conn.readCh <- types.Outbound{Type: "message", Content: "second"}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(order)
		mu.Unlock()
		if n == 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 {
		t.Fatalf("expected 2 handled messages, got %d", len(order))
	}
	if maxInFlight != 1 {
		t.Errorf("expected at most 1 in-flight turn per session, got %d", maxInFlight)
	}
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("turns ran out of order: %v", order)
	}
}

func TestSessionsProcessConcurrently(t *testing.T) {
	h := newTestHub(t)

	// Both handlers must be in flight at once; a hub that serialized
	// across sessions would never release the barrier.
	var barrier sync.WaitGroup
	barrier.Add(2)
	done := make(chan struct{}, 2)
	h.SetHandler(func(sessionID, content string) {
		barrier.Done()
		barrier.Wait()
		done <- struct{}{}
	})

	for _, id := range []string{"s1", "s2"} {
		conn := newMockConn()
		s := hub.NewSession(id, conn, h)
		h.Register(s)
		go s.WritePump()
		go s.ReadPump()
		defer conn.Close()
		time.Sleep(20 * time.Millisecond)
		conn.readCh <- types.Outbound{Type: "message", Content: "go"}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("sessions did not process concurrently")
		}
	}
}

func TestReadPumpWatchFrames(t *testing.T) {
	h := newTestHub(t)
	_, ownerConn := registerSession(t, h, "owner")

	conn := newMockConn()
	viewer := hub.NewSession("viewer", conn, h)
	h.Register(viewer)
	go viewer.WritePump()
	go viewer.ReadPump()
	time.Sleep(20 * time.Millisecond)

	conn.readCh <- types.Outbound{Type: "watch", Content: "owner"}
	time.Sleep(50 * time.Millisecond)

	if h.Watched()["owner"] != 1 {
		t.Fatal("expected viewer to be watching owner")
	}

	h.Emit("owner", types.Assistant("shared"))
	time.Sleep(50 * time.Millisecond)

	if len(ownerConn.getWritten()) != 1 {
		t.Error("owner should receive its own event")
	}
	if len(conn.getWritten()) != 1 {
		t.Error("watcher should receive the owner's event")
	}

	conn.readCh <- types.Outbound{Type: "unwatch", Content: "owner"}
	time.Sleep(50 * time.Millisecond)

	if _, ok := h.Watched()["owner"]; ok {
		t.Error("expected watch to be removed after unwatch frame")
	}
}

func TestReadPumpIgnoresSelfWatch(t *testing.T) {
	h := newTestHub(t)

	conn := newMockConn()
	s := hub.NewSession("solo", conn, h)
	h.Register(s)
	go s.WritePump()
	go s.ReadPump()
	time.Sleep(20 * time.Millisecond)

	conn.readCh <- types.Outbound{Type: "watch", Content: "solo"}
	time.Sleep(50 * time.Millisecond)

	if len(h.Watched()) != 0 {
		t.Error("a session must not watch its own transcript")
	}
}

func TestReadPumpExitsAfterHubStop(t *testing.T) {
	h := hub.New(zerolog.Nop())
	go h.Run()

	conn := newMockConn()
	s := hub.NewSession("stopping", conn, h)
	h.Register(s)
	go s.WritePump()

	returned := make(chan struct{})
	go func() {
		s.ReadPump()
		close(returned)
	}()
	time.Sleep(20 * time.Millisecond)

	h.Stop()
	conn.Close()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("ReadPump did not return after hub stop")
	}
}

func TestReadPumpUnregistersOnClose(t *testing.T) {
	h := newTestHub(t)

	conn := newMockConn()
	s := hub.NewSession("transient", conn, h)
	h.Register(s)
	go s.WritePump()
	go s.ReadPump()
	time.Sleep(20 * time.Millisecond)

	conn.Close()
	time.Sleep(50 * time.Millisecond)

	if h.Info("transient") != nil {
		t.Error("expected session to unregister after connection close")
	}
}

// recordingBridge captures events published toward other instances.
type recordingBridge struct {
	mu        sync.Mutex
	published []string
	available bool
}

func (b *recordingBridge) Publish(sessionID string, ev types.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, sessionID+":"+string(ev.Type))
	return nil
}

func (b *recordingBridge) Available() bool { return b.available }

func (b *recordingBridge) getPublished() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]string, len(b.published))
	copy(cp, b.published)
	return cp
}

func TestEmitPublishesToBridge(t *testing.T) {
	h := newTestHub(t)
	b := &recordingBridge{available: true}
	h.SetBridge(b)

	_, _ = registerSession(t, h, "owner")
	h.Emit("owner", types.Assistant("hi"))
	time.Sleep(50 * time.Millisecond)

	published := b.getPublished()
	if len(published) != 1 {
		t.Fatalf("expected 1 published event, got %d", len(published))
	}
	if published[0] != "owner:assistant" {
		t.Errorf("unexpected published event %q", published[0])
	}

	// Mirrored events stay local.
	h.MirrorToLocal("owner", types.Assistant("loop"))
	time.Sleep(50 * time.Millisecond)
	if len(b.getPublished()) != 1 {
		t.Error("mirrored events must not be re-published to the bridge")
	}
}

func TestEmitSkipsUnavailableBridge(t *testing.T) {
	h := newTestHub(t)
	b := &recordingBridge{available: false}
	h.SetBridge(b)

	_, _ = registerSession(t, h, "owner")
	h.Emit("owner", types.Assistant("hi"))
	time.Sleep(50 * time.Millisecond)

	if len(b.getPublished()) != 0 {
		t.Error("unavailable bridge must not receive events")
	}
}
