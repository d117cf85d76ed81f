package relayclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/fhirchat/relay/src/types"
	"github.com/rs/zerolog"
)

// ReconnectPolicy controls reconnection after a dropped connection:
// a fixed delay, retried without bound for as long as the supervising
// context is alive. Each close schedules exactly one retry.
type ReconnectPolicy struct {
	Delay time.Duration
}

// DefaultReconnectPolicy matches the relay's browser client.
func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{Delay: 3 * time.Second}
}

// Dialer opens a relay connection. Swapped out in tests.
type Dialer interface {
	Dial(ctx context.Context, url string) (types.Conn, error)
}

// Client owns one logical connection to the relay. It translates user
// input into outbound frames and inbound frames into Renderer calls,
// recovering automatically from transient disconnects.
type Client struct {
	wsURL    string
	toolsURL string
	dialer   Dialer
	renderer Renderer
	http     *http.Client
	policy   ReconnectPolicy
	logger   zerolog.Logger

	mu    sync.Mutex
	state ConnectionState
	conn  types.Conn
}

// Option customizes a Client.
type Option func(*Client)

// WithDialer replaces the WebSocket dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dialer = d }
}

// WithReconnectPolicy replaces the reconnect policy.
func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(c *Client) { c.policy = p }
}

// WithHTTPClient replaces the HTTP client used for the tools fetch.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithLogger replaces the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a relay client for the page at baseURL. The WebSocket
// target is derived from the base: same host, /ws path, wss when the
// base is https and ws otherwise.
func New(baseURL string, renderer Renderer, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("relayclient: invalid base URL: %w", err)
	}
	wsScheme := "ws"
	if u.Scheme == "https" {
		wsScheme = "wss"
	}

	c := &Client{
		wsURL:    wsScheme + "://" + u.Host + "/ws",
		toolsURL: u.Scheme + "://" + u.Host + "/api/tools",
		dialer:   &websocketDialer{},
		renderer: renderer,
		http:     http.DefaultClient,
		policy:   DefaultReconnectPolicy(),
		logger:   zerolog.Nop(),
		state:    StateClosed,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Run supervises the connection until ctx is cancelled: dial, pump
// inbound frames, dispose the dead connection, wait the fixed delay,
// repeat. There is no retry limit and no terminal state besides
// cancellation; the worst failure mode is an endlessly reconnecting
// client.
func (c *Client) Run(ctx context.Context) error {
	for {
		c.setState(StateConnecting)

		conn, err := c.dialer.Dial(ctx, c.wsURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("url", c.wsURL).Msg("dial failed")
		} else {
			c.setConn(conn)
			c.setState(StateOpen)

			connCtx, cancel := context.WithCancel(ctx)
			go func() {
				<-connCtx.Done()
				conn.Close()
			}()
			c.readLoop(conn)
			cancel()

			// Dispose explicitly before a replacement is dialed.
			c.setConn(nil)
		}

		c.setState(StateClosed)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.policy.Delay):
		}
	}
}

// SendMessage trims and sends one user message. It is a silent no-op
// when the trimmed text is empty or the connection is not open;
// otherwise the message is rendered as a user turn and transmitted
// exactly once, with no acknowledgement tracking or retry.
func (c *Client) SendMessage(text string) bool {
	content := strings.TrimSpace(text)
	if content == "" {
		return false
	}

	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if conn == nil || state != StateOpen {
		return false
	}

	c.renderer.UserTurn(content)
	if err := conn.WriteJSON(types.NewMessage(content)); err != nil {
		// The read loop observes the dead connection and schedules
		// the reconnect; the message itself is dropped.
		c.logger.Warn().Err(err).Msg("send failed")
	}
	return true
}

// LoadTools fetches the tool catalog once over plain HTTP. Failures
// render inline in the tools panel and are not retried.
func (c *Client) LoadTools(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.toolsURL, nil)
	if err != nil {
		c.renderer.ToolsError("Failed to load tools")
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.renderer.ToolsError("Failed to load tools")
		return err
	}
	defer resp.Body.Close()

	var list types.ToolList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		c.renderer.ToolsError("Failed to load tools")
		return err
	}
	if list.Error != "" {
		c.renderer.ToolsError(list.Error)
		return nil
	}
	c.renderer.Tools(list.Tools)
	return nil
}

func (c *Client) readLoop(conn types.Conn) {
	for {
		var raw json.RawMessage
		if err := conn.ReadJSON(&raw); err != nil {
			return
		}
		c.handleEvent(raw)
	}
}

// handleEvent decodes one inbound frame and dispatches to the
// renderer. Unknown frame types are logged and dropped so newer
// server events never break the session.
func (c *Client) handleEvent(raw json.RawMessage) {
	ev, err := types.DecodeEvent(raw)
	if err != nil {
		c.logger.Warn().Err(err).Msg("unparseable frame")
		return
	}
	switch ev.Type {
	case types.EventAssistant:
		c.renderer.AssistantTurn(ev.Content)
	case types.EventToolCall:
		c.renderer.ToolCall(ev.ToolName, ev.Arguments)
	case types.EventToolResult:
		c.renderer.ToolResult(ev.ToolName, ev.Result)
	case types.EventToolError:
		c.renderer.ToolError(ev.ToolName, ev.Error)
	case types.EventError:
		c.renderer.Error(ev.Content)
	case types.EventWarning:
		c.renderer.Warning(ev.Content)
	case types.EventUnknown:
		c.logger.Debug().Str("type", ev.RawType).Msg("unknown message type")
	}
}

func (c *Client) setState(state ConnectionState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.renderer.Status(state)
}

func (c *Client) setConn(conn types.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// websocketDialer is the production dialer.
type websocketDialer struct{}

func (d *websocketDialer) Dial(ctx context.Context, url string) (types.Conn, error) {
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}
