package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fhirchat/relay/src/types"
	"github.com/rs/zerolog"
)

const protocolVersion = "2024-11-05"

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// Client talks to an MCP gateway over the HTTP+SSE transport: a GET on
// the SSE endpoint yields an "endpoint" event naming the POST target,
// requests are POSTed there as JSON-RPC, and responses arrive back on
// the event stream correlated by request id.
type Client struct {
	cfg    *Config
	http   *http.Client
	logger zerolog.Logger

	mu        sync.Mutex
	connected bool
	endpoint  string
	pending   map[int64]chan rpcResponse
	nextID    atomic.Int64
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewClient creates an MCP client. A nil config uses DefaultConfig.
func NewClient(cfg *Config, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{},
		logger:  logger.With().Str("component", "mcp-client").Logger(),
		pending: make(map[int64]chan rpcResponse),
	}
}

// Connect opens the event stream and performs the initialize handshake.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.mu.Unlock()

	if err := c.cfg.Validate(); err != nil {
		return err
	}

	// The stream outlives the Connect call; it is bounded by Close,
	// not by the caller's context.
	streamCtx, cancel := context.WithCancel(context.Background())

	req, err := http.NewRequestWithContext(streamCtx, http.MethodGet, c.cfg.ServerURL, nil)
	if err != nil {
		cancel()
		return &ConnectionError{Err: err}
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		cancel()
		return &ConnectionError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return &ConnectionError{Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	endpointCh := make(chan string, 1)
	c.wg.Add(1)
	go c.readStream(resp, endpointCh)

	handshakeCtx, done := context.WithTimeout(ctx, c.cfg.Timeout)
	defer done()

	select {
	case ep := <-endpointCh:
		resolved, err := c.resolveEndpoint(ep)
		if err != nil {
			cancel()
			return &ConnectionError{Err: err}
		}
		c.mu.Lock()
		c.endpoint = resolved
		c.cancel = cancel
		c.connected = true
		c.mu.Unlock()
	case <-handshakeCtx.Done():
		cancel()
		return &ConnectionError{Err: fmt.Errorf("no endpoint event before timeout")}
	}

	if err := c.initialize(handshakeCtx); err != nil {
		c.teardown()
		return &ConnectionError{Err: err}
	}

	c.logger.Info().Str("server_url", c.cfg.ServerURL).Msg("connected to MCP server")
	return nil
}

// Close shuts down the event stream and marks the client disconnected.
func (c *Client) Close() error {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.mu.Unlock()

	c.teardown()
	c.logger.Info().Msg("disconnected from MCP server")
	return nil
}

func (c *Client) teardown() {
	c.mu.Lock()
	cancel := c.cancel
	c.connected = false
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	c.wg.Wait()
}

// ListTools returns the tool catalog exposed by the gateway.
func (c *Client) ListTools(ctx context.Context) ([]types.ToolDescriptor, error) {
	result, err := c.call(ctx, "tools/list", struct{}{})
	if err != nil {
		return nil, &OperationError{Op: "list tools", Err: err}
	}
	var parsed struct {
		Tools []types.ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &OperationError{Op: "list tools", Err: err}
	}
	c.logger.Debug().Int("count", len(parsed.Tools)).Msg("listed tools")
	return parsed.Tools, nil
}

// ContentItem is one element of a tool result's content array.
type ContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the gateway's response to a tools/call request.
type ToolResult struct {
	Content []ContentItem `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// Flatten reduces a tool result to a single string: the first content
// element's text when present, otherwise the indented JSON of the
// content array. The text itself is frequently JSON; unwrapping that
// is left to the renderer.
func (r *ToolResult) Flatten() string {
	if len(r.Content) > 0 && r.Content[0].Text != "" {
		return r.Content[0].Text
	}
	data, err := json.MarshalIndent(r.Content, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", r.Content)
	}
	return string(data)
}

// CallTool invokes a named tool with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (*ToolResult, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}
	c.logger.Debug().Str("tool", name).Msg("calling tool")

	params := map[string]any{"name": name, "arguments": arguments}
	result, err := c.call(ctx, "tools/call", params)
	if err != nil {
		return nil, &OperationError{Op: fmt.Sprintf("call tool %s", name), Err: err}
	}
	var parsed ToolResult
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, &OperationError{Op: fmt.Sprintf("call tool %s", name), Err: err}
	}
	return &parsed, nil
}

func (c *Client) initialize(ctx context.Context) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "fhirchat-relay",
			"version": "0.1.0",
		},
	}
	if _, err := c.call(ctx, "initialize", params); err != nil {
		return err
	}
	return c.notify(ctx, "notifications/initialized")
}

// call issues a JSON-RPC request and waits for its response on the
// event stream.
func (c *Client) call(ctx context.Context, method string, params any) (json.RawMessage, error) {
	c.mu.Lock()
	if !c.connected {
		c.mu.Unlock()
		return nil, ErrNotConnected
	}
	endpoint := c.endpoint
	c.mu.Unlock()

	id := c.nextID.Add(1)
	ch := make(chan rpcResponse, 1)
	c.mu.Lock()
	c.pending[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	callCtx, done := context.WithTimeout(ctx, c.cfg.Timeout)
	defer done()

	if err := c.post(callCtx, endpoint, rpcRequest{JSONRPC: "2.0", ID: &id, Method: method, Params: params}); err != nil {
		return nil, err
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-callCtx.Done():
		return nil, fmt.Errorf("%s: %w", method, callCtx.Err())
	}
}

func (c *Client) notify(ctx context.Context, method string) error {
	c.mu.Lock()
	endpoint := c.endpoint
	c.mu.Unlock()
	return c.post(ctx, endpoint, rpcRequest{JSONRPC: "2.0", Method: method})
}

func (c *Client) post(ctx context.Context, endpoint string, req rpcRequest) error {
	body, err := json.Marshal(req)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("unexpected status %d posting %s", resp.StatusCode, req.Method)
	}
	return nil
}

// readStream parses SSE frames off the wire. The first "endpoint"
// event is reported on endpointCh; "message" events are JSON-RPC
// responses routed to their pending call.
func (c *Client) readStream(resp *http.Response, endpointCh chan<- string) {
	defer c.wg.Done()
	defer resp.Body.Close()

	var event, data string
	endpointSent := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if data != "" {
				if event == "endpoint" && !endpointSent {
					endpointSent = true
					endpointCh <- data
				} else if event == "" || event == "message" {
					c.routeResponse(data)
				}
			}
			event, data = "", ""
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data != "" {
				data += "\n"
			}
			data += strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		}
	}
}

func (c *Client) routeResponse(data string) {
	var resp rpcResponse
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		c.logger.Debug().Err(err).Msg("unparseable stream message")
		return
	}
	c.mu.Lock()
	ch, ok := c.pending[resp.ID]
	c.mu.Unlock()
	if ok {
		ch <- resp
	}
}

func (c *Client) resolveEndpoint(ep string) (string, error) {
	base, err := url.Parse(c.cfg.ServerURL)
	if err != nil {
		return "", err
	}
	ref, err := url.Parse(ep)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(ref).String(), nil
}
