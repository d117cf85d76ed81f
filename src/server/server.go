package server

import (
	"context"
	"sync"

	"github.com/fasthttp/websocket"
	"github.com/fhirchat/relay/config"
	"github.com/fhirchat/relay/src/agent"
	"github.com/fhirchat/relay/src/bridge"
	"github.com/fhirchat/relay/src/hub"
	"github.com/fhirchat/relay/src/types"
	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/valyala/fasthttp"
)

// ToolLister exposes the MCP gateway's tool catalog. Satisfied by
// *mcp.Client.
type ToolLister interface {
	ListTools(ctx context.Context) ([]types.ToolDescriptor, error)
}

// Server terminates the WebSocket relay and the HTTP surface around
// it: the embedded chat page, the tool catalog endpoint, and
// connection stats.
type Server struct {
	cfg      *config.Config
	hub      *hub.Hub
	agent    *agent.Agent
	lister   ToolLister
	bridge   bridge.Bridge
	logger   zerolog.Logger
	app      *fiber.App
	upgrader websocket.FastHTTPUpgrader

	mu            sync.Mutex
	conversations map[string]*agent.Conversation
}

// New wires a relay server. The agent and lister may come from the
// same MCP-backed stack or from fakes in tests.
func New(cfg *config.Config, h *hub.Hub, ag *agent.Agent, lister ToolLister, logger zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		hub:    h,
		agent:  ag,
		lister: lister,
		logger: logger.With().Str("component", "server").Logger(),
		app:    fiber.New(),
		upgrader: websocket.FastHTTPUpgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		conversations: make(map[string]*agent.Conversation),
	}
	s.registerRoutes()
	s.hub.SetHandler(s.handleUserMessage)
	s.hub.OnDisconnection(s.dropConversation)
	return s
}

// App returns the underlying fiber app, used by tests.
func (s *Server) App() *fiber.App { return s.app }

// StartBridge attempts to connect the Redis event bridge. If Redis is
// not reachable, the relay runs in standalone mode.
func (s *Server) StartBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Shutdown stops the bridge and the hub event loop.
func (s *Server) Shutdown() {
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.Stop()
}

// Handler returns the root fasthttp handler: the WebSocket upgrade at
// /ws, everything else through the fiber app. The upgrade must be
// registered at this level since fiber v3 does not expose
// *fasthttp.RequestCtx.
func (s *Server) Handler() fasthttp.RequestHandler {
	appHandler := s.app.Handler()
	wsHandler := s.wsHandler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}
}

// Listen serves the relay on addr until the process exits.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("relay listening")
	return fasthttp.ListenAndServe(addr, s.Handler())
}

// handleUserMessage runs one agent turn for a session. The hub has
// already trimmed the content and dropped empty or non-message frames.
func (s *Server) handleUserMessage(sessionID, content string) {
	conv := s.conversation(sessionID)

	emit := func(ev types.Event) {
		s.hub.Emit(sessionID, ev)
	}

	if err := s.agent.Run(context.Background(), conv, content, emit); err != nil {
		s.logger.Error().Err(err).Str("session_id", sessionID).Msg("agent turn failed")
		emit(types.Error(err.Error()))
	}
}

func (s *Server) conversation(sessionID string) *agent.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[sessionID]
	if !ok {
		conv = agent.NewConversation()
		conv.StartWithSystemMessage(agent.SystemPrompt)
		s.conversations[sessionID] = conv
	}
	return conv
}

func (s *Server) dropConversation(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, sessionID)
}
