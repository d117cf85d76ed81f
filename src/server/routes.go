package server

import (
	"context"
	"strings"

	"github.com/fasthttp/websocket"
	"github.com/fhirchat/relay/src/hub"
	"github.com/fhirchat/relay/src/types"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
)

func (s *Server) registerRoutes() {
	s.app.Get("/", s.handleIndex)
	s.app.Get("/static/chat.js", s.handleScript)
	s.app.Get("/api/tools", s.handleTools)
	s.app.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleIndex(c fiber.Ctx) error {
	c.Type("html")
	return c.Send(chatPage)
}

func (s *Server) handleScript(c fiber.Ctx) error {
	c.Type("js")
	return c.Send(chatScript)
}

// handleTools mirrors the tool catalog from the MCP gateway. Failures
// become an error field in the body, never an HTTP error, so the
// browser panel can render them inline.
func (s *Server) handleTools(c fiber.Ctx) error {
	if s.lister == nil {
		return c.JSON(fiber.Map{"error": "MCP client not connected"})
	}
	tools, err := s.lister.ListTools(context.Background())
	if err != nil {
		s.logger.Error().Err(err).Msg("error listing tools")
		return c.JSON(fiber.Map{"error": err.Error()})
	}
	if tools == nil {
		tools = []types.ToolDescriptor{}
	}
	return c.JSON(types.ToolList{Tools: tools})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"sessions":  s.hub.SessionCount(),
		"watched":   len(s.hub.Watched()),
	})
}

// wsHandler returns a raw fasthttp handler for WebSocket upgrades.
func (s *Server) wsHandler() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		upgrade := string(ctx.Request.Header.Peek("Upgrade"))
		if !strings.EqualFold(upgrade, "websocket") {
			ctx.SetStatusCode(fasthttp.StatusUpgradeRequired)
			ctx.SetBodyString(`{"error":"upgrade_required","message":"WebSocket upgrade required"}`)
			return
		}

		sessionID := uuid.New().String()
		h := s.hub
		logger := s.logger

		err := s.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
			session := hub.NewSession(sessionID, &fasthttpConn{conn}, h)
			h.Register(session)
			go session.WritePump()
			session.ReadPump()
		})
		if err != nil {
			logger.Error().Err(err).Msg("websocket upgrade failed")
		}
	}
}

// fasthttpConn wraps fasthttp/websocket.Conn to satisfy types.Conn.
type fasthttpConn struct {
	conn *websocket.Conn
}

func (f *fasthttpConn) WriteJSON(v any) error { return f.conn.WriteJSON(v) }
func (f *fasthttpConn) ReadJSON(v any) error  { return f.conn.ReadJSON(v) }
func (f *fasthttpConn) Close() error          { return f.conn.Close() }
