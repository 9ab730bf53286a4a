// Package web exposes the dispatch engine over HTTP and websockets: the
// telephony bridge socket, the observer fan-out, and the dispatcher console
// API (live call snapshots, the approval channel, the agent-mode toggle).
package web

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/firstlinehq/go-dispatch/internal/log"
	"github.com/firstlinehq/go-dispatch/pkg/hub"
	"github.com/firstlinehq/go-dispatch/pkg/session"
)

// HealthCheck probes one capability dependency.
type HealthCheck func(ctx context.Context) error

// Server serves the bridge, observer, and console API endpoints.
type Server struct {
	app  *fiber.App
	port string

	registry *session.Registry
	bridge   *Bridge
	observe  *hub.Hub

	// Named capability probes, reported by /api/health.
	checks map[string]HealthCheck
}

// NewServer wires the routes. The observe hub must be the same one the
// registry publishes events to.
func NewServer(port string, reg *session.Registry, bridge *Bridge, observe *hub.Hub, checks map[string]HealthCheck) *Server {
	s := &Server{
		port:     port,
		registry: reg,
		bridge:   bridge,
		observe:  observe,
		checks:   checks,
	}

	app := fiber.New(fiber.Config{
		AppName:               "dispatchd",
		DisableStartupMessage: true,
	})

	// CORS for the dispatcher console during development
	app.Use(cors.New())

	api := app.Group("/api")
	api.Get("/calls", s.handleListCalls)
	api.Get("/calls/:id", s.handleGetCall)
	api.Post("/calls/:id/actions/:actionID", s.handleResolveAction)
	api.Get("/mode", s.handleGetMode)
	api.Put("/mode", s.handleSetMode)
	api.Get("/health", s.handleHealth)

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/bridge", websocket.New(s.handleBridgeWS))
	app.Get("/ws/observe", websocket.New(s.handleObserveWS))

	s.app = app
	return s
}

// Start runs the observer hub and blocks on the listener.
func (s *Server) Start() error {
	go s.observe.Run()
	log.Info("listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown gracefully stops the web server.
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// handleBridgeWS hands the connection to the bridge read loop.
func (s *Server) handleBridgeWS(conn *websocket.Conn) {
	log.Info("bridge connected", "remote", conn.RemoteAddr().String())
	s.bridge.HandleConn(conn)
	log.Info("bridge disconnected", "remote", conn.RemoteAddr().String())
}

// handleObserveWS registers an observer with the fan-out hub. Observers are
// read-only; anything they send is discarded by the client read pump.
func (s *Server) handleObserveWS(conn *websocket.Conn) {
	client := hub.NewClient(s.observe, conn)
	client.Run()
}
