// Package web provides the operator API for the motion dispatcher
package web

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/go-motionexec/internal/log"
	"github.com/teslashibe/go-motionexec/pkg/cloud"
	"github.com/teslashibe/go-motionexec/pkg/controllers"
	"github.com/teslashibe/go-motionexec/pkg/execution"
	"github.com/teslashibe/go-motionexec/pkg/gate"
	"github.com/teslashibe/go-motionexec/pkg/hub"
	"github.com/teslashibe/go-motionexec/pkg/journal"
	"github.com/teslashibe/go-motionexec/pkg/markers"
	"github.com/teslashibe/go-motionexec/pkg/protocol"
)

// Option configures optional collaborators of the server
type Option func(*Server)

// WithJournal serves execution history from j
func WithJournal(j *journal.Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithControllerChecker serves controller checks from c
func WithControllerChecker(c *controllers.Checker) Option {
	return func(s *Server) { s.checker = c }
}

// WithMarkers serves drawn markers from v and streams markerHub on /ws/markers.
// The server runs markerHub.
func WithMarkers(v *markers.Visualizer, markerHub *hub.Hub) Option {
	return func(s *Server) {
		s.markers = v
		s.markerHub = markerHub
	}
}

// WithBridges mounts the controller-bridge hub routes
func WithBridges(b *cloud.Hub) Option {
	return func(s *Server) { s.bridges = b }
}

// WithLogger sets the logger
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the operator API server
type Server struct {
	app    *fiber.App
	addr   string
	logger *slog.Logger

	dispatcher *execution.Dispatcher
	gate       *gate.Gate

	journal   *journal.Journal
	checker   *controllers.Checker
	markers   *markers.Visualizer
	markerHub *hub.Hub
	bridges   *cloud.Hub

	// Hubs for websocket broadcast
	statusHub *hub.Hub

	// Dispatches run one at a time
	dispatchMu sync.Mutex

	// Base context for blocking dispatches, cancelled on shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewServer creates the operator API server
func NewServer(addr string, d *execution.Dispatcher, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		addr:       addr,
		dispatcher: d,
		gate:       d.Gate(),
		ctx:        ctx,
		cancel:     cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = log.WithComponent("web")
	}
	s.statusHub = hub.New("gate", s.logger)

	s.gate.OnChange(func(st gate.Status) {
		msg, err := protocol.NewMessage(protocol.TypeGateStatus, st)
		if err != nil {
			return
		}
		_ = s.statusHub.BroadcastMessage(msg)
	})

	app := fiber.New(fiber.Config{
		AppName:               "motionexec",
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	app.Use(recover.New())
	app.Use(cors.New())

	// API routes
	api := app.Group("/api")
	api.Get("/health", s.handleHealth)

	api.Get("/gate", s.handleGateStatus)
	api.Post("/gate/ready", s.handleGateReady)
	api.Post("/gate/autonomous", s.handleGateAutonomous)
	api.Post("/gate/full_autonomous", s.handleGateFullAutonomous)
	api.Post("/gate/stop", s.handleGateStop)

	api.Post("/trajectories", s.handleSendTrajectory)
	api.Post("/pose", s.handleSendPose)
	api.Post("/stop", s.handleStop)

	api.Get("/executions", s.handleListExecutions)
	api.Get("/executions/:id", s.handleGetExecution)
	api.Get("/controllers/check", s.handleCheckControllers)
	api.Get("/markers", s.handleMarkers)

	if s.bridges != nil {
		s.bridges.RegisterAPIRoutes(api)
		s.bridges.RegisterRoutes(app)
	}

	// WebSocket upgrade middleware
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})

	app.Get("/ws/gate", websocket.New(s.handleGateWS))
	if s.markerHub != nil {
		app.Get("/ws/markers", websocket.New(s.handleMarkersWS))
	}

	s.app = app
	return s
}

// App returns the underlying fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

// StatusHub returns the gate status hub
func (s *Server) StatusHub() *hub.Hub {
	return s.statusHub
}

// Start runs the hubs and serves until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	s.StartHubs(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("operator API listening", "addr", s.addr)
		errCh <- s.app.Listen(s.addr)
	}()

	select {
	case err := <-errCh:
		s.cancel()
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// StartHubs runs the websocket hubs until ctx is cancelled
func (s *Server) StartHubs(ctx context.Context) {
	go s.statusHub.Run(ctx)
	if s.markerHub != nil {
		go s.markerHub.Run(ctx)
	}
}

// Shutdown cancels pending dispatches and stops the server
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
