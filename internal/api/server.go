// Package api provides the HTTP status API of the project builder.
package api

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	perrors "github.com/p-blackswan/project-builder/internal/errors"
	"github.com/p-blackswan/project-builder/internal/health"
	"github.com/p-blackswan/project-builder/internal/metrics"
	"github.com/p-blackswan/project-builder/internal/requestid"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	Auth        AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	BodyLimit   int
}

// Server is the status API Fiber application.
type Server struct {
	app     *fiber.App
	metrics *metrics.Metrics
	logger  zerolog.Logger
	config  ServerConfig
}

// NewServer creates and configures a new API server.
func NewServer(
	cfg ServerConfig,
	svc Service,
	checker *health.Checker,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	bodyLimit := cfg.BodyLimit
	if bodyLimit <= 0 {
		bodyLimit = 1 << 20
	}

	s := &Server{
		metrics: metricsCollector,
		logger:  logger.With().Str("component", "api_server").Logger(),
		config:  cfg,
	}
	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          s.errorHandler,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             bodyLimit,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	s.setupMiddleware(cfg)
	s.setupRoutes(NewHandlers(svc, logger), checker)
	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig) {
	// Request ID: honour a well-formed client id, otherwise mint one.
	s.app.Use(func(c *fiber.Ctx) error {
		reqID := requestid.Accept(c.Get(requestid.Header))
		c.Set(requestid.Header, reqID)
		c.Locals("request_id", reqID)
		c.SetUserContext(requestid.WithRequestID(c.UserContext(), reqID))
		return c.Next()
	})

	// Access log and request metrics. Registered before the limiter and auth so
	// rejected requests are counted too.
	s.app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if err != nil {
			// Render now so the status below is the one the client sees.
			if herr := s.errorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		route := c.Route().Path
		if s.metrics != nil {
			s.metrics.RecordRequest(route, strconv.Itoa(status))
		}
		if isProbe(c.Path()) {
			return nil
		}

		ev := s.logger.Info()
		if status >= fiber.StatusInternalServerError {
			ev = s.logger.Error()
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Str("route", route).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Str("owner", ownerOf(c)).
			Str("request_id", requestid.FromContext(c.UserContext())).
			Msg("api request")
		return nil
	})

	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORSOrigins,
			AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Request-ID, X-Owner-ID",
			AllowMethods:     "GET, POST, DELETE, OPTIONS",
			AllowCredentials: cfg.CORSOrigins != "*",
			ExposeHeaders:    "X-Request-ID, Location",
		}))
	}

	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	s.app.Use(NewAuthMiddleware(cfg.Auth, s.logger))
}

func (s *Server) setupRoutes(h *Handlers, checker *health.Checker) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", health.Liveness)
	if checker != nil {
		s.app.Get("/readyz", checker.Readiness)
	} else {
		s.app.Get("/readyz", health.Liveness)
	}

	if s.metrics != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(s.metrics.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	v1.Post("/projects", h.CreateProject)
	v1.Get("/projects", h.ListProjects)
	v1.Get("/projects/:id", h.GetProject)
	v1.Delete("/projects/:id", h.DeleteProject)
	v1.Get("/projects/:id/versions/:n", h.GetVersion)
	v1.Post("/projects/:id/amend", h.AmendProject)
	v1.Post("/projects/:id/stop", h.StopProject)
	v1.Get("/projects/:id/runs", h.ListRuns)
	v1.Post("/projects/:id/conversation", h.AddTurn)

	v1.Post("/questionnaire", h.Questionnaire)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":5000"
	}
	s.logger.Info().Str("addr", addr).Msg("api server starting")
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// until timeout.
func (s *Server) Shutdown(timeout time.Duration) error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.ShutdownWithTimeout(timeout)
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

// errorHandler renders every handler error as a problem detail.
func (s *Server) errorHandler(c *fiber.Ctx, err error) error {
	p := classify(err)

	detail := err.Error()
	if p.status >= fiber.StatusInternalServerError {
		s.logger.Error().
			Err(err).
			Int("status", p.status).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")
		if p == internalProblem {
			// Don't leak internal details.
			detail = "An internal error occurred"
		}
		if s.metrics != nil {
			s.metrics.RecordError("api", perrors.Kind(err))
		}
	}

	return problemResponse(c, p.status, p.typ, p.title, detail)
}
