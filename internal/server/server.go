// Package server builds the HTTP application shared by every module.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/nimbleforge/forge/internal/middleware/requestid"
	"github.com/nimbleforge/forge/internal/pkg/log"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
)

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Server struct {
	app    *fiber.App
	cfg    *platformconfig.Config
	checks map[string]HealthCheck
}

// New creates the fiber app with request IDs, CORS, the JSON error handler
// and GET /health.
func New(cfg *platformconfig.Config) *Server {
	s := &Server{cfg: cfg, checks: map[string]HealthCheck{}}
	s.app = fiber.New(fiber.Config{
		AppName:               "forge",
		ErrorHandler:          ErrorHandler,
		DisableStartupMessage: !cfg.Server.Debug,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})

	s.app.Use(requestid.New())
	s.app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.WebDomain,
		AllowCredentials: true,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, " + requestid.HeaderRequestID,
		AllowMethods:     "GET, POST, PUT, DELETE, PATCH, OPTIONS",
	}))
	s.app.Get("/health", s.health)
	return s
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Router returns the group module routes mount on, honouring the base route.
func (s *Server) Router() fiber.Router {
	if base := s.cfg.Server.BaseRoute; base != "" && base != "/" {
		return s.app.Group(base)
	}
	return s.app
}

// AddHealthCheck registers a named dependency check for /health.
func (s *Server) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *Server) health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), 5*time.Second)
	defer cancel()

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	results := make(map[string]string, len(names))
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			log.WarnWithContext(ctx, "health check %s failed: %v", name, err)
			results[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{"status": overall, "checks": results})
}

// Listen serves on the configured host and port until Shutdown.
func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	log.Info("forge listening on %s", addr)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// ErrorHandler renders errors that escaped the handlers as JSON. A response
// body already written by a handler is left untouched.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	if len(c.Response().Body()) > 0 {
		return nil
	}

	message := err.Error()
	if code == fiber.StatusInternalServerError {
		log.ErrorWithContext(c.UserContext(), "[ErrorHandler] %s %s (request %s): %v", c.Method(), c.Path(), requestid.GetRequestID(c), err)
		message = "An unexpected error occurred"
	}
	return c.Status(code).JSON(fiber.Map{
		"code":    http.StatusText(code),
		"message": message,
	})
}
