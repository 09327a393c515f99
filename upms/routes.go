package upms

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	"github.com/nimbleforge/forge/internal/middleware/ratelimit"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
	"github.com/nimbleforge/forge/upms/handlers"
)

// Resources checked by the permission middleware.
const (
	ResourceUsers = "upms/users"
	ResourceRoles = "upms/roles"

	ActionRead  = "read"
	ActionWrite = "write"
)

type Handlers struct {
	UserHandler *handlers.UserHandler
	RoleHandler *handlers.RoleHandler
	AuthHandler *handlers.AuthHandler

	// RateLimitStorage holds limiter counters; nil keeps them in process.
	RateLimitStorage fiber.Storage
}

func endpointLimits(cfg platformconfig.SecurityConfig) *ratelimit.EndpointLimits {
	limits := ratelimit.DefaultEndpointLimits()
	if cfg.LoginMaxAttempts > 0 {
		limits.LoginMaxRequests = cfg.LoginMaxAttempts
	}
	if cfg.LoginWindow > 0 {
		limits.LoginWindowDuration = cfg.LoginWindow
	}
	return &limits
}

// Authorize returns middleware admitting callers allowed to act on resource.
type Authorize func(resource, action string) fiber.Handler

// RegisterRoutes wires UPMS endpoints under /upms. Login is public; every
// other route needs a valid access token.
func RegisterRoutes(app fiber.Router, h *Handlers, cfg *platformconfig.Config, authorize Authorize) {
	group := app.Group("/upms")
	limits := endpointLimits(cfg.Security)
	group.Post("/login", ratelimit.NewLoginLimiter(limits, h.RateLimitStorage), h.AuthHandler.Login)

	jwt := authjwt.New(authjwt.Config{PublicKey: cfg.JWT.PublicKey})

	group.Post("/users", jwt, authorize(ResourceUsers, ActionWrite), h.UserHandler.Create)
	group.Post("/users/query", jwt, authorize(ResourceUsers, ActionRead), h.UserHandler.Query)
	group.Get("/users/:id", jwt, authorize(ResourceUsers, ActionRead), h.UserHandler.Get)
	group.Put("/users/:id/status", jwt, authorize(ResourceUsers, ActionWrite), h.UserHandler.UpdateStatus)
	group.Put("/users/:id/roles", jwt, authorize(ResourceUsers, ActionWrite), h.UserHandler.AssignRoles)
	group.Put("/users/:id/password", jwt, ratelimit.NewPasswordChangeLimiter(limits, h.RateLimitStorage), authorize(ResourceUsers, ActionWrite), h.UserHandler.ChangePassword)

	group.Post("/roles", jwt, authorize(ResourceRoles, ActionWrite), h.RoleHandler.Create)
	group.Post("/roles/query", jwt, authorize(ResourceRoles, ActionRead), h.RoleHandler.Query)
	group.Post("/roles/:code/permissions", jwt, authorize(ResourceRoles, ActionWrite), h.RoleHandler.Grant)
	group.Delete("/roles/:code/permissions", jwt, authorize(ResourceRoles, ActionWrite), h.RoleHandler.Revoke)

	group.Get("/permissions/check", jwt, h.AuthHandler.Check)
}
