package authz

import (
	"github.com/gofiber/fiber/v2"
	"github.com/nimbleforge/forge/internal/middleware/authjwt"
	"github.com/nimbleforge/forge/internal/pkg/log"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
)

// RequirePermission admits authenticated callers allowed to perform action
// on resource. It must run after the JWT middleware.
func (a *Authorizer) RequirePermission(resource, action string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := authjwt.CurrentUser(c)
		if !ok {
			return upmserrors.HandleUnauthorized(c, "authentication required")
		}
		allowed, err := a.Enforce(user.UserID, resource, action)
		if err != nil {
			log.ErrorWithContext(c.UserContext(), "authz: enforce %s %s for %s: %v", resource, action, user.UserID, err)
			return upmserrors.HandleServiceError(c, err)
		}
		if !allowed {
			log.WarnWithContext(c.UserContext(), "authz: %s denied %s on %s", user.Username, action, resource)
			return upmserrors.HandleForbidden(c, "permission denied")
		}
		return c.Next()
	}
}
