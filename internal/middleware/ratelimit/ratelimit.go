// Package ratelimit throttles credential endpoints per client IP.
package ratelimit

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/nimbleforge/forge/internal/pkg/log"
)

// EndpointLimits holds the request budget per window for each endpoint type.
type EndpointLimits struct {
	// Login attempts: 5 per 15 minutes per IP
	LoginMaxRequests    int
	LoginWindowDuration time.Duration

	// Password changes: 3 per hour per IP
	PasswordChangeMaxRequests    int
	PasswordChangeWindowDuration time.Duration
}

func DefaultEndpointLimits() EndpointLimits {
	return EndpointLimits{
		LoginMaxRequests:    5,
		LoginWindowDuration: 15 * time.Minute,

		PasswordChangeMaxRequests:    3,
		PasswordChangeWindowDuration: 1 * time.Hour,
	}
}

type EndpointType int

const (
	EndpointLogin EndpointType = iota
	EndpointPasswordChange
)

// Config holds the configuration for rate limiting middleware
type Config struct {
	EndpointType EndpointType

	// Limits falls back to DefaultEndpointLimits when nil.
	Limits *EndpointLimits

	// Storage shares counters between instances; nil keeps them in process.
	Storage fiber.Storage

	// Next skips the middleware when it returns true.
	Next func(c *fiber.Ctx) bool

	// KeyGenerator defaults to client IP + path.
	KeyGenerator func(c *fiber.Ctx) string

	LimitReached func(c *fiber.Ctx) error
}

func configDefault(config Config) Config {
	if config.Limits == nil {
		limits := DefaultEndpointLimits()
		config.Limits = &limits
	}

	if config.KeyGenerator == nil {
		config.KeyGenerator = func(c *fiber.Ctx) string {
			return "ratelimit:" + c.IP() + ":" + c.Path()
		}
	}

	if config.LimitReached == nil {
		config.LimitReached = func(c *fiber.Ctx) error {
			endpointName := getEndpointName(config.EndpointType)
			windowDuration := getWindowDuration(config.EndpointType, config.Limits)

			log.WarnWithContext(c.UserContext(), "[RateLimit] Rate limit exceeded for %s from IP: %s", endpointName, c.IP())

			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"code":       "RATE_LIMIT_EXCEEDED",
				"message":    fmt.Sprintf("Too many %s attempts. Please try again later.", endpointName),
				"retryAfter": int(windowDuration.Seconds()),
			})
		}
	}

	return config
}

func getEndpointName(endpointType EndpointType) string {
	switch endpointType {
	case EndpointLogin:
		return "login"
	case EndpointPasswordChange:
		return "password change"
	default:
		return "unknown"
	}
}

func getMaxRequests(endpointType EndpointType, limits *EndpointLimits) int {
	switch endpointType {
	case EndpointLogin:
		return limits.LoginMaxRequests
	case EndpointPasswordChange:
		return limits.PasswordChangeMaxRequests
	default:
		return 5
	}
}

func getWindowDuration(endpointType EndpointType, limits *EndpointLimits) time.Duration {
	switch endpointType {
	case EndpointLogin:
		return limits.LoginWindowDuration
	case EndpointPasswordChange:
		return limits.PasswordChangeWindowDuration
	default:
		return 15 * time.Minute
	}
}

// New creates a new rate limiting middleware handler
func New(config Config) fiber.Handler {
	cfg := configDefault(config)

	return limiter.New(limiter.Config{
		Max:          getMaxRequests(cfg.EndpointType, cfg.Limits),
		Expiration:   getWindowDuration(cfg.EndpointType, cfg.Limits),
		KeyGenerator: cfg.KeyGenerator,
		LimitReached: cfg.LimitReached,
		Next:         cfg.Next,
		Storage:      cfg.Storage,
	})
}

func NewLoginLimiter(limits *EndpointLimits, storage fiber.Storage) fiber.Handler {
	return New(Config{EndpointType: EndpointLogin, Limits: limits, Storage: storage})
}

func NewPasswordChangeLimiter(limits *EndpointLimits, storage fiber.Storage) fiber.Handler {
	return New(Config{EndpointType: EndpointPasswordChange, Limits: limits, Storage: storage})
}
