package authjwt

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/types"
)

// Config defines the config for the JWT middleware.
type Config struct {
	// The EC public key (PEM) for validating ES256 tokens.
	PublicKey string
	// The claim key where the UserContext is stored.
	ClaimKey string
	// The fiber locals key to store the UserContext.
	UserCtxName string
}

// New creates the middleware. It panics on an unparsable key so a bad
// deployment fails at startup.
func New(cfg Config) fiber.Handler {
	if cfg.ClaimKey == "" {
		cfg.ClaimKey = types.ClaimKey
	}
	if cfg.UserCtxName == "" {
		cfg.UserCtxName = types.UserCtxName
	}
	v, err := NewVerifier(cfg.PublicKey, cfg.ClaimKey)
	if err != nil {
		panic(err)
	}

	return func(c *fiber.Ctx) error {
		tokenString := extractToken(c)
		if tokenString == "" {
			return unauthorized(c, "Missing or invalid JWT")
		}

		user, err := v.Verify(tokenString)
		if err != nil {
			log.WarnWithContext(c.UserContext(), "rejected token: %v", err)
			return unauthorized(c, "Invalid token")
		}

		c.Locals(cfg.UserCtxName, user)
		c.SetUserContext(log.WithField(c.UserContext(), "user", user.Username))
		return c.Next()
	}
}

// extractToken reads the bearer header, then the access_token cookie.
func extractToken(c *fiber.Ctx) string {
	if h := c.Get(types.HeaderAuthorization); strings.HasPrefix(h, types.BearerPrefix) {
		return strings.TrimSpace(strings.TrimPrefix(h, types.BearerPrefix))
	}
	return c.Cookies(types.AccessTokenName)
}

func unauthorized(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
		"code":    "UNAUTHORIZED",
		"message": msg,
	})
}

// Verifier validates ES256 tokens and extracts the user claim.
type Verifier struct {
	key      interface{}
	claimKey string
}

func NewVerifier(publicKeyPEM, claimKey string) (*Verifier, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(publicKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC public key: %w", err)
	}
	if claimKey == "" {
		claimKey = types.ClaimKey
	}
	return &Verifier{key: key, claimKey: claimKey}, nil
}

// Verify checks signature, algorithm and expiry and returns the user claim.
func (v *Verifier) Verify(tokenString string) (types.UserContext, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return types.UserContext{}, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return types.UserContext{}, errors.New("invalid token")
	}
	data, ok := claims[v.claimKey].(map[string]interface{})
	if !ok {
		return types.UserContext{}, errors.New("invalid token claim format")
	}
	return mapToUserContext(data)
}

func mapToUserContext(claimData map[string]interface{}) (types.UserContext, error) {
	var user types.UserContext

	uidStr, ok := claimData[types.HeaderUID].(string)
	if !ok {
		return user, errors.New("missing or invalid uid in claim")
	}
	uid, err := uuid.FromString(uidStr)
	if err != nil {
		return user, fmt.Errorf("invalid user ID: %v", err)
	}
	user.UserID = uid
	user.Username, _ = claimData["username"].(string)
	user.DisplayName, _ = claimData["displayName"].(string)
	if roles, ok := claimData["roles"].([]interface{}); ok {
		for _, r := range roles {
			if s, ok := r.(string); ok {
				user.Roles = append(user.Roles, s)
			}
		}
	}
	return user, nil
}

// CurrentUser returns the authenticated user stored by the middleware.
func CurrentUser(c *fiber.Ctx) (types.UserContext, bool) {
	user, ok := c.Locals(types.UserCtxName).(types.UserContext)
	return user, ok
}
