package types

import uuid "github.com/gofrs/uuid"

// HTTP Header Constants
const (
	HeaderAuthorization = "Authorization"
	HeaderContentType   = "Content-Type"
	HeaderUID           = "uid"
)

const (
	BearerPrefix    = "Bearer "
	AccessTokenName = "access_token"
)

// Keys used to carry the authenticated user through a request.
const (
	UserCtxName = "user"
	ClaimKey    = "claim"
)

// UserContext is the authenticated caller carried in access tokens.
type UserContext struct {
	UserID      uuid.UUID `json:"uid"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Roles       []string  `json:"roles"`
}

// HasRole reports whether the user holds role.
func (u UserContext) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
