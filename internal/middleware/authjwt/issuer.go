package authjwt

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"github.com/nimbleforge/forge/internal/types"
)

// Issuer signs ES256 access tokens.
type Issuer struct {
	key    interface{}
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(privateKeyPEM, issuer string, ttl time.Duration) (*Issuer, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(privateKeyPEM))
	if err != nil {
		return nil, fmt.Errorf("failed to parse EC private key: %w", err)
	}
	return &Issuer{key: key, issuer: issuer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for user and its expiry.
func (i *Issuer) Issue(user types.UserContext) (string, time.Time, error) {
	now := i.now()
	exp := now.Add(i.ttl)
	roles := make([]interface{}, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, r)
	}

	claims := jwt.MapClaims{
		"iss": i.issuer,
		"sub": user.UserID.String(),
		"iat": now.Unix(),
		"exp": exp.Unix(),
		"jti": uuid.Must(uuid.NewV4()).String(),
		types.ClaimKey: map[string]interface{}{
			types.HeaderUID: user.UserID.String(),
			"username":      user.Username,
			"displayName":   user.DisplayName,
			"roles":         roles,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}
