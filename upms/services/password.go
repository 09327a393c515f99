package services

import (
	"fmt"

	gopass "github.com/nbutton23/zxcvbn-go"
	platformconfig "github.com/nimbleforge/forge/internal/platform/config"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
	"golang.org/x/crypto/bcrypt"
)

// PasswordPolicy rates new passwords and hashes accepted ones.
type PasswordPolicy struct {
	MinScore   int
	MinEntropy float64
	Cost       int
}

// NewPasswordPolicy reads the policy from the security config.
func NewPasswordPolicy(cfg platformconfig.SecurityConfig) PasswordPolicy {
	return PasswordPolicy{MinScore: cfg.MinPasswordScore, MinEntropy: cfg.MinPasswordEntropy, Cost: cfg.BcryptCost}
}

// Check rejects passwords below the minimum score or entropy. userInputs are
// penalised when they appear in the password.
func (p PasswordPolicy) Check(password string, userInputs ...string) error {
	if password == "" {
		return fmt.Errorf("%w: password is required", upmserrors.ErrWeakPassword)
	}
	strength := gopass.PasswordStrength(password, userInputs)
	if strength.Score < p.MinScore || strength.Entropy < p.MinEntropy {
		return fmt.Errorf("%w: score %d, entropy %.1f", upmserrors.ErrWeakPassword, strength.Score, strength.Entropy)
	}
	return nil
}

func (p PasswordPolicy) Hash(password string) (string, error) {
	cost := p.Cost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Matches reports whether password hashes to hash.
func (p PasswordPolicy) Matches(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
