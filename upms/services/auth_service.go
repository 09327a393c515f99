package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/types"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
)

// TokenIssuer signs access tokens for authenticated users.
type TokenIssuer interface {
	Issue(user types.UserContext) (string, time.Time, error)
}

type AuthService interface {
	// Login verifies the credentials and returns a signed access token.
	Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error)
}

type authService struct {
	repo   repository.Repository
	policy PasswordPolicy
	issuer TokenIssuer
}

func NewAuthService(repo repository.Repository, policy PasswordPolicy, issuer TokenIssuer) AuthService {
	return &authService{repo: repo, policy: policy, issuer: issuer}
}

func (s *authService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	if req == nil || req.Username == "" || req.Password == "" {
		return nil, fmt.Errorf("%w: username and password are required", upmserrors.ErrInvalidRequest)
	}
	user, err := s.repo.FindUserByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, upmserrors.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
	}
	if !s.policy.Matches(user.PasswordHash, req.Password) {
		log.WarnWithContext(ctx, "upms: failed login for %s", req.Username)
		return nil, upmserrors.ErrInvalidCredentials
	}
	if user.IsLocked() {
		return nil, fmt.Errorf("%w: %s", upmserrors.ErrUserLocked, user.Username)
	}

	token, expires, err := s.issuer.Issue(types.UserContext{
		UserID:      user.ObjectId,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Roles:       user.Roles,
	})
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	log.InfoWithContext(ctx, "upms: %s logged in", user.Username)
	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresAt:   expires.UnixMilli(),
		User:        models.ToUserResponse(user),
	}, nil
}
