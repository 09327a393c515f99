package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"

	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
)

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.\-]{2,63}$`)

// PolicySync mirrors permission and assignment changes into the live
// authorization policy.
type PolicySync interface {
	Grant(p models.Permission) error
	Revoke(p models.Permission) error
	SetRoles(userID uuid.UUID, roles []string) error
}

type UserService interface {
	CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	QueryUsers(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.UserResponse], error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.User, error)
	AssignRoles(ctx context.Context, id uuid.UUID, roles []string) (*models.User, error)
	ChangePassword(ctx context.Context, id uuid.UUID, req *models.ChangePasswordRequest) error
}

type userService struct {
	repo     repository.Repository
	policy   PasswordPolicy
	authz    PolicySync
	cache    *cache.Service
	compiler *query.Compiler
}

func NewUserService(repo repository.Repository, policy PasswordPolicy, authz PolicySync, cacheService *cache.Service, compiler *query.Compiler) UserService {
	return &userService{repo: repo, policy: policy, authz: authz, cache: cacheService, compiler: compiler}
}

func userCacheKey(id uuid.UUID) string {
	return "upms:user:" + id.String()
}

func (s *userService) CreateUser(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if req == nil {
		return nil, upmserrors.ErrInvalidRequest
	}
	user := models.NewUser(req)
	if !usernamePattern.MatchString(user.Username) {
		return nil, fmt.Errorf("%w: username %q must match %s", upmserrors.ErrInvalidRequest, user.Username, usernamePattern)
	}
	if _, err := mail.ParseAddress(user.Email); err != nil {
		return nil, fmt.Errorf("%w: email %q is not valid", upmserrors.ErrInvalidRequest, req.Email)
	}
	if err := s.policy.Check(req.Password, user.Username, user.Email, user.DisplayName); err != nil {
		return nil, err
	}
	hash, err := s.policy.Hash(req.Password)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = hash

	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, mapWriteError(err, upmserrors.ErrUserExists, user.Username)
	}
	s.syncRoles(ctx, user.ObjectId, user.Roles)
	log.InfoWithContext(ctx, "upms: user %s created", user.Username)
	return user, nil
}

func (s *userService) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := cache.Remember(ctx, s.cache, userCacheKey(id), func(ctx context.Context) (*models.User, error) {
		return s.repo.FindUserByID(ctx, id)
	})
	if err != nil {
		return nil, mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	return user, nil
}

func (s *userService) QueryUsers(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.UserResponse], error) {
	cq, err := s.compiler.Compile(cond, repository.UserSchema)
	if err != nil {
		return nil, err
	}
	users, total, err := s.repo.QueryUsers(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
	}
	page := pagination.New(users, total, cq.Limit, cq.Page)
	return pagination.Map(page, func(u *models.User) models.UserResponse { return models.ToUserResponse(u) }), nil
}

func (s *userService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) (*models.User, error) {
	st, ok := models.ParseUserStatus(status)
	if !ok {
		return nil, fmt.Errorf("%w: status must be %q or %q", upmserrors.ErrInvalidRequest, models.UserStatusActive, models.UserStatusLocked)
	}
	if err := s.repo.UpdateUserStatus(ctx, id, st); err != nil {
		return nil, mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	s.invalidate(ctx, id)
	log.InfoWithContext(ctx, "upms: user %s status set to %s", id, st)
	return s.reload(ctx, id)
}

func (s *userService) AssignRoles(ctx context.Context, id uuid.UUID, roles []string) (*models.User, error) {
	roles = models.NormalizeRoles(roles)
	if _, err := s.repo.FindUserByID(ctx, id); err != nil {
		return nil, mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	if err := s.repo.SetUserRoles(ctx, id, roles); err != nil {
		return nil, mapWriteError(err, nil, id.String())
	}
	s.invalidate(ctx, id)
	s.syncRoles(ctx, id, roles)
	return s.reload(ctx, id)
}

func (s *userService) ChangePassword(ctx context.Context, id uuid.UUID, req *models.ChangePasswordRequest) error {
	if req == nil {
		return upmserrors.ErrInvalidRequest
	}
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	if !s.policy.Matches(user.PasswordHash, req.OldPassword) {
		return upmserrors.ErrInvalidCredentials
	}
	if err := s.policy.Check(req.NewPassword, user.Username, user.Email, user.DisplayName); err != nil {
		return err
	}
	hash, err := s.policy.Hash(req.NewPassword)
	if err != nil {
		return err
	}
	if err := s.repo.UpdatePassword(ctx, id, hash); err != nil {
		return mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	s.invalidate(ctx, id)
	return nil
}

func (s *userService) reload(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.repo.FindUserByID(ctx, id)
	if err != nil {
		return nil, mapRepoError(err, upmserrors.ErrUserNotFound, id.String())
	}
	return user, nil
}

func (s *userService) invalidate(ctx context.Context, id uuid.UUID) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.InvalidateKey(ctx, userCacheKey(id)); err != nil {
		log.WarnWithContext(ctx, "upms: invalidate user %s: %v", id, err)
	}
}

// syncRoles logs instead of failing: the rows are committed and the next
// reload picks them up.
func (s *userService) syncRoles(ctx context.Context, id uuid.UUID, roles []string) {
	if s.authz == nil {
		return
	}
	if err := s.authz.SetRoles(id, roles); err != nil {
		log.ErrorWithContext(ctx, "upms: sync roles for %s: %v", id, err)
	}
}

func mapRepoError(err error, notFound error, key string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, key)
	}
	return fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
}

// mapWriteError maps constraint violations; a missing reference on a write
// always means an unknown role code.
func mapWriteError(err error, duplicate error, key string) error {
	switch {
	case duplicate != nil && errors.Is(err, repository.ErrDuplicate):
		return fmt.Errorf("%w: %s", duplicate, key)
	case errors.Is(err, repository.ErrMissingReference):
		return fmt.Errorf("%w: %v", upmserrors.ErrRoleNotFound, err)
	case errors.Is(err, repository.ErrNotFound):
		return fmt.Errorf("%w: %s", upmserrors.ErrUserNotFound, key)
	}
	return fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
}
