package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
)

var (
	roleCodePattern = regexp.MustCompile(`^[a-z][a-z0-9_\-]{1,63}$`)
	// Resources are slash separated segments, optionally ending in "/*", or a bare "*".
	resourcePattern = regexp.MustCompile(`^(\*|[a-z0-9_\-]+(/[a-z0-9_\-]+)*(/\*)?)$`)
	actionPattern   = regexp.MustCompile(`^(\*|[a-z][a-z0-9_\-]{0,31})$`)
)

type RoleService interface {
	CreateRole(ctx context.Context, req *models.CreateRoleRequest) (*models.Role, error)
	QueryRoles(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.RoleResponse], error)
	GrantPermission(ctx context.Context, roleCode string, req *models.PermissionRequest) (models.Permission, error)
	RevokePermission(ctx context.Context, roleCode string, req *models.PermissionRequest) error
}

type roleService struct {
	repo     repository.Repository
	authz    PolicySync
	compiler *query.Compiler
}

func NewRoleService(repo repository.Repository, authz PolicySync, compiler *query.Compiler) RoleService {
	return &roleService{repo: repo, authz: authz, compiler: compiler}
}

func (s *roleService) CreateRole(ctx context.Context, req *models.CreateRoleRequest) (*models.Role, error) {
	if req == nil {
		return nil, upmserrors.ErrInvalidRequest
	}
	role := models.NewRole(req)
	if !roleCodePattern.MatchString(role.Code) {
		return nil, fmt.Errorf("%w: code %q must match %s", upmserrors.ErrInvalidRequest, role.Code, roleCodePattern)
	}
	if role.Name == "" {
		role.Name = role.Code
	}
	if err := s.repo.CreateRole(ctx, role); err != nil {
		return nil, mapWriteError(err, upmserrors.ErrRoleExists, role.Code)
	}
	log.InfoWithContext(ctx, "upms: role %s created", role.Code)
	return role, nil
}

func (s *roleService) QueryRoles(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.RoleResponse], error) {
	cq, err := s.compiler.Compile(cond, repository.RoleSchema)
	if err != nil {
		return nil, err
	}
	roles, total, err := s.repo.QueryRoles(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
	}
	page := pagination.New(roles, total, cq.Limit, cq.Page)
	return pagination.Map(page, func(r *models.Role) models.RoleResponse { return models.ToRoleResponse(r) }), nil
}

func permissionFrom(roleCode string, req *models.PermissionRequest) (models.Permission, error) {
	if req == nil {
		return models.Permission{}, upmserrors.ErrInvalidRequest
	}
	p := models.Permission{
		RoleCode: roleCode,
		Resource: strings.TrimSpace(req.Resource),
		Action:   strings.ToLower(strings.TrimSpace(req.Action)),
	}
	if !resourcePattern.MatchString(p.Resource) {
		return p, fmt.Errorf("%w: resource %q is not valid", upmserrors.ErrInvalidRequest, req.Resource)
	}
	if !actionPattern.MatchString(p.Action) {
		return p, fmt.Errorf("%w: action %q is not valid", upmserrors.ErrInvalidRequest, req.Action)
	}
	return p, nil
}

func (s *roleService) GrantPermission(ctx context.Context, roleCode string, req *models.PermissionRequest) (models.Permission, error) {
	p, err := permissionFrom(roleCode, req)
	if err != nil {
		return p, err
	}
	if _, err := s.repo.FindRole(ctx, roleCode); err != nil {
		return p, mapRepoError(err, upmserrors.ErrRoleNotFound, roleCode)
	}
	added, err := s.repo.GrantPermission(ctx, p)
	if err != nil {
		return p, mapWriteError(err, nil, roleCode)
	}
	if added && s.authz != nil {
		if err := s.authz.Grant(p); err != nil {
			log.ErrorWithContext(ctx, "upms: sync grant %s %s %s: %v", p.RoleCode, p.Resource, p.Action, err)
		}
	}
	return p, nil
}

func (s *roleService) RevokePermission(ctx context.Context, roleCode string, req *models.PermissionRequest) error {
	p, err := permissionFrom(roleCode, req)
	if err != nil {
		return err
	}
	removed, err := s.repo.RevokePermission(ctx, p)
	if err != nil {
		return fmt.Errorf("%w: %v", upmserrors.ErrDatabaseOperation, err)
	}
	if !removed {
		return fmt.Errorf("%w: %s %s %s", upmserrors.ErrPermissionNotFound, p.RoleCode, p.Resource, p.Action)
	}
	if s.authz != nil {
		if err := s.authz.Revoke(p); err != nil {
			log.ErrorWithContext(ctx, "upms: sync revoke %s %s %s: %v", p.RoleCode, p.Resource, p.Action, err)
		}
	}
	return nil
}
