package services

import (
	"context"
	"testing"

	"github.com/nimbleforge/forge/internal/query"
	upmserrors "github.com/nimbleforge/forge/upms/errors"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRoleFixture() (*MockRepository, *MockPolicySync, RoleService) {
	repo := new(MockRepository)
	authz := new(MockPolicySync)
	return repo, authz, NewRoleService(repo, authz, query.NewCompiler(query.Options{}))
}

func TestCreateRole(t *testing.T) {
	ctx := context.Background()

	t.Run("name defaults to code", func(t *testing.T) {
		repo, _, svc := newRoleFixture()
		repo.On("CreateRole", mock.Anything, mock.AnythingOfType("*models.Role")).Return(nil).Once()

		role, err := svc.CreateRole(ctx, &models.CreateRoleRequest{Code: "editor"})
		require.NoError(t, err)
		assert.Equal(t, "editor", role.Name)
	})

	t.Run("invalid code", func(t *testing.T) {
		_, _, svc := newRoleFixture()
		_, err := svc.CreateRole(ctx, &models.CreateRoleRequest{Code: "Editor!"})
		assert.ErrorIs(t, err, upmserrors.ErrInvalidRequest)
	})

	t.Run("duplicate", func(t *testing.T) {
		repo, _, svc := newRoleFixture()
		repo.On("CreateRole", mock.Anything, mock.Anything).Return(repository.ErrDuplicate).Once()
		_, err := svc.CreateRole(ctx, &models.CreateRoleRequest{Code: "editor"})
		assert.ErrorIs(t, err, upmserrors.ErrRoleExists)
	})
}

func TestQueryRoles(t *testing.T) {
	repo, _, svc := newRoleFixture()
	repo.On("QueryRoles", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Table == "upms_roles" && len(cq.Order) == 1 && cq.Order[0].Field.Column == "code"
	})).Return([]*models.Role{{Code: "admin", Name: "Administrator"}}, int64(1), nil).Once()

	page, err := svc.QueryRoles(context.Background(), &query.QueryCondition{
		OrderBy: []query.OrderBy{{Field: "code"}},
	})
	require.NoError(t, err)
	require.Equal(t, 1, page.Len())
	assert.Equal(t, "Administrator", page.Records()[0].Name)
}

func TestGrantPermission(t *testing.T) {
	ctx := context.Background()
	want := models.Permission{RoleCode: "editor", Resource: "lowcode/*", Action: "write"}

	t.Run("ok", func(t *testing.T) {
		repo, authz, svc := newRoleFixture()
		repo.On("FindRole", mock.Anything, "editor").Return(&models.Role{Code: "editor"}, nil).Once()
		repo.On("GrantPermission", mock.Anything, want).Return(true, nil).Once()
		authz.On("Grant", want).Return(nil).Once()

		p, err := svc.GrantPermission(ctx, "editor", &models.PermissionRequest{Resource: "lowcode/*", Action: "WRITE"})
		require.NoError(t, err)
		assert.Equal(t, want, p)
		authz.AssertExpectations(t)
	})

	t.Run("already granted skips sync", func(t *testing.T) {
		repo, authz, svc := newRoleFixture()
		repo.On("FindRole", mock.Anything, "editor").Return(&models.Role{Code: "editor"}, nil).Once()
		repo.On("GrantPermission", mock.Anything, want).Return(false, nil).Once()

		_, err := svc.GrantPermission(ctx, "editor", &models.PermissionRequest{Resource: "lowcode/*", Action: "write"})
		require.NoError(t, err)
		authz.AssertNotCalled(t, "Grant", mock.Anything)
	})

	t.Run("unknown role", func(t *testing.T) {
		repo, _, svc := newRoleFixture()
		repo.On("FindRole", mock.Anything, "ghost").Return(nil, repository.ErrNotFound).Once()
		_, err := svc.GrantPermission(ctx, "ghost", &models.PermissionRequest{Resource: "lowcode/*", Action: "write"})
		assert.ErrorIs(t, err, upmserrors.ErrRoleNotFound)
	})

	t.Run("bad resource", func(t *testing.T) {
		_, _, svc := newRoleFixture()
		_, err := svc.GrantPermission(ctx, "editor", &models.PermissionRequest{Resource: "lowcode/**", Action: "write"})
		assert.ErrorIs(t, err, upmserrors.ErrInvalidRequest)
	})
}

func TestRevokePermission(t *testing.T) {
	ctx := context.Background()
	p := models.Permission{RoleCode: "editor", Resource: "lowcode/pages", Action: "read"}

	t.Run("ok", func(t *testing.T) {
		repo, authz, svc := newRoleFixture()
		repo.On("RevokePermission", mock.Anything, p).Return(true, nil).Once()
		authz.On("Revoke", p).Return(nil).Once()

		require.NoError(t, svc.RevokePermission(ctx, "editor", &models.PermissionRequest{Resource: "lowcode/pages", Action: "read"}))
		authz.AssertExpectations(t)
	})

	t.Run("nothing to revoke", func(t *testing.T) {
		repo, _, svc := newRoleFixture()
		repo.On("RevokePermission", mock.Anything, p).Return(false, nil).Once()
		err := svc.RevokePermission(ctx, "editor", &models.PermissionRequest{Resource: "lowcode/pages", Action: "read"})
		assert.ErrorIs(t, err, upmserrors.ErrPermissionNotFound)
	})
}
