package services

import (
	"context"

	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/upms/models"
	"github.com/nimbleforge/forge/upms/repository"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a test double for the UPMS repository.
type MockRepository struct {
	mock.Mock
}

var _ repository.Repository = (*MockRepository)(nil)

func (m *MockRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockRepository) ListPermissions(ctx context.Context) ([]models.Permission, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Permission), args.Error(1)
}

func (m *MockRepository) ListAssignments(ctx context.Context) ([]models.RoleAssignment, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.RoleAssignment), args.Error(1)
}

func (m *MockRepository) CreateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockRepository) FindUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockRepository) QueryUsers(ctx context.Context, cq *query.CompiledQuery) ([]*models.User, int64, error) {
	args := m.Called(ctx, cq)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.User), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) UpdateUserStatus(ctx context.Context, id uuid.UUID, status models.UserStatus) error {
	return m.Called(ctx, id, status).Error(0)
}

func (m *MockRepository) UpdatePassword(ctx context.Context, id uuid.UUID, hash string) error {
	return m.Called(ctx, id, hash).Error(0)
}

func (m *MockRepository) SetUserRoles(ctx context.Context, id uuid.UUID, roles []string) error {
	return m.Called(ctx, id, roles).Error(0)
}

func (m *MockRepository) RolesOf(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID][]string, error) {
	args := m.Called(ctx, ids)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[uuid.UUID][]string), args.Error(1)
}

func (m *MockRepository) CreateRole(ctx context.Context, role *models.Role) error {
	return m.Called(ctx, role).Error(0)
}

func (m *MockRepository) FindRole(ctx context.Context, code string) (*models.Role, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Role), args.Error(1)
}

func (m *MockRepository) QueryRoles(ctx context.Context, cq *query.CompiledQuery) ([]*models.Role, int64, error) {
	args := m.Called(ctx, cq)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]*models.Role), args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) GrantPermission(ctx context.Context, p models.Permission) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) RevokePermission(ctx context.Context, p models.Permission) (bool, error) {
	args := m.Called(ctx, p)
	return args.Bool(0), args.Error(1)
}

// MockPolicySync records policy updates.
type MockPolicySync struct {
	mock.Mock
}

func (m *MockPolicySync) Grant(p models.Permission) error {
	return m.Called(p).Error(0)
}

func (m *MockPolicySync) Revoke(p models.Permission) error {
	return m.Called(p).Error(0)
}

func (m *MockPolicySync) SetRoles(userID uuid.UUID, roles []string) error {
	return m.Called(userID, roles).Error(0)
}
