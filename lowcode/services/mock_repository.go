package services

import (
	"context"

	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
	"github.com/nimbleforge/forge/lowcode/repository"
	"github.com/stretchr/testify/mock"
)

// MockRepository is a test double for the low-code repository.
type MockRepository struct {
	mock.Mock
}

var _ repository.Repository = (*MockRepository)(nil)

// WithTx runs fn directly; tests assert on the calls fn makes.
func (m *MockRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *MockRepository) LoadVersions(ctx context.Context, name string) (*registry.Versions, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*registry.Versions), args.Error(1)
}

func (m *MockRepository) CreateSchema(ctx context.Context, def *models.SchemaDefinition) error {
	return m.Called(ctx, def).Error(0)
}

func (m *MockRepository) SaveVersion(ctx context.Context, def *models.SchemaDefinition) error {
	return m.Called(ctx, def).Error(0)
}

func (m *MockRepository) FindSchema(ctx context.Context, name string) (*models.SchemaDefinition, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SchemaDefinition), args.Error(1)
}

func (m *MockRepository) QuerySchemas(ctx context.Context, cq *query.CompiledQuery) ([]*models.SchemaDefinition, int64, error) {
	args := m.Called(ctx, cq)
	defs, _ := args.Get(0).([]*models.SchemaDefinition)
	return defs, args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) AllVersions(ctx context.Context) ([]*models.SchemaDefinition, error) {
	args := m.Called(ctx)
	defs, _ := args.Get(0).([]*models.SchemaDefinition)
	return defs, args.Error(1)
}

func (m *MockRepository) ExecDDL(ctx context.Context, stmts []string) error {
	return m.Called(ctx, stmts).Error(0)
}

func (m *MockRepository) InsertRecord(ctx context.Context, table string, values map[string]interface{}) (int64, error) {
	args := m.Called(ctx, table, values)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) QueryRecords(ctx context.Context, cq *query.CompiledQuery) ([]map[string]interface{}, int64, error) {
	args := m.Called(ctx, cq)
	records, _ := args.Get(0).([]map[string]interface{})
	return records, args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) CreatePage(ctx context.Context, page *models.PageDefinition) error {
	return m.Called(ctx, page).Error(0)
}

func (m *MockRepository) FindPage(ctx context.Context, name string) (*models.PageDefinition, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PageDefinition), args.Error(1)
}

func (m *MockRepository) QueryPages(ctx context.Context, cq *query.CompiledQuery) ([]*models.PageDefinition, int64, error) {
	args := m.Called(ctx, cq)
	pages, _ := args.Get(0).([]*models.PageDefinition)
	return pages, args.Get(1).(int64), args.Error(2)
}

func (m *MockRepository) DeletePage(ctx context.Context, name string) (bool, error) {
	args := m.Called(ctx, name)
	return args.Bool(0), args.Error(1)
}
