package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/ddl"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
	"github.com/nimbleforge/forge/lowcode/repository"
	"github.com/nimbleforge/forge/lowcode/sequence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func newGenerator() *sequence.Generator {
	return sequence.NewGenerator(cache.NewService(cache.NewMemoryCache(0, 0), "test", time.Minute))
}

type fixture struct {
	repo     *MockRepository
	registry *registry.Registry
	seq      *sequence.Generator
	schemas  SchemaService
}

func newFixture() *fixture {
	repo := new(MockRepository)
	compiler := query.NewCompiler(query.Options{})
	reg := registry.New(repo, compiler)
	gen := newGenerator()
	return &fixture{
		repo:     repo,
		registry: reg,
		seq:      gen,
		schemas:  NewSchemaService(repo, reg, ddl.NewBuilder(""), gen, compiler),
	}
}

func orderRequest() *models.CreateSchemaRequest {
	return &models.CreateSchemaRequest{
		SchemaName: "order",
		Fields: []models.FieldDefinition{
			{FieldName: "orderNo", LogicType: "string", Length: intPtr(32), Unique: true,
				Sequence: &sequence.Rule{Prefix: "SO", Width: 4, ResetCycle: sequence.CycleDaily}},
			{FieldName: "amount", LogicType: "DECIMAL", Length: intPtr(12), Scale: intPtr(2), Nullable: true},
		},
	}
}

func TestCreateSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("stores a draft with defaults", func(t *testing.T) {
		f := newFixture()
		f.repo.On("LoadVersions", mock.Anything, "order").Return(nil, nil).Once()
		f.repo.On("CreateSchema", mock.Anything, mock.AnythingOfType("*models.SchemaDefinition")).Return(nil).Once()

		def, err := f.schemas.CreateSchema(ctx, orderRequest())
		require.NoError(t, err)
		assert.Equal(t, "order", def.TableName)
		assert.Equal(t, models.StatusDraft, def.Status)
		assert.Equal(t, 1, def.Version)
		assert.Equal(t, "order_no", def.Fields[0].DbColumn)
		assert.Equal(t, "decimal", def.Fields[1].LogicType)
		assert.Equal(t, "order.orderNo", def.Fields[0].Sequence.Name)

		draft, err := f.registry.Draft(ctx, "order")
		require.NoError(t, err)
		assert.Equal(t, 1, draft.Version())
		f.repo.AssertExpectations(t)
	})

	t.Run("duplicate schema", func(t *testing.T) {
		f := newFixture()
		f.repo.On("LoadVersions", mock.Anything, "order").Return(nil, nil).Once()
		f.repo.On("CreateSchema", mock.Anything, mock.Anything).
			Return(fmt.Errorf("insert schema: %w", repository.ErrDuplicate)).Once()

		_, err := f.schemas.CreateSchema(ctx, orderRequest())
		assert.ErrorIs(t, err, lcerrors.ErrSchemaExists)
	})

	invalid := map[string]func(*models.CreateSchemaRequest){
		"bad schema name":   func(r *models.CreateSchemaRequest) { r.SchemaName = "Order!" },
		"no fields":         func(r *models.CreateSchemaRequest) { r.Fields = nil },
		"reserved field":    func(r *models.CreateSchemaRequest) { r.Fields[1].FieldName = "id" },
		"reserved column":   func(r *models.CreateSchemaRequest) { r.Fields[1].DbColumn = "created_date" },
		"duplicate field":   func(r *models.CreateSchemaRequest) { r.Fields[1].FieldName = "orderNo" },
		"duplicate column":  func(r *models.CreateSchemaRequest) { r.Fields[1].DbColumn = "order_no" },
		"unknown type":      func(r *models.CreateSchemaRequest) { r.Fields[1].LogicType = "money" },
		"scale on string":   func(r *models.CreateSchemaRequest) { r.Fields[0].Scale = intPtr(1) },
		"scale over length": func(r *models.CreateSchemaRequest) { r.Fields[1].Scale = intPtr(20) },
		"sequence on int": func(r *models.CreateSchemaRequest) {
			r.Fields[1].LogicType = "int"
			r.Fields[1].Scale = nil
			r.Fields[1].Sequence = &sequence.Rule{}
		},
		"index on unknown column": func(r *models.CreateSchemaRequest) {
			r.Indexes = []models.IndexDefinition{{Columns: []string{"missing"}}}
		},
	}
	for name, mutate := range invalid {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			req := orderRequest()
			mutate(req)

			_, err := f.schemas.CreateSchema(ctx, req)
			assert.ErrorIs(t, err, lcerrors.ErrInvalidSchema)
			f.repo.AssertNotCalled(t, "CreateSchema", mock.Anything, mock.Anything)
		})
	}
}

func publishedOrder(version int) *models.SchemaDefinition {
	def := models.NewSchemaDefinition(orderRequest())
	if err := normalizeSchema(def); err != nil {
		panic(err)
	}
	def.Status = models.StatusPublished
	def.Version = version
	def.PublishedVersion = version
	return def
}

func TestUpdateDraft_OpensNewVersionOverPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	head := publishedOrder(1)
	require.NoError(t, f.registry.Put(head))

	f.repo.On("FindSchema", mock.Anything, "order").Return(head.Clone(), nil).Once()
	f.repo.On("SaveVersion", mock.Anything, mock.MatchedBy(func(d *models.SchemaDefinition) bool {
		return d.Version == 2 && d.Status == models.StatusDraft && d.PublishedVersion == 1 && len(d.Fields) == 1
	})).Return(nil).Once()

	desc := "orders only"
	def, err := f.schemas.UpdateDraft(ctx, "order", &models.UpdateDraftRequest{
		Description: &desc,
		Fields:      []models.FieldDefinition{{FieldName: "orderNo", LogicType: "string"}},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, def.Version)
	assert.Equal(t, "orders only", def.Description)

	draft, err := f.registry.Draft(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version())
	pub, err := f.registry.Published(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.Version(), "published snapshot is untouched by draft edits")
	f.repo.AssertExpectations(t)
}

func TestUpdateDraft_NotFound(t *testing.T) {
	f := newFixture()
	f.repo.On("LoadVersions", mock.Anything, "ghost").Return(nil, nil).Once()
	f.repo.On("FindSchema", mock.Anything, "ghost").Return(nil, repository.ErrNotFound).Once()

	_, err := f.schemas.UpdateDraft(context.Background(), "ghost", &models.UpdateDraftRequest{})
	assert.ErrorIs(t, err, lcerrors.ErrSchemaNotFound)
}

func TestPublishSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("applies ddl and swaps the snapshot", func(t *testing.T) {
		f := newFixture()
		draft := models.NewSchemaDefinition(orderRequest())
		f.repo.On("LoadVersions", mock.Anything, "order").Return(&registry.Versions{Draft: draft}, nil).Twice()
		f.repo.On("ExecDDL", mock.Anything, mock.MatchedBy(func(stmts []string) bool {
			return len(stmts) == 2
		})).Return(nil).Once()
		f.repo.On("SaveVersion", mock.Anything, mock.MatchedBy(func(d *models.SchemaDefinition) bool {
			return d.Status == models.StatusPublished && d.PublishedVersion == 1
		})).Return(nil).Once()

		def, err := f.schemas.PublishSchema(ctx, "order")
		require.NoError(t, err)
		assert.True(t, def.IsPublished())

		snap, err := f.registry.Published(ctx, "order")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Version())

		_, ok := f.seq.Rule("order.orderNo")
		assert.True(t, ok, "sequence rules are registered on publish")
		f.repo.AssertExpectations(t)
	})

	t.Run("nothing to publish", func(t *testing.T) {
		f := newFixture()
		f.repo.On("LoadVersions", mock.Anything, "order").
			Return(&registry.Versions{Published: publishedOrder(1)}, nil).Twice()

		_, err := f.schemas.PublishSchema(ctx, "order")
		assert.ErrorIs(t, err, lcerrors.ErrInvalidRequest)
	})

	t.Run("ddl failure keeps the old snapshot", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.registry.Put(publishedOrder(1)))

		draft := publishedOrder(1).Clone()
		draft.Status, draft.Version = models.StatusDraft, 2
		draft.Fields = append(draft.Fields, models.FieldDefinition{FieldName: "note", LogicType: "text", Nullable: true})
		f.repo.On("LoadVersions", mock.Anything, "order").
			Return(&registry.Versions{Published: publishedOrder(1), Draft: draft}, nil).Once()
		f.repo.On("ExecDDL", mock.Anything, mock.Anything).Return(errors.New("lock timeout")).Once()

		_, err := f.schemas.PublishSchema(ctx, "order")
		assert.ErrorIs(t, err, lcerrors.ErrDatabaseOperation)

		snap, err := f.registry.Published(ctx, "order")
		require.NoError(t, err)
		assert.Equal(t, 1, snap.Version())
		f.repo.AssertNotCalled(t, "SaveVersion", mock.Anything, mock.Anything)
	})

	t.Run("type change is rejected", func(t *testing.T) {
		f := newFixture()
		draft := publishedOrder(1).Clone()
		draft.Status, draft.Version = models.StatusDraft, 2
		draft.Fields[1].LogicType = "string"
		draft.Fields[1].Scale = nil
		f.repo.On("LoadVersions", mock.Anything, "order").
			Return(&registry.Versions{Published: publishedOrder(1), Draft: draft}, nil).Twice()

		_, err := f.schemas.PublishSchema(ctx, "order")
		assert.ErrorIs(t, err, lcerrors.ErrInvalidSchema)
	})
}

func TestQuerySchemas(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	cond, err := query.ParseCondition([]byte(`{"where":{"status":{"_eq":"PUBLISHED"}},"orderBy":[{"field":"schemaName","direction":"asc"}]}`))
	require.NoError(t, err)

	f.repo.On("QuerySchemas", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Table == "lowcode_schemas" && cq.Limit == query.DefaultPageSize
	})).Return([]*models.SchemaDefinition{publishedOrder(3)}, int64(1), nil).Once()

	page, err := f.schemas.QuerySchemas(ctx, cond)
	require.NoError(t, err)
	assert.Equal(t, int64(1), page.Total())
	require.Equal(t, 1, page.Len())
	assert.Equal(t, "order", page.Records()[0].SchemaName)
	assert.Equal(t, "PUBLISHED", page.Records()[0].Status)

	_, err = f.schemas.QuerySchemas(ctx, &query.QueryCondition{Select: []string{"secretColumn"}})
	assert.ErrorIs(t, err, query.ErrUnknownField)
	f.repo.AssertExpectations(t)
}

func TestWarm(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	f.repo.On("AllVersions", mock.Anything).Return([]*models.SchemaDefinition{publishedOrder(1)}, nil).Once()

	require.NoError(t, f.schemas.Warm(ctx))

	_, err := f.registry.Published(ctx, "order")
	require.NoError(t, err)
	_, ok := f.seq.Rule("order.orderNo")
	assert.True(t, ok)
	f.repo.AssertNotCalled(t, "LoadVersions", mock.Anything, mock.Anything)
}

func TestUpdateDraft_ColdRegistryKeepsPublishedVersion(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	head := publishedOrder(1)
	f.repo.On("LoadVersions", mock.Anything, "order").Return(&registry.Versions{Published: head}, nil).Once()
	f.repo.On("FindSchema", mock.Anything, "order").Return(head.Clone(), nil).Once()
	f.repo.On("SaveVersion", mock.Anything, mock.Anything).Return(nil).Once()

	_, err := f.schemas.UpdateDraft(ctx, "order", &models.UpdateDraftRequest{
		Fields: []models.FieldDefinition{{FieldName: "orderNo", LogicType: "string"}},
	})
	require.NoError(t, err)

	pub, err := f.registry.Published(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.Version())
	draft, err := f.registry.Draft(ctx, "order")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version())
	f.repo.AssertExpectations(t)
}
