package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newPageFixture() (*MockRepository, PageService) {
	repo := new(MockRepository)
	svc := cache.NewService(cache.NewMemoryCache(0, 0), "test", time.Minute)
	return repo, NewPageService(repo, svc, query.NewCompiler(query.Options{}))
}

func TestCreatePage(t *testing.T) {
	ctx := context.Background()

	t.Run("ok", func(t *testing.T) {
		repo, svc := newPageFixture()
		repo.On("FindSchema", mock.Anything, "order").Return(publishedOrder(1), nil).Once()
		repo.On("CreatePage", mock.Anything, mock.AnythingOfType("*models.PageDefinition")).Return(nil).Once()

		page, err := svc.CreatePage(ctx, &models.CreatePageRequest{PageName: "order-list", SchemaName: "order", Title: "Orders"})
		require.NoError(t, err)
		assert.JSONEq(t, `{}`, string(page.Layout))
		repo.AssertExpectations(t)
	})

	t.Run("invalid layout", func(t *testing.T) {
		_, svc := newPageFixture()
		_, err := svc.CreatePage(ctx, &models.CreatePageRequest{PageName: "p", SchemaName: "order", Layout: json.RawMessage(`{`)})
		assert.ErrorIs(t, err, lcerrors.ErrInvalidRequest)
	})

	t.Run("unknown schema", func(t *testing.T) {
		repo, svc := newPageFixture()
		repo.On("FindSchema", mock.Anything, "ghost").Return(nil, repository.ErrNotFound).Once()
		_, err := svc.CreatePage(ctx, &models.CreatePageRequest{PageName: "p", SchemaName: "ghost"})
		assert.ErrorIs(t, err, lcerrors.ErrSchemaNotFound)
	})

	t.Run("duplicate", func(t *testing.T) {
		repo, svc := newPageFixture()
		repo.On("FindSchema", mock.Anything, "order").Return(publishedOrder(1), nil).Once()
		repo.On("CreatePage", mock.Anything, mock.Anything).Return(repository.ErrDuplicate).Once()
		_, err := svc.CreatePage(ctx, &models.CreatePageRequest{PageName: "p", SchemaName: "order"})
		assert.ErrorIs(t, err, lcerrors.ErrPageExists)
	})
}

func TestGetPage_CachedUntilDeleted(t *testing.T) {
	ctx := context.Background()
	repo, svc := newPageFixture()
	stored := &models.PageDefinition{PageName: "order-list", SchemaName: "order", Layout: json.RawMessage(`{"type":"table"}`)}

	repo.On("FindPage", mock.Anything, "order-list").Return(stored, nil).Once()
	for i := 0; i < 3; i++ {
		page, err := svc.GetPage(ctx, "order-list")
		require.NoError(t, err)
		assert.Equal(t, "order", page.SchemaName)
	}

	repo.On("DeletePage", mock.Anything, "order-list").Return(true, nil).Once()
	require.NoError(t, svc.DeletePage(ctx, "order-list"))

	repo.On("FindPage", mock.Anything, "order-list").Return(nil, repository.ErrNotFound).Once()
	_, err := svc.GetPage(ctx, "order-list")
	assert.ErrorIs(t, err, lcerrors.ErrPageNotFound)
	repo.AssertExpectations(t)
}

func TestDeletePage_Missing(t *testing.T) {
	repo, svc := newPageFixture()
	repo.On("DeletePage", mock.Anything, "nope").Return(false, nil).Once()
	assert.ErrorIs(t, svc.DeletePage(context.Background(), "nope"), lcerrors.ErrPageNotFound)
}

func TestListPages(t *testing.T) {
	repo, svc := newPageFixture()
	size, current := 2, 1
	repo.On("QueryPages", mock.Anything, mock.MatchedBy(func(cq *query.CompiledQuery) bool {
		return cq.Limit == 2 && len(cq.Order) == 1 && cq.Order[0].Field.Column == "title" && cq.Order[0].Direction == query.Desc
	})).Return([]*models.PageDefinition{{PageName: "a"}, {PageName: "b"}}, int64(3), nil).Once()

	page, err := svc.ListPages(context.Background(), &pagination.Request{Size: &size, Current: &current, Sort: "title", Order: "DESC"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Pages())
	assert.Equal(t, "a", page.Records()[0].PageName)

	_, err = svc.ListPages(context.Background(), &pagination.Request{Sort: "layout"})
	assert.ErrorIs(t, err, query.ErrUnknownField)
	repo.AssertExpectations(t)
}

func TestListPages_CachedUntilPageCreated(t *testing.T) {
	ctx := context.Background()
	repo, svc := newPageFixture()
	repo.On("QueryPages", mock.Anything, mock.Anything).
		Return([]*models.PageDefinition{{PageName: "a", SchemaName: "order"}}, int64(1), nil).Twice()

	for i := 0; i < 3; i++ {
		page, err := svc.ListPages(ctx, nil)
		require.NoError(t, err)
		require.Equal(t, 1, page.Len())
		assert.Equal(t, "a", page.Records()[0].PageName)
		assert.Equal(t, int64(1), page.Total())
	}

	repo.On("FindSchema", mock.Anything, "order").Return(publishedOrder(1), nil).Once()
	repo.On("CreatePage", mock.Anything, mock.Anything).Return(nil).Once()
	_, err := svc.CreatePage(ctx, &models.CreatePageRequest{PageName: "b", SchemaName: "order"})
	require.NoError(t, err)

	_, err = svc.ListPages(ctx, nil)
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

// brokenDeletes fails every invalidation.
type brokenDeletes struct {
	*cache.MemoryCache
}

func (b brokenDeletes) Delete(context.Context, string) error {
	return errors.New("connection reset")
}

func (b brokenDeletes) DeletePattern(context.Context, string) error {
	return errors.New("connection reset")
}

func TestDeletePage_LogsFailedInvalidation(t *testing.T) {
	buf := &bytes.Buffer{}
	log.SetOutput(buf)
	t.Cleanup(func() { log.SetOutput(os.Stdout) })

	repo := new(MockRepository)
	svc := NewPageService(repo, cache.NewService(brokenDeletes{cache.NewMemoryCache(0, 0)}, "test", time.Minute), query.NewCompiler(query.Options{}))
	repo.On("DeletePage", mock.Anything, "order-list").Return(true, nil).Once()

	require.NoError(t, svc.DeletePage(context.Background(), "order-list"))
	assert.Contains(t, buf.String(), "invalidate page order-list: connection reset")
	assert.Contains(t, buf.String(), "invalidate page lists: connection reset")
}
