package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/nimbleforge/forge/internal/cache"
	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/repository"
)

var pageNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_\-]{0,63}$`)

// PageService manages page layouts bound to schemas.
type PageService interface {
	CreatePage(ctx context.Context, req *models.CreatePageRequest) (*models.PageDefinition, error)
	// GetPage is served from the cache when possible.
	GetPage(ctx context.Context, name string) (*models.PageDefinition, error)
	ListPages(ctx context.Context, req *pagination.Request) (*pagination.PageResult[models.PageResponse], error)
	DeletePage(ctx context.Context, name string) error
}

type pageService struct {
	repo     repository.Repository
	cache    *cache.Service
	compiler *query.Compiler
}

func NewPageService(repo repository.Repository, cacheService *cache.Service, compiler *query.Compiler) PageService {
	return &pageService{repo: repo, cache: cacheService, compiler: compiler}
}

const pageListPrefix = "lowcode:pages"

func pageCacheKey(name string) string {
	return "lowcode:page:" + name
}

func (s *pageService) CreatePage(ctx context.Context, req *models.CreatePageRequest) (*models.PageDefinition, error) {
	if req == nil {
		return nil, lcerrors.ErrInvalidRequest
	}
	if !pageNamePattern.MatchString(req.PageName) {
		return nil, fmt.Errorf("%w: pageName %q must match %s", lcerrors.ErrInvalidRequest, req.PageName, pageNamePattern)
	}
	if len(req.Layout) > 0 && !json.Valid(req.Layout) {
		return nil, fmt.Errorf("%w: layout is not valid JSON", lcerrors.ErrInvalidRequest)
	}
	if _, err := s.repo.FindSchema(ctx, req.SchemaName); err != nil {
		return nil, mapRepoError(err, lcerrors.ErrSchemaNotFound, req.SchemaName)
	}

	page := models.NewPageDefinition(req)
	if err := s.repo.CreatePage(ctx, page); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: %s", lcerrors.ErrPageExists, req.PageName)
		}
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
	}
	s.invalidateLists(ctx)
	return page, nil
}

func (s *pageService) GetPage(ctx context.Context, name string) (*models.PageDefinition, error) {
	page, err := cache.Remember(ctx, s.cache, pageCacheKey(name), func(ctx context.Context) (*models.PageDefinition, error) {
		return s.repo.FindPage(ctx, name)
	})
	if err != nil {
		return nil, mapRepoError(err, lcerrors.ErrPageNotFound, name)
	}
	return page, nil
}

func (s *pageService) ListPages(ctx context.Context, req *pagination.Request) (*pagination.PageResult[models.PageResponse], error) {
	if req == nil {
		req = &pagination.Request{}
	}
	cq, err := s.compiler.Compile(req.Condition(), repository.PageCatalog)
	if err != nil {
		return nil, err
	}
	key := cache.HashKey(pageListPrefix, map[string]interface{}{
		"size":    cq.Limit,
		"current": cq.Page,
		"sort":    req.Sort,
		"order":   strings.ToLower(req.Order),
	})
	return cache.Remember(ctx, s.cache, key, func(ctx context.Context) (*pagination.PageResult[models.PageResponse], error) {
		pages, total, err := s.repo.QueryPages(ctx, cq)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
		}
		return pagination.Map(pagination.New(pages, total, cq.Limit, cq.Page), func(p *models.PageDefinition) models.PageResponse {
			return models.ToPageResponse(p)
		}), nil
	})
}

func (s *pageService) DeletePage(ctx context.Context, name string) error {
	deleted, err := s.repo.DeletePage(ctx, name)
	if err != nil {
		return fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
	}
	if !deleted {
		return fmt.Errorf("%w: %s", lcerrors.ErrPageNotFound, name)
	}
	if s.cache.Enabled() {
		if err := s.cache.InvalidateKey(ctx, pageCacheKey(name)); err != nil {
			log.WarnWithContext(ctx, "invalidate page %s: %v", name, err)
		}
	}
	s.invalidateLists(ctx)
	return nil
}

// invalidateLists drops every cached ListPages result.
func (s *pageService) invalidateLists(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.InvalidatePattern(ctx, pageListPrefix+":*"); err != nil {
		log.WarnWithContext(ctx, "invalidate page lists: %v", err)
	}
}
