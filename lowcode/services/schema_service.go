package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/ddl"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
	"github.com/nimbleforge/forge/lowcode/repository"
	"github.com/nimbleforge/forge/lowcode/sequence"
)

// SchemaService manages schema definitions and their lifecycle.
type SchemaService interface {
	// Warm loads every live schema version into the registry.
	Warm(ctx context.Context) error

	CreateSchema(ctx context.Context, req *models.CreateSchemaRequest) (*models.SchemaDefinition, error)
	GetSchema(ctx context.Context, name string) (*models.SchemaDefinition, error)
	QuerySchemas(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.SchemaResponse], error)

	// UpdateDraft replaces the working field list, opening a new draft
	// version when the head is published.
	UpdateDraft(ctx context.Context, name string, req *models.UpdateDraftRequest) (*models.SchemaDefinition, error)

	// PublishSchema applies the draft's DDL and makes it the live version.
	PublishSchema(ctx context.Context, name string) (*models.SchemaDefinition, error)
}

type schemaService struct {
	repo      repository.Repository
	registry  *registry.Registry
	ddl       *ddl.Builder
	sequences *sequence.Generator
	compiler  *query.Compiler
}

// NewSchemaService constructs a schema service.
func NewSchemaService(repo repository.Repository, reg *registry.Registry, builder *ddl.Builder, gen *sequence.Generator, compiler *query.Compiler) SchemaService {
	return &schemaService{repo: repo, registry: reg, ddl: builder, sequences: gen, compiler: compiler}
}

func (s *schemaService) Warm(ctx context.Context) error {
	defs, err := s.repo.AllVersions(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}
	if err := s.registry.Warm(defs); err != nil {
		return err
	}
	for _, def := range defs {
		if def.IsPublished() {
			s.registerSequences(ctx, def)
		}
	}
	return nil
}

func (s *schemaService) registerSequences(ctx context.Context, def *models.SchemaDefinition) {
	if s.sequences == nil {
		return
	}
	for _, f := range def.Fields {
		if f.Sequence == nil {
			continue
		}
		if err := s.sequences.Register(*f.Sequence); err != nil {
			log.WarnWithContext(ctx, "schema %s: sequence for %s not registered: %v", def.SchemaName, f.FieldName, err)
		}
	}
}

func (s *schemaService) CreateSchema(ctx context.Context, req *models.CreateSchemaRequest) (*models.SchemaDefinition, error) {
	if req == nil {
		return nil, lcerrors.ErrInvalidRequest
	}
	def := models.NewSchemaDefinition(req)
	if err := normalizeSchema(def); err != nil {
		return nil, err
	}

	_, err := s.registry.Apply(ctx, def.SchemaName, func(ctx context.Context) (*models.SchemaDefinition, error) {
		if err := s.repo.CreateSchema(ctx, def); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return nil, fmt.Errorf("%w: %s", lcerrors.ErrSchemaExists, def.SchemaName)
			}
			return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
		}
		return def, nil
	})
	if err != nil {
		return nil, err
	}
	return def, nil
}

func (s *schemaService) GetSchema(ctx context.Context, name string) (*models.SchemaDefinition, error) {
	def, err := s.repo.FindSchema(ctx, name)
	if err != nil {
		return nil, mapRepoError(err, lcerrors.ErrSchemaNotFound, name)
	}
	return def, nil
}

func (s *schemaService) QuerySchemas(ctx context.Context, cond *query.QueryCondition) (*pagination.PageResult[models.SchemaResponse], error) {
	cq, err := s.compiler.Compile(cond, repository.SchemaCatalog)
	if err != nil {
		return nil, err
	}
	defs, total, err := s.repo.QuerySchemas(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
	}
	page := pagination.New(defs, total, cq.Limit, cq.Page)
	return pagination.Map(page, func(d *models.SchemaDefinition) models.SchemaResponse {
		return models.ToSchemaResponse(d)
	}), nil
}

func (s *schemaService) UpdateDraft(ctx context.Context, name string, req *models.UpdateDraftRequest) (*models.SchemaDefinition, error) {
	if req == nil {
		return nil, lcerrors.ErrInvalidRequest
	}
	snap, err := s.registry.Apply(ctx, name, func(ctx context.Context) (*models.SchemaDefinition, error) {
		head, err := s.repo.FindSchema(ctx, name)
		if err != nil {
			return nil, mapRepoError(err, lcerrors.ErrSchemaNotFound, name)
		}
		next := head.Clone()
		if head.IsPublished() {
			next.Version = head.Version + 1
			next.Status = models.StatusDraft
		}
		models.ApplyDraft(next, req)
		if err := normalizeSchema(next); err != nil {
			return nil, err
		}
		if err := s.repo.SaveVersion(ctx, next); err != nil {
			return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
		}
		return next, nil
	})
	if err != nil {
		return nil, err
	}
	return snap.Definition(), nil
}

func (s *schemaService) PublishSchema(ctx context.Context, name string) (*models.SchemaDefinition, error) {
	snap, err := s.registry.Apply(ctx, name, func(ctx context.Context) (*models.SchemaDefinition, error) {
		versions, err := s.repo.LoadVersions(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
		}
		if versions == nil {
			return nil, fmt.Errorf("%w: %s", lcerrors.ErrSchemaNotFound, name)
		}
		if versions.Draft == nil {
			return nil, fmt.Errorf("%w: %s has no draft to publish", lcerrors.ErrInvalidRequest, name)
		}

		next := versions.Draft.Clone()
		if err := normalizeSchema(next); err != nil {
			return nil, err
		}
		stmts, err := s.ddl.Statements(versions.Published, next)
		if err != nil {
			if errors.Is(err, ddl.ErrIncompatibleChange) {
				return nil, fmt.Errorf("%w: %v", lcerrors.ErrInvalidSchema, err)
			}
			return nil, err
		}
		next.Status = models.StatusPublished
		next.PublishedVersion = next.Version

		err = s.repo.WithTx(ctx, func(ctx context.Context) error {
			if err := s.repo.ExecDDL(ctx, stmts); err != nil {
				return err
			}
			return s.repo.SaveVersion(ctx, next)
		})
		if err != nil {
			return nil, fmt.Errorf("%w: publish %s: %v", lcerrors.ErrDatabaseOperation, name, err)
		}
		log.InfoWithContext(ctx, "published schema %s version %d (%d ddl statements)", name, next.Version, len(stmts))
		return next, nil
	})
	if err != nil {
		return nil, err
	}

	def := snap.Definition()
	s.registerSequences(ctx, def)
	return def, nil
}

// mapRepoError turns repository.ErrNotFound into notFound.
func mapRepoError(err, notFound error, name string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s", notFound, name)
	}
	return fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
}

// mapRegistryError translates registry lookups into module errors.
func mapRegistryError(err error, name string) error {
	switch {
	case errors.Is(err, registry.ErrSchemaNotFound):
		return fmt.Errorf("%w: %s", lcerrors.ErrSchemaNotFound, name)
	case errors.Is(err, registry.ErrNotPublished):
		return fmt.Errorf("%w: %s", lcerrors.ErrSchemaNotPublished, name)
	}
	if _, ok := query.AsQueryError(err); ok {
		return err
	}
	return fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
}
