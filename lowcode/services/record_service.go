package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nimbleforge/forge/internal/pagination"
	"github.com/nimbleforge/forge/internal/query"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/registry"
	"github.com/nimbleforge/forge/lowcode/repository"
	"github.com/nimbleforge/forge/lowcode/sequence"
)

// RecordService reads and writes rows of published schemas.
type RecordService interface {
	// InsertRecord validates values against the published field set and
	// returns the stored record keyed by field name, including its id.
	InsertRecord(ctx context.Context, schemaName string, values map[string]interface{}) (map[string]interface{}, error)

	QueryRecords(ctx context.Context, schemaName string, cond *query.QueryCondition) (*pagination.PageResult[map[string]interface{}], error)
}

type recordService struct {
	repo      repository.Repository
	registry  *registry.Registry
	sequences *sequence.Generator
}

func NewRecordService(repo repository.Repository, reg *registry.Registry, gen *sequence.Generator) RecordService {
	return &recordService{repo: repo, registry: reg, sequences: gen}
}

func invalidRecord(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", lcerrors.ErrInvalidRecord, fmt.Sprintf(format, a...))
}

func (s *recordService) InsertRecord(ctx context.Context, schemaName string, values map[string]interface{}) (map[string]interface{}, error) {
	snap, err := s.registry.Published(ctx, schemaName)
	if err != nil {
		return nil, mapRegistryError(err, schemaName)
	}

	// Deterministic error reporting for multi-field payloads.
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make(map[string]interface{}, len(values))
	stored := make(map[string]interface{}, len(values)+1)
	for _, name := range names {
		fd, err := query.ResolveField(snap, name)
		if err != nil {
			return nil, err
		}
		if registry.IsSystemName(name) {
			return nil, invalidRecord("%s is read-only", name)
		}
		v, err := coerceValue(fd, values[name])
		if err != nil {
			return nil, err
		}
		columns[fd.Column] = v
		stored[name] = values[name]
	}

	for _, f := range snap.UserFields() {
		if _, ok := stored[f.FieldName]; ok || f.Sequence == nil {
			continue
		}
		if s.sequences == nil {
			return nil, invalidRecord("%s has a sequence but no generator is configured", f.FieldName)
		}
		v, err := s.sequences.NextFor(ctx, *f.Sequence)
		if err != nil {
			return nil, err
		}
		columns[registry.ColumnOf(f)] = v
		stored[f.FieldName] = v
	}

	for _, f := range snap.UserFields() {
		if v, ok := stored[f.FieldName]; !f.Nullable && (!ok || v == nil) {
			return nil, invalidRecord("%s is required", f.FieldName)
		}
	}

	id, err := s.repo.InsertRecord(ctx, snap.Table(), columns)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, invalidRecord("duplicate value: %v", err)
		}
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
	}
	stored["id"] = id
	return stored, nil
}

// coerceValue converts a JSON value for storage; JSON fields are stored as
// their encoded text.
func coerceValue(fd query.FieldDescriptor, raw interface{}) (interface{}, error) {
	if raw == nil {
		if !fd.Nullable {
			return nil, invalidRecord("%s must not be null", fd.Name)
		}
		return nil, nil
	}
	if fd.Type == query.TypeJSON {
		b, err := json.Marshal(raw)
		if err != nil {
			return nil, invalidRecord("%s: %v", fd.Name, err)
		}
		return string(b), nil
	}
	v, err := query.Coerce(fd, raw)
	if err != nil {
		if qe, ok := query.AsQueryError(err); ok {
			return nil, invalidRecord("%s: %s", fd.Name, qe.Message)
		}
		return nil, invalidRecord("%s: %v", fd.Name, err)
	}
	return v, nil
}

func (s *recordService) QueryRecords(ctx context.Context, schemaName string, cond *query.QueryCondition) (*pagination.PageResult[map[string]interface{}], error) {
	cq, _, err := s.registry.CompilePublished(ctx, schemaName, cond)
	if err != nil {
		return nil, mapRegistryError(err, schemaName)
	}
	records, total, err := s.repo.QueryRecords(ctx, cq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", lcerrors.ErrDatabaseOperation, err)
	}
	if total == 0 {
		return pagination.Empty[map[string]interface{}](cq.Limit, cq.Page), nil
	}
	return pagination.New(records, total, cq.Limit, cq.Page), nil
}
