// Package registry holds the live field sets of low-code schemas.
//
// Each schema has a DRAFT and a PUBLISHED snapshot behind atomic pointers.
// Readers load a pointer and never lock. Writers are serialised per schema
// and replace a whole snapshot at once, so a reader sees either the old or
// the new field set.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nimbleforge/forge/internal/pkg/log"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/models"
)

var (
	ErrSchemaNotFound = errors.New("schema not found")
	ErrNotPublished   = errors.New("schema has no published version")
)

// Versions is what a Loader returns for one schema. Either side may be nil.
type Versions struct {
	Draft     *models.SchemaDefinition
	Published *models.SchemaDefinition
}

// Loader fetches schema versions from storage on a registry miss.
type Loader interface {
	LoadVersions(ctx context.Context, schemaName string) (*Versions, error)
}

type entry struct {
	writeMu sync.Mutex
	// loaded is set once the entry reflects storage; an unloaded entry is
	// filled from the Loader before it is read or written.
	loaded    atomic.Bool
	draft     atomic.Pointer[Snapshot]
	published atomic.Pointer[Snapshot]
}

// Registry maps schema names to their snapshots.
type Registry struct {
	mu       sync.RWMutex
	entries  map[string]*entry
	loader   Loader
	compiler *query.Compiler

	// afterCompile runs between compiling and re-checking the snapshot.
	afterCompile func()
}

// New returns an empty registry. loader may be nil.
func New(loader Loader, compiler *query.Compiler) *Registry {
	if compiler == nil {
		compiler = query.NewCompiler(query.Options{})
	}
	return &Registry{entries: make(map[string]*entry), loader: loader, compiler: compiler}
}

func (r *Registry) entry(name string) *entry {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[name]; !ok {
		e = &entry{}
		r.entries[name] = e
	}
	return e
}

func (r *Registry) lookup(name string) (*entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Put installs the snapshot for def under its status.
func (r *Registry) Put(def *models.SchemaDefinition) error {
	snap, err := NewSnapshot(def)
	if err != nil {
		return err
	}
	e := r.entry(def.SchemaName)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	r.store(e, snap)
	e.loaded.Store(true)
	return nil
}

func (r *Registry) store(e *entry, snap *Snapshot) {
	if snap.Status() == models.StatusPublished {
		e.published.Store(snap)
		// A draft at or below the published version is superseded.
		if d := e.draft.Load(); d != nil && d.Version() <= snap.Version() {
			e.draft.Store(nil)
		}
		return
	}
	e.draft.Store(snap)
}

// Warm loads every schema in defs, typically at startup.
func (r *Registry) Warm(defs []*models.SchemaDefinition) error {
	for _, def := range defs {
		if err := r.Put(def); err != nil {
			return err
		}
	}
	log.Info("schema registry warmed with %d versions", len(defs))
	return nil
}

// Forget drops a schema; the next read reloads it.
func (r *Registry) Forget(name string) {
	r.mu.Lock()
	delete(r.entries, name)
	r.mu.Unlock()
}

func (r *Registry) load(ctx context.Context, name string) (*entry, error) {
	if e, ok := r.lookup(name); ok && (e.loaded.Load() || r.loader == nil) {
		return present(e, name)
	}
	if r.loader == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	snaps, err := r.fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}

	e := r.entry(name)
	e.writeMu.Lock()
	// A concurrent writer may have filled the entry while we were loading.
	if !e.loaded.Load() {
		r.install(e, snaps)
	}
	e.writeMu.Unlock()
	log.Debug("schema %s loaded into registry", name)
	return present(e, name)
}

// fill loads the stored versions of name into e unless it already reflects
// storage. The caller holds e.writeMu.
func (r *Registry) fill(ctx context.Context, name string, e *entry) error {
	if e.loaded.Load() || r.loader == nil {
		return nil
	}
	snaps, err := r.fetch(ctx, name)
	if err != nil {
		return err
	}
	if snaps != nil {
		r.install(e, snaps)
	}
	return nil
}

// fetch builds snapshots for the stored versions of name; nil when nothing
// is stored.
func (r *Registry) fetch(ctx context.Context, name string) ([]*Snapshot, error) {
	v, err := r.loader.LoadVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if v == nil || (v.Draft == nil && v.Published == nil) {
		return nil, nil
	}
	var snaps []*Snapshot
	for _, def := range []*models.SchemaDefinition{v.Published, v.Draft} {
		if def == nil {
			continue
		}
		snap, err := NewSnapshot(def)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, snap)
	}
	return snaps, nil
}

func (r *Registry) install(e *entry, snaps []*Snapshot) {
	for _, snap := range snaps {
		r.store(e, snap)
	}
	e.loaded.Store(true)
}

func present(e *entry, name string) (*entry, error) {
	if e.draft.Load() == nil && e.published.Load() == nil {
		return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
	}
	return e, nil
}

// Published returns the live snapshot of name.
func (r *Registry) Published(ctx context.Context, name string) (*Snapshot, error) {
	e, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	snap := e.published.Load()
	if snap == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotPublished, name)
	}
	return snap, nil
}

// Draft returns the editing snapshot of name, falling back to the published
// one when no draft is open.
func (r *Registry) Draft(ctx context.Context, name string) (*Snapshot, error) {
	e, err := r.load(ctx, name)
	if err != nil {
		return nil, err
	}
	if snap := e.draft.Load(); snap != nil {
		return snap, nil
	}
	if snap := e.published.Load(); snap != nil {
		return snap, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrSchemaNotFound, name)
}

// CompilePublished compiles cond against the live field set of name. If a
// publish swaps the snapshot before compilation finishes the result is
// discarded with SchemaVersionConflict.
func (r *Registry) CompilePublished(ctx context.Context, name string, cond *query.QueryCondition) (*query.CompiledQuery, *Snapshot, error) {
	e, err := r.load(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	snap := e.published.Load()
	if snap == nil {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotPublished, name)
	}

	cq, err := r.compiler.Compile(cond, snap)
	if err != nil {
		return nil, nil, err
	}
	if r.afterCompile != nil {
		r.afterCompile()
	}
	if current := e.published.Load(); current != snap {
		return nil, nil, query.NewVersionConflictError(name, snap.Version(), current.Version())
	}
	return cq, snap, nil
}

// Mutation persists a new schema version and returns it. It runs while the
// schema's writer lock is held.
type Mutation func(ctx context.Context) (*models.SchemaDefinition, error)

// Apply runs mutate as the single writer of name and installs the returned
// version. Stored versions are loaded first when the entry is cold; nothing
// from mutate is installed when it fails.
func (r *Registry) Apply(ctx context.Context, name string, mutate Mutation) (*Snapshot, error) {
	e := r.entry(name)
	e.writeMu.Lock()
	defer e.writeMu.Unlock()
	if err := r.fill(ctx, name, e); err != nil {
		return nil, err
	}

	def, err := mutate(ctx)
	if err != nil {
		return nil, err
	}
	snap, err := NewSnapshot(def)
	if err != nil {
		// def is already persisted; reload on the next read.
		r.Forget(name)
		return nil, err
	}
	r.store(e, snap)
	e.loaded.Store(true)
	log.InfoWithContext(ctx, "schema %s now %s at version %d", name, def.Status, def.Version)
	return snap, nil
}
