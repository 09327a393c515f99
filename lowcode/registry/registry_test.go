package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

func productSchema(status models.SchemaStatus, version int, fields ...models.FieldDefinition) *models.SchemaDefinition {
	return &models.SchemaDefinition{
		SchemaName: "product",
		TableName:  "product",
		Status:     status,
		Version:    version,
		Fields:     fields,
	}
}

var (
	nameField  = models.FieldDefinition{FieldName: "name", DbColumn: "name", LogicType: "string", Length: intPtr(64), Index: true}
	priceField = models.FieldDefinition{FieldName: "price", DbColumn: "price", LogicType: "decimal", Length: intPtr(12), Scale: intPtr(2)}
	skuField   = models.FieldDefinition{FieldName: "sku", DbColumn: "sku_code", LogicType: "string", Unique: true}
)

type fakeLoader struct {
	calls    int
	versions map[string]*Versions
	err      error
}

func (f *fakeLoader) LoadVersions(_ context.Context, name string) (*Versions, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.versions[name], nil
}

func TestSnapshot(t *testing.T) {
	def := productSchema(models.StatusPublished, 1, nameField, priceField, skuField)
	def.Indexes = []models.IndexDefinition{{Columns: []string{"price", "name"}}}

	snap, err := NewSnapshot(def)
	require.NoError(t, err)

	assert.Equal(t, "product", snap.Name())
	assert.Equal(t, "lc_product", snap.Table())
	assert.True(t, snap.Dynamic())
	assert.Equal(t, []string{"createdDate", "id", "lastUpdated", "name", "price", "sku"}, query.FieldNames(snap))

	sku, ok := snap.Lookup("sku")
	require.True(t, ok)
	assert.Equal(t, "sku_code", sku.Column)
	assert.True(t, sku.Sortable)

	price, _ := snap.Lookup("price")
	assert.True(t, price.Sortable, "leading column of a composite index")
	assert.Equal(t, 2, price.Scale)

	def.Indexes = nil
	snap, err = NewSnapshot(def)
	require.NoError(t, err)
	price, _ = snap.Lookup("price")
	assert.False(t, price.Sortable)
}

func TestSnapshot_IsolatedFromSource(t *testing.T) {
	def := productSchema(models.StatusDraft, 1, nameField)
	snap, err := NewSnapshot(def)
	require.NoError(t, err)

	def.Fields[0].FieldName = "mutated"
	_, ok := snap.Lookup("name")
	assert.True(t, ok)
}

func TestSnapshot_RejectsBadType(t *testing.T) {
	_, err := NewSnapshot(productSchema(models.StatusDraft, 1, models.FieldDefinition{FieldName: "x", LogicType: "blob"}))
	assert.Error(t, err)
}

func TestRegistry_DraftAndPublished(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)

	require.NoError(t, r.Put(productSchema(models.StatusDraft, 1, nameField)))
	_, err := r.Published(ctx, "product")
	assert.ErrorIs(t, err, ErrNotPublished)

	draft, err := r.Draft(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, draft.Version())

	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, nameField)))
	pub, err := r.Published(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPublished, pub.Status())

	// The superseded draft falls back to the published snapshot.
	draft, err = r.Draft(ctx, "product")
	require.NoError(t, err)
	assert.Same(t, pub, draft)

	_, err = r.Published(ctx, "missing")
	assert.ErrorIs(t, err, ErrSchemaNotFound)
}

func TestRegistry_LazyLoad(t *testing.T) {
	ctx := context.Background()
	loader := &fakeLoader{versions: map[string]*Versions{
		"product": {
			Published: productSchema(models.StatusPublished, 1, nameField),
			Draft:     productSchema(models.StatusDraft, 2, nameField, priceField),
		},
	}}
	r := New(loader, nil)

	pub, err := r.Published(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, pub.Version())

	draft, err := r.Draft(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version())
	assert.Equal(t, 1, loader.calls)

	_, err = r.Published(ctx, "ghost")
	assert.ErrorIs(t, err, ErrSchemaNotFound)

	loader.err = errors.New("db down")
	r.Forget("product")
	_, err = r.Published(ctx, "product")
	assert.EqualError(t, err, "db down")
}

func TestRegistry_ApplyOnColdEntryLoadsStoredVersions(t *testing.T) {
	ctx := context.Background()
	stored := func() *fakeLoader {
		return &fakeLoader{versions: map[string]*Versions{
			"product": {Published: productSchema(models.StatusPublished, 1, nameField)},
		}}
	}

	t.Run("failed mutation", func(t *testing.T) {
		loader := stored()
		r := New(loader, nil)
		_, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
			return nil, errors.New("invalid draft")
		})
		require.EqualError(t, err, "invalid draft")

		pub, err := r.Published(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 1, pub.Version())
		assert.Equal(t, 1, loader.calls)
	})

	t.Run("new draft", func(t *testing.T) {
		loader := stored()
		r := New(loader, nil)
		snap, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
			return productSchema(models.StatusDraft, 2, nameField, priceField), nil
		})
		require.NoError(t, err)
		assert.Equal(t, 2, snap.Version())

		pub, err := r.Published(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 1, pub.Version())
		draft, err := r.Draft(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 2, draft.Version())
		assert.Equal(t, 1, loader.calls)
	})

	t.Run("failed load is retried", func(t *testing.T) {
		loader := stored()
		loader.err = errors.New("db down")
		r := New(loader, nil)
		_, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
			t.Fatal("mutation must not run without the stored versions")
			return nil, nil
		})
		require.EqualError(t, err, "db down")

		loader.err = nil
		pub, err := r.Published(ctx, "product")
		require.NoError(t, err)
		assert.Equal(t, 1, pub.Version())
	})

	t.Run("unknown schema stays unknown", func(t *testing.T) {
		r := New(&fakeLoader{versions: map[string]*Versions{}}, nil)
		_, err := r.Apply(ctx, "ghost", func(context.Context) (*models.SchemaDefinition, error) {
			return nil, errors.New("not found")
		})
		require.Error(t, err)
		_, err = r.Published(ctx, "ghost")
		assert.ErrorIs(t, err, ErrSchemaNotFound)
	})
}

func TestRegistry_CompilePublished(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, nameField, priceField)))

	cond, err := query.ParseCondition([]byte(`{"where":{"price":{"_gte":"9.99"}},"orderBy":[{"field":"name","direction":"asc"}]}`))
	require.NoError(t, err)

	cq, snap, err := r.CompilePublished(ctx, "product", cond)
	require.NoError(t, err)
	assert.Equal(t, "lc_product", cq.Table)
	assert.Equal(t, 1, cq.Version)
	assert.Equal(t, 1, snap.Version())

	// price is neither indexed nor unique, so it cannot be ordered on.
	cond.OrderBy = []query.OrderBy{{Field: "price", Direction: "asc"}}
	_, _, err = r.CompilePublished(ctx, "product", cond)
	assert.ErrorIs(t, err, query.ErrUnknownField)
}

func TestRegistry_RemovedFieldIsUnknownAfterPublish(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, nameField, priceField)))

	where := []byte(`{"where":{"price":{"_gt":1}}}`)
	cond, err := query.ParseCondition(where)
	require.NoError(t, err)
	_, _, err = r.CompilePublished(ctx, "product", cond)
	require.NoError(t, err)

	_, err = r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
		return productSchema(models.StatusPublished, 2, nameField), nil
	})
	require.NoError(t, err)

	_, _, err = r.CompilePublished(ctx, "product", cond)
	assert.ErrorIs(t, err, query.ErrUnknownField)
}

func TestRegistry_PublishDuringCompileConflicts(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, nameField)))

	r.afterCompile = func() {
		r.afterCompile = nil
		_, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
			return productSchema(models.StatusPublished, 2, nameField, priceField), nil
		})
		require.NoError(t, err)
	}

	_, _, err := r.CompilePublished(ctx, "product", &query.QueryCondition{})
	require.ErrorIs(t, err, query.ErrSchemaVersionConflict)
	qe, ok := query.AsQueryError(err)
	require.True(t, ok)
	assert.Equal(t, query.CodeSchemaVersionConflict, qe.Code)

	// The retry compiles against the new version.
	cq, _, err := r.CompilePublished(ctx, "product", &query.QueryCondition{})
	require.NoError(t, err)
	assert.Equal(t, 2, cq.Version)
}

func TestRegistry_ApplyFailureKeepsSnapshot(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, nameField)))

	_, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
		return nil, errors.New("ddl failed")
	})
	require.Error(t, err)

	snap, err := r.Published(ctx, "product")
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Version())
}

func TestRegistry_ReadersSeeWholeSnapshots(t *testing.T) {
	ctx := context.Background()
	r := New(nil, nil)
	v1 := []models.FieldDefinition{nameField}
	v2 := []models.FieldDefinition{nameField, priceField, skuField}
	require.NoError(t, r.Put(productSchema(models.StatusPublished, 1, v1...)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for v := 2; v < 50; v++ {
			fields := v1
			if v%2 == 0 {
				fields = v2
			}
			version := v
			_, err := r.Apply(ctx, "product", func(context.Context) (*models.SchemaDefinition, error) {
				return productSchema(models.StatusPublished, version, fields...), nil
			})
			assert.NoError(t, err)
		}
	}()

	for i := 0; i < 200; i++ {
		snap, err := r.Published(ctx, "product")
		require.NoError(t, err)
		n := len(snap.Fields()) - len(systemFields)
		if snap.Version()%2 == 0 {
			assert.Equal(t, len(v2), n)
		} else {
			assert.Equal(t, len(v1), n)
		}
	}
	wg.Wait()
}
