// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package repository

import (
	"context"
	"errors"

	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
)

var (
	ErrNotFound  = errors.New("record not found")
	ErrDuplicate = errors.New("duplicate key")
)

// Query schemas for the catalog tables.
var (
	SchemaCatalog = query.NewStaticSchema("schemas", "lowcode_schemas",
		query.Field("schemaName", query.TypeString).WithColumn("schema_name"),
		query.Field("tableName", query.TypeString).WithColumn("table_name"),
		query.Field("description", query.TypeText),
		query.Field("status", query.TypeString),
		query.Field("version", query.TypeInt),
		query.Field("publishedVersion", query.TypeInt).WithColumn("published_version"),
		query.Field("createdDate", query.TypeDateTime).WithColumn("created_date"),
		query.Field("lastUpdated", query.TypeDateTime).WithColumn("last_updated"),
	)

	PageCatalog = query.NewStaticSchema("pages", "lowcode_pages",
		query.Field("pageName", query.TypeString).WithColumn("page_name"),
		query.Field("schemaName", query.TypeString).WithColumn("schema_name"),
		query.Field("title", query.TypeString),
		query.Field("createdDate", query.TypeDateTime).WithColumn("created_date"),
		query.Field("lastUpdated", query.TypeDateTime).WithColumn("last_updated"),
	)
)

// Repository defines data access for low-code schemas, records and pages.
type Repository interface {
	registry.Loader

	// WithTx runs fn in one transaction shared by every call made with its ctx.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	// CreateSchema stores the catalog row and its first version.
	CreateSchema(ctx context.Context, def *models.SchemaDefinition) error

	// SaveVersion upserts def's version row and moves the catalog head to it.
	SaveVersion(ctx context.Context, def *models.SchemaDefinition) error

	// FindSchema returns the head version of a schema.
	FindSchema(ctx context.Context, name string) (*models.SchemaDefinition, error)

	// QuerySchemas returns catalog heads matching cq and the unpaged total.
	QuerySchemas(ctx context.Context, cq *query.CompiledQuery) ([]*models.SchemaDefinition, int64, error)

	// AllVersions returns the published and draft heads of every schema.
	AllVersions(ctx context.Context) ([]*models.SchemaDefinition, error)

	// ExecDDL runs statements in order.
	ExecDDL(ctx context.Context, stmts []string) error

	// InsertRecord inserts column values into table and returns the new id.
	InsertRecord(ctx context.Context, table string, values map[string]interface{}) (int64, error)

	// QueryRecords runs cq and returns rows keyed by field name.
	QueryRecords(ctx context.Context, cq *query.CompiledQuery) ([]map[string]interface{}, int64, error)

	CreatePage(ctx context.Context, page *models.PageDefinition) error
	FindPage(ctx context.Context, name string) (*models.PageDefinition, error)
	QueryPages(ctx context.Context, cq *query.CompiledQuery) ([]*models.PageDefinition, int64, error)
	// DeletePage returns true when a page was removed.
	DeletePage(ctx context.Context, name string) (bool, error)
}
