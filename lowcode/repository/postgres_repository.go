// Copyright (c) 2025 Nimbleforge
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	sq "github.com/Masterminds/squirrel"
	uuid "github.com/gofrs/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/nimbleforge/forge/internal/database/postgres"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/query/render"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
)

const (
	tableSchemas  = "lowcode_schemas"
	tableVersions = "lowcode_schema_versions"
	tablePages    = "lowcode_pages"

	pgUniqueViolation = "23505"
)

var schemaColumns = []string{
	"id", "schema_name", "table_name", "description", "status",
	"version", "published_version", "created_date", "last_updated",
}

var pageColumns = []string{"id", "page_name", "schema_name", "title", "layout", "created_date", "last_updated"}

type postgresRepository struct {
	client *postgres.Client
	render *render.Renderer
}

// NewPostgresRepository creates a repository in the client's schema.
func NewPostgresRepository(client *postgres.Client) Repository {
	return &postgresRepository{client: client, render: render.New(client.Schema())}
}

func (r *postgresRepository) getExecutor(ctx context.Context) sqlx.ExtContext {
	return r.client.Executor(ctx)
}

func (r *postgresRepository) table(name string) string {
	return r.render.Table(name)
}

func (r *postgresRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.client.WithTx(ctx, fn)
}

type versionRow struct {
	SchemaID      uuid.UUID    `db:"schema_id"`
	Version       int          `db:"version"`
	Status        string       `db:"status"`
	Definition    []byte       `db:"definition"`
	CreatedDate   time.Time    `db:"created_date"`
	PublishedDate sql.NullTime `db:"published_date"`
}

type pageRow struct {
	ObjectId    uuid.UUID `db:"id"`
	PageName    string    `db:"page_name"`
	SchemaName  string    `db:"schema_name"`
	Title       string    `db:"title"`
	Layout      []byte    `db:"layout"`
	CreatedDate time.Time `db:"created_date"`
	LastUpdated time.Time `db:"last_updated"`
}

func (p pageRow) toModel() *models.PageDefinition {
	return &models.PageDefinition{
		ObjectId:    p.ObjectId,
		PageName:    p.PageName,
		SchemaName:  p.SchemaName,
		Title:       p.Title,
		Layout:      json.RawMessage(p.Layout),
		CreatedDate: p.CreatedDate,
		LastUpdated: p.LastUpdated,
	}
}

func wrapWrite(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pgUniqueViolation {
		return fmt.Errorf("%s: %w: %s", op, ErrDuplicate, pqErr.Constraint)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (r *postgresRepository) CreateSchema(ctx context.Context, def *models.SchemaDefinition) error {
	if def.ObjectId == uuid.Nil {
		def.ObjectId = uuid.Must(uuid.NewV4())
	}
	now := time.Now().UTC()
	def.CreatedDate, def.LastUpdated = now, now

	return r.WithTx(ctx, func(ctx context.Context) error {
		sqlStr, args, err := r.render.Builder().Insert(r.table(tableSchemas)).
			Columns(schemaColumns...).
			Values(def.ObjectId, def.SchemaName, def.TableName, def.Description, def.Status,
				def.Version, def.PublishedVersion, def.CreatedDate, def.LastUpdated).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert schema: %w", err)
		}
		if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
			return wrapWrite("insert schema", err)
		}
		return r.upsertVersion(ctx, def)
	})
}

func (r *postgresRepository) upsertVersion(ctx context.Context, def *models.SchemaDefinition) error {
	doc, err := json.Marshal(def.Definition())
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	var published interface{}
	if def.IsPublished() {
		published = time.Now().UTC()
	}

	sqlStr, args, err := r.render.Builder().Insert(r.table(tableVersions)).
		Columns("schema_id", "version", "status", "definition", "published_date").
		Values(def.ObjectId, def.Version, def.Status, string(doc), published).
		Suffix(`ON CONFLICT (schema_id, version) DO UPDATE SET
			status = EXCLUDED.status,
			definition = EXCLUDED.definition,
			published_date = EXCLUDED.published_date`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert version: %w", err)
	}
	if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return wrapWrite("upsert version", err)
	}
	return nil
}

func (r *postgresRepository) SaveVersion(ctx context.Context, def *models.SchemaDefinition) error {
	return r.WithTx(ctx, func(ctx context.Context) error {
		if err := r.upsertVersion(ctx, def); err != nil {
			return err
		}
		def.LastUpdated = time.Now().UTC()
		sqlStr, args, err := r.render.Builder().Update(r.table(tableSchemas)).
			Set("description", def.Description).
			Set("status", def.Status).
			Set("version", def.Version).
			Set("published_version", def.PublishedVersion).
			Set("last_updated", def.LastUpdated).
			Where(sq.Eq{"id": def.ObjectId}).
			ToSql()
		if err != nil {
			return fmt.Errorf("build update schema: %w", err)
		}
		res, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...)
		if err != nil {
			return wrapWrite("update schema", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("update schema %s: %w", def.SchemaName, ErrNotFound)
		}
		return nil
	})
}

func (r *postgresRepository) findCatalog(ctx context.Context, name string) (*models.SchemaDefinition, error) {
	sqlStr, args, err := r.render.Builder().Select(schemaColumns...).
		From(r.table(tableSchemas)).
		Where(sq.Eq{"schema_name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find schema: %w", err)
	}
	var def models.SchemaDefinition
	if err := sqlx.GetContext(ctx, r.getExecutor(ctx), &def, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find schema: %w", err)
	}
	return &def, nil
}

// versions loads the given version numbers of the catalog rows in heads.
func (r *postgresRepository) versions(ctx context.Context, heads []*models.SchemaDefinition, pick func(*models.SchemaDefinition) []int) ([]*models.SchemaDefinition, error) {
	if len(heads) == 0 {
		return nil, nil
	}
	byID := make(map[uuid.UUID]*models.SchemaDefinition, len(heads))
	or := sq.Or{}
	for _, h := range heads {
		byID[h.ObjectId] = h
		or = append(or, sq.Eq{"schema_id": h.ObjectId, "version": pick(h)})
	}

	sqlStr, args, err := r.render.Builder().
		Select("schema_id", "version", "status", "definition", "created_date", "published_date").
		From(r.table(tableVersions)).
		Where(or).
		OrderBy("schema_id", "version").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select versions: %w", err)
	}
	var rows []versionRow
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &rows, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select versions: %w", err)
	}

	out := make([]*models.SchemaDefinition, 0, len(rows))
	for _, row := range rows {
		head, ok := byID[row.SchemaID]
		if !ok {
			continue
		}
		def, err := assemble(head, row)
		if err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func assemble(head *models.SchemaDefinition, row versionRow) (*models.SchemaDefinition, error) {
	var doc models.VersionDefinition
	if err := json.Unmarshal(row.Definition, &doc); err != nil {
		return nil, fmt.Errorf("decode schema %s version %d: %w", head.SchemaName, row.Version, err)
	}
	def := *head
	def.Version = row.Version
	def.Status = models.SchemaStatus(row.Status)
	def.Fields = doc.Fields
	def.Indexes = doc.Indexes
	return &def, nil
}

func headVersion(h *models.SchemaDefinition) []int { return []int{h.Version} }

func liveVersions(h *models.SchemaDefinition) []int {
	if h.PublishedVersion > 0 && h.PublishedVersion != h.Version {
		return []int{h.PublishedVersion, h.Version}
	}
	return []int{h.Version}
}

func (r *postgresRepository) FindSchema(ctx context.Context, name string) (*models.SchemaDefinition, error) {
	head, err := r.findCatalog(ctx, name)
	if err != nil {
		return nil, err
	}
	defs, err := r.versions(ctx, []*models.SchemaDefinition{head}, headVersion)
	if err != nil {
		return nil, err
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("schema %s version %d: %w", name, head.Version, ErrNotFound)
	}
	return defs[0], nil
}

// LoadVersions implements registry.Loader. A missing schema yields nil.
func (r *postgresRepository) LoadVersions(ctx context.Context, name string) (*registry.Versions, error) {
	head, err := r.findCatalog(ctx, name)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defs, err := r.versions(ctx, []*models.SchemaDefinition{head}, liveVersions)
	if err != nil {
		return nil, err
	}
	v := &registry.Versions{}
	for _, def := range defs {
		if def.IsPublished() {
			v.Published = def
		} else {
			v.Draft = def
		}
	}
	return v, nil
}

func (r *postgresRepository) AllVersions(ctx context.Context) ([]*models.SchemaDefinition, error) {
	sqlStr, args, err := r.render.Builder().Select(schemaColumns...).From(r.table(tableSchemas)).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select schemas: %w", err)
	}
	var heads []*models.SchemaDefinition
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &heads, sqlStr, args...); err != nil {
		return nil, fmt.Errorf("select schemas: %w", err)
	}
	return r.versions(ctx, heads, liveVersions)
}

func (r *postgresRepository) QuerySchemas(ctx context.Context, cq *query.CompiledQuery) ([]*models.SchemaDefinition, int64, error) {
	total, err := r.count(ctx, cq)
	if err != nil || total == 0 {
		return nil, total, err
	}

	b, err := r.render.SelectColumns(cq, schemaColumns...)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query schemas: %w", err)
	}
	var heads []*models.SchemaDefinition
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &heads, sqlStr, args...); err != nil {
		return nil, 0, fmt.Errorf("query schemas: %w", err)
	}

	defs, err := r.versions(ctx, heads, headVersion)
	if err != nil {
		return nil, 0, err
	}
	// Keep the catalog order.
	pos := make(map[uuid.UUID]int, len(heads))
	for i, h := range heads {
		pos[h.ObjectId] = i
	}
	sort.SliceStable(defs, func(i, j int) bool { return pos[defs[i].ObjectId] < pos[defs[j].ObjectId] })
	return defs, total, nil
}

func (r *postgresRepository) count(ctx context.Context, cq *query.CompiledQuery) (int64, error) {
	b, err := r.render.Count(cq)
	if err != nil {
		return 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count: %w", err)
	}
	var total int64
	if err := r.getExecutor(ctx).QueryRowxContext(ctx, sqlStr, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("count %s: %w", cq.Table, err)
	}
	return total, nil
}

func (r *postgresRepository) ExecDDL(ctx context.Context, stmts []string) error {
	exec := r.getExecutor(ctx)
	for _, stmt := range stmts {
		if _, err := exec.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply ddl %q: %w", stmt, err)
		}
	}
	return nil
}

func (r *postgresRepository) InsertRecord(ctx context.Context, table string, values map[string]interface{}) (int64, error) {
	returning := "RETURNING " + pq.QuoteIdentifier(models.ColumnID)
	var (
		sqlStr string
		args   []interface{}
		err    error
	)
	if len(values) == 0 {
		sqlStr = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES %s", r.table(table), returning)
	} else {
		sqlStr, args, err = r.render.Builder().Insert(r.table(table)).
			SetMap(quoteKeys(values)).
			Suffix(returning).
			ToSql()
		if err != nil {
			return 0, fmt.Errorf("build insert record: %w", err)
		}
	}

	var id int64
	if err := r.getExecutor(ctx).QueryRowxContext(ctx, sqlStr, args...).Scan(&id); err != nil {
		return 0, wrapWrite("insert record", err)
	}
	return id, nil
}

func quoteKeys(values map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(values))
	for k, v := range values {
		out[pq.QuoteIdentifier(k)] = v
	}
	return out
}

func (r *postgresRepository) QueryRecords(ctx context.Context, cq *query.CompiledQuery) ([]map[string]interface{}, int64, error) {
	total, err := r.count(ctx, cq)
	if err != nil || total == 0 {
		return []map[string]interface{}{}, total, err
	}

	b, err := r.render.Select(cq)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query records: %w", err)
	}

	rows, err := r.getExecutor(ctx).QueryxContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	fieldTypes := make(map[string]query.LogicalType, len(cq.Projection))
	for _, fd := range cq.Projection {
		fieldTypes[fd.Name] = fd.Type
	}

	records := make([]map[string]interface{}, 0, cq.Limit)
	for rows.Next() {
		row := make(map[string]interface{}, len(cq.Projection))
		if err := rows.MapScan(row); err != nil {
			return nil, 0, fmt.Errorf("scan record: %w", err)
		}
		for k, v := range row {
			row[k] = normalize(fieldTypes[k], v)
		}
		records = append(records, row)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate records: %w", err)
	}
	return records, total, nil
}

// normalize converts driver byte slices into JSON-friendly values.
func normalize(t query.LogicalType, v interface{}) interface{} {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if t == query.TypeJSON {
		return json.RawMessage(append([]byte(nil), b...))
	}
	return string(b)
}

func (r *postgresRepository) CreatePage(ctx context.Context, page *models.PageDefinition) error {
	if page.ObjectId == uuid.Nil {
		page.ObjectId = uuid.Must(uuid.NewV4())
	}
	now := time.Now().UTC()
	page.CreatedDate, page.LastUpdated = now, now

	sqlStr, args, err := r.render.Builder().Insert(r.table(tablePages)).
		Columns(pageColumns...).
		Values(page.ObjectId, page.PageName, page.SchemaName, page.Title, string(page.Layout), page.CreatedDate, page.LastUpdated).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert page: %w", err)
	}
	if _, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...); err != nil {
		return wrapWrite("insert page", err)
	}
	return nil
}

func (r *postgresRepository) FindPage(ctx context.Context, name string) (*models.PageDefinition, error) {
	sqlStr, args, err := r.render.Builder().Select(pageColumns...).
		From(r.table(tablePages)).
		Where(sq.Eq{"page_name": name}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build find page: %w", err)
	}
	var row pageRow
	if err := sqlx.GetContext(ctx, r.getExecutor(ctx), &row, sqlStr, args...); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("find page: %w", err)
	}
	return row.toModel(), nil
}

func (r *postgresRepository) QueryPages(ctx context.Context, cq *query.CompiledQuery) ([]*models.PageDefinition, int64, error) {
	total, err := r.count(ctx, cq)
	if err != nil || total == 0 {
		return nil, total, err
	}
	b, err := r.render.SelectColumns(cq, pageColumns...)
	if err != nil {
		return nil, 0, err
	}
	sqlStr, args, err := b.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("build query pages: %w", err)
	}
	var rows []pageRow
	if err := sqlx.SelectContext(ctx, r.getExecutor(ctx), &rows, sqlStr, args...); err != nil {
		return nil, 0, fmt.Errorf("query pages: %w", err)
	}
	pages := make([]*models.PageDefinition, 0, len(rows))
	for _, row := range rows {
		pages = append(pages, row.toModel())
	}
	return pages, total, nil
}

func (r *postgresRepository) DeletePage(ctx context.Context, name string) (bool, error) {
	sqlStr, args, err := r.render.Builder().Delete(r.table(tablePages)).
		Where(sq.Eq{"page_name": name}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete page: %w", err)
	}
	res, err := r.getExecutor(ctx).ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return false, fmt.Errorf("delete page: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}
