// Package ddl generates the PostgreSQL statements that bring a dynamic
// table in line with a published schema version. Every statement is
// idempotent so a failed publish can be retried.
package ddl

import (
	"errors"
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/lib/pq"
	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/internal/query/render"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
)

// ErrIncompatibleChange is returned when a published column would change type.
var ErrIncompatibleChange = errors.New("incompatible column change")

const (
	defaultStringLength = 255
	maxIdentifier       = 63
)

// Builder renders DDL for one database schema.
type Builder struct {
	r *render.Renderer
}

func NewBuilder(schema string) *Builder {
	return &Builder{r: render.New(schema)}
}

// Statements returns the DDL moving the table from prev (the currently
// published version, nil when none) to next. Columns of removed fields stay
// in place; they only leave the allow-list.
func (b *Builder) Statements(prev, next *models.SchemaDefinition) ([]string, error) {
	existing := map[string]models.FieldDefinition{}
	if prev != nil {
		for _, f := range prev.Fields {
			existing[registry.ColumnOf(f)] = f
		}
	}

	table := b.r.Table(next.PhysicalTable())
	var stmts []string

	if prev == nil {
		cols := []string{
			pq.QuoteIdentifier(models.ColumnID) + " BIGSERIAL PRIMARY KEY",
			pq.QuoteIdentifier(models.ColumnCreatedDate) + " TIMESTAMPTZ NOT NULL DEFAULT NOW()",
			pq.QuoteIdentifier(models.ColumnLastUpdated) + " TIMESTAMPTZ NOT NULL DEFAULT NOW()",
		}
		for _, f := range next.Fields {
			def, err := columnDef(f, true)
			if err != nil {
				return nil, err
			}
			cols = append(cols, def)
		}
		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", table, strings.Join(cols, ",\n\t")))
	} else {
		for _, f := range next.Fields {
			col := registry.ColumnOf(f)
			if old, ok := existing[col]; ok {
				if !sameType(old, f) {
					return nil, fmt.Errorf("%w: column %s of %s cannot change from %s to %s",
						ErrIncompatibleChange, col, next.SchemaName, describe(old), describe(f))
				}
				continue
			}
			// Existing rows have no value, so added columns are always nullable.
			def, err := columnDef(f, false)
			if err != nil {
				return nil, err
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", table, def))
		}
	}

	for _, f := range next.Fields {
		col := registry.ColumnOf(f)
		switch {
		case f.Unique:
			stmts = append(stmts, b.index(next, true, []string{col}, ""))
		case f.Index:
			stmts = append(stmts, b.index(next, false, []string{col}, ""))
		}
	}
	for _, idx := range next.Indexes {
		cols, err := indexColumns(next, idx)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, b.index(next, idx.Unique, cols, idx.IndexName))
	}
	return stmts, nil
}

func (b *Builder) index(def *models.SchemaDefinition, unique bool, cols []string, name string) string {
	if name == "" {
		kind := "idx"
		if unique {
			kind = "uk"
		}
		name = identifier(kind + "_" + def.TableName + "_" + strings.Join(cols, "_"))
	}
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pq.QuoteIdentifier(c)
	}
	keyword := "INDEX"
	if unique {
		keyword = "UNIQUE INDEX"
	}
	return fmt.Sprintf("CREATE %s IF NOT EXISTS %s ON %s (%s)",
		keyword, pq.QuoteIdentifier(name), b.r.Table(def.PhysicalTable()), strings.Join(quoted, ", "))
}

// indexColumns maps index entries, given as field names or columns, to columns.
func indexColumns(def *models.SchemaDefinition, idx models.IndexDefinition) ([]string, error) {
	if len(idx.Columns) == 0 {
		return nil, fmt.Errorf("index %q of %s has no columns", idx.IndexName, def.SchemaName)
	}
	cols := make([]string, 0, len(idx.Columns))
	for _, c := range idx.Columns {
		col, ok := resolveColumn(def, c)
		if !ok {
			return nil, fmt.Errorf("index %q of %s references unknown column %s", idx.IndexName, def.SchemaName, c)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func resolveColumn(def *models.SchemaDefinition, name string) (string, bool) {
	if col, ok := registry.SystemColumn(name); ok {
		return col, true
	}
	for _, f := range def.Fields {
		if col := registry.ColumnOf(f); f.FieldName == name || col == name {
			return col, true
		}
	}
	return "", false
}

// identifier keeps generated names within the PostgreSQL limit.
func identifier(name string) string {
	if len(name) <= maxIdentifier {
		return name
	}
	h := fnv.New32a()
	h.Write([]byte(name))
	return fmt.Sprintf("%s_%08x", name[:maxIdentifier-9], h.Sum32())
}

func columnDef(f models.FieldDefinition, enforceNotNull bool) (string, error) {
	typ, err := ColumnType(f)
	if err != nil {
		return "", err
	}
	def := pq.QuoteIdentifier(registry.ColumnOf(f)) + " " + typ
	if enforceNotNull && !f.Nullable {
		def += " NOT NULL"
	}
	return def, nil
}

// ColumnType maps a field's logical type to a PostgreSQL column type.
func ColumnType(f models.FieldDefinition) (string, error) {
	t, err := query.ParseLogicalType(f.LogicType)
	if err != nil {
		return "", err
	}
	switch t {
	case query.TypeString:
		n := defaultStringLength
		if f.Length != nil && *f.Length > 0 {
			n = *f.Length
		}
		return fmt.Sprintf("VARCHAR(%d)", n), nil
	case query.TypeText:
		return "TEXT", nil
	case query.TypeInt:
		return "INTEGER", nil
	case query.TypeLong:
		return "BIGINT", nil
	case query.TypeDecimal:
		if f.Length == nil {
			return "NUMERIC", nil
		}
		scale := 0
		if f.Scale != nil {
			scale = *f.Scale
		}
		return fmt.Sprintf("NUMERIC(%d,%d)", *f.Length, scale), nil
	case query.TypeBool:
		return "BOOLEAN", nil
	case query.TypeDate:
		return "DATE", nil
	case query.TypeDateTime:
		return "TIMESTAMPTZ", nil
	case query.TypeJSON:
		return "JSONB", nil
	case query.TypeUUID:
		return "UUID", nil
	}
	return "", fmt.Errorf("unsupported logical type %q", f.LogicType)
}

func sameType(a, b models.FieldDefinition) bool {
	ta, errA := ColumnType(a)
	tb, errB := ColumnType(b)
	return errA == nil && errB == nil && ta == tb
}

func describe(f models.FieldDefinition) string {
	t, err := ColumnType(f)
	if err != nil {
		return f.LogicType
	}
	return t
}
