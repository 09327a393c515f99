package services

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/nimbleforge/forge/internal/query"
	lcerrors "github.com/nimbleforge/forge/lowcode/errors"
	"github.com/nimbleforge/forge/lowcode/models"
	"github.com/nimbleforge/forge/lowcode/registry"
)

var (
	identPattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,39}$`)
	fieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]{0,62}$`)
)

func invalidSchema(format string, a ...interface{}) error {
	return fmt.Errorf("%w: %s", lcerrors.ErrInvalidSchema, fmt.Sprintf(format, a...))
}

// snakeCase converts orderNo to order_no.
func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

// normalizeSchema fills defaults (columns, sequence names) and validates def.
func normalizeSchema(def *models.SchemaDefinition) error {
	if !identPattern.MatchString(def.SchemaName) {
		return invalidSchema("schemaName %q must match %s", def.SchemaName, identPattern)
	}
	if !identPattern.MatchString(def.TableName) {
		return invalidSchema("tableName %q must match %s", def.TableName, identPattern)
	}
	if len(def.Fields) == 0 {
		return invalidSchema("at least one field is required")
	}

	names := make(map[string]bool, len(def.Fields))
	columns := make(map[string]bool, len(def.Fields))
	for i := range def.Fields {
		f := &def.Fields[i]
		if !fieldPattern.MatchString(f.FieldName) {
			return invalidSchema("fieldName %q must match %s", f.FieldName, fieldPattern)
		}
		if f.DbColumn == "" {
			f.DbColumn = snakeCase(f.FieldName)
		}
		if !identPattern.MatchString(f.DbColumn) {
			return invalidSchema("dbColumn %q must match %s", f.DbColumn, identPattern)
		}
		if registry.IsSystemName(f.FieldName) || registry.IsSystemName(f.DbColumn) {
			return invalidSchema("field %s uses a reserved system name", f.FieldName)
		}
		if names[f.FieldName] {
			return invalidSchema("duplicate field %s", f.FieldName)
		}
		if columns[f.DbColumn] {
			return invalidSchema("duplicate column %s", f.DbColumn)
		}
		names[f.FieldName], columns[f.DbColumn] = true, true

		t, err := query.ParseLogicalType(f.LogicType)
		if err != nil {
			return invalidSchema("field %s: %v", f.FieldName, err)
		}
		f.LogicType = string(t)
		if err := checkSize(f, t); err != nil {
			return err
		}
		if f.Sequence != nil {
			if t != query.TypeString && t != query.TypeText {
				return invalidSchema("sequence field %s must be a string", f.FieldName)
			}
			if f.Sequence.Name == "" {
				f.Sequence.Name = def.SchemaName + "." + f.FieldName
			}
			if err := f.Sequence.Validate(); err != nil {
				return invalidSchema("field %s: %v", f.FieldName, err)
			}
		}
	}

	for i, idx := range def.Indexes {
		if len(idx.Columns) == 0 {
			return invalidSchema("index %d has no columns", i)
		}
		if idx.IndexName != "" && !identPattern.MatchString(idx.IndexName) {
			return invalidSchema("indexName %q must match %s", idx.IndexName, identPattern)
		}
		for _, c := range idx.Columns {
			if !names[c] && !columns[c] && !registry.IsSystemName(c) {
				return invalidSchema("index %d references unknown column %s", i, c)
			}
		}
	}
	return nil
}

func checkSize(f *models.FieldDefinition, t query.LogicalType) error {
	if f.Length != nil && *f.Length <= 0 {
		return invalidSchema("field %s: length must be positive", f.FieldName)
	}
	if f.Scale == nil {
		return nil
	}
	if t != query.TypeDecimal {
		return invalidSchema("field %s: scale only applies to decimal fields", f.FieldName)
	}
	if *f.Scale < 0 || (f.Length != nil && *f.Scale > *f.Length) {
		return invalidSchema("field %s: scale must be between 0 and length", f.FieldName)
	}
	return nil
}
