package models

import (
	"time"

	uuid "github.com/gofrs/uuid"
	"github.com/nimbleforge/forge/lowcode/sequence"
)

// SchemaStatus is the lifecycle state of a schema version.
type SchemaStatus string

const (
	StatusDraft     SchemaStatus = "DRAFT"
	StatusPublished SchemaStatus = "PUBLISHED"
)

// System columns present on every dynamic table.
const (
	ColumnID          = "id"
	ColumnCreatedDate = "created_date"
	ColumnLastUpdated = "last_updated"
)

// TablePrefix namespaces dynamic tables away from framework tables.
const TablePrefix = "lc_"

// SchemaDefinition is one version of a runtime-defined entity.
type SchemaDefinition struct {
	ObjectId         uuid.UUID         `json:"objectId" db:"id"`
	SchemaName       string            `json:"schemaName" db:"schema_name"`
	TableName        string            `json:"tableName" db:"table_name"`
	Description      string            `json:"description" db:"description"`
	Status           SchemaStatus      `json:"status" db:"status"`
	Version          int               `json:"version" db:"version"`
	PublishedVersion int               `json:"publishedVersion" db:"published_version"`
	Fields           []FieldDefinition `json:"fields" db:"-"`
	Indexes          []IndexDefinition `json:"indexes" db:"-"`
	CreatedDate      time.Time         `json:"createdDate" db:"created_date"`
	LastUpdated      time.Time         `json:"lastUpdated" db:"last_updated"`
}

// FieldDefinition declares one column of a dynamic schema.
type FieldDefinition struct {
	FieldName string         `json:"fieldName"`
	DbColumn  string         `json:"dbColumn"`
	LogicType string         `json:"logicType"`
	Length    *int           `json:"length,omitempty"`
	Scale     *int           `json:"scale,omitempty"`
	Nullable  bool           `json:"nullable"`
	Unique    bool           `json:"unique"`
	Index     bool           `json:"index"`
	Sequence  *sequence.Rule `json:"sequence,omitempty"`
}

// IndexDefinition declares a composite index over field columns.
type IndexDefinition struct {
	IndexName string   `json:"indexName,omitempty"`
	Columns   []string `json:"columns"`
	Unique    bool     `json:"unique"`
}

// VersionDefinition is the JSON document stored per schema version.
type VersionDefinition struct {
	Fields  []FieldDefinition `json:"fields"`
	Indexes []IndexDefinition `json:"indexes"`
}

// PhysicalTable is the name of the table backing the schema.
func (s *SchemaDefinition) PhysicalTable() string {
	return TablePrefix + s.TableName
}

// IsPublished reports whether this version is live.
func (s *SchemaDefinition) IsPublished() bool {
	return s.Status == StatusPublished
}

// Clone returns a deep copy safe to mutate.
func (s *SchemaDefinition) Clone() *SchemaDefinition {
	if s == nil {
		return nil
	}
	c := *s
	c.Fields = make([]FieldDefinition, len(s.Fields))
	for i, f := range s.Fields {
		c.Fields[i] = f.clone()
	}
	c.Indexes = make([]IndexDefinition, len(s.Indexes))
	for i, idx := range s.Indexes {
		idx.Columns = append([]string(nil), idx.Columns...)
		c.Indexes[i] = idx
	}
	return &c
}

func (f FieldDefinition) clone() FieldDefinition {
	if f.Length != nil {
		v := *f.Length
		f.Length = &v
	}
	if f.Scale != nil {
		v := *f.Scale
		f.Scale = &v
	}
	if f.Sequence != nil {
		r := *f.Sequence
		f.Sequence = &r
	}
	return f
}

// Field returns the field called name.
func (s *SchemaDefinition) Field(name string) (FieldDefinition, bool) {
	for _, f := range s.Fields {
		if f.FieldName == name {
			return f, true
		}
	}
	return FieldDefinition{}, false
}

// Definition extracts the versioned part of the schema.
func (s *SchemaDefinition) Definition() VersionDefinition {
	return VersionDefinition{Fields: s.Fields, Indexes: s.Indexes}
}
