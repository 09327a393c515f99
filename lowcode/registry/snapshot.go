package registry

import (
	"fmt"

	"github.com/nimbleforge/forge/internal/query"
	"github.com/nimbleforge/forge/lowcode/models"
)

// System fields exposed on every dynamic schema.
var systemFields = []query.FieldDescriptor{
	{Name: "id", Column: models.ColumnID, Type: query.TypeLong, Unique: true, Indexed: true, Sortable: true},
	{Name: "createdDate", Column: models.ColumnCreatedDate, Type: query.TypeDateTime, Indexed: true, Sortable: true},
	{Name: "lastUpdated", Column: models.ColumnLastUpdated, Type: query.TypeDateTime, Sortable: true},
}

// SystemColumn resolves a system field name or column to its column.
func SystemColumn(name string) (string, bool) {
	for _, fd := range systemFields {
		if fd.Name == name || fd.Column == name {
			return fd.Column, true
		}
	}
	return "", false
}

// IsSystemName reports whether name collides with a system field or column.
func IsSystemName(name string) bool {
	_, ok := SystemColumn(name)
	return ok
}

// Snapshot is an immutable, compiled view of one schema version. It is the
// allow-list used by the query compiler.
type Snapshot struct {
	def    *models.SchemaDefinition
	fields []query.FieldDescriptor
	byName map[string]int
}

var _ query.Schema = (*Snapshot)(nil)

// NewSnapshot validates logical types and derives field descriptors.
// A field is sortable when it is unique, indexed, or leads a composite index.
func NewSnapshot(def *models.SchemaDefinition) (*Snapshot, error) {
	def = def.Clone()

	leading := make(map[string]bool, len(def.Indexes))
	for _, idx := range def.Indexes {
		if len(idx.Columns) > 0 {
			leading[idx.Columns[0]] = true
		}
	}

	s := &Snapshot{
		def:    def,
		fields: make([]query.FieldDescriptor, 0, len(systemFields)+len(def.Fields)),
		byName: make(map[string]int, len(systemFields)+len(def.Fields)),
	}
	for _, fd := range systemFields {
		s.add(fd)
	}
	for _, f := range def.Fields {
		t, err := query.ParseLogicalType(f.LogicType)
		if err != nil {
			return nil, fmt.Errorf("schema %s field %s: %w", def.SchemaName, f.FieldName, err)
		}
		fd := query.FieldDescriptor{
			Name:     f.FieldName,
			Column:   ColumnOf(f),
			Type:     t,
			Nullable: f.Nullable,
			Unique:   f.Unique,
			Indexed:  f.Index,
		}
		if f.Length != nil {
			fd.Length = *f.Length
		}
		if f.Scale != nil {
			fd.Scale = *f.Scale
		}
		fd.Sortable = fd.Unique || fd.Indexed || leading[fd.Column] || leading[fd.Name]
		if _, dup := s.byName[fd.Name]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %s", def.SchemaName, fd.Name)
		}
		s.add(fd)
	}
	return s, nil
}

// ColumnOf returns the physical column of f, defaulting to its field name.
func ColumnOf(f models.FieldDefinition) string {
	if f.DbColumn != "" {
		return f.DbColumn
	}
	return f.FieldName
}

func (s *Snapshot) add(fd query.FieldDescriptor) {
	s.byName[fd.Name] = len(s.fields)
	s.fields = append(s.fields, fd)
}

func (s *Snapshot) Name() string  { return s.def.SchemaName }
func (s *Snapshot) Table() string { return s.def.PhysicalTable() }
func (s *Snapshot) Version() int  { return s.def.Version }
func (s *Snapshot) Dynamic() bool { return true }

func (s *Snapshot) Lookup(name string) (query.FieldDescriptor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return query.FieldDescriptor{}, false
	}
	return s.fields[i], true
}

func (s *Snapshot) Fields() []query.FieldDescriptor {
	out := make([]query.FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// Status is the lifecycle state of the version this snapshot was built from.
func (s *Snapshot) Status() models.SchemaStatus { return s.def.Status }

// Definition returns a copy of the schema version.
func (s *Snapshot) Definition() *models.SchemaDefinition {
	return s.def.Clone()
}

// UserFields returns the declared, non-system fields.
func (s *Snapshot) UserFields() []models.FieldDefinition {
	return s.def.Clone().Fields
}
