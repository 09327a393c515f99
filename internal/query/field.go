package query

import (
	"fmt"
	"sort"
	"strings"
)

// LogicalType is the storage-independent type of a field. It selects operator
// semantics: "_gt" on a string field compares lexicographically, on an int
// field numerically.
type LogicalType string

const (
	TypeString   LogicalType = "string"
	TypeText     LogicalType = "text"
	TypeInt      LogicalType = "int"
	TypeLong     LogicalType = "long"
	TypeDecimal  LogicalType = "decimal"
	TypeBool     LogicalType = "bool"
	TypeDate     LogicalType = "date"
	TypeDateTime LogicalType = "datetime"
	TypeJSON     LogicalType = "json"
	TypeUUID     LogicalType = "uuid"
)

var logicalTypes = map[LogicalType]struct{}{
	TypeString: {}, TypeText: {}, TypeInt: {}, TypeLong: {}, TypeDecimal: {},
	TypeBool: {}, TypeDate: {}, TypeDateTime: {}, TypeJSON: {}, TypeUUID: {},
}

// ParseLogicalType accepts a type name case-insensitively.
func ParseLogicalType(s string) (LogicalType, error) {
	t := LogicalType(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := logicalTypes[t]; !ok {
		return "", fmt.Errorf("unsupported logical type %q", s)
	}
	return t, nil
}

// IsTextual reports whether pattern operators apply.
func (t LogicalType) IsTextual() bool {
	return t == TypeString || t == TypeText
}

// IsOrdered reports whether range operators apply.
func (t LogicalType) IsOrdered() bool {
	return t != TypeBool && t != TypeJSON && t != TypeUUID
}

// FieldDescriptor resolves a client-visible field name to its physical column.
type FieldDescriptor struct {
	Name     string
	Column   string
	Type     LogicalType
	Length   int
	Scale    int
	Nullable bool
	Unique   bool
	Indexed  bool
	Sortable bool
	// Hidden fields are stored but never resolvable from a query.
	Hidden bool
}

// Schema is the allow-list a query is compiled against.
type Schema interface {
	// Name identifies the schema in errors and logs.
	Name() string
	// Table is the physical relation queried.
	Table() string
	// Version is the revision the field set belongs to; static schemas return 0.
	Version() int
	// Dynamic schemas require fields to be sortable before they can be ordered on.
	Dynamic() bool
	Lookup(name string) (FieldDescriptor, bool)
	// Fields returns the declared fields in declaration order.
	Fields() []FieldDescriptor
}

// ResolveField looks a field up in the schema's allow-list. Hidden and
// undeclared fields are reported identically.
func ResolveField(s Schema, name string) (FieldDescriptor, error) {
	fd, ok := s.Lookup(name)
	if !ok || fd.Hidden {
		return FieldDescriptor{}, NewUnknownFieldError(name)
	}
	return fd, nil
}

// ResolveSortable additionally requires dynamic schema fields to be sortable.
func ResolveSortable(s Schema, name string) (FieldDescriptor, error) {
	fd, err := ResolveField(s, name)
	if err != nil {
		return fd, err
	}
	if s.Dynamic() && !fd.Sortable {
		return FieldDescriptor{}, newError(ErrUnknownField, "field is not sortable").withField(name)
	}
	return fd, nil
}

// VisibleFields returns the fields projected when a query selects nothing.
func VisibleFields(s Schema) []FieldDescriptor {
	all := s.Fields()
	out := make([]FieldDescriptor, 0, len(all))
	for _, fd := range all {
		if !fd.Hidden {
			out = append(out, fd)
		}
	}
	return out
}

// StaticSchema is a field set declared in code for a fixed table.
type StaticSchema struct {
	name   string
	table  string
	fields []FieldDescriptor
	byName map[string]int
}

// NewStaticSchema declares a schema. Static fields are always sortable and a
// field without a column maps to a column of the same name.
func NewStaticSchema(name, table string, fields ...FieldDescriptor) *StaticSchema {
	s := &StaticSchema{
		name:   name,
		table:  table,
		fields: make([]FieldDescriptor, 0, len(fields)),
		byName: make(map[string]int, len(fields)),
	}
	for _, fd := range fields {
		if fd.Column == "" {
			fd.Column = fd.Name
		}
		fd.Sortable = true
		if _, dup := s.byName[fd.Name]; dup {
			panic(fmt.Sprintf("query: duplicate field %q in schema %q", fd.Name, name))
		}
		s.byName[fd.Name] = len(s.fields)
		s.fields = append(s.fields, fd)
	}
	return s
}

func (s *StaticSchema) Name() string  { return s.name }
func (s *StaticSchema) Table() string { return s.table }
func (s *StaticSchema) Version() int  { return 0 }
func (s *StaticSchema) Dynamic() bool { return false }

func (s *StaticSchema) Lookup(name string) (FieldDescriptor, bool) {
	i, ok := s.byName[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return s.fields[i], true
}

func (s *StaticSchema) Fields() []FieldDescriptor {
	out := make([]FieldDescriptor, len(s.fields))
	copy(out, s.fields)
	return out
}

// FieldNames lists the visible field names sorted alphabetically.
func FieldNames(s Schema) []string {
	fields := VisibleFields(s)
	names := make([]string, 0, len(fields))
	for _, fd := range fields {
		names = append(names, fd.Name)
	}
	sort.Strings(names)
	return names
}

// Field is a shorthand for declaring static fields.
func Field(name string, t LogicalType) FieldDescriptor {
	return FieldDescriptor{Name: name, Column: name, Type: t, Nullable: true}
}

// WithColumn sets the physical column of a declared field.
func (fd FieldDescriptor) WithColumn(column string) FieldDescriptor {
	fd.Column = column
	return fd
}

// AsHidden marks a field as stored but not queryable.
func (fd FieldDescriptor) AsHidden() FieldDescriptor {
	fd.Hidden = true
	return fd
}
