// Package render turns compiled queries into parameterised squirrel builders
// for PostgreSQL. Operand values are only ever bound as placeholders.
package render

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/nimbleforge/forge/internal/query"
)

// KeyColumn is the primary key every rendered table carries. Select appends
// it to the ORDER BY so LIMIT/OFFSET pages are stable.
const KeyColumn = "id"

// Renderer renders against one database schema.
type Renderer struct {
	// Schema qualifies table names when set.
	Schema  string
	builder sq.StatementBuilderType
}

// New returns a renderer using dollar placeholders.
func New(schema string) *Renderer {
	return &Renderer{
		Schema:  schema,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Builder exposes the statement builder so callers share the placeholder format.
func (r *Renderer) Builder() sq.StatementBuilderType {
	return r.builder
}

// Table quotes and qualifies a table name.
func (r *Renderer) Table(name string) string {
	if r.Schema == "" {
		return pq.QuoteIdentifier(name)
	}
	return pq.QuoteIdentifier(r.Schema) + "." + pq.QuoteIdentifier(name)
}

// Select builds the page query: projection, filter, order, limit and offset.
// Rows are always ordered by the key column last.
// Columns whose name differs from the field are aliased to the field name.
func (r *Renderer) Select(cq *query.CompiledQuery) (sq.SelectBuilder, error) {
	cols := make([]string, 0, len(cq.Projection))
	for _, fd := range cq.Projection {
		cols = append(cols, projectColumn(fd))
	}
	return r.SelectColumns(cq, cols...)
}

// SelectColumns is Select with a fixed column list, for callers that scan
// whole rows into structs regardless of the projection.
func (r *Renderer) SelectColumns(cq *query.CompiledQuery, columns ...string) (sq.SelectBuilder, error) {
	b := r.builder.Select(columns...).From(r.Table(cq.Table))
	b, err := r.filter(b, cq.Predicate)
	if err != nil {
		return b, err
	}
	keyed := false
	for _, o := range cq.Order {
		b = b.OrderBy(pq.QuoteIdentifier(o.Field.Column) + " " + string(o.Direction))
		keyed = keyed || o.Field.Column == KeyColumn
	}
	if !keyed {
		b = b.OrderBy(pq.QuoteIdentifier(KeyColumn) + " ASC")
	}
	return b.Limit(uint64(cq.Limit)).Offset(uint64(cq.Offset)), nil
}

// Count builds the total-count query for the same filter, ignoring pagination.
func (r *Renderer) Count(cq *query.CompiledQuery) (sq.SelectBuilder, error) {
	b := r.builder.Select("COUNT(*)").From(r.Table(cq.Table))
	return r.filter(b, cq.Predicate)
}

func (r *Renderer) filter(b sq.SelectBuilder, p query.Predicate) (sq.SelectBuilder, error) {
	if p == nil || query.IsMatchAll(p) {
		return b, nil
	}
	cond, err := Predicate(p)
	if err != nil {
		return b, err
	}
	return b.Where(cond), nil
}

// Predicate converts a predicate tree into a squirrel condition preserving
// its AND/OR/NOT structure.
func Predicate(p query.Predicate) (sq.Sqlizer, error) {
	switch n := p.(type) {
	case *query.Leaf:
		return leaf(n)
	case *query.Group:
		if len(n.Children) == 0 {
			if n.Connective == query.Or {
				return sq.Expr("(1=0)"), nil
			}
			return sq.Expr("(1=1)"), nil
		}
		parts := make([]sq.Sqlizer, 0, len(n.Children))
		for _, c := range n.Children {
			s, err := Predicate(c)
			if err != nil {
				return nil, err
			}
			parts = append(parts, s)
		}
		if n.Connective == query.Or {
			return sq.Or(parts), nil
		}
		return sq.And(parts), nil
	case *query.Not:
		s, err := Predicate(n.Child)
		if err != nil {
			return nil, err
		}
		return not{s}, nil
	}
	return nil, fmt.Errorf("render: unsupported predicate %T", p)
}

func leaf(l *query.Leaf) (sq.Sqlizer, error) {
	col := pq.QuoteIdentifier(l.Field.Column)
	switch l.Operator {
	case query.OpEq:
		return sq.Eq{col: l.Operand}, nil
	case query.OpNe:
		return sq.NotEq{col: l.Operand}, nil
	case query.OpGt:
		return sq.Gt{col: l.Operand}, nil
	case query.OpGte:
		return sq.GtOrEq{col: l.Operand}, nil
	case query.OpLt:
		return sq.Lt{col: l.Operand}, nil
	case query.OpLte:
		return sq.LtOrEq{col: l.Operand}, nil
	case query.OpIn:
		return sq.Eq{col: l.Operand}, nil
	case query.OpNin:
		return sq.NotEq{col: l.Operand}, nil
	case query.OpIsNull:
		return sq.Expr(col + " IS NULL"), nil
	case query.OpIsNotNull:
		return sq.Expr(col + " IS NOT NULL"), nil
	case query.OpBetween:
		bounds, ok := l.Operand.([]any)
		if !ok || len(bounds) != 2 {
			return nil, fmt.Errorf("render: malformed _between operand on %s", l.Field.Name)
		}
		return sq.Expr(col+" BETWEEN ? AND ?", bounds[0], bounds[1]), nil
	case query.OpLike, query.OpILike, query.OpNotLike, query.OpLikeLeft, query.OpLikeRight:
		text, ok := l.Operand.(string)
		if !ok {
			return nil, fmt.Errorf("render: pattern operand on %s is not a string", l.Field.Name)
		}
		return sq.Expr(col+" "+likeKeyword(l.Operator)+` ? ESCAPE '\'`, Pattern(l.Operator, text)), nil
	}
	return nil, fmt.Errorf("render: unsupported operator %s", l.Operator)
}

func likeKeyword(op query.Operator) string {
	switch op {
	case query.OpILike:
		return "ILIKE"
	case query.OpNotLike:
		return "NOT LIKE"
	}
	return "LIKE"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike escapes LIKE metacharacters so they match literally under ESCAPE '\'.
func EscapeLike(s string) string {
	return likeEscaper.Replace(s)
}

// Pattern builds the bound LIKE pattern for a literal operand.
func Pattern(op query.Operator, literal string) string {
	e := EscapeLike(literal)
	switch op {
	case query.OpLikeLeft:
		return "%" + e
	case query.OpLikeRight:
		return e + "%"
	}
	return "%" + e + "%"
}

func projectColumn(fd query.FieldDescriptor) string {
	col := pq.QuoteIdentifier(fd.Column)
	if fd.Column == fd.Name {
		return col
	}
	return col + " AS " + pq.QuoteIdentifier(fd.Name)
}

type not struct {
	child sq.Sqlizer
}

func (n not) ToSql() (string, []interface{}, error) {
	sql, args, err := n.child.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + sql + ")", args, nil
}
