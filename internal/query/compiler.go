// Package query compiles client query conditions into renderer-neutral
// predicate trees checked against a schema's field allow-list.
package query

import (
	"math"
	"sort"
	"strings"
)

// Direction is an ordering direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

const (
	DefaultPageSize = 10
	DefaultPage     = 1
	MaxPageSize     = 500
)

// OrderSpec is one resolved ordering term.
type OrderSpec struct {
	Field     FieldDescriptor
	Direction Direction
}

// CompiledQuery is the validated form of a QueryCondition.
type CompiledQuery struct {
	Schema     string
	Table      string
	Version    int
	Projection []FieldDescriptor
	Predicate  Predicate
	Order      []OrderSpec
	Limit      int
	Offset     int
	// Page is the 1-based page number the offset was computed from.
	Page int
}

// Options tune pagination defaults.
type Options struct {
	DefaultPageSize int
	// MaxPageSize bounds size; zero disables the bound.
	MaxPageSize int
}

// Compiler turns conditions into CompiledQuery values. It holds no mutable
// state and is safe for concurrent use.
type Compiler struct {
	opts Options
}

// NewCompiler builds a compiler; non-positive defaults fall back to the package defaults.
func NewCompiler(opts Options) *Compiler {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = DefaultPageSize
	}
	if opts.MaxPageSize < 0 {
		opts.MaxPageSize = 0
	}
	return &Compiler{opts: opts}
}

var defaultCompiler = NewCompiler(Options{DefaultPageSize: DefaultPageSize, MaxPageSize: MaxPageSize})

// Compile compiles with the package defaults.
func Compile(cond *QueryCondition, s Schema) (*CompiledQuery, error) {
	return defaultCompiler.Compile(cond, s)
}

// Compile validates cond against s. Either every part compiles or an error is
// returned; no partial result is produced.
func (c *Compiler) Compile(cond *QueryCondition, s Schema) (*CompiledQuery, error) {
	if cond == nil {
		cond = &QueryCondition{}
	}

	projection, err := c.compileSelect(cond.Select, s)
	if err != nil {
		return nil, err
	}

	predicate, err := c.compileWhere(cond.Where, s)
	if err != nil {
		return nil, err
	}

	order, err := c.compileOrder(cond.OrderBy, s)
	if err != nil {
		return nil, err
	}

	limit, page, offset, err := c.compilePage(cond.Size, cond.Current)
	if err != nil {
		return nil, err
	}

	return &CompiledQuery{
		Schema:     s.Name(),
		Table:      s.Table(),
		Version:    s.Version(),
		Projection: projection,
		Predicate:  predicate,
		Order:      order,
		Limit:      limit,
		Offset:     offset,
		Page:       page,
	}, nil
}

func (c *Compiler) compileSelect(names []string, s Schema) ([]FieldDescriptor, error) {
	if len(names) == 0 {
		return VisibleFields(s), nil
	}
	seen := make(map[string]bool, len(names))
	out := make([]FieldDescriptor, 0, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		fd, err := ResolveField(s, name)
		if err != nil {
			return nil, err
		}
		seen[name] = true
		out = append(out, fd)
	}
	return out, nil
}

// compileWhere ANDs the entries of one tree level. Keys are visited in sorted
// order so parameter numbering is stable.
func (c *Compiler) compileWhere(where map[string]any, s Schema) (Predicate, error) {
	if len(where) == 0 {
		return MatchAll(), nil
	}
	keys := sortedKeys(where)
	children := make([]Predicate, 0, len(keys))
	for _, key := range keys {
		p, err := c.compileEntry(key, where[key], s)
		if err != nil {
			return nil, err
		}
		children = append(children, p)
	}
	if len(children) == 1 {
		return children[0], nil
	}
	return &Group{Connective: And, Children: children}, nil
}

func (c *Compiler) compileEntry(key string, value any, s Schema) (Predicate, error) {
	switch Operator(key) {
	case OpAnd, OpOr:
		items, ok := value.([]any)
		if !ok {
			return nil, shapeError(Operator(key), value, "expects a list of conditions")
		}
		conn := And
		if Operator(key) == OpOr {
			conn = Or
		}
		group := &Group{Connective: conn, Children: make([]Predicate, 0, len(items))}
		for _, item := range items {
			sub, ok := item.(map[string]any)
			if !ok {
				return nil, shapeError(Operator(key), item, "expects a list of conditions")
			}
			p, err := c.compileWhere(sub, s)
			if err != nil {
				return nil, err
			}
			group.Children = append(group.Children, p)
		}
		return group, nil
	case OpNot:
		sub, ok := value.(map[string]any)
		if !ok {
			return nil, shapeError(OpNot, value, "expects a single condition")
		}
		p, err := c.compileWhere(sub, s)
		if err != nil {
			return nil, err
		}
		return &Not{Child: p}, nil
	}

	if _, err := LookupOperator(key); err == nil {
		return nil, newError(ErrInvalidOperator, "operator must be nested under a field").withOperator(key)
	}

	fd, err := ResolveField(s, key)
	if err != nil {
		return nil, err
	}
	ops, ok := value.(map[string]any)
	if !ok || len(ops) == 0 {
		return nil, newError(ErrInvalidOperandShape, "field condition must map operators to operands").
			withField(key).withValue(value)
	}

	tokens := sortedKeys(ops)
	leaves := make([]Predicate, 0, len(tokens))
	for _, token := range tokens {
		rule, err := LookupOperator(token)
		if err != nil {
			return nil, err.(*QueryError).withField(key)
		}
		leaf, err := compileLeaf(fd, rule, ops[token])
		if err != nil {
			if qe, ok := AsQueryError(err); ok && qe.Field == "" {
				qe.Field = key
			}
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	if len(leaves) == 1 {
		return leaves[0], nil
	}
	return &Group{Connective: And, Children: leaves}, nil
}

func compileLeaf(fd FieldDescriptor, rule OperatorRule, raw any) (*Leaf, error) {
	if rule.IsGroup() {
		return nil, newError(ErrInvalidOperator, "logical operator cannot be applied to a field").
			withOperator(string(rule.Operator))
	}
	if err := checkApplicable(fd, rule); err != nil {
		return nil, err
	}

	vals, err := rule.checkShape(raw)
	if err != nil {
		return nil, err
	}

	leaf := &Leaf{Field: fd, Operator: rule.Operator}
	switch rule.Arity {
	case ArityUnary:
		if !vals[0].(bool) {
			leaf.Operator = negateNull(rule.Operator)
		}
	case ArityBinary:
		if rule.Class == ClassPattern {
			text, ok := raw.(string)
			if !ok {
				return nil, shapeError(rule.Operator, raw, "expects a string pattern")
			}
			leaf.Operand = patternLiteral(rule.Operator, text)
			break
		}
		v, err := Coerce(fd, raw)
		if err != nil {
			return nil, err
		}
		leaf.Operand = v
	case ArityList:
		out := make([]any, 0, len(vals))
		for _, item := range vals {
			v, err := Coerce(fd, item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		leaf.Operand = out
	case ArityPair:
		lo, err := Coerce(fd, vals[0])
		if err != nil {
			return nil, err
		}
		hi, err := Coerce(fd, vals[1])
		if err != nil {
			return nil, err
		}
		if compareValues(fd.Type, lo, hi) > 0 {
			return nil, shapeError(rule.Operator, raw, "lower bound exceeds upper bound")
		}
		leaf.Operand = []any{lo, hi}
	}
	return leaf, nil
}

func checkApplicable(fd FieldDescriptor, rule OperatorRule) error {
	ok := true
	switch {
	case fd.Type == TypeJSON:
		ok = rule.Class == ClassNull
	case rule.Class == ClassOrdering:
		ok = fd.Type.IsOrdered()
	case rule.Class == ClassPattern:
		ok = fd.Type.IsTextual()
	}
	if !ok {
		return newError(ErrInvalidOperator, "operator does not apply to "+string(fd.Type)+" fields").
			withField(fd.Name).withOperator(string(rule.Operator))
	}
	return nil
}

func negateNull(op Operator) Operator {
	if op == OpIsNull {
		return OpIsNotNull
	}
	return OpIsNull
}

// patternLiteral strips one wrapping pair of % from contains-style operands so
// "%John%" and "John" mean the same thing. Every other % stays literal.
func patternLiteral(op Operator, text string) string {
	switch op {
	case OpLike, OpILike, OpNotLike:
		if len(text) >= 2 && strings.HasPrefix(text, "%") && strings.HasSuffix(text, "%") {
			return text[1 : len(text)-1]
		}
	}
	return text
}

func (c *Compiler) compileOrder(terms []OrderBy, s Schema) ([]OrderSpec, error) {
	seen := make(map[string]bool, len(terms))
	out := make([]OrderSpec, 0, len(terms))
	for _, term := range terms {
		dir, err := parseDirection(term)
		if err != nil {
			return nil, err
		}
		fd, err := ResolveSortable(s, term.Field)
		if err != nil {
			return nil, err
		}
		if seen[term.Field] {
			continue
		}
		seen[term.Field] = true
		out = append(out, OrderSpec{Field: fd, Direction: dir})
	}
	return out, nil
}

func parseDirection(term OrderBy) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(term.Direction)) {
	case "", "asc":
		return Asc, nil
	case "desc":
		return Desc, nil
	}
	return "", newError(ErrInvalidOperator, "direction must be asc or desc").
		withField(term.Field).withValue(term.Direction)
}

func (c *Compiler) compilePage(size, current *int) (limit, page, offset int, err error) {
	limit, page = c.opts.DefaultPageSize, DefaultPage
	if size != nil {
		limit = *size
	}
	if current != nil {
		page = *current
	}
	if limit <= 0 {
		return 0, 0, 0, newError(ErrInvalidPagination, "size must be positive").withValue(limit)
	}
	if c.opts.MaxPageSize > 0 && limit > c.opts.MaxPageSize {
		return 0, 0, 0, newError(ErrInvalidPagination, "size exceeds maximum page size").withValue(limit)
	}
	if page <= 0 {
		return 0, 0, 0, newError(ErrInvalidPagination, "current must be positive").withValue(page)
	}
	if page-1 > math.MaxInt32/limit {
		return 0, 0, 0, newError(ErrInvalidPagination, "current is out of range").withValue(page)
	}
	return limit, page, (page - 1) * limit, nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
