package query

// Predicate is a node of the compiled where tree: *Leaf, *Group or *Not.
type Predicate interface {
	isPredicate()
}

// Leaf compares one field with its coerced operand.
//
// Operand shape by operator arity: nil for null checks, a single value for
// binary operators, []any for _in/_nin and a two-element []any for _between.
// Pattern operators carry the literal text; wildcards are added at render time.
type Leaf struct {
	Field    FieldDescriptor
	Operator Operator
	Operand  any
}

// Connective joins the children of a Group.
type Connective string

const (
	And Connective = "AND"
	Or  Connective = "OR"
)

// Group joins its children. An empty AND group matches every row; an empty OR
// group matches none.
type Group struct {
	Connective Connective
	Children   []Predicate
}

// Not negates its child.
type Not struct {
	Child Predicate
}

func (*Leaf) isPredicate()  {}
func (*Group) isPredicate() {}
func (*Not) isPredicate()   {}

// MatchAll is the predicate of an empty where clause.
func MatchAll() *Group {
	return &Group{Connective: And}
}

// MatchNone never matches.
func MatchNone() *Group {
	return &Group{Connective: Or}
}

// IsMatchAll reports whether p is an empty AND group.
func IsMatchAll(p Predicate) bool {
	g, ok := p.(*Group)
	return ok && g.Connective == And && len(g.Children) == 0
}

// Fields returns the distinct fields referenced by p in first-seen order.
func Fields(p Predicate) []FieldDescriptor {
	seen := map[string]bool{}
	var out []FieldDescriptor
	var walk func(Predicate)
	walk = func(p Predicate) {
		switch n := p.(type) {
		case *Leaf:
			if !seen[n.Field.Name] {
				seen[n.Field.Name] = true
				out = append(out, n.Field)
			}
		case *Group:
			for _, c := range n.Children {
				walk(c)
			}
		case *Not:
			walk(n.Child)
		}
	}
	walk(p)
	return out
}
