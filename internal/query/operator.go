package query

// Operator is a GraphQL-style filter token such as "_eq" or "_between".
type Operator string

const (
	OpEq        Operator = "_eq"
	OpNe        Operator = "_ne"
	OpGt        Operator = "_gt"
	OpGte       Operator = "_gte"
	OpLt        Operator = "_lt"
	OpLte       Operator = "_lte"
	OpLike      Operator = "_like"
	OpILike     Operator = "_ilike"
	OpLikeLeft  Operator = "_like_left"
	OpLikeRight Operator = "_like_right"
	OpNotLike   Operator = "_not_like"
	OpIn        Operator = "_in"
	OpNin       Operator = "_nin"
	OpIsNull    Operator = "_is_null"
	OpIsNotNull Operator = "_is_not_null"
	OpAnd       Operator = "_and"
	OpOr        Operator = "_or"
	OpBetween   Operator = "_between"
	OpNot       Operator = "_not"
)

// Arity describes the operand shape an operator accepts.
type Arity int

const (
	ArityUnary       Arity = iota // flag operand: true, false or null
	ArityBinary                   // one scalar
	ArityList                     // non-empty list of scalars
	ArityPair                     // exactly two scalars
	ArityGroupList                // list of nested conditions
	ArityGroupSingle              // one nested condition
)

func (a Arity) String() string {
	switch a {
	case ArityUnary:
		return "unary"
	case ArityBinary:
		return "binary"
	case ArityList:
		return "list"
	case ArityPair:
		return "pair"
	case ArityGroupList:
		return "group-list"
	case ArityGroupSingle:
		return "group-single"
	default:
		return "unknown"
	}
}

// OperatorClass groups operators that share type rules.
type OperatorClass int

const (
	ClassEquality OperatorClass = iota
	ClassOrdering
	ClassPattern
	ClassMembership
	ClassNull
	ClassLogical
)

// OperatorRule is the registry entry for one operator token.
type OperatorRule struct {
	Operator Operator
	Arity    Arity
	Class    OperatorClass
}

// IsGroup reports whether the operator composes nested conditions.
func (r OperatorRule) IsGroup() bool {
	return r.Arity == ArityGroupList || r.Arity == ArityGroupSingle
}

var operatorRules = map[Operator]OperatorRule{
	OpEq:        {OpEq, ArityBinary, ClassEquality},
	OpNe:        {OpNe, ArityBinary, ClassEquality},
	OpGt:        {OpGt, ArityBinary, ClassOrdering},
	OpGte:       {OpGte, ArityBinary, ClassOrdering},
	OpLt:        {OpLt, ArityBinary, ClassOrdering},
	OpLte:       {OpLte, ArityBinary, ClassOrdering},
	OpLike:      {OpLike, ArityBinary, ClassPattern},
	OpILike:     {OpILike, ArityBinary, ClassPattern},
	OpLikeLeft:  {OpLikeLeft, ArityBinary, ClassPattern},
	OpLikeRight: {OpLikeRight, ArityBinary, ClassPattern},
	OpNotLike:   {OpNotLike, ArityBinary, ClassPattern},
	OpIn:        {OpIn, ArityList, ClassMembership},
	OpNin:       {OpNin, ArityList, ClassMembership},
	OpIsNull:    {OpIsNull, ArityUnary, ClassNull},
	OpIsNotNull: {OpIsNotNull, ArityUnary, ClassNull},
	OpAnd:       {OpAnd, ArityGroupList, ClassLogical},
	OpOr:        {OpOr, ArityGroupList, ClassLogical},
	OpBetween:   {OpBetween, ArityPair, ClassOrdering},
	OpNot:       {OpNot, ArityGroupSingle, ClassLogical},
}

// LookupOperator resolves a token to its rule. Lookup is case-sensitive and
// unknown tokens never fall back to a default.
func LookupOperator(token string) (OperatorRule, error) {
	rule, ok := operatorRules[Operator(token)]
	if !ok {
		return OperatorRule{}, newError(ErrInvalidOperator, "operator not found").
			withOperator(token)
	}
	return rule, nil
}

// Operators returns every registered token.
func Operators() []Operator {
	out := make([]Operator, 0, len(operatorRules))
	for op := range operatorRules {
		out = append(out, op)
	}
	return out
}

// checkShape validates the raw operand against the rule's arity and returns the
// operand values to coerce. Unary operators return their flag as a bool.
func (r OperatorRule) checkShape(raw any) ([]any, error) {
	switch r.Arity {
	case ArityUnary:
		switch v := raw.(type) {
		case nil:
			return []any{true}, nil
		case bool:
			return []any{v}, nil
		default:
			return nil, shapeError(r.Operator, raw, "expects true, false or null")
		}
	case ArityBinary:
		if raw == nil {
			return nil, shapeError(r.Operator, raw, "operand must not be null, use _is_null")
		}
		if isComposite(raw) {
			return nil, shapeError(r.Operator, raw, "expects a single value")
		}
		return []any{raw}, nil
	case ArityList:
		list, ok := raw.([]any)
		if !ok {
			return nil, shapeError(r.Operator, raw, "expects a list")
		}
		if len(list) == 0 {
			return nil, shapeError(r.Operator, raw, "expects a non-empty list")
		}
		for _, item := range list {
			if item == nil || isComposite(item) {
				return nil, shapeError(r.Operator, raw, "list items must be non-null scalars")
			}
		}
		return list, nil
	case ArityPair:
		list, ok := raw.([]any)
		if !ok || len(list) != 2 {
			return nil, shapeError(r.Operator, raw, "expects exactly two values")
		}
		for _, item := range list {
			if item == nil || isComposite(item) {
				return nil, shapeError(r.Operator, raw, "bounds must be non-null scalars")
			}
		}
		return list, nil
	default:
		return nil, newError(ErrInvalidOperator, "logical operator used as a field operator").
			withOperator(string(r.Operator))
	}
}

func isComposite(v any) bool {
	switch v.(type) {
	case []any, map[string]any:
		return true
	}
	return false
}

func shapeError(op Operator, value any, msg string) *QueryError {
	return newError(ErrInvalidOperandShape, string(op)+" "+msg).
		withOperator(string(op)).
		withValue(value)
}
