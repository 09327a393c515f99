package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupOperator(t *testing.T) {
	assert.Len(t, Operators(), 19)

	for _, op := range Operators() {
		rule, err := LookupOperator(string(op))
		require.NoError(t, err)
		assert.Equal(t, op, rule.Operator)
	}

	_, err := LookupOperator("_Eq")
	assert.ErrorIs(t, err, ErrInvalidOperator)

	_, err = LookupOperator("")
	assert.ErrorIs(t, err, ErrInvalidOperator)
}

func TestOperatorArity(t *testing.T) {
	cases := map[Operator]Arity{
		OpIsNull:    ArityUnary,
		OpIsNotNull: ArityUnary,
		OpEq:        ArityBinary,
		OpILike:     ArityBinary,
		OpIn:        ArityList,
		OpNin:       ArityList,
		OpBetween:   ArityPair,
		OpAnd:       ArityGroupList,
		OpOr:        ArityGroupList,
		OpNot:       ArityGroupSingle,
	}
	for op, want := range cases {
		assert.Equal(t, want, operatorRules[op].Arity, string(op))
	}
	assert.True(t, operatorRules[OpNot].IsGroup())
	assert.False(t, operatorRules[OpBetween].IsGroup())
}

func TestCheckShape(t *testing.T) {
	_, err := operatorRules[OpBetween].checkShape([]any{1, 2, 3})
	assert.ErrorIs(t, err, ErrInvalidOperandShape)

	_, err = operatorRules[OpEq].checkShape([]any{1})
	assert.ErrorIs(t, err, ErrInvalidOperandShape)

	_, err = operatorRules[OpIn].checkShape([]any{map[string]any{}})
	assert.ErrorIs(t, err, ErrInvalidOperandShape)

	vals, err := operatorRules[OpIsNull].checkShape(nil)
	require.NoError(t, err)
	assert.Equal(t, []any{true}, vals)

	_, err = operatorRules[OpAnd].checkShape([]any{})
	assert.ErrorIs(t, err, ErrInvalidOperator)
}
