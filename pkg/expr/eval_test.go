package expr

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rowWith(cols map[string]value.Value) value.Row {
	r := value.NewRow()
	for k, v := range cols {
		r.Set(k, v)
	}
	return r
}

func TestEvalArithmeticDivByZeroYieldsNull(t *testing.T) {
	called := false
	DivByZeroHook = func() { called = true }
	defer func() { DivByZeroHook = nil }()

	n := Arithmetic{Op: OpDiv, Left: Literal{value.Int64(1)}, Right: Literal{value.Int64(0)}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.True(t, v.IsNull())
	assert.True(t, called)
}

func TestEvalArithmeticIntOverflowSaturatesAndFiresHook(t *testing.T) {
	var gotOp ArithmeticOp
	OverflowHook = func(op ArithmeticOp) { gotOp = op }
	defer func() { OverflowHook = nil }()

	n := Arithmetic{Op: OpAdd, Left: Literal{value.Int64(math.MaxInt64)}, Right: Literal{value.Int64(1)}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, value.KindInt64, v.Kind)
	assert.Equal(t, int64(math.MaxInt64), v.Int)
	assert.Equal(t, OpAdd, gotOp)
}

func TestEvalArithmeticIntStaysIntWithoutOverflow(t *testing.T) {
	n := Arithmetic{Op: OpMul, Left: Literal{value.Int64(6)}, Right: Literal{value.Int64(7)}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, value.KindInt64, v.Kind)
	assert.Equal(t, int64(42), v.Int)
}

func TestEvalArithmeticFloatOperandPromotesToFloat(t *testing.T) {
	n := Arithmetic{Op: OpAdd, Left: Literal{value.Int64(1)}, Right: Literal{value.Float64(0.5)}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, value.KindFloat64, v.Kind)
	assert.Equal(t, 1.5, v.Float)
}

func TestEvalConditionStringComparisonIsByteWise(t *testing.T) {
	n := Condition{Op: OpLt, Left: Literal{value.String("apple")}, Right: Literal{value.String("banana")}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.True(t, v.Bool)

	n = Condition{Op: OpGte, Left: Literal{value.String("zebra")}, Right: Literal{value.String("apple")}}
	v, err = Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.True(t, v.Bool)
}

func TestEvalUpperLowerAreUnicodeSafe(t *testing.T) {
	n := FunctionCall{Func: FuncUpper, Args: []Node{Literal{value.String("café")}}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, "CAFÉ", v.Str)

	n = FunctionCall{Func: FuncLower, Args: []Node{Literal{value.String("CAFÉ")}}}
	v, err = Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, "café", v.Str)
}

func TestEvalConditionAndThreeValuedLogic(t *testing.T) {
	falseNode := Literal{value.Bool(false)}
	nullNode := Literal{value.Null()}
	trueNode := Literal{value.Bool(true)}

	v, err := Eval(Condition{Op: OpAnd, Left: falseNode, Right: nullNode}, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, false, v.Bool) // false AND unknown = false, short-circuited

	v, err = Eval(Condition{Op: OpAnd, Left: trueNode, Right: nullNode}, value.NewRow())
	require.NoError(t, err)
	assert.True(t, v.IsNull()) // true AND unknown = unknown

	v, err = Eval(Condition{Op: OpOr, Left: trueNode, Right: nullNode}, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, true, v.Bool) // true OR unknown = true, short-circuited
}

func TestEvalRoundUsesBankersRounding(t *testing.T) {
	n := FunctionCall{Func: FuncRound, Args: []Node{
		Literal{value.Decimal(decimal.RequireFromString("2.5"))},
		Literal{value.Int64(0)},
	}}
	v, err := Eval(n, value.NewRow())
	require.NoError(t, err)
	assert.Equal(t, "2", v.Dec.String()) // round-half-to-even: 2.5 -> 2
}

func TestEvalLookupReadsFromRow(t *testing.T) {
	row := rowWith(map[string]value.Value{"orders.total": value.Int64(42)})
	v, err := Eval(Lookup{Column: "orders.total"}, row)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v.Int)
}

func TestEvalAggregateIsRejected(t *testing.T) {
	_, err := Eval(Aggregate{Func: "SUM", Arg: Literal{value.Int64(1)}}, value.NewRow())
	assert.Error(t, err)
}
