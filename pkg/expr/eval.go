package expr

import (
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/stratumhq/stratum/pkg/value"
)

// DivByZeroHook is called whenever a division by zero is evaluated,
// so callers can bump the evaluator.div_by_zero metric (§4.4 edge
// case: div-by-zero yields Null, not an error) without Eval itself
// depending on package metrics.
var DivByZeroHook func()

// OverflowHook is called whenever integer arithmetic saturates rather
// than overflows, so callers can emit the corresponding warning.
var OverflowHook func(op ArithmeticOp)

// Eval recursively evaluates n against row. row holds merged primary
// and (if the item has a LOAD clause) joined columns, keyed the same
// way Lookup.Column names them.
func Eval(n Node, row value.Row) (value.Value, error) {
	switch t := n.(type) {
	case Literal:
		return t.Value, nil
	case Lookup:
		return row.Get(t.Column), nil
	case Arithmetic:
		return evalArithmetic(t, row)
	case Condition:
		return evalCondition(t, row)
	case FunctionCall:
		return evalFunction(t, row)
	case Aggregate:
		return value.Value{}, fmt.Errorf("AGGREGATE is not evaluable: plan.Validate should have rejected this plan")
	default:
		return value.Value{}, fmt.Errorf("unknown expression node %T", n)
	}
}

// evalArithmetic implements §4.4's promotion rule: Int⊕Int stays Int
// (saturating on overflow), any Float operand promotes both sides to
// Float, and Decimal is preserved only when both sides are Decimal at
// equal scale — otherwise the result upcasts to Float.
func evalArithmetic(t Arithmetic, row value.Row) (value.Value, error) {
	l, err := Eval(t.Left, row)
	if err != nil {
		return value.Value{}, err
	}
	r, err := Eval(t.Right, row)
	if err != nil {
		return value.Value{}, err
	}
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}

	if l.Kind == value.KindInt64 && r.Kind == value.KindInt64 {
		return evalIntArithmetic(t.Op, l.Int, r.Int)
	}

	if l.Kind == value.KindDecimal && r.Kind == value.KindDecimal && l.Dec.Exponent() == r.Dec.Exponent() {
		return evalDecimalArithmetic(t.Op, l.Dec, r.Dec)
	}

	if l.Kind == value.KindFloat64 || r.Kind == value.KindFloat64 {
		lf, lok := toFloat(l)
		rf, rok := toFloat(r)
		if !lok {
			return value.Value{}, fmt.Errorf("arithmetic operand of kind %s is not numeric", l.Kind)
		}
		if !rok {
			return value.Value{}, fmt.Errorf("arithmetic operand of kind %s is not numeric", r.Kind)
		}
		return evalFloatArithmetic(t.Op, lf, rf)
	}

	ld, lok := l.AsDecimal()
	rd, rok := r.AsDecimal()
	if !lok {
		return value.Value{}, fmt.Errorf("arithmetic operand of kind %s is not numeric", l.Kind)
	}
	if !rok {
		return value.Value{}, fmt.Errorf("arithmetic operand of kind %s is not numeric", r.Kind)
	}
	// mixed Int/Decimal or unequal-scale Decimal/Decimal: upcast to Float.
	lf, _ := ld.Float64()
	rf, _ := rd.Float64()
	return evalFloatArithmetic(t.Op, lf, rf)
}

func toFloat(v value.Value) (float64, bool) {
	switch v.Kind {
	case value.KindFloat64:
		return v.Float, true
	case value.KindInt64:
		return float64(v.Int), true
	case value.KindDecimal:
		f, _ := v.Dec.Float64()
		return f, true
	default:
		return 0, false
	}
}

func evalFloatArithmetic(op ArithmeticOp, l, r float64) (value.Value, error) {
	switch op {
	case OpAdd:
		return value.Float64(l + r), nil
	case OpSub:
		return value.Float64(l - r), nil
	case OpMul:
		return value.Float64(l * r), nil
	case OpDiv:
		if r == 0 {
			if DivByZeroHook != nil {
				DivByZeroHook()
			}
			return value.Null(), nil
		}
		return value.Float64(l / r), nil
	default:
		return value.Value{}, fmt.Errorf("unknown arithmetic operator %q", op)
	}
}

func evalDecimalArithmetic(op ArithmeticOp, l, r decimal.Decimal) (value.Value, error) {
	switch op {
	case OpAdd:
		return value.Decimal(l.Add(r)), nil
	case OpSub:
		return value.Decimal(l.Sub(r)), nil
	case OpMul:
		return value.Decimal(l.Mul(r)), nil
	case OpDiv:
		if r.IsZero() {
			if DivByZeroHook != nil {
				DivByZeroHook()
			}
			return value.Null(), nil
		}
		return value.Decimal(l.Div(r)), nil
	default:
		return value.Value{}, fmt.Errorf("unknown arithmetic operator %q", op)
	}
}

// evalIntArithmetic performs native int64 arithmetic, saturating to
// math.MaxInt64/MinInt64 and invoking OverflowHook on overflow (§4.4:
// "Int⊕Int → Int, overflow saturates and flags a warning metric").
func evalIntArithmetic(op ArithmeticOp, l, r int64) (value.Value, error) {
	switch op {
	case OpAdd:
		sum := l + r
		if r > 0 && sum < l {
			return value.Int64(saturate(true, op)), nil
		}
		if r < 0 && sum > l {
			return value.Int64(saturate(false, op)), nil
		}
		return value.Int64(sum), nil
	case OpSub:
		diff := l - r
		if r < 0 && diff < l {
			return value.Int64(saturate(true, op)), nil
		}
		if r > 0 && diff > l {
			return value.Int64(saturate(false, op)), nil
		}
		return value.Int64(diff), nil
	case OpMul:
		if l == 0 || r == 0 {
			return value.Int64(0), nil
		}
		if (l == math.MinInt64 && r == -1) || (l == -1 && r == math.MinInt64) {
			return value.Int64(saturate(true, op)), nil
		}
		prod := l * r
		if prod/r != l {
			return value.Int64(saturate((l > 0) == (r > 0), op)), nil
		}
		return value.Int64(prod), nil
	case OpDiv:
		if r == 0 {
			if DivByZeroHook != nil {
				DivByZeroHook()
			}
			return value.Null(), nil
		}
		if l == math.MinInt64 && r == -1 {
			return value.Int64(saturate(true, op)), nil
		}
		return value.Int64(l / r), nil
	default:
		return value.Value{}, fmt.Errorf("unknown arithmetic operator %q", op)
	}
}

// saturate returns MaxInt64 when the true result is positive,
// MinInt64 otherwise, and fires OverflowHook.
func saturate(positive bool, op ArithmeticOp) int64 {
	if OverflowHook != nil {
		OverflowHook(op)
	}
	if positive {
		return math.MaxInt64
	}
	return math.MinInt64
}

func evalCondition(t Condition, row value.Row) (value.Value, error) {
	switch t.Op {
	case OpAnd:
		return evalShortCircuit(t, row, false)
	case OpOr:
		return evalShortCircuit(t, row, true)
	case OpNot:
		l, err := Eval(t.Left, row)
		if err != nil {
			return value.Value{}, err
		}
		if l.IsNull() {
			return value.Null(), nil
		}
		return value.Bool(!l.Bool), nil
	}

	l, err := Eval(t.Left, row)
	if err != nil {
		return value.Value{}, err
	}
	r, err := Eval(t.Right, row)
	if err != nil {
		return value.Value{}, err
	}
	if t.Op == OpEq || t.Op == OpNeq {
		eq, known := value.Equal(l, r)
		if !known {
			return value.Null(), nil
		}
		if t.Op == OpNeq {
			eq = !eq
		}
		return value.Bool(eq), nil
	}

	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}

	var cmp int
	if l.Kind == value.KindString && r.Kind == value.KindString {
		cmp = strings.Compare(l.Str, r.Str)
	} else {
		ld, lok := l.AsDecimal()
		rd, rok := r.AsDecimal()
		if !lok || !rok {
			return value.Value{}, fmt.Errorf("comparison operand is not numeric")
		}
		cmp = ld.Cmp(rd)
	}
	switch t.Op {
	case OpLt:
		return value.Bool(cmp < 0), nil
	case OpLte:
		return value.Bool(cmp <= 0), nil
	case OpGt:
		return value.Bool(cmp > 0), nil
	case OpGte:
		return value.Bool(cmp >= 0), nil
	default:
		return value.Value{}, fmt.Errorf("unknown condition operator %q", t.Op)
	}
}

// evalShortCircuit implements three-valued AND/OR: AND short-circuits
// on a known-false left operand, OR short-circuits on a known-true
// one; otherwise an unknown (NULL) operand propagates unless the
// other operand already decides the result.
func evalShortCircuit(t Condition, row value.Row, isOr bool) (value.Value, error) {
	l, err := Eval(t.Left, row)
	if err != nil {
		return value.Value{}, err
	}
	if !l.IsNull() && l.Bool == isOr {
		return value.Bool(isOr), nil // AND/false or OR/true decides it
	}
	r, err := Eval(t.Right, row)
	if err != nil {
		return value.Value{}, err
	}
	if !r.IsNull() && r.Bool == isOr {
		return value.Bool(isOr), nil
	}
	if l.IsNull() || r.IsNull() {
		return value.Null(), nil
	}
	return value.Bool(!isOr), nil // both known and neither decided: AND/true-true or OR/false-false
}

func evalFunction(t FunctionCall, row value.Row) (value.Value, error) {
	args := make([]value.Value, len(t.Args))
	for i, a := range t.Args {
		v, err := Eval(a, row)
		if err != nil {
			return value.Value{}, err
		}
		args[i] = v
	}
	switch t.Func {
	case FuncCoalesce:
		for _, a := range args {
			if !a.IsNull() {
				return a, nil
			}
		}
		return value.Null(), nil
	case FuncRound:
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("ROUND takes 2 arguments, got %d", len(args))
		}
		if args[0].IsNull() {
			return value.Null(), nil
		}
		d, ok := args[0].AsDecimal()
		if !ok {
			return value.Value{}, fmt.Errorf("ROUND operand is not numeric")
		}
		places := args[1].Int
		// decimal.RoundBank uses banker's rounding (round-half-to-even),
		// matching §4.4's required rounding mode.
		return value.Decimal(d.RoundBank(int32(places))), nil
	case FuncConcat:
		s := ""
		for _, a := range args {
			if a.IsNull() {
				return value.Null(), nil
			}
			s += a.String()
		}
		return value.String(s), nil
	case FuncUpper, FuncLower:
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("%s takes 1 argument, got %d", t.Func, len(args))
		}
		if args[0].IsNull() {
			return value.Null(), nil
		}
		s := args[0].Str
		if t.Func == FuncUpper {
			return value.String(strings.ToUpper(s)), nil
		}
		return value.String(strings.ToLower(s)), nil
	case FuncCast:
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("CAST takes 1 argument, got %d", len(args))
		}
		return castTo(args[0], t.CastTo)
	default:
		return value.Value{}, fmt.Errorf("unknown function %q", t.Func)
	}
}

func castTo(v value.Value, kind value.Kind) (value.Value, error) {
	if v.IsNull() {
		return value.Null(), nil
	}
	switch kind {
	case value.KindString:
		return value.String(v.String()), nil
	case value.KindDecimal:
		d, ok := v.AsDecimal()
		if !ok {
			return value.Value{}, fmt.Errorf("cannot CAST %s to decimal", v.Kind)
		}
		return value.Decimal(d), nil
	case value.KindInt64:
		d, ok := v.AsDecimal()
		if !ok {
			return value.Value{}, fmt.Errorf("cannot CAST %s to int64", v.Kind)
		}
		return value.Int64(d.Round(0).IntPart()), nil
	default:
		return value.Value{}, fmt.Errorf("unsupported CAST target %s", kind)
	}
}

