// Package expr implements the FILTER/MAP expression language (§4.4):
// a small closed AST and a recursive evaluator over it. The AST is a
// pre-validated structure handed down by the (out-of-scope) SMQL
// planner, not a dynamic text expression — see DESIGN.md for why this
// is evaluated directly rather than through a general-purpose
// expression-template library.
package expr

import "github.com/stratumhq/stratum/pkg/value"

// Node is the closed set of expression AST nodes. The type switch in
// Eval is exhaustive over these five plus Aggregate, which exists
// only so plan.Validate can detect and reject it (§9 OQ3).
type Node interface {
	node()
}

// Literal is a constant value embedded in the plan.
type Literal struct {
	Value value.Value
}

// Lookup references a column on the current row or a joined table,
// e.g. "orders.total" or (after a LOAD alias) "customer.email".
type Lookup struct {
	Column string
}

type ArithmeticOp string

const (
	OpAdd ArithmeticOp = "+"
	OpSub ArithmeticOp = "-"
	OpMul ArithmeticOp = "*"
	OpDiv ArithmeticOp = "/"
)

// Arithmetic is a binary arithmetic expression over Int/Float/Decimal
// operands, promoted per §4.4's promotion rules.
type Arithmetic struct {
	Op    ArithmeticOp
	Left  Node
	Right Node
}

type ConditionOp string

const (
	OpEq  ConditionOp = "="
	OpNeq ConditionOp = "!="
	OpLt  ConditionOp = "<"
	OpLte ConditionOp = "<="
	OpGt  ConditionOp = ">"
	OpGte ConditionOp = ">="
	OpAnd ConditionOp = "AND"
	OpOr  ConditionOp = "OR"
	OpNot ConditionOp = "NOT"
)

// Condition is a comparison or boolean-combinator expression,
// evaluated under three-valued logic (true/false/unknown) per §4.4.
type Condition struct {
	Op    ConditionOp
	Left  Node
	Right Node // nil for NOT
}

type Function string

const (
	FuncRound     Function = "ROUND"
	FuncCoalesce  Function = "COALESCE"
	FuncConcat    Function = "CONCAT"
	FuncUpper     Function = "UPPER"
	FuncLower     Function = "LOWER"
	FuncCast      Function = "CAST"
)

// FunctionCall applies a named builtin to its evaluated arguments.
type FunctionCall struct {
	Func Function
	Args []Node
	// CastTo names the target value.Kind when Func == FuncCast.
	CastTo value.Kind
}

// Aggregate is intentionally unimplemented: the spec asks
// implementers to reject plans that use it (§9 OQ3). It exists in the
// AST only so plan.Validate can detect and reject it by type.
type Aggregate struct {
	Func string
	Arg  Node
}

func (Literal) node()      {}
func (Lookup) node()       {}
func (Arithmetic) node()   {}
func (Condition) node()    {}
func (FunctionCall) node() {}
func (Aggregate) node()    {}

// Walk calls fn on n and recursively on every child node, stopping at
// the first error.
func Walk(n Node, fn func(Node) error) error {
	if n == nil {
		return nil
	}
	if err := fn(n); err != nil {
		return err
	}
	switch t := n.(type) {
	case Arithmetic:
		if err := Walk(t.Left, fn); err != nil {
			return err
		}
		return Walk(t.Right, fn)
	case Condition:
		if err := Walk(t.Left, fn); err != nil {
			return err
		}
		return Walk(t.Right, fn)
	case FunctionCall:
		for _, a := range t.Args {
			if err := Walk(a, fn); err != nil {
				return err
			}
		}
	case Aggregate:
		return Walk(t.Arg, fn)
	}
	return nil
}
