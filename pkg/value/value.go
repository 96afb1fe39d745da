// Package value defines the closed set of runtime types the evaluator
// and connectors exchange, and the Row/Batch/Cursor shapes built from
// them.
package value

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Kind tags which field of a Value is populated. Value is a closed
// union rather than an interface{} so the evaluator never reflects on
// host types.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindFloat64
	KindDecimal
	KindString
	KindBytes
	KindTimestamp
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt64:
		return "int64"
	case KindFloat64:
		return "float64"
	case KindDecimal:
		return "decimal"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindTimestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Value is the engine's runtime representation of a single column
// value. Only the field matching Kind is meaningful.
type Value struct {
	Kind  Kind
	Bool  bool
	Int   int64
	Float float64
	Dec   decimal.Decimal
	Str   string
	Bytes []byte
	Time  time.Time
}

func Null() Value                 { return Value{Kind: KindNull} }
func Bool(b bool) Value           { return Value{Kind: KindBool, Bool: b} }
func Int64(i int64) Value         { return Value{Kind: KindInt64, Int: i} }
func Float64(f float64) Value     { return Value{Kind: KindFloat64, Float: f} }
func Decimal(d decimal.Decimal) Value { return Value{Kind: KindDecimal, Dec: d} }
func String(s string) Value       { return Value{Kind: KindString, Str: s} }
func Bytes(b []byte) Value        { return Value{Kind: KindBytes, Bytes: b} }
func Timestamp(t time.Time) Value { return Value{Kind: KindTimestamp, Time: t} }

func (v Value) IsNull() bool { return v.Kind == KindNull }

// AsDecimal widens Int64/Float64/Decimal to a decimal.Decimal for
// arithmetic promotion (§4.4 Int/Float/Decimal promotion rules).
func (v Value) AsDecimal() (decimal.Decimal, bool) {
	switch v.Kind {
	case KindInt64:
		return decimal.NewFromInt(v.Int), true
	case KindFloat64:
		return decimal.NewFromFloat(v.Float), true
	case KindDecimal:
		return v.Dec, true
	default:
		return decimal.Decimal{}, false
	}
}

func (v Value) String() string {
	switch v.Kind {
	case KindNull:
		return "<null>"
	case KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case KindInt64:
		return fmt.Sprintf("%d", v.Int)
	case KindFloat64:
		return fmt.Sprintf("%v", v.Float)
	case KindDecimal:
		return v.Dec.String()
	case KindString:
		return v.Str
	case KindBytes:
		return fmt.Sprintf("%x", v.Bytes)
	case KindTimestamp:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return "<invalid>"
	}
}

// Equal reports whether two values are equal under three-valued
// comparison rules: NULL never equals anything, including NULL.
func Equal(a, b Value) (bool, bool) {
	if a.IsNull() || b.IsNull() {
		return false, false // unknown
	}
	if a.Kind == b.Kind {
		switch a.Kind {
		case KindBool:
			return a.Bool == b.Bool, true
		case KindInt64:
			return a.Int == b.Int, true
		case KindFloat64:
			return a.Float == b.Float, true
		case KindDecimal:
			return a.Dec.Equal(b.Dec), true
		case KindString:
			return a.Str == b.Str, true
		case KindTimestamp:
			return a.Time.Equal(b.Time), true
		}
	}
	ad, aok := a.AsDecimal()
	bd, bok := b.AsDecimal()
	if aok && bok {
		return ad.Equal(bd), true
	}
	return false, true
}

// Row is a single logical record keyed by "entity.column", plus an
// ordered column list for deterministic projection.
type Row struct {
	Columns []string
	Values  map[string]Value
}

func NewRow() Row {
	return Row{Values: make(map[string]Value)}
}

func (r *Row) Set(col string, v Value) {
	if _, exists := r.Values[col]; !exists {
		r.Columns = append(r.Columns, col)
	}
	r.Values[col] = v
}

func (r Row) Get(col string) Value {
	if v, ok := r.Values[col]; ok {
		return v
	}
	return Null()
}

// Cursor identifies the last-read position of a paginated read.
type Cursor struct {
	Values    []Value
	Exhausted bool
}

// Batch is a window of rows plus the cursor to resume after it.
type Batch struct {
	Rows        []Row
	CursorAfter Cursor
}
