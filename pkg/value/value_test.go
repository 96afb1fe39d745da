package value

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestEqualNullIsNeverEqual(t *testing.T) {
	eq, known := Equal(Null(), Null())
	assert.False(t, known)
	assert.False(t, eq)

	eq, known = Equal(Null(), Int64(1))
	assert.False(t, known)
	assert.False(t, eq)
}

func TestEqualPromotesNumericKinds(t *testing.T) {
	eq, known := Equal(Int64(2), Decimal(decimal.NewFromInt(2)))
	assert.True(t, known)
	assert.True(t, eq)

	eq, known = Equal(Float64(2.5), Decimal(decimal.NewFromFloat(2.5)))
	assert.True(t, known)
	assert.True(t, eq)
}

func TestRowSetPreservesInsertionOrder(t *testing.T) {
	r := NewRow()
	r.Set("b", Int64(1))
	r.Set("a", Int64(2))
	r.Set("b", Int64(3))
	assert.Equal(t, []string{"b", "a"}, r.Columns)
	assert.Equal(t, int64(3), r.Get("b").Int)
}
