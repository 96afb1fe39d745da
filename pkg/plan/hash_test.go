package plan

import (
	"testing"

	"github.com/stratumhq/stratum/pkg/expr"
	"github.com/stretchr/testify/assert"
)

func TestHashIsStableAcrossItemOrder(t *testing.T) {
	a := MigrationPlan{Name: "p", Items: []MigrationItem{
		{ID: "1", SourceName: "orders"},
		{ID: "2", SourceName: "customers"},
	}}
	b := MigrationPlan{Name: "p", Items: []MigrationItem{
		{ID: "2", SourceName: "customers"},
		{ID: "1", SourceName: "orders"},
	}}
	assert.Equal(t, Hash(a), Hash(b))
}

func TestHashDiffersOnFilterChange(t *testing.T) {
	a := MigrationPlan{Name: "p", Items: []MigrationItem{
		{ID: "1", SourceName: "orders", Filter: expr.Condition{Op: expr.OpGt, Left: expr.Lookup{Column: "total"}, Right: expr.Literal{}}},
	}}
	b := MigrationPlan{Name: "p", Items: []MigrationItem{
		{ID: "1", SourceName: "orders"},
	}}
	assert.NotEqual(t, Hash(a), Hash(b))
}

func TestHashIsCaseNormalizedForLookups(t *testing.T) {
	a := MigrationPlan{Items: []MigrationItem{{ID: "1", SourceName: "t", Filter: expr.Lookup{Column: "Orders.Total"}}}}
	b := MigrationPlan{Items: []MigrationItem{{ID: "1", SourceName: "t", Filter: expr.Lookup{Column: "orders.total"}}}}
	assert.Equal(t, Hash(a), Hash(b))
}
