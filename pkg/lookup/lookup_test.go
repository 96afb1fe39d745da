package lookup

import (
	"context"
	"testing"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCustomers struct{}

func (f *fakeCustomers) Close() error { return nil }

func (f *fakeCustomers) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{Name: name, Columns: []connector.ColumnMeta{
		{Name: "id"}, {Name: "email"},
	}}, nil
}

func (f *fakeCustomers) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	if cursor.Exhausted || len(cursor.Values) > 0 {
		return value.Batch{CursorAfter: value.Cursor{Exhausted: true}}, nil
	}
	r1 := value.NewRow()
	r1.Set("customers.id", value.Int64(1))
	r1.Set("customers.email", value.String("a@example.com"))
	r2 := value.NewRow()
	r2.Set("customers.id", value.Int64(2))
	r2.Set("customers.email", value.String("b@example.com"))
	return value.Batch{Rows: []value.Row{r1, r2}, CursorAfter: value.Cursor{Exhausted: true}}, nil
}

func TestResolveLeftOuterJoinFillsNullOnNoMatch(t *testing.T) {
	r1 := value.NewRow()
	r1.Set("orders.customer_id", value.Int64(1))
	r2 := value.NewRow()
	r2.Set("orders.customer_id", value.Int64(999)) // no matching customer

	rows := []value.Row{r1, r2}
	resolver := NewResolver(&fakeCustomers{}, 2)
	spec := plan.LoadSpec{Matches: []plan.LoadMatch{
		{From: "orders", AuxTable: "customers", As: "customer", LocalColumns: []string{"customer_id"}, AuxColumns: []string{"id"}},
	}}

	err := resolver.Resolve(context.Background(), rows, spec)
	require.NoError(t, err)

	assert.Equal(t, "a@example.com", rows[0].Get("customer.email").Str)
	assert.True(t, rows[1].Get("customer.email").IsNull())
}
