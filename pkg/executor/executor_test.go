package executor

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/expr"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/state"
	"github.com/stratumhq/stratum/pkg/value"
)

type fakeSource struct {
	rows []value.Row
}

func (f *fakeSource) Close() error { return nil }

func (f *fakeSource) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{Name: name, Columns: []connector.ColumnMeta{{Name: "id", PrimaryKey: true}, {Name: "amount"}}}, nil
}

func (f *fakeSource) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	start := 0
	if len(cursor.Values) == 1 {
		start = int(cursor.Values[0].Int)
	}
	end := start + limit
	if end > len(f.rows) {
		end = len(f.rows)
	}
	if start >= len(f.rows) {
		return value.Batch{CursorAfter: value.Cursor{Exhausted: true}}, nil
	}
	page := f.rows[start:end]
	exhausted := end >= len(f.rows)
	return value.Batch{
		Rows:        page,
		CursorAfter: value.Cursor{Values: []value.Value{value.Int64(int64(end))}, Exhausted: exhausted},
	}, nil
}

type fakeDestination struct {
	mu      sync.Mutex
	written []value.Row
}

func (f *fakeDestination) Close() error { return nil }
func (f *fakeDestination) Capabilities() connector.Capabilities {
	return connector.Capabilities{}
}
func (f *fakeDestination) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{Name: name}, nil
}
func (f *fakeDestination) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	return nil
}
func (f *fakeDestination) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	return 0, nil
}
func (f *fakeDestination) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	return 0, nil
}
func (f *fakeDestination) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written = append(f.written, rows...)
	return int64(len(rows)), nil
}

func TestExecutorRunWritesAllRowsThroughFilterAndMap(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 5; i++ {
		row := value.NewRow()
		row.Set("id", value.Int64(int64(i)))
		row.Set("amount", value.Int64(int64(i * 10)))
		src.rows = append(src.rows, row)
	}
	dst := &fakeDestination{}

	p := plan.MigrationPlan{
		Name: "test-run",
		Items: []plan.MigrationItem{
			{
				ID:              "orders",
				SourceKind:      plan.SourceTable,
				SourceName:      "orders_src",
				Offset:          plan.OffsetSpec{Strategy: plan.OffsetPk, Columns: []string{"id"}},
				Filter:          expr.Condition{Op: expr.OpGt, Left: expr.Lookup{Column: "amount"}, Right: expr.Literal{Value: value.Int64(0)}},
				DestinationKind: plan.DestinationTable,
				DestinationName: "orders_dst",
			},
		},
	}

	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	ex := New(store, Registry{
		Sources:      map[string]connector.Source{"orders_src": src},
		Destinations: map[string]connector.Destination{"orders_dst": dst},
	}, nil, nil, nil)

	rep, err := ex.Run(context.Background(), p, "run-1")
	require.NoError(t, err)
	require.Len(t, rep.Items, 1)
	require.Equal(t, "finished", rep.Items[0].State)
	// row with amount=0 is filtered out by "amount > 0"
	require.Equal(t, int64(4), rep.Items[0].RowsWritten)
	require.Len(t, dst.written, 4)
}

// failAfterNDestination writes successfully for its first n calls to
// Insert, then fails every call after that — used to simulate a crash
// partway through a run so a resumed run can be checked against the
// last committed checkpoint cursor.
type failAfterNDestination struct {
	mu      sync.Mutex
	n       int
	calls   int
	written []value.Row
}

func (f *failAfterNDestination) Close() error { return nil }
func (f *failAfterNDestination) Capabilities() connector.Capabilities {
	return connector.Capabilities{}
}
func (f *failAfterNDestination) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{Name: name}, nil
}
func (f *failAfterNDestination) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	return nil
}
func (f *failAfterNDestination) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	return 0, nil
}
func (f *failAfterNDestination) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	return 0, nil
}
func (f *failAfterNDestination) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls > f.n {
		return 0, errAlwaysFails
	}
	f.written = append(f.written, rows...)
	return int64(len(rows)), nil
}

var errAlwaysFails = fmt.Errorf("destination unavailable")

func TestExecutorResumesFromCheckpointCursorAfterCrash(t *testing.T) {
	src := &fakeSource{}
	for i := 0; i < 3; i++ {
		row := value.NewRow()
		row.Set("id", value.Int64(int64(i)))
		src.rows = append(src.rows, row)
	}

	p := plan.MigrationPlan{
		Name: "resume-test",
		Items: []plan.MigrationItem{
			{
				ID:              "orders",
				SourceKind:      plan.SourceTable,
				SourceName:      "orders_src",
				Offset:          plan.OffsetSpec{Strategy: plan.OffsetPk, Columns: []string{"id"}},
				DestinationKind: plan.DestinationTable,
				DestinationName: "orders_dst",
			},
		},
		Settings: plan.Settings{BatchSize: 1},
	}

	statePath := filepath.Join(t.TempDir(), "state.db")
	store, err := state.Open(statePath)
	require.NoError(t, err)

	crashDst := &failAfterNDestination{n: 1}
	ex := New(store, Registry{
		Sources:      map[string]connector.Source{"orders_src": src},
		Destinations: map[string]connector.Destination{"orders_dst": crashDst},
	}, nil, nil, nil)
	_, err = ex.Run(context.Background(), p, "run-crash")
	require.Error(t, err)
	require.Len(t, crashDst.written, 1)
	require.NoError(t, store.Close())

	store, err = state.Open(statePath)
	require.NoError(t, err)
	defer store.Close()

	okDst := &fakeDestination{}
	ex2 := New(store, Registry{
		Sources:      map[string]connector.Source{"orders_src": src},
		Destinations: map[string]connector.Destination{"orders_dst": okDst},
	}, nil, nil, nil)
	rep, err := ex2.Run(context.Background(), p, "run-resume")
	require.NoError(t, err)
	require.Equal(t, "finished", rep.Items[0].State)
	// only the rows after the crashed run's checkpoint cursor are written
	require.Len(t, okDst.written, 2)
}

func TestExecutorRunFailsOnUnknownSource(t *testing.T) {
	p := plan.MigrationPlan{
		Items: []plan.MigrationItem{{ID: "x", SourceName: "missing", DestinationName: "missing"}},
	}
	store, err := state.Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	defer store.Close()

	ex := New(store, Registry{}, nil, nil, nil)
	_, err = ex.Run(context.Background(), p, "run-2")
	require.Error(t, err)
}
