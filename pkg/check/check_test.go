package check

import (
	"context"
	"testing"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSrc struct{ describeErr error }

func (f *fakeSrc) Close() error { return nil }
func (f *fakeSrc) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{}, f.describeErr
}
func (f *fakeSrc) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	return value.Batch{}, nil
}

func TestRunChecksPlanScopeRejectsInvalidPlan(t *testing.T) {
	p := plan.MigrationPlan{Items: []plan.MigrationItem{{ID: "", SourceName: "x"}}}
	err := RunChecks(context.Background(), ScopePlan, Resources{Plan: p})
	assert.Error(t, err)
}

func TestRunChecksConnectionScopeSurfacesDescribeError(t *testing.T) {
	r := Resources{Sources: map[string]connector.Source{"orders": &fakeSrc{describeErr: assert.AnError}}}
	err := RunChecks(context.Background(), ScopeConnection, r)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orders")
}

func TestRunChecksConnectionScopePassesWhenHealthy(t *testing.T) {
	r := Resources{Sources: map[string]connector.Source{"orders": &fakeSrc{}}}
	assert.NoError(t, RunChecks(context.Background(), ScopeConnection, r))
}
