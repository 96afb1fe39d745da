// Package check implements pre-flight validation, adapted from the
// teacher's check.RunChecks/ScopeFlag pattern (referenced from
// migration.Runner though the file itself was not retrieved into the
// pack) and renamed to Stratum's own scopes.
package check

import (
	"context"
	"fmt"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
)

// Scope selects which checks to run, mirroring the teacher's
// ScopePreflight/ScopePostSetup/ScopeCutover split.
type Scope int

const (
	ScopePlan Scope = iota
	ScopeConnection
	ScopePreRun
)

// Resources a check may need; not every check uses every field.
type Resources struct {
	Plan        plan.MigrationPlan
	Sources     map[string]connector.Source
	Destinations map[string]connector.Destination
}

// Check is one named validation.
type Check struct {
	Name  string
	Scope Scope
	Run   func(ctx context.Context, r Resources) error
}

// Registry is the ordered list of checks run for a given scope,
// mirroring check.RunChecks's fixed ordering.
var Registry = []Check{
	{Name: "plan-valid", Scope: ScopePlan, Run: checkPlanValid},
	{Name: "no-cyclic-joins", Scope: ScopePlan, Run: checkNoCyclicJoins},
	{Name: "connections-open", Scope: ScopeConnection, Run: checkConnectionsOpen},
	{Name: "destination-schema-compatible", Scope: ScopePreRun, Run: checkDestinationSchema},
}

// RunChecks runs every registered check whose scope is exactly scope
// (checks of other scopes are skipped), stopping
// at the first failure and wrapping it with the check's name.
func RunChecks(ctx context.Context, scope Scope, r Resources) error {
	for _, c := range Registry {
		if c.Scope != scope {
			continue
		}
		if err := c.Run(ctx, r); err != nil {
			return fmt.Errorf("check %q failed: %w", c.Name, err)
		}
	}
	return nil
}

func checkPlanValid(ctx context.Context, r Resources) error {
	return plan.Validate(r.Plan)
}

func checkNoCyclicJoins(ctx context.Context, r Resources) error {
	// plan.Validate already performs cycle detection as part of
	// structural validation; this check exists as its own named,
	// independently-runnable scope entry for the `validate` CLI verb.
	return plan.Validate(r.Plan)
}

func checkConnectionsOpen(ctx context.Context, r Resources) error {
	for name, src := range r.Sources {
		if _, err := src.Describe(ctx, name); err != nil {
			return fmt.Errorf("source %q: %w", name, err)
		}
	}
	for name, dst := range r.Destinations {
		if _, err := dst.Describe(ctx, name); err != nil {
			return fmt.Errorf("destination %q: %w", name, err)
		}
	}
	return nil
}

func checkDestinationSchema(ctx context.Context, r Resources) error {
	for _, item := range r.Plan.Items {
		dst, ok := r.Destinations[item.DestinationName]
		if !ok {
			continue
		}
		if _, err := dst.Describe(ctx, item.DestinationName); err != nil {
			return fmt.Errorf("item %q destination %q: %w", item.ID, item.DestinationName, err)
		}
	}
	return nil
}
