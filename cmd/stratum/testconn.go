package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stratumhq/stratum/pkg/check"
	"github.com/stratumhq/stratum/pkg/plan"
)

// TestConnCmd opens every source and destination a connections file
// names and runs the connection-scope checks, without writing a
// single row.
type TestConnCmd struct {
	Plan        string `arg:"" help:"Path to the migration plan JSON file."`
	Connections string `required:"" help:"Path to the connections JSON file."`
}

func (t *TestConnCmd) Run() error {
	data, err := os.ReadFile(t.Plan)
	if err != nil {
		return fmt.Errorf("test-conn: read plan: %w", err)
	}
	p, err := plan.UnmarshalPlan(data)
	if err != nil {
		return fmt.Errorf("test-conn: decode plan: %w", err)
	}

	ctx := context.Background()
	reg, closeConns, err := loadConnections(ctx, t.Connections)
	if err != nil {
		return err
	}
	defer closeConns()

	if err := check.RunChecks(ctx, check.ScopeConnection, check.Resources{Plan: p, Sources: reg.Sources, Destinations: reg.Destinations}); err != nil {
		return err
	}
	fmt.Println("all connections reachable")
	return nil
}
