package main

import (
	"context"
	"fmt"
	"os"

	"github.com/stratumhq/stratum/pkg/check"
	"github.com/stratumhq/stratum/pkg/plan"
)

// ValidateCmd checks plan structure only: unique item IDs, acyclic
// load graphs, no AGGREGATE nodes. It never opens a connection.
type ValidateCmd struct {
	Plan string `arg:"" help:"Path to the migration plan JSON file."`
}

func (v *ValidateCmd) Run() error {
	data, err := os.ReadFile(v.Plan)
	if err != nil {
		return fmt.Errorf("validate: read plan: %w", err)
	}
	p, err := plan.UnmarshalPlan(data)
	if err != nil {
		return fmt.Errorf("validate: decode plan: %w", err)
	}
	if err := check.RunChecks(context.Background(), check.ScopePlan, check.Resources{Plan: p}); err != nil {
		return err
	}
	fmt.Printf("plan %q is valid: %d item(s), hash %x\n", p.Name, len(p.Items), plan.Hash(p))
	return nil
}
