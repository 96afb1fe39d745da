package main

import (
	"fmt"
	"os"

	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/state"
)

// ProgressCmd prints the last checkpoint recorded for each item in a
// plan, reading the state store directly without touching any source
// or destination connection.
type ProgressCmd struct {
	Plan  string `arg:"" help:"Path to the migration plan JSON file."`
	State string `required:"" help:"Path to the bbolt state file."`
}

func (p *ProgressCmd) Run() error {
	data, err := os.ReadFile(p.Plan)
	if err != nil {
		return fmt.Errorf("progress: read plan: %w", err)
	}
	mp, err := plan.UnmarshalPlan(data)
	if err != nil {
		return fmt.Errorf("progress: decode plan: %w", err)
	}
	planHash := fmt.Sprintf("%x", plan.Hash(mp))

	store, err := state.Open(p.State)
	if err != nil {
		return fmt.Errorf("progress: open state store: %w", err)
	}
	defer store.Close()

	for _, item := range mp.Items {
		ckp, found, err := store.LoadCheckpoint(planHash, item.ID)
		if err != nil {
			return fmt.Errorf("progress: item %q: %w", item.ID, err)
		}
		if !found {
			fmt.Printf("%s: not started\n", item.ID)
			continue
		}
		fmt.Printf("%s: %d rows written, last updated %s\n", item.ID, ckp.RowsWritten, ckp.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}
