package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/stratumhq/stratum/pkg/events"
	"github.com/stratumhq/stratum/pkg/executor"
	"github.com/stratumhq/stratum/pkg/metrics"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/state"
)

// MigrateCmd runs a plan to completion, the CLI's main verb.
type MigrateCmd struct {
	Plan        string `arg:"" help:"Path to the migration plan JSON file."`
	Connections string `required:"" help:"Path to the connections JSON file mapping source/destination names to connectors."`
	State       string `required:"" help:"Path to the bbolt state file (created if absent)."`
	RunID       string `default:"run" help:"Identifier for this run, used in the report and event stream."`
}

func (m *MigrateCmd) Run() error {
	log := logrus.StandardLogger()
	ctx := context.Background()

	data, err := os.ReadFile(m.Plan)
	if err != nil {
		return fmt.Errorf("migrate: read plan: %w", err)
	}
	p, err := plan.UnmarshalPlan(data)
	if err != nil {
		return fmt.Errorf("migrate: decode plan: %w", err)
	}

	reg, closeConns, err := loadConnections(ctx, m.Connections)
	if err != nil {
		return err
	}
	defer closeConns()

	store, err := state.Open(m.State)
	if err != nil {
		return fmt.Errorf("migrate: open state store: %w", err)
	}
	defer store.Close()

	sink := metrics.NewPrometheusSink(prometheus.DefaultRegisterer)
	bus := events.NewBus()
	sub, cancel := bus.Subscribe()
	defer cancel()
	go func() {
		for ev := range sub {
			log.WithField("item", ev.ItemID).Infof("event: %s", ev.Type)
		}
	}()

	ex := executor.New(store, reg, sink, bus, log)
	rep, err := ex.Run(ctx, p, m.RunID)
	if err != nil {
		log.WithError(err).Error("migrate: run finished with errors")
	}

	out, marshalErr := json.MarshalIndent(rep, "", "  ")
	if marshalErr == nil {
		fmt.Println(string(out))
	}
	return err
}
