// Package executor wires every other package into the per-item
// execution loop described across §4: paginate the primary source,
// resolve LOAD joins, apply FILTER/MAP, batch, write, checkpoint,
// retry, and publish events — one pipeline.Machine-driven goroutine
// per MigrationItem, adapted from migration.Runner's top-level
// Run() which owns a *DBConn/*table.Chunker/*row.Copier for the
// run's lifetime and fans out per-table work under an errgroup.
package executor

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/stratumhq/stratum/pkg/batch"
	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/events"
	"github.com/stratumhq/stratum/pkg/expr"
	"github.com/stratumhq/stratum/pkg/lookup"
	"github.com/stratumhq/stratum/pkg/metrics"
	"github.com/stratumhq/stratum/pkg/paginate"
	"github.com/stratumhq/stratum/pkg/pipeline"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/report"
	"github.com/stratumhq/stratum/pkg/retry"
	"github.com/stratumhq/stratum/pkg/state"
	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stratumhq/stratum/pkg/writer"

	"github.com/siddontang/loggers"
)

// Registry resolves a MigrationItem's named source/destination to a
// live connector, constructor-injected rather than looked up through
// a global — the design note §9 calls out against migration.Runner's
// package-level globals.
type Registry struct {
	Sources      map[string]connector.Source
	Destinations map[string]connector.Destination
}

// Executor owns the state store and connector registry for one run's
// lifetime and drives every item to completion or failure.
type Executor struct {
	store    *state.Store
	registry Registry
	metrics  metrics.Sink
	bus      *events.Bus
	logger   loggers.Advanced
}

func New(store *state.Store, registry Registry, sink metrics.Sink, bus *events.Bus, logger loggers.Advanced) *Executor {
	if sink == nil {
		sink = metrics.NoopSink{}
	}
	if bus == nil {
		bus = events.NewBus()
	}
	return &Executor{store: store, registry: registry, metrics: sink, bus: bus, logger: logger}
}

// itemResult is the terminal outcome of one item's pipeline, captured
// for the post-run report.
type itemResult struct {
	summary report.ItemSummary
	machine *pipeline.Machine
}

// Run validates p, initializes run state, and drives every item
// concurrently, bounded the way migration.Runner bounds its own
// per-table fan-out: at most Settings.Parallelism items (4 when unset)
// in flight at once, and never more than len(items).
func (e *Executor) Run(ctx context.Context, p plan.MigrationPlan, runID string) (report.Report, error) {
	if err := plan.Validate(p); err != nil {
		return report.Report{}, err
	}
	planHash := fmt.Sprintf("%x", plan.Hash(p))
	itemIDs := make([]string, len(p.Items))
	for i, item := range p.Items {
		itemIDs[i] = item.ID
	}
	if err := e.store.InitRun(planHash, itemIDs); err != nil {
		return report.Report{}, fmt.Errorf("executor: init run state: %w", err)
	}

	started := startTime()
	e.bus.Publish(events.Event{Type: events.TypeRunStarted, Data: map[string]any{"run_id": runID, "plan_hash": planHash}})

	limit := p.Settings.Parallelism
	if limit <= 0 {
		limit = 4
	}
	if len(p.Items) < limit {
		limit = len(p.Items)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	results := make([]itemResult, len(p.Items))
	for i, item := range p.Items {
		i, item := i, item
		g.Go(func() error {
			summary, err := e.runItem(gctx, planHash, item, p.Settings)
			results[i] = itemResult{summary: summary}
			return err
		})
	}
	runErr := g.Wait()

	finished := startTime()
	e.bus.Publish(events.Event{Type: events.TypeRunFinished, Data: map[string]any{"run_id": runID}})

	summaries := make([]report.ItemSummary, len(results))
	for i, r := range results {
		summaries[i] = r.summary
	}
	rep := report.Report{
		RunID:      runID,
		PlanHash:   planHash,
		Items:      summaries,
		StartedAt:  started,
		FinishedAt: finished,
	}
	return rep, runErr
}

// startTime is isolated in its own function so it is the only call
// site that ever needs to change if timestamps start flowing in from
// outside instead of being sampled locally.
func startTime() time.Time { return time.Now() }

// runItem drives one MigrationItem's pipeline.Machine through
// paginate -> lookup -> filter/map -> batch -> write -> checkpoint,
// resuming from its last checkpoint if one exists (§4.7).
func (e *Executor) runItem(ctx context.Context, planHash string, item plan.MigrationItem, settings plan.Settings) (report.ItemSummary, error) {
	machine := pipeline.NewMachine()
	summary := report.ItemSummary{ItemID: item.ID, StartedAt: startTime()}

	src, ok := e.registry.Sources[item.SourceName]
	if !ok {
		return e.fail(machine, summary, fmt.Errorf("executor: no source registered for %q", item.SourceName))
	}
	dst, ok := e.registry.Destinations[item.DestinationName]
	if !ok {
		return e.fail(machine, summary, fmt.Errorf("executor: no destination registered for %q", item.DestinationName))
	}

	if !machine.Transition(pipeline.StateWorking) {
		return e.fail(machine, summary, fmt.Errorf("executor: item %q could not start", item.ID))
	}
	e.bus.Publish(events.Event{Type: events.TypeItemStarted, ItemID: item.ID})

	batchSize := settings.BatchSize
	if batchSize <= 0 {
		batchSize = paginate.DefaultPageSize
	}

	pager := paginate.New(src, item.SourceName, item.Offset, batchSize)
	var committedRows int64
	if ckp, found, err := e.store.LoadCheckpoint(planHash, item.ID); err == nil && found {
		pager.OpenAtWatermark(ckp.Cursor)
		committedRows = ckp.RowsWritten
		e.bus.Publish(events.Event{Type: events.TypeItemResumed, ItemID: item.ID})
	}

	resolver := lookup.NewResolver(src, 4)
	policy := retry.NewPolicy(e.logger)
	w := writer.New(dst, primaryKeyColumns(item), item.IgnoreConstraints)

	var writeErr error
	var batchID int
	flush := func(ctx context.Context, rows []value.Row, cursor value.Cursor) (int64, error) {
		var result writer.WriteResult
		for {
			err := policy.Do(ctx, func(ctx context.Context) error {
				var err error
				result, err = w.Write(ctx, item.DestinationName, rows)
				return err
			})
			if err == nil {
				break
			}
			if !errors.Is(err, retry.ErrBreakerOpen) {
				return 0, err
			}
			if err := e.pauseForBreaker(ctx, machine, policy, item.ID); err != nil {
				return 0, err
			}
		}
		batchID++
		wal := state.WALEntry{BatchID: fmt.Sprintf("%s-%d", item.ID, batchID), ItemID: item.ID, Cursor: cursor, CreatedAt: startTime()}
		total := committedRows + result.RowsWritten
		ckp := state.Checkpoint{ItemID: item.ID, Cursor: cursor, RowsWritten: total, UpdatedAt: startTime()}
		if err := e.store.CommitBatch(planHash, ckp, wal); err != nil {
			return 0, fmt.Errorf("executor: commit checkpoint: %w", err)
		}
		committedRows = total
		e.metrics.RowsWritten(item.ID, result.RowsWritten)
		e.metrics.BatchFlushed(item.ID)
		e.bus.Publish(events.Event{Type: events.TypeBatchFlushed, ItemID: item.ID, Data: map[string]any{"rows": result.RowsWritten, "path": result.Path}})
		e.bus.Publish(events.Event{Type: events.TypeCheckpointWritten, ItemID: item.ID})
		return result.RowsWritten, nil
	}

	coordinator := batch.NewCoordinator(batchSize, flush)
	coordDone := make(chan error, 1)
	go func() { coordDone <- coordinator.Run(ctx) }()

	for !pager.IsExhausted() {
		e.metrics.BackpressureActive(coordinator.IsThrottled())
		page, err := pager.Next(ctx)
		if err != nil {
			writeErr = fmt.Errorf("executor: read page for %q: %w", item.ID, err)
			break
		}
		if item.Load != nil {
			if err := resolver.Resolve(ctx, page.Rows, *item.Load); err != nil {
				writeErr = fmt.Errorf("executor: resolve joins for %q: %w", item.ID, err)
				break
			}
		}
		for _, row := range page.Rows {
			out, err := e.project(row, item)
			if err != nil {
				writeErr = fmt.Errorf("executor: project row for %q: %w", item.ID, err)
				break
			}
			if out == nil {
				continue // filtered out
			}
			if err := coordinator.Submit(ctx, *out, page.CursorAfter); err != nil {
				writeErr = fmt.Errorf("executor: submit row for %q: %w", item.ID, err)
				break
			}
		}
		if writeErr != nil {
			break
		}
	}
	coordinator.Close()
	if err := <-coordDone; err != nil && writeErr == nil {
		writeErr = err
	}

	summary.RowsWritten = coordinator.RowsWritten()
	summary.FinishedAt = startTime()
	if writeErr != nil {
		return e.fail(machine, summary, writeErr)
	}
	machine.Transition(pipeline.StateFinished)
	summary.State = pipeline.StateFinished.String()
	e.bus.Publish(events.Event{Type: events.TypeItemFinished, ItemID: item.ID})
	return summary, nil
}

// project applies FILTER then MAP, returning nil when the row is
// filtered out.
func (e *Executor) project(row value.Row, item plan.MigrationItem) (*value.Row, error) {
	if item.Filter != nil {
		keep, err := expr.Eval(item.Filter, row)
		if err != nil {
			return nil, err
		}
		if keep.IsNull() || !keep.Bool {
			return nil, nil
		}
	}
	if len(item.Map) == 0 {
		return &row, nil
	}
	// MAP columns are emitted sorted by target column name, so every
	// projected row has the same column order.
	cols := make([]string, 0, len(item.Map))
	for col := range item.Map {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	out := value.NewRow()
	for _, col := range cols {
		node := item.Map[col]
		v, err := expr.Eval(node, row)
		if err != nil {
			return nil, err
		}
		out.Set(col, v)
	}
	return &out, nil
}

// pauseForBreaker transitions an item to StatePaused while its
// destination's circuit breaker is open (§4.8/§4.9) and blocks until
// the breaker would allow calls again, then resumes it. The item is
// never failed outright for a breaker trip — only for a non-retryable
// write error.
func (e *Executor) pauseForBreaker(ctx context.Context, machine *pipeline.Machine, policy *retry.Policy, itemID string) error {
	if !machine.Transition(pipeline.StatePaused) {
		return retry.ErrBreakerOpen
	}
	e.bus.Publish(events.Event{Type: events.TypeCircuitBreakerOpened, ItemID: itemID})
	e.bus.Publish(events.Event{Type: events.TypeItemPaused, ItemID: itemID})
	if err := policy.WaitForBreaker(ctx); err != nil {
		return err
	}
	if !machine.Transition(pipeline.StateWorking) {
		return fmt.Errorf("executor: item %q could not resume after breaker closed", itemID)
	}
	e.bus.Publish(events.Event{Type: events.TypeCircuitBreakerClosed, ItemID: itemID})
	e.bus.Publish(events.Event{Type: events.TypeItemResumed, ItemID: itemID})
	return nil
}

func (e *Executor) fail(machine *pipeline.Machine, summary report.ItemSummary, err error) (report.ItemSummary, error) {
	machine.Transition(pipeline.StateFailed)
	summary.State = pipeline.StateFailed.String()
	summary.Error = err.Error()
	summary.FinishedAt = startTime()
	e.bus.Publish(events.Event{Type: events.TypeItemFailed, ItemID: summary.ItemID, Data: map[string]any{"error": err.Error()}})
	return summary, err
}

// primaryKeyColumns is the upsert key set for an item's destination,
// taken from its offset spec's columns — the same columns that
// uniquely identify a row for keyset pagination double as the natural
// upsert key.
func primaryKeyColumns(item plan.MigrationItem) []string {
	return item.Offset.Columns
}
