// Package batch implements the batch coordinator (§4.5): it holds an
// in-progress batch behind a bounded channel and flushes on size,
// timer (250ms), drain, or shutdown, adapting the usage contract the
// teacher's row.Copier exposes to migration.Runner (CopyRowsCount,
// GetProgress, GetETA) to windows of value.Row rather than chunked
// ALTER ranges.
package batch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/stratumhq/stratum/pkg/value"
)

const (
	FlushInterval   = 250 * time.Millisecond
	ChannelCapacity = 64
)

// FlushFunc writes one full batch to the destination and returns the
// number of rows durably written. cursor is the high-water cursor as
// of the last row in rows — the cursor a checkpoint for this batch
// must advance to (§4.5 "a high-water cursor", §4.7/§8.1 "checkpoint
// cursor monotonic, cursor >= batch.cursor_after").
type FlushFunc func(ctx context.Context, rows []value.Row, cursor value.Cursor) (int64, error)

// item pairs one submitted row with the cursor it is valid through —
// the cursor of the page it was read from, since a flushed batch can
// span part or all of one or more pages.
type item struct {
	row    value.Row
	cursor value.Cursor
}

// Coordinator batches incoming rows and flushes them through flush.
type Coordinator struct {
	batchSize int
	flush     FlushFunc
	in        chan item
	done      chan struct{}
	errCh     chan error

	rowsWritten    atomic.Int64
	batchesFlushed atomic.Int64
	backpressured  atomic.Bool
}

func NewCoordinator(batchSize int, flush FlushFunc) *Coordinator {
	return &Coordinator{
		batchSize: batchSize,
		flush:     flush,
		in:        make(chan item, ChannelCapacity),
		done:      make(chan struct{}),
		errCh:     make(chan error, 1),
	}
}

// Submit enqueues one row tagged with the cursor it is valid through,
// blocking (and marking the backpressure gauge) when the channel is
// full for longer than one flush interval — the "backpressure gauge"
// of §4.5.
func (c *Coordinator) Submit(ctx context.Context, row value.Row, cursor value.Cursor) error {
	it := item{row: row, cursor: cursor}
	select {
	case c.in <- it:
		return nil
	default:
	}
	wait := time.NewTimer(FlushInterval)
	defer wait.Stop()
	select {
	case c.in <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-wait.C:
	}
	c.backpressured.Store(true)
	defer c.backpressured.Store(false)
	select {
	case c.in <- it:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsThrottled reports whether Submit has been blocked for longer than
// one flush interval and is still blocked — adapted
// from the teacher's throttler.Throttler.IsThrottled().
func (c *Coordinator) IsThrottled() bool { return c.backpressured.Load() }

func (c *Coordinator) RowsWritten() int64    { return c.rowsWritten.Load() }
func (c *Coordinator) BatchesFlushed() int64 { return c.batchesFlushed.Load() }

// Run drains c.in until ctx is cancelled or Close is called, flushing
// on whichever trigger fires first: the batch reaching batchSize, the
// flush timer elapsing with a nonempty batch, or shutdown.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.errCh)
	timer := time.NewTimer(FlushInterval)
	defer timer.Stop()
	var pending []item

	flushPending := func() error {
		if len(pending) == 0 {
			return nil
		}
		rows := make([]value.Row, len(pending))
		for i, it := range pending {
			rows[i] = it.row
		}
		cursor := pending[len(pending)-1].cursor
		n, err := c.flush(ctx, rows, cursor)
		if err != nil {
			return err
		}
		c.rowsWritten.Add(n)
		c.batchesFlushed.Add(1)
		pending = nil
		return nil
	}

	for {
		select {
		case it, ok := <-c.in:
			if !ok {
				return flushPending()
			}
			pending = append(pending, it)
			if len(pending) >= c.batchSize {
				if err := flushPending(); err != nil {
					return err
				}
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(FlushInterval)
			}
		case <-timer.C:
			if err := flushPending(); err != nil {
				return err
			}
			timer.Reset(FlushInterval)
		case <-c.done:
			// drain whatever is already queued, then flush
			for {
				select {
				case it := <-c.in:
					pending = append(pending, it)
				default:
					return flushPending()
				}
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close signals Run to drain remaining rows and perform a final
// flush. It returns at once without waiting; callers that need the
// final flush to be done wait for Run to return.
func (c *Coordinator) Close() {
	close(c.done)
}
