// Package paginate implements the keyset-pagination engine (§4.2):
// for each read it asks the source for exactly the plan's configured
// batch size, so a page and a flushed batch are always the same size
// (spec scenario: batch_size=2 against 3 rows yields pages/cursors of
// 2 then 1, not some unrelated dynamically-sized window).
package paginate

import (
	"context"
	"fmt"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

// DefaultPageSize is used when a plan's Settings.BatchSize is unset
// (§3: "batch_size: u32 (default 1000)").
const DefaultPageSize = 1000

// Paginator drives one source through successive fixed-size windows,
// each read's LIMIT equal to batchSize per §4.2's "L = batch size".
type Paginator struct {
	source    connector.Source
	table     string
	offset    plan.OffsetSpec
	batchSize int
	cursor    value.Cursor
}

func New(source connector.Source, table string, offset plan.OffsetSpec, batchSize int) *Paginator {
	if batchSize <= 0 {
		batchSize = DefaultPageSize
	}
	return &Paginator{
		source:    source,
		table:     table,
		offset:    offset,
		batchSize: batchSize,
	}
}

// OpenAtWatermark resumes a paginator from a checkpointed cursor
// (§4.7 resume semantics), mirroring the teacher's OpenAtWatermark.
func (p *Paginator) OpenAtWatermark(cursor value.Cursor) {
	p.cursor = cursor
}

func (p *Paginator) IsExhausted() bool { return p.cursor.Exhausted }

// Next fetches exactly one batchSize-wide page. Per §4.2, a page
// shorter than batchSize means the source is drained.
func (p *Paginator) Next(ctx context.Context) (value.Batch, error) {
	if p.cursor.Exhausted {
		return value.Batch{}, fmt.Errorf("paginate: Next called after exhaustion")
	}
	batch, err := p.source.Read(ctx, p.table, p.offset, p.cursor, p.batchSize)
	if err != nil {
		return value.Batch{}, err
	}
	if len(batch.Rows) < p.batchSize {
		batch.CursorAfter.Exhausted = true
	}
	p.cursor = batch.CursorAfter
	return batch, nil
}
