// Package connector defines the source/destination contract (§4.1):
// capability sets of small, orthogonal operations rather than a deep
// inheritance hierarchy, the same design note the spec calls out
// explicitly.
package connector

import (
	"context"

	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

// ColumnMeta describes one column of a table-shaped source or
// destination, enough for schema inference (package schema) and
// type-coercion decisions (package writer).
type ColumnMeta struct {
	Name       string
	Type       string // connector-native type name, e.g. "bigint", "varchar(255)"
	Nullable   bool
	PrimaryKey bool
	References string // "table.column" for a foreign key, empty otherwise
}

// TableMetadata describes a source or destination's shape.
type TableMetadata struct {
	Name    string
	Columns []ColumnMeta
}

// Source reads rows, paginated by the cursor package builds (§4.2).
type Source interface {
	// Describe returns the source's column metadata, used for join
	// key resolution and schema inference.
	Describe(ctx context.Context, name string) (TableMetadata, error)
	// Read fetches up to limit rows strictly after cursor, returning
	// the next cursor to resume from.
	Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error)
	// Close releases any held connections.
	Close() error
}

// Capabilities advertises what a Destination can do natively, driving
// the writer's fast-path fallback order (§4.6): COPY, then UPSERT
// (taken when either Merge or UpsertNative is set), then INSERT. The
// writer issues no separate MERGE statement and does not read
// Transactions.
type Capabilities struct {
	CopyStreaming bool
	Merge         bool
	UpsertNative  bool
	Transactions  bool
}

// Destination writes rows.
type Destination interface {
	Capabilities() Capabilities
	// Describe mirrors Source.Describe, used to validate/coerce types
	// before the first batch and to drive infer_schema/cascade_schema.
	Describe(ctx context.Context, name string) (TableMetadata, error)
	// EnsureTable creates name per cols if it does not exist
	// (infer_schema), additive-only.
	EnsureTable(ctx context.Context, name string, cols []ColumnMeta) error
	// Copy writes rows via the destination's fastest native bulk-load
	// path. Only called when Capabilities().CopyStreaming is true.
	Copy(ctx context.Context, name string, rows []value.Row) (int64, error)
	// Upsert writes rows via MERGE/ON CONFLICT/ON DUPLICATE KEY
	// UPDATE, keyed by keyCols.
	Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error)
	// Insert writes rows via plain INSERT, the universal fallback.
	Insert(ctx context.Context, name string, rows []value.Row) (int64, error)
	Close() error
}

// ErrorKind classifies a connector error into the abstract kinds §7
// asks retry/circuit-breaker logic to reason about, without the core
// depending on any specific driver's error type.
type ErrorKind int

const (
	ErrorUnknown ErrorKind = iota
	ErrorRetryable
	ErrorConstraintViolation
	ErrorConnectionFailed
	ErrorPermanent
)

// Classifier is implemented by the MySQL and Postgres connectors and
// the API source. The writer uses it to classify destination write
// errors so package retry can drive its backoff/circuit-breaker loop
// (§4.8); errors from a destination without it classify as
// ErrorUnknown.
type Classifier interface {
	Classify(err error) ErrorKind
}
