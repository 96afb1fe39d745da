// Package writer implements the consumer / batch writer (§4.6):
// dispatch order COPY > UPSERT > INSERT per destination capabilities,
// with a destination that advertises Merge written through the UPSERT
// path. Errors are wrapped with their connector.Classifier kind so
// package retry can decide whether to retry. The writer opens no
// transaction, coerces no types, retries nothing itself and commits
// no checkpoint; rows go to the destination as given, and the
// executor commits the checkpoint after a successful write.
package writer

import (
	"context"
	"fmt"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/value"
)

// WriteResult reports what a Write call did, for metrics and events.
type WriteResult struct {
	Path       string // "copy", "upsert", "insert"
	RowsWritten int64
}

// Writer dispatches a batch to a destination via its fastest
// supported path.
type Writer struct {
	dest              connector.Destination
	keyCols           []string
	ignoreConstraints bool
}

func New(dest connector.Destination, keyCols []string, ignoreConstraints bool) *Writer {
	return &Writer{dest: dest, keyCols: keyCols, ignoreConstraints: ignoreConstraints}
}

// Write dispatches rows per §4.6's fallback order: COPY, then UPSERT
// (for Merge or UpsertNative destinations), then plain INSERT. A
// constraint violation on the INSERT path is only swallowed when
// ignoreConstraints is set
// (§4.6 edge case: narrowing/constraint failures fail unless the item
// opts in).
func (w *Writer) Write(ctx context.Context, name string, rows []value.Row) (WriteResult, error) {
	if len(rows) == 0 {
		return WriteResult{}, nil
	}
	caps := w.dest.Capabilities()
	switch {
	case caps.CopyStreaming:
		n, err := w.dest.Copy(ctx, name, rows)
		if err != nil {
			return WriteResult{}, w.classify(err)
		}
		return WriteResult{Path: "copy", RowsWritten: n}, nil
	case caps.Merge || caps.UpsertNative:
		n, err := w.dest.Upsert(ctx, name, rows, w.keyCols)
		if err != nil {
			return WriteResult{}, w.classify(err)
		}
		return WriteResult{Path: "upsert", RowsWritten: n}, nil
	default:
		n, err := w.dest.Insert(ctx, name, rows)
		if err != nil {
			if w.ignoreConstraints && w.isConstraintViolation(err) {
				return WriteResult{Path: "insert", RowsWritten: 0}, nil
			}
			return WriteResult{}, w.classify(err)
		}
		return WriteResult{Path: "insert", RowsWritten: n}, nil
	}
}

func (w *Writer) isConstraintViolation(err error) bool {
	classifier, ok := w.dest.(connector.Classifier)
	return ok && classifier.Classify(err) == connector.ErrorConstraintViolation
}

// classify wraps err with its abstract kind so package retry can
// decide whether to retry without importing any connector package.
func (w *Writer) classify(err error) error {
	kind := connector.ErrorUnknown
	if classifier, ok := w.dest.(connector.Classifier); ok {
		kind = classifier.Classify(err)
	}
	return &ClassifiedError{Kind: kind, Err: err}
}

// ClassifiedError carries a connector.ErrorKind alongside the
// underlying error so retry.Policy can branch on it via errors.As.
type ClassifiedError struct {
	Kind connector.ErrorKind
	Err  error
}

func (e *ClassifiedError) Error() string { return fmt.Sprintf("writer: %v", e.Err) }
func (e *ClassifiedError) Unwrap() error  { return e.Err }
