// Package csvconn implements a Csv source and File destination over
// encoding/csv, the same stdlib choice the ns-cchen-fis-migration-tool
// exporter makes for the identical job (see DESIGN.md).
package csvconn

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

// Source reads an entire CSV file into memory and paginates over it
// by row index — CSV has no native keyset index, so its OffsetSpec is
// always a synthetic row-number Numeric strategy (§4.2 edge case: a
// source without a natural key falls back to row-number pagination).
type Source struct {
	path    string
	header  []string
	records [][]string
}

func OpenSource(path string) (*Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("csvconn: open %s: %w", path, err)
	}
	defer f.Close()
	r := csv.NewReader(f)
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("csvconn: parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return &Source{path: path}, nil
	}
	return &Source{path: path, header: rows[0], records: rows[1:]}, nil
}

func (s *Source) Close() error { return nil }

func (s *Source) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	meta := connector.TableMetadata{Name: name}
	for _, h := range s.header {
		meta.Columns = append(meta.Columns, connector.ColumnMeta{Name: h, Type: "text", Nullable: true})
	}
	return meta, nil
}

func (s *Source) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	start := 0
	if len(cursor.Values) > 0 {
		n, err := strconv.Atoi(cursor.Values[0].String())
		if err != nil {
			return value.Batch{}, fmt.Errorf("csvconn: invalid row-number cursor: %w", err)
		}
		start = n
	}
	var out value.Batch
	end := start + limit
	if end > len(s.records) {
		end = len(s.records)
	}
	for i := start; i < end; i++ {
		row := value.NewRow()
		for ci, col := range s.header {
			if ci < len(s.records[i]) {
				row.Set(name+"."+col, value.String(s.records[i][ci]))
			}
		}
		out.Rows = append(out.Rows, row)
	}
	out.CursorAfter = value.Cursor{Values: []value.Value{value.Int64(int64(end))}, Exhausted: end >= len(s.records)}
	return out, nil
}

// Destination writes rows by appending CSV lines, the "File"
// destination_kind of §4.1.
type Destination struct {
	path         string
	wroteHeader  bool
}

func OpenDestination(path string) (*Destination, error) {
	return &Destination{path: path}, nil
}

func (d *Destination) Close() error { return nil }

func (d *Destination) Capabilities() connector.Capabilities {
	return connector.Capabilities{CopyStreaming: false, Merge: false, UpsertNative: false, Transactions: false}
}

func (d *Destination) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{Name: name}, nil
}

func (d *Destination) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	return nil // a CSV file has no schema to create ahead of time
}

func (d *Destination) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	return 0, fmt.Errorf("csvconn: destination has no COPY fast path")
}

// Upsert has no meaning for an append-only file; Insert is the only
// real write path and the writer's fallback order degrades to it.
func (d *Destination) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	return 0, fmt.Errorf("csvconn: destination does not support upsert")
}

func (d *Destination) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	f, err := os.OpenFile(d.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("csvconn: open for append: %w", err)
	}
	defer f.Close()
	w := csv.NewWriter(f)
	cols := rows[0].Columns
	if !d.wroteHeader {
		header := make([]string, len(cols))
		for i, c := range cols {
			header[i] = stripPrefix(c, name)
		}
		if err := w.Write(header); err != nil {
			return 0, err
		}
		d.wroteHeader = true
	}
	for _, row := range rows {
		rec := make([]string, len(cols))
		for i, c := range cols {
			rec[i] = row.Get(c).String()
		}
		if err := w.Write(rec); err != nil {
			return 0, err
		}
	}
	w.Flush()
	return int64(len(rows)), w.Error()
}

func (d *Destination) Classify(err error) connector.ErrorKind {
	if err == nil {
		return connector.ErrorUnknown
	}
	return connector.ErrorPermanent // local filesystem errors are not retried
}

func stripPrefix(col, table string) string {
	prefix := table + "."
	if len(col) > len(prefix) && col[:len(prefix)] == prefix {
		return col[len(prefix):]
	}
	return col
}

var _ connector.Source      = (*Source)(nil)
var _ connector.Destination = (*Destination)(nil)
var _ connector.Classifier  = (*Destination)(nil)
