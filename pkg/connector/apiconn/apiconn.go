// Package apiconn implements the Api source kind: a paginated JSON-array
// HTTP endpoint. It uses only net/http and has no HTTP retry client.
// Reads are not retried: package retry wraps destination writes only,
// so a failed request fails the page read.
package apiconn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/plan"
	"github.com/stratumhq/stratum/pkg/value"
)

type Config struct {
	BaseURL string
	Client  *http.Client
}

type Source struct {
	cfg Config
}

func NewSource(cfg Config) *Source {
	if cfg.Client == nil {
		cfg.Client = http.DefaultClient
	}
	return &Source{cfg: cfg}
}

func (s *Source) Close() error { return nil }

func (s *Source) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	batch, err := s.Read(ctx, name, plan.OffsetSpec{Strategy: plan.OffsetNumeric, Columns: []string{"offset"}}, value.Cursor{}, 1)
	if err != nil {
		return connector.TableMetadata{}, err
	}
	meta := connector.TableMetadata{Name: name}
	if len(batch.Rows) > 0 {
		for _, col := range batch.Rows[0].Columns {
			meta.Columns = append(meta.Columns, connector.ColumnMeta{Name: col, Type: "string", Nullable: true})
		}
	}
	return meta, nil
}

// Read pages the endpoint via offset/limit query parameters — the
// engine's own cursor, not a vendor-specific pagination convention
// (original_source carried no API connector to ground a richer
// protocol on, see SPEC_FULL.md §4.1).
func (s *Source) Read(ctx context.Context, name string, offset plan.OffsetSpec, cursor value.Cursor, limit int) (value.Batch, error) {
	start := 0
	if len(cursor.Values) > 0 {
		start = int(cursor.Values[0].Int)
	}
	url := fmt.Sprintf("%s/%s?offset=%d&limit=%d", s.cfg.BaseURL, name, start, limit)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return value.Batch{}, err
	}
	resp, err := s.cfg.Client.Do(req)
	if err != nil {
		return value.Batch{}, fmt.Errorf("apiconn: request %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return value.Batch{}, &StatusError{URL: url, Status: resp.StatusCode}
	}
	var records []map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return value.Batch{}, fmt.Errorf("apiconn: decode response: %w", err)
	}
	var out value.Batch
	for _, rec := range records {
		row := value.NewRow()
		for k, v := range rec {
			row.Set(name+"."+k, jsonToValue(v))
		}
		out.Rows = append(out.Rows, row)
	}
	next := start + len(records)
	out.CursorAfter = value.Cursor{Values: []value.Value{value.Int64(int64(next))}, Exhausted: len(records) < limit}
	return out, nil
}

func jsonToValue(v any) value.Value {
	switch t := v.(type) {
	case nil:
		return value.Null()
	case bool:
		return value.Bool(t)
	case float64:
		return value.Float64(t)
	case string:
		return value.String(t)
	default:
		b, _ := json.Marshal(t)
		return value.String(string(b))
	}
}

// StatusError carries the HTTP status code of a failed request so
// Classify can distinguish retryable 5xx from permanent 4xx.
type StatusError struct {
	URL    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiconn: %s returned status %d", e.URL, e.Status)
}

// Classify treats HTTP 5xx as retryable, connection failures and
// timeouts as ErrorConnectionFailed (which package retry also
// retries), and 4xx as permanent.
func (s *Source) Classify(err error) connector.ErrorKind {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		if statusErr.Status >= 500 {
			return connector.ErrorRetryable
		}
		return connector.ErrorPermanent
	}
	if strings.Contains(err.Error(), "connection") || strings.Contains(err.Error(), "timeout") {
		return connector.ErrorConnectionFailed
	}
	return connector.ErrorUnknown
}

var _ connector.Source     = (*Source)(nil)
var _ connector.Classifier = (*Source)(nil)
