// Package report builds the post-run summary (§6). Delivering it to
// a configured HTTP callback is the external glue's job, not the
// core's — this package only builds and marshals the structure.
package report

import (
	"encoding/json"
	"time"
)

type ItemSummary struct {
	ItemID      string    `json:"item_id"`
	RowsRead    int64     `json:"rows_read"`
	RowsWritten int64     `json:"rows_written"`
	State       string    `json:"state"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

type Report struct {
	RunID      string        `json:"run_id"`
	PlanHash   string        `json:"plan_hash"`
	Items      []ItemSummary `json:"items"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (r Report) MarshalJSON() ([]byte, error) {
	type alias Report // avoid infinite recursion through MarshalJSON
	return json.Marshal(alias(r))
}
