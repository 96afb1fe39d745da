package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReportMarshalsRunAndItemFields(t *testing.T) {
	r := Report{
		RunID:    "run-1",
		PlanHash: "abc123",
		Items: []ItemSummary{
			{ItemID: "orders", RowsWritten: 42, State: "finished", StartedAt: time.Unix(0, 0).UTC(), FinishedAt: time.Unix(1, 0).UTC()},
		},
		StartedAt:  time.Unix(0, 0).UTC(),
		FinishedAt: time.Unix(1, 0).UTC(),
	}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "run-1", decoded["run_id"])
	assert.Equal(t, "abc123", decoded["plan_hash"])
	items := decoded["items"].([]any)
	require.Len(t, items, 1)
	first := items[0].(map[string]any)
	assert.Equal(t, "orders", first["item_id"])
	assert.Equal(t, float64(42), first["rows_written"])
	assert.NotContains(t, first, "error")
}
