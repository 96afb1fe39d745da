package writer

import (
	"context"
	"errors"
	"testing"

	"github.com/stratumhq/stratum/pkg/connector"
	"github.com/stratumhq/stratum/pkg/value"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDest struct {
	caps           connector.Capabilities
	insertErr      error
	classification connector.ErrorKind
}

func (f *fakeDest) Close() error { return nil }
func (f *fakeDest) Capabilities() connector.Capabilities { return f.caps }
func (f *fakeDest) Describe(ctx context.Context, name string) (connector.TableMetadata, error) {
	return connector.TableMetadata{}, nil
}
func (f *fakeDest) EnsureTable(ctx context.Context, name string, cols []connector.ColumnMeta) error {
	return nil
}
func (f *fakeDest) Copy(ctx context.Context, name string, rows []value.Row) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeDest) Upsert(ctx context.Context, name string, rows []value.Row, keyCols []string) (int64, error) {
	return int64(len(rows)), nil
}
func (f *fakeDest) Insert(ctx context.Context, name string, rows []value.Row) (int64, error) {
	if f.insertErr != nil {
		return 0, f.insertErr
	}
	return int64(len(rows)), nil
}
func (f *fakeDest) Classify(err error) connector.ErrorKind { return f.classification }

func oneRow() []value.Row {
	r := value.NewRow()
	r.Set("t.id", value.Int64(1))
	return []value.Row{r}
}

func TestWritePrefersCopyWhenSupported(t *testing.T) {
	dest := &fakeDest{caps: connector.Capabilities{CopyStreaming: true, UpsertNative: true}}
	w := New(dest, nil, false)
	res, err := w.Write(context.Background(), "t", oneRow())
	require.NoError(t, err)
	assert.Equal(t, "copy", res.Path)
}

func TestWriteFallsBackToUpsertThenInsert(t *testing.T) {
	dest := &fakeDest{caps: connector.Capabilities{UpsertNative: true}}
	w := New(dest, []string{"id"}, false)
	res, err := w.Write(context.Background(), "t", oneRow())
	require.NoError(t, err)
	assert.Equal(t, "upsert", res.Path)

	dest2 := &fakeDest{}
	w2 := New(dest2, nil, false)
	res2, err := w2.Write(context.Background(), "t", oneRow())
	require.NoError(t, err)
	assert.Equal(t, "insert", res2.Path)
}

func TestWriteIgnoresConstraintViolationWhenConfigured(t *testing.T) {
	dest := &fakeDest{insertErr: errors.New("duplicate key"), classification: connector.ErrorConstraintViolation}
	w := New(dest, nil, true)
	res, err := w.Write(context.Background(), "t", oneRow())
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RowsWritten)
}

func TestWritePropagatesConstraintViolationWhenNotIgnored(t *testing.T) {
	dest := &fakeDest{insertErr: errors.New("duplicate key"), classification: connector.ErrorConstraintViolation}
	w := New(dest, nil, false)
	_, err := w.Write(context.Background(), "t", oneRow())
	require.Error(t, err)
	var classified *ClassifiedError
	require.ErrorAs(t, err, &classified)
	assert.Equal(t, connector.ErrorConstraintViolation, classified.Kind)
}
