package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusSinkRecordsDivByZero(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)
	s.DivByZero()
	s.DivByZero()

	m := &dto.Metric{}
	require.NoError(t, s.divByZero.Write(m))
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestPrometheusSinkBackpressureGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	s := NewPrometheusSink(reg)
	s.BackpressureActive(true)

	m := &dto.Metric{}
	require.NoError(t, s.backpressure.Write(m))
	assert.Equal(t, float64(1), m.GetGauge().GetValue())

	s.BackpressureActive(false)
	m = &dto.Metric{}
	require.NoError(t, s.backpressure.Write(m))
	assert.Equal(t, float64(0), m.GetGauge().GetValue())
}
