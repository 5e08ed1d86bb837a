package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolvePort(t *testing.T) {
	port, err := resolvePort("[::]:43121")
	require.NoError(t, err)
	assert.Equal(t, 43121, port)

	_, err = resolvePort("no-port")
	assert.Error(t, err)
}

func TestStopMetricsWithoutInit(t *testing.T) {
	originalSystem, originalExporter := TelemetrySystem, PrometheusExporter
	TelemetrySystem, PrometheusExporter = nil, nil
	t.Cleanup(func() { TelemetrySystem, PrometheusExporter = originalSystem, originalExporter })

	require.NoError(t, StopMetrics())
	assert.Nil(t, TelemetrySystem)
	assert.Nil(t, PrometheusExporter)
}
