package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRegistration(t *testing.T) {
	assert.NotNil(t, EventsIngested)
	assert.NotNil(t, LinesParsed)
	assert.NotNil(t, TransfersFinalized)
	assert.NotNil(t, CorrelationPool)
	assert.NotNil(t, CorrelationEvicted)
	assert.NotNil(t, AlertsGenerated)
	assert.NotNil(t, NotificationsSent)
	assert.NotNil(t, SinkCircuitState)
	assert.NotNil(t, StorageWrites)
	assert.NotNil(t, QueueDropped)
	assert.NotNil(t, TransferSize)
	assert.NotNil(t, APIRequestDuration)
}

func TestCounterIncrements(t *testing.T) {
	before := testutil.ToFloat64(AlertsGenerated.WithLabelValues("rate_limit_exceeded"))
	AlertsGenerated.WithLabelValues("rate_limit_exceeded").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AlertsGenerated.WithLabelValues("rate_limit_exceeded")))
}
