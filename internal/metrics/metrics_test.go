package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTasksCompletedTotalIncrements(t *testing.T) {
	TasksCompletedTotal.Reset()
	TasksCompletedTotal.WithLabelValues("ns1").Inc()
	TasksCompletedTotal.WithLabelValues("ns1").Inc()

	assert.Equal(t, float64(2), testutil.ToFloat64(TasksCompletedTotal.WithLabelValues("ns1")))
}

func TestTasksFailedTotalIsLabeledByStatus(t *testing.T) {
	TasksFailedTotal.Reset()
	TasksFailedTotal.WithLabelValues("ns1", "failed").Inc()
	TasksFailedTotal.WithLabelValues("ns1", "quarantined").Inc()
	TasksFailedTotal.WithLabelValues("ns1", "quarantined").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(TasksFailedTotal.WithLabelValues("ns1", "failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(TasksFailedTotal.WithLabelValues("ns1", "quarantined")))
}

func TestCircuitOpenTotalIncrements(t *testing.T) {
	CircuitOpenTotal.Reset()
	CircuitOpenTotal.WithLabelValues("ns1").Inc()
	assert.Equal(t, float64(1), testutil.ToFloat64(CircuitOpenTotal.WithLabelValues("ns1")))
}

func TestQueuedOfflineWritesSetsGauge(t *testing.T) {
	QueuedOfflineWrites.Reset()
	QueuedOfflineWrites.WithLabelValues("ns1").Set(4)
	assert.Equal(t, float64(4), testutil.ToFloat64(QueuedOfflineWrites.WithLabelValues("ns1")))
}
