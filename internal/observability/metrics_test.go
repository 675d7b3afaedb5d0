package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsCount(t *testing.T) {
	m := NewMetrics()
	m.ObserveTurn("done")
	m.ObserveTurn("done")
	m.ObserveTurn("aborted")
	m.ObserveIngest("ok", 12)
	m.ObserveState("retrieve", 20*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.turns.WithLabelValues("done")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.turns.WithLabelValues("aborted")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.ingestedChunks))
	assert.Equal(t, 1, testutil.CollectAndCount(m.stateDuration))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveTurn("done")
		m.ObserveState("generate", time.Second)
		m.ObserveIngest("failed", 0)
		m.ObserveCleanupError("stage")
	})
}
