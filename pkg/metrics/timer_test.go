package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimer_Duration(t *testing.T) {
	timer := NewTimer()
	require.NotNil(t, timer)

	time.Sleep(20 * time.Millisecond)
	first := timer.Duration()
	assert.GreaterOrEqual(t, first, 20*time.Millisecond)

	time.Sleep(5 * time.Millisecond)
	assert.Greater(t, timer.Duration(), first, "duration keeps growing")
}

func TestTimer_ObserveDuration(t *testing.T) {
	h := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "test_wait_seconds",
		Help: "Test histogram",
	})

	timer := NewTimer()
	timer.ObserveDuration(h)

	assert.Equal(t, 1, testutil.CollectAndCount(h))
}

func TestTimer_ObserveStepDuration(t *testing.T) {
	timer := NewTimer()
	timer.ObserveDurationVec(StepDuration, "timer-test", "node")
	timer.ObserveDurationVec(StepDuration, "timer-test", "global")

	count, err := testutil.GatherAndCount(Registry, "stevedore_step_duration_seconds")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, 2)
}
