package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Collect(t *testing.T) {
	states := []NodeState{
		{Role: "manager", State: "ready"},
		{Role: "manager", State: "ready"},
		{Role: "manager", State: "faulted"},
		{Role: "worker", State: "ready"},
	}
	c := NewCollector(func() []NodeState { return states }, time.Hour)
	c.Collect()

	assert.Equal(t, 2.0, testutil.ToFloat64(NodesTotal.WithLabelValues("manager", "ready")))
	assert.Equal(t, 1.0, testutil.ToFloat64(NodesTotal.WithLabelValues("manager", "faulted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(NodesTotal.WithLabelValues("worker", "ready")))

	// A later snapshot replaces the previous one
	states = []NodeState{{Role: "worker", State: "faulted"}}
	c.Collect()
	assert.Equal(t, 1, testutil.CollectAndCount(NodesTotal))
}

func TestCollector_StartStop(t *testing.T) {
	calls := make(chan struct{}, 10)
	c := NewCollector(func() []NodeState {
		calls <- struct{}{}
		return nil
	}, time.Hour)

	c.Start()
	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("collector did not collect on start")
	}

	c.Stop()
	c.Stop()
}

func TestWriteTextfile(t *testing.T) {
	RunsTotal.WithLabelValues("success").Inc()

	path := filepath.Join(t.TempDir(), "stevedore.prom")
	require.NoError(t, WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `stevedore_runs_total{result="success"}`)
}
