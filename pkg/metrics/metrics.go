package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Command result label values
const (
	ResultOK     = "ok"
	ResultFailed = "failed"
	ResultError  = "error"
)

var (
	// Run metrics
	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_runs_total",
			Help: "Total number of orchestrator runs by result",
		},
		[]string{"result"},
	)

	StepDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "stevedore_step_duration_seconds",
			Help:    "Step duration in seconds by step name and kind",
			Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{"step", "kind"},
	)

	NodeFaultsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_node_faults_total",
			Help: "Total number of nodes faulted by step",
		},
		[]string{"step"},
	)

	// Remote execution metrics
	RemoteCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stevedore_remote_commands_total",
			Help: "Total number of remote commands by result (ok, failed, error)",
		},
		[]string{"result"},
	)

	// Cluster metrics
	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stevedore_nodes",
			Help: "Number of nodes by role and state",
		},
		[]string{"role", "state"},
	)
)

// Registry holds every stevedore metric. It is separate from the default
// registerer so textfile output only carries stevedore series.
var Registry = prometheus.NewRegistry()

func init() {
	// Register all metrics
	Registry.MustRegister(RunsTotal)
	Registry.MustRegister(StepDuration)
	Registry.MustRegister(NodeFaultsTotal)
	Registry.MustRegister(RemoteCommandsTotal)
	Registry.MustRegister(NodesTotal)
}

// WriteTextfile writes the current values in the node-exporter textfile format
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
