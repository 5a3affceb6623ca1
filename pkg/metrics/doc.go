/*
Package metrics provides Prometheus instrumentation for stevedore runs.

stevedore is a short-lived CLI, so nothing is scraped over HTTP. Metrics live in a
dedicated registry and are written once per invocation in the node-exporter
textfile format (--metrics-file), where a node-exporter textfile collector on the
operator host picks them up.

# Architecture

	┌──────────────── METRICS FLOW ────────────────┐
	│                                                │
	│  orchestrator ──► StepDuration{step,kind}      │
	│               ──► NodeFaultsTotal{step}        │
	│               ──► RunsTotal{result}            │
	│  node handle  ──► RemoteCommandsTotal{result}  │
	│  Collector    ──► NodesTotal{role,state}       │
	│                     │                          │
	│              metrics.Registry                  │
	│                     │                          │
	│           WriteTextfile(path)                  │
	└────────────────────────────────────────────────┘

# Metrics

  - stevedore_runs_total{result}: runs by verdict (success, failure, aborted)
  - stevedore_step_duration_seconds{step,kind}: per-step wall time, kind is
    node, global, wait or delay
  - stevedore_node_faults_total{step}: nodes faulted, by the step that faulted them
  - stevedore_remote_commands_total{result}: remote commands, result is ok
    (exit 0), failed (non-zero exit) or error (transport failure)
  - stevedore_nodes{role,state}: node count by role and terminal state

# Usage

Timing a block:

	timer := metrics.NewTimer()
	runStep()
	timer.ObserveDurationVec(metrics.StepDuration, "install-docker", "node")

Refreshing the node gauges while a long run is in flight:

	c := metrics.NewCollector(func() []metrics.NodeState { ... }, 15*time.Second)
	c.Start()
	defer c.Stop()

Exporting at exit:

	if err := metrics.WriteTextfile("/var/lib/node_exporter/stevedore.prom"); err != nil {
		log.Logger.Warn().Err(err).Msg("Failed to write metrics")
	}
*/
package metrics
