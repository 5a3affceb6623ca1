/*
Package orchestrator runs an ordered list of steps over a fixed set of nodes.

A step is one of four variants, consumed by a single loop in registration
order:

	┌──────────────┬─────────────────────────────────────────────────┐
	│ Kind         │ Behavior                                        │
	├──────────────┼─────────────────────────────────────────────────┤
	│ node         │ action(ctx, handle) on every applicable node    │
	│ wait         │ WaitOnline on every applicable node             │
	│ global       │ action(ctx) once                                │
	│ delay        │ sleep for a fixed duration                      │
	└──────────────┴─────────────────────────────────────────────────┘

A node is applicable when it matches the step predicate and is not faulted.
Per-node steps fan out on an errgroup bounded by the step's max parallelism
(the runtime default unless WithMaxParallel overrides it; zero or less is
unbounded) and the loop waits for every node before starting the next step.

# Failure semantics

	per-node error or panic  ──► that node is faulted, siblings keep running,
	                             the node skips every later step
	global error or panic    ──► run aborted, every later step skipped
	context cancelled        ──► run aborted before the next step

Run returns true only when no node ended faulted and no global step failed.
Result carries per-node detail (ready, faulted, fault message, last status,
faulting step) and Report renders it as a table.

# Usage

	o := orchestrator.New(cluster.Nodes(), rt, orchestrator.WithEvents(broker))
	o.AddWaitUntilOnlineStep("")
	o.AddStep("install-docker", provision.InstallDocker(settings))
	o.AddGlobalStep("init-swarm", initSwarm)
	o.AddStep("join-workers", joinWorker, orchestrator.WithPredicate(orchestrator.Workers))
	o.AddDelayStep("settle", 10*time.Second)

	if !o.Run(ctx) {
		_ = o.Report(os.Stderr)
		return errors.New("setup failed")
	}
*/
package orchestrator
