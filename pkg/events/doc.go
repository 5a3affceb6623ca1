/*
Package events provides an in-memory event broker for run progress.

The orchestrator publishes an event at every transition of a run; the CLI
subscribes to print live progress while the run is in flight. Delivery is
best-effort: a subscriber whose buffer is full misses events, and the final
report (built from the orchestrator result, not from events) stays
authoritative.

# Architecture

	┌──────────────────── EVENT BROKER ────────────────────┐
	│                                                        │
	│  orchestrator ── Publish ──► eventCh (buffer: 100)    │
	│                                   │                    │
	│                            broadcast loop              │
	│                                   │                    │
	│              ┌────────────────────┼──────────────┐     │
	│              ▼                    ▼              ▼     │
	│        Subscriber (50)      Subscriber (50)    ...     │
	│        CLI progress         run history                │
	└────────────────────────────────────────────────────────┘

# Event Types

  - run.started, run.completed, run.aborted
  - step.started, step.completed, step.skipped
  - node.faulted (Node and Message set)

# Usage

	broker := events.NewBroker()
	broker.Start()
	sub := broker.Subscribe()
	go func() {
		for ev := range sub {
			fmt.Printf("%s %s %s\n", ev.Type, ev.Step, ev.Node)
		}
	}()

	orch := orchestrator.New(nodes, rt, orchestrator.WithEvents(broker))
	orch.Run(ctx)

	broker.Stop()
	broker.Unsubscribe(sub)

Stop flushes the events already published before returning, so a subscriber
sees run.completed before its channel is closed by Unsubscribe.
*/
package events
