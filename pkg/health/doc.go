/*
Package health provides the informational checks behind `stevedore check`.

Three checker types share one interface:

	┌──────────────────────────────────────────────────────┐
	│                  Checker Interface                   │
	│  • Check(ctx) Result                                 │
	│  • Type() CheckType                                  │
	│  • Name() string                                     │
	└────────┬─────────────────────────────────────────────┘
	         │
	    ┌────┴──────┬────────────┐
	    ▼           ▼            ▼
	┌────────┐  ┌───────┐  ┌──────────┐
	│  HTTP  │  │  TCP  │  │  Remote  │
	└────────┘  └───────┘  └──────────┘
	  Vault        swarm      command over the
	  /sys/health  port 2377  node's SSH session
	  Consul
	  /status/leader

A Result is always returned; checkers never fail with an error and never
fault the node they look at. Each node in a cluster reports independently, so
one unhealthy node does not stop the checks of the others.

# Usage

	checks := []health.Checker{
		health.NewRemoteChecker(h, "docker info --format '{{.Swarm.LocalNodeState}}'").Named("swarm").WithExpect("active"),
		health.NewTCPChecker(net.JoinHostPort(h.Metadata().Address, "2377")),
		health.NewVaultChecker(h.Metadata().Address, 8200),
	}
	for _, r := range health.Run(ctx, checks) {
		fmt.Printf("%-20s %v %s\n", r.Check, r.Healthy, r.Message)
	}
*/
package health
