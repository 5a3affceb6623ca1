/*
Package cluster is the fleet-level view of a cluster: a validated definition
joined to one node handle per inventory entry.

Besides role queries (Managers, Workers, Manager, Node) the proxy owns the
operations where ordering across nodes matters and step parallelism is not
enough. They are explicit sequential loops over the manager set:

  - FleetCommand runs a command on every manager and aggregates the results.
  - Unseal feeds Vault key shares to each manager until the configured
    threshold is accepted. A manager that cannot get there fails the whole
    operation.
  - Deploy rolls a script bundle out one manager at a time and stops at the
    first failure.

WaitForQuorum is the single bounded retry loop used for swarm and Consul
joins: a fixed interval and a deadline, no attempt cap. CheckHealth is the
informational counterpart: every node reports on its own and nothing is
faulted.
*/
package cluster
