// Package consul probes a Consul cluster over its HTTP API while stevedore
// waits for servers and agents to join.
package consul
