/*
Package provision holds the embedded provisioning scripts and the step
sequences the CLI registers on an orchestrator.

Scripts live in scripts/ and are rendered with text/template against Data
(the cluster definition plus the target node) before being staged as a
bundle. A script may rely on files staged next to it, such as join-token
for swarm-join.sh or routes.json and settings.json for proxy.sh.

Setup registers the full bootstrap:

	wait-until-online → prepare-host → install-docker
	→ swarm-init (global) → swarm-join-managers (one at a time) → swarm-join-workers
	→ swarm-quorum (global) → overlay-networks (global)
	→ consul → consul-quorum (global) → consul-settle (delay)
	→ vault (managers) → vault-ready (managers) → vault-init (global) → vault-unseal (global)
	→ proxy-deploy (global)

The smaller sequences (RegisterUnseal, RegisterProxyDeploy, RegisterReboot,
RegisterExec) back the maintenance commands.
*/
package provision
